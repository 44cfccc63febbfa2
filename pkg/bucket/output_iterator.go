package bucket

import (
	"bytes"
	"crypto/sha256"
	"hash"
	"os"

	"github.com/stellar/go/xdr"

	"github.com/dd0wney/cluso-ledgerdb/pkg/ledger"
	"github.com/dd0wney/cluso-ledgerdb/pkg/logging"
	"github.com/dd0wney/cluso-ledgerdb/pkg/metrics"
)

// OutputIterator absorbs records in non-decreasing key order, applies the
// level-dependent rewrite rules, and streams the survivors into a new
// bucket file while hashing the emitted bytes. Single-threaded per
// instance; parallel writers use disjoint temporary files.
type OutputIterator struct {
	variant        Variant
	path           string
	out            *StreamWriter
	hasher         hash.Hash
	keepTombstones bool
	meta           xdr.BucketMetadata
	metaPut        bool

	buf    *Record
	bufKey []byte // canonical encoding of the buffered record's key, nil for meta

	objectsPut uint64
	bytesPut   uint64
	dataPut    uint64

	mc   MergeCounters
	sink *MergeCounters
	log  logging.Logger
	err  error
}

// NewOutputIterator opens a writer over a fresh temporary file in tmpDir.
// keepTombstones is false only for the bottom level of a bucket list.
// When the protocol supports meta entries the metadata record is staged
// immediately; hot-archive buckets additionally require the persistent
// eviction floor.
func NewOutputIterator(tmpDir string, variant Variant, keepTombstones bool, meta xdr.BucketMetadata, counters *MergeCounters, syncOnClose bool, log logging.Logger) (*OutputIterator, error) {
	if log == nil {
		log = logging.NewNopLogger()
	}
	path := RandomBucketName(tmpDir)
	out, err := newStreamWriter(path, syncOnClose)
	if err != nil {
		return nil, err
	}

	it := &OutputIterator{
		variant:        variant,
		path:           path,
		out:            out,
		hasher:         sha256.New(),
		keepTombstones: keepTombstones,
		meta:           meta,
		sink:           counters,
		log:            log.With(logging.Component("bucket-writer")),
	}
	it.log.Debug("output iterator opened", logging.Path(path))

	if uint32(meta.LedgerVersion) >= ProtocolFirstInitMetaEntries {
		if variant == VariantHotArchive &&
			uint32(meta.LedgerVersion) < ProtocolFirstPersistentEviction {
			it.fail(opError("NewOutputIterator", path, ErrProtocolTooOld))
			return nil, it.err
		}
		if err := it.Put(metaRecord(variant, meta)); err != nil {
			return nil, err
		}
		it.metaPut = true
	}
	return it, nil
}

// Put absorbs one record. Inputs must arrive in non-decreasing key order;
// equal keys mean "same identity, replace". Violations are programmer
// errors that poison the iterator.
func (it *OutputIterator) Put(rec Record) error {
	if it.err != nil {
		return ErrIteratorFailed
	}
	if rec.Variant() != it.variant {
		return it.fail(opError("Put", it.path, ErrVariantMismatch))
	}

	if it.variant == VariantLive {
		if err := it.checkLiveLegality(rec); err != nil {
			return it.fail(err)
		}
		if rec.IsMeta() && it.metaPut {
			return it.fail(opError("Put", it.path, ErrMetaAfterData))
		}
	} else {
		if rec.IsMeta() {
			if it.metaPut {
				return it.fail(opError("Put", it.path, ErrMetaAfterData))
			}
		} else if err := it.checkHotDomain(rec); err != nil {
			return it.fail(err)
		}
	}

	// Tombstones are elided at the bottom level: with no older bucket
	// beneath, a deletion marker shadows nothing.
	if !it.keepTombstones && rec.IsTombstone() {
		it.mc.OutputIteratorTombstoneElisions++
		return nil
	}

	var recKey []byte
	if !rec.IsMeta() {
		key, err := rec.Key()
		if err != nil {
			return it.fail(opError("Put", it.path, err))
		}
		recKey = ledger.MustMarshalKey(key)
	}

	sameIdentity := false
	if it.buf != nil {
		cmp := compareEncodedRecords(it.bufKey, it.buf.IsMeta(), recKey, rec.IsMeta())
		if cmp > 0 {
			return it.fail(opError("Put", it.path, ErrEntryOutOfOrder))
		}
		if cmp < 0 {
			// Greater identity: the buffered record is final, flush it.
			it.mc.OutputIteratorActualWrites++
			if err := it.flushBuffer(); err != nil {
				return it.fail(err)
			}
		} else {
			sameIdentity = true
		}
	}

	if !rec.IsMeta() {
		it.dataPut++
	}

	// At the bottom level every live entry is by definition initial:
	// there is no older bucket a predecessor could hide in (CAP-0020).
	if it.variant == VariantLive && !it.keepTombstones &&
		rec.Live.Type == xdr.BucketEntryTypeLiveentry &&
		uint32(it.meta.LedgerVersion) >= ProtocolFirstBottomLevelLiveToInit {
		it.mc.OutputIteratorLiveToInitRewrites++
		if sameIdentity {
			it.mc.OutputIteratorBufferUpdates++
		}
		rewritten := xdr.BucketEntry{
			Type:      xdr.BucketEntryTypeInitentry,
			LiveEntry: rec.Live.LiveEntry,
		}
		it.setBuffer(LiveRecord(rewritten), recKey)
		return nil
	}

	if sameIdentity {
		it.mc.OutputIteratorBufferUpdates++
	}
	it.setBuffer(rec, recKey)
	return nil
}

func (it *OutputIterator) setBuffer(rec Record, encKey []byte) {
	it.buf = &rec
	it.bufKey = encKey
}

// checkLiveLegality rejects record kinds the protocol version does not
// support yet.
func (it *OutputIterator) checkLiveLegality(rec Record) error {
	if uint32(it.meta.LedgerVersion) >= ProtocolFirstInitMetaEntries {
		return nil
	}
	switch rec.Live.Type {
	case xdr.BucketEntryTypeMetaentry, xdr.BucketEntryTypeInitentry:
		return opError("Put", it.path, ErrProtocolTooOld)
	}
	return nil
}

// checkHotDomain requires every non-meta hot-archive record to reference
// soroban state.
func (it *OutputIterator) checkHotDomain(rec Record) error {
	switch rec.Hot.Type {
	case xdr.HotArchiveBucketEntryTypeHotArchiveArchived:
		if !ledger.IsSorobanEntry(*rec.Hot.ArchivedEntry) {
			return opError("Put", it.path, ErrNonSorobanEntry)
		}
	case xdr.HotArchiveBucketEntryTypeHotArchiveLive:
		if !ledger.IsSorobanKey(*rec.Hot.Key) {
			return opError("Put", it.path, ErrNonSorobanEntry)
		}
	}
	return nil
}

// compareEncodedRecords orders records with meta before everything and
// data records by canonical key encoding.
func compareEncodedRecords(aKey []byte, aMeta bool, bKey []byte, bMeta bool) int {
	switch {
	case aMeta && bMeta:
		return 0
	case aMeta:
		return -1
	case bMeta:
		return 1
	}
	return bytes.Compare(aKey, bKey)
}

func (it *OutputIterator) flushBuffer() error {
	if err := it.out.WriteOne(*it.buf, it.hasher, &it.bytesPut); err != nil {
		return opError("Flush", it.path, err)
	}
	it.objectsPut++
	it.buf = nil
	it.bufKey = nil
	return nil
}

// fail poisons the iterator and discards the temporary file.
func (it *OutputIterator) fail(err error) error {
	it.err = err
	_ = it.out.file.Close()
	_ = os.Remove(it.path)
	it.log.Error("output iterator failed", logging.Path(it.path), logging.Error(err))
	return err
}

// Counters returns the events recorded by this iterator so far.
func (it *OutputIterator) Counters() MergeCounters {
	return it.mc
}

// Finalize flushes the buffer, closes the file, and adopts it into the
// manager. Zero data records (even with staged metadata) yield no file:
// the empty-bucket sentinel is returned and, when a merge key was
// supplied, the empty result memoized. indexNow builds the index
// synchronously unless the manager already holds an indexed bucket with
// the same hash.
func (it *OutputIterator) Finalize(mgr *Manager, indexNow bool, mergeKey *MergeKey) (*Bucket, error) {
	if it.err != nil {
		return nil, it.err
	}

	if it.dataPut == 0 {
		// Nothing but (at most) a staged meta record: discard.
		if err := it.out.Close(); err != nil {
			return nil, it.fail(err)
		}
		if err := os.Remove(it.path); err != nil && !os.IsNotExist(err) {
			return nil, opError("Finalize", it.path, err)
		}
		if mergeKey != nil {
			mgr.NoteEmptyMergeOutput(*mergeKey)
		}
		it.publish()
		it.log.Debug("empty bucket output discarded", logging.Path(it.path))
		return EmptyBucket(it.variant), nil
	}

	if it.buf != nil {
		if err := it.flushBuffer(); err != nil {
			return nil, it.fail(err)
		}
	}
	if err := it.out.Close(); err != nil {
		return nil, it.fail(err)
	}

	var hash xdr.Hash
	copy(hash[:], it.hasher.Sum(nil))

	var index *Index
	if indexNow {
		if b, ok := mgr.GetBucketIfExists(hash); !ok || !b.IsIndexed() {
			ix, err := NewIndexFromFile(it.path, it.variant, mgr.indexOptions())
			if err != nil {
				return nil, it.fail(err)
			}
			index = ix
		}
	}

	b, err := mgr.AdoptFileAsBucket(it.path, hash, it.variant, mergeKey, index)
	if err != nil {
		return nil, it.fail(err)
	}

	it.publish()
	it.log.Info("bucket finalized",
		logging.BucketHash(b.HexHash()),
		logging.Records(it.objectsPut),
		logging.Bytes(it.bytesPut))
	return b, nil
}

// publish folds the iterator's counters into the caller's sink and the
// metric registry.
func (it *OutputIterator) publish() {
	if it.sink != nil {
		it.sink.Add(it.mc)
	}
	reg := metrics.Default()
	reg.MergeActualWrites.Add(float64(it.mc.OutputIteratorActualWrites))
	reg.MergeBufferUpdates.Add(float64(it.mc.OutputIteratorBufferUpdates))
	reg.MergeTombstoneElisions.Add(float64(it.mc.OutputIteratorTombstoneElisions))
	reg.MergeLiveToInitRewrites.Add(float64(it.mc.OutputIteratorLiveToInitRewrites))
	reg.RecordBucketWritten(it.objectsPut, it.bytesPut)
}
