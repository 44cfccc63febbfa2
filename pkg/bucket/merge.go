package bucket

import (
	"bytes"

	"github.com/stellar/go/xdr"

	"github.com/dd0wney/cluso-ledgerdb/pkg/ledger"
	"github.com/dd0wney/cluso-ledgerdb/pkg/logging"
)

// peekedIterator adds one-record lookahead over an InputIterator,
// skipping metadata records.
type peekedIterator struct {
	in  *InputIterator
	rec Record
	key []byte
	ok  bool
}

func newPeekedIterator(b *Bucket) (*peekedIterator, error) {
	p := &peekedIterator{in: NewInputIterator(b)}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *peekedIterator) advance() error {
	for p.in.Next() {
		rec := p.in.Record()
		if rec.IsMeta() {
			continue
		}
		key, err := rec.Key()
		if err != nil {
			return err
		}
		p.rec = rec
		p.key = ledger.MustMarshalKey(key)
		p.ok = true
		return nil
	}
	p.ok = false
	return p.in.Err()
}

func (p *peekedIterator) close() {
	_ = p.in.Close()
}

// MergeBuckets merges an older and a newer bucket of the same variant
// into a fresh bucket via an output iterator. Equal keys resolve per
// CAP-0020 once the protocol supports INIT entries:
//
//	old INIT + new LIVE  ⇒ INIT carrying the new value
//	old INIT + new DEAD  ⇒ both annihilate
//	anything else        ⇒ the newer record wins
//
// Below the INIT floor the newer record always wins. keepTombstones is
// false only when the output lands on the bottom level.
func MergeBuckets(mgr *Manager, tmpDir string, oldBucket, newBucket *Bucket, meta xdr.BucketMetadata, keepTombstones bool, counters *MergeCounters, mergeKey *MergeKey, log logging.Logger) (*Bucket, error) {
	variant := mergeVariant(oldBucket, newBucket)

	if mergeKey != nil && mgr.HasEmptyMergeOutput(*mergeKey) {
		return EmptyBucket(variant), nil
	}

	out, err := NewOutputIterator(tmpDir, variant, keepTombstones, meta, counters, mgr.cfg.SyncOnClose, log)
	if err != nil {
		return nil, err
	}

	oldIt, err := newPeekedIterator(oldBucket)
	if err != nil {
		return nil, err
	}
	defer oldIt.close()
	newIt, err := newPeekedIterator(newBucket)
	if err != nil {
		return nil, err
	}
	defer newIt.close()

	initSupported := uint32(meta.LedgerVersion) >= ProtocolFirstInitMetaEntries
	var mc MergeCounters
	if initSupported {
		mc.PostInitEntryProtocolMerges++
	} else {
		mc.PreInitEntryProtocolMerges++
	}

	for oldIt.ok || newIt.ok {
		var emit *Record

		switch {
		case !newIt.ok || (oldIt.ok && bytes.Compare(oldIt.key, newIt.key) < 0):
			mc.OldEntriesDefaultAccepted++
			rec := oldIt.rec
			emit = &rec
			if err := oldIt.advance(); err != nil {
				return nil, err
			}

		case !oldIt.ok || bytes.Compare(newIt.key, oldIt.key) < 0:
			mc.NewEntriesDefaultAccepted++
			rec := newIt.rec
			emit = &rec
			if err := newIt.advance(); err != nil {
				return nil, err
			}

		default:
			resolved, cc := resolveEqualKeys(variant, initSupported, oldIt.rec, newIt.rec)
			mc.Add(cc)
			emit = resolved
			if err := oldIt.advance(); err != nil {
				return nil, err
			}
			if err := newIt.advance(); err != nil {
				return nil, err
			}
		}

		if emit != nil {
			if err := out.Put(*emit); err != nil {
				return nil, err
			}
		}
	}

	if counters != nil {
		counters.Add(mc)
	}
	return out.Finalize(mgr, true, mergeKey)
}

func mergeVariant(oldBucket, newBucket *Bucket) Variant {
	if !oldBucket.IsEmpty() {
		return oldBucket.Variant()
	}
	return newBucket.Variant()
}

// resolveEqualKeys picks the surviving record for a key present in both
// inputs. A nil result means neither survives.
func resolveEqualKeys(variant Variant, initSupported bool, oldRec, newRec Record) (*Record, MergeCounters) {
	var mc MergeCounters

	if variant == VariantHotArchive || !initSupported {
		mc.NewEntriesDefaultAccepted++
		return &newRec, mc
	}

	if oldRec.Live.Type == xdr.BucketEntryTypeInitentry {
		switch newRec.Live.Type {
		case xdr.BucketEntryTypeLiveentry:
			// The pair (INIT, LIVE) collapses to an INIT carrying the
			// newer value: the key still has no predecessor below.
			mc.OldInitMergedWithNewLive++
			merged := LiveRecord(xdr.BucketEntry{
				Type:      xdr.BucketEntryTypeInitentry,
				LiveEntry: newRec.Live.LiveEntry,
			})
			return &merged, mc
		case xdr.BucketEntryTypeDeadentry:
			// Created and deleted within the merged span: both vanish.
			mc.OldInitAnnihilatedByNewDead++
			return nil, mc
		}
	}

	mc.NewEntriesDefaultAccepted++
	return &newRec, mc
}
