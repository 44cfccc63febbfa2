// Package bucket implements the bucket storage core of the ledger node:
// an append-only, content-addressed, level-structured merge engine that
// persists ledger state as sorted, immutable bucket files.
package bucket

import (
	"fmt"

	"github.com/stellar/go/xdr"

	"github.com/dd0wney/cluso-ledgerdb/pkg/ledger"
)

// Protocol floors gating writer and reader behavior. These are part of
// the on-disk contract, not heuristics.
const (
	// ProtocolFirstInitMetaEntries is the first ledger protocol with
	// METAENTRY and INITENTRY record support.
	ProtocolFirstInitMetaEntries uint32 = 11

	// ProtocolFirstBottomLevelLiveToInit is the first ledger protocol
	// rewriting LIVEENTRY records to INITENTRY at the bottom level.
	ProtocolFirstBottomLevelLiveToInit uint32 = 23

	// ProtocolFirstPersistentEviction is the floor for hot-archive
	// buckets; writing one below it is a programmer error.
	ProtocolFirstPersistentEviction uint32 = 23
)

// Variant selects between the two bucket entry forms.
type Variant int

const (
	// VariantLive holds current ledger state (META/INIT/LIVE/DEAD).
	VariantLive Variant = iota
	// VariantHotArchive holds evicted soroban state.
	VariantHotArchive
)

// String returns the variant name used in logs and metric labels.
func (v Variant) String() string {
	if v == VariantHotArchive {
		return "hot-archive"
	}
	return "live"
}

// Record is a tagged union over the live and hot-archive bucket entry
// forms. Exactly one member is set; the writer's validation rules fork on
// the tag.
type Record struct {
	Live *xdr.BucketEntry
	Hot  *xdr.HotArchiveBucketEntry
}

// LiveRecord wraps a live bucket entry.
func LiveRecord(e xdr.BucketEntry) Record {
	return Record{Live: &e}
}

// HotRecord wraps a hot-archive bucket entry.
func HotRecord(e xdr.HotArchiveBucketEntry) Record {
	return Record{Hot: &e}
}

// metaRecord builds the leading META record for a bucket of the given
// variant.
func metaRecord(variant Variant, meta xdr.BucketMetadata) Record {
	if variant == VariantHotArchive {
		return HotRecord(xdr.HotArchiveBucketEntry{
			Type:      xdr.HotArchiveBucketEntryTypeHotArchiveMetaentry,
			MetaEntry: &meta,
		})
	}
	return LiveRecord(xdr.BucketEntry{
		Type:      xdr.BucketEntryTypeMetaentry,
		MetaEntry: &meta,
	})
}

// Variant returns the form this record carries.
func (r Record) Variant() Variant {
	if r.Hot != nil {
		return VariantHotArchive
	}
	return VariantLive
}

// IsMeta reports whether the record is a bucket metadata header.
func (r Record) IsMeta() bool {
	if r.Hot != nil {
		return r.Hot.Type == xdr.HotArchiveBucketEntryTypeHotArchiveMetaentry
	}
	return r.Live != nil && r.Live.Type == xdr.BucketEntryTypeMetaentry
}

// IsTombstone reports whether the record asserts a key's absence: DEAD in
// live buckets, HOT_ARCHIVE_LIVE in hot-archive buckets.
func (r Record) IsTombstone() bool {
	if r.Hot != nil {
		return r.Hot.Type == xdr.HotArchiveBucketEntryTypeHotArchiveLive
	}
	return r.Live != nil && r.Live.Type == xdr.BucketEntryTypeDeadentry
}

// Key returns the ledger key identifying the record. Meta records have no
// key and return an error.
func (r Record) Key() (xdr.LedgerKey, error) {
	if r.Hot != nil {
		switch r.Hot.Type {
		case xdr.HotArchiveBucketEntryTypeHotArchiveArchived:
			return ledger.EntryKey(*r.Hot.ArchivedEntry)
		case xdr.HotArchiveBucketEntryTypeHotArchiveLive:
			return *r.Hot.Key, nil
		}
		return xdr.LedgerKey{}, fmt.Errorf("hot-archive record type %v has no key", r.Hot.Type)
	}

	if r.Live == nil {
		return xdr.LedgerKey{}, fmt.Errorf("empty record has no key")
	}
	switch r.Live.Type {
	case xdr.BucketEntryTypeInitentry, xdr.BucketEntryTypeLiveentry:
		return ledger.EntryKey(*r.Live.LiveEntry)
	case xdr.BucketEntryTypeDeadentry:
		return *r.Live.DeadEntry, nil
	}
	return xdr.LedgerKey{}, fmt.Errorf("live record type %v has no key", r.Live.Type)
}

// xdrValue returns the underlying XDR value for serialization.
func (r Record) xdrValue() interface{} {
	if r.Hot != nil {
		return *r.Hot
	}
	return *r.Live
}

// isLiveData reports whether a live-variant record carries an entry
// payload (INIT or LIVE).
func (r Record) isLiveData() bool {
	return r.Live != nil &&
		(r.Live.Type == xdr.BucketEntryTypeInitentry || r.Live.Type == xdr.BucketEntryTypeLiveentry)
}
