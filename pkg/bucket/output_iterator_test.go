package bucket

import (
	"errors"
	"os"
	"testing"

	"github.com/stellar/go/xdr"
)

func TestOutputIterator_DedupLastWriterWins(t *testing.T) {
	mgr := newTestManager(t)

	// Pre-meta protocol: no META record framing.
	out, err := NewOutputIterator(t.TempDir(), VariantLive, true, testMeta(10), nil, false, nil)
	if err != nil {
		t.Fatalf("NewOutputIterator failed: %v", err)
	}

	puts := []Record{
		liveEntry(testAccountEntry(1, 100)),
		liveEntry(testAccountEntry(1, 200)),
		liveEntry(testAccountEntry(2, 300)),
	}
	for _, rec := range puts {
		if err := out.Put(rec); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	b, err := out.Finalize(mgr, true, nil)
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	records := drainBucket(t, b)
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if got := records[0].Live.LiveEntry.Data.Account.Balance; got != 200 {
		t.Errorf("expected later write (200) to win, got %d", got)
	}
	if got := records[1].Live.LiveEntry.Data.Account.Balance; got != 300 {
		t.Errorf("expected 300, got %d", got)
	}

	mc := out.Counters()
	if mc.OutputIteratorBufferUpdates != 1 {
		t.Errorf("expected 1 buffer replacement, got %d", mc.OutputIteratorBufferUpdates)
	}
}

func TestOutputIterator_BottomLevelConversion(t *testing.T) {
	mgr := newTestManager(t)

	out, err := NewOutputIterator(t.TempDir(), VariantLive, false, testMeta(ProtocolFirstBottomLevelLiveToInit), nil, false, nil)
	if err != nil {
		t.Fatalf("NewOutputIterator failed: %v", err)
	}

	if err := out.Put(liveEntry(testAccountEntry(1, 100))); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := out.Put(deadEntry(testAccountKey(2))); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	b, err := out.Finalize(mgr, true, nil)
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	records := drainBucket(t, b)
	// META plus the single converted entry.
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if !records[0].IsMeta() {
		t.Fatal("expected META first")
	}
	if records[1].Live.Type != xdr.BucketEntryTypeInitentry {
		t.Errorf("expected INITENTRY, got %v", records[1].Live.Type)
	}

	mc := out.Counters()
	if mc.OutputIteratorTombstoneElisions != 1 {
		t.Errorf("expected 1 tombstone elision, got %d", mc.OutputIteratorTombstoneElisions)
	}
	if mc.OutputIteratorLiveToInitRewrites != 1 {
		t.Errorf("expected 1 live-to-init rewrite, got %d", mc.OutputIteratorLiveToInitRewrites)
	}
}

func TestOutputIterator_MetaFraming(t *testing.T) {
	mgr := newTestManager(t)
	b := writeTestBucket(t, mgr, true, ProtocolFirstInitMetaEntries, []Record{
		liveEntry(testAccountEntry(1, 100)),
	})

	records := drainBucket(t, b)
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if !records[0].IsMeta() {
		t.Fatal("expected META as the first record")
	}
	if got := uint32(records[0].Live.MetaEntry.LedgerVersion); got != ProtocolFirstInitMetaEntries {
		t.Errorf("meta carries wrong protocol version %d", got)
	}
	for _, rec := range records[1:] {
		if rec.IsMeta() {
			t.Fatal("found a second META record")
		}
	}
}

func TestOutputIterator_LateMetaIsFatal(t *testing.T) {
	out, err := NewOutputIterator(t.TempDir(), VariantLive, true, testMeta(ProtocolFirstInitMetaEntries), nil, false, nil)
	if err != nil {
		t.Fatalf("NewOutputIterator failed: %v", err)
	}
	if err := out.Put(liveEntry(testAccountEntry(1, 100))); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	meta := testMeta(ProtocolFirstInitMetaEntries)
	err = out.Put(metaRecord(VariantLive, meta))
	if !errors.Is(err, ErrMetaAfterData) {
		t.Fatalf("expected ErrMetaAfterData, got %v", err)
	}

	// The iterator is poisoned and its temp file gone.
	if err := out.Put(liveEntry(testAccountEntry(2, 100))); !errors.Is(err, ErrIteratorFailed) {
		t.Fatalf("expected ErrIteratorFailed, got %v", err)
	}
	if _, err := os.Stat(out.path); !os.IsNotExist(err) {
		t.Error("temp file survived a fatal error")
	}
}

func TestOutputIterator_OutOfOrderIsFatal(t *testing.T) {
	out, err := NewOutputIterator(t.TempDir(), VariantLive, true, testMeta(10), nil, false, nil)
	if err != nil {
		t.Fatalf("NewOutputIterator failed: %v", err)
	}
	if err := out.Put(liveEntry(testAccountEntry(2, 100))); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	err = out.Put(liveEntry(testAccountEntry(1, 100)))
	if !errors.Is(err, ErrEntryOutOfOrder) {
		t.Fatalf("expected ErrEntryOutOfOrder, got %v", err)
	}
}

func TestOutputIterator_HotArchiveDomainCheck(t *testing.T) {
	out, err := NewOutputIterator(t.TempDir(), VariantHotArchive, true, testMeta(ProtocolFirstPersistentEviction), nil, false, nil)
	if err != nil {
		t.Fatalf("NewOutputIterator failed: %v", err)
	}

	// An account entry has no business in a hot archive.
	entry := testAccountEntry(1, 100)
	err = out.Put(HotRecord(xdr.HotArchiveBucketEntry{
		Type:          xdr.HotArchiveBucketEntryTypeHotArchiveArchived,
		ArchivedEntry: &entry,
	}))
	if !errors.Is(err, ErrNonSorobanEntry) {
		t.Fatalf("expected ErrNonSorobanEntry, got %v", err)
	}
}

func TestOutputIterator_HotArchiveAcceptsSoroban(t *testing.T) {
	mgr := newTestManager(t)

	out, err := NewOutputIterator(t.TempDir(), VariantHotArchive, true, testMeta(ProtocolFirstPersistentEviction), nil, false, nil)
	if err != nil {
		t.Fatalf("NewOutputIterator failed: %v", err)
	}

	entry := testContractDataEntry(1)
	if err := out.Put(HotRecord(xdr.HotArchiveBucketEntry{
		Type:          xdr.HotArchiveBucketEntryTypeHotArchiveArchived,
		ArchivedEntry: &entry,
	})); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	b, err := out.Finalize(mgr, false, nil)
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	records := drainBucket(t, b)
	if len(records) != 2 {
		t.Fatalf("expected META plus archived entry, got %d records", len(records))
	}
}

func TestOutputIterator_HotArchiveProtocolFloor(t *testing.T) {
	_, err := NewOutputIterator(t.TempDir(), VariantHotArchive, true, testMeta(ProtocolFirstPersistentEviction-1), nil, false, nil)
	if !errors.Is(err, ErrProtocolTooOld) {
		t.Fatalf("expected ErrProtocolTooOld, got %v", err)
	}
}

func TestOutputIterator_EmptyOutput(t *testing.T) {
	mgr := newTestManager(t)

	mergeKey := MergeKey{Level: 3}
	out, err := NewOutputIterator(t.TempDir(), VariantLive, true, testMeta(ProtocolFirstInitMetaEntries), nil, false, nil)
	if err != nil {
		t.Fatalf("NewOutputIterator failed: %v", err)
	}

	// Zero data records after the staged meta.
	b, err := out.Finalize(mgr, true, &mergeKey)
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if !b.IsEmpty() {
		t.Fatal("expected the empty-bucket sentinel")
	}
	if b.Hash() != (xdr.Hash{}) {
		t.Error("empty bucket hash is not the sentinel")
	}
	if _, err := os.Stat(out.path); !os.IsNotExist(err) {
		t.Error("empty output left a file behind")
	}
	if !mgr.HasEmptyMergeOutput(mergeKey) {
		t.Error("empty merge output was not memoized")
	}
}

func TestOutputIterator_HashStability(t *testing.T) {
	mgr := newTestManager(t)

	write := func() *Bucket {
		return writeTestBucket(t, mgr, true, ProtocolFirstInitMetaEntries, []Record{
			initEntry(testAccountEntry(1, 100)),
			liveEntry(testAccountEntry(2, 200)),
			deadEntry(testAccountKey(3)),
		})
	}

	b1 := write()
	b2 := write()
	if b1.Hash() != b2.Hash() {
		t.Errorf("same input produced different hashes: %s vs %s", b1.HexHash(), b2.HexHash())
	}
	if b1 != b2 {
		t.Error("idempotent adoption should alias the same bucket handle")
	}
}

func TestOutputIterator_InitEntryBelowProtocolFloor(t *testing.T) {
	out, err := NewOutputIterator(t.TempDir(), VariantLive, true, testMeta(10), nil, false, nil)
	if err != nil {
		t.Fatalf("NewOutputIterator failed: %v", err)
	}

	err = out.Put(initEntry(testAccountEntry(1, 100)))
	if !errors.Is(err, ErrProtocolTooOld) {
		t.Fatalf("expected ErrProtocolTooOld, got %v", err)
	}
}
