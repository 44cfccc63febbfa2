package bucket

import (
	"testing"

	"github.com/stellar/go/xdr"

	"github.com/dd0wney/cluso-ledgerdb/pkg/logging"
)

// Test fixtures shared by the bucket engine tests.

func testAccountID(n byte) xdr.AccountId {
	var key xdr.Uint256
	key[0] = n
	return xdr.AccountId(xdr.PublicKey{
		Type:    xdr.PublicKeyTypePublicKeyTypeEd25519,
		Ed25519: &key,
	})
}

func testAccountEntry(n byte, balance int64) xdr.LedgerEntry {
	return xdr.LedgerEntry{
		LastModifiedLedgerSeq: 1,
		Data: xdr.LedgerEntryData{
			Type: xdr.LedgerEntryTypeAccount,
			Account: &xdr.AccountEntry{
				AccountId: testAccountID(n),
				Balance:   xdr.Int64(balance),
			},
		},
	}
}

func testAccountKey(n byte) xdr.LedgerKey {
	return xdr.LedgerKey{
		Type: xdr.LedgerEntryTypeAccount,
		Account: &xdr.LedgerKeyAccount{
			AccountId: testAccountID(n),
		},
	}
}

func testContractDataEntry(n byte) xdr.LedgerEntry {
	cid := xdr.ContractId(xdr.Hash{n})
	k := xdr.Uint32(n)
	return xdr.LedgerEntry{
		LastModifiedLedgerSeq: 1,
		Data: xdr.LedgerEntryData{
			Type: xdr.LedgerEntryTypeContractData,
			ContractData: &xdr.ContractDataEntry{
				Contract: xdr.ScAddress{
					Type:       xdr.ScAddressTypeScAddressTypeContract,
					ContractId: &cid,
				},
				Key:        xdr.ScVal{Type: xdr.ScValTypeScvU32, U32: &k},
				Durability: xdr.ContractDataDurabilityPersistent,
				Val:        xdr.ScVal{Type: xdr.ScValTypeScvVoid},
			},
		},
	}
}

func liveEntry(e xdr.LedgerEntry) Record {
	entry := e
	return LiveRecord(xdr.BucketEntry{
		Type:      xdr.BucketEntryTypeLiveentry,
		LiveEntry: &entry,
	})
}

func initEntry(e xdr.LedgerEntry) Record {
	entry := e
	return LiveRecord(xdr.BucketEntry{
		Type:      xdr.BucketEntryTypeInitentry,
		LiveEntry: &entry,
	})
}

func deadEntry(key xdr.LedgerKey) Record {
	k := key
	return LiveRecord(xdr.BucketEntry{
		Type:      xdr.BucketEntryTypeDeadentry,
		DeadEntry: &k,
	})
}

func testMeta(version uint32) xdr.BucketMetadata {
	return xdr.BucketMetadata{LedgerVersion: xdr.Uint32(version)}
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	cfg := DefaultConfig(t.TempDir())
	cfg.PageSizeExponent = 0 // exact offsets unless a test overrides
	mgr, err := NewManager(cfg, logging.NewNopLogger())
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return mgr
}

func newPagedTestManager(t *testing.T, pageSizeExp uint) *Manager {
	t.Helper()
	cfg := DefaultConfig(t.TempDir())
	cfg.PageSizeExponent = pageSizeExp
	mgr, err := NewManager(cfg, logging.NewNopLogger())
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return mgr
}

// drainBucket reads every record of a bucket in on-disk order.
func drainBucket(t *testing.T, b *Bucket) []Record {
	t.Helper()
	var records []Record
	in := NewInputIterator(b)
	defer in.Close()
	for in.Next() {
		records = append(records, in.Record())
	}
	if err := in.Err(); err != nil {
		t.Fatalf("input iterator failed: %v", err)
	}
	return records
}

// writeTestBucket streams records through an output iterator and adopts
// the result.
func writeTestBucket(t *testing.T, mgr *Manager, keepTombstones bool, version uint32, records []Record) *Bucket {
	t.Helper()
	out, err := NewOutputIterator(t.TempDir(), VariantLive, keepTombstones, testMeta(version), nil, false, nil)
	if err != nil {
		t.Fatalf("NewOutputIterator failed: %v", err)
	}
	for _, rec := range records {
		if err := out.Put(rec); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}
	b, err := out.Finalize(mgr, true, nil)
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	return b
}
