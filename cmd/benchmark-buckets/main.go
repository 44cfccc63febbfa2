// benchmark-buckets measures bucket write throughput and point lookup
// latency against a single generated bucket.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/stellar/go/xdr"

	"github.com/dd0wney/cluso-ledgerdb/pkg/bucket"
	"github.com/dd0wney/cluso-ledgerdb/pkg/logging"
	"github.com/dd0wney/cluso-ledgerdb/pkg/snapshot"
)

func main() {
	entries := flag.Int("entries", 100000, "number of entries to write")
	lookups := flag.Int("lookups", 10000, "number of point lookups")
	pageExp := flag.Uint("page-exp", 14, "page size exponent (0 = exact offsets)")
	flag.Parse()

	dir, err := os.MkdirTemp("", "benchmark-buckets")
	if err != nil {
		log.Fatalf("tempdir: %v", err)
	}
	defer os.RemoveAll(dir)

	cfg := bucket.DefaultConfig(dir)
	cfg.PageSizeExponent = *pageExp
	cfg.SyncOnClose = false

	mgr, err := bucket.NewManager(cfg, logging.NewNopLogger())
	if err != nil {
		log.Fatalf("manager: %v", err)
	}

	fmt.Printf("Writing %d entries...\n", *entries)
	meta := xdr.BucketMetadata{LedgerVersion: xdr.Uint32(bucket.ProtocolFirstInitMetaEntries)}
	out, err := bucket.NewOutputIterator(dir, bucket.VariantLive, true, meta, nil, false, nil)
	if err != nil {
		log.Fatalf("output iterator: %v", err)
	}

	start := time.Now()
	for i := 0; i < *entries; i++ {
		entry := makeAccount(uint32(i))
		rec := bucket.LiveRecord(xdr.BucketEntry{
			Type:      xdr.BucketEntryTypeLiveentry,
			LiveEntry: &entry,
		})
		if err := out.Put(rec); err != nil {
			log.Fatalf("put %d: %v", i, err)
		}
	}
	b, err := out.Finalize(mgr, true, nil)
	if err != nil {
		log.Fatalf("finalize: %v", err)
	}
	writeDur := time.Since(start)
	fmt.Printf("  wrote bucket %s in %v (%.0f entries/s)\n",
		b.HexHash()[:8], writeDur, float64(*entries)/writeDur.Seconds())

	bl := bucket.NewBucketList(bucket.VariantLive)
	if err := bl.SetLevel(0, b, nil); err != nil {
		log.Fatalf("set level: %v", err)
	}
	smgr := snapshot.NewManager(logging.NewNopLogger())
	smgr.UpdateCurrentSnapshot(bl, 1)
	ss := smgr.NewSearchableSnapshot()
	defer ss.Close()

	fmt.Printf("Running %d point lookups...\n", *lookups)
	start = time.Now()
	hits := 0
	for i := 0; i < *lookups; i++ {
		key := makeAccountKey(uint32(i * 7 % *entries))
		entry, err := ss.GetLedgerEntry(key)
		if err != nil {
			log.Fatalf("lookup %d: %v", i, err)
		}
		if entry != nil {
			hits++
		}
	}
	readDur := time.Since(start)
	fmt.Printf("  %d/%d hits in %v (%.0f lookups/s)\n",
		hits, *lookups, readDur, float64(*lookups)/readDur.Seconds())
}

func makeAccountID(n uint32) xdr.AccountId {
	var key xdr.Uint256
	key[0] = byte(n >> 24)
	key[1] = byte(n >> 16)
	key[2] = byte(n >> 8)
	key[3] = byte(n)
	return xdr.AccountId(xdr.PublicKey{
		Type:    xdr.PublicKeyTypePublicKeyTypeEd25519,
		Ed25519: &key,
	})
}

func makeAccount(n uint32) xdr.LedgerEntry {
	return xdr.LedgerEntry{
		LastModifiedLedgerSeq: 1,
		Data: xdr.LedgerEntryData{
			Type: xdr.LedgerEntryTypeAccount,
			Account: &xdr.AccountEntry{
				AccountId: makeAccountID(n),
				Balance:   xdr.Int64(n) * 100,
			},
		},
	}
}

func makeAccountKey(n uint32) xdr.LedgerKey {
	return xdr.LedgerKey{
		Type:    xdr.LedgerEntryTypeAccount,
		Account: &xdr.LedgerKeyAccount{AccountId: makeAccountID(n)},
	}
}
