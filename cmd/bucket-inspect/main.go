// bucket-inspect dumps a summary of a bucket file: record counts by
// type, key range, and the recomputed content hash.
package main

import (
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/stellar/go/xdr"

	"github.com/dd0wney/cluso-ledgerdb/pkg/bucket"
	"github.com/dd0wney/cluso-ledgerdb/pkg/ledger"
)

func main() {
	hot := flag.Bool("hot", false, "treat the file as a hot-archive bucket")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: bucket-inspect [-hot] <bucket-file>")
		os.Exit(2)
	}
	path := flag.Arg(0)

	variant := bucket.VariantLive
	if *hot {
		variant = bucket.VariantHotArchive
	}

	stream, err := bucket.OpenStream(path, variant)
	if err != nil {
		log.Fatalf("open failed: %v", err)
	}
	defer stream.Close()

	counts := make(map[string]int)
	var total int
	var firstKey, lastKey string

	var rec bucket.Record
	for {
		ok, err := stream.ReadOne(&rec)
		if err != nil {
			log.Fatalf("read failed at record %d: %v", total, err)
		}
		if !ok {
			break
		}
		total++

		counts[recordType(rec)]++
		if !rec.IsMeta() {
			key, err := rec.Key()
			if err != nil {
				log.Fatalf("key of record %d: %v", total, err)
			}
			enc := hex.EncodeToString(ledger.MustMarshalKey(key))
			if firstKey == "" {
				firstKey = enc
			}
			lastKey = enc
		}
	}

	hash, err := fileHash(path)
	if err != nil {
		log.Fatalf("hash failed: %v", err)
	}

	fmt.Printf("file:    %s\n", path)
	fmt.Printf("hash:    %s\n", hash)
	fmt.Printf("records: %d\n", total)
	for typ, n := range counts {
		fmt.Printf("  %-24s %d\n", typ, n)
	}
	if firstKey != "" {
		fmt.Printf("first key: %s\n", firstKey)
		fmt.Printf("last key:  %s\n", lastKey)
	}
}

func recordType(rec bucket.Record) string {
	if rec.Hot != nil {
		return rec.Hot.Type.String()
	}
	return rec.Live.Type.String()
}

func fileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	var hash xdr.Hash
	copy(hash[:], h.Sum(nil))
	return hex.EncodeToString(hash[:]), nil
}
