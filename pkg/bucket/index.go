package bucket

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/stellar/go/xdr"

	"github.com/dd0wney/cluso-ledgerdb/pkg/ledger"
	"github.com/dd0wney/cluso-ledgerdb/pkg/metrics"
)

// IndexOptions configures index construction.
type IndexOptions struct {
	// PageSize is the read granularity in bytes. 0 indexes every record
	// at its exact offset; positive values index page starts, trading
	// memory for a bounded forward scan on reads.
	PageSize int64

	// BloomFalsePositiveRate tunes the membership filter.
	BloomFalsePositiveRate float64
}

// indexEntry maps a canonical-encoded ledger key to a byte offset. For a
// page index the key is the first data key at or after the page start.
type indexEntry struct {
	key    []byte
	offset int64
}

// Index is the in-memory lookup structure derived from one bucket file:
// a sorted offset (or page) index, a bloom filter over all present keys,
// and a reverse index from liquidity-pool assets to pool IDs.
type Index struct {
	pageSize     int64
	entries      []indexEntry
	bloom        *bloomFilter
	poolsByAsset map[string][]xdr.PoolId
}

// IndexCursor resumes a forward scan across the index. The zero value
// starts at the beginning.
type IndexCursor int

// NewIndexFromFile scans a bucket file and builds its index.
func NewIndexFromFile(path string, variant Variant, opts IndexOptions) (*Index, error) {
	stream, err := OpenStream(path, variant)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	ix := &Index{
		pageSize:     opts.PageSize,
		poolsByAsset: make(map[string][]xdr.PoolId),
	}

	var allKeys [][]byte
	lastPage := int64(-1)

	var rec Record
	for {
		offset := stream.Pos()
		ok, err := stream.ReadOne(&rec)
		if err != nil {
			return nil, opError("BuildIndex", path, err)
		}
		if !ok {
			break
		}
		if rec.IsMeta() {
			continue
		}

		key, err := rec.Key()
		if err != nil {
			return nil, opError("BuildIndex", path, err)
		}
		enc := ledger.MustMarshalKey(key)
		allKeys = append(allKeys, enc)

		if opts.PageSize == 0 {
			ix.entries = append(ix.entries, indexEntry{key: enc, offset: offset})
		} else if page := offset / opts.PageSize; page > lastPage {
			// The first data record starting in each page anchors it.
			// Every record between two anchors starts within the first
			// anchor's page, so a pageSize-bounded forward scan from the
			// anchor covers the whole group.
			ix.entries = append(ix.entries, indexEntry{key: enc, offset: offset})
			lastPage = page
		}

		ix.noteLiquidityPool(rec)
	}

	ix.bloom = newBloomFilter(len(allKeys), opts.BloomFalsePositiveRate)
	for _, k := range allKeys {
		ix.bloom.add(k)
	}

	metrics.Default().IndexBuildsTotal.WithLabelValues("scan").Inc()
	return ix, nil
}

// noteLiquidityPool updates the asset reverse index for liquidity-pool
// entries in live buckets.
func (ix *Index) noteLiquidityPool(rec Record) {
	if !rec.isLiveData() {
		return
	}
	entry := rec.Live.LiveEntry
	if entry.Data.Type != xdr.LedgerEntryTypeLiquidityPool {
		return
	}

	pool := entry.Data.LiquidityPool
	if pool.Body.Type != xdr.LiquidityPoolTypeLiquidityPoolConstantProduct {
		return
	}
	params := pool.Body.ConstantProduct.Params
	ix.addPool(params.AssetA, pool.LiquidityPoolId)
	ix.addPool(params.AssetB, pool.LiquidityPoolId)
}

func (ix *Index) addPool(asset xdr.Asset, id xdr.PoolId) {
	key := assetMapKey(asset)
	for _, existing := range ix.poolsByAsset[key] {
		if existing == id {
			return
		}
	}
	ix.poolsByAsset[key] = append(ix.poolsByAsset[key], id)
}

func assetMapKey(asset xdr.Asset) string {
	var buf bytes.Buffer
	if _, err := xdr.Marshal(&buf, asset); err != nil {
		panic(fmt.Sprintf("marshal asset: %v", err))
	}
	return buf.String()
}

// PageSize returns the read granularity the index was built with.
func (ix *Index) PageSize() int64 {
	return ix.pageSize
}

// Lookup returns the byte offset holding the record for key. With a page
// index the offset is the containing page start and the caller scans
// forward. A bloom rejection returns ok=false, as does an absent key in an
// exact-offset index; in a page index an absent key that passes the bloom
// filter still yields its candidate page, and the page scan misses it.
func (ix *Index) Lookup(key xdr.LedgerKey) (int64, bool) {
	return ix.lookupEncoded(ledger.MustMarshalKey(key))
}

func (ix *Index) lookupEncoded(enc []byte) (int64, bool) {
	reg := metrics.Default()
	reg.BloomLookupsTotal.Inc()
	if !ix.bloom.mayContain(enc) {
		reg.BloomMissesTotal.Inc()
		return 0, false
	}

	// First entry with key >= enc.
	i := sort.Search(len(ix.entries), func(n int) bool {
		return bytes.Compare(ix.entries[n].key, enc) >= 0
	})

	if ix.pageSize == 0 {
		if i < len(ix.entries) && bytes.Equal(ix.entries[i].key, enc) {
			return ix.entries[i].offset, true
		}
		return 0, false
	}

	// Page index: the candidate page is the last one whose first key is
	// <= enc.
	if i < len(ix.entries) && bytes.Equal(ix.entries[i].key, enc) {
		return ix.entries[i].offset, true
	}
	if i == 0 {
		return 0, false
	}
	return ix.entries[i-1].offset, true
}

// Scan resumes a forward cursor looking for encKey, exploiting that both
// the caller's keys and the index are sorted: N keys against M index
// entries cost O(N+M) instead of O(N log M).
func (ix *Index) Scan(cur IndexCursor, encKey []byte) (int64, bool, IndexCursor) {
	reg := metrics.Default()
	reg.BloomLookupsTotal.Inc()
	if !ix.bloom.mayContain(encKey) {
		reg.BloomMissesTotal.Inc()
		return 0, false, cur
	}

	i := int(cur)
	if ix.pageSize == 0 {
		for i < len(ix.entries) && bytes.Compare(ix.entries[i].key, encKey) < 0 {
			i++
		}
		if i < len(ix.entries) && bytes.Equal(ix.entries[i].key, encKey) {
			return ix.entries[i].offset, true, IndexCursor(i)
		}
		return 0, false, IndexCursor(i)
	}

	// Page index: advance to the last page whose first key is <= encKey.
	for i+1 < len(ix.entries) && bytes.Compare(ix.entries[i+1].key, encKey) <= 0 {
		i++
	}
	if i >= len(ix.entries) || bytes.Compare(ix.entries[i].key, encKey) > 0 {
		return 0, false, IndexCursor(i)
	}
	return ix.entries[i].offset, true, IndexCursor(i)
}

// GetPoolIDsByAsset returns the pool IDs whose constant-product pair
// includes the asset. The returned slice is shared and must not be
// mutated; it is empty, never nil, when the bucket holds no such pools.
func (ix *Index) GetPoolIDsByAsset(asset xdr.Asset) []xdr.PoolId {
	ids, ok := ix.poolsByAsset[assetMapKey(asset)]
	if !ok {
		return []xdr.PoolId{}
	}
	return ids
}

// MarkBloomMiss records a false positive discovered after the index
// pointed at a page that turned out not to hold the key.
func (ix *Index) MarkBloomMiss() {
	metrics.Default().BloomMissesTotal.Inc()
}
