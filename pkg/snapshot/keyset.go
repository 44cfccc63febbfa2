package snapshot

import (
	"bytes"
	"sort"

	"github.com/stellar/go/xdr"

	"github.com/dd0wney/cluso-ledgerdb/pkg/ledger"
)

// keyItem pairs a ledger key with its canonical encoding, computed once
// per query.
type keyItem struct {
	key xdr.LedgerKey
	enc []byte
}

// KeySet is a sorted, deduplicated working set of ledger keys. Bulk
// lookups traverse it destructively: keys resolved (or refused by the
// meter) at one bucket are removed so older buckets never load shadowed
// entries.
type KeySet struct {
	items []keyItem
}

// NewKeySet builds a sorted key set from the caller's keys.
func NewKeySet(keys []xdr.LedgerKey) *KeySet {
	items := make([]keyItem, 0, len(keys))
	for _, k := range keys {
		items = append(items, keyItem{key: k, enc: ledger.MustMarshalKey(k)})
	}
	sort.Slice(items, func(i, j int) bool {
		return bytes.Compare(items[i].enc, items[j].enc) < 0
	})

	// Drop duplicates.
	dedup := items[:0]
	for i, it := range items {
		if i == 0 || !bytes.Equal(items[i-1].enc, it.enc) {
			dedup = append(dedup, it)
		}
	}
	return &KeySet{items: dedup}
}

// Len returns the number of unresolved keys.
func (s *KeySet) Len() int {
	return len(s.items)
}

// Empty reports whether every key has been resolved.
func (s *KeySet) Empty() bool {
	return len(s.items) == 0
}

// remove drops the key at position i, keeping order.
func (s *KeySet) remove(i int) {
	s.items = append(s.items[:i], s.items[i+1:]...)
}
