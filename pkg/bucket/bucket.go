package bucket

import (
	"encoding/hex"
	"sync"

	"github.com/stellar/go/xdr"
)

// Bucket is an immutable sorted run on disk, identified by the content
// hash of its byte stream. The zero-hash bucket is the empty sentinel and
// has no file. Buckets are shared freely between snapshots and in-flight
// merges; the manager is the canonical registry.
type Bucket struct {
	path    string
	hash    xdr.Hash
	variant Variant

	mu        sync.Mutex
	index     *Index
	indexOpts IndexOptions
}

// EmptyBucket returns the empty-bucket sentinel for a variant.
func EmptyBucket(variant Variant) *Bucket {
	return &Bucket{variant: variant}
}

// IsEmpty reports whether the bucket is the empty sentinel.
func (b *Bucket) IsEmpty() bool {
	return b == nil || b.hash == xdr.Hash{}
}

// Hash returns the content hash naming the bucket.
func (b *Bucket) Hash() xdr.Hash {
	return b.hash
}

// HexHash returns the hash in the form used for file names and logs.
func (b *Bucket) HexHash() string {
	return hex.EncodeToString(b.hash[:])
}

// Path returns the adopted file path, empty for the sentinel.
func (b *Bucket) Path() string {
	return b.path
}

// Variant returns the bucket's entry form.
func (b *Bucket) Variant() Variant {
	return b.variant
}

// IsIndexed reports whether the index has been built.
func (b *Bucket) IsIndexed() bool {
	if b.IsEmpty() {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.index != nil
}

// Index returns the bucket's index, building it on first use.
func (b *Bucket) Index() (*Index, error) {
	if b.IsEmpty() {
		return nil, opError("Index", "", ErrBucketCorrupt)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.index != nil {
		return b.index, nil
	}

	ix, err := NewIndexFromFile(b.path, b.variant, b.indexOpts)
	if err != nil {
		return nil, err
	}
	b.index = ix
	return ix, nil
}

// setIndex attaches a pre-built index; first writer wins.
func (b *Bucket) setIndex(ix *Index) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.index == nil {
		b.index = ix
	}
}

// OpenStream opens a fresh sequential reader over the bucket file. Each
// reader owns its handle; callers close it.
func (b *Bucket) OpenStream() (*StreamReader, error) {
	return OpenStream(b.path, b.variant)
}
