// Package snapshot provides immutable views of the bucket list and the
// shadow-aware query layer served against them.
package snapshot

import (
	"fmt"

	"github.com/stellar/go/xdr"
	"golang.org/x/exp/mmap"

	"github.com/dd0wney/cluso-ledgerdb/pkg/bucket"
	"github.com/dd0wney/cluso-ledgerdb/pkg/ledger"
)

// BucketSnapshot wraps a shared bucket handle with this reader's own
// lazily-opened file access: a sequential stream for page scans and a
// memory map for exact-offset reads. Snapshots are not safe for
// concurrent use; each reader copies its own.
type BucketSnapshot struct {
	bucket *bucket.Bucket
	stream *bucket.StreamReader
	mm     *mmap.ReaderAt
}

// NewBucketSnapshot wraps a bucket handle. Only live buckets are
// queryable through the snapshot layer.
func NewBucketSnapshot(b *bucket.Bucket) *BucketSnapshot {
	return &BucketSnapshot{bucket: b}
}

// IsEmpty reports whether the underlying bucket is the sentinel.
func (s *BucketSnapshot) IsEmpty() bool {
	return s.bucket.IsEmpty()
}

// RawBucket returns the shared bucket handle.
func (s *BucketSnapshot) RawBucket() *bucket.Bucket {
	return s.bucket
}

// Close releases the reader-owned file handles.
func (s *BucketSnapshot) Close() error {
	var firstErr error
	if s.stream != nil {
		firstErr = s.stream.Close()
		s.stream = nil
	}
	if s.mm != nil {
		if err := s.mm.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.mm = nil
	}
	return firstErr
}

func (s *BucketSnapshot) getStream() (*bucket.StreamReader, error) {
	if s.stream == nil {
		stream, err := s.bucket.OpenStream()
		if err != nil {
			return nil, err
		}
		s.stream = stream
	}
	return s.stream, nil
}

func (s *BucketSnapshot) getMmap() (*mmap.ReaderAt, error) {
	if s.mm == nil {
		mm, err := mmap.Open(s.bucket.Path())
		if err != nil {
			return nil, fmt.Errorf("mmap bucket %s: %w", s.bucket.Path(), err)
		}
		s.mm = mm
	}
	return s.mm, nil
}

// GetEntryAtOffset reads the record for key at a known offset. With a
// zero page size the offset is exact and read through the memory map;
// otherwise the sequential stream scans up to pageSize bytes from the
// page start. Failure to locate the key marks a bloom miss.
func (s *BucketSnapshot) GetEntryAtOffset(key xdr.LedgerKey, offset int64, pageSize int64) (*xdr.BucketEntry, error) {
	if s.IsEmpty() {
		return nil, nil
	}

	if pageSize == 0 {
		mm, err := s.getMmap()
		if err != nil {
			return nil, err
		}
		rec, ok, err := bucket.ReadRecordAt(mm, offset, bucket.VariantLive)
		if err != nil {
			return nil, err
		}
		if ok {
			return rec.Live, nil
		}
	} else {
		stream, err := s.getStream()
		if err != nil {
			return nil, err
		}
		if err := stream.Seek(offset); err != nil {
			return nil, err
		}
		var rec bucket.Record
		ok, err := stream.ReadPage(&rec, key, pageSize)
		if err != nil {
			return nil, err
		}
		if ok {
			return rec.Live, nil
		}
	}

	ix, err := s.bucket.Index()
	if err != nil {
		return nil, err
	}
	ix.MarkBloomMiss()
	return nil, nil
}

// GetBucketEntry looks up the record for key via the index.
func (s *BucketSnapshot) GetBucketEntry(key xdr.LedgerKey) (*xdr.BucketEntry, error) {
	if s.IsEmpty() {
		return nil, nil
	}

	ix, err := s.bucket.Index()
	if err != nil {
		return nil, err
	}
	offset, ok := ix.Lookup(key)
	if !ok {
		return nil, nil
	}
	return s.GetEntryAtOffset(key, offset, ix.PageSize())
}

// GetPoolIDsByAsset returns the pool IDs this bucket's index associates
// with the asset; empty when the bucket holds none.
func (s *BucketSnapshot) GetPoolIDsByAsset(asset xdr.Asset) ([]xdr.PoolId, error) {
	if s.IsEmpty() {
		return []xdr.PoolId{}, nil
	}
	ix, err := s.bucket.Index()
	if err != nil {
		return nil, err
	}
	return ix.GetPoolIDsByAsset(asset), nil
}

// LoadKeysWithLimits resolves as many keys of the working set as this
// bucket can answer, advancing a forward index cursor in lockstep with
// the sorted key set. Found keys are removed: a live record appends to
// results (subject to metering), a tombstone only removes, since the key
// is then known absent. Unfound keys stay for older buckets.
func (s *BucketSnapshot) LoadKeysWithLimits(keys *KeySet, results *[]xdr.LedgerEntry, meter KeyMeter) error {
	if s.IsEmpty() {
		return nil
	}

	ix, err := s.bucket.Index()
	if err != nil {
		return err
	}
	pageSize := ix.PageSize()

	var cursor bucket.IndexCursor
	i := 0
	for i < keys.Len() {
		item := keys.items[i]

		if meter != nil {
			// A key the meter refuses (some transaction reading it
			// cannot afford even the key's size) is charged and dropped
			// before any I/O: serialized keys never exceed their
			// entries, so the entry could not have fit either.
			keySize := len(item.enc)
			if !meter.CanLoad(item.key, keySize) {
				meter.UpdateReadQuotasForKey(item.key, keySize)
				keys.remove(i)
				continue
			}
		}

		offset, ok, next := ix.Scan(cursor, item.enc)
		cursor = next
		if ok {
			entry, err := s.GetEntryAtOffset(item.key, offset, pageSize)
			if err != nil {
				return err
			}
			if entry != nil {
				if entry.Type != xdr.BucketEntryTypeDeadentry {
					live := *entry.LiveEntry
					addEntry := true
					if meter != nil {
						entrySize, err := ledger.SerializedSize(live)
						if err != nil {
							return err
						}
						addEntry = meter.CanLoad(item.key, entrySize)
						meter.UpdateReadQuotasForKey(item.key, entrySize)
					}
					if addEntry {
						*results = append(*results, live)
					}
				}
				keys.remove(i)
				continue
			}
		}

		i++
	}
	return nil
}
