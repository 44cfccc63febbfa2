package snapshot

import (
	"github.com/dd0wney/cluso-ledgerdb/pkg/bucket"
)

// LevelSnapshot captures one level's (curr, snap) pair.
type LevelSnapshot struct {
	Curr *BucketSnapshot
	Snap *BucketSnapshot
}

// BucketListSnapshot is an immutable view of the full bucket list at a
// specific ledger sequence. Copies share bucket handles but never file
// streams, so each reader pays only for the buckets it touches.
type BucketListSnapshot struct {
	levels    []LevelSnapshot
	ledgerSeq uint32
}

// NewBucketListSnapshot captures the current state of a bucket list.
func NewBucketListSnapshot(bl *bucket.BucketList, ledgerSeq uint32) *BucketListSnapshot {
	s := &BucketListSnapshot{
		levels:    make([]LevelSnapshot, 0, bucket.NumLevels),
		ledgerSeq: ledgerSeq,
	}
	for i := 0; i < bucket.NumLevels; i++ {
		lev := bl.GetLevel(i)
		s.levels = append(s.levels, LevelSnapshot{
			Curr: NewBucketSnapshot(lev.Curr),
			Snap: NewBucketSnapshot(lev.Snap),
		})
	}
	return s
}

// LedgerSeq returns the ledger sequence the snapshot was captured at.
func (s *BucketListSnapshot) LedgerSeq() uint32 {
	return s.ledgerSeq
}

// Levels returns the captured levels, level 0 newest.
func (s *BucketListSnapshot) Levels() []LevelSnapshot {
	return s.levels
}

// copy clones the snapshot for a new reader: bucket handles are shared,
// file streams are not.
func (s *BucketListSnapshot) copy() *BucketListSnapshot {
	dup := &BucketListSnapshot{
		levels:    make([]LevelSnapshot, 0, len(s.levels)),
		ledgerSeq: s.ledgerSeq,
	}
	for _, lev := range s.levels {
		dup.levels = append(dup.levels, LevelSnapshot{
			Curr: NewBucketSnapshot(lev.Curr.RawBucket()),
			Snap: NewBucketSnapshot(lev.Snap.RawBucket()),
		})
	}
	return dup
}

// close releases every reader-owned file handle in the snapshot.
func (s *BucketListSnapshot) close() {
	for _, lev := range s.levels {
		_ = lev.Curr.Close()
		_ = lev.Snap.Close()
	}
}
