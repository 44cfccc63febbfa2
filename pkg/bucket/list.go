package bucket

import (
	"fmt"

	"github.com/stellar/go/xdr"
)

// NumLevels is the fixed height of a bucket list.
const NumLevels = 11

// Level pairs the two buckets held at one level of the list: curr
// accumulates recent merges, snap is the material scheduled to spill into
// the next level.
type Level struct {
	Curr *Bucket
	Snap *Bucket
}

// BucketList is a fixed sequence of levels, level 0 newest. The list
// itself never edits bucket contents; the external close driver mutates
// it only by installing newly produced buckets.
type BucketList struct {
	variant Variant
	levels  [NumLevels]Level
}

// NewBucketList creates a list with every slot holding the empty
// sentinel.
func NewBucketList(variant Variant) *BucketList {
	bl := &BucketList{variant: variant}
	for i := range bl.levels {
		bl.levels[i] = Level{
			Curr: EmptyBucket(variant),
			Snap: EmptyBucket(variant),
		}
	}
	return bl
}

// Variant returns the entry form the list holds.
func (bl *BucketList) Variant() Variant {
	return bl.variant
}

// GetLevel returns the level at index i.
func (bl *BucketList) GetLevel(i int) Level {
	return bl.levels[i]
}

// SetLevel installs externally produced buckets at level i. Nil slots
// keep their current bucket.
func (bl *BucketList) SetLevel(i int, curr, snap *Bucket) error {
	if i < 0 || i >= NumLevels {
		return fmt.Errorf("level %d out of range", i)
	}
	if curr != nil {
		if !curr.IsEmpty() && curr.Variant() != bl.variant {
			return opError("SetLevel", "", ErrVariantMismatch)
		}
		bl.levels[i].Curr = curr
	}
	if snap != nil {
		if !snap.IsEmpty() && snap.Variant() != bl.variant {
			return opError("SetLevel", "", ErrVariantMismatch)
		}
		bl.levels[i].Snap = snap
	}
	return nil
}

// ReferencedHashes returns the set of non-sentinel hashes the list holds,
// used as the keep set for manager retention.
func (bl *BucketList) ReferencedHashes() map[xdr.Hash]bool {
	keep := make(map[xdr.Hash]bool)
	for _, lev := range bl.levels {
		if !lev.Curr.IsEmpty() {
			keep[lev.Curr.Hash()] = true
		}
		if !lev.Snap.IsEmpty() {
			keep[lev.Snap.Hash()] = true
		}
	}
	return keep
}
