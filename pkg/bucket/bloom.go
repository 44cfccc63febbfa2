package bucket

import (
	"math"

	"github.com/spaolacci/murmur3"
)

// bloomFilter is a probabilistic membership filter over the keys present
// in a bucket. False positives fall through to the exact index lookup;
// false negatives are impossible.
type bloomFilter struct {
	bits      []byte
	nbits     uint64
	hashCount int
}

const (
	bloomSeed1 = 0xb0c4e77a
	bloomSeed2 = 0x5f2d91cb
)

// newBloomFilter sizes a filter for the expected key count and target
// false positive rate.
//   m = -(n * ln(p)) / (ln(2)^2)
//   k = (m/n) * ln(2)
func newBloomFilter(expectedKeys int, falsePositiveRate float64) *bloomFilter {
	if expectedKeys <= 0 {
		expectedKeys = 1
	}
	if falsePositiveRate <= 0 || falsePositiveRate >= 1 {
		falsePositiveRate = 0.01
	}

	nbits := uint64(math.Ceil(-float64(expectedKeys) * math.Log(falsePositiveRate) / (math.Ln2 * math.Ln2)))
	if nbits < 8 {
		nbits = 8
	}
	hashCount := int(math.Ceil((float64(nbits) / float64(expectedKeys)) * math.Ln2))
	if hashCount < 1 {
		hashCount = 1
	}
	if hashCount > 32 {
		hashCount = 32
	}

	return &bloomFilter{
		bits:      make([]byte, (nbits+7)/8),
		nbits:     nbits,
		hashCount: hashCount,
	}
}

// position computes the i-th bit position for a key via double hashing:
// (h1 + i*h2) mod nbits, with h2 forced odd to avoid clustering.
func (bf *bloomFilter) position(key []byte, i int) uint64 {
	h1 := murmur3.Sum64WithSeed(key, bloomSeed1)
	h2 := murmur3.Sum64WithSeed(key, bloomSeed2) | 1
	return (h1 + uint64(i)*h2) % bf.nbits
}

// add records a key's presence.
func (bf *bloomFilter) add(key []byte) {
	for i := 0; i < bf.hashCount; i++ {
		pos := bf.position(key, i)
		bf.bits[pos/8] |= 1 << (pos % 8)
	}
}

// mayContain reports whether the key might be present.
func (bf *bloomFilter) mayContain(key []byte) bool {
	for i := 0; i < bf.hashCount; i++ {
		pos := bf.position(key, i)
		if bf.bits[pos/8]&(1<<(pos%8)) == 0 {
			return false
		}
	}
	return true
}
