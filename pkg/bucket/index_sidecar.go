package bucket

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/golang/snappy"
	"github.com/stellar/go/xdr"

	"github.com/dd0wney/cluso-ledgerdb/pkg/metrics"
)

// Index sidecar format:
//   [magic(4) | version(4) | raw_len(4)]
//   [snappy block: page_size(8) | entries | bloom | pool index]
// The sidecar is a cache: a corrupt or version-mismatched file is
// discarded and the index rebuilt from the bucket.
const (
	sidecarMagic   = uint32(0x434c4958) // "CLIX"
	sidecarVersion = uint32(1)
)

// SaveSidecar persists the index next to its bucket file.
func (ix *Index) SaveSidecar(path string) error {
	var raw bytes.Buffer
	w := func(v interface{}) {
		// bytes.Buffer writes cannot fail
		_ = binary.Write(&raw, binary.BigEndian, v)
	}

	w(ix.pageSize)

	w(uint32(len(ix.entries)))
	for _, e := range ix.entries {
		w(uint32(len(e.key)))
		raw.Write(e.key)
		w(e.offset)
	}

	w(ix.bloom.nbits)
	w(uint32(ix.bloom.hashCount))
	w(uint32(len(ix.bloom.bits)))
	raw.Write(ix.bloom.bits)

	w(uint32(len(ix.poolsByAsset)))
	for asset, ids := range ix.poolsByAsset {
		w(uint32(len(asset)))
		raw.WriteString(asset)
		w(uint32(len(ids)))
		for _, id := range ids {
			raw.Write(id[:])
		}
	}

	compressed := snappy.Encode(nil, raw.Bytes())

	var out bytes.Buffer
	_ = binary.Write(&out, binary.BigEndian, sidecarMagic)
	_ = binary.Write(&out, binary.BigEndian, sidecarVersion)
	_ = binary.Write(&out, binary.BigEndian, uint32(raw.Len()))
	out.Write(compressed)

	if err := os.WriteFile(path, out.Bytes(), 0644); err != nil {
		return fmt.Errorf("write index sidecar %s: %w", path, err)
	}
	return nil
}

// LoadIndexSidecar reads a persisted index. Callers fall back to
// NewIndexFromFile on any error.
func LoadIndexSidecar(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read index sidecar %s: %w", path, err)
	}
	if len(data) < 12 {
		return nil, opError("LoadSidecar", path, ErrBucketCorrupt)
	}

	if binary.BigEndian.Uint32(data[0:4]) != sidecarMagic {
		return nil, opError("LoadSidecar", path, ErrBucketCorrupt)
	}
	if binary.BigEndian.Uint32(data[4:8]) != sidecarVersion {
		return nil, opError("LoadSidecar", path, ErrSidecarVersion)
	}
	rawLen := binary.BigEndian.Uint32(data[8:12])

	raw, err := snappy.Decode(make([]byte, rawLen), data[12:])
	if err != nil {
		return nil, fmt.Errorf("decompress index sidecar %s: %w", path, err)
	}

	rd := bytes.NewReader(raw)
	r := func(v interface{}) error {
		return binary.Read(rd, binary.BigEndian, v)
	}

	ix := &Index{poolsByAsset: make(map[string][]xdr.PoolId)}
	if err := r(&ix.pageSize); err != nil {
		return nil, opError("LoadSidecar", path, ErrBucketCorrupt)
	}

	var entryCount uint32
	if err := r(&entryCount); err != nil {
		return nil, opError("LoadSidecar", path, ErrBucketCorrupt)
	}
	ix.entries = make([]indexEntry, 0, entryCount)
	for i := uint32(0); i < entryCount; i++ {
		var keyLen uint32
		if err := r(&keyLen); err != nil {
			return nil, opError("LoadSidecar", path, ErrBucketCorrupt)
		}
		key := make([]byte, keyLen)
		if _, err := rd.Read(key); err != nil {
			return nil, opError("LoadSidecar", path, ErrBucketCorrupt)
		}
		var offset int64
		if err := r(&offset); err != nil {
			return nil, opError("LoadSidecar", path, ErrBucketCorrupt)
		}
		ix.entries = append(ix.entries, indexEntry{key: key, offset: offset})
	}

	bloom := &bloomFilter{}
	var hashCount, bitsLen uint32
	if err := r(&bloom.nbits); err != nil {
		return nil, opError("LoadSidecar", path, ErrBucketCorrupt)
	}
	if err := r(&hashCount); err != nil {
		return nil, opError("LoadSidecar", path, ErrBucketCorrupt)
	}
	if err := r(&bitsLen); err != nil {
		return nil, opError("LoadSidecar", path, ErrBucketCorrupt)
	}
	bloom.hashCount = int(hashCount)
	bloom.bits = make([]byte, bitsLen)
	if _, err := rd.Read(bloom.bits); err != nil {
		return nil, opError("LoadSidecar", path, ErrBucketCorrupt)
	}
	ix.bloom = bloom

	var poolCount uint32
	if err := r(&poolCount); err != nil {
		return nil, opError("LoadSidecar", path, ErrBucketCorrupt)
	}
	for i := uint32(0); i < poolCount; i++ {
		var assetLen uint32
		if err := r(&assetLen); err != nil {
			return nil, opError("LoadSidecar", path, ErrBucketCorrupt)
		}
		asset := make([]byte, assetLen)
		if _, err := rd.Read(asset); err != nil {
			return nil, opError("LoadSidecar", path, ErrBucketCorrupt)
		}
		var idCount uint32
		if err := r(&idCount); err != nil {
			return nil, opError("LoadSidecar", path, ErrBucketCorrupt)
		}
		ids := make([]xdr.PoolId, idCount)
		for j := uint32(0); j < idCount; j++ {
			if _, err := rd.Read(ids[j][:]); err != nil {
				return nil, opError("LoadSidecar", path, ErrBucketCorrupt)
			}
		}
		ix.poolsByAsset[string(asset)] = ids
	}

	metrics.Default().IndexBuildsTotal.WithLabelValues("sidecar").Inc()
	return ix, nil
}
