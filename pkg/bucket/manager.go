package bucket

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/stellar/go/xdr"

	"github.com/dd0wney/cluso-ledgerdb/pkg/logging"
	"github.com/dd0wney/cluso-ledgerdb/pkg/metrics"
)

// MergeKey deterministically identifies the inputs of a merge. It keys
// the memoization of empty merge outputs.
type MergeKey struct {
	Level uint32
	Curr  xdr.Hash
	Snap  xdr.Hash
}

// String returns the canonical form used as a map key.
func (k MergeKey) String() string {
	return fmt.Sprintf("%d:%s:%s", k.Level, hex.EncodeToString(k.Curr[:]), hex.EncodeToString(k.Snap[:]))
}

// Manager is the authoritative bucket registry. Once a file is adopted
// under a hash, every future handle for that hash aliases the same
// bucket. Files are deleted only when no holder remains and retention
// permits.
type Manager struct {
	mu          sync.Mutex
	cfg         Config
	log         logging.Logger
	buckets     map[xdr.Hash]*Bucket
	refs        map[xdr.Hash]int
	emptyMerges map[string]struct{}
}

// NewManager creates a manager rooted at cfg.BucketDir, creating the
// directory if needed.
func NewManager(cfg Config, log logging.Logger) (*Manager, error) {
	if log == nil {
		log = logging.NewNopLogger()
	}
	if err := os.MkdirAll(cfg.BucketDir, 0755); err != nil {
		return nil, fmt.Errorf("create bucket dir %s: %w", cfg.BucketDir, err)
	}
	return &Manager{
		cfg:         cfg,
		log:         log.With(logging.Component("bucket-manager")),
		buckets:     make(map[xdr.Hash]*Bucket),
		refs:        make(map[xdr.Hash]int),
		emptyMerges: make(map[string]struct{}),
	}, nil
}

// Config returns the manager's configuration.
func (m *Manager) Config() Config {
	return m.cfg
}

// RandomBucketName returns a fresh temporary file path in dir. Names are
// random until adoption; adopted names derive from the content hash.
func RandomBucketName(dir string) string {
	return filepath.Join(dir, "tmp-bucket-"+uuid.NewString())
}

func (m *Manager) bucketPath(hash xdr.Hash) string {
	return filepath.Join(m.cfg.BucketDir, hex.EncodeToString(hash[:])+".bucket")
}

func (m *Manager) sidecarPath(hash xdr.Hash) string {
	return filepath.Join(m.cfg.BucketDir, hex.EncodeToString(hash[:])+".index")
}

// indexOptions derives the construction options all managed buckets use.
func (m *Manager) indexOptions() IndexOptions {
	return IndexOptions{
		PageSize:               m.cfg.pageSize(),
		BloomFalsePositiveRate: m.cfg.BloomFalsePositiveRate,
	}
}

// AdoptFileAsBucket moves a finalized temporary file into the bucket
// directory under its content hash. Adoption is idempotent: on collision
// the temporary file is discarded and the existing handle returned, with
// the supplied index attached if the existing bucket had none.
func (m *Manager) AdoptFileAsBucket(tmpPath string, hash xdr.Hash, variant Variant, mergeKey *MergeKey, index *Index) (*Bucket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.buckets[hash]; ok {
		if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
			return nil, opError("Adopt", tmpPath, err)
		}
		if index != nil {
			existing.setIndex(index)
		}
		metrics.Default().RecordAdoption(variant.String(), "existing")
		m.log.Debug("bucket already adopted", logging.BucketHash(existing.HexHash()))
		return existing, nil
	}

	finalPath := m.bucketPath(hash)
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return nil, opError("Adopt", tmpPath, err)
	}

	b := &Bucket{
		path:      finalPath,
		hash:      hash,
		variant:   variant,
		indexOpts: m.indexOptions(),
	}

	if index == nil && m.cfg.IndexSidecars {
		// A sidecar left by a previous process is a valid cache.
		if ix, err := LoadIndexSidecar(m.sidecarPath(hash)); err == nil && ix.pageSize == m.cfg.pageSize() {
			index = ix
		}
	}
	if index != nil {
		b.setIndex(index)
		if m.cfg.IndexSidecars {
			if err := index.SaveSidecar(m.sidecarPath(hash)); err != nil {
				m.log.Warn("index sidecar write failed",
					logging.BucketHash(b.HexHash()), logging.Error(err))
			}
		}
	}

	m.buckets[hash] = b
	metrics.Default().RecordAdoption(variant.String(), "new")
	m.log.Info("bucket adopted",
		logging.BucketHash(b.HexHash()),
		logging.Variant(variant.String()))
	return b, nil
}

// GetBucketIfExists returns the adopted bucket for a hash, if any.
func (m *Manager) GetBucketIfExists(hash xdr.Hash) (*Bucket, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.buckets[hash]
	return b, ok
}

// NoteEmptyMergeOutput memoizes that a merge produced no output, so the
// driver can skip re-running it.
func (m *Manager) NoteEmptyMergeOutput(key MergeKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emptyMerges[key.String()] = struct{}{}
	metrics.Default().EmptyMergeOutputsTotal.Inc()
	m.log.Debug("empty merge output noted", logging.String("merge_key", key.String()))
}

// HasEmptyMergeOutput reports whether a merge is known to produce nothing.
func (m *Manager) HasEmptyMergeOutput(key MergeKey) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.emptyMerges[key.String()]
	return ok
}

// Retain records an external holder of the bucket (a snapshot or an
// in-flight merge).
func (m *Manager) Retain(hash xdr.Hash) {
	if hash == (xdr.Hash{}) {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refs[hash]++
}

// Release drops a holder recorded with Retain.
func (m *Manager) Release(hash xdr.Hash) {
	if hash == (xdr.Hash{}) {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.refs[hash] > 0 {
		m.refs[hash]--
	}
}

// ForgetUnreferenced deletes files for buckets with no recorded holders
// outside the keep set. The keep set is the hashes the current bucket
// list still references.
func (m *Manager) ForgetUnreferenced(keep map[xdr.Hash]bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for hash, b := range m.buckets {
		if keep[hash] || m.refs[hash] > 0 {
			continue
		}
		delete(m.buckets, hash)
		delete(m.refs, hash)
		if err := os.Remove(b.path); err != nil && !os.IsNotExist(err) {
			m.log.Warn("bucket file removal failed",
				logging.BucketHash(b.HexHash()), logging.Error(err))
		}
		_ = os.Remove(m.sidecarPath(hash))
		m.log.Debug("bucket forgotten", logging.BucketHash(b.HexHash()))
	}
}
