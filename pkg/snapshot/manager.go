package snapshot

import (
	"sync"
	"time"

	"github.com/stellar/go/xdr"

	"github.com/dd0wney/cluso-ledgerdb/pkg/bucket"
	"github.com/dd0wney/cluso-ledgerdb/pkg/logging"
	"github.com/dd0wney/cluso-ledgerdb/pkg/metrics"
)

// Manager publishes the latest bucket-list snapshot to readers. The
// close driver installs a new snapshot per ledger; readers refresh their
// pointer at every query entry point and otherwise run lock-free against
// their stable copy.
type Manager struct {
	mu      sync.RWMutex
	current *BucketListSnapshot
	log     logging.Logger
}

// NewManager creates a snapshot manager with no snapshot installed.
func NewManager(log logging.Logger) *Manager {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Manager{log: log.With(logging.Component("snapshot-manager"))}
}

// UpdateCurrentSnapshot captures the bucket list at a ledger sequence
// and makes it the snapshot new queries see. Older snapshots stay valid
// for the readers still holding them.
func (m *Manager) UpdateCurrentSnapshot(bl *bucket.BucketList, ledgerSeq uint32) {
	snap := NewBucketListSnapshot(bl, ledgerSeq)
	m.mu.Lock()
	m.current = snap
	m.mu.Unlock()
	m.log.Debug("snapshot installed", logging.LedgerSeq(ledgerSeq))
}

// MaybeUpdateSnapshot swaps the reader's snapshot pointer for a copy of
// the latest one if it is stale. Idempotent; a no-op when already
// latest.
func (m *Manager) MaybeUpdateSnapshot(snap **BucketListSnapshot) {
	m.mu.RLock()
	current := m.current
	m.mu.RUnlock()

	if current == nil {
		return
	}
	if *snap != nil && (*snap).ledgerSeq == current.ledgerSeq {
		return
	}
	if *snap != nil {
		(*snap).close()
	}
	*snap = current.copy()
	metrics.Default().SnapshotRefreshes.Inc()
}

// PointLoadTimer returns a stop function observing the elapsed time of
// one point lookup, labelled by entry type.
func (m *Manager) PointLoadTimer(entryType xdr.LedgerEntryType) func() {
	start := time.Now()
	return func() {
		metrics.Default().ObservePointLoad(entryType.String(), time.Since(start))
	}
}

// RecordBulkLoadMetrics returns a stop function observing one bulk load,
// labelled by query tag.
func (m *Manager) RecordBulkLoadMetrics(tag string, keyCount int) func() {
	start := time.Now()
	return func() {
		metrics.Default().ObserveBulkLoad(tag, keyCount, time.Since(start))
	}
}

// NewSearchableSnapshot creates a query handle bound to this manager.
func (m *Manager) NewSearchableSnapshot() *SearchableSnapshot {
	ss := &SearchableSnapshot{mgr: m}
	m.MaybeUpdateSnapshot(&ss.snap)
	return ss
}
