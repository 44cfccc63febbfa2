// Package metrics exposes prometheus instrumentation for the bucket
// storage core.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all metrics for the storage core.
type Registry struct {
	// Bucket / merge metrics
	BucketsAdoptedTotal       *prometheus.CounterVec
	BucketBytesWrittenTotal   prometheus.Counter
	BucketRecordsWrittenTotal prometheus.Counter
	MergeActualWrites         prometheus.Counter
	MergeBufferUpdates        prometheus.Counter
	MergeTombstoneElisions    prometheus.Counter
	MergeLiveToInitRewrites   prometheus.Counter
	EmptyMergeOutputsTotal    prometheus.Counter
	IndexBuildsTotal          *prometheus.CounterVec
	BloomLookupsTotal         prometheus.Counter
	BloomMissesTotal          prometheus.Counter

	// Query metrics
	PointLoadDuration  *prometheus.HistogramVec
	BulkLoadDuration   *prometheus.HistogramVec
	BulkLoadKeysTotal  *prometheus.CounterVec
	SnapshotRefreshes  prometheus.Counter
	InflationScanBytes prometheus.Counter

	registry *prometheus.Registry
}

var (
	defaultRegistry *Registry
	once            sync.Once
)

// NewRegistry creates a registry with all storage metrics registered.
func NewRegistry() *Registry {
	r := &Registry{registry: prometheus.NewRegistry()}
	r.initBucketMetrics()
	r.initQueryMetrics()
	return r
}

// Default returns the process-wide registry instance.
func Default() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// Prometheus returns the underlying prometheus registry for exposition.
func (r *Registry) Prometheus() *prometheus.Registry {
	return r.registry
}
