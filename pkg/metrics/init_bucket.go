package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initBucketMetrics() {
	r.BucketsAdoptedTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledgerdb_buckets_adopted_total",
			Help: "Bucket files adopted into the manager",
		},
		[]string{"variant", "status"},
	)

	r.BucketBytesWrittenTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "ledgerdb_bucket_bytes_written_total",
			Help: "Bytes written to finalized bucket files",
		},
	)

	r.BucketRecordsWrittenTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "ledgerdb_bucket_records_written_total",
			Help: "Records written to finalized bucket files",
		},
	)

	r.MergeActualWrites = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "ledgerdb_merge_actual_writes_total",
			Help: "Output iterator buffer flushes caused by a greater key",
		},
	)

	r.MergeBufferUpdates = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "ledgerdb_merge_buffer_updates_total",
			Help: "Output iterator buffer replacements",
		},
	)

	r.MergeTombstoneElisions = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "ledgerdb_merge_tombstone_elisions_total",
			Help: "Tombstones dropped at the bottom level",
		},
	)

	r.MergeLiveToInitRewrites = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "ledgerdb_merge_live_to_init_rewrites_total",
			Help: "LIVE records rewritten to INIT at the bottom level",
		},
	)

	r.EmptyMergeOutputsTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "ledgerdb_empty_merge_outputs_total",
			Help: "Merges that produced no records",
		},
	)

	r.IndexBuildsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledgerdb_index_builds_total",
			Help: "Bucket index constructions",
		},
		[]string{"source"},
	)

	r.BloomLookupsTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "ledgerdb_bloom_lookups_total",
			Help: "Bloom filter probes",
		},
	)

	r.BloomMissesTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "ledgerdb_bloom_misses_total",
			Help: "Lookups rejected by the bloom filter or page scan",
		},
	)
}
