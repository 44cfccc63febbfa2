package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initQueryMetrics() {
	r.PointLoadDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledgerdb_point_load_duration_seconds",
			Help:    "Point lookup latency by ledger entry type",
			Buckets: []float64{0.00001, 0.0001, 0.001, 0.005, 0.01, 0.05, 0.1},
		},
		[]string{"entry_type"},
	)

	r.BulkLoadDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledgerdb_bulk_load_duration_seconds",
			Help:    "Bulk load latency by query tag",
			Buckets: []float64{0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		},
		[]string{"tag"},
	)

	r.BulkLoadKeysTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledgerdb_bulk_load_keys_total",
			Help: "Keys requested by bulk loads, by query tag",
		},
		[]string{"tag"},
	)

	r.SnapshotRefreshes = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "ledgerdb_snapshot_refreshes_total",
			Help: "Searchable snapshot pointer refreshes",
		},
	)

	r.InflationScanBytes = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "ledgerdb_inflation_scan_bytes_total",
			Help: "Bytes scanned by inflation winner aggregation",
		},
	)
}
