package metrics

import (
	"time"
)

// ObservePointLoad records a point lookup with its duration.
func (r *Registry) ObservePointLoad(entryType string, duration time.Duration) {
	r.PointLoadDuration.WithLabelValues(entryType).Observe(duration.Seconds())
}

// ObserveBulkLoad records a bulk load with its key count and duration.
func (r *Registry) ObserveBulkLoad(tag string, keys int, duration time.Duration) {
	r.BulkLoadKeysTotal.WithLabelValues(tag).Add(float64(keys))
	r.BulkLoadDuration.WithLabelValues(tag).Observe(duration.Seconds())
}

// RecordAdoption records a bucket adoption outcome.
// status is "new" or "existing".
func (r *Registry) RecordAdoption(variant, status string) {
	r.BucketsAdoptedTotal.WithLabelValues(variant, status).Inc()
}

// RecordBucketWritten records a finalized bucket's size.
func (r *Registry) RecordBucketWritten(records, bytes uint64) {
	r.BucketRecordsWrittenTotal.Add(float64(records))
	r.BucketBytesWrittenTotal.Add(float64(bytes))
}
