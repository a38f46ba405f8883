package util

import "github.com/prometheus/client_golang/prometheus"

// Histogram buckets in seconds.
var (
	// MetricsBucketsMicroSeconds spans 128µs to about 262ms: store reads and
	// single plugin invocations.
	MetricsBucketsMicroSeconds = prometheus.ExponentialBuckets(128e-6, 2, 12)

	// MetricsBucketsMilliSeconds spans 1ms to about 4s: whole host events,
	// which include every plugin run of a block.
	MetricsBucketsMilliSeconds = prometheus.ExponentialBuckets(1e-3, 2, 13)
)
