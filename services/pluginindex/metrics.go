package pluginindex

import (
	"sync"

	"github.com/bsv-blockchain/plugindex/util"
	"github.com/ordishs/gocore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusPluginIndexEvents             *prometheus.CounterVec
	prometheusPluginIndexEventDuration      *prometheus.HistogramVec
	prometheusPluginIndexInvocations        *prometheus.CounterVec
	prometheusPluginIndexInvocationFailures *prometheus.CounterVec
	prometheusPluginIndexInvocationDuration *prometheus.HistogramVec
	prometheusPluginIndexEvictions          *prometheus.CounterVec
	prometheusPluginIndexConflicts          prometheus.Counter
	prometheusPluginIndexMempoolTracked     prometheus.Gauge
	prometheusPluginIndexQueries            *prometheus.CounterVec
	prometheusPluginIndexHTTPDuration       *prometheus.HistogramVec
)

var (
	prometheusMetricsInitOnce sync.Once

	// pluginIndexStat is the gocore stat every traced operation of the index
	// hangs off.
	pluginIndexStat = gocore.NewStat("pluginindex")
)

func initPrometheusMetrics() {
	prometheusMetricsInitOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusPluginIndexEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "plugindex",
			Subsystem: "pluginindex",
			Name:      "events",
			Help:      "Number of host events processed by the plugin index",
		},
		[]string{"event"},
	)

	prometheusPluginIndexEventDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "plugindex",
			Subsystem: "pluginindex",
			Name:      "event_duration",
			Help:      "Duration of host event processing in the plugin index",
			Buckets:   util.MetricsBucketsMilliSeconds,
		},
		[]string{"event"},
	)

	prometheusPluginIndexInvocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "plugindex",
			Subsystem: "pluginindex",
			Name:      "invocations",
			Help:      "Number of plugin invocations",
		},
		[]string{"plugin"},
	)

	prometheusPluginIndexInvocationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "plugindex",
			Subsystem: "pluginindex",
			Name:      "invocation_failures",
			Help:      "Number of plugin invocations whose results were discarded",
		},
		[]string{"plugin", "reason"},
	)

	prometheusPluginIndexInvocationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "plugindex",
			Subsystem: "pluginindex",
			Name:      "invocation_duration",
			Help:      "Duration of plugin invocations",
			Buckets:   util.MetricsBucketsMicroSeconds,
		},
		[]string{"plugin"},
	)

	prometheusPluginIndexEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "plugindex",
			Subsystem: "pluginindex",
			Name:      "evictions",
			Help:      "Number of transactions evicted from the plugin index",
		},
		[]string{"reason"},
	)

	prometheusPluginIndexConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "plugindex",
			Subsystem: "pluginindex",
			Name:      "conflicts",
			Help:      "Number of refused writes of plugin data differing from the stored records",
		},
	)

	prometheusPluginIndexMempoolTracked = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "plugindex",
			Subsystem: "pluginindex",
			Name:      "mempool_tracked",
			Help:      "Number of mempool transactions tracked for expiry",
		},
	)

	prometheusPluginIndexQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "plugindex",
			Subsystem: "pluginindex",
			Name:      "queries",
			Help:      "Number of plugin data queries",
		},
		[]string{"query", "status"},
	)

	prometheusPluginIndexHTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "plugindex",
			Subsystem: "pluginindex",
			Name:      "http_duration",
			Help:      "Duration of HTTP requests served by the plugin index",
			Buckets:   util.MetricsBucketsMilliSeconds,
		},
		[]string{"handler"},
	)
}
