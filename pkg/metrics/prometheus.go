package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all prometheus metrics for the flight status service.
type Metrics struct {
	CacheHits         prometheus.Counter
	CacheMisses       prometheus.Counter
	VendorRaceLatency prometheus.Histogram
	VendorFailures    *prometheus.CounterVec
	DeliveriesSent    prometheus.Counter
	DeliveriesFailed  prometheus.Counter
	DeadLetterDepth   prometheus.Gauge
	ErrorsCount       *prometheus.CounterVec
}

// NewMetrics creates new prometheus metrics registered with the
// default registry.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flight_cache_hits_total",
			Help:      "The total number of flight lookups served from cache",
		}),
		CacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flight_cache_misses_total",
			Help:      "The total number of flight lookups that missed the cache",
		}),
		VendorRaceLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "vendor_race_duration_seconds",
			Help:      "Wall time of the concurrent vendor race, success or not",
			Buckets:   prometheus.DefBuckets,
		}),
		VendorFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vendor_failures_total",
			Help:      "The total number of failed vendor calls",
		}, []string{"vendor"}),
		DeliveriesSent: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_deliveries_sent_total",
			Help:      "The total number of successful webhook deliveries",
		}),
		DeliveriesFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_deliveries_failed_total",
			Help:      "The total number of failed webhook deliveries",
		}),
		DeadLetterDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "webhook_dead_letter_depth",
			Help:      "Current number of entries in the dead-letter queue",
		}),
		ErrorsCount: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "The total number of errors",
		}, []string{"operation"}),
	}
}
