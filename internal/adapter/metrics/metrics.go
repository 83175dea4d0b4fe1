package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RelayMetrics holds all Prometheus metrics for the relay service.
type RelayMetrics struct {
	EventsTotal      *prometheus.CounterVec
	DispatchDuration prometheus.Histogram
	GeoLookupFails   prometheus.Counter
	TenantMisses     prometheus.Counter
	RateLimited      prometheus.Counter
	AuditDropped     prometheus.Counter
}

// NewRelayMetrics initializes and registers the Prometheus metrics.
func NewRelayMetrics() *RelayMetrics {
	return &RelayMetrics{
		EventsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "conversion_relay",
			Subsystem: "events",
			Name:      "total",
			Help:      "Total number of relayed events by status.",
		}, []string{"status"}), // status: dispatched, init, error_validation, error_dispatch, error_internal
		DispatchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "conversion_relay",
			Subsystem: "dispatch",
			Name:      "duration_seconds",
			Help:      "Latency of conversion API submissions.",
			Buckets:   prometheus.DefBuckets,
		}),
		GeoLookupFails: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "conversion_relay",
			Subsystem: "geo",
			Name:      "lookup_failures_total",
			Help:      "Total number of geolocation lookups that degraded to a null location.",
		}),
		TenantMisses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "conversion_relay",
			Subsystem: "tenant",
			Name:      "misses_total",
			Help:      "Total number of content ids with no tenant configuration.",
		}),
		RateLimited: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "conversion_relay",
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Total number of requests rejected by the rate limiter.",
		}),
		AuditDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "conversion_relay",
			Subsystem: "audit",
			Name:      "dropped_total",
			Help:      "Total number of audit trail appends that were dropped.",
		}),
	}
}
