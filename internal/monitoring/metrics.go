package monitoring

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	HttpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"path", "method", "code"},
	)

	HttpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	ActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_connections",
			Help: "Number of active connections",
		},
	)

	StoreOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docstore_operations_total",
			Help: "Total number of document store operations",
		},
		[]string{"backend", "op", "result"},
	)

	StoreOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docstore_operation_duration_seconds",
			Help:    "Duration of document store operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "op"},
	)

	WorkerEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_events_total",
			Help: "Total number of events consumed from Kafka",
		},
		[]string{"key", "result"},
	)

	TagsCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tags_cache_lookups_total",
			Help: "Tag list cache lookups by result",
		},
		[]string{"result"},
	)
)

var registerOnce sync.Once

// Register adds every collector to the default registry. Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HttpRequestsTotal,
			HttpRequestDuration,
			ActiveConnections,
			StoreOperations,
			StoreOperationDuration,
			WorkerEvents,
			TagsCacheLookups,
		)
	})
}
