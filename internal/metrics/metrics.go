// Package metrics exposes Prometheus counters for HTTP traffic and
// de-identification outcomes. Only counts and durations are recorded.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/raaihank/deidentifier/internal/config"
	"github.com/raaihank/deidentifier/internal/service"
)

// Collector owns every metric and the registry they live in.
//
// Metrics:
//   - <ns>_http_requests_total: requests by method, route and status
//   - <ns>_http_request_duration_seconds: request latency by route
//   - <ns>_operations_total: completed calls by operation and scope
//   - <ns>_operation_duration_seconds: call latency by operation and scope
//   - <ns>_entities_total: detected entities by operation, scope and type
type Collector struct {
	registry *prometheus.Registry

	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	entities          *prometheus.CounterVec
}

// NewCollector registers the metrics with registry, or with a fresh one when
// registry is nil.
func NewCollector(cfg config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "deidentifier"
	}

	c := &Collector{
		registry: registry,
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests handled",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total number of completed de-identification operations",
			},
			[]string{"operation", "scope"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of de-identification operations in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
			},
			[]string{"operation", "scope"},
		),
		entities: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "entities_total",
				Help:      "Total number of detected entities or fields by type",
			},
			[]string{"operation", "scope", "entity_type"},
		),
	}

	registry.MustRegister(
		c.httpRequests,
		c.httpDuration,
		c.operations,
		c.operationDuration,
		c.entities,
	)
	return c
}

// Observe records a completed operation.
func (c *Collector) Observe(_ context.Context, event service.Event) {
	op, scope := string(event.Operation), string(event.Scope)
	c.operations.WithLabelValues(op, scope).Inc()
	c.operationDuration.WithLabelValues(op, scope).Observe(event.Duration.Seconds())
	for entityType, n := range event.EntityCounts {
		c.entities.WithLabelValues(op, scope, entityType).Add(float64(n))
	}
}

// RecordHTTPRequest records one handled request. route is the matched route
// template so label cardinality stays bounded.
func (c *Collector) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
