// Package metrics provides operational metrics collection.
//
// Collectors are registered on a private registry so multiple server
// instances (and tests) never collide. Metrics are exposed in Prometheus
// format and can be scraped by standard monitoring infrastructure.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Delivery outcome label values.
const (
	OutcomeDelivered = "delivered"
	OutcomeFailed    = "failed"
)

// Metrics bundles the engine's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	RunsInstantiated      prometheus.Counter
	InstantiateDuration   prometheus.Histogram
	StatusTransitions     prometheus.Counter
	NotificationJobs      prometheus.Counter
	NotificationDelivered *prometheus.CounterVec
}

// New creates a metrics bundle with all collectors registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		RunsInstantiated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "firmdesk_procedure_runs_instantiated_total",
			Help: "Number of procedure runs created.",
		}),
		InstantiateDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "firmdesk_procedure_instantiate_duration_seconds",
			Help:    "Wall time spent creating a run graph.",
			Buckets: prometheus.DefBuckets,
		}),
		StatusTransitions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "firmdesk_procedure_status_transitions_total",
			Help: "Number of action run status transitions applied.",
		}),
		NotificationJobs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "firmdesk_procedure_notification_jobs_total",
			Help: "Number of notification jobs enqueued after instantiation.",
		}),
		NotificationDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "firmdesk_procedure_notification_deliveries_total",
			Help: "Per-recipient notification delivery attempts by outcome.",
		}, []string{"outcome"}),
	}
	registry.MustRegister(
		m.RunsInstantiated,
		m.InstantiateDuration,
		m.StatusTransitions,
		m.NotificationJobs,
		m.NotificationDelivered,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
