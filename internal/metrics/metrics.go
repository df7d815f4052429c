// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package metrics provides Prometheus metrics for the ctgov client.
// Every method is safe on a nil *Metrics, which records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the client's collectors.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RetriesTotal    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	CacheHitsTotal  prometheus.Counter

	PagesTotal   prometheus.Counter
	StudiesTotal prometheus.Counter

	SchemaLoadsTotal *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ctgov_requests_total",
				Help: "HTTP attempts against the API by endpoint and outcome",
			},
			[]string{"endpoint", "outcome"},
		),
		RetriesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ctgov_retries_total",
				Help: "Attempts that were followed by a retry",
			},
			[]string{"endpoint"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ctgov_request_duration_seconds",
				Help:    "Duration of single HTTP attempts",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		CacheHitsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "ctgov_cache_hits_total",
			Help: "Responses served from the in-memory cache",
		}),
		PagesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "ctgov_pages_fetched_total",
			Help: "Study pages fetched by paginated searches",
		}),
		StudiesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "ctgov_studies_fetched_total",
			Help: "Study records yielded by paginated searches",
		}),
		SchemaLoadsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ctgov_schema_loads_total",
				Help: "Schema registry loads by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
	}
}

// ObserveAttempt records one HTTP attempt.
func (m *Metrics) ObserveAttempt(endpoint, outcome string, d time.Duration, retrying bool) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(endpoint, outcome).Inc()
	m.RequestDuration.WithLabelValues(endpoint).Observe(d.Seconds())
	if retrying {
		m.RetriesTotal.WithLabelValues(endpoint).Inc()
	}
}

// CacheHit records a response served from cache.
func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.CacheHitsTotal.Inc()
}

// ObservePage records one fetched page and its study count.
func (m *Metrics) ObservePage(studies int) {
	if m == nil {
		return
	}
	m.PagesTotal.Inc()
	m.StudiesTotal.Add(float64(studies))
}

// ObserveSchemaLoad records a schema load attempt.
func (m *Metrics) ObserveSchemaLoad(kind string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.SchemaLoadsTotal.WithLabelValues(kind, outcome).Inc()
}
