// Package metrics exposes Prometheus instrumentation for evaluations.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opensource-finance/regtools/internal/domain"
)

// Metrics provides observability for the evaluation pipeline.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Evaluations by source ("api", "worker", "batch") and status
	Evaluations *prometheus.CounterVec

	// Triggered indicators by id and severity
	IndicatorTriggers *prometheus.CounterVec

	// Engine evaluation latency
	EvaluateLatency prometheus.Histogram

	// HTTP request latency by route and status code
	RequestLatency *prometheus.HistogramVec
}

// New creates a Metrics instance on its own registry, with Go runtime and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		Evaluations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "regtools_evaluations_total",
			Help: "Total profile evaluations by source and status",
		}, []string{"source", "status"}),

		IndicatorTriggers: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "regtools_indicator_triggers_total",
			Help: "Total triggered indicators by indicator id and severity",
		}, []string{"indicator", "severity"}),

		EvaluateLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "regtools_evaluate_duration_seconds",
			Help:    "Duration of a single profile evaluation",
			Buckets: []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05},
		}),

		RequestLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "regtools_http_request_duration_seconds",
			Help:    "Duration of HTTP requests by route and status code",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "code"}),
	}
}

// RecordReport counts an evaluated report and each of its triggered indicators.
func (m *Metrics) RecordReport(source string, report *domain.EvaluationReport, d time.Duration) {
	if m == nil || report == nil {
		return
	}

	status := domain.StatusNoAlert
	if report.Triggered {
		status = domain.StatusAlert
	}
	m.Evaluations.WithLabelValues(source, status).Inc()
	m.EvaluateLatency.Observe(d.Seconds())

	for _, r := range report.Results {
		if r.Triggered {
			m.IndicatorTriggers.WithLabelValues(strconv.Itoa(r.ID), r.Severity.String()).Inc()
		}
	}
}

// ObserveRequest records the duration of an HTTP request.
func (m *Metrics) ObserveRequest(route string, code int, d time.Duration) {
	if m != nil {
		m.RequestLatency.WithLabelValues(route, strconv.Itoa(code)).Observe(d.Seconds())
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
