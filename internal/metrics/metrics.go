// Package metrics exposes Prometheus instrumentation for the fee ledger.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "jnschool"

type Metrics struct {
	registry *prometheus.Registry

	admissions      *prometheus.CounterVec
	confirmations   *prometheus.CounterVec
	collectedPaise  *prometheus.CounterVec
	eventsPublished *prometheus.CounterVec
	eventsHandled   *prometheus.CounterVec
	numberConflicts prometheus.Counter
	httpDuration    *prometheus.HistogramVec
	httpFlagged     *prometheus.CounterVec
}

// New registers every collector on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admissions_total",
			Help:      "Admissions and re-admissions by kind and outcome.",
		}, []string{"kind", "outcome"}),
		confirmations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fee_confirmations_total",
			Help:      "Single-month payment confirmations by outcome.",
		}, []string{"outcome"}),
		collectedPaise: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fee_collected_paise_total",
			Help:      "Amount recorded as paid, in paise, by stream.",
		}, []string{"stream"}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_events_published_total",
			Help:      "Ledger events handed to the broker by type and outcome.",
		}, []string{"type", "outcome"}),
		eventsHandled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_events_handled_total",
			Help:      "Ledger events processed by the worker by type and outcome.",
		}, []string{"type", "outcome"}),
		numberConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identifier_conflicts_total",
			Help:      "Admissions retried after a duplicate registration or roll number.",
		}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status code.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "code"}),
		httpFlagged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_flagged_requests_total",
			Help:      "Requests rate limited or flagged as suspicious, by reason.",
		}, []string{"reason"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.admissions,
		m.confirmations,
		m.collectedPaise,
		m.eventsPublished,
		m.eventsHandled,
		m.numberConflicts,
		m.httpDuration,
		m.httpFlagged,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Admission(kind string, err error) {
	if m == nil {
		return
	}
	m.admissions.WithLabelValues(kind, outcome(err)).Inc()
}

func (m *Metrics) Confirmation(err error) {
	if m == nil {
		return
	}
	m.confirmations.WithLabelValues(outcome(err)).Inc()
}

// Collected adds paise recorded against stream ("school" or "bus").
func (m *Metrics) Collected(stream string, paise int64) {
	if m == nil || paise <= 0 {
		return
	}
	m.collectedPaise.WithLabelValues(stream).Add(float64(paise))
}

func (m *Metrics) EventPublished(eventType string, err error) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(eventType, outcome(err)).Inc()
}

func (m *Metrics) EventHandled(eventType string, err error) {
	if m == nil {
		return
	}
	m.eventsHandled.WithLabelValues(eventType, outcome(err)).Inc()
}

func (m *Metrics) NumberConflict() {
	if m == nil {
		return
	}
	m.numberConflicts.Inc()
}

func (m *Metrics) ObserveHTTP(method, route string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, route, strconv.Itoa(code)).Observe(d.Seconds())
}

// Flagged counts a request that was rate limited or looked suspicious.
func (m *Metrics) Flagged(reason string) {
	if m == nil {
		return
	}
	m.httpFlagged.WithLabelValues(reason).Inc()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
