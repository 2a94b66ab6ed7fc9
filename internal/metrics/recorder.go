// Package metrics exposes prometheus counters for fallbacks, migrations,
// exports and notification emails.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "proofing"

// Recorder owns a private registry so tests can create independent instances.
type Recorder struct {
	registry  *prometheus.Registry
	fallbacks *prometheus.CounterVec
	migration *prometheus.CounterVec
	exports   *prometheus.CounterVec
	emails    *prometheus.CounterVec
}

// NewRecorder registers the proofing collectors plus the Go runtime collectors.
func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()
	recorder := &Recorder{
		registry: registry,
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_fallbacks_total",
			Help:      "Operations served from the device-local store instead of the shared store.",
		}, []string{"operation", "reason"}),
		migration: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "migrations_total",
			Help:      "Local-to-shared migration attempts by outcome.",
		}, []string{"outcome"}),
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exports_total",
			Help:      "Selection exports by type and outcome.",
		}, []string{"type", "outcome"}),
		emails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emails_total",
			Help:      "Selection notification emails by outcome.",
		}, []string{"outcome"}),
	}
	registry.MustRegister(
		recorder.fallbacks,
		recorder.migration,
		recorder.exports,
		recorder.emails,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return recorder
}

// Fallback counts an operation that used device-local data.
func (r *Recorder) Fallback(operation, reason string) {
	if r == nil {
		return
	}
	r.fallbacks.WithLabelValues(operation, reason).Inc()
}

// Migration counts a migration attempt.
func (r *Recorder) Migration(outcome string) {
	if r == nil {
		return
	}
	r.migration.WithLabelValues(outcome).Inc()
}

// Export counts a selection export.
func (r *Recorder) Export(exportType, outcome string) {
	if r == nil {
		return
	}
	r.exports.WithLabelValues(exportType, outcome).Inc()
}

// Email counts a notification attempt.
func (r *Recorder) Email(outcome string) {
	if r == nil {
		return
	}
	r.emails.WithLabelValues(outcome).Inc()
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
