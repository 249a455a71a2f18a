// Package metrics exposes Prometheus counters for listing operations and
// notification delivery.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Operation outcomes.
const (
	OutcomeOK           = "ok"
	OutcomeInvalid      = "invalid"
	OutcomeUnauthorized = "unauthorized"
	OutcomeNotFound     = "not_found"
	OutcomeError        = "error"
)

// Recorder records counters. A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry      *prometheus.Registry
	operations    *prometheus.CounterVec
	notifications *prometheus.CounterVec
}

// NewRecorder creates a Recorder with its own registry, including the Go
// runtime and process collectors.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r := &Recorder{
		registry: reg,
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "apartment_board",
			Name:      "listing_operations_total",
			Help:      "Listing lifecycle operations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "apartment_board",
			Name:      "notifications_total",
			Help:      "Notification attempts by kind and outcome.",
		}, []string{"kind", "outcome"}),
	}
	reg.MustRegister(r.operations, r.notifications)
	return r
}

// Operation counts one lifecycle operation.
func (r *Recorder) Operation(op, outcome string) {
	if r == nil {
		return
	}
	r.operations.WithLabelValues(op, outcome).Inc()
}

// Notification counts one notification attempt.
func (r *Recorder) Notification(kind string, err error) {
	if r == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	r.notifications.WithLabelValues(kind, outcome).Inc()
}

// Registry returns the underlying registry, or nil for a nil Recorder.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
