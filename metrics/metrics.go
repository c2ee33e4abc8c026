// Package metrics exposes Prometheus counters for key lifecycle, sealing and
// lifecycle decisions. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the clinical records encryption module.
type Metrics struct {
	Seals            *prometheus.CounterVec
	Opens            *prometheus.CounterVec
	Decisions        *prometheus.CounterVec
	Rotations        *prometheus.CounterVec
	Revocations      *prometheus.CounterVec
	IntegrityAlerts  *prometheus.CounterVec
	RotationDuration prometheus.Histogram
}

// New creates the metrics and registers them with reg. A nil reg creates
// unregistered collectors.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Seals: f.NewCounterVec(prometheus.CounterOpts{
			Name: "clinical_records_seals_total",
			Help: "Total number of values sealed, by key purpose and algorithm",
		}, []string{"purpose", "algorithm"}),
		Opens: f.NewCounterVec(prometheus.CounterOpts{
			Name: "clinical_records_opens_total",
			Help: "Total number of open attempts, by key purpose and result",
		}, []string{"purpose", "result"}),
		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "clinical_records_lifecycle_decisions_total",
			Help: "Total number of lifecycle decisions, by intent and outcome",
		}, []string{"intent", "outcome"}),
		Rotations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "clinical_records_key_rotations_total",
			Help: "Total number of key rotations, by purpose and trigger",
		}, []string{"purpose", "trigger"}),
		Revocations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "clinical_records_key_revocations_total",
			Help: "Total number of key revocations, by purpose",
		}, []string{"purpose"}),
		IntegrityAlerts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "clinical_records_integrity_alerts_total",
			Help: "Total number of integrity incidents raised, by failure reason",
		}, []string{"reason"}),
		RotationDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "clinical_records_key_rotation_duration_seconds",
			Help:    "Duration of key rotations including KMS wrapping and persistence",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
	}
}

// IncrementSeal records a successful seal
func (m *Metrics) IncrementSeal(purpose, algorithm string) {
	if m == nil {
		return
	}
	m.Seals.WithLabelValues(purpose, algorithm).Inc()
}

// IncrementOpen records an open attempt; result is "ok" or a failure reason
func (m *Metrics) IncrementOpen(purpose, result string) {
	if m == nil {
		return
	}
	m.Opens.WithLabelValues(purpose, result).Inc()
}

// IncrementDecision records an allow or deny decision
func (m *Metrics) IncrementDecision(intent string, allowed bool) {
	if m == nil {
		return
	}
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	m.Decisions.WithLabelValues(intent, outcome).Inc()
}

// ObserveRotation records a completed rotation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveRotation(purpose, trigger string, start time.Time) {
	if m == nil {
		return
	}
	m.Rotations.WithLabelValues(purpose, trigger).Inc()
	m.RotationDuration.Observe(time.Since(start).Seconds())
}

// IncrementRevocation records a key revocation
func (m *Metrics) IncrementRevocation(purpose string) {
	if m == nil {
		return
	}
	m.Revocations.WithLabelValues(purpose).Inc()
}

// IncrementIntegrityAlert records an integrity incident
func (m *Metrics) IncrementIntegrityAlert(reason string) {
	if m == nil {
		return
	}
	m.IntegrityAlerts.WithLabelValues(reason).Inc()
}
