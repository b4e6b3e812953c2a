package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks pass lifecycle transitions and gate latency.
type Metrics struct {
	Transitions          *prometheus.CounterVec
	VerificationFailures prometheus.Counter
	BlacklistHits        *prometheus.CounterVec
	TransitionDuration   *prometheus.HistogramVec
}

// New registers pass metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gatepass_pass_transitions_total",
			Help: "Visitor pass transitions by resulting status",
		}, []string{"status"}),
		VerificationFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "gatepass_pass_verification_failures_total",
			Help: "Gate verifications rejected for a wrong PIN",
		}),
		BlacklistHits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gatepass_blacklist_hits_total",
			Help: "Pass creations that matched the blacklist, by outcome",
		}, []string{"outcome"}),
		TransitionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gatepass_pass_operation_duration_seconds",
			Help:    "Duration of pass lifecycle operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation"}),
	}
}

func (m *Metrics) IncrementTransition(status string) {
	m.Transitions.WithLabelValues(status).Inc()
}

func (m *Metrics) IncrementVerificationFailure() {
	m.VerificationFailures.Inc()
}

// IncrementBlacklistHit records a match; outcome is "warned" or "blocked".
func (m *Metrics) IncrementBlacklistHit(outcome string) {
	m.BlacklistHits.WithLabelValues(outcome).Inc()
}

// ObserveOperation records the duration since start.
func (m *Metrics) ObserveOperation(operation string, start time.Time) {
	m.TransitionDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
