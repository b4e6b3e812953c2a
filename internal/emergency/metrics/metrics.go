package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Triggered        prometheus.Counter
	DispatchFailures prometheus.Counter
	Notifications    *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Triggered: f.NewCounter(prometheus.CounterOpts{
			Name: "gatepass_panic_triggered_total",
			Help: "Panic events recorded",
		}),
		DispatchFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "gatepass_panic_dispatch_failures_total",
			Help: "Panic triggers that could not be recorded",
		}),
		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gatepass_panic_notifications_total",
			Help: "Panic notifications attempted, by channel and outcome",
		}, []string{"channel", "outcome"}),
	}
}

func (m *Metrics) IncrementTriggered() {
	m.Triggered.Inc()
}

func (m *Metrics) IncrementDispatchFailure() {
	m.DispatchFailures.Inc()
}

// IncrementNotification records one delivery; outcome is "sent" or "failed".
func (m *Metrics) IncrementNotification(channel, outcome string) {
	m.Notifications.WithLabelValues(channel, outcome).Inc()
}
