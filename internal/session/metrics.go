package session

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder receives operation measurements from the Store.
type Recorder interface {
	ObserveOperation(op, outcome string, d time.Duration)
	SetAuthenticated(authenticated bool)
}

// noopRecorder is used when no metrics are configured.
type noopRecorder struct{}

func (noopRecorder) ObserveOperation(string, string, time.Duration) {}
func (noopRecorder) SetAuthenticated(bool)                          {}

// Metrics is the Prometheus Recorder.
type Metrics struct {
	operations    *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	authenticated prometheus.Gauge
}

// NewMetrics creates and registers the session metrics on reg. A nil reg
// creates unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "opendreams",
			Subsystem: "session",
			Name:      "operations_total",
			Help:      "Auth operations by name and outcome",
		}, []string{"operation", "outcome"}),

		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "opendreams",
			Subsystem: "session",
			Name:      "operation_duration_seconds",
			Help:      "Auth operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),

		authenticated: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "opendreams",
			Subsystem: "session",
			Name:      "authenticated",
			Help:      "1 when a user is signed in on this device",
		}),
	}
}

// ObserveOperation records one settled operation.
func (m *Metrics) ObserveOperation(op, outcome string, d time.Duration) {
	m.operations.WithLabelValues(op, outcome).Inc()
	m.duration.WithLabelValues(op).Observe(d.Seconds())
}

// SetAuthenticated updates the signed-in gauge.
func (m *Metrics) SetAuthenticated(authenticated bool) {
	if authenticated {
		m.authenticated.Set(1)
		return
	}
	m.authenticated.Set(0)
}
