package fastcopy

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeSuccess   = "success"
	outcomeFailure   = "failure"
	outcomeDiscarded = "discarded"
)

// Metrics records transfer outcomes.
type Metrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	bytesTotal        *prometheus.CounterVec
}

// NewMetrics creates the transfer metrics on registerer. A nil registerer
// leaves them unregistered.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)

	return &Metrics{
		operationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fastcopy_operations_total",
			Help: "Total number of transfer operations by direction, outcome and failing step",
		}, []string{"direction", "outcome", "step"}),

		operationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fastcopy_operation_duration_seconds",
			Help:    "Duration of transfer operations in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 16), // 10ms to ~5.5m
		}, []string{"direction"}),

		bytesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fastcopy_bytes_total",
			Help: "Total bytes handed to callers on read and stored on write",
		}, []string{"direction"}),
	}
}

func (m *Metrics) recordSuccess(direction Direction, duration time.Duration, bytes int64) {
	if m == nil {
		return
	}
	m.operationsTotal.WithLabelValues(string(direction), outcomeSuccess, "").Inc()
	m.operationDuration.WithLabelValues(string(direction)).Observe(duration.Seconds())
	if bytes > 0 {
		m.bytesTotal.WithLabelValues(string(direction)).Add(float64(bytes))
	}
}

func (m *Metrics) recordFailure(direction Direction, step Step, duration time.Duration) {
	if m == nil {
		return
	}
	m.operationsTotal.WithLabelValues(string(direction), outcomeFailure, string(step)).Inc()
	m.operationDuration.WithLabelValues(string(direction)).Observe(duration.Seconds())
}

func (m *Metrics) recordDiscard(direction Direction, duration time.Duration) {
	if m == nil {
		return
	}
	m.operationsTotal.WithLabelValues(string(direction), outcomeDiscarded, "").Inc()
	m.operationDuration.WithLabelValues(string(direction)).Observe(duration.Seconds())
}
