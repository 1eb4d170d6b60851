package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records gateway activity. A nil *Metrics is valid and records nothing.
type Metrics struct {
	requests *prometheus.CounterVec
	inflight prometheus.Gauge
	latency  prometheus.Histogram
}

// NewMetrics registers the gateway collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "localdesk",
			Subsystem: "ai",
			Name:      "requests_total",
			Help:      "AI requests by outcome.",
		}, []string{"outcome"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "localdesk",
			Subsystem: "ai",
			Name:      "requests_in_flight",
			Help:      "AI requests issued and not yet settled.",
		}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "localdesk",
			Subsystem: "ai",
			Name:      "request_duration_seconds",
			Help:      "Time from send to settle.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		}),
	}
	reg.MustRegister(m.requests, m.inflight, m.latency)
	return m
}

func (m *Metrics) started() {
	if m == nil {
		return
	}
	m.inflight.Inc()
}

func (m *Metrics) finished(elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.inflight.Dec()
	m.latency.Observe(elapsed.Seconds())
	m.requests.WithLabelValues(outcome(err)).Inc()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrEmptyPrompt), errors.Is(err, ErrAttachmentTooLarge), errors.Is(err, ErrUnsupportedAttachment):
		return "rejected"
	default:
		return "error"
	}
}
