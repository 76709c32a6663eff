package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the portal callback endpoint.
type Metrics struct {
	Requests *prometheus.CounterVec
	Latency  prometheus.Histogram
}

// New registers the callback metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "casbot_callback_requests_total",
			Help: "Portal callbacks by outcome",
		}, []string{"outcome"}), // outcome: "verified", "unknown_token", "bad_request", "unavailable", "error"

		Latency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "casbot_callback_duration_seconds",
			Help:    "Time to process a portal callback",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// Observe records one callback.
func (m *Metrics) Observe(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(outcome).Inc()
	m.Latency.Observe(d.Seconds())
}
