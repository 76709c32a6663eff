package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for verification flows.
type Metrics struct {
	// Terminal state of each /verify run
	Outcomes *prometheus.CounterVec

	// Flows currently waiting for a callback
	InFlight prometheus.Gauge

	// Time from link delivery to the end of the wait
	WaitDuration prometheus.Histogram

	// Tokens issued, by whether a live link was reused
	TokensIssued *prometheus.CounterVec
}

// New registers the verification metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "casbot_verification_outcomes_total",
			Help: "Verification runs by terminal state",
		}, []string{"state"}), // state: "verified", "timed_out", "link_resent", "error"

		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "casbot_verification_waits_in_flight",
			Help: "Verification flows currently waiting for the portal callback",
		}),

		WaitDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "casbot_verification_wait_duration_seconds",
			Help:    "Time spent waiting for the portal callback",
			Buckets: []float64{1, 5, 10, 20, 30, 60, 120, 180, 240, 300},
		}),

		TokensIssued: f.NewCounterVec(prometheus.CounterOpts{
			Name: "casbot_verification_tokens_issued_total",
			Help: "Sign-in links handed out, by whether an existing link was reused",
		}, []string{"reused"}),
	}
}

// IncrementOutcome records the terminal state of a run.
func (m *Metrics) IncrementOutcome(state string) {
	if m != nil {
		m.Outcomes.WithLabelValues(state).Inc()
	}
}

// IncrementIssued records a delivered sign-in link.
func (m *Metrics) IncrementIssued(reused bool) {
	if m == nil {
		return
	}
	label := "false"
	if reused {
		label = "true"
	}
	m.TokensIssued.WithLabelValues(label).Inc()
}

// StartWait marks a flow as waiting and returns the func that ends it.
func (m *Metrics) StartWait() func() {
	if m == nil {
		return func() {}
	}
	start := time.Now()
	m.InFlight.Inc()
	return func() {
		m.InFlight.Dec()
		m.WaitDuration.Observe(time.Since(start).Seconds())
	}
}
