package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the process registry and process-wide gauges. Feature
// packages register their own collectors on Registry.
type Metrics struct {
	Registry *prometheus.Registry

	RosterReady    prometheus.Gauge
	PoliciesLoaded prometheus.Gauge
}

// New creates a registry with the Go runtime and process collectors attached.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		RosterReady: factory.NewGauge(prometheus.GaugeOpts{
			Name: "casbot_roster_ready",
			Help: "1 once the roster store is connected",
		}),
		PoliciesLoaded: factory.NewGauge(prometheus.GaugeOpts{
			Name: "casbot_policies_loaded",
			Help: "Number of community policies loaded from the server config",
		}),
	}
}

// SetRosterReady records whether the roster store is attached.
func (m *Metrics) SetRosterReady(ready bool) {
	if m == nil {
		return
	}
	if ready {
		m.RosterReady.Set(1)
		return
	}
	m.RosterReady.Set(0)
}

// SetPoliciesLoaded records the size of the policy set.
func (m *Metrics) SetPoliciesLoaded(n int) {
	if m == nil {
		return
	}
	m.PoliciesLoaded.Set(float64(n))
}
