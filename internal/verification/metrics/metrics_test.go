package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IncrementOutcome("verified")
	m.IncrementOutcome("verified")
	m.IncrementIssued(true)
	done := m.StartWait()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InFlight))
	done()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Outcomes.WithLabelValues("verified")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TokensIssued.WithLabelValues("true")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.InFlight))
	assert.Equal(t, 1, testutil.CollectAndCount(m.WaitDuration))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.IncrementOutcome("verified")
	m.IncrementIssued(false)
	m.StartWait()()
}
