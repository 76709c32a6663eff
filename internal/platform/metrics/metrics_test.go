package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	m := New()

	m.SetPoliciesLoaded(3)
	m.SetRosterReady(true)
	assert.Equal(t, float64(3), testutil.ToFloat64(m.PoliciesLoaded))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RosterReady))

	m.SetRosterReady(false)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.RosterReady))

	families, err := m.Registry.Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["go_goroutines"])
	assert.True(t, names["casbot_policies_loaded"])
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SetRosterReady(true)
		m.SetPoliciesLoaded(1)
	})
}
