package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helix-host/helix/internal/metrics"
)

func TestCounterTotalReflectsIncrements(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	assert.Equal(t, float64(0), m.CounterTotal("helix_installs_total"))

	m.Installs.Inc()
	m.Installs.Inc()
	assert.Equal(t, float64(2), m.CounterTotal("helix_installs_total"))
}

func TestCounterTotalUnknownNameIsZero(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	assert.Equal(t, float64(0), m.CounterTotal("does_not_exist"))
}

func TestFamiliesIncludesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.ModuleErrors.Inc()

	families, err := m.Families()
	require.NoError(t, err)

	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "helix_module_errors_total")
}
