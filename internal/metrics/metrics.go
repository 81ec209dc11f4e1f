// Package metrics registers helix's Prometheus counters and gauges:
// module state transitions, resolver failures, and install/uninstall
// counts. Consumed by the supervisor, the control dispatcher's status
// command, and cmd/helixd's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Registry is the set of collectors wired into a *prometheus.Registry.
type Registry struct {
	Transitions  *prometheus.CounterVec
	Resolutions  *prometheus.CounterVec
	Installs     prometheus.Counter
	Uninstalls   prometheus.Counter
	ModuleErrors prometheus.Counter

	reg *prometheus.Registry
}

// New constructs and registers helix's collectors on reg.
func New(reg *prometheus.Registry) *Registry {
	m := &Registry{
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "helix",
			Name:      "module_state_transitions_total",
			Help:      "Count of module lifecycle state transitions, labeled by module and resulting state.",
		}, []string{"module", "state"}),
		Resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "helix",
			Name:      "resolution_failures_total",
			Help:      "Count of dependency resolution failures, labeled by reason.",
		}, []string{"reason"}),
		Installs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "helix",
			Name:      "installs_total",
			Help:      "Count of successful module installs.",
		}),
		Uninstalls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "helix",
			Name:      "uninstalls_total",
			Help:      "Count of successful module uninstalls.",
		}),
		ModuleErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "helix",
			Name:      "module_errors_total",
			Help:      "Count of modules transitioning into the Error state.",
		}),
	}
	reg.MustRegister(m.Transitions, m.Resolutions, m.Installs, m.Uninstalls, m.ModuleErrors)
	m.reg = reg
	return m
}

// Families gathers every registered collector into its wire-level
// representation. Exposed as client_model's own dto.MetricFamily rather
// than a helix-specific summary type, since that's what a future
// text-format or remote-write exporter would need verbatim.
func (m *Registry) Families() ([]*dto.MetricFamily, error) {
	return m.reg.Gather()
}

// CounterTotal sums the counter value named by metricName across all of
// its label combinations. Returns 0 if the metric has no samples yet.
// Used by the control dispatcher's status command to report a single
// total without exposing the full Prometheus text-format surface over
// the line protocol.
func (m *Registry) CounterTotal(metricName string) float64 {
	families, err := m.Families()
	if err != nil {
		return 0
	}
	var total float64
	for _, fam := range families {
		if fam.GetName() != metricName {
			continue
		}
		for _, metric := range fam.GetMetric() {
			total += metric.GetCounter().GetValue()
		}
	}
	return total
}
