// Package adapter provides adapters wiring helix's internal components
// to external monitoring, tracing, transport, and audit systems.
package adapter

import (
	"github.com/heptiolabs/healthcheck"

	"github.com/helix-host/helix/internal/registry"
	"github.com/helix-host/helix/internal/supervisor"
)

// HealthAdapter exposes supervisor liveness and readiness to an external
// monitoring system via github.com/heptiolabs/healthcheck.
type HealthAdapter interface {
	Handler() healthcheck.Handler
}

// SupervisorHealthAdapter is the production HealthAdapter: liveness
// reports whether the process is up at all, and readiness reports
// whether any module is stuck in Error.
type SupervisorHealthAdapter struct {
	sup     *supervisor.Supervisor
	handler healthcheck.Handler
}

// NewSupervisorHealthAdapter wires liveness and readiness checks against sup.
func NewSupervisorHealthAdapter(sup *supervisor.Supervisor) *SupervisorHealthAdapter {
	h := healthcheck.NewHandler()
	h.AddLivenessCheck("initialized", func() error { return nil })
	h.AddReadinessCheck("no-module-in-error", func() error {
		for _, e := range sup.List() {
			if e.State == registry.Error {
				return &moduleErrorState{name: e.Name}
			}
		}
		return nil
	})
	return &SupervisorHealthAdapter{sup: sup, handler: h}
}

// Handler returns the wrapped healthcheck.Handler for mounting on an
// HTTP mux.
func (a *SupervisorHealthAdapter) Handler() healthcheck.Handler { return a.handler }

type moduleErrorState struct{ name string }

func (e *moduleErrorState) Error() string { return "module " + e.name + " is in Error state" }
