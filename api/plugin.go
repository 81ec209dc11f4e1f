// Package api defines the public contracts a caller embedding helix
// (rather than driving it over the control socket) programs against.
package api

import "context"

// Plugin is the host-side view of one installed module: the lifecycle
// verbs the supervisor exposes for it, named the way an embedder thinks
// about a single plugin rather than the way the supervisor thinks about
// its whole fleet.
type Plugin interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Reload(ctx context.Context) error
}

// SupervisedPlugin implements Plugin against a Lifecycle for one named
// module. Reload is disable, then enable, then start, since helix has no
// in-place hot-reload of a loaded shared object.
type SupervisedPlugin struct {
	name string
	lc   Lifecycle
}

// NewSupervisedPlugin binds name to lc, the Lifecycle that actually owns
// the module's state.
func NewSupervisedPlugin(name string, lc Lifecycle) *SupervisedPlugin {
	return &SupervisedPlugin{name: name, lc: lc}
}

func (p *SupervisedPlugin) Name() string { return p.name }

func (p *SupervisedPlugin) Start(ctx context.Context) error {
	if err := p.lc.Enable(ctx, p.name); err != nil {
		return err
	}
	return p.lc.Start(ctx, p.name)
}

func (p *SupervisedPlugin) Stop(ctx context.Context) error {
	return p.lc.Stop(ctx, p.name)
}

func (p *SupervisedPlugin) Reload(ctx context.Context) error {
	if err := p.lc.Disable(ctx, p.name); err != nil {
		return err
	}
	if err := p.lc.Enable(ctx, p.name); err != nil {
		return err
	}
	return p.lc.Start(ctx, p.name)
}
