// Package registry is the supervisor's module registry: a concurrent
// map from module name to its current entry, safe for the control
// dispatcher's read paths (list/info/status) to range over while the
// supervisor's single writer mutates it.
package registry

import (
	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/helix-host/helix/internal/manifest"
)

// State is one of the six module lifecycle states named in §3. Unknown
// exists only for absent records and is never stored.
type State string

const (
	Installed   State = "Installed"
	Loaded      State = "Loaded"
	Initialized State = "Initialized"
	Running     State = "Running"
	Stopped     State = "Stopped"
	Error       State = "Error"
)

// Entry is one registry record: {name, version, install_path, manifest,
// state, last_error} per §3.
type Entry struct {
	Name        string
	Version     string
	InstallPath string
	Manifest    *manifest.Manifest
	State       State
	LastError   string
}

// Registry is the supervisor-owned module registry.
type Registry struct {
	m cmap.ConcurrentMap[string, *Entry]
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{m: cmap.New[*Entry]()}
}

// Put inserts or replaces the entry for e.Name.
func (r *Registry) Put(e *Entry) {
	r.m.Set(e.Name, e)
}

// Get returns the entry for name, or nil if absent.
func (r *Registry) Get(name string) *Entry {
	e, ok := r.m.Get(name)
	if !ok {
		return nil
	}
	return e
}

// Delete removes name from the registry.
func (r *Registry) Delete(name string) {
	r.m.Remove(name)
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	return r.m.Has(name)
}

// SetState updates name's state, returning false if name is absent.
func (r *Registry) SetState(name string, s State) bool {
	e, ok := r.m.Get(name)
	if !ok {
		return false
	}
	e.State = s
	return true
}

// SetLastError records err on name's entry, clearing it when err == "".
func (r *Registry) SetLastError(name, err string) {
	if e, ok := r.m.Get(name); ok {
		e.LastError = err
	}
}

// Names returns every registered module name.
func (r *Registry) Names() []string {
	return r.m.Keys()
}

// All returns a snapshot slice of every entry, safe to range over while
// the registry continues mutating underneath.
func (r *Registry) All() []*Entry {
	out := make([]*Entry, 0, r.m.Count())
	for e := range r.m.IterBuffered() {
		out = append(out, e.Val)
	}
	return out
}

// Len returns the number of registered modules.
func (r *Registry) Len() int {
	return r.m.Count()
}
