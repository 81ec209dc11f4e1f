// Package loader implements helix's dynamic-library loader: it opens a
// module's shared object, resolves its four configured entry-point
// symbols, and enforces the init/start/stop/destroy ordering described
// in §4.4. It has no notion of dependencies; ordering across modules is
// the supervisor's responsibility.
package loader

import (
	"sync"

	"github.com/ebitengine/purego"

	"github.com/helix-host/helix/internal/dlopen"
	"github.com/helix-host/helix/internal/herror"
	"github.com/helix-host/helix/internal/manifest"
)

// intFn matches the init/start/stop callable signature: int() -> int.
// A zero return means success.
type intFn func() int32

// voidFn matches the destroy callable signature: void() -> void.
type voidFn func()

type record struct {
	name        string
	path        string
	handle      *dlopen.Handle
	init        intFn
	start       intFn
	stop        intFn
	destroy     voidFn
	initialized bool
	running     bool
}

// Loader owns the live shared-object handles and resolved callables for
// every currently loaded module. Each method holds an internal RWMutex;
// the ordering of lifecycle calls across modules is left to the
// supervisor's single-writer path.
type Loader struct {
	mu      sync.RWMutex
	modules map[string]*record
}

// New returns an empty Loader.
func New() *Loader {
	return &Loader{modules: make(map[string]*record)}
}

// IsLoaded reports whether name currently has a live handle.
func (l *Loader) IsLoaded(name string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.modules[name]
	return ok
}

// Initialized reports whether name's init hook has run and destroy has
// not yet been called.
func (l *Loader) Initialized(name string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	r, ok := l.modules[name]
	return ok && r.initialized
}

// Running reports whether name's start hook has run without a matching
// successful stop.
func (l *Loader) Running(name string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	r, ok := l.modules[name]
	return ok && r.running
}

// Load opens the shared object at path and resolves ep's four symbols
// (after defaulting). It fails if name is already loaded.
func (l *Loader) Load(name, path string, ep manifest.EntryPoints) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.modules[name]; ok {
		return herror.New(herror.AlreadyPresent, "module %s is already loaded", name)
	}

	h, err := dlopen.Open(path)
	if err != nil {
		return herror.Wrap(herror.LoadFailed, err, "loading %s", name)
	}

	resolved := ep.Resolved()
	initSym, err := h.Sym(resolved.Init)
	if err != nil {
		h.Close()
		return herror.Wrap(herror.SymbolMissing, err, "%s: init symbol %s", name, resolved.Init)
	}
	startSym, err := h.Sym(resolved.Start)
	if err != nil {
		h.Close()
		return herror.Wrap(herror.SymbolMissing, err, "%s: start symbol %s", name, resolved.Start)
	}
	stopSym, err := h.Sym(resolved.Stop)
	if err != nil {
		h.Close()
		return herror.Wrap(herror.SymbolMissing, err, "%s: stop symbol %s", name, resolved.Stop)
	}
	destroySym, err := h.Sym(resolved.Destroy)
	if err != nil {
		h.Close()
		return herror.Wrap(herror.SymbolMissing, err, "%s: destroy symbol %s", name, resolved.Destroy)
	}

	r := &record{name: name, path: path, handle: h}
	purego.RegisterFunc(&r.init, initSym)
	purego.RegisterFunc(&r.start, startSym)
	purego.RegisterFunc(&r.stop, stopSym)
	purego.RegisterFunc(&r.destroy, destroySym)

	l.modules[name] = r
	return nil
}

// Unload stops (if running) and destroys (if initialized) name, then
// closes its handle and drops the record. A close failure is reported
// but the record is still dropped, matching §4.4.
func (l *Loader) Unload(name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.modules[name]
	if !ok {
		return herror.New(herror.NotFound, "module %s is not loaded", name)
	}

	var stopErr, closeErr error
	if r.running {
		if rc := r.stop(); rc != 0 {
			stopErr = herror.New(herror.HookFailed, "%s: stop returned %d", name, rc)
		} else {
			r.running = false
		}
	}
	if r.initialized {
		r.destroy()
		r.initialized = false
	}
	closeErr = r.handle.Close()

	delete(l.modules, name)

	if stopErr != nil {
		return stopErr
	}
	if closeErr != nil {
		return herror.Wrap(herror.IOFailed, closeErr, "%s: closing handle", name)
	}
	return nil
}

// Init invokes name's init callable. Precondition: not already
// initialized.
func (l *Loader) Init(name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.modules[name]
	if !ok {
		return herror.New(herror.NotFound, "module %s is not loaded", name)
	}
	if r.initialized {
		return herror.New(herror.AlreadyPresent, "module %s already initialized", name)
	}
	if rc := r.init(); rc != 0 {
		return herror.New(herror.HookFailed, "%s: init returned %d", name, rc)
	}
	r.initialized = true
	return nil
}

// Start invokes name's start callable. Precondition: initialized and not
// running.
func (l *Loader) Start(name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.modules[name]
	if !ok {
		return herror.New(herror.NotFound, "module %s is not loaded", name)
	}
	if !r.initialized {
		return herror.New(herror.NotEnabled, "module %s is not initialized", name)
	}
	if r.running {
		return herror.New(herror.AlreadyPresent, "module %s is already running", name)
	}
	if rc := r.start(); rc != 0 {
		return herror.New(herror.HookFailed, "%s: start returned %d", name, rc)
	}
	r.running = true
	return nil
}

// Stop invokes name's stop callable. Precondition: running. On failure
// the running flag stays true and the operation fails; the supervisor
// translates this to Error.
func (l *Loader) Stop(name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.modules[name]
	if !ok {
		return herror.New(herror.NotFound, "module %s is not loaded", name)
	}
	if !r.running {
		return herror.New(herror.NotRunning, "module %s is not running", name)
	}
	if rc := r.stop(); rc != 0 {
		return herror.New(herror.HookFailed, "%s: stop returned %d", name, rc)
	}
	r.running = false
	return nil
}
