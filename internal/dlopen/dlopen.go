// Package dlopen wraps purego's dlopen/dlsym/dlclose bindings with the
// RTLD_LAZY|RTLD_GLOBAL semantics helix's loader requires: lazily
// relocated, and with symbols visible to shared objects opened
// afterwards (the mechanism the logger-sink-registry pattern in §5 of
// the module contract relies on).
package dlopen

import (
	"fmt"

	"github.com/ebitengine/purego"
)

// Handle is an opened shared object.
type Handle struct {
	path   string
	handle uintptr
}

// Open opens the shared object at path with lazy relocation and global
// symbol visibility.
func Open(path string) (*Handle, error) {
	h, err := purego.Dlopen(path, purego.RTLD_LAZY|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, fmt.Errorf("dlopen: %s: %w", path, err)
	}
	return &Handle{path: path, handle: h}, nil
}

// Sym resolves a symbol by name. It returns an error rather than
// panicking, unlike purego.Dlsym, so callers can translate a missing
// symbol into a herror.SymbolMissing failure.
func (h *Handle) Sym(name string) (sym uintptr, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dlsym: %s: %s: %v", h.path, name, r)
		}
	}()
	sym, err = purego.Dlsym(h.handle, name)
	if err != nil {
		return 0, fmt.Errorf("dlsym: %s: %s: %w", h.path, name, err)
	}
	return sym, nil
}

// Close unloads the shared object.
func (h *Handle) Close() error {
	if err := purego.Dlclose(h.handle); err != nil {
		return fmt.Errorf("dlclose: %s: %w", h.path, err)
	}
	return nil
}
