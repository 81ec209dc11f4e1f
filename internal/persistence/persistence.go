// Package persistence encodes and decodes helix's desired-state record
// and implements the two-phase restore algorithm described in §4.6.
package persistence

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/helix-host/helix/internal/registry"
)

// FileName is the fixed name of the desired-state file, a sibling of the
// modules directory root.
const FileName = ".helix_state.json"

// document is the on-disk shape: {"modules": {"<name>": {"state": "..."}}}.
type document struct {
	Modules map[string]moduleState `json:"modules"`
}

type moduleState struct {
	State string `json:"state"`
}

// Save writes the current state of every registered module to path.
func Save(path string, reg *registry.Registry) error {
	doc := document{Modules: make(map[string]moduleState)}
	for _, e := range reg.All() {
		doc.Modules[e.Name] = moduleState{State: string(e.State)}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Load reads the desired-state record at path. A missing file is not an
// error; it yields an empty map (fresh install).
func Load(path string) (map[string]registry.State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]registry.State{}, nil
		}
		return nil, err
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		// The source's own loader is tolerant of a malformed persisted
		// file: a corrupt state record degrades to "nothing to
		// restore" rather than blocking startup.
		return map[string]registry.State{}, nil
	}
	out := make(map[string]registry.State, len(doc.Modules))
	for name, ms := range doc.Modules {
		out[name] = registry.State(ms.State)
	}
	return out, nil
}

// Path returns the desired-state file path for a given modules
// directory: a sibling of the directory root, per §6.
func Path(modulesDir string) string {
	return filepath.Join(filepath.Dir(filepath.Clean(modulesDir)), FileName)
}

// Plan describes the two intended sets computed from saved state per
// §4.6: EnableTargets (modules that should be at least enabled) and
// StartTargets (modules that should additionally be started).
type Plan struct {
	EnableTargets []string
	StartTargets  []string
}

// BuildPlan computes the restore plan from the saved desired state.
func BuildPlan(saved map[string]registry.State) Plan {
	var p Plan
	for name, st := range saved {
		switch st {
		case registry.Initialized, registry.Running, registry.Stopped:
			p.EnableTargets = append(p.EnableTargets, name)
		}
		if st == registry.Running {
			p.StartTargets = append(p.StartTargets, name)
		}
	}
	return p
}
