// Package manifest defines the in-memory module descriptor and its
// textual (JSON) parser and validator.
package manifest

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/helix-host/helix/internal/herror"
	"github.com/helix-host/helix/internal/semver"
)

var (
	nameRe       = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)
	identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// Dependency is one declared dependency edge.
type Dependency struct {
	Name       string `json:"name"`
	Requirement string `json:"version,omitempty"`
	Optional   bool   `json:"optional,omitempty"`
}

// EntryPoints names the four lifecycle symbols. An empty field means the
// loader should use its default name; defaults are applied at load time,
// not at parse time.
type EntryPoints struct {
	Init    string `json:"init,omitempty"`
	Start   string `json:"start,omitempty"`
	Stop    string `json:"stop,omitempty"`
	Destroy string `json:"destroy,omitempty"`
}

// Default entry-point symbol names, applied by the loader when a
// manifest leaves the corresponding field empty.
const (
	DefaultInit    = "helix_module_init"
	DefaultStart   = "helix_module_start"
	DefaultStop    = "helix_module_stop"
	DefaultDestroy = "helix_module_destroy"
)

// Resolved returns ep with empty fields replaced by their defaults.
func (ep EntryPoints) Resolved() EntryPoints {
	if ep.Init == "" {
		ep.Init = DefaultInit
	}
	if ep.Start == "" {
		ep.Start = DefaultStart
	}
	if ep.Stop == "" {
		ep.Stop = DefaultStop
	}
	if ep.Destroy == "" {
		ep.Destroy = DefaultDestroy
	}
	return ep
}

// Manifest is a module's parsed descriptor.
type Manifest struct {
	Name         string            `json:"name"`
	Version      string            `json:"version"`
	BinaryPath   string            `json:"binary_path"`
	Description  string            `json:"description,omitempty"`
	Author       string            `json:"author,omitempty"`
	License      string            `json:"license,omitempty"`
	Homepage     string            `json:"homepage,omitempty"`
	Repository   string            `json:"repository,omitempty"`
	Tags         []string          `json:"tags,omitempty"`
	Config       map[string]string `json:"config,omitempty"`
	Dependencies []Dependency      `json:"dependencies,omitempty"`
	EntryPoints  EntryPoints       `json:"entry_points,omitempty"`

	// MinimumCoreVersion and MinimumAPIVersion are absent|present:
	// the empty string means absent, matching §3's optionality note.
	MinimumCoreVersion string `json:"minimum_core_version,omitempty"`
	MinimumAPIVersion  string `json:"minimum_api_version,omitempty"`
}

// ParseString parses and validates a manifest from its JSON text.
func ParseString(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, herror.Wrap(herror.InvalidManifest, err, "malformed manifest")
	}
	if err := Validate(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the syntactic and schema constraints §4.2 names.
func Validate(m *Manifest) error {
	if m.Name == "" {
		return herror.New(herror.InvalidManifest, "missing required field: name")
	}
	if m.Version == "" {
		return herror.New(herror.InvalidManifest, "missing required field: version")
	}
	if m.BinaryPath == "" {
		return herror.New(herror.InvalidManifest, "missing required field: binary_path")
	}
	if !ValidName(m.Name) {
		return herror.New(herror.InvalidManifest, "invalid module name: %s", m.Name)
	}
	if _, err := semver.Parse(m.Version); err != nil {
		return herror.Wrap(herror.InvalidManifest, err, "invalid version: %s", m.Version)
	}
	for _, d := range m.Dependencies {
		if !ValidName(d.Name) {
			return herror.New(herror.InvalidManifest, "invalid dependency name: %s", d.Name)
		}
		if d.Requirement != "" {
			if _, err := semver.ParseRequirement(d.Requirement); err != nil {
				return herror.Wrap(herror.InvalidManifest, err, "invalid dependency requirement for %s", d.Name)
			}
		}
	}
	for _, sym := range []string{m.EntryPoints.Init, m.EntryPoints.Start, m.EntryPoints.Stop, m.EntryPoints.Destroy} {
		if sym != "" && !ValidIdentifier(sym) {
			return herror.New(herror.InvalidManifest, "invalid entry point symbol: %s", sym)
		}
	}
	if m.MinimumCoreVersion != "" {
		if _, err := semver.Parse(m.MinimumCoreVersion); err != nil {
			return herror.Wrap(herror.InvalidManifest, err, "invalid minimum_core_version")
		}
	}
	if m.MinimumAPIVersion != "" {
		if _, err := semver.Parse(m.MinimumAPIVersion); err != nil {
			return herror.Wrap(herror.InvalidManifest, err, "invalid minimum_api_version")
		}
	}
	return nil
}

// ValidName reports whether s is a legal module name: non-empty, at most
// 64 bytes, starting with an ASCII letter and continuing with letters,
// digits, '_', or '-'.
func ValidName(s string) bool {
	return len(s) > 0 && len(s) <= 64 && nameRe.MatchString(s)
}

// ValidIdentifier reports whether s is a legal C identifier of length at
// most 128, as required of a configured entry-point symbol name.
func ValidIdentifier(s string) bool {
	return len(s) > 0 && len(s) <= 128 && identifierRe.MatchString(s)
}

// Marshal serializes m back to its textual (JSON) form.
func Marshal(m *Manifest) ([]byte, error) {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("manifest: marshal: %w", err)
	}
	return b, nil
}
