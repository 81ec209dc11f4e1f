// Package supervisor is the orchestrator described in §4.5: it owns the
// module registry, composes the dependency resolver and dynamic loader,
// implements the fleet-wide state machine, and persists/restores desired
// state. All mutating operations are serialized through internal/ingress
// onto a single logical writer.
package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/helix-host/helix/internal/archive"
	"github.com/helix-host/helix/internal/herror"
	"github.com/helix-host/helix/internal/hlog"
	"github.com/helix-host/helix/internal/ingress"
	"github.com/helix-host/helix/internal/loader"
	"github.com/helix-host/helix/internal/manifest"
	"github.com/helix-host/helix/internal/metrics"
	"github.com/helix-host/helix/internal/persistence"
	"github.com/helix-host/helix/internal/registry"
	"github.com/helix-host/helix/internal/resolver"
	"github.com/helix-host/helix/internal/semver"
	"github.com/helix-host/helix/internal/telemetry"
	"github.com/helix-host/helix/internal/version"
)

const installMarker = ".installed_marker"
const manifestFile = "manifest.json"

// Supervisor is the sole mutator of the module registry.
type Supervisor struct {
	modulesDir string

	reg  *registry.Registry
	res  *resolver.Resolver
	load *loader.Loader
	in   *ingress.Queue

	tel     *telemetry.Telemetry
	metrics *metrics.Registry

	log          *hlog.Logger
	shutdownDone atomic.Bool
}

// Option configures optional collaborators.
type Option func(*Supervisor)

// WithTelemetry wires an OTel-backed telemetry wrapper.
func WithTelemetry(t *telemetry.Telemetry) Option { return func(s *Supervisor) { s.tel = t } }

// WithMetrics wires a Prometheus collector set.
func WithMetrics(reg *prometheus.Registry) Option {
	return func(s *Supervisor) {
		if reg != nil {
			s.metrics = metrics.New(reg)
		}
	}
}

// New constructs a Supervisor. Initialize must be called before use.
func New(opts ...Option) (*Supervisor, error) {
	q, err := ingress.New()
	if err != nil {
		return nil, err
	}
	s := &Supervisor{
		reg:  registry.New(),
		res:  resolver.New(),
		load: loader.New(),
		in:   q,
		log:  hlog.New("supervisor", nil),
	}
	for _, o := range opts {
		o(s)
	}
	if s.tel == nil {
		s.tel = telemetry.New(nil, nil)
	}
	return s, nil
}

func (s *Supervisor) span(ctx context.Context, op, module string, fn func(context.Context) error) error {
	return s.tel.Op(ctx, op, module, fn)
}

func (s *Supervisor) recordTransition(name string, st registry.State) {
	if s.metrics != nil {
		s.metrics.Transitions.WithLabelValues(name, string(st)).Inc()
		if st == registry.Error {
			s.metrics.ModuleErrors.Inc()
		}
	}
}

func (s *Supervisor) recordResolutionFailure(reason string) {
	if s.metrics != nil {
		s.metrics.Resolutions.WithLabelValues(reason).Inc()
	}
}

// Initialize scans modulesDir for installed modules, registers them, and
// attempts to restore the persisted desired state. It creates
// modulesDir if absent.
func (s *Supervisor) Initialize(ctx context.Context, modulesDir string) error {
	return s.span(ctx, "initialize", "", func(ctx context.Context) error {
		s.modulesDir = modulesDir
		if err := os.MkdirAll(modulesDir, 0o755); err != nil {
			return herror.Wrap(herror.IOFailed, err, "creating modules directory")
		}

		entries, err := os.ReadDir(modulesDir)
		if err != nil {
			return herror.Wrap(herror.IOFailed, err, "scanning modules directory")
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			dir := filepath.Join(modulesDir, e.Name())
			if _, err := os.Stat(filepath.Join(dir, installMarker)); err != nil {
				continue
			}
			data, err := os.ReadFile(filepath.Join(dir, manifestFile))
			if err != nil {
				s.log.Warnf("skipping %s: cannot read manifest: %v", dir, err)
				continue
			}
			m, err := manifest.ParseString(data)
			if err != nil {
				s.log.Warnf("skipping %s: invalid manifest: %v", dir, err)
				continue
			}
			s.registerInstalled(m, dir)
		}

		saved, err := persistence.Load(persistence.Path(modulesDir))
		if err != nil {
			s.log.Warnf("could not read persisted state: %v", err)
			return nil
		}
		s.restore(ctx, saved)
		return nil
	})
}

func (s *Supervisor) registerInstalled(m *manifest.Manifest, installPath string) {
	s.reg.Put(&registry.Entry{
		Name:        m.Name,
		Version:     m.Version,
		InstallPath: installPath,
		Manifest:    m,
		State:       registry.Installed,
	})
	if err := s.res.Add(m); err != nil {
		s.log.Warnf("resolver add %s: %v", m.Name, err)
	}
}

// restore implements §4.6's two-phase algorithm: enable-closure modules
// first, then start-closure modules, skipping any missing modules and
// tolerating resolution failures as partial restoration.
func (s *Supervisor) restore(ctx context.Context, saved map[string]registry.State) {
	plan := persistence.BuildPlan(saved)

	enableOrder := s.orderOrWarn(plan.EnableTargets)
	for _, name := range enableOrder {
		if s.reg.Get(name) == nil {
			s.log.Warnf("restore: module %s no longer installed, skipping", name)
			continue
		}
		if e := s.reg.Get(name); e.State == registry.Installed {
			if err := s.enableLocked(ctx, name); err != nil {
				s.log.Warnf("restore: enable %s: %v", name, err)
			}
		}
	}

	startOrder := s.orderOrWarn(plan.StartTargets)
	for _, name := range startOrder {
		e := s.reg.Get(name)
		if e == nil {
			continue
		}
		if e.State == registry.Initialized || e.State == registry.Stopped {
			if err := s.startLocked(ctx, name); err != nil {
				s.log.Warnf("restore: start %s: %v", name, err)
			}
		}
	}
}

func (s *Supervisor) orderOrWarn(targets []string) []string {
	if len(targets) == 0 {
		return nil
	}
	res := s.res.Resolve(targets)
	if len(res.Missing) > 0 || len(res.Cyclic) > 0 {
		s.log.Warnf("restore: resolution incomplete, missing=%v cyclic=%v", res.Missing, res.Cyclic)
		s.recordResolutionFailure("restore")
		return targets
	}
	return res.Order
}

// Install extracts a .helx archive, validates its manifest and host
// compatibility, atomically promotes it into modulesDir, and registers
// it at Installed.
func (s *Supervisor) Install(ctx context.Context, archivePath string) error {
	return s.in.Submit(func() error {
		return s.span(ctx, "install", "", func(ctx context.Context) error {
			return s.install(archivePath)
		})
	})
}

func (s *Supervisor) install(archivePath string) error {
	if filepath.Ext(archivePath) != archive.Extension {
		return herror.New(herror.InvalidArchive, "only %s packages are supported", archive.Extension)
	}

	staging, err := os.MkdirTemp(s.modulesDir, ".tmp_install_")
	if err != nil {
		return herror.Wrap(herror.IOFailed, err, "creating staging directory")
	}
	defer os.RemoveAll(staging)

	if err := archive.Extract(archivePath, staging); err != nil {
		return herror.Wrap(herror.InvalidArchive, err, "extracting %s", archivePath)
	}

	data, err := os.ReadFile(filepath.Join(staging, manifestFile))
	if err != nil {
		return herror.Wrap(herror.InvalidManifest, err, "reading manifest from package")
	}
	m, err := manifest.ParseString(data)
	if err != nil {
		return err
	}

	if m.MinimumCoreVersion != "" {
		if err := checkMinimum(version.Core, m.MinimumCoreVersion); err != nil {
			return err
		}
	}
	if m.MinimumAPIVersion != "" {
		if err := checkMinimum(version.API, m.MinimumAPIVersion); err != nil {
			return err
		}
	}

	if existing := s.reg.Get(m.Name); existing != nil {
		// Only an overwrite of the same on-disk name is tolerated;
		// otherwise the caller must uninstall first.
		if existing.InstallPath != filepath.Join(s.modulesDir, m.Name) {
			return herror.New(herror.AlreadyPresent, "module %s already installed", m.Name)
		}
	}

	dest, err := archive.Promote(staging, s.modulesDir, m.Name)
	if err != nil {
		return herror.Wrap(herror.IOFailed, err, "promoting package")
	}

	if err := os.WriteFile(filepath.Join(dest, installMarker), []byte{}, 0o644); err != nil {
		return herror.Wrap(herror.IOFailed, err, "writing install marker")
	}
	if err := os.WriteFile(filepath.Join(dest, manifestFile), data, 0o644); err != nil {
		return herror.Wrap(herror.IOFailed, err, "writing manifest")
	}

	if s.res.Has(m.Name) {
		s.res.Remove(m.Name)
	}
	if err := s.res.Add(m); err != nil {
		return err
	}
	s.reg.Put(&registry.Entry{Name: m.Name, Version: m.Version, InstallPath: dest, Manifest: m, State: registry.Installed})
	s.recordTransition(m.Name, registry.Installed)
	if s.metrics != nil {
		s.metrics.Installs.Inc()
	}
	return nil
}

func checkMinimum(have, want string) error {
	wantV, err := semver.Parse(want)
	if err != nil {
		return herror.Wrap(herror.InvalidManifest, err, "invalid minimum version %s", want)
	}
	haveV, err := semver.Parse(have)
	if err != nil {
		return herror.Wrap(herror.InvalidManifest, err, "invalid host version %s", have)
	}
	if !semver.Satisfies(haveV, semver.Requirement{Op: semver.OpGE, Version: wantV}) {
		return herror.New(herror.VersionUnsatisfied, "host version %s does not satisfy >=%s", have, want)
	}
	return nil
}

// Uninstall removes an installed module, refusing if any dependents
// remain registered.
func (s *Supervisor) Uninstall(ctx context.Context, name string) error {
	return s.in.Submit(func() error {
		return s.span(ctx, "uninstall", name, func(ctx context.Context) error {
			return s.uninstall(ctx, name)
		})
	})
}

func (s *Supervisor) uninstall(ctx context.Context, name string) error {
	e := s.reg.Get(name)
	if e == nil {
		return herror.New(herror.NotFound, "module %s is not installed", name)
	}
	if dependents := s.res.Dependents(name); len(dependents) > 0 {
		return herror.New(herror.DependencyHasDependents, "required by dependents").WithNames(dependents...)
	}
	if e.State != registry.Installed {
		if err := s.disableLocked(ctx, name); err != nil {
			return err
		}
	}
	if err := os.RemoveAll(e.InstallPath); err != nil {
		return herror.Wrap(herror.IOFailed, err, "removing install directory")
	}
	s.res.Remove(name)
	s.reg.Delete(name)
	if s.metrics != nil {
		s.metrics.Uninstalls.Inc()
	}
	return nil
}

// Enable brings name from Installed to Initialized, ensuring every
// mandatory dependency reaches Running first (per §9's explicit
// contract). On resolution failure it reports the missing/cyclic sets
// and leaves name at Installed.
func (s *Supervisor) Enable(ctx context.Context, name string) error {
	return s.in.Submit(func() error {
		return s.span(ctx, "enable", name, func(ctx context.Context) error {
			return s.enableLocked(ctx, name)
		})
	})
}

func (s *Supervisor) enableLocked(ctx context.Context, name string) error {
	e := s.reg.Get(name)
	if e == nil {
		return herror.New(herror.NotFound, "module %s is not installed", name)
	}
	if e.State != registry.Installed {
		return herror.New(herror.AlreadyPresent, "module %s is not in Installed state", name)
	}

	res := s.res.Resolve([]string{name})
	if len(res.Missing) > 0 {
		s.recordResolutionFailure("missing")
		return herror.New(herror.DependencyMissing, "cannot enable %s", name).WithNames(res.Missing...)
	}
	if len(res.Cyclic) > 0 {
		s.recordResolutionFailure("cyclic")
		return herror.New(herror.DependencyCycle, "cannot enable %s", name).WithNames(res.Cyclic...)
	}

	for _, dep := range res.Order {
		if dep == name {
			continue
		}
		de := s.reg.Get(dep)
		if de == nil {
			continue
		}
		if de.State == registry.Installed {
			if err := s.enableLocked(ctx, dep); err != nil {
				return herror.Wrap(herror.DependencyMissing, err, "enabling dependency %s", dep)
			}
			de = s.reg.Get(dep)
		}
		if de.State == registry.Initialized || de.State == registry.Stopped {
			if err := s.startLocked(ctx, dep); err != nil {
				return herror.Wrap(herror.HookFailed, err, "starting dependency %s", dep)
			}
		}
	}

	binPath := filepath.Join(e.InstallPath, e.Manifest.BinaryPath)
	if err := s.load.Load(name, binPath, e.Manifest.EntryPoints); err != nil {
		return err
	}
	s.reg.SetState(name, registry.Loaded)
	s.recordTransition(name, registry.Loaded)

	if err := s.load.Init(name); err != nil {
		s.load.Unload(name)
		s.reg.SetState(name, registry.Installed)
		s.reg.SetLastError(name, err.Error())
		return err
	}
	s.reg.SetState(name, registry.Initialized)
	s.reg.SetLastError(name, "")
	s.recordTransition(name, registry.Initialized)
	return nil
}

// Disable stops (if running) and unloads name, returning it to
// Installed, or to Error if unload fails.
func (s *Supervisor) Disable(ctx context.Context, name string) error {
	return s.in.Submit(func() error {
		return s.span(ctx, "disable", name, func(ctx context.Context) error {
			return s.disableLocked(ctx, name)
		})
	})
}

func (s *Supervisor) disableLocked(ctx context.Context, name string) error {
	e := s.reg.Get(name)
	if e == nil {
		return herror.New(herror.NotFound, "module %s is not installed", name)
	}
	if e.State == registry.Installed {
		return herror.New(herror.NotEnabled, "module %s is not enabled", name)
	}
	if e.State == registry.Running {
		if err := s.stopLocked(name); err != nil {
			return err
		}
	}
	if err := s.load.Unload(name); err != nil {
		s.reg.SetState(name, registry.Error)
		s.reg.SetLastError(name, err.Error())
		s.recordTransition(name, registry.Error)
		return err
	}
	s.reg.SetState(name, registry.Installed)
	s.reg.SetLastError(name, "")
	s.recordTransition(name, registry.Installed)
	return nil
}

// Start transitions name from Initialized/Stopped to Running.
func (s *Supervisor) Start(ctx context.Context, name string) error {
	return s.in.Submit(func() error {
		return s.span(ctx, "start", name, func(ctx context.Context) error {
			return s.startLocked(ctx, name)
		})
	})
}

func (s *Supervisor) startLocked(ctx context.Context, name string) error {
	e := s.reg.Get(name)
	if e == nil {
		return herror.New(herror.NotFound, "module %s is not installed", name)
	}
	if e.State != registry.Initialized && e.State != registry.Stopped {
		return herror.New(herror.NotEnabled, "module %s is not initialized", name)
	}
	if err := s.load.Start(name); err != nil {
		s.reg.SetLastError(name, err.Error())
		return err
	}
	s.reg.SetState(name, registry.Running)
	s.reg.SetLastError(name, "")
	s.recordTransition(name, registry.Running)
	return nil
}

// Stop transitions a Running name to Stopped, or to Error on failure.
func (s *Supervisor) Stop(ctx context.Context, name string) error {
	return s.in.Submit(func() error {
		return s.span(ctx, "stop", name, func(ctx context.Context) error {
			return s.stopLocked(name)
		})
	})
}

func (s *Supervisor) stopLocked(name string) error {
	e := s.reg.Get(name)
	if e == nil {
		return herror.New(herror.NotFound, "module %s is not installed", name)
	}
	if e.State != registry.Running {
		return herror.New(herror.NotRunning, "module %s is not running", name)
	}
	if err := s.load.Stop(name); err != nil {
		s.reg.SetState(name, registry.Error)
		s.reg.SetLastError(name, err.Error())
		s.recordTransition(name, registry.Error)
		return err
	}
	s.reg.SetState(name, registry.Stopped)
	s.reg.SetLastError(name, "")
	s.recordTransition(name, registry.Stopped)
	return nil
}

// Shutdown persists desired state, then stops every running module and
// disables every enabled module. It is idempotent: the first call tears
// down the ingress queue, and every call after that (concurrent or
// subsequent) returns nil immediately without touching it, since
// submitting to a disposed queue would otherwise surface as an
// "enqueue" error rather than the no-op §8 requires.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	if !s.shutdownDone.CompareAndSwap(false, true) {
		return nil
	}
	return s.in.Submit(func() error {
		return s.span(ctx, "shutdown", "", func(ctx context.Context) error {
			return s.shutdown(ctx)
		})
	})
}

func (s *Supervisor) shutdown(ctx context.Context) error {
	if s.modulesDir != "" {
		if err := persistence.Save(persistence.Path(s.modulesDir), s.reg); err != nil {
			s.log.Warnf("saving desired state: %v", err)
		}
	}
	for _, e := range s.reg.All() {
		if e.State == registry.Running {
			if err := s.stopLocked(e.Name); err != nil {
				s.log.Warnf("shutdown: stop %s: %v", e.Name, err)
			}
		}
	}
	for _, e := range s.reg.All() {
		if e.State != registry.Installed {
			if err := s.disableLocked(ctx, e.Name); err != nil {
				s.log.Warnf("shutdown: disable %s: %v", e.Name, err)
			}
		}
	}
	for _, name := range s.reg.Names() {
		s.reg.Delete(name)
	}
	s.in.Close()
	return nil
}

// RunningModules returns the names of every module currently Running.
func (s *Supervisor) RunningModules() []string {
	var out []string
	for _, e := range s.reg.All() {
		if e.State == registry.Running {
			out = append(out, e.Name)
		}
	}
	return out
}

// Metrics returns the supervisor's metrics registry, or nil if it was
// constructed without WithMetrics. Used by the control dispatcher's
// status command to report a counter snapshot alongside module counts.
func (s *Supervisor) Metrics() *metrics.Registry {
	return s.metrics
}

// Info returns the registry's entry for name, or nil if absent. It reads
// the concurrent registry directly, not through the ingress queue; the
// entry returned is the registry's own record, not a copy.
func (s *Supervisor) Info(name string) *registry.Entry {
	return s.reg.Get(name)
}

// List returns every registered entry.
func (s *Supervisor) List() []*registry.Entry {
	return s.reg.All()
}

