package supervisor_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/helix-host/helix/internal/archive"
	"github.com/helix-host/helix/internal/manifest"
	"github.com/helix-host/helix/internal/registry"
	"github.com/helix-host/helix/internal/resolver"
	"github.com/helix-host/helix/internal/supervisor"
)

// These tests exercise the pieces of the state machine that don't
// require an actual loadable shared object: resolver-backed enable
// preconditions and the registry bookkeeping supervisor.Supervisor
// relies on. Loader-dependent behavior (load/init/start against a real
// .so) is not covered here: no loadable module is built by these tests.

type PreconditionSuite struct {
	suite.Suite
}

func (s *PreconditionSuite) TestRegistryKeepsNonInstalledState() {
	reg := registry.New()
	reg.Put(&registry.Entry{Name: "a", State: registry.Running})
	e := reg.Get("a")
	s.Require().NotNil(e)
	s.NotEqual(registry.Installed, e.State)
}

func (s *PreconditionSuite) TestResolverMissingBlocksEnable() {
	r := resolver.New()
	require.NoError(s.T(), r.Add(&manifest.Manifest{
		Name: "a", Version: "1.0.0", BinaryPath: "a.so",
		Dependencies: []manifest.Dependency{{Name: "b", Requirement: ">=1.0.0"}},
	}))
	res := r.Resolve([]string{"a"})
	s.Equal([]string{"b"}, res.Missing)
}

func TestPreconditionSuite(t *testing.T) {
	suite.Run(t, new(PreconditionSuite))
}

func TestShutdownIsIdempotent(t *testing.T) {
	sup, err := supervisor.New()
	require.NoError(t, err)
	require.NoError(t, sup.Initialize(context.Background(), t.TempDir()))

	require.NoError(t, sup.Shutdown(context.Background()))
	require.NoError(t, sup.Shutdown(context.Background()))
	require.Empty(t, sup.RunningModules())
}

// buildPackage assembles a minimal .helx archive (manifest only, no real
// shared object) in a temp dir and returns its path. Good enough to
// exercise Install/Uninstall, which never dlopen the binary themselves.
func buildPackage(t *testing.T, name, version string) string {
	t.Helper()
	staging := t.TempDir()
	m := &manifest.Manifest{Name: name, Version: version, BinaryPath: name + ".so"}
	data, err := manifest.Marshal(m)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(staging, "manifest.json"), data, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(staging, name+".so"), []byte("not a real binary"), 0o644))

	archivePath := filepath.Join(t.TempDir(), name+archive.Extension)
	require.NoError(t, archive.Pack(staging, archivePath))
	return archivePath
}

func TestInstallAndUninstallRoundTrip(t *testing.T) {
	sup, err := supervisor.New()
	require.NoError(t, err)

	modulesDir := t.TempDir()
	require.NoError(t, sup.Initialize(context.Background(), modulesDir))

	pkgPath := buildPackage(t, "widget", "1.0.0")
	require.NoError(t, sup.Install(context.Background(), pkgPath))

	e := sup.Info("widget")
	require.NotNil(t, e)
	require.Equal(t, registry.Installed, e.State)

	require.NoError(t, sup.Uninstall(context.Background(), "widget"))
	require.Nil(t, sup.Info("widget"))
}

func TestUninstallRefusesWithDependents(t *testing.T) {
	sup, err := supervisor.New()
	require.NoError(t, err)

	modulesDir := t.TempDir()
	require.NoError(t, sup.Initialize(context.Background(), modulesDir))

	require.NoError(t, sup.Install(context.Background(), buildPackage(t, "base", "1.0.0")))

	staging := t.TempDir()
	m := &manifest.Manifest{
		Name: "top", Version: "1.0.0", BinaryPath: "top.so",
		Dependencies: []manifest.Dependency{{Name: "base"}},
	}
	data, err := manifest.Marshal(m)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(staging, "manifest.json"), data, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(staging, "top.so"), []byte("x"), 0o644))
	archivePath := filepath.Join(t.TempDir(), "top"+archive.Extension)
	require.NoError(t, archive.Pack(staging, archivePath))
	require.NoError(t, sup.Install(context.Background(), archivePath))

	err = sup.Uninstall(context.Background(), "base")
	require.Error(t, err)
}
