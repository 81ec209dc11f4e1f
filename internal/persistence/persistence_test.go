package persistence_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helix-host/helix/internal/persistence"
	"github.com/helix-host/helix/internal/registry"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	reg := registry.New()
	reg.Put(&registry.Entry{Name: "widget", State: registry.Running})
	reg.Put(&registry.Entry{Name: "gadget", State: registry.Stopped})

	path := filepath.Join(t.TempDir(), persistence.FileName)
	require.NoError(t, persistence.Save(path, reg))

	saved, err := persistence.Load(path)
	require.NoError(t, err)
	assert.Equal(t, registry.Running, saved["widget"])
	assert.Equal(t, registry.Stopped, saved["gadget"])
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	saved, err := persistence.Load(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Empty(t, saved)
}

func TestLoadMalformedFileDegradesToEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), persistence.FileName)
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	saved, err := persistence.Load(path)
	require.NoError(t, err)
	assert.Empty(t, saved)
}

func TestBuildPlanSeparatesEnableAndStartTargets(t *testing.T) {
	plan := persistence.BuildPlan(map[string]registry.State{
		"installed-only": registry.Installed,
		"initialized":    registry.Initialized,
		"stopped":        registry.Stopped,
		"running":        registry.Running,
	})

	assert.ElementsMatch(t, []string{"initialized", "stopped", "running"}, plan.EnableTargets)
	assert.ElementsMatch(t, []string{"running"}, plan.StartTargets)
}

func TestPathIsSiblingOfModulesDir(t *testing.T) {
	got := persistence.Path("/var/lib/helix/modules")
	assert.Equal(t, "/var/lib/helix/"+persistence.FileName, got)
}
