package api_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helix-host/helix/api"
	"github.com/helix-host/helix/internal/manifest"
)

type fakeLifecycle struct {
	calls []string
	fail  string
}

func (f *fakeLifecycle) Enable(ctx context.Context, name string) error  { return f.record("enable", name) }
func (f *fakeLifecycle) Disable(ctx context.Context, name string) error { return f.record("disable", name) }
func (f *fakeLifecycle) Start(ctx context.Context, name string) error   { return f.record("start", name) }
func (f *fakeLifecycle) Stop(ctx context.Context, name string) error    { return f.record("stop", name) }

func (f *fakeLifecycle) record(op, name string) error {
	f.calls = append(f.calls, op)
	if f.fail == op {
		return errors.New(op + " failed")
	}
	return nil
}

func TestSupervisedPluginStartEnablesThenStarts(t *testing.T) {
	lc := &fakeLifecycle{}
	p := api.NewSupervisedPlugin("widget", lc)

	require.NoError(t, p.Start(context.Background()))
	assert.Equal(t, []string{"enable", "start"}, lc.calls)
	assert.Equal(t, "widget", p.Name())
}

func TestSupervisedPluginReloadDisablesEnablesStarts(t *testing.T) {
	lc := &fakeLifecycle{}
	p := api.NewSupervisedPlugin("widget", lc)

	require.NoError(t, p.Reload(context.Background()))
	assert.Equal(t, []string{"disable", "enable", "start"}, lc.calls)
}

func TestSupervisedPluginStartStopsOnEnableFailure(t *testing.T) {
	lc := &fakeLifecycle{fail: "enable"}
	p := api.NewSupervisedPlugin("widget", lc)

	err := p.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"enable"}, lc.calls)
}

func TestStateHealthIsRunning(t *testing.T) {
	entries := map[string]*api.Entry{
		"widget": {Name: "widget", State: "Running"},
		"gadget": {Name: "gadget", State: "Stopped"},
	}
	h := api.NewStateHealth(api.SourceFunc(func(name string) *api.Entry { return entries[name] }))

	running, err := h.IsRunning("widget")
	require.NoError(t, err)
	assert.True(t, running)

	running, err = h.IsRunning("gadget")
	require.NoError(t, err)
	assert.False(t, running)

	_, err = h.IsRunning("missing")
	assert.Error(t, err)
}

func TestManifestValidator(t *testing.T) {
	v := api.NewManifestValidator(func(data []byte) error {
		_, err := manifest.ParseString(data)
		return err
	})

	good := []byte(`{"name":"widget","version":"1.0.0","binary_path":"widget.so"}`)
	assert.NoError(t, v.ValidateManifest(good))

	bad := []byte(`{"name":"widget"}`)
	assert.Error(t, v.ValidateManifest(bad))
}
