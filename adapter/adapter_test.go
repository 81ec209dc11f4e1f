package adapter_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helix-host/helix/adapter"
	"github.com/helix-host/helix/internal/supervisor"
)

func TestLogAuditAdapterDoesNotPanicOnSuccessOrFailure(t *testing.T) {
	a := adapter.NewLogAuditAdapter(nil)
	assert.NotPanics(t, func() {
		a.LogEvent("enable", "widget", nil)
		a.LogEvent("enable", "widget", errors.New("boom"))
	})
}

func TestUnixNetworkAdapterDialRefusesMissingSocket(t *testing.T) {
	a := adapter.UnixNetworkAdapter{}
	_, err := a.Dial("/nonexistent/path/to/socket")
	assert.Error(t, err)
}

func TestSupervisorHealthAdapterReadyWithNoModules(t *testing.T) {
	sup, err := supervisor.New()
	require.NoError(t, err)
	require.NoError(t, sup.Initialize(context.Background(), t.TempDir()))

	h := adapter.NewSupervisorHealthAdapter(sup)
	require.NotNil(t, h.Handler())

	rec := httptest.NewRecorder()
	h.Handler().ReadyEndpoint(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
