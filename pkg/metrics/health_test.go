package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/conduit/pkg/types"
)

func resetHealth(version string) {
	healthChecker = &HealthChecker{
		components: make(map[string]ComponentHealth),
		startTime:  time.Now(),
		version:    version,
	}
}

func registerReady() {
	RegisterComponent(ComponentReconciler, true, "")
	RegisterComponent(ComponentCache, true, "")
	RegisterComponent(ComponentAPI, true, "")
}

func TestRegisterComponent(t *testing.T) {
	resetHealth("")

	RegisterComponent("test-component", true, "running")

	require.Len(t, healthChecker.components, 1)
	comp := healthChecker.components["test-component"]
	assert.True(t, comp.Healthy)
	assert.Equal(t, "running", comp.Message)
}

func TestUpdateComponent(t *testing.T) {
	resetHealth("")

	RegisterComponent("test", true, "ok")
	UpdateComponent("test", false, "error")

	comp := healthChecker.components["test"]
	assert.False(t, comp.Healthy)
	assert.Equal(t, "error", comp.Message)
}

func TestKindComponent(t *testing.T) {
	assert.Equal(t, "kind/routes", KindComponent(types.KindRoute))
	assert.Equal(t, "probe/admin", ProbeComponent("admin"))
}

func TestGetHealth(t *testing.T) {
	tests := []struct {
		name   string
		setup  func()
		status string
	}{
		{
			name: "all healthy",
			setup: func() {
				registerReady()
				RegisterComponent(KindComponent(types.KindRoute), true, "")
			},
			status: "healthy",
		},
		{
			name: "stale kind degrades",
			setup: func() {
				registerReady()
				RegisterComponent(KindComponent(types.KindRoute), false, "connection refused")
			},
			status: "degraded",
		},
		{
			name: "critical component unhealthy",
			setup: func() {
				registerReady()
				RegisterComponent(KindComponent(types.KindRoute), false, "connection refused")
				UpdateComponent(ComponentCache, false, "disk full")
			},
			status: "unhealthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetHealth("1.0.0")
			tt.setup()

			health := GetHealth()
			assert.Equal(t, tt.status, health.Status)
			assert.Equal(t, "1.0.0", health.Version)
		})
	}

	resetHealth("")
	registerReady()
	RegisterComponent(KindComponent(types.KindService), false, "timeout")
	health := GetHealth()
	assert.Equal(t, "unhealthy: timeout", health.Components["kind/services"])
	assert.Equal(t, "healthy", health.Components[ComponentAPI])
}

func TestGetReadiness(t *testing.T) {
	resetHealth("")
	registerReady()
	RegisterComponent(KindComponent(types.KindRoute), false, "stale")
	assert.Equal(t, "ready", GetReadiness().Status, "stale kinds do not affect readiness")

	resetHealth("")
	RegisterComponent(ComponentAPI, true, "")
	readiness := GetReadiness()
	assert.Equal(t, "not_ready", readiness.Status)
	assert.NotEmpty(t, readiness.Message)

	resetHealth("")
	registerReady()
	UpdateComponent(ComponentReconciler, false, "no snapshot yet")
	assert.Equal(t, "not_ready", GetReadiness().Status)
}

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name   string
		setup  func()
		code   int
		status string
	}{
		{name: "healthy", setup: registerReady, code: http.StatusOK, status: "healthy"},
		{
			name: "degraded still serves",
			setup: func() {
				registerReady()
				RegisterComponent(KindComponent(types.KindUpstream), false, "timeout")
			},
			code:   http.StatusOK,
			status: "degraded",
		},
		{
			name: "unhealthy",
			setup: func() {
				RegisterComponent(ComponentCache, false, "broken")
			},
			code:   http.StatusServiceUnavailable,
			status: "unhealthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetHealth("test")
			tt.setup()

			req := httptest.NewRequest("GET", "/health", nil)
			w := httptest.NewRecorder()
			HealthHandler()(w, req)

			assert.Equal(t, tt.code, w.Code)
			var health HealthStatus
			require.NoError(t, json.NewDecoder(w.Body).Decode(&health))
			assert.Equal(t, tt.status, health.Status)
			assert.Equal(t, "test", health.Version)
		})
	}
}

func TestReadyHandler(t *testing.T) {
	resetHealth("")
	registerReady()

	w := httptest.NewRecorder()
	ReadyHandler()(w, httptest.NewRequest("GET", "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	resetHealth("")
	w = httptest.NewRecorder()
	ReadyHandler()(w, httptest.NewRequest("GET", "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var readiness HealthStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&readiness))
	assert.Equal(t, "not_ready", readiness.Status)
}

func TestLivenessHandler(t *testing.T) {
	resetHealth("")

	w := httptest.NewRecorder()
	LivenessHandler()(w, httptest.NewRequest("GET", "/live", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "alive", response["status"])
	assert.NotEmpty(t, response["uptime"])
}
