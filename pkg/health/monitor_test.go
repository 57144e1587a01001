package health

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/conduit/pkg/metrics"
)

// flakyChecker reports whatever healthy currently holds
type flakyChecker struct {
	healthy atomic.Bool
	checks  atomic.Int32
}

func (f *flakyChecker) Check(ctx context.Context) Result {
	f.checks.Add(1)
	if f.healthy.Load() {
		return Result{Healthy: true, CheckedAt: time.Now()}
	}
	return Result{Healthy: false, Message: "connection refused", CheckedAt: time.Now()}
}

func (f *flakyChecker) Type() CheckType { return CheckTypeTCP }

func componentMessage(name string) string {
	return metrics.GetHealth().Components[metrics.ProbeComponent(name)]
}

func TestMonitorReportsProbes(t *testing.T) {
	checker := &flakyChecker{}
	checker.healthy.Store(true)

	m := NewMonitor(Config{Interval: 10 * time.Millisecond, Timeout: time.Second, Retries: 2})
	m.Add("admin", checker)
	assert.Equal(t, "healthy", componentMessage("admin"))

	m.Start()
	defer m.Stop()

	require.Eventually(t, func() bool { return checker.checks.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	status, ok := m.Status("admin")
	require.True(t, ok)
	assert.True(t, status.Healthy)

	checker.healthy.Store(false)
	require.Eventually(t, func() bool {
		s, _ := m.Status("admin")
		return !s.Healthy
	}, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return componentMessage("admin") == "unhealthy: connection refused"
	}, 2*time.Second, 5*time.Millisecond)

	checker.healthy.Store(true)
	require.Eventually(t, func() bool {
		return componentMessage("admin") == "healthy"
	}, 2*time.Second, 5*time.Millisecond)

	_, ok = m.Status("cache")
	assert.False(t, ok)
}

func TestMonitorDefaults(t *testing.T) {
	m := NewMonitor(Config{})
	assert.Equal(t, DefaultConfig(), m.config)

	m.Start()
	m.Stop()
	m.Stop()
}
