package health

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/conduit/pkg/log"
	"github.com/cuemby/conduit/pkg/metrics"
)

// Monitor runs named probes on a fixed interval and publishes each one as
// a health component. Probe components are not critical: a failing probe
// degrades /health but does not take the console out of /ready.
type Monitor struct {
	config Config
	logger zerolog.Logger

	mu     sync.RWMutex
	probes map[string]*probe

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type probe struct {
	name    string
	checker Checker
	status  *Status
}

// NewMonitor creates a monitor. Zero fields of cfg take DefaultConfig values.
func NewMonitor(cfg Config) *Monitor {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Retries < 1 {
		cfg.Retries = def.Retries
	}
	return &Monitor{
		config: cfg,
		logger: log.WithComponent("probe"),
		probes: make(map[string]*probe),
		stopCh: make(chan struct{}),
	}
}

// Add registers a probe. Call before Start.
func (m *Monitor) Add(name string, checker Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probes[name] = &probe{name: name, checker: checker, status: NewStatus()}
	metrics.RegisterComponent(metrics.ProbeComponent(name), true, "not checked yet")
}

// Start runs every probe once immediately and then on the interval
func (m *Monitor) Start() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.probes {
		m.wg.Add(1)
		go m.loop(p)
	}
}

// Stop ends all probe loops and waits for them
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
}

// Status returns a copy of the named probe's status
func (m *Monitor) Status(name string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.probes[name]
	if !ok {
		return Status{}, false
	}
	return *p.status, true
}

func (m *Monitor) loop(p *probe) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	m.run(p)
	for {
		select {
		case <-ticker.C:
			m.run(p)
		case <-m.stopCh:
			return
		}
	}
}

func (m *Monitor) run(p *probe) {
	ctx, cancel := context.WithTimeout(context.Background(), m.config.Timeout)
	defer cancel()

	result := p.checker.Check(ctx)

	m.mu.Lock()
	changed := p.status.Update(result, m.config)
	healthy := p.status.Healthy
	failures := p.status.ConsecutiveFailures
	m.mu.Unlock()

	message := ""
	if !result.Healthy {
		message = result.Message
	}
	metrics.UpdateComponent(metrics.ProbeComponent(p.name), healthy, message)

	logger := m.logger.With().Str("probe", p.name).Str("type", string(p.checker.Type())).Logger()
	switch {
	case changed && healthy:
		logger.Info().Dur("duration", result.Duration).Msg("Probe recovered")
	case changed:
		logger.Warn().Int("failures", failures).Str("reason", result.Message).Msg("Probe unhealthy")
	case !result.Healthy:
		logger.Debug().Int("failures", failures).Str("reason", result.Message).Msg("Probe check failed")
	}
}
