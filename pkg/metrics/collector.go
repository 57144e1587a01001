package metrics

import (
	"sync"
	"time"

	"github.com/cuemby/conduit/pkg/types"
)

// SnapshotSource is anything that can hand out the current snapshot
type SnapshotSource interface {
	Snapshot() types.Snapshot
}

// Collector samples the published snapshot into gauges
type Collector struct {
	source   SnapshotSource
	interval time.Duration
	now      func() time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewCollector creates a new metrics collector
func NewCollector(source SnapshotSource) *Collector {
	return &Collector{
		source:   source,
		interval: 15 * time.Second,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

func (c *Collector) collect() {
	snap := c.source.Snapshot()

	for _, kind := range types.AllKinds {
		EntitiesTotal.WithLabelValues(string(kind)).Set(float64(snap.Len(kind)))
	}

	if snap.RefreshedAt.IsZero() {
		SnapshotAge.Set(0)
		return
	}
	SnapshotAge.Set(c.now().Sub(snap.RefreshedAt).Seconds())
}
