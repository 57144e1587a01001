package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/conduit/pkg/types"
)

type fixedSource struct {
	snap types.Snapshot
}

func (f fixedSource) Snapshot() types.Snapshot { return f.snap }

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 1)
	g.Collect(ch)
	m := <-ch

	var pb dto.Metric
	require.NoError(t, m.Write(&pb))
	return pb.GetGauge().GetValue()
}

func TestCollectorCollect(t *testing.T) {
	refreshed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	src := fixedSource{snap: types.Snapshot{
		EntitySet: types.EntitySet{
			Routes:   []types.Route{{ID: "r1"}, {ID: "r2"}},
			Services: []types.Service{{ID: "s1"}},
		},
		RefreshedAt: refreshed,
	}}

	c := NewCollector(src)
	c.now = func() time.Time { return refreshed.Add(90 * time.Second) }
	c.collect()

	assert.Equal(t, 2.0, gaugeValue(t, EntitiesTotal.WithLabelValues("routes")))
	assert.Equal(t, 1.0, gaugeValue(t, EntitiesTotal.WithLabelValues("services")))
	assert.Equal(t, 0.0, gaugeValue(t, EntitiesTotal.WithLabelValues("consumers")))
	assert.Equal(t, 90.0, gaugeValue(t, SnapshotAge))
}

func TestCollectorStartStop(t *testing.T) {
	c := NewCollector(fixedSource{})
	c.Start()
	c.Stop()
	c.Stop()
}
