package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dronetaxi-sim/internal/clock"
	"dronetaxi-sim/internal/geo"
)

var epoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func route() []geo.Point {
	return geo.InterpolateRoute(geo.Coord{Lat: 51.50, Lng: -0.12}, geo.Coord{Lat: 51.52, Lng: -0.10}, 0)
}

func TestIncrement(t *testing.T) {
	tick := 500 * time.Millisecond
	// Short trips are clamped to 3 km: 3000/500 = 6 ticks.
	assert.InDelta(t, 1.0/6, Increment(Entry{DistanceKM: 0.5}, ModeDistance, tick), 1e-12)
	assert.InDelta(t, 1.0/10, Increment(Entry{DistanceKM: 4.8}, ModeDistance, tick), 1e-12)
	assert.InDelta(t, 0.5/20, Increment(Entry{Duration: 20 * time.Second}, ModeDuration, tick), 1e-12)
	// Duration mode without a duration uses distance timing.
	assert.InDelta(t, 1.0/6, Increment(Entry{DistanceKM: 1}, ModeDuration, tick), 1e-12)
}

func TestCompletionFiresExactlyOnce(t *testing.T) {
	v := clock.NewVirtual(epoch)
	var fired []string
	c := New(v, OnComplete(func(id string) { fired = append(fired, id) }))
	c.Track(Entry{ID: "LON-DR-002", Route: route(), DistanceKM: 3})
	c.Start()

	v.Advance(2500 * time.Millisecond)
	p, ok := c.Progress("LON-DR-002")
	require.True(t, ok)
	assert.InDelta(t, 5.0/6, p, 1e-9)
	assert.Empty(t, fired)

	v.Advance(500 * time.Millisecond)
	p, _ = c.Progress("LON-DR-002")
	assert.Equal(t, 1.0, p)
	assert.Equal(t, []string{"LON-DR-002"}, fired)

	v.Advance(10 * time.Second)
	assert.Equal(t, []string{"LON-DR-002"}, fired)
	p, _ = c.Progress("LON-DR-002")
	assert.Equal(t, 1.0, p)
}

func TestAllAdvancedBeforeCompletion(t *testing.T) {
	v := clock.NewVirtual(epoch)
	var c *Clock
	var seen map[string]float64
	c = New(v, OnComplete(func(string) {
		if seen == nil {
			seen = c.Snapshot()
		}
	}))
	c.Track(Entry{ID: "a", Route: route(), DistanceKM: 3})
	c.Track(Entry{ID: "b", Route: route(), DistanceKM: 6})
	c.Start()
	v.Advance(3 * time.Second)

	require.NotNil(t, seen)
	assert.Equal(t, 1.0, seen["a"])
	assert.InDelta(t, 0.5, seen["b"], 1e-9)
}

func TestSyncResetsRemovedEntities(t *testing.T) {
	v := clock.NewVirtual(epoch)
	count := 0
	c := New(v, OnComplete(func(string) { count++ }))
	entry := Entry{ID: "PAR-DR-001", Route: route(), DistanceKM: 3}
	c.Sync([]Entry{entry})
	c.Start()
	v.Advance(3 * time.Second)
	assert.Equal(t, 1, count)

	// Still delivering: re-sync must not reset or re-fire.
	c.Sync([]Entry{entry})
	v.Advance(3 * time.Second)
	assert.Equal(t, 1, count)

	c.Sync(nil)
	_, ok := c.Progress("PAR-DR-001")
	assert.False(t, ok)

	c.Sync([]Entry{entry})
	p, _ := c.Progress("PAR-DR-001")
	assert.Equal(t, 0.0, p)
	v.Advance(3 * time.Second)
	assert.Equal(t, 2, count)
}

func TestStopAndClose(t *testing.T) {
	v := clock.NewVirtual(epoch)
	c := New(v, WithTick(time.Second))
	c.Track(Entry{ID: "x", Route: route(), DistanceKM: 10})
	c.Start()
	c.Start()
	assert.True(t, c.Running())
	v.Advance(2 * time.Second)
	c.Stop()
	assert.False(t, c.Running())
	before := c.Snapshot()["x"]
	v.Advance(5 * time.Second)
	assert.Equal(t, before, c.Snapshot()["x"])
	assert.Equal(t, 0, v.Pending())

	c.Start()
	c.Close()
	assert.Empty(t, c.Snapshot())
	assert.Equal(t, 0, v.Pending())
}

func TestStateInterpolatesPosition(t *testing.T) {
	v := clock.NewVirtual(epoch)
	r := route()
	c := New(v)
	c.Track(Entry{ID: "d", Route: r, DistanceKM: 3})

	s, ok := c.State("d")
	require.True(t, ok)
	assert.Equal(t, r[0].Lat(), s.Lat)
	assert.Equal(t, r[0].Lng(), s.Lng)
	assert.Greater(t, s.Bearing, 0.0)
	assert.Less(t, s.Bearing, 90.0)

	c.Step()
	states := c.States()
	require.Len(t, states, 1)
	assert.InDelta(t, 1.0/6, states[0].Progress, 1e-9)

	_, ok = c.State("missing")
	assert.False(t, ok)
}
