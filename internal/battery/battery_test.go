package battery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dronetaxi-sim/internal/clock"
	"dronetaxi-sim/internal/geo"
	"dronetaxi-sim/internal/logging"
	"dronetaxi-sim/internal/storage"
)

func TestDrainScenario(t *testing.T) {
	origin := geo.Coord{Lat: 24.4419, Lng: 54.6479}
	dest := geo.Coord{Lat: 24.4292, Lng: 54.6183}
	drain := Drain(origin, dest)
	assert.Equal(t, 11, drain)
	assert.Equal(t, 89, Apply(100, drain))
}

func TestDrainClamped(t *testing.T) {
	p := geo.Coord{Lat: 51.5, Lng: -0.12}
	assert.Equal(t, MinDrain, Drain(p, p))
	assert.Equal(t, MaxDrain, Drain(p, geo.Coord{Lat: 52.5, Lng: -0.12}))
	assert.Equal(t, 0, Apply(7, 20))
}

func TestParseLevel(t *testing.T) {
	cases := map[string]int{"55": 55, " 0 ": 0, "100": 100, "101": 100, "-1": 100, "abc": 100, "": 100}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestDriverDefaultsAndPersistence(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	require.NoError(t, store.Set(ctx, DriverKey, "not-a-number"))
	d := NewDriver(ctx, store, logging.Discard())
	defer d.Close()
	assert.Equal(t, 100, d.Level())

	var seen []int
	unsub := d.Subscribe(func(l int) { seen = append(seen, l) })
	defer unsub()

	assert.Equal(t, 0, d.Set(ctx, -20))
	assert.Equal(t, 60, d.Set(ctx, 60))
	raw, _, _ := store.Get(ctx, DriverKey)
	assert.Equal(t, "60", raw)
	assert.Equal(t, []int{0, 60}, seen)

	// External writers update the cached level.
	require.NoError(t, store.Set(ctx, DriverKey, "33"))
	assert.Equal(t, 33, d.Level())
}

type failingStore struct{ storage.Store }

func (failingStore) Set(context.Context, string, string) error { return errors.New("quota exceeded") }

func TestDriverWriteFailureKeepsMemoryValue(t *testing.T) {
	ctx := context.Background()
	d := NewDriver(ctx, failingStore{storage.NewMemory()}, logging.Discard())
	assert.Equal(t, 40, d.Set(ctx, 40))
	assert.Equal(t, 40, d.Level())
}

func TestOverrides(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	require.NoError(t, store.Set(ctx, OverridesKey, `{"LON-DR-001": 40, "LON-DR-002": 250, "LON-DR-003": "x"}`))
	o := NewOverrides(ctx, store, logging.Discard())
	defer o.Close()

	v, ok := o.Get("LON-DR-001")
	assert.True(t, ok)
	assert.Equal(t, 40, v)
	_, ok = o.Get("LON-DR-002")
	assert.False(t, ok)

	o.Set(ctx, "PAR-DR-001", 18)
	assert.Equal(t, map[string]int{"LON-DR-001": 40, "PAR-DR-001": 18}, o.All())

	reloaded := NewOverrides(ctx, store, logging.Discard())
	defer reloaded.Close()
	assert.Equal(t, o.All(), reloaded.All())

	o.Reset(ctx)
	assert.Empty(t, o.All())
	assert.Empty(t, reloaded.All())
}

func TestOverridesOnChange(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	o := NewOverrides(ctx, store, nil)
	defer o.Close()
	other := NewOverrides(ctx, store, nil)
	defer other.Close()

	var seen []int
	unsub := o.OnChange(func() {
		v, _ := o.Get("LON-DR-018")
		seen = append(seen, v)
	})
	o.Set(ctx, "LON-DR-018", 30)
	other.Set(ctx, "LON-DR-018", 90)
	assert.Equal(t, []int{30, 90}, seen)

	unsub()
	other.Reset(ctx)
	assert.Len(t, seen, 2)
	_, ok := o.Get("LON-DR-018")
	assert.False(t, ok)
}

func TestOverridesMalformed(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	require.NoError(t, store.Set(ctx, OverridesKey, `[1,2,3]`))
	o := NewOverrides(ctx, store, logging.Discard())
	assert.Empty(t, o.All())
}

func TestChargeLevel(t *testing.T) {
	assert.Equal(t, 40, ChargeLevel(40, 0, 5*time.Second))
	assert.Equal(t, 70, ChargeLevel(40, 2500*time.Millisecond, 5*time.Second))
	assert.Equal(t, 100, ChargeLevel(40, 9*time.Second, 5*time.Second))
}

func TestChargerReachesFull(t *testing.T) {
	v := clock.NewVirtual(time.Unix(0, 0))
	c := NewCharger(v, 100*time.Millisecond, 5*time.Second)
	var levels []int
	done := 0
	require.True(t, c.Start(50, func(l int) { levels = append(levels, l) }, func() { done++ }))
	assert.False(t, c.Start(50, nil, nil))

	v.Advance(10 * time.Second)
	require.Len(t, levels, 50)
	assert.Equal(t, 51, levels[0])
	assert.Equal(t, 100, levels[len(levels)-1])
	for i := 1; i < len(levels); i++ {
		assert.GreaterOrEqual(t, levels[i], levels[i-1])
	}
	assert.Equal(t, 1, done)
	assert.False(t, c.Active())
	assert.Equal(t, 0, v.Pending())
}

func TestChargerStop(t *testing.T) {
	v := clock.NewVirtual(time.Unix(0, 0))
	c := NewCharger(v, 0, 0)
	last := 0
	require.True(t, c.Start(0, func(l int) { last = l }, nil))
	v.Advance(time.Second)
	assert.Equal(t, 20, last)
	assert.True(t, c.Stop())
	assert.False(t, c.Stop())
	v.Advance(time.Second)
	assert.Equal(t, 20, last)
	assert.Equal(t, 20, c.Level())

	assert.False(t, c.Start(100, nil, nil))
}
