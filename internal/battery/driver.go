package battery

import (
	"context"
	"log/slog"
	"strconv"
	"sync"

	"dronetaxi-sim/internal/storage"
)

// DriverKey is the store key holding the simulated driver's battery.
const DriverKey = "drone-deploy-driver-battery"

// Driver is the persisted battery scalar of the single simulated driver drone.
// The cached level follows writes made by other processes on the same store.
type Driver struct {
	mu    sync.Mutex
	store storage.Store
	key   string
	level int
	unsub func()
	log   *slog.Logger
}

// NewDriver loads the driver battery from store. Read errors fall back to Full.
func NewDriver(ctx context.Context, store storage.Store, log *slog.Logger) *Driver {
	if log == nil {
		log = slog.Default()
	}
	d := &Driver{store: store, key: DriverKey, level: Full, log: log}
	raw, ok, err := store.Get(ctx, d.key)
	switch {
	case err != nil:
		log.Warn("cannot read driver battery", "err", err)
	case ok:
		d.level = ParseLevel(raw)
	}
	d.unsub = store.Subscribe(d.key, func(c storage.Change) {
		level := Full
		if !c.Deleted {
			level = ParseLevel(c.Value)
		}
		d.mu.Lock()
		d.level = level
		d.mu.Unlock()
	})
	return d
}

// Level returns the cached level.
func (d *Driver) Level() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.level
}

// Set clamps and stores level, returning the stored value. Write failures are
// logged and the in-memory value stays authoritative.
func (d *Driver) Set(ctx context.Context, level int) int {
	level = Clamp(level)
	d.mu.Lock()
	d.level = level
	d.mu.Unlock()
	if err := d.store.Set(ctx, d.key, strconv.Itoa(level)); err != nil {
		d.log.Warn("cannot persist driver battery", "level", level, "err", err)
	}
	return level
}

// Subscribe calls fn with every level written to the store.
func (d *Driver) Subscribe(fn func(level int)) func() {
	return d.store.Subscribe(d.key, func(c storage.Change) {
		if c.Deleted {
			fn(Full)
			return
		}
		fn(ParseLevel(c.Value))
	})
}

// Close detaches from store notifications.
func (d *Driver) Close() {
	d.unsub()
}
