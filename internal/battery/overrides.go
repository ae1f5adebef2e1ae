package battery

import (
	"context"
	"encoding/json"
	"log/slog"
	"maps"
	"math"
	"slices"
	"sync"

	"dronetaxi-sim/internal/storage"
)

// OverridesKey is the store key holding the per-drone override map.
const OverridesKey = "drone-deploy-battery-levels"

// Overrides maps drone ids to user-modified battery levels.
type Overrides struct {
	mu     sync.Mutex
	store  storage.Store
	key    string
	levels map[string]int
	unsub  func()
	log    *slog.Logger

	next      int
	listeners map[int]func()
}

// NewOverrides loads the override map. Malformed data yields an empty map.
func NewOverrides(ctx context.Context, store storage.Store, log *slog.Logger) *Overrides {
	if log == nil {
		log = slog.Default()
	}
	o := &Overrides{store: store, key: OverridesKey, levels: map[string]int{}, log: log, listeners: map[int]func(){}}
	raw, ok, err := store.Get(ctx, o.key)
	switch {
	case err != nil:
		log.Warn("cannot read battery overrides", "err", err)
	case ok:
		o.levels = decodeLevels(raw)
	}
	o.unsub = store.Subscribe(o.key, func(c storage.Change) {
		levels := map[string]int{}
		if !c.Deleted {
			levels = decodeLevels(c.Value)
		}
		o.mu.Lock()
		o.levels = levels
		fns := make([]func(), 0, len(o.listeners))
		for _, id := range slices.Sorted(maps.Keys(o.listeners)) {
			fns = append(fns, o.listeners[id])
		}
		o.mu.Unlock()
		for _, fn := range fns {
			fn()
		}
	})
	return o
}

// OnChange calls fn after every store write to the override map, local or
// remote, once the new levels are visible through Get and All.
func (o *Overrides) OnChange(fn func()) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.next++
	id := o.next
	o.listeners[id] = fn
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.listeners, id)
	}
}

func decodeLevels(raw string) map[string]int {
	var in map[string]any
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		return map[string]int{}
	}
	out := make(map[string]int, len(in))
	for id, n := range in {
		v, ok := n.(float64)
		if !ok || v != math.Trunc(v) || v < Empty || v > Full {
			continue
		}
		out[id] = int(v)
	}
	return out
}

// Get returns the override for id.
func (o *Overrides) Get(id string) (int, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	v, ok := o.levels[id]
	return v, ok
}

// All returns a copy of the override map.
func (o *Overrides) All() map[string]int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return maps.Clone(o.levels)
}

// Set merges a clamped level for id and persists the map.
func (o *Overrides) Set(ctx context.Context, id string, level int) int {
	level = Clamp(level)
	o.mu.Lock()
	o.levels[id] = level
	raw, err := json.Marshal(o.levels)
	o.mu.Unlock()
	if err == nil {
		err = o.store.Set(ctx, o.key, string(raw))
	}
	if err != nil {
		o.log.Warn("cannot persist battery overrides", "drone_id", id, "err", err)
	}
	return level
}

// Reset clears every override.
func (o *Overrides) Reset(ctx context.Context) {
	o.mu.Lock()
	o.levels = map[string]int{}
	o.mu.Unlock()
	if err := o.store.Delete(ctx, o.key); err != nil {
		o.log.Warn("cannot clear battery overrides", "err", err)
	}
}

// Close detaches from store notifications.
func (o *Overrides) Close() {
	o.unsub()
}
