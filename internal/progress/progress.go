// Package progress advances a 0..1 progress value per delivering entity on a
// fixed tick and fires a one-shot completion per trip.
package progress

import (
	"log/slog"
	"maps"
	"math"
	"slices"
	"sync"
	"time"

	"dronetaxi-sim/internal/clock"
	"dronetaxi-sim/internal/geo"
)

// Mode selects how a trip's per-tick increment is derived.
type Mode string

const (
	ModeDistance Mode = "distance"
	ModeDuration Mode = "duration"
)

const (
	DefaultTick = 500 * time.Millisecond
	// minTripKM keeps very short trips visible for a few seconds.
	minTripKM = 3.0
	epsilon   = 1e-9
)

// Entry describes one delivering entity handed to the clock.
type Entry struct {
	ID         string
	Route      []geo.Point
	DistanceKM float64
	// Duration is used in ModeDuration; zero falls back to distance timing.
	Duration time.Duration
}

// State is a read-only view of one tracked entity.
type State struct {
	ID        string  `json:"id"`
	Progress  float64 `json:"progress"`
	Completed bool    `json:"completed"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Bearing   float64 `json:"bearing"`
}

type track struct {
	route     []geo.Point
	progress  float64
	increment float64
	completed bool
}

// Clock tracks progress for a set of entities on a shared scheduler.
type Clock struct {
	mu         sync.Mutex
	sched      clock.Scheduler
	tick       time.Duration
	mode       Mode
	tracks     map[string]*track
	onComplete func(id string)
	onTick     func()
	cancel     clock.CancelFunc
	log        *slog.Logger
}

// Option configures a Clock.
type Option func(*Clock)

// WithTick sets the progress tick period.
func WithTick(d time.Duration) Option {
	return func(c *Clock) {
		if d > 0 {
			c.tick = d
		}
	}
}

// WithMode selects distance or duration timing.
func WithMode(m Mode) Option {
	return func(c *Clock) {
		if m == ModeDistance || m == ModeDuration {
			c.mode = m
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Clock) {
		if l != nil {
			c.log = l
		}
	}
}

// OnComplete registers the callback fired exactly once when a trip reaches 1.
func OnComplete(fn func(id string)) Option {
	return func(c *Clock) { c.onComplete = fn }
}

// OnTick registers a callback run after every tick, after completions.
func OnTick(fn func()) Option {
	return func(c *Clock) { c.onTick = fn }
}

// New creates a stopped clock.
func New(sched clock.Scheduler, opts ...Option) *Clock {
	c := &Clock{
		sched:  sched,
		tick:   DefaultTick,
		mode:   ModeDistance,
		tracks: make(map[string]*track),
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Increment returns the per-tick progress step for an entry.
func Increment(e Entry, mode Mode, tick time.Duration) float64 {
	if mode == ModeDuration && e.Duration > 0 {
		return math.Min(1, float64(tick)/float64(e.Duration))
	}
	km := math.Max(minTripKM, e.DistanceKM)
	ms := max(1, tick.Milliseconds())
	return 1 / math.Ceil(km*1000/float64(ms))
}

// Track starts tracking an entry at progress 0. An id that is already tracked
// keeps its progress and cached increment.
func (c *Clock) Track(e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trackLocked(e)
}

func (c *Clock) trackLocked(e Entry) {
	if _, ok := c.tracks[e.ID]; ok {
		return
	}
	c.tracks[e.ID] = &track{route: e.Route, increment: Increment(e, c.mode, c.tick)}
	c.log.Debug("tracking trip", "drone_id", e.ID, "increment", c.tracks[e.ID].increment)
}

// Untrack forgets an entity so a later Track starts again from 0.
func (c *Clock) Untrack(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tracks, id)
}

// Sync makes the tracked set equal to entries: new ids start at 0, missing ids
// are dropped along with their completed flag.
func (c *Clock) Sync(entries []Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	keep := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		keep[e.ID] = struct{}{}
		c.trackLocked(e)
	}
	for id := range c.tracks {
		if _, ok := keep[id]; !ok {
			delete(c.tracks, id)
		}
	}
}

// Start begins ticking. It is a no-op when already running.
func (c *Clock) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return
	}
	c.cancel = c.sched.Every(c.tick, c.Step)
}

// Stop cancels the ticker, keeping tracked progress.
func (c *Clock) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Running reports whether the ticker is active.
func (c *Clock) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil
}

// Close stops the ticker and drops every track.
func (c *Clock) Close() {
	c.Stop()
	c.mu.Lock()
	clear(c.tracks)
	c.mu.Unlock()
}

// Step advances every tracked entity by one tick. All entities are advanced
// before any completion callback runs.
func (c *Clock) Step() {
	c.mu.Lock()
	var done []string
	for _, id := range slices.Sorted(maps.Keys(c.tracks)) {
		t := c.tracks[id]
		if t.completed {
			continue
		}
		t.progress += t.increment
		if t.progress >= 1-epsilon {
			t.progress = 1
			t.completed = true
			done = append(done, id)
		}
	}
	onComplete, onTick := c.onComplete, c.onTick
	c.mu.Unlock()

	for _, id := range done {
		c.log.Debug("trip completed", "drone_id", id)
		if onComplete != nil {
			onComplete(id)
		}
	}
	if onTick != nil {
		onTick()
	}
}

// Progress returns the progress of id.
func (c *Clock) Progress(id string) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tracks[id]
	if !ok {
		return 0, false
	}
	return t.progress, true
}

// Snapshot copies the progress map.
func (c *Clock) Snapshot() map[string]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]float64, len(c.tracks))
	for id, t := range c.tracks {
		out[id] = t.progress
	}
	return out
}

// State returns the interpolated position and heading of id.
func (c *Clock) State(id string) (State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tracks[id]
	if !ok {
		return State{}, false
	}
	return stateOf(id, t), true
}

// States returns every tracked entity ordered by id.
func (c *Clock) States() []State {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]State, 0, len(c.tracks))
	for _, id := range slices.Sorted(maps.Keys(c.tracks)) {
		out = append(out, stateOf(id, c.tracks[id]))
	}
	return out
}

func stateOf(id string, t *track) State {
	pos := geo.InterpolatePosition(t.route, t.progress)
	return State{
		ID:        id,
		Progress:  t.progress,
		Completed: t.completed,
		Lat:       pos.Lat,
		Lng:       pos.Lng,
		Bearing:   geo.Bearing(t.route, t.progress),
	}
}
