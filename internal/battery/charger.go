package battery

import (
	"math"
	"sync"
	"time"

	"dronetaxi-sim/internal/clock"
)

const (
	DefaultChargeTick     = 100 * time.Millisecond
	DefaultChargeDuration = 5 * time.Second
)

// Charger raises a level linearly to Full over a fixed wall-clock duration.
type Charger struct {
	mu        sync.Mutex
	sched     clock.Scheduler
	tick      time.Duration
	duration  time.Duration
	cancel    clock.CancelFunc
	start     int
	startedAt time.Time
	level     int
	onLevel   func(int)
	onDone    func()
}

// NewCharger returns an idle charger. Non-positive durations use the defaults.
func NewCharger(sched clock.Scheduler, tick, duration time.Duration) *Charger {
	if tick <= 0 {
		tick = DefaultChargeTick
	}
	if duration <= 0 {
		duration = DefaultChargeDuration
	}
	return &Charger{sched: sched, tick: tick, duration: duration}
}

// ChargeLevel computes the level reached after elapsed time.
func ChargeLevel(start int, elapsed, duration time.Duration) int {
	frac := 1.0
	if duration > 0 {
		frac = math.Min(1, float64(elapsed)/float64(duration))
	}
	return Clamp(int(math.Round(float64(start) + float64(Full-start)*frac)))
}

// Start begins charging from level. onLevel receives every computed level and
// onDone runs once when Full is reached. It returns false when level is
// already Full or a charge is in progress.
func (c *Charger) Start(level int, onLevel func(int), onDone func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if level >= Full || c.cancel != nil {
		return false
	}
	c.start = Clamp(level)
	c.level = c.start
	c.startedAt = c.sched.Now()
	c.onLevel = onLevel
	c.onDone = onDone
	c.cancel = c.sched.Every(c.tick, c.step)
	return true
}

func (c *Charger) step() {
	c.mu.Lock()
	if c.cancel == nil {
		c.mu.Unlock()
		return
	}
	elapsed := c.sched.Now().Sub(c.startedAt)
	c.level = ChargeLevel(c.start, elapsed, c.duration)
	level, onLevel := c.level, c.onLevel
	var onDone func()
	if elapsed >= c.duration {
		c.cancel()
		c.cancel = nil
		onDone = c.onDone
	}
	c.mu.Unlock()

	if onLevel != nil {
		onLevel(level)
	}
	if onDone != nil {
		onDone()
	}
}

// Stop cancels charging, leaving the last computed level. It reports whether
// a charge was in progress.
func (c *Charger) Stop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel == nil {
		return false
	}
	c.cancel()
	c.cancel = nil
	return true
}

// Active reports whether a charge is in progress.
func (c *Charger) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil
}

// Level returns the last computed level.
func (c *Charger) Level() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.level
}
