package clock

import (
	"sync"
	"time"
)

type virtualTimer struct {
	seq       uint64
	due       time.Time
	interval  time.Duration
	fn        func()
	cancelled bool
}

// Virtual is a manually advanced Scheduler for deterministic tests and replays.
// Timers due at the same instant fire in the order they were scheduled.
type Virtual struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	timers []*virtualTimer
}

// NewVirtual returns a virtual clock starting at start.
func NewVirtual(start time.Time) *Virtual {
	return &Virtual{now: start}
}

func (v *Virtual) schedule(delay, interval time.Duration, fn func()) CancelFunc {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.seq++
	t := &virtualTimer{seq: v.seq, due: v.now.Add(delay), interval: interval, fn: fn}
	v.timers = append(v.timers, t)
	return func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		t.cancelled = true
		v.remove(t)
	}
}

func (v *Virtual) remove(t *virtualTimer) {
	for i, x := range v.timers {
		if x == t {
			v.timers = append(v.timers[:i], v.timers[i+1:]...)
			return
		}
	}
}

// Every implements Scheduler. Non-positive intervals are treated as 1ns.
func (v *Virtual) Every(interval time.Duration, fn func()) CancelFunc {
	if interval <= 0 {
		interval = time.Nanosecond
	}
	return v.schedule(interval, interval, fn)
}

// After implements Scheduler.
func (v *Virtual) After(delay time.Duration, fn func()) CancelFunc {
	if delay < 0 {
		delay = 0
	}
	return v.schedule(delay, 0, fn)
}

// Now implements Scheduler.
func (v *Virtual) Now() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.now
}

// Pending reports how many timers are scheduled.
func (v *Virtual) Pending() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.timers)
}

// next pops the earliest timer due at or before limit, rescheduling periodic ones.
func (v *Virtual) next(limit time.Time) (func(), bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	var best *virtualTimer
	for _, t := range v.timers {
		if t.due.After(limit) {
			continue
		}
		if best == nil || t.due.Before(best.due) || (t.due.Equal(best.due) && t.seq < best.seq) {
			best = t
		}
	}
	if best == nil {
		v.now = limit
		return nil, false
	}
	v.now = best.due
	if best.interval > 0 {
		best.due = best.due.Add(best.interval)
		v.seq++
		best.seq = v.seq
	} else {
		v.remove(best)
	}
	t := best
	return func() {
		v.mu.Lock()
		cancelled := t.cancelled
		v.mu.Unlock()
		if !cancelled {
			t.fn()
		}
	}, true
}

// Advance moves virtual time forward by d, firing every timer that falls due.
// Callbacks run on the caller's goroutine and may schedule or cancel timers.
func (v *Virtual) Advance(d time.Duration) {
	limit := v.Now().Add(d)
	for {
		fire, ok := v.next(limit)
		if !ok {
			return
		}
		fire()
	}
}
