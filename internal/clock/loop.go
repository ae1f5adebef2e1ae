package clock

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Loop is a wall-clock Scheduler that executes every callback serially on the
// goroutine calling Run. Timer goroutines only post work to the loop.
type Loop struct {
	events chan func()
	done   chan struct{}
	once   sync.Once
}

// NewLoop creates a loop. Callbacks do not execute until Run is called.
func NewLoop() *Loop {
	return &Loop{
		events: make(chan func(), 64),
		done:   make(chan struct{}),
	}
}

// Run executes posted callbacks until ctx is done.
func (l *Loop) Run(ctx context.Context) {
	defer l.once.Do(func() { close(l.done) })
	for {
		select {
		case fn := <-l.events:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

// Do posts fn to the loop and waits for it to run. It returns false if the
// loop stopped or ctx ended before fn ran.
func (l *Loop) Do(ctx context.Context, fn func()) bool {
	ran := make(chan struct{})
	job := func() {
		fn()
		close(ran)
	}
	select {
	case l.events <- job:
	case <-l.done:
		return false
	case <-ctx.Done():
		return false
	}
	select {
	case <-ran:
		return true
	case <-l.done:
		return false
	case <-ctx.Done():
		return false
	}
}

func (l *Loop) post(stopped *atomic.Bool, fn func()) bool {
	job := func() {
		if !stopped.Load() {
			fn()
		}
	}
	select {
	case l.events <- job:
		return true
	case <-l.done:
		return false
	}
}

// Every implements Scheduler.
func (l *Loop) Every(interval time.Duration, fn func()) CancelFunc {
	var stopped atomic.Bool
	quit := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if !l.post(&stopped, fn) {
					return
				}
			case <-quit:
				return
			case <-l.done:
				return
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			stopped.Store(true)
			close(quit)
		})
	}
}

// After implements Scheduler.
func (l *Loop) After(delay time.Duration, fn func()) CancelFunc {
	var stopped atomic.Bool
	t := time.AfterFunc(delay, func() {
		if !stopped.Load() {
			l.post(&stopped, fn)
		}
	})
	return func() {
		stopped.Store(true)
		t.Stop()
	}
}

// Now implements Scheduler.
func (l *Loop) Now() time.Time { return time.Now() }
