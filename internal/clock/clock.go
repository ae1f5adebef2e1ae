// Package clock abstracts periodic and delayed callbacks so simulation
// components can run on wall-clock time or on a deterministic virtual clock.
package clock

import "time"

// CancelFunc stops a scheduled callback. Calling it more than once is safe.
type CancelFunc func()

// Scheduler runs callbacks after a delay or on a fixed period.
type Scheduler interface {
	// Every runs fn each interval until cancelled.
	Every(interval time.Duration, fn func()) CancelFunc
	// After runs fn once after delay unless cancelled first.
	After(delay time.Duration, fn func()) CancelFunc
	// Now returns the scheduler's current time.
	Now() time.Time
}
