// Package rides keeps the append-only log of rides completed by the driver.
package rides

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"dronetaxi-sim/internal/storage"
)

// Key is the store key holding the completed-ride list.
const Key = "drone-deploy-driver-completed-rides"

// Ride is one completed ride.
type Ride struct {
	ID          string    `json:"id"`
	DroneID     string    `json:"droneId"`
	DroneName   string    `json:"droneName"`
	Origin      string    `json:"origin"`
	Destination string    `json:"destination"`
	Passengers  int       `json:"passengers"`
	CompletedAt time.Time `json:"completedAt"`
	ETA         string    `json:"eta,omitempty"`
}

// Log reads and appends rides in a Store.
type Log struct {
	mu    sync.Mutex
	store storage.Store
	max   int
	now   func() time.Time
	log   *slog.Logger
}

// Option configures a Log.
type Option func(*Log)

// WithMax keeps at most n rides, dropping the oldest. Zero means unbounded.
func WithMax(n int) Option {
	return func(l *Log) {
		if n >= 0 {
			l.max = n
		}
	}
}

// WithClock sets the time source used for completion timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(lg *slog.Logger) Option {
	return func(l *Log) {
		if lg != nil {
			l.log = lg
		}
	}
}

// NewLog returns a ride log over store.
func NewLog(store storage.Store, opts ...Option) *Log {
	l := &Log{store: store, now: time.Now, log: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// List returns every ride, newest first. Unreadable data yields an empty list.
func (l *Log) List(ctx context.Context) []Ride {
	raw, ok, err := l.store.Get(ctx, Key)
	if err != nil {
		l.log.Warn("cannot read completed rides", "err", err)
		return nil
	}
	if !ok {
		return nil
	}
	var list []Ride
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		l.log.Debug("discarding malformed completed rides", "err", err)
		return nil
	}
	slices.SortStableFunc(list, func(a, b Ride) int {
		return b.CompletedAt.Compare(a.CompletedAt)
	})
	return list
}

// Append records r, assigning an id and completion time when missing. The
// stored record is returned even if persisting it fails.
func (l *Log) Append(ctx context.Context, r Ride) Ride {
	if r.ID == "" {
		r.ID = "ride-" + uuid.NewString()
	}
	if r.CompletedAt.IsZero() {
		r.CompletedAt = l.now().UTC()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	list := append([]Ride{r}, l.List(ctx)...)
	if l.max > 0 && len(list) > l.max {
		list = list[:l.max]
	}
	if err := l.write(ctx, list); err != nil {
		l.log.Warn("cannot persist completed ride", "ride_id", r.ID, "err", err)
	}
	return r
}

func (l *Log) write(ctx context.Context, list []Ride) error {
	raw, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("encode rides: %w", err)
	}
	return l.store.Set(ctx, Key, string(raw))
}

// Today returns rides completed on now's calendar day in now's location.
func (l *Log) Today(ctx context.Context, now time.Time) []Ride {
	y, m, d := now.Date()
	var out []Ride
	for _, r := range l.List(ctx) {
		ry, rm, rd := r.CompletedAt.In(now.Location()).Date()
		if ry == y && rm == m && rd == d {
			out = append(out, r)
		}
	}
	return out
}

// Clear removes every ride.
func (l *Log) Clear(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.store.Delete(ctx, Key); err != nil {
		l.log.Warn("cannot clear completed rides", "err", err)
	}
}

// Stats summarises a ride list.
type Stats struct {
	Rides      int `json:"rides"`
	Passengers int `json:"passengers"`
}

// Summarize counts rides and passengers.
func Summarize(list []Ride) Stats {
	s := Stats{Rides: len(list)}
	for _, r := range list {
		s.Passengers += r.Passengers
	}
	return s
}
