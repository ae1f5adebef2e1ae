// Package storage provides the durable key-value port used by the simulation
// core, with change notification for other readers of the same store.
package storage

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("storage: store closed")

// Change describes a write observed on a key.
type Change struct {
	Key     string `json:"key"`
	Value   string `json:"value,omitempty"`
	Deleted bool   `json:"deleted,omitempty"`
}

// Store is a string key-value store. Writes are last-write-wins.
type Store interface {
	// Get returns the value for key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	// Subscribe calls fn for every change to key, including changes made by
	// other processes when the backend supports it. The returned func unsubscribes.
	Subscribe(key string, fn func(Change)) (unsubscribe func())
	Close() error
}

// hub fans changes out to local subscribers.
type hub struct {
	mu   sync.Mutex
	next int
	subs map[string]map[int]func(Change)
}

func newHub() *hub {
	return &hub{subs: make(map[string]map[int]func(Change))}
}

func (h *hub) subscribe(key string, fn func(Change)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	id := h.next
	if h.subs[key] == nil {
		h.subs[key] = make(map[int]func(Change))
	}
	h.subs[key][id] = fn
	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[key], id)
			if len(h.subs[key]) == 0 {
				delete(h.subs, key)
			}
		})
	}
}

// publish runs subscribers outside the lock so they may read the store.
func (h *hub) publish(c Change) {
	h.mu.Lock()
	subs := h.subs[c.Key]
	fns := make([]func(Change), 0, len(subs))
	for _, id := range slices.Sorted(maps.Keys(subs)) {
		fns = append(fns, subs[id])
	}
	h.mu.Unlock()
	for _, fn := range fns {
		fn(c)
	}
}
