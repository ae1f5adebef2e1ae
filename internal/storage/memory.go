package storage

import (
	"context"
	"sync"
)

// Memory is an in-process Store.
type Memory struct {
	mu     sync.RWMutex
	data   map[string]string
	hub    *hub
	closed bool
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]string), hub: newHub()}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return "", false, ErrClosed
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.data[key] = value
	m.mu.Unlock()
	m.hub.publish(Change{Key: key, Value: value})
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	delete(m.data, key)
	m.mu.Unlock()
	m.hub.publish(Change{Key: key, Deleted: true})
	return nil
}

func (m *Memory) Subscribe(key string, fn func(Change)) func() {
	return m.hub.subscribe(key, fn)
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
