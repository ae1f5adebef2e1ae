package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// File is a Store persisted as a single JSON object on disk. Every write
// rewrites the file through a temporary file and rename.
type File struct {
	mu   sync.Mutex
	path string
	data map[string]string
	hub  *hub
}

// OpenFile loads path, creating an empty store when it does not exist.
// A corrupt file is treated as empty.
func OpenFile(path string) (*File, error) {
	f := &File{path: path, data: make(map[string]string), hub: newHub()}
	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read store file: %w", err)
	default:
		if jerr := json.Unmarshal(raw, &f.data); jerr != nil {
			f.data = make(map[string]string)
		}
	}
	return f, nil
}

func (f *File) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *File) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	f.data[key] = value
	err := f.flushLocked()
	f.mu.Unlock()
	f.hub.publish(Change{Key: key, Value: value})
	return err
}

func (f *File) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	delete(f.data, key)
	err := f.flushLocked()
	f.mu.Unlock()
	f.hub.publish(Change{Key: key, Deleted: true})
	return err
}

func (f *File) Subscribe(key string, fn func(Change)) func() {
	return f.hub.subscribe(key, fn)
}

func (f *File) Close() error { return nil }

func (f *File) flushLocked() error {
	raw, err := json.MarshalIndent(f.data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}
	if dir := filepath.Dir(f.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create store dir: %w", err)
		}
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write store file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace store file: %w", err)
	}
	return nil
}
