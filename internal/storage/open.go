package storage

import (
	"context"
	"fmt"
)

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendSQL    = "sql"
)

// Options selects and configures a backend.
type Options struct {
	Backend     string
	Path        string
	RedisAddr   string
	DatabaseURL string
}

// Open builds the store named by opts.Backend. An empty backend is memory.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case "", BackendMemory:
		return NewMemory(), nil
	case BackendFile:
		if opts.Path == "" {
			return nil, fmt.Errorf("file store requires a path")
		}
		f, err := OpenFile(opts.Path)
		if err != nil {
			return nil, err
		}
		return f, nil
	case BackendRedis:
		if opts.RedisAddr == "" {
			return nil, fmt.Errorf("redis store requires an address")
		}
		r, err := DialRedis(ctx, opts.RedisAddr)
		if err != nil {
			return nil, err
		}
		return r, nil
	case BackendSQL:
		if opts.DatabaseURL == "" {
			return nil, fmt.Errorf("sql store requires a database URL")
		}
		s, err := OpenSQL(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
	}
}
