package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const createKVTable = `CREATE TABLE IF NOT EXISTS dronetaxi_kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// SQL is a Store backed by a PostgreSQL table. Change notification is local
// to the process.
type SQL struct {
	db    *sql.DB
	owned bool
	hub   *hub
}

// OpenSQL connects to a PostgreSQL database through the pgx driver.
func OpenSQL(ctx context.Context, databaseURL string) (*SQL, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("verify postgres connection: %w", err)
	}
	s, err := NewSQL(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// NewSQL wraps db, creating the key-value table if needed.
func NewSQL(ctx context.Context, db *sql.DB) (*SQL, error) {
	if _, err := db.ExecContext(ctx, createKVTable); err != nil {
		return nil, fmt.Errorf("create kv table: %w", err)
	}
	return &SQL{db: db, hub: newHub()}, nil
}

func (s *SQL) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM dronetaxi_kv WHERE key = $1`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("select %s: %w", key, err)
	}
	return v, true, nil
}

func (s *SQL) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO dronetaxi_kv (key, value, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`, key, value)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	s.hub.publish(Change{Key: key, Value: value})
	return nil
}

func (s *SQL) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM dronetaxi_kv WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	s.hub.publish(Change{Key: key, Deleted: true})
	return nil
}

func (s *SQL) Subscribe(key string, fn func(Change)) func() {
	return s.hub.subscribe(key, fn)
}

func (s *SQL) Close() error {
	if s.owned {
		return s.db.Close()
	}
	return nil
}
