package config

import (
	"os"
	"time"
)

// Env holds deployment settings read from the environment.
type Env struct {
	Store            string
	StorePath        string
	RedisAddr        string
	DatabaseURL      string
	GreptimeEndpoint string
	GreptimeDatabase string
	TickInterval     time.Duration
	LogLevel         string
}

// FromEnv reads Env from the process environment. Unset values keep their
// zero value except Store, which defaults to memory.
func FromEnv() Env {
	e := Env{
		Store:            getenv("DRONETAXI_STORE", "memory"),
		StorePath:        getenv("DRONETAXI_STORE_PATH", "dronetaxi-store.json"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		GreptimeEndpoint: os.Getenv("GREPTIMEDB_ENDPOINT"),
		GreptimeDatabase: getenv("GREPTIMEDB_DATABASE", "public"),
		LogLevel:         getenv("LOG_LEVEL", "info"),
	}
	if v := os.Getenv("TICK_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			e.TickInterval = d
		}
	}
	return e
}

// Apply overlays environment settings on cfg.
func (e Env) Apply(cfg *Config) {
	if e.TickInterval > 0 {
		cfg.Timings.ProgressTick = e.TickInterval
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
