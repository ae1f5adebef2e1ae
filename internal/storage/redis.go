package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisChannel carries change notifications between processes.
const DefaultRedisChannel = "dronetaxi:changes"

type envelope struct {
	Origin string `json:"origin"`
	Change
}

// Redis is a Store backed by Redis string keys. Writes are published on a
// pub/sub channel so other processes sharing the server see them.
type Redis struct {
	client  *redis.Client
	owned   bool
	prefix  string
	channel string
	origin  string
	hub     *hub
	pubsub  *redis.PubSub
	done    chan struct{}
	log     *slog.Logger
}

// RedisOption configures a Redis store.
type RedisOption func(*Redis)

// WithKeyPrefix namespaces every key.
func WithKeyPrefix(p string) RedisOption {
	return func(r *Redis) { r.prefix = p }
}

// WithChannel overrides the notification channel.
func WithChannel(ch string) RedisOption {
	return func(r *Redis) {
		if ch != "" {
			r.channel = ch
		}
	}
}

// WithRedisLogger sets the logger used by the notification listener.
func WithRedisLogger(l *slog.Logger) RedisOption {
	return func(r *Redis) {
		if l != nil {
			r.log = l
		}
	}
}

// DialRedis connects to addr and returns a store owning the client.
func DialRedis(ctx context.Context, addr string, opts ...RedisOption) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	r, err := NewRedis(ctx, client, opts...)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	r.owned = true
	return r, nil
}

// NewRedis wraps an existing client and starts listening for remote changes.
func NewRedis(ctx context.Context, client *redis.Client, opts ...RedisOption) (*Redis, error) {
	r := &Redis{
		client:  client,
		channel: DefaultRedisChannel,
		origin:  uuid.NewString(),
		hub:     newHub(),
		done:    make(chan struct{}),
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.pubsub = client.Subscribe(ctx, r.channel)
	if _, err := r.pubsub.Receive(ctx); err != nil {
		_ = r.pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	go r.listen(r.pubsub.Channel())
	return r, nil
}

func (r *Redis) listen(ch <-chan *redis.Message) {
	defer close(r.done)
	for msg := range ch {
		var env envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			r.log.Warn("discarding malformed change notification", "err", err)
			continue
		}
		if env.Origin == r.origin {
			continue
		}
		r.hub.publish(env.Change)
	}
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, true, nil
}

func (r *Redis) Set(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, r.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return r.notify(ctx, Change{Key: key, Value: value})
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return r.notify(ctx, Change{Key: key, Deleted: true})
}

func (r *Redis) notify(ctx context.Context, c Change) error {
	r.hub.publish(c)
	payload, err := json.Marshal(envelope{Origin: r.origin, Change: c})
	if err != nil {
		return fmt.Errorf("encode change: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

func (r *Redis) Subscribe(key string, fn func(Change)) func() {
	return r.hub.subscribe(key, fn)
}

// Close stops the listener and closes the client when the store owns it.
func (r *Redis) Close() error {
	err := r.pubsub.Close()
	<-r.done
	if r.owned {
		if cerr := r.client.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
