package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/walnadz/solatsyncmy/internal/waktusolat"
)

// RedisOptions configures the redis-backed store
type RedisOptions struct {
	Addr     string
	Username string
	Password string
	DB       int
	TTL      time.Duration
}

// Redis is a Store shared between instances through redis
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects to redis and verifies the connection with PING
func NewRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Username: opts.Username,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", opts.Addr, err)
	}
	return NewRedisFromClient(client, opts.TTL), nil
}

// NewRedisFromClient wraps an existing client
func NewRedisFromClient(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, ttl: ttl}
}

// Load returns a stored schedule
func (r *Redis) Load(ctx context.Context, zone string, year int, month time.Month) (*waktusolat.MonthlySchedule, error) {
	data, err := r.client.Get(ctx, Key(zone, year, month)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading schedule: %w", err)
	}
	return decode(data, "redis")
}

// Save stores a schedule with the configured TTL
func (r *Redis) Save(ctx context.Context, schedule *waktusolat.MonthlySchedule) error {
	data, err := encode(schedule)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, Key(schedule.Zone, schedule.Year, schedule.Month), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("writing schedule: %w", err)
	}
	return nil
}

// Close closes the redis client
func (r *Redis) Close() error {
	return r.client.Close()
}
