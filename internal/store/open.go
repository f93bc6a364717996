package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Backend names accepted by Open
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendRedis  = "redis"
)

// Options selects and configures a backend
type Options struct {
	Backend string
	Path    string
	TTL     time.Duration
	Redis   RedisOptions
}

// Open builds the Store named by opts.Backend
func Open(ctx context.Context, opts Options) (Store, error) {
	switch strings.ToLower(opts.Backend) {
	case "", BackendMemory:
		return NewMemory(), nil
	case BackendBadger:
		path := opts.Path
		if path == "" {
			path = DefaultPath()
		}
		return OpenBadger(BadgerOptions{Path: path, TTL: opts.TTL})
	case BackendRedis:
		ro := opts.Redis
		if ro.TTL == 0 {
			ro.TTL = opts.TTL
		}
		return NewRedis(ctx, ro)
	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
	}
}
