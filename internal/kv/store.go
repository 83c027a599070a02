// Package kv is the key-value store the dispatcher's store: verbs and the
// booking scheduler persist into. Keys are not namespaced here; callers own
// key uniqueness. Concurrent writers are last-write-wins.
package kv

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bookcal/internal/config"
)

// ErrUnknownBackend is returned by Open for an unsupported backend name.
var ErrUnknownBackend = errors.New("kv: unknown backend")

// Store is a synchronous string-to-string store.
type Store interface {
	// Get returns the value for key. A missing key is ok=false with a nil error.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Closer is implemented by backends holding a connection.
type Closer interface {
	Close(ctx context.Context) error
}

// Open builds the backend selected by cfg.Backend.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "memory":
		return NewMemory(), nil
	case "file":
		return NewFile(cfg.Path)
	case "redis":
		return OpenRedis(ctx, RedisOptions{
			Addr:     cfg.DSN,
			Password: cfg.Password,
			DB:       cfg.DB,
			Prefix:   cfg.Prefix,
		})
	case "mongo":
		return OpenMongo(ctx, cfg.DSN, cfg.Database, cfg.Collection)
	case "postgres":
		return OpenPostgres(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

// Close releases the store's connection if it has one.
func Close(ctx context.Context, s Store) error {
	if c, ok := s.(Closer); ok {
		return c.Close(ctx)
	}
	return nil
}
