package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/compozy/relay/pkg/config"
	"github.com/compozy/relay/pkg/logger"
)

// ErrClosed is returned by operations on a storage after Shutdown.
var ErrClosed = errors.New("storage is shut down")

// Storage persists opaque values by key.
type Storage interface {
	// Read returns the value stored under key and whether it exists.
	Read(ctx context.Context, key string) ([]byte, bool, error)
	// Write stores value under key. A zero ttl never expires.
	Write(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Remove(ctx context.Context, key string) error
	Shutdown(ctx context.Context) error
}

// New creates the storage selected by the session driver.
func New(ctx context.Context, cfg *config.Config) (Storage, error) {
	log := logger.FromContext(ctx).With("component", "storage")
	switch cfg.Session.Driver {
	case "", "memory":
		log.Debug("Using memory storage")
		return NewMemory(), nil
	case "redis":
		r, err := NewRedis(ctx, &cfg.Redis, cfg.Session.Prefix)
		if err != nil {
			return nil, err
		}
		return r, nil
	case DialectSQLite, DialectPostgres:
		s, err := NewSQL(ctx, cfg.Session.Driver, &cfg.Database, cfg.Session.Prefix)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Session.Driver)
	}
}
