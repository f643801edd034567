package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/compozy/relay/pkg/config"
	"github.com/compozy/relay/pkg/logger"
	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"
)

const (
	fallbackPingTimeout = 5 * time.Second
	pingRetries         = 3
	pingBackoff         = 100 * time.Millisecond
)

// Redis stores values in a Redis server under a key prefix.
type Redis struct {
	client redis.UniversalClient
	prefix string
	once   sync.Once
}

// NewRedis connects to the configured server and verifies it answers.
func NewRedis(ctx context.Context, cfg *config.RedisConfig, prefix string) (*Redis, error) {
	log := logger.FromContext(ctx).With("component", "storage_redis")
	client, err := buildRedisClient(cfg)
	if err != nil {
		return nil, err
	}
	timeout := cfg.PingTimeout
	if timeout <= 0 {
		timeout = fallbackPingTimeout
	}
	if err := pingRedis(ctx, client, timeout); err != nil {
		client.Close()
		return nil, err
	}
	log.Info("Redis storage connected", "addr", cfg.Addr, "db", cfg.DB, "prefix", prefix)
	return NewRedisWithClient(client, prefix), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client redis.UniversalClient, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func buildRedisClient(cfg *config.RedisConfig) (redis.UniversalClient, error) {
	if cfg.URL != "" {
		opt, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing Redis URL: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password.Value(),
		DB:       cfg.DB,
	}), nil
}

func pingRedis(ctx context.Context, client redis.UniversalClient, timeout time.Duration) error {
	err := retry.Do(
		ctx,
		retry.WithMaxRetries(pingRetries, retry.NewExponential(pingBackoff)),
		func(ctx context.Context) error {
			pingCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			if err := client.Ping(pingCtx).Err(); err != nil {
				return retry.RetryableError(err)
			}
			return nil
		},
	)
	if err != nil {
		return fmt.Errorf("pinging Redis server (timeout=%s): %w", timeout, err)
	}
	return nil
}

// Client returns the underlying client so other components can share the
// connection.
func (r *Redis) Client() redis.UniversalClient {
	return r.client
}

func (r *Redis) key(k string) string {
	return r.prefix + k
}

func (r *Redis) Read(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading %s: %w", key, err)
	}
	return data, true, nil
}

func (r *Redis) Write(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Remove(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("removing %s: %w", key, err)
	}
	return nil
}

// Shutdown closes the client once.
func (r *Redis) Shutdown(ctx context.Context) error {
	var err error
	r.once.Do(func() {
		err = r.client.Close()
		if err != nil {
			logger.FromContext(ctx).Error("Redis storage close failed", "error", err)
		}
	})
	return err
}
