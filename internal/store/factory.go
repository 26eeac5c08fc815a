package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DriverAuto     = "auto"
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

// Options selects and configures a store driver.
type Options struct {
	Driver         string
	RedisURL       string
	RedisKeyPrefix string
	// RedisPoolSize overrides the client pool size when positive.
	RedisPoolSize int
	DatabaseURL    string
	TTL            time.Duration
}

// NewStore builds the configured driver. In auto mode redis wins when
// configured, then postgres, otherwise an in-memory store.
func NewStore(ctx context.Context, opts Options) (Store, string, error) {
	driver := strings.ToLower(strings.TrimSpace(opts.Driver))
	if driver == "" || driver == DriverAuto {
		switch {
		case strings.TrimSpace(opts.RedisURL) != "":
			driver = DriverRedis
		case strings.TrimSpace(opts.DatabaseURL) != "":
			driver = DriverPostgres
		default:
			driver = DriverMemory
		}
	}

	switch driver {
	case DriverMemory:
		return NewInMemoryStore(opts.TTL), driver, nil
	case DriverRedis:
		if strings.TrimSpace(opts.RedisURL) == "" {
			return nil, "", fmt.Errorf("redis store requires REDIS_URL")
		}
		redisOpts, err := redis.ParseURL(strings.TrimSpace(opts.RedisURL))
		if err != nil {
			return nil, "", fmt.Errorf("parse redis url: %w", err)
		}
		if opts.RedisPoolSize > 0 {
			redisOpts.PoolSize = opts.RedisPoolSize
		}
		client := redis.NewClient(redisOpts)
		s := NewRedisStore(client, opts.RedisKeyPrefix, opts.TTL)
		if err := s.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, "", err
		}
		return s, driver, nil
	case DriverPostgres:
		if strings.TrimSpace(opts.DatabaseURL) == "" {
			return nil, "", fmt.Errorf("postgres store requires DATABASE_URL")
		}
		s, err := NewPostgresStore(ctx, opts.DatabaseURL, opts.TTL)
		if err != nil {
			return nil, "", err
		}
		return s, driver, nil
	default:
		return nil, "", fmt.Errorf("invalid store driver %q (expected auto|memory|redis|postgres)", opts.Driver)
	}
}
