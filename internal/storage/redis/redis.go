package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/focuspact/focuspact/internal/config"
	"github.com/focuspact/focuspact/internal/storage"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "focuspact"

// Store implements the storage.Store interface using Redis
type Store struct {
	client     *redis.Client
	limitStore *limitStore
	eventStore *eventStore
}

// Open creates a new Redis-backed storage instance
func Open(cfg config.RedisConfig) (*Store, error) {
	// Parse timeouts
	dialTimeout, err := time.ParseDuration(cfg.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid dial_timeout: %w", err)
	}

	readTimeout, err := time.ParseDuration(cfg.ReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid read_timeout: %w", err)
	}

	writeTimeout, err := time.ParseDuration(cfg.WriteTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid write_timeout: %w", err)
	}

	// Determine address
	addr := cfg.Host
	if cfg.Port > 0 {
		addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  dialTimeout,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	})

	// Ping to verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	store := &Store{
		client:     client,
		limitStore: &limitStore{client: client, saveScript: redis.NewScript(saveLimitScript)},
		eventStore: &eventStore{client: client},
	}

	return store, nil
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

// Limits returns the LimitStore implementation
func (s *Store) Limits() storage.LimitStore {
	return s.limitStore
}

// Events returns the EventStore implementation
func (s *Store) Events() storage.EventStore {
	return s.eventStore
}

func limitKey(owner, appID string) string {
	return fmt.Sprintf("%s:limit:%s:%s", keyPrefix, owner, appID)
}

func limitIndexKey(owner string) string {
	return fmt.Sprintf("%s:limits:%s", keyPrefix, owner)
}

func eventsKey(owner string) string {
	return fmt.Sprintf("%s:events:%s", keyPrefix, owner)
}

func eventSeqKey(owner string) string {
	return fmt.Sprintf("%s:events:%s:seq", keyPrefix, owner)
}

func accessKey(owner string) string {
	return fmt.Sprintf("%s:access:%s", keyPrefix, owner)
}

// wrapErr marks connection-level failures as transport errors.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, storage.ErrTransport, err)
}
