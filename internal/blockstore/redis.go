package blockstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds Redis-specific configuration.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// RedisStore keeps the counter in a single key advanced with INCRBY.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig, name string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisStoreFromClient(client, cfg.Prefix, name), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, prefix, name string) *RedisStore {
	key := name
	if prefix != "" {
		key = fmt.Sprintf("%s:%s", prefix, name)
	}
	return &RedisStore{client: client, key: key}
}

// Key returns the Redis key holding the counter.
func (s *RedisStore) Key() string {
	return s.key
}

func (s *RedisStore) ReserveBlock(ctx context.Context, increment uint64) (uint64, error) {
	if increment == 0 {
		return 0, ErrInvalidIncrement
	}
	if increment > math.MaxInt64 {
		return 0, &StorageError{Op: "incrby", Path: s.key, Err: ErrCounterOverflow}
	}

	v, err := s.client.IncrBy(ctx, s.key, int64(increment)).Result()
	if err != nil {
		return 0, &StorageError{Op: "incrby", Path: s.key, Err: err}
	}
	return uint64(v), nil
}

// Current reads the counter without advancing it.
func (s *RedisStore) Current(ctx context.Context) (uint64, error) {
	raw, err := s.client.Get(ctx, s.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, &StorageError{Op: "get", Path: s.key, Err: err}
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, &StorageError{Op: "get", Path: s.key, Err: fmt.Errorf("%w: %v", ErrCorruptCounter, err)}
	}
	return v, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
