package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// IdempotencyCache remembers which transaction a purchase idempotency key produced.
// The database unique index stays authoritative; the cache only short-circuits replays.
type IdempotencyCache interface {
	Get(ctx context.Context, key string) (uuid.UUID, bool, error)
	Put(ctx context.Context, key string, id uuid.UUID) error
}

type RedisStore struct {
	Client *redis.Client
	ttl    time.Duration
}

func NewRedisClient(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return client, nil
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{Client: client, ttl: ttl}
}

func (s *RedisStore) Close() error {
	if s.Client != nil {
		return s.Client.Close()
	}
	return nil
}

func idempotencyKey(key string) string {
	return fmt.Sprintf("purchase_idempotency:%s", key)
}

func (s *RedisStore) Get(ctx context.Context, key string) (uuid.UUID, bool, error) {
	val, err := s.Client.Get(ctx, idempotencyKey(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, fmt.Errorf("failed to get idempotency key from redis: %w", err)
	}

	id, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("corrupt idempotency entry %q: %w", val, err)
	}
	return id, true, nil
}

func (s *RedisStore) Put(ctx context.Context, key string, id uuid.UUID) error {
	if err := s.Client.Set(ctx, idempotencyKey(key), id.String(), s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set idempotency key in redis: %w", err)
	}
	return nil
}
