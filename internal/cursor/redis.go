package cursor

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisKeyPrefix = "flex:cursor:"

// RedisStore keeps the cursor under a single Redis key.
type RedisStore struct {
	client redis.UniversalClient
	key    string
	logger *zap.Logger
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client redis.UniversalClient, name string, logger *zap.Logger) *RedisStore {
	return &RedisStore{client: client, key: redisKeyPrefix + name, logger: logger}
}

// OpenRedis connects to addr and verifies the connection.
func OpenRedis(ctx context.Context, addr, password string, db int, name string, logger *zap.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis %s: %w", addr, err)
	}
	return NewRedisStore(client, name, logger), nil
}

func (s *RedisStore) Load(ctx context.Context) (int64, bool, error) {
	raw, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("reading cursor key %s: %w", s.key, err)
	}

	v, ok := parse(raw)
	if !ok {
		s.logger.Warn("ignoring unparsable cursor key", zap.String("key", s.key), zap.String("value", raw))
	}
	return v, ok, nil
}

// Save sets the key without expiry. Durability follows the server's
// persistence settings.
func (s *RedisStore) Save(ctx context.Context, sequenceID int64) error {
	if err := s.client.Set(ctx, s.key, format(sequenceID), 0).Err(); err != nil {
		return fmt.Errorf("failed to persist cursor: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
