package artifacts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/merlin/internal/domain"
	"github.com/redis/go-redis/v9"
)

// RedisSource stores artifacts under merlin:artifact:<name>. Put also keeps
// the version in merlin:artifact:<name>:version.
type RedisSource struct {
	client *redis.Client
}

// NewRedisSource connects to Redis.
func NewRedisSource(addr, password string, db int) (*RedisSource, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisSource{client: client}, nil
}

// Fetch reads an artifact.
func (s *RedisSource) Fetch(ctx context.Context, name string) ([]byte, error) {
	val, err := s.client.Get(ctx, s.makeKey(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", domain.ErrModelNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

// Put replaces an artifact. Both keys are written in one transaction.
func (s *RedisSource) Put(ctx context.Context, name, version string, payload []byte) error {
	if name == "" {
		return fmt.Errorf("artifact name is required")
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.makeKey(name), payload, 0)
		pipe.Set(ctx, s.makeKey(name)+":version", version, 0)
		return nil
	})
	return err
}

// Ping checks Redis connectivity.
func (s *RedisSource) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *RedisSource) Close() error {
	return s.client.Close()
}

func (s *RedisSource) makeKey(name string) string {
	return "merlin:artifact:" + name
}
