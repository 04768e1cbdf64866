package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures RedisStore.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int

	// KeyPrefix namespaces keys when several deployments share a server
	// (default: "lime:").
	KeyPrefix string

	// TTL expires resources after the duration; zero keeps them forever.
	TTL time.Duration
}

// RedisStore implements ResourceStore on Redis.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ ResourceStore = (*RedisStore)(nil)

// NewRedisStore connects to Redis and verifies the connection with PING.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis: addr is required")
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "lime:"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}
	return &RedisStore{client: client, prefix: cfg.KeyPrefix, ttl: cfg.TTL}, nil
}

func (s *RedisStore) key(owner, uri string) string {
	return s.prefix + ResourceKey(owner, uri)
}

// Get implements ResourceStore.
func (s *RedisStore) Get(ctx context.Context, owner, uri string) (*Resource, error) {
	data, err := s.client.Get(ctx, s.key(owner, uri)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return decodeResource(data)
}

// Set implements ResourceStore.
func (s *RedisStore) Set(ctx context.Context, owner, uri string, r *Resource) error {
	data, err := encodeResource(r)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(owner, uri), data, s.ttl).Err()
}

// Delete implements ResourceStore.
func (s *RedisStore) Delete(ctx context.Context, owner, uri string) error {
	n, err := s.client.Del(ctx, s.key(owner, uri)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// List implements ResourceStore.
func (s *RedisStore) List(ctx context.Context, owner, prefix string) ([]string, error) {
	match := s.prefix + OwnerPrefix(owner) + "*"
	if prefix != "" {
		match = s.key(owner, prefix) + "*"
	}

	var uris []string
	iter := s.client.Scan(ctx, 0, match, 100).Iterator()
	for iter.Next(ctx) {
		uris = append(uris, URIFromKey(owner, iter.Val()[len(s.prefix):]))
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sort.Strings(uris)
	return uris, nil
}

// Close implements ResourceStore.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
