package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-redis/redis/v8"
)

// RedisKeyPrefix namespaces session keys.
const RedisKeyPrefix = "habitbot:session:"

// RedisSessionStore keeps session documents in Redis without expiry.
type RedisSessionStore struct {
	client *redis.Client
}

// NewRedisSessionStore connects to the Redis server at redisURL (redis://...).
func NewRedisSessionStore(ctx context.Context, redisURL string) (*RedisSessionStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		slog.Error("RedisSessionStore ping failed", "error", err)
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	slog.Debug("RedisSessionStore connected", "addr", opt.Addr, "db", opt.DB)
	return &RedisSessionStore{client: client}, nil
}

// NewRedisSessionStoreWithClient wraps an existing client.
func NewRedisSessionStoreWithClient(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{client: client}
}

func (r *RedisSessionStore) key(chatKey string) string {
	return RedisKeyPrefix + chatKey
}

// GetSession loads the raw session document for chatKey.
func (r *RedisSessionStore) GetSession(ctx context.Context, chatKey string) ([]byte, error) {
	data, err := r.client.Get(ctx, r.key(chatKey)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		slog.Error("RedisSessionStore GetSession failed", "error", err, "chatKey", chatKey)
		return nil, fmt.Errorf("failed to load session for %s: %w", chatKey, err)
	}
	return data, nil
}

// SetSession stores the session document for chatKey.
func (r *RedisSessionStore) SetSession(ctx context.Context, chatKey string, data []byte) error {
	if err := r.client.Set(ctx, r.key(chatKey), data, 0).Err(); err != nil {
		slog.Error("RedisSessionStore SetSession failed", "error", err, "chatKey", chatKey)
		return fmt.Errorf("failed to save session for %s: %w", chatKey, err)
	}
	return nil
}

// DeleteSession removes the session for chatKey.
func (r *RedisSessionStore) DeleteSession(ctx context.Context, chatKey string) error {
	return r.client.Del(ctx, r.key(chatKey)).Err()
}

// Close closes the Redis client.
func (r *RedisSessionStore) Close() error {
	return r.client.Close()
}

var _ SessionStore = (*RedisSessionStore)(nil)
