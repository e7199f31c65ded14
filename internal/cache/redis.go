package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"chatcore/internal/domain"
)

// Redis shares conversation views between processes.
type Redis struct {
	client *goredis.Client
}

// NewRedisFromURL connects to redisURL and verifies the connection.
func NewRedisFromURL(ctx context.Context, redisURL string) (*Redis, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis cache: invalid URL: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis cache: ping failed: %w", err)
	}
	return NewRedis(client), nil
}

func NewRedis(client *goredis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Get(ctx context.Context, key Key) (*domain.ConversationView, error) {
	data, err := r.client.Get(ctx, key.String()).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis cache get: %w", err)
	}
	var view domain.ConversationView
	if err := json.Unmarshal(data, &view); err != nil {
		return nil, fmt.Errorf("redis cache decode: %w", err)
	}
	return &view, nil
}

func (r *Redis) Set(ctx context.Context, key Key, view *domain.ConversationView, ttl time.Duration) error {
	data, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("redis cache encode: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultWindow
	}
	return r.client.Set(ctx, key.String(), data, ttl).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}

var _ ConversationViews = (*Redis)(nil)
