package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"chatcore/internal/domain"
)

// DefaultWindow is how long a conversation view may be served stale.
const DefaultWindow = 60 * time.Second

// Key identifies a cached conversation view. Bucket is the request time
// truncated to the cache window, so every request inside one window shares
// a key and the next window starts fresh.
type Key struct {
	ConversationID uuid.UUID
	Bucket         time.Time
}

// KeyFor builds the key for a request made at asOf.
func KeyFor(conversationID uuid.UUID, asOf time.Time, window time.Duration) Key {
	if window <= 0 {
		window = DefaultWindow
	}
	return Key{ConversationID: conversationID, Bucket: asOf.UTC().Truncate(window)}
}

func (k Key) String() string {
	return fmt.Sprintf("conv-view:%s:%d", k.ConversationID, k.Bucket.Unix())
}

// ConversationViews caches rendered conversation views. Entries are not
// keyed by principal: callers must authorize before consulting the cache.
type ConversationViews interface {
	// Get returns the cached view, or nil when absent or expired.
	Get(ctx context.Context, key Key) (*domain.ConversationView, error)
	Set(ctx context.Context, key Key, view *domain.ConversationView, ttl time.Duration) error
	Close() error
}

// New selects a backend by name: "memory" (default), "redis" or "none".
func New(ctx context.Context, kind, redisURL string) (ConversationViews, error) {
	switch kind {
	case "", "memory":
		return NewMemory()
	case "redis":
		if redisURL == "" {
			return nil, fmt.Errorf("redis cache: REDIS_URL is required")
		}
		return NewRedisFromURL(ctx, redisURL)
	case "none":
		return Noop{}, nil
	default:
		return nil, fmt.Errorf("unknown cache type %q", kind)
	}
}
