package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"chatcore/internal/domain"
)

// Memory is a process-wide view cache backed by ristretto. Each entry costs 1,
// so MaxCost bounds the number of cached conversations.
type Memory struct {
	c *ristretto.Cache[string, *domain.ConversationView]
}

func NewMemory() (*Memory, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, *domain.ConversationView]{
		NumCounters: 100_000,
		MaxCost:     10_000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("memory cache: %w", err)
	}
	return &Memory{c: c}, nil
}

func (m *Memory) Get(_ context.Context, key Key) (*domain.ConversationView, error) {
	v, ok := m.c.Get(key.String())
	if !ok {
		return nil, nil
	}
	return copyView(v), nil
}

func (m *Memory) Set(_ context.Context, key Key, view *domain.ConversationView, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultWindow
	}
	m.c.SetWithTTL(key.String(), copyView(view), 1, ttl)
	// Make the entry visible to the next Get instead of leaving it buffered.
	m.c.Wait()
	return nil
}

func (m *Memory) Close() error {
	m.c.Close()
	return nil
}

// copyView detaches a view from the cached entry so callers can modify
// what they get without affecting other readers of the same window.
func copyView(v *domain.ConversationView) *domain.ConversationView {
	if v == nil {
		return nil
	}
	out := *v
	out.Messages = make([]*domain.Message, len(v.Messages))
	for i, msg := range v.Messages {
		c := *msg
		out.Messages[i] = &c
	}
	return &out
}

var _ ConversationViews = (*Memory)(nil)
