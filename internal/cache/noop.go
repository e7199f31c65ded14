package cache

import (
	"context"
	"time"

	"chatcore/internal/domain"
)

// Noop never stores anything; every lookup misses.
type Noop struct{}

func (Noop) Get(context.Context, Key) (*domain.ConversationView, error) { return nil, nil }

func (Noop) Set(context.Context, Key, *domain.ConversationView, time.Duration) error { return nil }

func (Noop) Close() error { return nil }

var _ ConversationViews = Noop{}
