package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"chatcore/internal/cache"
	"chatcore/internal/domain"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// PageRequest is a 1-based page number and a page size. Zero values select
// the first page and the default size.
type PageRequest struct {
	Page     int
	PageSize int
}

// Normalize clamps the request into the accepted range.
func (p PageRequest) Normalize() PageRequest {
	if p.Page < 1 {
		p.Page = 1
	}
	switch {
	case p.PageSize <= 0:
		p.PageSize = DefaultPageSize
	case p.PageSize > MaxPageSize:
		p.PageSize = MaxPageSize
	}
	// Any page past this one already lies beyond every possible row, and
	// larger values would overflow the offset.
	if maxPage := math.MaxInt / p.PageSize; p.Page > maxPage {
		p.Page = maxPage
	}
	return p
}

func (p PageRequest) offset() int { return (p.Page - 1) * p.PageSize }

// QueryService serves the read paths: paginated listings and the cached
// conversation view.
type QueryService struct {
	conversations domain.ConversationRepository
	messages      domain.MessageRepository
	access        *AccessController
	views         cache.ConversationViews
	window        time.Duration
	rt            Runtime
}

func NewQueryService(
	conversations domain.ConversationRepository,
	messages domain.MessageRepository,
	access *AccessController,
	views cache.ConversationViews,
	window time.Duration,
	rt Runtime,
) *QueryService {
	if views == nil {
		views = cache.Noop{}
	}
	if window <= 0 {
		window = cache.DefaultWindow
	}
	return &QueryService{
		conversations: conversations,
		messages:      messages,
		access:        access,
		views:         views,
		window:        window,
		rt:            rt.withDefaults(),
	}
}

// ListConversations returns one page of the principal's conversations, each
// carrying its messages oldest first.
func (s *QueryService) ListConversations(ctx context.Context, principal *domain.User, req PageRequest) (*domain.Page[*domain.Conversation], error) {
	if principal == nil {
		return nil, domain.ErrUnauthorized
	}
	req = req.Normalize()

	type result struct {
		convs []*domain.Conversation
		total int
	}
	res, err := readStore(ctx, s.rt, "conversations.list", func(ctx context.Context) (result, error) {
		convs, total, err := s.conversations.ListForUser(ctx, principal.ID, req.offset(), req.PageSize)
		return result{convs, total}, err
	})
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	if len(res.convs) > 0 {
		ids := make([]uuid.UUID, len(res.convs))
		byID := make(map[uuid.UUID]*domain.Conversation, len(res.convs))
		for i, c := range res.convs {
			ids[i] = c.ID
			byID[c.ID] = c
		}
		msgs, err := readStore(ctx, s.rt, "messages.for_conversations", func(ctx context.Context) ([]*domain.Message, error) {
			return s.messages.ListForConversations(ctx, ids)
		})
		if err != nil {
			return nil, fmt.Errorf("load conversation messages: %w", err)
		}
		for _, m := range msgs {
			if c, ok := byID[m.Scope.ConversationID]; ok {
				c.Messages = append(c.Messages, m)
			}
		}
	}

	return newPage(res.convs, res.total, req), nil
}

// ListMessages returns one page of the conversation messages visible to the
// principal that match f, oldest first.
func (s *QueryService) ListMessages(ctx context.Context, principal *domain.User, f domain.MessageFilter, req PageRequest) (*domain.Page[*domain.Message], error) {
	if principal == nil {
		return nil, domain.ErrUnauthorized
	}
	req = req.Normalize()

	type result struct {
		msgs  []*domain.Message
		total int
	}
	res, err := readStore(ctx, s.rt, "messages.search", func(ctx context.Context) (result, error) {
		msgs, total, err := s.messages.Search(ctx, principal.ID, f, req.offset(), req.PageSize)
		return result{msgs, total}, err
	})
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return newPage(res.msgs, res.total, req), nil
}

// CachedConversationView returns the conversation's messages as of asOf,
// served from a snapshot shared by every request in the same time window.
// Access is checked on every call, before the cache is consulted.
func (s *QueryService) CachedConversationView(ctx context.Context, principal *domain.User, conversationID uuid.UUID, asOf time.Time) (*domain.ConversationView, error) {
	conv, err := readStore(ctx, s.rt, "conversations.get", func(ctx context.Context) (*domain.Conversation, error) {
		return s.conversations.GetByID(ctx, conversationID)
	})
	if err != nil {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, err)
	}
	if err := s.access.Authorize(ctx, principal, OpRead, ConversationTarget{Conversation: conv}); err != nil {
		return nil, err
	}

	if asOf.IsZero() {
		asOf = s.rt.now()
	}
	key := cache.KeyFor(conversationID, asOf, s.window)

	view, err := s.views.Get(ctx, key)
	switch {
	case err != nil:
		s.rt.Metrics.CacheLookup("error")
		s.rt.Logger.Warn("conversation view cache read failed", "key", key.String(), "err", err)
	case view != nil:
		s.rt.Metrics.CacheLookup("hit")
		return view, nil
	default:
		s.rt.Metrics.CacheLookup("miss")
	}

	msgs, err := readStore(ctx, s.rt, "messages.for_conversations", func(ctx context.Context) ([]*domain.Message, error) {
		return s.messages.ListForConversations(ctx, []uuid.UUID{conversationID})
	})
	if err != nil {
		return nil, fmt.Errorf("load conversation %s: %w", conversationID, err)
	}
	if msgs == nil {
		msgs = []*domain.Message{}
	}
	view = &domain.ConversationView{
		ConversationID: conversationID,
		Messages:       msgs,
		GeneratedAt:    s.rt.now(),
	}
	if err := s.views.Set(ctx, key, view, s.window); err != nil {
		s.rt.Logger.Warn("conversation view cache write failed", "key", key.String(), "err", err)
	}
	return view, nil
}

func newPage[T any](items []T, total int, req PageRequest) *domain.Page[T] {
	if items == nil {
		items = []T{}
	}
	return &domain.Page[T]{Items: items, Total: total, Page: req.Page, PageSize: req.PageSize}
}
