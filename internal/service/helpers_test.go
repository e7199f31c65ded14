package service_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"chatcore/internal/cache"
	"chatcore/internal/domain"
	"chatcore/internal/metrics"
	"chatcore/internal/service"
	"chatcore/internal/store/sqlite"
	"chatcore/internal/store/sqlstore"
)

// env wires every service over one in-memory SQLite store.
type env struct {
	store    *sqlstore.Store
	reg      *prometheus.Registry
	rt       service.Runtime
	clock    *fakeClock
	views    cache.ConversationViews
	access   *service.AccessController
	notify   *service.NotificationService
	messages *service.MessageService
	threads  *service.ThreadService
	query    *service.QueryService
	convs    *service.ConversationService
	users    *service.UserService
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newEnv(t *testing.T) *env {
	t.Helper()
	st, err := sqlite.New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	views, err := cache.NewMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = views.Close() })

	return wire(t, st, views)
}

func wire(t *testing.T, st *sqlstore.Store, views cache.ConversationViews) *env {
	t.Helper()
	reg := prometheus.NewRegistry()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	rt := service.Runtime{
		Store:   service.StorePolicy{Timeout: time.Second, Retries: 3, Backoff: time.Millisecond},
		Metrics: metrics.New(reg),
		Logger:  log.New(io.Discard),
		Now:     clock.Now,
	}

	e := &env{store: st, reg: reg, rt: rt, clock: clock, views: views}
	e.access = service.NewAccessController(st.Conversations(), rt)
	e.notify = service.NewNotificationService(st.Conversations(), st.Notifications(), rt)
	e.messages = service.NewMessageService(st.Users(), st.Conversations(), st.Messages(), e.access, e.notify, rt)
	e.threads = service.NewThreadService(st.Messages(), e.access, rt)
	e.query = service.NewQueryService(st.Conversations(), st.Messages(), e.access, views, time.Minute, rt)
	e.convs = service.NewConversationService(st.Users(), st.Conversations(), e.access, rt)
	e.users = service.NewUserService(st.Users(), rt)
	return e
}

func (e *env) user(t *testing.T, name string) *domain.User {
	t.Helper()
	u := &domain.User{
		ID:             uuid.New(),
		Username:       name,
		Email:          name + "@example.com",
		HashedPassword: "x",
		Role:           domain.RoleGuest,
		CreatedAt:      e.clock.Now(),
	}
	require.NoError(t, e.store.Users().Create(context.Background(), u))
	return u
}

func (e *env) conversation(t *testing.T, creator *domain.User, others ...*domain.User) *domain.Conversation {
	t.Helper()
	ids := make([]uuid.UUID, len(others))
	for i, o := range others {
		ids[i] = o.ID
	}
	c, err := e.convs.CreateConversation(context.Background(), creator, ids)
	require.NoError(t, err)
	e.clock.Advance(time.Second)
	return c
}

// post sends content into conv, optionally as a reply.
func (e *env) post(t *testing.T, from *domain.User, conv *domain.Conversation, content string, parent *domain.Message) *domain.Message {
	t.Helper()
	in := service.CreateMessageInput{ConversationID: &conv.ID, Content: content}
	if parent != nil {
		in.ParentID = &parent.ID
	}
	m, err := e.messages.CreateMessage(context.Background(), from, in)
	require.NoError(t, err)
	e.clock.Advance(time.Second)
	return m
}

func (e *env) direct(t *testing.T, from, to *domain.User, content string) *domain.Message {
	t.Helper()
	m, err := e.messages.CreateMessage(context.Background(), from, service.CreateMessageInput{ReceiverID: &to.ID, Content: content})
	require.NoError(t, err)
	e.clock.Advance(time.Second)
	return m
}

func ptr[T any](v T) *T { return &v }
