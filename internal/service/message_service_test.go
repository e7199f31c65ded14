package service_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chatcore/internal/domain"
	"chatcore/internal/service"
)

type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) OnMessageCreated(ctx context.Context, msg *domain.Message) (int, error) {
	args := m.Called(ctx, msg)
	return args.Int(0), args.Error(1)
}

func TestExampleScenario(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a, b := e.user(t, "a"), e.user(t, "b")
	x := e.conversation(t, a, b)

	hi := e.post(t, a, x, "hi", nil)

	unread, err := e.notify.UnreadFor(ctx, b)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, hi.ID, unread[0].ID)

	e.post(t, b, x, "hey", hi)

	tree, err := e.threads.BuildThread(ctx, a, hi.ID)
	require.NoError(t, err)
	assert.Len(t, tree.Replies, 1)

	edited, err := e.messages.EditMessage(ctx, a, hi.ID, "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", edited.Content)

	hist, err := e.messages.History(ctx, a, hi.ID)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, "hi", hist[0].OldContent)
}

func TestCreateMessageValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice, bob, eve := e.user(t, "alice"), e.user(t, "bob"), e.user(t, "eve")
	conv := e.conversation(t, alice, bob)

	cases := []struct {
		name      string
		principal *domain.User
		in        service.CreateMessageInput
		want      error
	}{
		{"no destination", alice, service.CreateMessageInput{Content: "x"}, domain.ErrInvalidInput},
		{"two destinations", alice, service.CreateMessageInput{ConversationID: &conv.ID, ReceiverID: &bob.ID, Content: "x"}, domain.ErrInvalidInput},
		{"blank content", alice, service.CreateMessageInput{ConversationID: &conv.ID, Content: "  "}, domain.ErrInvalidInput},
		{"too long", alice, service.CreateMessageInput{ConversationID: &conv.ID, Content: strings.Repeat("é", service.MaxContentLength+1)}, domain.ErrInvalidInput},
		{"unknown conversation", alice, service.CreateMessageInput{ConversationID: ptr(uuid.New()), Content: "x"}, domain.ErrNotFound},
		{"not a participant", eve, service.CreateMessageInput{ConversationID: &conv.ID, Content: "x"}, domain.ErrForbidden},
		{"unknown receiver", alice, service.CreateMessageInput{ReceiverID: ptr(uuid.New()), Content: "x"}, domain.ErrNotFound},
		{"unauthenticated", nil, service.CreateMessageInput{ConversationID: &conv.ID, Content: "x"}, domain.ErrUnauthorized},
		{"unknown parent", alice, service.CreateMessageInput{ConversationID: &conv.ID, ParentID: ptr(uuid.New()), Content: "x"}, domain.ErrInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.messages.CreateMessage(ctx, tc.principal, tc.in)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	_, err := e.messages.CreateMessage(ctx, alice, service.CreateMessageInput{
		ConversationID: &conv.ID,
		Content:        strings.Repeat("é", service.MaxContentLength),
	})
	assert.NoError(t, err, "limit is counted in characters")
}

func TestCreateMessageParentMustShareScope(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice, bob, carol := e.user(t, "alice"), e.user(t, "bob"), e.user(t, "carol")
	ab := e.conversation(t, alice, bob)
	ac := e.conversation(t, alice, carol)

	inAB := e.post(t, alice, ab, "in ab", nil)
	dmAB := e.direct(t, alice, bob, "dm ab")

	_, err := e.messages.CreateMessage(ctx, alice, service.CreateMessageInput{ConversationID: &ac.ID, ParentID: &inAB.ID, Content: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = e.messages.CreateMessage(ctx, alice, service.CreateMessageInput{ReceiverID: &carol.ID, ParentID: &dmAB.ID, Content: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = e.messages.CreateMessage(ctx, alice, service.CreateMessageInput{ConversationID: &ab.ID, ParentID: &dmAB.ID, Content: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	reply, err := e.messages.CreateMessage(ctx, bob, service.CreateMessageInput{ReceiverID: &alice.ID, ParentID: &dmAB.ID, Content: "back at you"})
	require.NoError(t, err)
	require.NotNil(t, reply.ParentID)
	assert.Equal(t, dmAB.ID, *reply.ParentID)
}

func TestEditUnchangedContentWritesNothing(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice, bob := e.user(t, "alice"), e.user(t, "bob")
	conv := e.conversation(t, alice, bob)
	msg := e.post(t, alice, conv, "same", nil)

	got, err := e.messages.EditMessage(ctx, bob, msg.ID, "same")
	require.NoError(t, err)
	assert.False(t, got.Edited)
	assert.Nil(t, got.EditedBy)

	hist, err := e.messages.History(ctx, alice, msg.ID)
	require.NoError(t, err)
	assert.Empty(t, hist)
}

func TestEditChangedContentKeepsHistory(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice, bob, eve := e.user(t, "alice"), e.user(t, "bob"), e.user(t, "eve")
	conv := e.conversation(t, alice, bob)
	msg := e.post(t, alice, conv, "v1", nil)

	_, err := e.messages.EditMessage(ctx, bob, msg.ID, "v2")
	require.NoError(t, err)
	e.clock.Advance(time.Second)
	_, err = e.messages.EditMessage(ctx, alice, msg.ID, "v3")
	require.NoError(t, err)

	stored, err := e.store.Messages().GetByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "v3", stored.Content)
	assert.True(t, stored.Edited)
	require.NotNil(t, stored.EditedBy)
	assert.Equal(t, alice.ID, *stored.EditedBy)
	assert.Equal(t, alice.ID, stored.SenderID)

	hist, err := e.messages.History(ctx, bob, msg.ID)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, "v1", hist[0].OldContent)
	assert.Equal(t, "v2", hist[1].OldContent)

	_, err = e.messages.EditMessage(ctx, eve, msg.ID, "hijack")
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = e.messages.History(ctx, eve, msg.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = e.messages.EditMessage(ctx, alice, uuid.New(), "x")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestConcurrentEditsKeepEveryVersion(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice, bob := e.user(t, "alice"), e.user(t, "bob")
	conv := e.conversation(t, alice, bob)
	msg := e.post(t, alice, conv, "orig", nil)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, edit := range []struct {
		who     *domain.User
		content string
	}{{alice, "from alice"}, {bob, "from bob"}} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = e.messages.EditMessage(ctx, edit.who, msg.ID, edit.content)
		}()
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	hist, err := e.messages.History(ctx, alice, msg.ID)
	require.NoError(t, err)
	require.Len(t, hist, 2)

	stored, err := e.store.Messages().GetByID(ctx, msg.ID)
	require.NoError(t, err)
	olds := []string{hist[0].OldContent, hist[1].OldContent}
	assert.Contains(t, olds, "orig")
	assert.NotContains(t, olds, stored.Content)
	assert.Contains(t, []string{"from alice", "from bob"}, stored.Content)
}

func TestNotificationFailureDoesNotFailCreate(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice, bob := e.user(t, "alice"), e.user(t, "bob")
	conv := e.conversation(t, alice, bob)

	dispatcher := new(MockDispatcher)
	dispatcher.On("OnMessageCreated", mock.Anything, mock.MatchedBy(func(m *domain.Message) bool {
		return m.Content == "still stored"
	})).Return(0, errors.New("notification store down"))

	svc := service.NewMessageService(e.store.Users(), e.store.Conversations(), e.store.Messages(), e.access, dispatcher, e.rt)
	msg, err := svc.CreateMessage(ctx, alice, service.CreateMessageInput{ConversationID: &conv.ID, Content: "still stored"})
	require.NoError(t, err)

	_, err = e.store.Messages().GetByID(ctx, msg.ID)
	assert.NoError(t, err)
	dispatcher.AssertExpectations(t)

	expected := `
# HELP chatcore_notification_failures_total Notification dispatches that failed and were swallowed
# TYPE chatcore_notification_failures_total counter
chatcore_notification_failures_total 1
`
	assert.NoError(t, testutil.GatherAndCompare(e.reg, strings.NewReader(expected), "chatcore_notification_failures_total"))
}

func TestDeleteMessageRemovesReplies(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice, bob, eve := e.user(t, "alice"), e.user(t, "bob"), e.user(t, "eve")
	conv := e.conversation(t, alice, bob)

	root := e.post(t, alice, conv, "root", nil)
	reply := e.post(t, bob, conv, "reply", root)
	_, err := e.messages.EditMessage(ctx, bob, reply.ID, "reply, edited")
	require.NoError(t, err)

	assert.ErrorIs(t, e.messages.DeleteMessage(ctx, nil, root.ID), domain.ErrUnauthorized)
	assert.ErrorIs(t, e.messages.DeleteMessage(ctx, eve, root.ID), domain.ErrForbidden)
	assert.ErrorIs(t, e.messages.DeleteMessage(ctx, alice, uuid.New()), domain.ErrNotFound)

	require.NoError(t, e.messages.DeleteMessage(ctx, bob, root.ID))

	_, err = e.messages.GetMessage(ctx, alice, root.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = e.messages.GetMessage(ctx, alice, reply.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	unread, err := e.notify.UnreadFor(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, unread)
}

func TestGetMessageChecksAccess(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice, bob, eve := e.user(t, "alice"), e.user(t, "bob"), e.user(t, "eve")
	dm := e.direct(t, alice, bob, "just us")

	got, err := e.messages.GetMessage(ctx, bob, dm.ID)
	require.NoError(t, err)
	assert.Equal(t, "just us", got.Content)

	_, err = e.messages.GetMessage(ctx, eve, dm.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}
