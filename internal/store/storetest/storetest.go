// Package storetest holds the behaviour every domain.RecordStore must show,
// run by each database package against its own backend.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatcore/internal/domain"
)

// Factory returns an empty, migrated store.
type Factory func(t *testing.T) domain.RecordStore

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// Run executes the conformance suite.
func Run(t *testing.T, newStore Factory) {
	t.Run("Users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("Conversations", func(t *testing.T) { testConversations(t, newStore(t)) })
	t.Run("MessagesByScope", func(t *testing.T) { testMessagesByScope(t, newStore(t)) })
	t.Run("Search", func(t *testing.T) { testSearch(t, newStore(t)) })
	t.Run("Update", func(t *testing.T) { testUpdate(t, newStore(t)) })
	t.Run("ConcurrentUpdates", func(t *testing.T) { testConcurrentUpdates(t, newStore(t)) })
	t.Run("Notifications", func(t *testing.T) { testNotifications(t, newStore(t)) })
	t.Run("DeleteCascade", func(t *testing.T) { testDeleteCascade(t, newStore(t)) })
	t.Run("DeleteMessage", func(t *testing.T) { testDeleteMessage(t, newStore(t)) })
}

// ── fixtures ─────────────────────────────────────────────────────────────────

func user(t *testing.T, s domain.RecordStore, name string) *domain.User {
	t.Helper()
	u := &domain.User{
		ID:             uuid.New(),
		Username:       name,
		Email:          name + "@example.com",
		HashedPassword: "x",
		Role:           domain.RoleGuest,
		CreatedAt:      base,
	}
	require.NoError(t, s.Users().Create(context.Background(), u))
	return u
}

func conversation(t *testing.T, s domain.RecordStore, at time.Time, members ...*domain.User) *domain.Conversation {
	t.Helper()
	c := &domain.Conversation{ID: uuid.New(), CreatedAt: at}
	for _, m := range members {
		c.ParticipantIDs = append(c.ParticipantIDs, m.ID)
	}
	require.NoError(t, s.Conversations().Create(context.Background(), c))
	return c
}

func message(t *testing.T, s domain.RecordStore, from *domain.User, scope domain.Scope, content string, at time.Time, parent *domain.Message) *domain.Message {
	t.Helper()
	m := &domain.Message{
		ID:        uuid.New(),
		SenderID:  from.ID,
		Scope:     scope,
		Content:   content,
		CreatedAt: at,
	}
	if parent != nil {
		m.ParentID = &parent.ID
	}
	require.NoError(t, s.Messages().Create(context.Background(), m))
	return m
}

func contents(msgs []*domain.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}

// ── cases ────────────────────────────────────────────────────────────────────

func testUsers(t *testing.T, s domain.RecordStore) {
	ctx := context.Background()
	alice := user(t, s, "alice")

	got, err := s.Users().GetByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, domain.RoleGuest, got.Role)
	assert.Nil(t, got.PhoneNumber)
	assert.True(t, base.Equal(got.CreatedAt))

	got, err = s.Users().GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.ID)

	got, err = s.Users().GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.ID)

	_, err = s.Users().GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	dup := &domain.User{ID: uuid.New(), Username: "alice", Email: "other@example.com", HashedPassword: "x", Role: domain.RoleGuest, CreatedAt: base}
	assert.ErrorIs(t, s.Users().Create(ctx, dup), domain.ErrConflict)
}

func testConversations(t *testing.T, s domain.RecordStore) {
	ctx := context.Background()
	alice, bob, carol := user(t, s, "alice"), user(t, s, "bob"), user(t, s, "carol")

	older := conversation(t, s, base, alice, bob)
	newer := conversation(t, s, base.Add(time.Hour), alice, carol)
	conversation(t, s, base, bob, carol)

	got, err := s.Conversations().GetByID(ctx, older.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{alice.ID, bob.ID}, got.ParticipantIDs)

	_, err = s.Conversations().GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	list, total, err := s.Conversations().ListForUser(ctx, alice.ID, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, list, 1)
	assert.Equal(t, newer.ID, list[0].ID)
	assert.ElementsMatch(t, []uuid.UUID{alice.ID, carol.ID}, list[0].ParticipantIDs)

	list, total, err = s.Conversations().ListForUser(ctx, alice.ID, 5, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Empty(t, list)

	require.NoError(t, s.Conversations().ReplaceParticipants(ctx, older.ID, []uuid.UUID{bob.ID, carol.ID}))
	got, err = s.Conversations().GetByID(ctx, older.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{bob.ID, carol.ID}, got.ParticipantIDs)

	assert.ErrorIs(t, s.Conversations().ReplaceParticipants(ctx, uuid.New(), []uuid.UUID{bob.ID}), domain.ErrNotFound)
}

func testMessagesByScope(t *testing.T, s domain.RecordStore) {
	ctx := context.Background()
	alice, bob := user(t, s, "alice"), user(t, s, "bob")
	conv := conversation(t, s, base, alice, bob)

	second := message(t, s, bob, domain.ConversationScope(conv.ID), "second", base.Add(2*time.Second), nil)
	first := message(t, s, alice, domain.ConversationScope(conv.ID), "first", base.Add(time.Second), nil)
	direct := message(t, s, alice, domain.DirectScope(bob.ID), "psst", base.Add(3*time.Second), nil)
	reply := message(t, s, bob, domain.ConversationScope(conv.ID), "re: first", base.Add(4*time.Second), first)

	got, err := s.Messages().GetByID(ctx, direct.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ScopeDirect, got.Scope.Kind)
	assert.Equal(t, bob.ID, got.Scope.ReceiverID)
	assert.Equal(t, "alice", got.SenderName)
	assert.Nil(t, got.ParentID)

	got, err = s.Messages().GetByID(ctx, reply.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ScopeConversation, got.Scope.Kind)
	assert.Equal(t, conv.ID, got.Scope.ConversationID)
	require.NotNil(t, got.ParentID)
	assert.Equal(t, first.ID, *got.ParentID)

	_, err = s.Messages().GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	msgs, err := s.Messages().ListForConversations(ctx, []uuid.UUID{conv.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "re: first"}, contents(msgs))

	replies, err := s.Messages().ListReplies(ctx, []uuid.UUID{first.ID, second.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{"re: first"}, contents(replies))

	none, err := s.Messages().ListReplies(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testSearch(t *testing.T, s domain.RecordStore) {
	ctx := context.Background()
	alice, bob, carol := user(t, s, "alice"), user(t, s, "bob"), user(t, s, "carol_x")
	ab := conversation(t, s, base, alice, bob)
	ac := conversation(t, s, base, alice, carol)
	bc := conversation(t, s, base, bob, carol)

	message(t, s, alice, domain.ConversationScope(ab.ID), "ab-1", base.Add(1*time.Second), nil)
	message(t, s, bob, domain.ConversationScope(ab.ID), "ab-2", base.Add(2*time.Second), nil)
	message(t, s, carol, domain.ConversationScope(ac.ID), "ac-1", base.Add(3*time.Second), nil)
	message(t, s, carol, domain.ConversationScope(bc.ID), "bc-1", base.Add(4*time.Second), nil)
	message(t, s, bob, domain.DirectScope(alice.ID), "direct", base.Add(5*time.Second), nil)

	msgs, total, err := s.Messages().Search(ctx, alice.ID, domain.MessageFilter{}, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, []string{"ab-1", "ab-2", "ac-1"}, contents(msgs))

	msgs, total, err = s.Messages().Search(ctx, alice.ID, domain.MessageFilter{ConversationID: &ab.ID}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, []string{"ab-2"}, contents(msgs))

	msgs, _, err = s.Messages().Search(ctx, alice.ID, domain.MessageFilter{SenderID: &carol.ID}, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"ac-1"}, contents(msgs))

	msgs, _, err = s.Messages().Search(ctx, alice.ID, domain.MessageFilter{SenderName: "OL_"}, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"ac-1"}, contents(msgs))

	msgs, _, err = s.Messages().Search(ctx, alice.ID, domain.MessageFilter{SenderName: "o_"}, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	msgs, _, err = s.Messages().Search(ctx, alice.ID, domain.MessageFilter{ParticipantID: &bob.ID}, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"ab-1", "ab-2"}, contents(msgs))

	start, end := base.Add(2*time.Second), base.Add(3*time.Second)
	msgs, total, err = s.Messages().Search(ctx, alice.ID, domain.MessageFilter{Start: &start, End: &end}, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, []string{"ab-2", "ac-1"}, contents(msgs))
}

func editTo(content string, editor uuid.UUID, at time.Time) domain.MessageMutation {
	return func(current *domain.Message) (*domain.MessageHistory, error) {
		if current.Content == content {
			return nil, nil
		}
		h := &domain.MessageHistory{ID: uuid.New(), MessageID: current.ID, OldContent: current.Content, EditedAt: at}
		current.Content = content
		current.Edited = true
		current.EditedBy = &editor
		return h, nil
	}
}

func testUpdate(t *testing.T, s domain.RecordStore) {
	ctx := context.Background()
	alice, bob := user(t, s, "alice"), user(t, s, "bob")
	conv := conversation(t, s, base, alice, bob)
	msg := message(t, s, alice, domain.ConversationScope(conv.ID), "v1", base, nil)

	got, err := s.Messages().Update(ctx, msg.ID, editTo("v1", bob.ID, base))
	require.NoError(t, err)
	assert.False(t, got.Edited)

	_, err = s.Messages().Update(ctx, msg.ID, editTo("v2", bob.ID, base.Add(time.Minute)))
	require.NoError(t, err)

	stored, err := s.Messages().GetByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "v2", stored.Content)
	assert.True(t, stored.Edited)
	require.NotNil(t, stored.EditedBy)
	assert.Equal(t, bob.ID, *stored.EditedBy)
	assert.Equal(t, alice.ID, stored.SenderID)
	assert.True(t, base.Equal(stored.CreatedAt))

	hist, err := s.Messages().ListHistory(ctx, msg.ID)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, "v1", hist[0].OldContent)

	_, err = s.Messages().Update(ctx, uuid.New(), editTo("x", bob.ID, base))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func testConcurrentUpdates(t *testing.T, s domain.RecordStore) {
	ctx := context.Background()
	alice, bob := user(t, s, "alice"), user(t, s, "bob")
	conv := conversation(t, s, base, alice, bob)
	msg := message(t, s, alice, domain.ConversationScope(conv.ID), "orig", base, nil)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, next := range []string{"from-alice", "from-bob"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = s.Messages().Update(ctx, msg.ID, editTo(next, alice.ID, base.Add(time.Duration(i+1)*time.Second)))
		}()
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	hist, err := s.Messages().ListHistory(ctx, msg.ID)
	require.NoError(t, err)
	require.Len(t, hist, 2)

	stored, err := s.Messages().GetByID(ctx, msg.ID)
	require.NoError(t, err)
	olds := []string{hist[0].OldContent, hist[1].OldContent}
	assert.Contains(t, olds, "orig")
	assert.NotContains(t, olds, stored.Content)
}

func testNotifications(t *testing.T, s domain.RecordStore) {
	ctx := context.Background()
	alice, bob := user(t, s, "alice"), user(t, s, "bob")
	first := message(t, s, alice, domain.DirectScope(bob.ID), "one", base, nil)
	second := message(t, s, alice, domain.DirectScope(bob.ID), "two", base.Add(time.Second), nil)

	for i, m := range []*domain.Message{first, second} {
		n := &domain.Notification{ID: uuid.New(), UserID: bob.ID, MessageID: m.ID, CreatedAt: base.Add(time.Duration(i) * time.Second)}
		created, err := s.Notifications().CreateIfAbsent(ctx, n)
		require.NoError(t, err)
		assert.True(t, created)
	}

	again := &domain.Notification{ID: uuid.New(), UserID: bob.ID, MessageID: first.ID, CreatedAt: base}
	created, err := s.Notifications().CreateIfAbsent(ctx, again)
	require.NoError(t, err)
	assert.False(t, created)

	unread, err := s.Notifications().ListUnread(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, unread, 2)
	assert.Equal(t, "one", unread[0].Content)
	assert.Equal(t, alice.ID, unread[0].SenderID)

	require.NoError(t, s.Notifications().MarkRead(ctx, bob.ID, first.ID))
	unread, err = s.Notifications().ListUnread(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, second.ID, unread[0].ID)

	assert.ErrorIs(t, s.Notifications().MarkRead(ctx, alice.ID, first.ID), domain.ErrNotFound)
}

func testDeleteCascade(t *testing.T, s domain.RecordStore) {
	ctx := context.Background()
	alice, bob, carol := user(t, s, "alice"), user(t, s, "bob"), user(t, s, "carol")
	conv := conversation(t, s, base, alice, bob, carol)

	fromAlice := message(t, s, alice, domain.ConversationScope(conv.ID), "hello all", base, nil)
	toAlice := message(t, s, bob, domain.DirectScope(alice.ID), "hi alice", base.Add(time.Second), nil)
	fromBob := message(t, s, bob, domain.ConversationScope(conv.ID), "bob here", base.Add(2*time.Second), nil)
	_, err := s.Messages().Update(ctx, fromAlice.ID, editTo("hello everyone", alice.ID, base.Add(time.Minute)))
	require.NoError(t, err)
	_, err = s.Messages().Update(ctx, fromBob.ID, editTo("bob is here", alice.ID, base.Add(time.Minute)))
	require.NoError(t, err)

	for _, n := range []*domain.Notification{
		{ID: uuid.New(), UserID: bob.ID, MessageID: fromAlice.ID, CreatedAt: base},
		{ID: uuid.New(), UserID: carol.ID, MessageID: fromAlice.ID, CreatedAt: base},
		{ID: uuid.New(), UserID: alice.ID, MessageID: fromBob.ID, CreatedAt: base},
		{ID: uuid.New(), UserID: carol.ID, MessageID: fromBob.ID, CreatedAt: base},
	} {
		_, err := s.Notifications().CreateIfAbsent(ctx, n)
		require.NoError(t, err)
	}

	require.NoError(t, s.Users().DeleteCascade(ctx, alice.ID))

	_, err = s.Users().GetByID(ctx, alice.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = s.Messages().GetByID(ctx, fromAlice.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = s.Messages().GetByID(ctx, toAlice.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	hist, err := s.Messages().ListHistory(ctx, fromAlice.ID)
	require.NoError(t, err)
	assert.Empty(t, hist)

	survivor, err := s.Messages().GetByID(ctx, fromBob.ID)
	require.NoError(t, err)
	assert.Nil(t, survivor.EditedBy)
	hist, err = s.Messages().ListHistory(ctx, fromBob.ID)
	require.NoError(t, err)
	assert.Len(t, hist, 1)

	unread, err := s.Notifications().ListUnread(ctx, carol.ID)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, fromBob.ID, unread[0].ID)

	c, err := s.Conversations().GetByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{bob.ID, carol.ID}, c.ParticipantIDs)

	assert.ErrorIs(t, s.Users().DeleteCascade(ctx, alice.ID), domain.ErrNotFound)
}

func testDeleteMessage(t *testing.T, s domain.RecordStore) {
	ctx := context.Background()
	alice, bob, carol := user(t, s, "alice"), user(t, s, "bob"), user(t, s, "carol")
	conv := conversation(t, s, base, alice, bob, carol)
	scope := domain.ConversationScope(conv.ID)

	root := message(t, s, alice, scope, "root", base, nil)
	reply := message(t, s, bob, scope, "reply", base.Add(time.Second), root)
	nested := message(t, s, carol, scope, "nested", base.Add(2*time.Second), reply)
	other := message(t, s, bob, scope, "unrelated", base.Add(3*time.Second), nil)

	_, err := s.Messages().Update(ctx, reply.ID, editTo("reply, edited", bob.ID, base.Add(time.Minute)))
	require.NoError(t, err)
	for _, n := range []*domain.Notification{
		{ID: uuid.New(), UserID: bob.ID, MessageID: root.ID, CreatedAt: base},
		{ID: uuid.New(), UserID: alice.ID, MessageID: nested.ID, CreatedAt: base},
		{ID: uuid.New(), UserID: alice.ID, MessageID: other.ID, CreatedAt: base},
	} {
		_, err := s.Notifications().CreateIfAbsent(ctx, n)
		require.NoError(t, err)
	}

	require.NoError(t, s.Messages().Delete(ctx, root.ID))

	for _, id := range []uuid.UUID{root.ID, reply.ID, nested.ID} {
		_, err := s.Messages().GetByID(ctx, id)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	}
	hist, err := s.Messages().ListHistory(ctx, reply.ID)
	require.NoError(t, err)
	assert.Empty(t, hist)

	unread, err := s.Notifications().ListUnread(ctx, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, unread)
	unread, err = s.Notifications().ListUnread(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, other.ID, unread[0].ID)

	_, err = s.Messages().GetByID(ctx, other.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, s.Messages().Delete(ctx, root.ID), domain.ErrNotFound)
}
