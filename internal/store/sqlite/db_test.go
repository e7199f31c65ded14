package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatcore/internal/domain"
	"chatcore/internal/store/sqlite"
	"chatcore/internal/store/storetest"
)

func newStore(t *testing.T) domain.RecordStore {
	t.Helper()
	s, err := sqlite.New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore(t *testing.T) {
	storetest.Run(t, newStore)
}

func TestMigrateIsIdempotent(t *testing.T) {
	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, sqlite.Migrate(context.Background(), db))
	require.NoError(t, sqlite.Migrate(context.Background(), db))
}

func TestSingleDestinationEnforced(t *testing.T) {
	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, sqlite.Migrate(context.Background(), db))

	_, err = db.Exec(`INSERT INTO users (id, username, email, hashed_password, created_at)
		VALUES ('u1', 'alice', 'a@example.com', 'x', '2026-03-01 12:00:00')`)
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO messages (id, sender_id, content, created_at)
		VALUES ('m1', 'u1', 'nowhere', '2026-03-01 12:00:00')`)
	require.Error(t, err)
}

func TestDeleteCascadeRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	s, err := sqlite.New(ctx, ":memory:")
	require.NoError(t, err)
	defer s.Close()

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	alice := &domain.User{ID: uuid.New(), Username: "alice", Email: "alice@example.com", HashedPassword: "x", Role: domain.RoleGuest, CreatedAt: at}
	bob := &domain.User{ID: uuid.New(), Username: "bob", Email: "bob@example.com", HashedPassword: "x", Role: domain.RoleGuest, CreatedAt: at}
	require.NoError(t, s.Users().Create(ctx, alice))
	require.NoError(t, s.Users().Create(ctx, bob))

	dm := &domain.Message{ID: uuid.New(), SenderID: alice.ID, Scope: domain.DirectScope(bob.ID), Content: "draft", CreatedAt: at}
	require.NoError(t, s.Messages().Create(ctx, dm))
	_, err = s.Messages().Update(ctx, dm.ID, func(current *domain.Message) (*domain.MessageHistory, error) {
		h := &domain.MessageHistory{ID: uuid.New(), MessageID: current.ID, OldContent: current.Content, EditedAt: at}
		current.Content = "final"
		current.Edited = true
		return h, nil
	})
	require.NoError(t, err)
	_, err = s.Notifications().CreateIfAbsent(ctx, &domain.Notification{ID: uuid.New(), UserID: bob.ID, MessageID: dm.ID, CreatedAt: at})
	require.NoError(t, err)

	// Fail the last step, after messages, histories and notifications are gone.
	_, err = s.DB().Exec(`CREATE TRIGGER refuse_user_delete BEFORE DELETE ON users
		BEGIN SELECT RAISE(ABORT, 'user delete refused'); END`)
	require.NoError(t, err)

	require.Error(t, s.Users().DeleteCascade(ctx, alice.ID))

	_, err = s.Users().GetByID(ctx, alice.ID)
	require.NoError(t, err)
	got, err := s.Messages().GetByID(ctx, dm.ID)
	require.NoError(t, err)
	assert.Equal(t, "final", got.Content)
	hist, err := s.Messages().ListHistory(ctx, dm.ID)
	require.NoError(t, err)
	assert.Len(t, hist, 1)
	unread, err := s.Notifications().ListUnread(ctx, bob.ID)
	require.NoError(t, err)
	assert.Len(t, unread, 1)
}

func TestSenderNameMatchesNonASCIICase(t *testing.T) {
	ctx := context.Background()
	s, err := sqlite.New(ctx, ":memory:")
	require.NoError(t, err)
	defer s.Close()

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	elodie := &domain.User{ID: uuid.New(), Username: "ÉLODIE", Email: "e@example.com", HashedPassword: "x", Role: domain.RoleGuest, CreatedAt: at}
	bob := &domain.User{ID: uuid.New(), Username: "bob", Email: "b@example.com", HashedPassword: "x", Role: domain.RoleGuest, CreatedAt: at}
	require.NoError(t, s.Users().Create(ctx, elodie))
	require.NoError(t, s.Users().Create(ctx, bob))
	conv := &domain.Conversation{ID: uuid.New(), ParticipantIDs: []uuid.UUID{elodie.ID, bob.ID}, CreatedAt: at}
	require.NoError(t, s.Conversations().Create(ctx, conv))
	require.NoError(t, s.Messages().Create(ctx, &domain.Message{
		ID: uuid.New(), SenderID: elodie.ID, Scope: domain.ConversationScope(conv.ID), Content: "salut", CreatedAt: at,
	}))

	for _, name := range []string{"élo", "ÉLO", "Élodie"} {
		msgs, total, err := s.Messages().Search(ctx, bob.ID, domain.MessageFilter{SenderName: name}, 0, 10)
		require.NoError(t, err)
		assert.Equal(t, 1, total, name)
		assert.Len(t, msgs, 1, name)
	}
}
