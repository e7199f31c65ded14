package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"chatcore/internal/domain"
)

type ConversationRepo struct {
	s *Store
}

var _ domain.ConversationRepository = (*ConversationRepo)(nil)

func (r *ConversationRepo) Create(ctx context.Context, c *domain.Conversation) error {
	return r.s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, r.s.q(`
			INSERT INTO conversations (id, created_at) VALUES (?, ?)
		`), c.ID, c.CreatedAt.UTC()); err != nil {
			return fmt.Errorf("insert conversation: %w", err)
		}
		return r.insertParticipants(ctx, tx, c.ID, c.ParticipantIDs, c.CreatedAt)
	})
}

func (r *ConversationRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	c := &domain.Conversation{}
	err := r.s.db.QueryRowContext(ctx, r.s.q(`
		SELECT id, created_at FROM conversations WHERE id = ?
	`), id).Scan(&c.ID, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, r.s.classify(fmt.Errorf("get conversation: %w", err))
	}
	c.CreatedAt = c.CreatedAt.UTC()

	if err := r.attachParticipants(ctx, []*domain.Conversation{c}); err != nil {
		return nil, err
	}
	return c, nil
}

// ListForUser returns the user's conversations, newest first, with the total
// number of conversations the user belongs to.
func (r *ConversationRepo) ListForUser(ctx context.Context, userID uuid.UUID, offset, limit int) ([]*domain.Conversation, int, error) {
	var total int
	if err := r.s.db.QueryRowContext(ctx, r.s.q(`
		SELECT COUNT(*) FROM conversation_participants WHERE user_id = ?
	`), userID).Scan(&total); err != nil {
		return nil, 0, r.s.classify(fmt.Errorf("count conversations: %w", err))
	}

	rows, err := r.s.db.QueryContext(ctx, r.s.q(`
		SELECT c.id, c.created_at
		FROM conversations c
		JOIN conversation_participants cp ON cp.conversation_id = c.id
		WHERE cp.user_id = ?
		ORDER BY c.created_at DESC, c.id
		LIMIT ? OFFSET ?
	`), userID, limit, offset)
	if err != nil {
		return nil, 0, r.s.classify(fmt.Errorf("list conversations: %w", err))
	}
	defer rows.Close()

	var convs []*domain.Conversation
	for rows.Next() {
		c := &domain.Conversation{}
		if err := rows.Scan(&c.ID, &c.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan conversation: %w", err)
		}
		c.CreatedAt = c.CreatedAt.UTC()
		convs = append(convs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, r.s.classify(err)
	}

	if err := r.attachParticipants(ctx, convs); err != nil {
		return nil, 0, err
	}
	return convs, total, nil
}

func (r *ConversationRepo) ReplaceParticipants(ctx context.Context, id uuid.UUID, participantIDs []uuid.UUID) error {
	return r.s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, r.s.q(`SELECT 1 FROM conversations WHERE id = ?`), id).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lookup conversation: %w", err)
		}

		if _, err := tx.ExecContext(ctx, r.s.q(`
			DELETE FROM conversation_participants WHERE conversation_id = ?
		`), id); err != nil {
			return fmt.Errorf("clear participants: %w", err)
		}
		return r.insertParticipants(ctx, tx, id, participantIDs, time.Now())
	})
}

// ── helpers ──────────────────────────────────────────────────────────────────

func (r *ConversationRepo) insertParticipants(ctx context.Context, q querier, convID uuid.UUID, userIDs []uuid.UUID, joinedAt time.Time) error {
	for _, uid := range userIDs {
		if _, err := q.ExecContext(ctx, r.s.q(`
			INSERT INTO conversation_participants (conversation_id, user_id, joined_at)
			VALUES (?, ?, ?)
		`), convID, uid, joinedAt.UTC()); err != nil {
			return fmt.Errorf("insert participant %s: %w", uid, err)
		}
	}
	return nil
}

func (r *ConversationRepo) attachParticipants(ctx context.Context, convs []*domain.Conversation) error {
	if len(convs) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]*domain.Conversation, len(convs))
	ids := make([]uuid.UUID, 0, len(convs))
	for _, c := range convs {
		byID[c.ID] = c
		ids = append(ids, c.ID)
	}

	rows, err := r.s.db.QueryContext(ctx, r.s.q(`
		SELECT conversation_id, user_id
		FROM conversation_participants
		WHERE conversation_id IN (`+placeholders(len(ids))+`)
		ORDER BY joined_at, user_id
	`), anySlice(ids)...)
	if err != nil {
		return r.s.classify(fmt.Errorf("list participants: %w", err))
	}
	defer rows.Close()

	for rows.Next() {
		var convID, userID uuid.UUID
		if err := rows.Scan(&convID, &userID); err != nil {
			return fmt.Errorf("scan participant: %w", err)
		}
		if c, ok := byID[convID]; ok {
			c.ParticipantIDs = append(c.ParticipantIDs, userID)
		}
	}
	return r.s.classify(rows.Err())
}
