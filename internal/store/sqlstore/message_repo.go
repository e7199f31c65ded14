package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"chatcore/internal/domain"
)

type MessageRepo struct {
	s *Store
}

var _ domain.MessageRepository = (*MessageRepo)(nil)

const selectMessage = `
	SELECT m.id, m.sender_id, m.conversation_id, m.receiver_id, m.parent_message_id,
	       m.content, m.edited, m.edited_by, m.created_at, u.username
	FROM messages m
	JOIN users u ON u.id = m.sender_id
`

func (r *MessageRepo) Create(ctx context.Context, m *domain.Message) error {
	convID, receiverID := scopeColumns(m.Scope)
	_, err := r.s.db.ExecContext(ctx, r.s.q(`
		INSERT INTO messages (id, sender_id, conversation_id, receiver_id, parent_message_id,
		                      content, edited, edited_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), m.ID, m.SenderID, convID, receiverID, nullable(m.ParentID),
		m.Content, m.Edited, nullable(m.EditedBy), m.CreatedAt.UTC())
	if err != nil {
		return r.s.classify(fmt.Errorf("insert message: %w", err))
	}
	return nil
}

func (r *MessageRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	m, err := scanMessage(r.s.db.QueryRowContext(ctx, r.s.q(selectMessage+` WHERE m.id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, r.s.classify(fmt.Errorf("get message: %w", err))
	}
	return m, nil
}

func (r *MessageRepo) ListForConversations(ctx context.Context, conversationIDs []uuid.UUID) ([]*domain.Message, error) {
	if len(conversationIDs) == 0 {
		return nil, nil
	}
	return r.list(ctx, selectMessage+`
		WHERE m.conversation_id IN (`+placeholders(len(conversationIDs))+`)
		ORDER BY m.created_at, m.id
	`, anySlice(conversationIDs)...)
}

func (r *MessageRepo) ListReplies(ctx context.Context, parentIDs []uuid.UUID) ([]*domain.Message, error) {
	if len(parentIDs) == 0 {
		return nil, nil
	}
	return r.list(ctx, selectMessage+`
		WHERE m.parent_message_id IN (`+placeholders(len(parentIDs))+`)
		ORDER BY m.created_at, m.id
	`, anySlice(parentIDs)...)
}

// Search lists messages of conversations userID belongs to.
func (r *MessageRepo) Search(ctx context.Context, userID uuid.UUID, f domain.MessageFilter, offset, limit int) ([]*domain.Message, int, error) {
	where := []string{`m.conversation_id IN (SELECT conversation_id FROM conversation_participants WHERE user_id = ?)`}
	args := []any{userID}

	if f.ConversationID != nil {
		where = append(where, `m.conversation_id = ?`)
		args = append(args, *f.ConversationID)
	}
	if f.SenderID != nil {
		where = append(where, `m.sender_id = ?`)
		args = append(args, *f.SenderID)
	}
	if name := strings.TrimSpace(f.SenderName); name != "" {
		where = append(where, r.s.d.lower()+`(u.username) LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(strings.ToLower(name))+"%")
	}
	if f.ParticipantID != nil {
		where = append(where, `m.conversation_id IN (SELECT conversation_id FROM conversation_participants WHERE user_id = ?)`)
		args = append(args, *f.ParticipantID)
	}
	if f.Start != nil {
		where = append(where, `m.created_at >= ?`)
		args = append(args, f.Start.UTC())
	}
	if f.End != nil {
		where = append(where, `m.created_at <= ?`)
		args = append(args, f.End.UTC())
	}
	clause := ` WHERE ` + strings.Join(where, ` AND `)

	var total int
	if err := r.s.db.QueryRowContext(ctx, r.s.q(`
		SELECT COUNT(*) FROM messages m JOIN users u ON u.id = m.sender_id`+clause,
	), args...).Scan(&total); err != nil {
		return nil, 0, r.s.classify(fmt.Errorf("count messages: %w", err))
	}

	msgs, err := r.list(ctx, selectMessage+clause+`
		ORDER BY m.created_at, m.id
		LIMIT ? OFFSET ?
	`, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	return msgs, total, nil
}

func (r *MessageRepo) Update(ctx context.Context, id uuid.UUID, fn domain.MessageMutation) (*domain.Message, error) {
	var result *domain.Message
	err := r.s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := scanMessage(tx.QueryRowContext(ctx,
			r.s.q(selectMessage+` WHERE m.id = ?`+r.s.d.LockMessageRow), id))
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock message: %w", err)
		}

		hist, err := fn(current)
		if err != nil {
			return err
		}
		result = current
		if hist == nil {
			return nil
		}

		if _, err := tx.ExecContext(ctx, r.s.q(`
			INSERT INTO message_history (id, message_id, old_content, edited_at)
			VALUES (?, ?, ?, ?)
		`), hist.ID, id, hist.OldContent, hist.EditedAt.UTC()); err != nil {
			return fmt.Errorf("insert message history: %w", err)
		}
		if _, err := tx.ExecContext(ctx, r.s.q(`
			UPDATE messages SET content = ?, edited = ?, edited_by = ? WHERE id = ?
		`), current.Content, current.Edited, nullable(current.EditedBy), id); err != nil {
			return fmt.Errorf("update message: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *MessageRepo) ListHistory(ctx context.Context, messageID uuid.UUID) ([]*domain.MessageHistory, error) {
	rows, err := r.s.db.QueryContext(ctx, r.s.q(`
		SELECT id, message_id, old_content, edited_at
		FROM message_history
		WHERE message_id = ?
		ORDER BY edited_at, id
	`), messageID)
	if err != nil {
		return nil, r.s.classify(fmt.Errorf("list history: %w", err))
	}
	defer rows.Close()

	var out []*domain.MessageHistory
	for rows.Next() {
		h := &domain.MessageHistory{}
		if err := rows.Scan(&h.ID, &h.MessageID, &h.OldContent, &h.EditedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		h.EditedAt = h.EditedAt.UTC()
		out = append(out, h)
	}
	return out, r.s.classify(rows.Err())
}

// replyTree selects the id bound to its placeholder and every message
// below it. UNION stops at ids already seen, so corrupted parent links
// cannot loop.
const replyTree = `
	WITH RECURSIVE tree(id) AS (
		SELECT id FROM messages WHERE id = ?
		UNION
		SELECT m.id FROM messages m JOIN tree t ON m.parent_message_id = t.id
	)
	SELECT id FROM tree`

func (r *MessageRepo) Delete(ctx context.Context, id uuid.UUID) error {
	return r.s.withTx(ctx, func(tx *sql.Tx) error {
		for _, st := range []struct{ name, query string }{
			{"notifications", `DELETE FROM notifications WHERE message_id IN (` + replyTree + `)`},
			{"message history", `DELETE FROM message_history WHERE message_id IN (` + replyTree + `)`},
		} {
			if _, err := tx.ExecContext(ctx, r.s.q(st.query), id); err != nil {
				return fmt.Errorf("delete %s of message %s: %w", st.name, id, err)
			}
		}

		res, err := tx.ExecContext(ctx, r.s.q(`DELETE FROM messages WHERE id IN (`+replyTree+`)`), id)
		if err != nil {
			return fmt.Errorf("delete message %s: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete message %s: %w", id, err)
		}
		if n == 0 {
			return fmt.Errorf("delete message %s: %w", id, domain.ErrNotFound)
		}
		return nil
	})
}

// ── helpers ──────────────────────────────────────────────────────────────────

func (r *MessageRepo) list(ctx context.Context, query string, args ...any) ([]*domain.Message, error) {
	rows, err := r.s.db.QueryContext(ctx, r.s.q(query), args...)
	if err != nil {
		return nil, r.s.classify(fmt.Errorf("list messages: %w", err))
	}
	defer rows.Close()

	var out []*domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, r.s.classify(rows.Err())
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*domain.Message, error) {
	m := &domain.Message{}
	var convID, receiverID, parentID, editedBy uuid.NullUUID
	if err := row.Scan(
		&m.ID, &m.SenderID, &convID, &receiverID, &parentID,
		&m.Content, &m.Edited, &editedBy, &m.CreatedAt, &m.SenderName,
	); err != nil {
		return nil, err
	}
	switch {
	case convID.Valid:
		m.Scope = domain.ConversationScope(convID.UUID)
	case receiverID.Valid:
		m.Scope = domain.DirectScope(receiverID.UUID)
	}
	if parentID.Valid {
		m.ParentID = &parentID.UUID
	}
	if editedBy.Valid {
		m.EditedBy = &editedBy.UUID
	}
	m.CreatedAt = m.CreatedAt.UTC()
	return m, nil
}

func scopeColumns(s domain.Scope) (conversationID, receiverID uuid.NullUUID) {
	switch s.Kind {
	case domain.ScopeConversation:
		conversationID = uuid.NullUUID{UUID: s.ConversationID, Valid: true}
	case domain.ScopeDirect:
		receiverID = uuid.NullUUID{UUID: s.ReceiverID, Valid: true}
	}
	return conversationID, receiverID
}

func nullable(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
