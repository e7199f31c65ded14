package sqlstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"chatcore/internal/domain"
)

type NotificationRepo struct {
	s *Store
}

var _ domain.NotificationRepository = (*NotificationRepo)(nil)

func (r *NotificationRepo) CreateIfAbsent(ctx context.Context, n *domain.Notification) (bool, error) {
	res, err := r.s.db.ExecContext(ctx, r.s.q(`
		INSERT INTO notifications (id, user_id, message_id, is_read, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, message_id) DO NOTHING
	`), n.ID, n.UserID, n.MessageID, n.IsRead, n.CreatedAt.UTC())
	if err != nil {
		return false, r.s.classify(fmt.Errorf("insert notification: %w", err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert notification: %w", err)
	}
	return affected == 1, nil
}

// ListUnread returns the unread messages of userID in the order their
// notifications were created.
func (r *NotificationRepo) ListUnread(ctx context.Context, userID uuid.UUID) ([]*domain.UnreadMessage, error) {
	rows, err := r.s.db.QueryContext(ctx, r.s.q(`
		SELECT m.id, m.sender_id, m.content, m.created_at
		FROM notifications n
		JOIN messages m ON m.id = n.message_id
		WHERE n.user_id = ? AND n.is_read = ?
		ORDER BY n.created_at, m.created_at, m.id
	`), userID, false)
	if err != nil {
		return nil, r.s.classify(fmt.Errorf("list unread: %w", err))
	}
	defer rows.Close()

	var out []*domain.UnreadMessage
	for rows.Next() {
		u := &domain.UnreadMessage{}
		if err := rows.Scan(&u.ID, &u.SenderID, &u.Content, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan unread: %w", err)
		}
		u.CreatedAt = u.CreatedAt.UTC()
		out = append(out, u)
	}
	return out, r.s.classify(rows.Err())
}

func (r *NotificationRepo) MarkRead(ctx context.Context, userID, messageID uuid.UUID) error {
	res, err := r.s.db.ExecContext(ctx, r.s.q(`
		UPDATE notifications SET is_read = ? WHERE user_id = ? AND message_id = ?
	`), true, userID, messageID)
	if err != nil {
		return r.s.classify(fmt.Errorf("mark read: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
