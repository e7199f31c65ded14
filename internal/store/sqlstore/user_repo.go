package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"chatcore/internal/domain"
)

type UserRepo struct {
	s *Store
}

var _ domain.UserRepository = (*UserRepo)(nil)

const userColumns = `id, username, email, hashed_password, role, phone_number, created_at`

func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	_, err := r.s.db.ExecContext(ctx, r.s.q(`
		INSERT INTO users (id, username, email, hashed_password, role, phone_number, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`), u.ID, u.Username, u.Email, u.HashedPassword, string(u.Role), u.PhoneNumber, u.CreatedAt.UTC())
	if err != nil {
		if r.s.d.IsUniqueViolation(err) {
			return fmt.Errorf("insert user: %w", domain.ErrConflict)
		}
		return r.s.classify(fmt.Errorf("insert user: %w", err))
	}
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return r.scanUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.scanUser(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.scanUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
}

func (r *UserRepo) DeleteCascade(ctx context.Context, id uuid.UUID) error {
	const affected = `SELECT id FROM messages WHERE sender_id = ? OR receiver_id = ?`

	return r.s.withTx(ctx, func(tx *sql.Tx) error {
		steps := []struct {
			name  string
			query string
			args  []any
		}{
			{"notifications", `DELETE FROM notifications WHERE user_id = ? OR message_id IN (` + affected + `)`, []any{id, id, id}},
			{"message history", `DELETE FROM message_history WHERE message_id IN (` + affected + `)`, []any{id, id}},
			{"messages", `DELETE FROM messages WHERE sender_id = ? OR receiver_id = ?`, []any{id, id}},
			{"edit attributions", `UPDATE messages SET edited_by = NULL WHERE edited_by = ?`, []any{id}},
			{"memberships", `DELETE FROM conversation_participants WHERE user_id = ?`, []any{id}},
		}
		for _, st := range steps {
			if _, err := tx.ExecContext(ctx, r.s.q(st.query), st.args...); err != nil {
				return fmt.Errorf("delete %s of user %s: %w", st.name, id, err)
			}
		}

		res, err := tx.ExecContext(ctx, r.s.q(`DELETE FROM users WHERE id = ?`), id)
		if err != nil {
			return fmt.Errorf("delete user %s: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete user %s: %w", id, err)
		}
		if n == 0 {
			return fmt.Errorf("delete user %s: %w", id, domain.ErrNotFound)
		}
		return nil
	})
}

// ── helpers ──────────────────────────────────────────────────────────────────

func (r *UserRepo) scanUser(ctx context.Context, query string, args ...any) (*domain.User, error) {
	u := &domain.User{}
	var role string
	err := r.s.db.QueryRowContext(ctx, r.s.q(query), args...).Scan(
		&u.ID, &u.Username, &u.Email, &u.HashedPassword, &role, &u.PhoneNumber, &u.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, r.s.classify(fmt.Errorf("scan user: %w", err))
	}
	u.Role = domain.Role(role)
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}
