// Package sqlstore implements the domain repositories on database/sql. The
// SQL is written with '?' placeholders and rewritten by the dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"chatcore/internal/domain"
)

// Dialect captures what differs between the supported databases.
type Dialect struct {
	Name string

	// Rebind rewrites '?' placeholders into the driver's syntax.
	Rebind func(query string) string

	// LockMessageRow is appended to the message select that precedes an
	// update in the same transaction. Empty where the driver serializes
	// writers on its own.
	LockMessageRow string

	// Lower names the SQL function used for case-insensitive matching.
	// Defaults to LOWER.
	Lower string

	IsTransient       func(err error) bool
	IsUniqueViolation func(err error) bool
}

func (d Dialect) lower() string {
	if d.Lower == "" {
		return "LOWER"
	}
	return d.Lower
}

// QuestionPlaceholders leaves the query unchanged.
func QuestionPlaceholders(query string) string { return query }

// DollarPlaceholders turns each '?' into $1, $2, ... in order. Queries in
// this package never contain a literal '?'.
func DollarPlaceholders(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements domain.RecordStore.
type Store struct {
	db *sql.DB
	d  Dialect

	users         *UserRepo
	conversations *ConversationRepo
	messages      *MessageRepo
	notifications *NotificationRepo
}

func New(db *sql.DB, d Dialect) *Store {
	if d.Rebind == nil {
		d.Rebind = QuestionPlaceholders
	}
	if d.IsTransient == nil {
		d.IsTransient = func(error) bool { return false }
	}
	if d.IsUniqueViolation == nil {
		d.IsUniqueViolation = func(error) bool { return false }
	}
	s := &Store{db: db, d: d}
	s.users = &UserRepo{s: s}
	s.conversations = &ConversationRepo{s: s}
	s.messages = &MessageRepo{s: s}
	s.notifications = &NotificationRepo{s: s}
	return s
}

var _ domain.RecordStore = (*Store)(nil)

func (s *Store) Users() domain.UserRepository                 { return s.users }
func (s *Store) Conversations() domain.ConversationRepository { return s.conversations }
func (s *Store) Messages() domain.MessageRepository           { return s.messages }
func (s *Store) Notifications() domain.NotificationRepository { return s.notifications }

// DB exposes the underlying handle for migrations and tests.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) q(query string) string { return s.d.Rebind(query) }

// classify marks driver errors that applied nothing as domain.ErrTransient.
func (s *Store) classify(err error) error {
	if err == nil || errors.Is(err, domain.ErrTransient) {
		return err
	}
	if s.d.IsTransient(err) {
		return fmt.Errorf("%w: %w", domain.ErrTransient, err)
	}
	return err
}

// withTx runs fn in a transaction that is committed only if fn succeeds.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.classify(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return s.classify(err)
	}
	if err := tx.Commit(); err != nil {
		return s.classify(fmt.Errorf("commit: %w", err))
	}
	return nil
}

// ── helpers ──────────────────────────────────────────────────────────────────

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func anySlice[T any](vals []T) []any {
	out := make([]any, len(vals))
	for i, v := range vals {
		out[i] = v
	}
	return out
}
