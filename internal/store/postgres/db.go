package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"chatcore/internal/store/sqlstore"
)

// Dialect describes PostgreSQL to the shared repositories.
var Dialect = sqlstore.Dialect{
	Name:              "postgres",
	Rebind:            sqlstore.DollarPlaceholders,
	LockMessageRow:    ` FOR UPDATE OF m`,
	IsTransient:       isTransient,
	IsUniqueViolation: isUniqueViolation,
}

// Open opens a PostgreSQL database using the pgx stdlib driver.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// New opens dsn, applies the schema and returns the store.
func New(ctx context.Context, dsn string) (*sqlstore.Store, error) {
	db, err := Open(dsn)
	if err != nil {
		return nil, err
	}
	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return sqlstore.New(db, Dialect), nil
}

// Migrate runs idempotent DDL migrations on PostgreSQL.
func Migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id              UUID         PRIMARY KEY,
			username        VARCHAR(150) UNIQUE NOT NULL,
			email           VARCHAR(254) UNIQUE NOT NULL,
			hashed_password VARCHAR(255) NOT NULL,
			role            VARCHAR(10)  NOT NULL DEFAULT 'guest',
			phone_number    VARCHAR(20),
			created_at      TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS conversations (
			id         UUID        PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS conversation_participants (
			conversation_id UUID        NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			user_id         UUID        NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			joined_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (conversation_id, user_id)
		)`,

		`CREATE TABLE IF NOT EXISTS messages (
			id                UUID        PRIMARY KEY,
			sender_id         UUID        NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			conversation_id   UUID        REFERENCES conversations(id) ON DELETE CASCADE,
			receiver_id       UUID        REFERENCES users(id) ON DELETE CASCADE,
			parent_message_id UUID        REFERENCES messages(id) ON DELETE CASCADE,
			content           TEXT        NOT NULL,
			edited            BOOLEAN     NOT NULL DEFAULT FALSE,
			edited_by         UUID        REFERENCES users(id) ON DELETE SET NULL,
			created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT messages_single_destination
				CHECK ((conversation_id IS NULL) <> (receiver_id IS NULL))
		)`,

		`CREATE TABLE IF NOT EXISTS message_history (
			id          UUID        PRIMARY KEY,
			message_id  UUID        NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
			old_content TEXT        NOT NULL,
			edited_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS notifications (
			id         UUID        PRIMARY KEY,
			user_id    UUID        NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			message_id UUID        NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
			is_read    BOOLEAN     NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (user_id, message_id)
		)`,

		// Indexes
		`CREATE INDEX IF NOT EXISTS idx_conv_participants_user ON conversation_participants(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conv_created ON messages(conversation_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages(sender_id)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_receiver ON messages(receiver_id)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_parent ON messages(parent_message_id)`,
		`CREATE INDEX IF NOT EXISTS idx_message_history_message ON message_history(message_id)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_unread ON notifications(user_id, is_read)`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w\nSQL: %s", err, stmt)
		}
	}
	return nil
}

func isTransient(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "40001", "40P01", "55P03":
		return true
	}
	return false
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
