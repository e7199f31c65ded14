package postgres_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"chatcore/internal/domain"
	"chatcore/internal/store/postgres"
	"chatcore/internal/store/sqlstore"
	"chatcore/internal/store/storetest"
	"chatcore/internal/testutil"
)

func TestStore(t *testing.T) {
	dsn := testutil.StartPostgres(t)

	db, err := postgres.Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, postgres.Migrate(context.Background(), db))

	storetest.Run(t, func(t *testing.T) domain.RecordStore {
		_, err := db.Exec(`TRUNCATE notifications, message_history, messages, conversation_participants, conversations, users`)
		require.NoError(t, err)
		return sqlstore.New(db, postgres.Dialect)
	})
}

func TestDollarPlaceholders(t *testing.T) {
	require.Equal(t,
		"SELECT 1 WHERE a = $1 AND b IN ($2,$3)",
		sqlstore.DollarPlaceholders("SELECT 1 WHERE a = ? AND b IN (?,?)"),
	)
}
