package postgres_test

import (
	"os"
	"testing"

	"github.com/ageniuscoder/duochat/backend/internal/chat"
	"github.com/ageniuscoder/duochat/backend/internal/storage/postgres"
	"github.com/ageniuscoder/duochat/backend/internal/storage/storetest"
	"github.com/stretchr/testify/require"
)

// Integration tests are opt-in and require DUOCHAT_TEST_POSTGRES_DSN. The
// tables in that database are truncated between cases.

func TestStore(t *testing.T) {
	dsn := os.Getenv("DUOCHAT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("DUOCHAT_TEST_POSTGRES_DSN not set")
	}

	conn, err := postgres.New(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, conn.Migrate())

	storetest.Run(t, func(t *testing.T) chat.Store {
		_, err := conn.Db.Exec(`TRUNCATE messages, users RESTART IDENTITY`)
		require.NoError(t, err)
		return conn.Store()
	})
}
