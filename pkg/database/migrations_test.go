//go:build integration

package database_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-chat-engine/pkg/database"
	"github.com/ekaya-inc/ekaya-chat-engine/pkg/testhelpers"
)

const scratchPassword = "scratch_password"

// scratchDatabase creates a database owned by the superuser plus a login role
// for it, and returns a DSN for that role. grantSchema controls whether the
// role may create tables in public.
func scratchDatabase(t *testing.T, name string, grantSchema bool) string {
	t.Helper()
	testDB := testhelpers.GetTestDB(t)
	ctx := context.Background()
	role := name + "_user"

	_, _ = testDB.Pool.Exec(ctx, "DROP DATABASE IF EXISTS "+name)
	_, _ = testDB.Pool.Exec(ctx, "DROP USER IF EXISTS "+role)

	_, err := testDB.Pool.Exec(ctx, "CREATE DATABASE "+name)
	require.NoError(t, err)
	_, err = testDB.Pool.Exec(ctx, fmt.Sprintf("CREATE USER %s WITH PASSWORD '%s'", role, scratchPassword))
	require.NoError(t, err)
	_, err = testDB.Pool.Exec(ctx, fmt.Sprintf("GRANT CONNECT ON DATABASE %s TO %s", name, role))
	require.NoError(t, err)

	if grantSchema {
		super, err := sql.Open("pgx", dsn(testDB, testDB.User, testDB.Password, name))
		require.NoError(t, err)
		_, err = super.Exec("GRANT ALL ON SCHEMA public TO " + role)
		_ = super.Close()
		require.NoError(t, err)
	}

	t.Cleanup(func() {
		_, _ = testDB.Pool.Exec(ctx, `
			SELECT pg_terminate_backend(pid) FROM pg_stat_activity
			WHERE datname = $1 AND pid <> pg_backend_pid()`, name)
		time.Sleep(100 * time.Millisecond)
		_, _ = testDB.Pool.Exec(ctx, "DROP DATABASE IF EXISTS "+name)
		_, _ = testDB.Pool.Exec(ctx, "DROP USER IF EXISTS "+role)
	})

	return dsn(testDB, role, scratchPassword, name)
}

func dsn(testDB *testhelpers.TestDB, user, password, name string) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable", user, password, testDB.Host, testDB.Port, name)
}

// migrateWithin runs the migrations and fails the test if they hang.
func migrateWithin(t *testing.T, connStr string, timeout time.Duration) error {
	t.Helper()
	db, err := sql.Open("pgx", connStr)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- database.RunMigrations(db, zap.NewNop()) }()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		t.Fatal("migrations hung")
		return nil
	}
}

func TestRunMigrations_InsufficientPermissionsFailFast(t *testing.T) {
	connStr := scratchDatabase(t, "migrate_restricted", false)

	err := migrateWithin(t, connStr, 30*time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
}

func TestRunMigrations_CreatesTablesAndIsIdempotent(t *testing.T) {
	connStr := scratchDatabase(t, "migrate_full", true)

	require.NoError(t, migrateWithin(t, connStr, 60*time.Second))
	require.NoError(t, migrateWithin(t, connStr, 60*time.Second))

	verify, err := sql.Open("pgx", connStr)
	require.NoError(t, err)
	defer verify.Close()

	for _, table := range []string{"chat_history", "workflow_logs"} {
		var exists bool
		err := verify.QueryRow(`
			SELECT EXISTS (
				SELECT 1 FROM information_schema.tables
				WHERE table_schema = 'public' AND table_name = $1
			)`, table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "table %s should exist after migrations", table)
	}
}
