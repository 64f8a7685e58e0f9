//go:build integration

package testhelpers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestDB_FixtureLoaded(t *testing.T) {
	testDB := GetTestDB(t)
	ctx := context.Background()

	var studentCount int
	err := testDB.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM student").Scan(&studentCount)
	require.NoError(t, err)
	assert.Equal(t, 3, studentCount)

	var collegeName string
	err = testDB.Pool.QueryRow(ctx, "SELECT college_name FROM college WHERE college_code = 'CS'").Scan(&collegeName)
	require.NoError(t, err)
	assert.Equal(t, "计算机学院", collegeName)
}

func TestEngineDB_MigrationsApplied(t *testing.T) {
	engineDB := GetEngineDB(t)
	ctx := context.Background()

	for _, table := range []string{"chat_history", "workflow_logs"} {
		var exists bool
		err := engineDB.DB.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM information_schema.tables
				WHERE table_schema = 'public' AND table_name = $1
			)`, table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "table %s should exist after migrations", table)
	}
}
