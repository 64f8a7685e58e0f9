//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-chat-engine/pkg/testhelpers"
)

func setupQueryExecutorTest(t *testing.T) *QueryExecutor {
	t.Helper()

	testDB := testhelpers.GetTestDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg, err := FromMap(testDB.DatasourceConfig())
	require.NoError(t, err)

	executor, err := NewQueryExecutor(ctx, cfg, zap.NewNop())
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = executor.Close()
	})

	return executor
}

func TestQueryExecutor_CTEQuery(t *testing.T) {
	executor := setupQueryExecutorTest(t)
	ctx := context.Background()

	result, err := executor.Query(ctx, `
		WITH cs AS (
			SELECT student.id, student.real_name FROM student WHERE student.college_id = 1
		)
		SELECT cs.real_name, score.score_value
		FROM cs JOIN score ON score.student_id = cs.id
		ORDER BY score.score_value DESC`, 50)
	require.NoError(t, err)

	assert.Equal(t, []string{"real_name", "score_value"}, result.ColumnNames())
	require.Equal(t, 2, result.RowCount)
	assert.Equal(t, "张三", result.Rows[0]["real_name"])
	// NUMERIC arrives as float64
	assert.InDelta(t, 91.5, result.Rows[0]["score_value"], 1e-9)
}

func TestQueryExecutor_LimitApplied(t *testing.T) {
	executor := setupQueryExecutorTest(t)

	result, err := executor.Query(context.Background(),
		"WITH s AS (SELECT student.id FROM student) SELECT s.id FROM s ORDER BY s.id", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, result.RowCount)
}

func TestQueryExecutor_UnknownColumn(t *testing.T) {
	executor := setupQueryExecutorTest(t)

	_, err := executor.Query(context.Background(),
		"WITH s AS (SELECT student.nickname FROM student) SELECT * FROM s", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `column student.nickname does not exist`)
}

func TestQueryExecutor_DistinctProbe(t *testing.T) {
	executor := setupQueryExecutorTest(t)

	probe := "SELECT DISTINCT " + executor.QuoteIdentifier("status") +
		" FROM " + executor.QuoteIdentifier("student") +
		" WHERE " + executor.QuoteIdentifier("status") + " IS NOT NULL"
	result, err := executor.Query(context.Background(), probe, 10)
	require.NoError(t, err)

	values := make([]any, 0, result.RowCount)
	for _, row := range result.Rows {
		values = append(values, row["status"])
	}
	assert.ElementsMatch(t, []any{"在读", "休学"}, values)
}

func TestQueryExecutor_PingAndDialect(t *testing.T) {
	executor := setupQueryExecutorTest(t)
	assert.NoError(t, executor.Ping(context.Background()))
	assert.Equal(t, "postgres", executor.Dialect())
	assert.Equal(t, `"score"`, executor.QuoteIdentifier("score"))
}
