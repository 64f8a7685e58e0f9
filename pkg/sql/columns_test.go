package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOuterSelectColumns_SkipsCTEBodies(t *testing.T) {
	query := `WITH s AS (SELECT COUNT(*) AS inner_count FROM student)
SELECT class.name, COUNT(student.id) AS student_count, SUM(score.score) total, s.inner_count
FROM class, s`

	cols := OuterSelectColumns(query)
	require.Len(t, cols, 4)

	assert.Equal(t, "name", cols[0].Name)
	assert.False(t, cols[0].Aggregate)

	assert.Equal(t, "student_count", cols[1].Name)
	assert.True(t, cols[1].Aggregate)

	assert.Equal(t, "total", cols[2].Name)
	assert.True(t, cols[2].Aggregate)

	assert.Equal(t, "inner_count", cols[3].Name)
	assert.False(t, cols[3].Aggregate)
}

func TestOuterSelectColumns_FunctionArgumentsNotSplit(t *testing.T) {
	cols := OuterSelectColumns("SELECT DISTINCT ROUND(AVG(score.score), 2) AS avg_score, COALESCE(x.a, 'a,b') FROM score")
	require.Len(t, cols, 2)
	assert.Equal(t, "avg_score", cols[0].Name)
	assert.True(t, cols[0].Aggregate)
	assert.Equal(t, "COALESCE(x.a, 'a,b')", cols[1].Name)
}

func TestOuterSelectColumns_QuotedAlias(t *testing.T) {
	cols := OuterSelectColumns("SELECT MAX(score.score) AS `best` FROM score")
	require.Len(t, cols, 1)
	assert.Equal(t, "best", cols[0].Name)
}

func TestOuterSelectColumns_NoSelect(t *testing.T) {
	assert.Nil(t, OuterSelectColumns("UPDATE student SET name = 'x'"))
}

func TestAggregateColumnNames(t *testing.T) {
	query := "WITH t AS (SELECT 1) SELECT college.name, AVG(score.score) AS avg_score, MIN(score.score) AS low FROM college"
	assert.Equal(t, []string{"avg_score", "low"}, AggregateColumnNames(query))
}
