package chatflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-chat-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-chat-engine/pkg/cache"
	"github.com/ekaya-inc/ekaya-chat-engine/pkg/models"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name      string
		message   string
		wantType  models.QueryErrorType
		wantIdent []string
	}{
		{"postgres quoted column", `failed to execute query: ERROR: column "real_nam" does not exist (SQLSTATE 42703)`, models.QueryErrorUnknownColumn, []string{"real_nam"}},
		{"postgres qualified column", `ERROR: column student.nickname does not exist (SQLSTATE 42703)`, models.QueryErrorUnknownColumn, []string{"student.nickname"}},
		{"postgres relation", `ERROR: relation "students" does not exist (SQLSTATE 42P01)`, models.QueryErrorUnknownTable, []string{"students"}},
		{"postgres missing from entry", `ERROR: missing FROM-clause entry for table "s" (SQLSTATE 42P01)`, models.QueryErrorUnknownTable, []string{"s"}},
		{"postgres function", `ERROR: function datediff(unknown, date) does not exist (SQLSTATE 42883)`, models.QueryErrorObjectNotFound, []string{"datediff"}},
		{"postgres syntax", `ERROR: syntax error at or near "FROM" (SQLSTATE 42601)`, models.QueryErrorSyntax, nil},
		{"mysql column", `Error 1054 (42S22): Unknown column 'student.nickname' in 'field list'`, models.QueryErrorUnknownColumn, []string{"student.nickname"}},
		{"mysql table", `Error 1146 (42S02): Table 'edu_admin.students' doesn't exist`, models.QueryErrorUnknownTable, []string{"edu_admin.students"}},
		{"mysql syntax", `Error 1064 (42000): You have an error in your SQL syntax; check the manual`, models.QueryErrorSyntax, nil},
		{"mysql function", `Error 1305 (42000): FUNCTION edu_admin.datediffx does not exist`, models.QueryErrorObjectNotFound, []string{"edu_admin.datediffx"}},
		{"mssql column", `mssql: Invalid column name 'nickname'.`, models.QueryErrorUnknownColumn, []string{"nickname"}},
		{"mssql multi-part", `mssql: The multi-part identifier "s.nickname" could not be bound.`, models.QueryErrorUnknownColumn, []string{"s.nickname"}},
		{"mssql object", `mssql: Invalid object name 'dbo.students'.`, models.QueryErrorObjectNotFound, []string{"dbo.students"}},
		{"mssql syntax", `mssql: Incorrect syntax near the keyword 'FROM'.`, models.QueryErrorSyntax, nil},
		{"whitelist", `query references fields outside the whitelist: student.nam, class.nme`, models.QueryErrorUnknownColumn, []string{"student.nam", "class.nme"}},
		{"sqlite column", `no such column: nickname`, models.QueryErrorUnknownColumn, []string{"nickname"}},
		{"connection", `dial tcp 10.0.0.1:5432: connect: connection refused`, models.QueryErrorExecution, nil},
		{"repeated query", errRepeatedQuery, models.QueryErrorExecution, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			class := classifyError(tt.message)
			assert.Equal(t, tt.wantType, class.errorType)
			assert.Equal(t, tt.wantIdent, class.identifiers)
		})
	}
}

func newTestResolver(t *testing.T, exec datasource.QueryExecutor, probes cache.ProbeCache, cfg ResolverConfig) *FailureResolver {
	t.Helper()
	return NewFailureResolver(exec, testKB(t), probes, cfg, zap.NewNop())
}

func invalidState(errMsg, executedSQL string) *models.ConversationState {
	s := businessState()
	s.Parse.Filters = []models.Filter{{
		Field: "student.enrollment_year",
		Op:    models.FilterOpEq,
		Value: models.ScalarValue(models.NumberScalar(2023)),
	}}
	s.Validation = models.NewInvalidValidation(errMsg, executedSQL)
	return s
}

func TestFailureResolver_QualifiesBareColumn(t *testing.T) {
	var probeLimit int
	exec := &mockExecutor{
		QueryFunc: func(ctx context.Context, sqlQuery string, limit int) (*datasource.QueryResult, error) {
			probeLimit = limit
			return probeResult("real_name", "Li Lei"), nil
		},
	}
	resolver := newTestResolver(t, exec, nil, DefaultResolverConfig())
	state := invalidState(`ERROR: column "real_nam" does not exist (SQLSTATE 42703)`,
		"WITH s AS (SELECT student.real_nam FROM student) SELECT * FROM s")

	out, err := resolver.Execute(context.Background(), state)
	require.NoError(t, err)

	hc := state.HiddenContext
	require.NotNil(t, hc)
	assert.Same(t, hc, out)
	assert.Equal(t, models.QueryErrorUnknownColumn, hc.ErrorType)
	assert.Equal(t, "WITH s AS (SELECT student.real_nam FROM student) SELECT * FROM s", hc.FailedSQL)
	require.Len(t, hc.FieldCandidates, 1)
	assert.Equal(t, "student.real_nam", hc.FieldCandidates[0].Missing)
	assert.Equal(t, "student.real_name", hc.FieldCandidates[0].Candidates[0])
	assert.LessOrEqual(t, len(hc.FieldCandidates[0].Candidates), 5)

	assert.Equal(t, []string{`SELECT DISTINCT "real_name" FROM "student" WHERE "real_name" IS NOT NULL`}, exec.Probes())
	assert.Equal(t, 10, probeLimit)
	require.Len(t, hc.ProbeSamples, 1)
	assert.Equal(t, []string{"Li Lei"}, hc.ProbeSamples[0].Values)

	assert.Contains(t, hc.Hints, "student.real_nam does not exist; replace it with one of: "+joinCandidates(hc.FieldCandidates[0]))
	assert.Equal(t, models.KnowledgeSummary{TableCount: 2, FieldCount: 7}, hc.KBSummary)
	assert.Contains(t, hc.RewrittenQuery, "use student.real_name instead of student.real_nam")
	assert.Equal(t, 0, hc.RetryCount)
}

func joinCandidates(fc models.FieldCandidates) string {
	out := ""
	for i, c := range fc.Candidates {
		if i > 0 {
			out += ", "
		}
		out += c
	}
	return out
}

func TestFailureResolver_UnknownTable(t *testing.T) {
	exec := &mockExecutor{}
	resolver := newTestResolver(t, exec, nil, DefaultResolverConfig())
	state := invalidState(`Error 1146 (42S02): Table 'edu_admin.students' doesn't exist`, "")

	hc, err := resolver.Resolve(context.Background(), state)
	require.NoError(t, err)

	assert.Equal(t, models.QueryErrorUnknownTable, hc.ErrorType)
	require.Len(t, hc.FieldCandidates, 1)
	assert.Equal(t, "students", hc.FieldCandidates[0].Missing)
	assert.Equal(t, []string{"student"}, hc.FieldCandidates[0].Candidates)
	// Table candidates are not probed.
	assert.Empty(t, hc.ProbeSamples)
	assert.Empty(t, exec.Probes())
}

func TestFailureResolver_SyntaxError(t *testing.T) {
	resolver := newTestResolver(t, &mockExecutor{}, nil, DefaultResolverConfig())
	state := invalidState(`ERROR: syntax error at or near "FROM" (SQLSTATE 42601)`, "WITH x AS (SELECT FROM) SELECT 1")

	hc, err := resolver.Resolve(context.Background(), state)
	require.NoError(t, err)

	assert.Equal(t, models.QueryErrorSyntax, hc.ErrorType)
	assert.Empty(t, hc.FieldCandidates)
	assert.Empty(t, hc.ProbeSamples)
	assert.Contains(t, hc.Hints, "Fix the SQL syntax and keep the WITH ... SELECT form")
	assert.Equal(t, state.RewrittenQuery(), hc.RewrittenQuery)
}

func TestFailureResolver_ZeroMetricProbesQueriedFields(t *testing.T) {
	exec := &mockExecutor{
		QueryFunc: func(ctx context.Context, sqlQuery string, limit int) (*datasource.QueryResult, error) {
			return probeResult("v", "x"), nil
		},
	}
	resolver := newTestResolver(t, exec, nil, DefaultResolverConfig())
	state := invalidState("", "")
	state.Generation = models.NewGenerationSuccess("WITH x AS (SELECT 1) SELECT * FROM x",
		[]models.EntityMapping{{Type: "class", Value: "CS-1", Field: "class.class_name"}}, nil, nil)
	state.Validation = &models.SQLValidateResult{IsValid: true, Rows: 1, ZeroMetricResult: true, ExecutedSQL: "WITH x AS (SELECT 1) SELECT * FROM x"}

	hc, err := resolver.Resolve(context.Background(), state)
	require.NoError(t, err)

	assert.Equal(t, models.QueryErrorExecution, hc.ErrorType)
	assert.Equal(t, "query metrics are all zero", hc.Error)
	require.Len(t, hc.ProbeSamples, 2)
	assert.Equal(t, "student.enrollment_year", hc.ProbeSamples[0].Field)
	assert.Equal(t, "class.class_name", hc.ProbeSamples[1].Field)
	assert.Contains(t, hc.Hints, "The query ran but every metric is zero or null; check join keys and filter values")
}

func TestFailureResolver_LimitsProbeFields(t *testing.T) {
	exec := &mockExecutor{
		QueryFunc: func(ctx context.Context, sqlQuery string, limit int) (*datasource.QueryResult, error) {
			return probeResult("v"), nil
		},
	}
	cfg := DefaultResolverConfig()
	cfg.MaxProbeFields = 1
	resolver := newTestResolver(t, exec, nil, cfg)
	state := invalidState("", "")
	state.Parse.Filters = append(state.Parse.Filters,
		models.Filter{Field: "class.class_name", Op: models.FilterOpEq, Value: models.ScalarValue(models.StringScalar("CS-1"))},
		models.Filter{Field: "STUDENT.ENROLLMENT_YEAR", Op: models.FilterOpGt, Value: models.ScalarValue(models.NumberScalar(2020))},
	)
	state.Validation = &models.SQLValidateResult{IsValid: true, EmptyResult: true}

	hc, err := resolver.Resolve(context.Background(), state)
	require.NoError(t, err)

	require.Len(t, hc.ProbeSamples, 1)
	assert.Len(t, exec.Probes(), 1)
}

func TestFailureResolver_ProbeFailureIsRecorded(t *testing.T) {
	exec := &mockExecutor{
		QueryFunc: func(ctx context.Context, sqlQuery string, limit int) (*datasource.QueryResult, error) {
			return nil, errors.New("permission denied for table student")
		},
	}
	resolver := newTestResolver(t, exec, nil, DefaultResolverConfig())
	state := invalidState("", "")
	state.Validation = &models.SQLValidateResult{IsValid: true, EmptyResult: true}

	hc, err := resolver.Resolve(context.Background(), state)
	require.NoError(t, err)

	require.Len(t, hc.ProbeSamples, 1)
	require.NotNil(t, hc.ProbeSamples[0].Error)
	assert.Contains(t, *hc.ProbeSamples[0].Error, "permission denied")
	assert.Empty(t, hc.ProbeSamples[0].Values)
	for _, h := range hc.Hints {
		assert.NotContains(t, h, "Stored values")
	}
}

func TestFailureResolver_ProbeCache(t *testing.T) {
	probes := cache.NewMemoryProbeCache(time.Minute)
	defer probes.Close()

	exec := &mockExecutor{
		QueryFunc: func(ctx context.Context, sqlQuery string, limit int) (*datasource.QueryResult, error) {
			return probeResult("enrollment_year", int64(2021)), nil
		},
	}
	resolver := newTestResolver(t, exec, probes, DefaultResolverConfig())

	for i := 0; i < 3; i++ {
		state := invalidState("", "")
		state.Validation = &models.SQLValidateResult{IsValid: true, EmptyResult: true}
		hc, err := resolver.Resolve(context.Background(), state)
		require.NoError(t, err)
		require.Len(t, hc.ProbeSamples, 1)
		assert.Equal(t, []string{"2021"}, hc.ProbeSamples[0].Values)
	}
	assert.Len(t, exec.Probes(), 1)
}

func TestFailureResolver_RequiresFailure(t *testing.T) {
	resolver := newTestResolver(t, &mockExecutor{}, nil, DefaultResolverConfig())

	state := businessState()
	_, err := resolver.Resolve(context.Background(), state)
	assert.Error(t, err)

	state.Validation = &models.SQLValidateResult{IsValid: true, Rows: 3}
	_, err = resolver.Execute(context.Background(), state)
	assert.Error(t, err)
	assert.Nil(t, state.HiddenContext)
}
