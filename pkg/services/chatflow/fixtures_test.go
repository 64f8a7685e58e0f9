package chatflow

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-chat-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-chat-engine/pkg/audit"
	"github.com/ekaya-inc/ekaya-chat-engine/pkg/knowledge"
	"github.com/ekaya-inc/ekaya-chat-engine/pkg/llm"
	"github.com/ekaya-inc/ekaya-chat-engine/pkg/models"
	"github.com/ekaya-inc/ekaya-chat-engine/pkg/prompts"
)

const testDialect = "postgres"

func testKB(t *testing.T) *knowledge.Base {
	t.Helper()
	kb, err := knowledge.New(knowledge.Document{
		Meta: knowledge.Meta{Name: "edu_admin", Version: "1"},
		Tables: []knowledge.Table{
			{
				Name:        "student",
				Description: "Student master records.",
				Columns: []knowledge.Column{
					{Name: "id", Type: "integer", Description: "Student id."},
					{Name: "real_name", Type: "varchar", Description: "Student name.", Aliases: []string{"name"}},
					{Name: "student_no", Type: "varchar", Description: "Student number."},
					{Name: "class_id", Type: "integer", Description: "References class.id."},
					{Name: "enrollment_year", Type: "integer", Description: "Year of enrollment."},
				},
			},
			{
				Name:        "class",
				Description: "Teaching classes.",
				Columns: []knowledge.Column{
					{Name: "id", Type: "integer", Description: "Class id."},
					{Name: "class_name", Type: "varchar", Description: "Class name."},
				},
			},
		},
	})
	require.NoError(t, err)
	return kb
}

// mockExecutor is a datasource.QueryExecutor with a function field.
type mockExecutor struct {
	QueryFunc func(ctx context.Context, sqlQuery string, limit int) (*datasource.QueryResult, error)

	mu      sync.Mutex
	queries []string
}

var _ datasource.QueryExecutor = (*mockExecutor)(nil)

func (m *mockExecutor) Query(ctx context.Context, sqlQuery string, limit int) (*datasource.QueryResult, error) {
	m.mu.Lock()
	m.queries = append(m.queries, sqlQuery)
	m.mu.Unlock()
	if m.QueryFunc != nil {
		return m.QueryFunc(ctx, sqlQuery, limit)
	}
	return &datasource.QueryResult{}, nil
}

func (m *mockExecutor) QuoteIdentifier(name string) string { return `"` + name + `"` }

func (m *mockExecutor) Dialect() string { return testDialect }

func (m *mockExecutor) Ping(context.Context) error { return nil }

func (m *mockExecutor) Close() error { return nil }

// Queries returns the non-probe queries executed so far.
func (m *mockExecutor) Queries() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, q := range m.queries {
		if !isProbe(q) {
			out = append(out, q)
		}
	}
	return out
}

// Probes returns the probe queries executed so far.
func (m *mockExecutor) Probes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, q := range m.queries {
		if isProbe(q) {
			out = append(out, q)
		}
	}
	return out
}

func isProbe(q string) bool {
	return strings.HasPrefix(q, "SELECT DISTINCT")
}

func classCountResult(count int64) *datasource.QueryResult {
	return &datasource.QueryResult{
		Columns:  []datasource.ColumnInfo{{Name: "class_name", Type: "TEXT"}, {Name: "student_count", Type: "BIGINT"}},
		Rows:     []map[string]any{{"class_name": "CS-1", "student_count": count}},
		RowCount: 1,
	}
}

func emptyResult() *datasource.QueryResult {
	return &datasource.QueryResult{
		Columns: []datasource.ColumnInfo{{Name: "class_name", Type: "TEXT"}, {Name: "student_count", Type: "BIGINT"}},
		Rows:    []map[string]any{},
	}
}

func probeResult(column string, values ...any) *datasource.QueryResult {
	rows := make([]map[string]any, 0, len(values))
	for _, v := range values {
		rows = append(rows, map[string]any{column: v})
	}
	return &datasource.QueryResult{
		Columns:  []datasource.ColumnInfo{{Name: column, Type: "TEXT"}},
		Rows:     rows,
		RowCount: len(rows),
	}
}

const (
	businessIntentJSON = `{"intent": "business_query", "is_followup": false, "confidence": 0.92,
		"merged_query": "How many 2023 students are in each class?",
		"rewritten_query": "Count students enrolled in 2023 per class"}`

	chatIntentJSON = `{"intent": "chat", "is_followup": false, "confidence": 0.97,
		"merged_query": "hello", "rewritten_query": "hello"}`

	countTaskJSON = `{"intent": "business_query", "entities": [],
		"dimensions": ["class.class_name"], "metrics": ["student count"],
		"filters": [{"field": "student.enrollment_year", "op": "=", "value": 2023}],
		"time_range": {"start": null, "end": null}, "operation": "aggregate", "confidence": 0.85}`

	countSQL = `WITH counts AS (
  SELECT student.class_id, COUNT(student.id) AS student_count
  FROM student
  WHERE student.enrollment_year = 2023
  GROUP BY student.class_id
)
SELECT class.class_name, counts.student_count
FROM counts JOIN class ON class.id = counts.class_id`

	countSQLRetry = `WITH counts AS (
  SELECT student.class_id, COUNT(*) AS student_count
  FROM student
  WHERE student.enrollment_year >= 2023
  GROUP BY student.class_id
)
SELECT class.class_name, counts.student_count
FROM counts JOIN class ON class.id = counts.class_id`

	// References a field the knowledge base does not have.
	misspelledSQL = `WITH named AS (
  SELECT student.real_nam, student.class_id FROM student WHERE student.enrollment_year = 2023
)
SELECT named.real_nam FROM named`

	renamedSQL = `WITH named AS (
  SELECT student.real_name, student.class_id FROM student WHERE student.enrollment_year = 2023
)
SELECT named.real_name FROM named`
)

func sqlResponse(sqlText string) string {
	data, _ := json.Marshal(map[string]any{"sql": sqlText, "entity_mappings": []any{}})
	return string(data)
}

// scriptedLLM answers each workflow prompt by its system message. SQL
// answers are consumed in order; the last one repeats.
type scriptedLLM struct {
	Intent  string
	Task    string
	SQL     []string
	Summary string

	mu       sync.Mutex
	sqlCalls int
}

func (s *scriptedLLM) Client() *llm.MockClient {
	return &llm.MockClient{
		CompleteFunc: func(ctx context.Context, req llm.Request) (*llm.Response, error) {
			switch req.System {
			case prompts.IntentSystemMessage():
				return &llm.Response{Content: s.Intent}, nil
			case prompts.TaskParseSystemMessage():
				return &llm.Response{Content: s.Task}, nil
			case prompts.SQLGenerationSystemMessage(testDialect):
				s.mu.Lock()
				defer s.mu.Unlock()
				if len(s.SQL) == 0 {
					return nil, errors.New("no SQL scripted")
				}
				i := min(s.sqlCalls, len(s.SQL)-1)
				s.sqlCalls++
				return &llm.Response{Content: sqlResponse(s.SQL[i])}, nil
			case prompts.ResultSummarySystemMessage():
				if s.Summary == "" {
					return nil, errors.New("no summary scripted")
				}
				return &llm.Response{Content: s.Summary}, nil
			}
			return nil, errors.New("unexpected prompt")
		},
	}
}

type routerDeps struct {
	client   llm.Client
	executor datasource.QueryExecutor
	auditor  audit.StepAuditor
	returner *ResultReturner
}

func newTestRouter(t *testing.T, deps routerDeps) *Router {
	t.Helper()
	kb := testKB(t)
	logger := zap.NewNop()
	return NewRouter(Steps{
		IntentRecognition: NewIntentRecognizer(deps.client, 0, logger),
		TaskParse:         NewTaskParser(deps.client, kb, audit.NewSecurityAuditor(logger), 0, logger),
		SQLGeneration:     NewQueryGenerator(deps.client, kb, testDialect, 0, logger),
		SQLValidate:       NewQueryValidator(deps.executor, audit.NewSecurityAuditor(logger), 10, 0, logger),
		HiddenContext:     NewFailureResolver(deps.executor, kb, nil, DefaultResolverConfig(), logger),
		ResultReturn:      deps.returner,
	}, deps.auditor, logger)
}

func newTestState(message string) *models.ConversationState {
	return &models.ConversationState{
		SessionID:  "a1b2c3d4e5f60718",
		CallerID:   "tester",
		Message:    message,
		History:    []string{},
		Threshold:  0.5,
		ModelName:  "test-model",
		RetryBound: 1,
	}
}

// recordingObserver captures events as "kind:step" strings.
type recordingObserver struct {
	mu     sync.Mutex
	events []string
}

func (o *recordingObserver) OnStart(_ context.Context, step models.ChatStepName) {
	o.add("start:" + string(step))
}

func (o *recordingObserver) OnEnd(_ context.Context, step models.ChatStepName) {
	o.add("end:" + string(step))
}

func (o *recordingObserver) OnError(_ context.Context, step models.ChatStepName, _ string) {
	o.add("error:" + string(step))
}

func (o *recordingObserver) add(event string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, event)
}

func (o *recordingObserver) Events() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.events...)
}
