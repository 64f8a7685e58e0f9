package chatflow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-chat-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-chat-engine/pkg/audit"
	"github.com/ekaya-inc/ekaya-chat-engine/pkg/logging"
	"github.com/ekaya-inc/ekaya-chat-engine/pkg/models"
	sqlutil "github.com/ekaya-inc/ekaya-chat-engine/pkg/sql"
)

// DefaultPreviewLimit bounds the rows kept from a validation query.
const DefaultPreviewLimit = 50

// QueryValidator executes generated queries and classifies the outcome.
type QueryValidator struct {
	baseStep
	executor     datasource.QueryExecutor
	security     *audit.SecurityAuditor
	previewLimit int
	timeout      time.Duration
}

var _ StepExecutor = (*QueryValidator)(nil)

// NewQueryValidator creates the sql_validate step.
func NewQueryValidator(executor datasource.QueryExecutor, security *audit.SecurityAuditor, previewLimit int, timeout time.Duration, logger *zap.Logger) *QueryValidator {
	if previewLimit <= 0 {
		previewLimit = DefaultPreviewLimit
	}
	return &QueryValidator{
		baseStep:     newBaseStep(models.ChatStepSQLValidate, logger),
		executor:     executor,
		security:     security,
		previewLimit: datasource.EffectiveLimit(previewLimit),
		timeout:      timeout,
	}
}

type validateInput struct {
	SQLResult *models.SQLGenerationResult `json:"sql_result"`
	Metrics   []string                    `json:"metrics"`
}

func (v *QueryValidator) Input(state *models.ConversationState) any {
	in := validateInput{SQLResult: state.Generation}
	if state.Parse != nil {
		in.Metrics = state.Parse.Metrics
	}
	return in
}

func (v *QueryValidator) Execute(ctx context.Context, state *models.ConversationState) (any, error) {
	if state.Generation == nil {
		return nil, errors.New("no generation result to validate")
	}
	result := v.Validate(ctx, state.Generation, state.Parse, state.SessionID, state.CallerID)
	state.Validation = result
	return result, nil
}

// Validate runs a generated query. The Failure variant yields the canonical
// invalid result without touching the data store.
func (v *QueryValidator) Validate(ctx context.Context, gen *models.SQLGenerationResult, parse *models.ParseResult, sessionID, callerID string) *models.SQLValidateResult {
	if !gen.IsSuccess() {
		return models.NewInvalidValidation(gen.Error, "")
	}

	sqlText, err := sqlutil.Normalize(gen.SQL)
	if err == nil {
		err = sqlutil.RequireReadOnly(sqlText)
	}
	if err != nil {
		if v.security != nil {
			v.security.LogQueryRejected(sessionID, callerID, err.Error(), gen.SQL)
		}
		return models.NewInvalidValidation(err.Error(), gen.SQL)
	}

	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}

	res, err := v.executor.Query(ctx, sqlText, v.previewLimit)
	if err != nil {
		msg := logging.SanitizeError(err)
		v.logger.Debug("Validation query failed", zap.String("error", msg))
		return models.NewInvalidValidation(msg, sqlText)
	}
	if v.security != nil {
		v.security.LogQueryExecution(sessionID, callerID, logging.SanitizeQuery(sqlText), res.RowCount)
	}

	rows := res.Rows
	if rows == nil {
		rows = []map[string]any{}
	}
	out := &models.SQLValidateResult{
		IsValid:     true,
		Rows:        res.RowCount,
		Columns:     res.ColumnNames(),
		Result:      rows,
		ExecutedSQL: sqlText,
		EmptyResult: res.RowCount == 0,
	}
	if res.RowCount > 0 {
		metrics := metricColumns(sqlText, res, parse)
		out.ZeroMetricResult = allZero(res.Rows, metrics)
	}
	return out
}

// metricColumns returns the result columns holding requested metrics: the
// aggregate columns of the outer SELECT, else (when the task asked for
// metrics) the numeric columns that are not dimensions.
func metricColumns(sqlText string, res *datasource.QueryResult, parse *models.ParseResult) []string {
	var metrics []string
	for _, name := range sqlutil.AggregateColumnNames(sqlText) {
		if col, ok := resultColumn(res, name); ok {
			metrics = append(metrics, col)
		}
	}
	if len(metrics) > 0 || parse == nil || len(parse.Metrics) == 0 {
		return metrics
	}

	dims := make(map[string]struct{}, len(parse.Dimensions))
	for _, d := range parse.Dimensions {
		_, column, found := strings.Cut(d, ".")
		if !found {
			column = d
		}
		dims[strings.ToLower(column)] = struct{}{}
	}
	for _, col := range res.Columns {
		if _, isDim := dims[strings.ToLower(col.Name)]; isDim {
			continue
		}
		if isNumericType(col.Type) {
			metrics = append(metrics, col.Name)
		}
	}
	return metrics
}

func resultColumn(res *datasource.QueryResult, name string) (string, bool) {
	for _, col := range res.Columns {
		if strings.EqualFold(col.Name, name) {
			return col.Name, true
		}
	}
	return "", false
}

func isNumericType(typeName string) bool {
	upper := strings.ToUpper(typeName)
	for _, marker := range []string{"INT", "DEC", "NUMERIC", "FLOAT", "DOUBLE", "REAL", "MONEY"} {
		if strings.Contains(upper, marker) {
			return true
		}
	}
	return false
}

// allZero reports whether every metric value in every row is null or zero.
// With no metric columns the result is never zero-metric.
func allZero(rows []map[string]any, metrics []string) bool {
	if len(metrics) == 0 {
		return false
	}
	for _, row := range rows {
		for _, m := range metrics {
			if !isNullOrZero(row[m]) {
				return false
			}
		}
	}
	return true
}

func isNullOrZero(v any) bool {
	switch n := v.(type) {
	case nil:
		return true
	case int:
		return n == 0
	case int8:
		return n == 0
	case int16:
		return n == 0
	case int32:
		return n == 0
	case int64:
		return n == 0
	case uint:
		return n == 0
	case uint8:
		return n == 0
	case uint16:
		return n == 0
	case uint32:
		return n == 0
	case uint64:
		return n == 0
	case float32:
		return n == 0
	case float64:
		return n == 0
	case string:
		// Text-protocol drivers return numbers as strings
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return err == nil && f == 0
	default:
		return fmt.Sprint(v) == "0"
	}
}
