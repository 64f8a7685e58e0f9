package chatflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-chat-engine/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-chat-engine/pkg/audit"
	"github.com/ekaya-inc/ekaya-chat-engine/pkg/jsonutil"
	"github.com/ekaya-inc/ekaya-chat-engine/pkg/knowledge"
	"github.com/ekaya-inc/ekaya-chat-engine/pkg/llm"
	"github.com/ekaya-inc/ekaya-chat-engine/pkg/models"
	"github.com/ekaya-inc/ekaya-chat-engine/pkg/prompts"
	sqlutil "github.com/ekaya-inc/ekaya-chat-engine/pkg/sql"
)

// TaskParser turns a business question into a ParseResult whose filters
// only use whitelisted fields.
type TaskParser struct {
	baseStep
	llm      llm.Client
	kb       *knowledge.Base
	security *audit.SecurityAuditor
	timeout  time.Duration
}

var _ StepExecutor = (*TaskParser)(nil)

// NewTaskParser creates the task_parse step.
func NewTaskParser(client llm.Client, kb *knowledge.Base, security *audit.SecurityAuditor, timeout time.Duration, logger *zap.Logger) *TaskParser {
	return &TaskParser{
		baseStep: newBaseStep(models.ChatStepTaskParse, logger),
		llm:      client,
		kb:       kb,
		security: security,
		timeout:  timeout,
	}
}

type taskParseInput struct {
	IntentResult *models.IntentResult `json:"intent_result"`
	Query        string               `json:"query"`
}

func (p *TaskParser) Input(state *models.ConversationState) any {
	return taskParseInput{IntentResult: state.Intent, Query: state.RewrittenQuery()}
}

func (p *TaskParser) Execute(ctx context.Context, state *models.ConversationState) (any, error) {
	result, err := p.Parse(ctx, state.RewrittenQuery(), state.ModelName, state.SessionID, state.CallerID)
	if err != nil {
		return nil, err
	}
	state.Parse = result
	return result, nil
}

type parseResponse struct {
	Intent     json.RawMessage `json:"intent"`
	Entities   json.RawMessage `json:"entities"`
	Dimensions json.RawMessage `json:"dimensions"`
	Metrics    json.RawMessage `json:"metrics"`
	Filters    json.RawMessage `json:"filters"`
	TimeRange  json.RawMessage `json:"time_range"`
	Operation  json.RawMessage `json:"operation"`
	Confidence json.RawMessage `json:"confidence"`
}

// Parse calls the model and validates its task. Malformed entities and
// filters are dropped; a missing operation, time_range or confidence fails
// the whole parse.
func (p *TaskParser) Parse(ctx context.Context, query, model, sessionID, callerID string) (*models.ParseResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: task parse has no query", apperrors.ErrInvalidRequest)
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	resp, err := p.llm.Complete(ctx, llm.Request{
		System:   prompts.TaskParseSystemMessage(),
		Prompt:   prompts.BuildTaskParsePrompt(query, p.kb.Fields(), p.kb.AliasPairs()),
		Model:    model,
		JSONMode: true,
	})
	if err != nil {
		return nil, fmt.Errorf("task parse model call failed: %w", err)
	}

	raw, err := llm.ParseJSONResponse[parseResponse](resp.Content)
	if err != nil {
		return nil, err
	}

	intent := models.Intent(strings.ToLower(jsonutil.FlexibleString(raw.Intent)))
	if !models.IsValidIntent(intent) {
		return nil, fmt.Errorf("%w: intent %q is not allowed", apperrors.ErrInvalidModelOutput, intent)
	}

	operation := models.QueryOperation(strings.ToLower(jsonutil.FlexibleString(raw.Operation)))
	if !models.IsValidQueryOperation(operation) {
		return nil, fmt.Errorf("%w: operation %q is not allowed", apperrors.ErrInvalidModelOutput, operation)
	}

	timeRange, ok := parseTimeRange(raw.TimeRange)
	if !ok {
		return nil, fmt.Errorf("%w: time_range is missing", apperrors.ErrInvalidModelOutput)
	}

	confidence, ok := jsonutil.FlexibleFloat(raw.Confidence)
	if !ok {
		return nil, fmt.Errorf("%w: confidence is missing or not a number", apperrors.ErrInvalidModelOutput)
	}

	filters := p.normalizeFilters(raw.Filters)
	filters = p.screenFilters(filters, sessionID, callerID)

	return &models.ParseResult{
		Intent:     models.IntentBusinessQuery,
		Entities:   normalizeEntities(raw.Entities),
		Dimensions: uniqueStrings(raw.Dimensions),
		Metrics:    uniqueStrings(raw.Metrics),
		Filters:    filters,
		TimeRange:  timeRange,
		Operation:  operation,
		Confidence: jsonutil.ClampUnit(confidence),
	}, nil
}

// normalizeFilters keeps filters on whitelisted fields with an allowed
// operator and a value shape the operator accepts.
func (p *TaskParser) normalizeFilters(raw json.RawMessage) []models.Filter {
	filters := []models.Filter{}
	for _, item := range rawArray(raw) {
		obj := rawObject(item)
		if obj == nil {
			continue
		}

		field, ok := p.kb.CanonicalField(jsonutil.FlexibleString(obj["field"]))
		if !ok {
			p.logger.Debug("Dropping filter on unknown field", zap.String("field", jsonutil.FlexibleString(obj["field"])))
			continue
		}

		op := models.FilterOperator(strings.ToLower(jsonutil.FlexibleString(obj["op"])))
		if op == "" {
			op = models.FilterOpEq
		}
		if !models.IsValidFilterOperator(op) {
			p.logger.Debug("Dropping filter with unsupported operator", zap.String("op", string(op)))
			continue
		}

		var value models.FilterValue
		if v, present := obj["value"]; present {
			if err := json.Unmarshal(v, &value); err != nil {
				p.logger.Debug("Dropping filter with unsupported value", zap.String("field", field), zap.Error(err))
				continue
			}
		} else {
			value = models.ScalarValue(models.Scalar{Kind: models.ScalarNull})
		}

		if !valueFitsOperator(op, value) {
			p.logger.Debug("Dropping filter whose value does not fit its operator",
				zap.String("field", field), zap.String("op", string(op)))
			continue
		}

		filters = append(filters, models.Filter{Field: field, Op: op, Value: value})
	}
	return filters
}

// screenFilters drops filters carrying a value libinjection flags.
func (p *TaskParser) screenFilters(filters []models.Filter, sessionID, callerID string) []models.Filter {
	flagged := sqlutil.CheckFilters(filters)
	if len(flagged) == 0 {
		return filters
	}

	drop := make(map[int]struct{}, len(flagged))
	for _, f := range flagged {
		drop[f.Index] = struct{}{}
		if p.security != nil {
			p.security.LogInjectionAttempt(sessionID, callerID, audit.SQLInjectionDetails{
				Field:       f.Field,
				Value:       f.Value,
				Fingerprint: f.Fingerprint,
			})
		}
	}

	kept := make([]models.Filter, 0, len(filters))
	for i, f := range filters {
		if _, bad := drop[i]; bad {
			continue
		}
		kept = append(kept, f)
	}
	return kept
}

func valueFitsOperator(op models.FilterOperator, v models.FilterValue) bool {
	switch op {
	case models.FilterOpBetween:
		return v.IsArray && len(v.Items) == 2
	case models.FilterOpIn, models.FilterOpNotIn:
		return v.IsArray && len(v.Items) > 0
	default:
		return !v.IsArray
	}
}

func normalizeEntities(raw json.RawMessage) []models.Entity {
	entities := []models.Entity{}
	for _, item := range rawArray(raw) {
		obj := rawObject(item)
		if obj == nil {
			continue
		}
		typ := jsonutil.FlexibleString(obj["type"])
		value := jsonutil.FlexibleString(obj["value"])
		if typ == "" || value == "" {
			continue
		}
		entities = append(entities, models.Entity{Type: typ, Value: value})
	}
	return entities
}

// uniqueStrings keeps non-empty strings in order, dropping case-insensitive duplicates.
func uniqueStrings(raw json.RawMessage) []string {
	out := []string{}
	seen := make(map[string]struct{})
	for _, item := range rawArray(raw) {
		s := jsonutil.FlexibleString(item)
		if s == "" {
			continue
		}
		key := strings.ToLower(s)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}

func parseTimeRange(raw json.RawMessage) (models.TimeRange, bool) {
	obj := rawObject(raw)
	if obj == nil {
		return models.TimeRange{}, false
	}
	var tr models.TimeRange
	if s := jsonutil.FlexibleString(obj["start"]); s != "" {
		tr.Start = &s
	}
	if e := jsonutil.FlexibleString(obj["end"]); e != "" {
		tr.End = &e
	}
	return tr, true
}

func rawArray(raw json.RawMessage) []json.RawMessage {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	return items
}

func rawObject(raw json.RawMessage) map[string]json.RawMessage {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}
	return obj
}
