package chatflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-chat-engine/pkg/jsonutil"
	"github.com/ekaya-inc/ekaya-chat-engine/pkg/knowledge"
	"github.com/ekaya-inc/ekaya-chat-engine/pkg/llm"
	"github.com/ekaya-inc/ekaya-chat-engine/pkg/logging"
	"github.com/ekaya-inc/ekaya-chat-engine/pkg/models"
	"github.com/ekaya-inc/ekaya-chat-engine/pkg/prompts"
	sqlutil "github.com/ekaya-inc/ekaya-chat-engine/pkg/sql"
)

// errRepeatedQuery is the Failure message for a retry that reproduces the failed query.
const errRepeatedQuery = "regenerated query repeats failed query"

// QueryGenerator compiles a ParseResult into one read-only WITH query.
// It never fails: every problem becomes the Failure variant.
type QueryGenerator struct {
	baseStep
	llm     llm.Client
	kb      *knowledge.Base
	dialect string
	timeout time.Duration
}

var _ StepExecutor = (*QueryGenerator)(nil)

// NewQueryGenerator creates the sql_generation step for a datasource dialect.
func NewQueryGenerator(client llm.Client, kb *knowledge.Base, dialect string, timeout time.Duration, logger *zap.Logger) *QueryGenerator {
	return &QueryGenerator{
		baseStep: newBaseStep(models.ChatStepSQLGeneration, logger),
		llm:      client,
		kb:       kb,
		dialect:  dialect,
		timeout:  timeout,
	}
}

type generationInput struct {
	RewrittenQuery string                      `json:"rewritten_query"`
	ParseResult    *models.ParseResult         `json:"parse_result"`
	HiddenContext  *models.HiddenContextResult `json:"hidden_context_result"`
	ModelName      string                      `json:"model_name"`
}

func (g *QueryGenerator) Input(state *models.ConversationState) any {
	return generationInput{
		RewrittenQuery: generationQuery(state),
		ParseResult:    state.Parse,
		HiddenContext:  state.HiddenContext,
		ModelName:      generationModel(state),
	}
}

func (g *QueryGenerator) Execute(ctx context.Context, state *models.ConversationState) (any, error) {
	result := g.Generate(ctx, generationQuery(state), state.Parse, state.HiddenContext, generationModel(state))
	state.Generation = result
	return result, nil
}

// generationQuery prefers the diagnosis-folded query on a retry pass.
func generationQuery(state *models.ConversationState) string {
	if state.HiddenContext != nil && state.HiddenContext.RewrittenQuery != "" {
		return state.HiddenContext.RewrittenQuery
	}
	return state.RewrittenQuery()
}

func generationModel(state *models.ConversationState) string {
	if state.SQLModel != "" {
		return state.SQLModel
	}
	return state.ModelName
}

type generationResponse struct {
	SQL            json.RawMessage `json:"sql"`
	EntityMappings json.RawMessage `json:"entity_mappings"`
}

// Generate asks the model for a query and checks it against the whitelist.
// hc is non-nil on a retry pass.
func (g *QueryGenerator) Generate(ctx context.Context, query string, parse *models.ParseResult, hc *models.HiddenContextResult, model string) *models.SQLGenerationResult {
	if parse == nil {
		return models.NewGenerationFailure("no parsed task to generate from")
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	resp, err := g.llm.Complete(ctx, llm.Request{
		System: prompts.SQLGenerationSystemMessage(g.dialect),
		Prompt: prompts.BuildSQLGenerationPrompt(prompts.SQLGenerationInput{
			RewrittenQuery: query,
			Task:           parse,
			Dialect:        g.dialect,
			Whitelist:      g.kb.Fields(),
			AliasPairs:     g.kb.AliasPairs(),
			SchemaHints:    g.kb.SchemaHints(),
			HiddenContext:  hc,
		}),
		Model:    model,
		JSONMode: true,
	})
	if err != nil {
		return g.fail("model call failed: " + logging.SanitizeError(err))
	}

	raw, err := llm.ParseJSONResponse[generationResponse](resp.Content)
	if err != nil {
		return g.fail(err.Error())
	}

	sqlText, err := sqlutil.Normalize(jsonutil.FlexibleString(raw.SQL))
	if err != nil {
		return g.fail(err.Error())
	}
	if err := sqlutil.RequireReadOnly(sqlText); err != nil {
		return g.fail(err.Error())
	}
	if err := sqlutil.RequireCTE(sqlText); err != nil {
		return g.fail(err.Error())
	}

	fields := sqlutil.ExtractFieldRefs(sqlText)
	if len(fields) == 0 {
		return g.fail("no table.field references found in query")
	}
	if unknown := sqlutil.FindUnknownFields(fields, sqlutil.ExtractCTENames(sqlText), g.kb.HasField); len(unknown) > 0 {
		return g.fail(fmt.Sprintf("query references fields outside the whitelist: %s", strings.Join(unknown, ", ")))
	}

	mappings := g.normalizeMappings(raw.EntityMappings)
	for _, entity := range parse.Entities {
		mapping, ok := findMapping(mappings, entity)
		if !ok {
			return g.fail(fmt.Sprintf("entity mapping missing: type=%s, value=%s", entity.Type, entity.Value))
		}
		if !sqlutil.ContainsField(fields, mapping.Field) {
			return g.fail(fmt.Sprintf("mapped field %s of entity %s=%s does not appear in the query", mapping.Field, entity.Type, entity.Value))
		}
	}

	var subs []models.FieldSubstitution
	if hc != nil {
		if sqlutil.Fingerprint(sqlText) == sqlutil.Fingerprint(hc.FailedSQL) {
			return g.fail(errRepeatedQuery)
		}
		subs = appliedSubstitutions(hc.FieldCandidates, fields)
	}

	return models.NewGenerationSuccess(sqlText, mappings, fields, subs)
}

func (g *QueryGenerator) fail(msg string) *models.SQLGenerationResult {
	g.logger.Debug("Query generation failed", zap.String("error", msg))
	return models.NewGenerationFailure(msg)
}

// normalizeMappings keeps complete mappings onto whitelisted fields.
func (g *QueryGenerator) normalizeMappings(raw json.RawMessage) []models.EntityMapping {
	mappings := []models.EntityMapping{}
	for _, item := range rawArray(raw) {
		obj := rawObject(item)
		if obj == nil {
			continue
		}
		m := models.EntityMapping{
			Type:   jsonutil.FlexibleString(obj["type"]),
			Value:  jsonutil.FlexibleString(obj["value"]),
			Field:  jsonutil.FlexibleString(obj["field"]),
			Reason: jsonutil.FlexibleString(obj["reason"]),
		}
		if m.Type == "" || m.Value == "" || m.Field == "" {
			continue
		}
		canonical, ok := g.kb.CanonicalField(m.Field)
		if !ok {
			continue
		}
		m.Field = canonical
		mappings = append(mappings, m)
	}
	return mappings
}

func findMapping(mappings []models.EntityMapping, entity models.Entity) (models.EntityMapping, bool) {
	for _, m := range mappings {
		if m.Type == entity.Type && m.Value == entity.Value {
			return m, true
		}
	}
	return models.EntityMapping{}, false
}

// appliedSubstitutions pairs each missing field that no longer appears in
// the query with the first of its candidates that does.
func appliedSubstitutions(candidates []models.FieldCandidates, fields []string) []models.FieldSubstitution {
	var subs []models.FieldSubstitution
	for _, fc := range candidates {
		if sqlutil.ContainsField(fields, fc.Missing) {
			continue
		}
		for _, c := range fc.Candidates {
			if sqlutil.ContainsField(fields, c) {
				subs = append(subs, models.FieldSubstitution{From: fc.Missing, To: c})
				break
			}
		}
	}
	return subs
}
