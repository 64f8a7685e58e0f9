package chatflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-chat-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-chat-engine/pkg/cache"
	"github.com/ekaya-inc/ekaya-chat-engine/pkg/knowledge"
	"github.com/ekaya-inc/ekaya-chat-engine/pkg/logging"
	"github.com/ekaya-inc/ekaya-chat-engine/pkg/models"
	sqlutil "github.com/ekaya-inc/ekaya-chat-engine/pkg/sql"
)

// Synthesized errors for queries that ran but returned nothing useful.
const (
	errEmptyResult = "query returned no rows"
	errZeroMetric  = "query metrics are all zero"
)

// ResolverConfig bounds the work of one diagnosis.
type ResolverConfig struct {
	ProbeLimit     int           // Distinct values sampled per field
	MaxProbeFields int           // Fields probed per diagnosis
	CandidateLimit int           // Replacement candidates per missing identifier
	ProbeTimeout   time.Duration // Per probe query
}

// DefaultResolverConfig returns the standard bounds.
func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{
		ProbeLimit:     10,
		MaxProbeFields: 3,
		CandidateLimit: 5,
		ProbeTimeout:   15 * time.Second,
	}
}

// FailureResolver diagnoses a failed or unusable validation so the next
// generation attempt can correct it.
type FailureResolver struct {
	baseStep
	executor datasource.QueryExecutor
	kb       *knowledge.Base
	probes   cache.ProbeCache
	cfg      ResolverConfig
}

var _ StepExecutor = (*FailureResolver)(nil)

// NewFailureResolver creates the hidden_context step. A nil cache disables probe caching.
func NewFailureResolver(executor datasource.QueryExecutor, kb *knowledge.Base, probes cache.ProbeCache, cfg ResolverConfig, logger *zap.Logger) *FailureResolver {
	defaults := DefaultResolverConfig()
	if cfg.ProbeLimit <= 0 {
		cfg.ProbeLimit = defaults.ProbeLimit
	}
	if cfg.MaxProbeFields <= 0 {
		cfg.MaxProbeFields = defaults.MaxProbeFields
	}
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = defaults.CandidateLimit
	}
	if probes == nil {
		probes = cache.NopProbeCache{}
	}
	return &FailureResolver{
		baseStep: newBaseStep(models.ChatStepHiddenContext, logger),
		executor: executor,
		kb:       kb,
		probes:   probes,
		cfg:      cfg,
	}
}

type resolverInput struct {
	RewrittenQuery string                      `json:"rewritten_query"`
	ParseResult    *models.ParseResult         `json:"parse_result"`
	SQLResult      *models.SQLGenerationResult `json:"sql_result"`
	Validation     *models.SQLValidateResult   `json:"sql_validate_result"`
	RetryCount     int                         `json:"retry_count"`
}

func (f *FailureResolver) Input(state *models.ConversationState) any {
	return resolverInput{
		RewrittenQuery: state.RewrittenQuery(),
		ParseResult:    state.Parse,
		SQLResult:      state.Generation,
		Validation:     state.Validation,
		RetryCount:     state.RetryCount,
	}
}

func (f *FailureResolver) Execute(ctx context.Context, state *models.ConversationState) (any, error) {
	result, err := f.Resolve(ctx, state)
	if err != nil {
		return nil, err
	}
	state.HiddenContext = result
	return result, nil
}

// Resolve classifies the failure, ranks replacement candidates, probes
// flagged fields and assembles hints. retry_count is left for the Router.
func (f *FailureResolver) Resolve(ctx context.Context, state *models.ConversationState) (*models.HiddenContextResult, error) {
	v := state.Validation
	if v == nil {
		return nil, errors.New("no validation result to diagnose")
	}
	if !v.NeedsDiagnosis() {
		return nil, errors.New("validation succeeded, nothing to diagnose")
	}

	result := &models.HiddenContextResult{
		FailedSQL:       failedSQL(state),
		FieldCandidates: []models.FieldCandidates{},
		ProbeSamples:    []models.ProbeSample{},
		Hints:           []string{},
		KBSummary:       f.kb.Summary(),
	}

	var probeFields []string
	switch {
	case !v.IsValid:
		if v.Error != nil {
			result.Error = *v.Error
		}
		class := classifyError(result.Error)
		result.ErrorType = class.errorType
		if class.errorType.NeedsCandidates() {
			result.FieldCandidates = f.candidates(class, result.FailedSQL)
			probeFields = topCandidateFields(result.FieldCandidates)
		}
	case v.EmptyResult:
		result.ErrorType = models.QueryErrorExecution
		result.Error = errEmptyResult
		probeFields = queriedFields(state)
	default:
		result.ErrorType = models.QueryErrorExecution
		result.Error = errZeroMetric
		probeFields = queriedFields(state)
	}

	for _, field := range limitFields(probeFields, f.cfg.MaxProbeFields) {
		result.ProbeSamples = append(result.ProbeSamples, f.probe(ctx, field))
	}

	result.Hints = buildHints(result, v)
	result.RewrittenQuery = foldDiagnosis(state.RewrittenQuery(), result)

	f.logger.Debug("Diagnosed failed query",
		zap.String("session_id", state.SessionID),
		zap.String("error_type", string(result.ErrorType)),
		zap.Int("candidates", len(result.FieldCandidates)),
		zap.Int("probes", len(result.ProbeSamples)))
	return result, nil
}

func failedSQL(state *models.ConversationState) string {
	if state.Validation != nil && state.Validation.ExecutedSQL != "" {
		return state.Validation.ExecutedSQL
	}
	if state.Generation != nil {
		return state.Generation.SQL
	}
	return ""
}

// candidates ranks knowledge base names for each offending identifier.
func (f *FailureResolver) candidates(class failureClass, failedQuery string) []models.FieldCandidates {
	out := []models.FieldCandidates{}
	seen := make(map[string]struct{})
	for _, ident := range class.identifiers {
		var ranked []knowledge.Candidate
		missing := ident
		if class.errorType == models.QueryErrorUnknownColumn {
			missing = qualifyColumn(ident, failedQuery, f.kb)
			ranked = f.kb.RankFields(missing, f.cfg.CandidateLimit)
		} else {
			missing = lastSegment(ident)
			ranked = f.kb.RankTables(missing, f.cfg.CandidateLimit)
		}

		key := strings.ToLower(missing)
		if _, dup := seen[key]; dup || len(ranked) == 0 {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, models.FieldCandidates{Missing: missing, Candidates: knowledge.CandidateNames(ranked)})
	}
	return out
}

// qualifyColumn turns a bare column from an error message into the
// table.field reference of the failed query that carries it, if any.
func qualifyColumn(ident, failedQuery string, kb *knowledge.Base) string {
	if strings.Contains(ident, ".") {
		return ident
	}
	for _, ref := range sqlutil.ExtractFieldRefs(failedQuery) {
		_, column, _ := strings.Cut(ref, ".")
		if strings.EqualFold(column, ident) && !kb.HasField(ref) {
			return ref
		}
	}
	return ident
}

func topCandidateFields(candidates []models.FieldCandidates) []string {
	var fields []string
	for _, fc := range candidates {
		if len(fc.Candidates) > 0 && strings.Contains(fc.Candidates[0], ".") {
			fields = append(fields, fc.Candidates[0])
		}
	}
	return fields
}

// queriedFields returns the filter fields and entity-mapped fields of the turn.
func queriedFields(state *models.ConversationState) []string {
	var fields []string
	if state.Parse != nil {
		for _, flt := range state.Parse.Filters {
			fields = append(fields, flt.Field)
		}
	}
	if state.Generation.IsSuccess() {
		for _, m := range state.Generation.EntityMappings {
			fields = append(fields, m.Field)
		}
	}
	return fields
}

// limitFields de-duplicates case-insensitively and keeps at most n fields.
func limitFields(fields []string, n int) []string {
	out := make([]string, 0, n)
	seen := make(map[string]struct{})
	for _, field := range fields {
		key := strings.ToLower(field)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if len(out) == n {
			break
		}
		out = append(out, field)
	}
	return out
}

// probe samples the distinct non-null values of a whitelisted field.
// Failures are recorded on the sample.
func (f *FailureResolver) probe(ctx context.Context, field string) models.ProbeSample {
	sample := models.ProbeSample{Field: field, Values: []string{}}

	canonical, ok := f.kb.CanonicalField(field)
	if !ok {
		msg := "field is not in the knowledge base"
		sample.Error = &msg
		return sample
	}
	sample.Field = canonical
	table, column, _ := strings.Cut(canonical, ".")

	qCol := f.executor.QuoteIdentifier(column)
	sample.ProbeSQL = fmt.Sprintf("SELECT DISTINCT %s FROM %s WHERE %s IS NOT NULL",
		qCol, f.executor.QuoteIdentifier(table), qCol)

	key := cache.ProbeKey(f.executor.Dialect(), table, column)
	if values, hit := f.probes.Get(ctx, key); hit {
		sample.Values = append(sample.Values, values...)
		return sample
	}

	probeCtx := ctx
	if f.cfg.ProbeTimeout > 0 {
		var cancel context.CancelFunc
		probeCtx, cancel = context.WithTimeout(ctx, f.cfg.ProbeTimeout)
		defer cancel()
	}

	res, err := f.executor.Query(probeCtx, sample.ProbeSQL, f.cfg.ProbeLimit)
	if err != nil {
		msg := logging.SanitizeError(err)
		sample.Error = &msg
		f.logger.Debug("Probe failed", zap.String("field", canonical), zap.String("error", msg))
		return sample
	}

	if len(res.Columns) > 0 {
		name := res.Columns[0].Name
		for _, row := range res.Rows {
			if val, ok := row[name]; ok && val != nil {
				sample.Values = append(sample.Values, fmt.Sprint(val))
			}
		}
	}
	f.probes.Set(ctx, key, sample.Values)
	return sample
}

func buildHints(result *models.HiddenContextResult, v *models.SQLValidateResult) []string {
	hints := []string{}
	for _, fc := range result.FieldCandidates {
		hints = append(hints, fmt.Sprintf("%s does not exist; replace it with one of: %s",
			fc.Missing, strings.Join(fc.Candidates, ", ")))
	}

	switch result.ErrorType {
	case models.QueryErrorUnknownColumn, models.QueryErrorUnknownTable, models.QueryErrorObjectNotFound:
		if len(result.FieldCandidates) == 0 {
			hints = append(hints, "The referenced name matches nothing in the knowledge base; use only whitelisted table.field names")
		}
	case models.QueryErrorSyntax:
		hints = append(hints, "Fix the SQL syntax and keep the WITH ... SELECT form")
	default:
		switch {
		case v.IsValid && v.EmptyResult:
			hints = append(hints, "The query ran but matched no rows; filter values may not match the stored values")
		case v.IsValid && v.ZeroMetricResult:
			hints = append(hints, "The query ran but every metric is zero or null; check join keys and filter values")
		default:
			hints = append(hints, "The previous query could not be executed; simplify it and use only whitelisted fields")
		}
	}

	for _, p := range result.ProbeSamples {
		if p.Error == nil && len(p.Values) > 0 {
			hints = append(hints, fmt.Sprintf("Stored values of %s include: %s", p.Field, strings.Join(p.Values, ", ")))
		}
	}
	return hints
}

// foldDiagnosis appends field replacements and sampled values to the question.
func foldDiagnosis(query string, result *models.HiddenContextResult) string {
	var notes []string
	for _, fc := range result.FieldCandidates {
		notes = append(notes, fmt.Sprintf("use %s instead of %s", fc.Candidates[0], fc.Missing))
	}
	for _, p := range result.ProbeSamples {
		if p.Error == nil && len(p.Values) > 0 {
			notes = append(notes, fmt.Sprintf("%s takes values such as %s", p.Field, strings.Join(p.Values, ", ")))
		}
	}
	if len(notes) == 0 {
		return query
	}
	return fmt.Sprintf("%s (%s)", query, strings.Join(notes, "; "))
}
