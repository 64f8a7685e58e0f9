package chatflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-chat-engine/pkg/audit"
	"github.com/ekaya-inc/ekaya-chat-engine/pkg/logging"
	"github.com/ekaya-inc/ekaya-chat-engine/pkg/models"
)

// Steps wires the executors the Router drives.
type Steps struct {
	IntentRecognition StepExecutor
	TaskParse         StepExecutor
	SQLGeneration     StepExecutor
	SQLValidate       StepExecutor
	HiddenContext     StepExecutor
	ResultReturn      *ResultReturner
}

// Router drives one turn through the workflow. A Router holds no per-turn
// data and may run many turns concurrently, each with its own state.
type Router struct {
	steps    map[models.ChatStepName]StepExecutor
	returner *ResultReturner
	auditor  audit.StepAuditor
	logger   *zap.Logger
	now      func() time.Time
}

// NewRouter creates a Router. A nil auditor discards audit records and a nil
// ResultReturn finalizes without a model summary.
func NewRouter(steps Steps, auditor audit.StepAuditor, logger *zap.Logger) *Router {
	if auditor == nil {
		auditor = audit.NopAuditor{}
	}
	if steps.ResultReturn == nil {
		steps.ResultReturn = NewResultReturner(nil, 0, logger)
	}
	return &Router{
		steps: map[models.ChatStepName]StepExecutor{
			models.ChatStepIntentRecognition: steps.IntentRecognition,
			models.ChatStepTaskParse:         steps.TaskParse,
			models.ChatStepSQLGeneration:     steps.SQLGeneration,
			models.ChatStepSQLValidate:       steps.SQLValidate,
			models.ChatStepHiddenContext:     steps.HiddenContext,
		},
		returner: steps.ResultReturn,
		auditor:  auditor,
		logger:   logger.Named("chatflow.router"),
		now:      time.Now,
	}
}

// Run executes one turn and always returns a result. state is owned by this
// call until it returns. A cancelled ctx fails the remaining steps and routes
// to result_return.
func (r *Router) Run(ctx context.Context, state *models.ConversationState, observer Observer) *models.ResultReturnResult {
	if observer == nil {
		observer = NopObserver{}
	}
	state.RetryCount = 0

	attempts := make(map[models.ChatStepName]int)
	step := models.ChatStepIntentRecognition

	for step != models.ChatStepResultReturn {
		exec, ok := r.steps[step]
		if !ok || exec == nil {
			r.logger.Error("No executor wired for step", zap.String("step", string(step)))
			break
		}
		attempts[step]++

		output, rec := r.runStep(ctx, exec, state, attempts[step], observer)
		next := nextStep(step, state, rec.Status == models.StepStatusSuccess)

		if step == models.ChatStepHiddenContext && next == models.ChatStepSQLGeneration {
			state.RetryCount++
			state.HiddenContext.RetryCount = state.RetryCount
			// The retry pass must not report the first pass's query.
			state.Generation = nil
			state.Validation = nil
		}
		r.record(ctx, rec, output)

		r.logger.Debug("Routing",
			zap.String("session_id", state.SessionID),
			zap.String("from", string(step)),
			zap.String("to", string(next)),
			zap.Int("retry_count", state.RetryCount))
		step = next
	}

	output, rec := r.runStep(ctx, r.returner, state, 1, observer)
	r.record(ctx, rec, output)
	if result, ok := output.(*models.ResultReturnResult); ok && result != nil {
		return result
	}
	return FinalizeResult(state)
}

// runStep wraps one invocation with observer events and builds its audit
// record. The record is written by record once routing has stamped state.
func (r *Router) runStep(
	ctx context.Context,
	exec StepExecutor,
	state *models.ConversationState,
	attempt int,
	observer Observer,
) (any, *models.StepAuditRecord) {
	name := exec.Name()
	r.notify(name, func() { observer.OnStart(ctx, name) })

	input := marshalPayload(exec.Input(state))

	var output any
	var err error
	if ctxErr := ctx.Err(); ctxErr != nil && name != models.ChatStepResultReturn {
		err = fmt.Errorf("turn cancelled before %s: %w", name, ctxErr)
	} else {
		output, err = exec.Execute(ctx, state)
	}

	rec := &models.StepAuditRecord{
		SessionID: state.SessionID,
		CallerID:  state.CallerID,
		StepName:  name,
		Status:    models.StepStatusSuccess,
		Attempt:   attempt,
		Timestamp: r.now(),
		Input:     input,
	}

	if err != nil {
		msg := logging.SanitizeError(err)
		rec.Status = models.StepStatusFailed
		rec.ErrorMessage = &msg
		r.notify(name, func() { observer.OnError(ctx, name, msg) })
		return nil, rec
	}
	r.notify(name, func() { observer.OnEnd(ctx, name) })
	return output, rec
}

// record serializes a successful step's output and hands the record to the
// auditor. Auditors log their own failures; a lost record never fails the turn.
func (r *Router) record(ctx context.Context, rec *models.StepAuditRecord, output any) {
	if rec.Status == models.StepStatusSuccess {
		rec.Output = marshalPayload(output)
	}
	_ = r.auditor.Record(ctx, rec)
}

// notify calls an observer hook, recovering any panic.
func (r *Router) notify(step models.ChatStepName, hook func()) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Observer panicked",
				zap.String("step", string(step)),
				zap.Any("panic", p))
		}
	}()
	hook()
}

func marshalPayload(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(fmt.Sprintf(`{"marshal_error":%q}`, err.Error()))
	}
	return data
}
