package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-chat-engine/pkg/database"
	"github.com/ekaya-inc/ekaya-chat-engine/pkg/models"
)

// WorkflowLogRepository stores per-step audit records.
type WorkflowLogRepository interface {
	Insert(ctx context.Context, record *models.StepAuditRecord) error
	ListBySession(ctx context.Context, sessionID string) ([]*models.StepAuditRecord, error)
}

type workflowLogRepository struct {
	db *database.DB
}

// NewWorkflowLogRepository creates a new WorkflowLogRepository.
func NewWorkflowLogRepository(db *database.DB) WorkflowLogRepository {
	return &workflowLogRepository{db: db}
}

var _ WorkflowLogRepository = (*workflowLogRepository)(nil)

func (r *workflowLogRepository) Insert(ctx context.Context, record *models.StepAuditRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	input := []byte(record.Input)
	if len(input) == 0 {
		input = []byte("{}")
	}
	// NULL rather than JSON null when the step produced nothing
	var output []byte
	if len(record.Output) > 0 && string(record.Output) != "null" {
		output = []byte(record.Output)
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO workflow_logs (
			id, session_id, caller_id, step_name, status, attempt,
			error_message, input, output, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		record.ID, record.SessionID, record.CallerID, record.StepName, record.Status, record.Attempt,
		record.ErrorMessage, input, output, record.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert workflow log: %w", err)
	}
	return nil
}

func (r *workflowLogRepository) ListBySession(ctx context.Context, sessionID string) ([]*models.StepAuditRecord, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, session_id, caller_id, step_name, status, attempt,
		       error_message, input, output, created_at
		FROM workflow_logs
		WHERE session_id = $1
		ORDER BY created_at ASC, id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow logs: %w", err)
	}
	defer rows.Close()

	records := make([]*models.StepAuditRecord, 0)
	for rows.Next() {
		var rec models.StepAuditRecord
		var input, output []byte
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.CallerID, &rec.StepName, &rec.Status,
			&rec.Attempt, &rec.ErrorMessage, &input, &output, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan workflow log: %w", err)
		}
		rec.Input = input
		rec.Output = output
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflow logs: %w", err)
	}
	return records, nil
}
