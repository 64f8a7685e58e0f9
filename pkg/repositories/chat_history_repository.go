package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-chat-engine/pkg/database"
	"github.com/ekaya-inc/ekaya-chat-engine/pkg/models"
)

// ChatHistoryRepository provides data access for chat session messages.
type ChatHistoryRepository interface {
	// RecentUserMessages returns up to limit user messages of a session, oldest first.
	RecentUserMessages(ctx context.Context, sessionID string, limit int) ([]string, error)
	// InsertTurn stores the user message and the assistant reply of one turn atomically.
	InsertTurn(ctx context.Context, user, assistant *models.ChatMessage) error
	// ListBySession returns every message of a session in chronological order.
	ListBySession(ctx context.Context, sessionID string, limit int) ([]*models.ChatMessage, error)
}

type chatHistoryRepository struct {
	db *database.DB
}

// NewChatHistoryRepository creates a new ChatHistoryRepository.
func NewChatHistoryRepository(db *database.DB) ChatHistoryRepository {
	return &chatHistoryRepository{db: db}
}

var _ ChatHistoryRepository = (*chatHistoryRepository)(nil)

func (r *chatHistoryRepository) RecentUserMessages(ctx context.Context, sessionID string, limit int) ([]string, error) {
	if limit <= 0 {
		return []string{}, nil
	}

	query := `
		SELECT content FROM (
			SELECT content, created_at, id
			FROM chat_history
			WHERE session_id = $1 AND role = 'user'
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC, id ASC`

	rows, err := r.db.Query(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent user messages: %w", err)
	}
	defer rows.Close()

	messages, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan recent user messages: %w", err)
	}
	return messages, nil
}

func (r *chatHistoryRepository) InsertTurn(ctx context.Context, user, assistant *models.ChatMessage) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()
	for i, msg := range []*models.ChatMessage{user, assistant} {
		if msg == nil {
			continue
		}
		if msg.ID == uuid.Nil {
			msg.ID = uuid.New()
		}
		if msg.CreatedAt.IsZero() {
			// Keep the reply strictly after the question it answers.
			msg.CreatedAt = now.Add(time.Duration(i) * time.Microsecond)
		}

		var modelName *string
		if msg.ModelName != "" {
			modelName = &msg.ModelName
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO chat_history (
				id, session_id, caller_id, role, content, model_name,
				final_status, reason_code, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			msg.ID, msg.SessionID, msg.CallerID, msg.Role, msg.Content, modelName,
			msg.FinalStatus, msg.ReasonCode, msg.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert %s message: %w", msg.Role, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit chat turn: %w", err)
	}
	return nil
}

func (r *chatHistoryRepository) ListBySession(ctx context.Context, sessionID string, limit int) ([]*models.ChatMessage, error) {
	if limit <= 0 {
		limit = 200
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, session_id, caller_id, role, content, model_name,
		       final_status, reason_code, created_at
		FROM chat_history
		WHERE session_id = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat history: %w", err)
	}
	defer rows.Close()

	messages := make([]*models.ChatMessage, 0)
	for rows.Next() {
		msg, err := scanChatMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chat history: %w", err)
	}
	return messages, nil
}

func scanChatMessage(row pgx.Row) (*models.ChatMessage, error) {
	var msg models.ChatMessage
	var modelName, finalStatus, reasonCode *string

	err := row.Scan(&msg.ID, &msg.SessionID, &msg.CallerID, &msg.Role, &msg.Content,
		&modelName, &finalStatus, &reasonCode, &msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan chat message: %w", err)
	}

	if modelName != nil {
		msg.ModelName = *modelName
	}
	if finalStatus != nil {
		status := models.FinalStatus(*finalStatus)
		msg.FinalStatus = &status
	}
	if reasonCode != nil {
		code := models.ReasonCode(*reasonCode)
		msg.ReasonCode = &code
	}
	return &msg, nil
}
