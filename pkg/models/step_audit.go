package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// StepAuditRecord is written once per step invocation.
// Input and Output hold the JSON projection of what the step consumed and produced;
// Output is nil when the step produced nothing.
type StepAuditRecord struct {
	ID           uuid.UUID       `json:"id"`
	SessionID    string          `json:"session_id"`
	CallerID     string          `json:"caller_id"`
	StepName     ChatStepName    `json:"step_name"`
	Status       StepStatus      `json:"status"`
	ErrorMessage *string         `json:"error_message"`
	Attempt      int             `json:"attempt"`
	Timestamp    time.Time       `json:"timestamp"`
	Input        json.RawMessage `json:"input"`
	Output       json.RawMessage `json:"output"`
}

// ChatRole identifies the author of a stored chat message.
type ChatRole string

const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

// ChatMessage is one persisted message of a chat session.
type ChatMessage struct {
	ID        uuid.UUID `json:"id"`
	SessionID string    `json:"session_id"`
	CallerID  string    `json:"caller_id"`
	Role      ChatRole  `json:"role"`
	Content   string    `json:"content"`
	ModelName string    `json:"model_name"`

	// FinalStatus and ReasonCode are set on assistant messages only.
	FinalStatus *FinalStatus `json:"final_status,omitempty"`
	ReasonCode  *ReasonCode  `json:"reason_code,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}
