package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-chat-engine/pkg/models"
	"github.com/ekaya-inc/ekaya-chat-engine/pkg/repositories"
)

// StepLogResponse for GET /api/chat/sessions/{session_id}/steps
type StepLogResponse struct {
	SessionID string                    `json:"session_id"`
	Steps     []*models.StepAuditRecord `json:"steps"`
	Total     int                       `json:"total"`
}

// StepLogHandler exposes the stored per-step audit trail of a session.
type StepLogHandler struct {
	repo   repositories.WorkflowLogRepository
	logger *zap.Logger
}

// NewStepLogHandler creates a new step log handler.
func NewStepLogHandler(repo repositories.WorkflowLogRepository, logger *zap.Logger) *StepLogHandler {
	return &StepLogHandler{repo: repo, logger: logger.Named("handlers.steps")}
}

// RegisterRoutes registers the step log handler's routes on the given mux.
func (h *StepLogHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/chat/sessions/{session_id}/steps", h.List)
}

// List handles GET /api/chat/sessions/{session_id}/steps
func (h *StepLogHandler) List(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")

	records, err := h.repo.ListBySession(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("Failed to list workflow logs",
			zap.String("session_id", sessionID),
			zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to list workflow logs"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	data := StepLogResponse{SessionID: sessionID, Steps: records, Total: len(records)}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: data}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
