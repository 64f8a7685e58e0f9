package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-chat-engine/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-chat-engine/pkg/config"
	"github.com/ekaya-inc/ekaya-chat-engine/pkg/models"
	"github.com/ekaya-inc/ekaya-chat-engine/pkg/services"
	"github.com/ekaya-inc/ekaya-chat-engine/pkg/services/chatflow"
)

// CallerIDHeader identifies the staff member sending a message.
const CallerIDHeader = "X-Caller-ID"

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
	maxRequestBodyBytes = 64 << 10
)

// SSE event names.
const (
	EventWorkflowStart = "workflow_start"
	EventStepStart     = "step_start"
	EventStepEnd       = "step_end"
	EventStepError     = "step_error"
	EventResult        = "result"
	EventWorkflowEnd   = "workflow_end"
	EventError         = "error"
)

// ============================================================================
// Request/Response Types
// ============================================================================

// ChatRequest for POST /api/chat and POST /api/chat/stream
type ChatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	ModelName string `json:"model_name"`
}

// SessionMessageResponse is one stored message of a session.
type SessionMessageResponse struct {
	ID          string  `json:"id"`
	SessionID   string  `json:"session_id"`
	CallerID    string  `json:"caller_id"`
	Role        string  `json:"role"`
	Content     string  `json:"content"`
	ModelName   string  `json:"model_name,omitempty"`
	FinalStatus *string `json:"final_status,omitempty"`
	ReasonCode  *string `json:"reason_code,omitempty"`
	CreatedAt   string  `json:"created_at"`
}

// SessionHistoryResponse for GET /api/chat/sessions/{session_id}/messages
type SessionHistoryResponse struct {
	SessionID string                   `json:"session_id"`
	Messages  []SessionMessageResponse `json:"messages"`
	Total     int                      `json:"total"`
}

// StepEvent is the payload of step_start, step_end and step_error events.
type StepEvent struct {
	Step    string `json:"step"`
	Message string `json:"message"`
}

// WorkflowEvent is the payload of workflow_start and workflow_end events.
type WorkflowEvent struct {
	Message string `json:"message"`
}

// ============================================================================
// Handler
// ============================================================================

// ChatHandler serves chat turns as JSON or as a server-sent event stream.
type ChatHandler struct {
	chatService services.ChatService
	cfg         config.ChatConfig
	logger      *zap.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(chatService services.ChatService, cfg config.ChatConfig, logger *zap.Logger) *ChatHandler {
	if cfg.StepMessages == nil {
		cfg.StepMessages = config.DefaultStepMessages()
	}
	return &ChatHandler{
		chatService: chatService,
		cfg:         cfg,
		logger:      logger.Named("handlers.chat"),
	}
}

// RegisterRoutes registers the chat handler's routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/chat", h.Chat)
	mux.HandleFunc("POST /api/chat/stream", h.Stream)
	mux.HandleFunc("GET /api/chat/sessions/{session_id}/messages", h.History)
}

// Chat handles POST /api/chat. In stream mode a client asking for
// text/event-stream receives the stream instead of one JSON body.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	if h.cfg.StreamMode == config.StreamModeStream && strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		h.stream(w, r, req)
		return
	}

	result, err := h.chatService.HandleTurn(r.Context(), h.turnRequest(r, req), chatflow.NopObserver{})
	if err != nil {
		h.writeTurnError(w, err)
		return
	}

	response := ApiResponse{Success: true, Data: result}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Stream handles POST /api/chat/stream
func (h *ChatHandler) Stream(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}
	h.stream(w, r, req)
}

func (h *ChatHandler) stream(w http.ResponseWriter, r *http.Request, req ChatRequest) {
	sse, ok := newSSEWriter(w, h.logger)
	if !ok {
		h.logger.Error("SSE not supported")
		if err := ErrorResponse(w, http.StatusInternalServerError, "sse_unsupported", "SSE not supported"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	sse.Send(EventWorkflowStart, WorkflowEvent{Message: h.cfg.WorkflowStartMessage})

	observer := &streamObserver{sse: sse, messages: h.cfg.StepMessages}
	result, err := h.chatService.HandleTurn(r.Context(), h.turnRequest(r, req), observer)
	if err != nil {
		h.logger.Error("Chat turn failed", zap.Error(err))
		sse.Send(EventError, WorkflowEvent{Message: err.Error()})
		return
	}

	sse.Send(EventResult, result)
	sse.Send(EventWorkflowEnd, WorkflowEvent{Message: h.cfg.WorkflowEndMessage})
}

// History handles GET /api/chat/sessions/{session_id}/messages
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")

	limit := defaultHistoryLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = min(l, maxHistoryLimit)
		}
	}

	messages, err := h.chatService.History(r.Context(), sessionID, limit)
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidRequest) {
			if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", err.Error()); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		h.logger.Error("Failed to get chat history",
			zap.String("session_id", sessionID),
			zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to get chat history"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	data := SessionHistoryResponse{
		SessionID: sessionID,
		Messages:  make([]SessionMessageResponse, len(messages)),
		Total:     len(messages),
	}
	for i, m := range messages {
		data.Messages[i] = toSessionMessageResponse(m)
	}

	response := ApiResponse{Success: true, Data: data}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// ============================================================================
// Helper Methods
// ============================================================================

func (h *ChatHandler) decodeRequest(w http.ResponseWriter, r *http.Request) (ChatRequest, bool) {
	var req ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return req, false
	}

	if strings.TrimSpace(req.Message) == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "missing_message", "Message is required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return req, false
	}
	return req, true
}

func (h *ChatHandler) turnRequest(r *http.Request, req ChatRequest) services.TurnRequest {
	return services.TurnRequest{
		SessionID: req.SessionID,
		CallerID:  r.Header.Get(CallerIDHeader),
		Message:   req.Message,
		ModelName: req.ModelName,
	}
}

func (h *ChatHandler) writeTurnError(w http.ResponseWriter, err error) {
	status, code, message := http.StatusInternalServerError, "internal_error", "Failed to process message"
	if errors.Is(err, apperrors.ErrInvalidRequest) {
		status, code, message = http.StatusBadRequest, "invalid_request", err.Error()
	} else {
		h.logger.Error("Chat turn failed", zap.Error(err))
	}
	if err := ErrorResponse(w, status, code, message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}

func toSessionMessageResponse(m *models.ChatMessage) SessionMessageResponse {
	resp := SessionMessageResponse{
		ID:        m.ID.String(),
		SessionID: m.SessionID,
		CallerID:  m.CallerID,
		Role:      string(m.Role),
		Content:   m.Content,
		ModelName: m.ModelName,
		CreatedAt: m.CreatedAt.Format(time.RFC3339),
	}
	if m.FinalStatus != nil {
		s := string(*m.FinalStatus)
		resp.FinalStatus = &s
	}
	if m.ReasonCode != nil {
		s := string(*m.ReasonCode)
		resp.ReasonCode = &s
	}
	return resp
}

// ============================================================================
// Server-Sent Events
// ============================================================================

// sseWriter serializes events onto one response stream.
type sseWriter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	logger  *zap.Logger
}

func newSSEWriter(w http.ResponseWriter, logger *zap.Logger) (*sseWriter, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &sseWriter{w: w, flusher: flusher, logger: logger}, true
}

// Send writes one event. Write failures are logged; the client may have gone.
func (s *sseWriter) Send(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("Failed to marshal event", zap.String("event", event), zap.Error(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		s.logger.Debug("Failed to write event", zap.String("event", event), zap.Error(err))
		return
	}
	s.flusher.Flush()
}

// streamObserver forwards step lifecycle events with their placeholder texts.
type streamObserver struct {
	sse      *sseWriter
	messages map[string]config.StepMessages
}

var _ chatflow.Observer = (*streamObserver)(nil)

func (o *streamObserver) OnStart(_ context.Context, step models.ChatStepName) {
	o.sse.Send(EventStepStart, StepEvent{Step: string(step), Message: o.messages[string(step)].Start})
}

func (o *streamObserver) OnEnd(_ context.Context, step models.ChatStepName) {
	o.sse.Send(EventStepEnd, StepEvent{Step: string(step), Message: o.messages[string(step)].End})
}

func (o *streamObserver) OnError(_ context.Context, step models.ChatStepName, message string) {
	o.sse.Send(EventStepError, StepEvent{Step: string(step), Message: message})
}
