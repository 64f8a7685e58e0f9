package services

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-chat-engine/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-chat-engine/pkg/models"
	"github.com/ekaya-inc/ekaya-chat-engine/pkg/repositories"
	"github.com/ekaya-inc/ekaya-chat-engine/pkg/services/chatflow"
)

// AnonymousCaller is the caller id used when a request carries none.
const AnonymousCaller = "anonymous"

// TurnRequest is one user message submitted to the chat engine.
type TurnRequest struct {
	SessionID string `json:"session_id"`
	CallerID  string `json:"-"`
	Message   string `json:"message"`
	ModelName string `json:"model_name"`
}

// ChatService runs chat turns and serves session history.
type ChatService interface {
	// HandleTurn runs one message through the workflow. The error return is
	// reserved for invalid requests; workflow failures are reported in the result.
	HandleTurn(ctx context.Context, req TurnRequest, observer chatflow.Observer) (*models.ResultReturnResult, error)

	// History returns the stored messages of a session, oldest first.
	History(ctx context.Context, sessionID string, limit int) ([]*models.ChatMessage, error)
}

// ChatServiceConfig tunes turn handling.
type ChatServiceConfig struct {
	Threshold    float64
	RetryBound   int
	HistoryLimit int
	DefaultModel string
	SQLModel     string
	ExportDir    string
}

type chatService struct {
	router   *chatflow.Router
	history  repositories.ChatHistoryRepository
	exporter *ResultExporter
	cfg      ChatServiceConfig
	logger   *zap.Logger
	now      func() time.Time
}

// NewChatService creates a chat service. history may be nil, in which case
// turns have no prior context and are not persisted.
func NewChatService(
	router *chatflow.Router,
	history repositories.ChatHistoryRepository,
	cfg ChatServiceConfig,
	logger *zap.Logger,
) ChatService {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 4
	}
	var exporter *ResultExporter
	if cfg.ExportDir != "" {
		exporter = NewResultExporter(cfg.ExportDir)
	}
	return &chatService{
		router:   router,
		history:  history,
		exporter: exporter,
		cfg:      cfg,
		logger:   logger.Named("chat"),
		now:      time.Now,
	}
}

var _ ChatService = (*chatService)(nil)

func (s *chatService) HandleTurn(ctx context.Context, req TurnRequest, observer chatflow.Observer) (*models.ResultReturnResult, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, fmt.Errorf("%w: message is required", apperrors.ErrInvalidRequest)
	}

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = NewSessionID()
	}
	callerID := strings.TrimSpace(req.CallerID)
	if callerID == "" {
		callerID = AnonymousCaller
	}
	model := strings.TrimSpace(req.ModelName)
	if model == "" {
		model = s.cfg.DefaultModel
	}

	state := &models.ConversationState{
		SessionID:  sessionID,
		CallerID:   callerID,
		Message:    message,
		History:    s.loadHistory(ctx, sessionID),
		Threshold:  s.cfg.Threshold,
		ModelName:  model,
		SQLModel:   s.cfg.SQLModel,
		RetryBound: s.cfg.RetryBound,
	}

	started := s.now()
	result := s.router.Run(ctx, state, chatflow.MultiObserver{chatflow.NewLoggingObserver(s.logger), observer})

	if ref := s.export(sessionID, result); ref != "" {
		withRef := *result
		withRef.DownloadRef = &ref
		result = &withRef
	}

	s.persist(ctx, state, result)

	reason := ""
	if result.ReasonCode != nil {
		reason = string(*result.ReasonCode)
	}
	s.logger.Info("Chat turn completed",
		zap.String("session_id", sessionID),
		zap.String("caller_id", callerID),
		zap.String("final_status", string(result.FinalStatus)),
		zap.String("reason_code", reason),
		zap.Int("retry_count", result.HiddenContextRetryCount),
		zap.Duration("elapsed", s.now().Sub(started)))

	return result, nil
}

func (s *chatService) History(ctx context.Context, sessionID string, limit int) ([]*models.ChatMessage, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("%w: session id is required", apperrors.ErrInvalidRequest)
	}
	if s.history == nil {
		return []*models.ChatMessage{}, nil
	}
	messages, err := s.history.ListBySession(ctx, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list chat history: %w", err)
	}
	return messages, nil
}

// loadHistory returns the recent user messages of a session. A lookup
// failure degrades to no history.
func (s *chatService) loadHistory(ctx context.Context, sessionID string) []string {
	if s.history == nil {
		return []string{}
	}
	history, err := s.history.RecentUserMessages(ctx, sessionID, s.cfg.HistoryLimit)
	if err != nil {
		s.logger.Warn("Failed to load chat history, continuing without it",
			zap.String("session_id", sessionID),
			zap.Error(err))
		return []string{}
	}
	return history
}

// export writes the preview rows of a successful turn and returns the
// relative path, or "" when nothing was written.
func (s *chatService) export(sessionID string, result *models.ResultReturnResult) string {
	v := result.SQLValidateResult
	if s.exporter == nil || result.FinalStatus != models.FinalStatusSuccess || v == nil || !v.IsValid || v.Rows == 0 {
		return ""
	}
	ref, err := s.exporter.Export(sessionID, v, s.now())
	if err != nil {
		s.logger.Warn("Failed to export query result",
			zap.String("session_id", sessionID),
			zap.Error(err))
		return ""
	}
	return ref
}

// persist stores the turn even when the request context is already done.
func (s *chatService) persist(ctx context.Context, state *models.ConversationState, result *models.ResultReturnResult) {
	if s.history == nil {
		return
	}

	now := s.now()
	status := result.FinalStatus
	user := &models.ChatMessage{
		ID:        uuid.New(),
		SessionID: state.SessionID,
		CallerID:  state.CallerID,
		Role:      models.ChatRoleUser,
		Content:   state.Message,
		ModelName: state.ModelName,
		CreatedAt: now,
	}
	assistant := &models.ChatMessage{
		ID:          uuid.New(),
		SessionID:   state.SessionID,
		CallerID:    state.CallerID,
		Role:        models.ChatRoleAssistant,
		Content:     result.Reply,
		ModelName:   state.ModelName,
		FinalStatus: &status,
		ReasonCode:  result.ReasonCode,
		CreatedAt:   now.Add(time.Microsecond),
	}

	if err := s.history.InsertTurn(context.WithoutCancel(ctx), user, assistant); err != nil {
		s.logger.Error("Failed to store chat turn",
			zap.String("session_id", state.SessionID),
			zap.Error(err))
	}
}

// NewSessionID returns 16 random hex characters.
func NewSessionID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])[:16]
}
