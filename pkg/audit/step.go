package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-chat-engine/pkg/logging"
	"github.com/ekaya-inc/ekaya-chat-engine/pkg/models"
)

// StepAuditor receives one record per workflow step invocation.
// Record must not fail the turn: implementations log and swallow their own errors
// and return them only so callers can count them.
type StepAuditor interface {
	Record(ctx context.Context, rec *models.StepAuditRecord) error
}

// NopAuditor discards every record.
type NopAuditor struct{}

// Record does nothing.
func (NopAuditor) Record(context.Context, *models.StepAuditRecord) error { return nil }

// LogAuditor writes a compact line per step to zap.
type LogAuditor struct {
	logger *zap.Logger
}

// NewLogAuditor creates a zap-backed step auditor.
func NewLogAuditor(logger *zap.Logger) *LogAuditor {
	return &LogAuditor{logger: logger.Named("step_audit")}
}

func (a *LogAuditor) Record(_ context.Context, rec *models.StepAuditRecord) error {
	fields := []zap.Field{
		zap.String("session_id", rec.SessionID),
		zap.String("caller_id", rec.CallerID),
		zap.String("step", string(rec.StepName)),
		zap.String("status", string(rec.Status)),
		zap.Int("attempt", rec.Attempt),
	}
	if rec.ErrorMessage != nil {
		fields = append(fields, zap.String("error", logging.SanitizeText(*rec.ErrorMessage)))
		a.logger.Warn("Step failed", fields...)
		return nil
	}
	a.logger.Debug("Step completed", fields...)
	return nil
}

// nodeIOTimestampLayout is sortable. The fraction separator is replaced
// with a dash in file names.
const nodeIOTimestampLayout = "20060102-15-04-05.000000"

// nodeIOPayload is the on-disk shape of a step record.
type nodeIOPayload struct {
	SessionID    string          `json:"session_id"`
	CallerID     string          `json:"caller_id"`
	StepName     string          `json:"step_name"`
	Status       string          `json:"status"`
	Attempt      int             `json:"attempt"`
	ErrorMessage *string         `json:"error_message"`
	Timestamp    string          `json:"timestamp"`
	Input        json.RawMessage `json:"input"`
	Output       json.RawMessage `json:"output"`
}

// FileAuditor writes each record as pretty JSON under
// {dir}/{session_id}/{step_name}/{timestamp}-{status}.json.
type FileAuditor struct {
	dir    string
	logger *zap.Logger
}

// NewFileAuditor creates a file-backed step auditor rooted at dir.
func NewFileAuditor(dir string, logger *zap.Logger) *FileAuditor {
	return &FileAuditor{dir: dir, logger: logger.Named("step_audit.file")}
}

// Path returns the file a record is written to.
func (a *FileAuditor) Path(rec *models.StepAuditRecord) string {
	stamp := strings.Replace(rec.Timestamp.UTC().Format(nodeIOTimestampLayout), ".", "-", 1)
	name := fmt.Sprintf("%s-%s.json", stamp, rec.Status)
	return filepath.Join(a.dir, safePathSegment(rec.SessionID), safePathSegment(string(rec.StepName)), name)
}

func (a *FileAuditor) Record(_ context.Context, rec *models.StepAuditRecord) error {
	payload := nodeIOPayload{
		SessionID:    rec.SessionID,
		CallerID:     rec.CallerID,
		StepName:     string(rec.StepName),
		Status:       string(rec.Status),
		Attempt:      rec.Attempt,
		ErrorMessage: rec.ErrorMessage,
		Timestamp:    rec.Timestamp.UTC().Format("2006-01-02T15:04:05"),
		Input:        rawOrNull(rec.Input),
		Output:       rawOrNull(rec.Output),
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return a.fail(rec, fmt.Errorf("marshal step record: %w", err))
	}

	path := a.Path(rec)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return a.fail(rec, fmt.Errorf("create step log directory: %w", err))
	}
	// O_EXCL turns a name collision into an error instead of an overwrite.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return a.fail(rec, fmt.Errorf("create step log: %w", err))
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return a.fail(rec, fmt.Errorf("write step log: %w", err))
	}
	if err := f.Close(); err != nil {
		return a.fail(rec, fmt.Errorf("close step log: %w", err))
	}
	return nil
}

func (a *FileAuditor) fail(rec *models.StepAuditRecord, err error) error {
	a.logger.Error("Failed to write step record",
		zap.String("session_id", rec.SessionID),
		zap.String("step", string(rec.StepName)),
		zap.Error(err))
	return err
}

// StepLogWriter persists step records. Satisfied by repositories.WorkflowLogRepository.
type StepLogWriter interface {
	Insert(ctx context.Context, rec *models.StepAuditRecord) error
}

// RepositoryAuditor stores records in the engine database.
type RepositoryAuditor struct {
	repo   StepLogWriter
	logger *zap.Logger
}

// NewRepositoryAuditor creates a database-backed step auditor.
func NewRepositoryAuditor(repo StepLogWriter, logger *zap.Logger) *RepositoryAuditor {
	return &RepositoryAuditor{repo: repo, logger: logger.Named("step_audit.db")}
}

func (a *RepositoryAuditor) Record(ctx context.Context, rec *models.StepAuditRecord) error {
	// The turn may already be cancelled; the record still belongs to it.
	if err := a.repo.Insert(context.WithoutCancel(ctx), rec); err != nil {
		a.logger.Error("Failed to store step record",
			zap.String("session_id", rec.SessionID),
			zap.String("step", string(rec.StepName)),
			zap.String("error", logging.SanitizeError(err)))
		return err
	}
	return nil
}

// MultiAuditor fans a record out to every auditor, in order.
// All auditors run even when one fails; the errors are joined.
type MultiAuditor []StepAuditor

func (m MultiAuditor) Record(ctx context.Context, rec *models.StepAuditRecord) error {
	var errs []error
	for _, a := range m {
		if err := a.Record(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MemoryAuditor keeps records in memory.
type MemoryAuditor struct {
	mu      sync.Mutex
	records []models.StepAuditRecord
}

func (a *MemoryAuditor) Record(_ context.Context, rec *models.StepAuditRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, *rec)
	return nil
}

// Records returns a copy of everything recorded so far.
func (a *MemoryAuditor) Records() []models.StepAuditRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]models.StepAuditRecord, len(a.records))
	copy(out, a.records)
	return out
}

func rawOrNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}

// safePathSegment keeps letters, digits, '-' and '_' so client-supplied ids
// cannot escape the log directory.
func safePathSegment(s string) string {
	if s == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}
