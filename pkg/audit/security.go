// Package audit records what each workflow step consumed and produced, and
// logs security-relevant events in structured JSON for SIEM consumption.
package audit

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// SecurityEventType categorizes security-relevant events for filtering and alerting.
type SecurityEventType string

const (
	// EventSQLInjectionAttempt is logged when libinjection flags a filter value.
	EventSQLInjectionAttempt SecurityEventType = "sql_injection_attempt"
	// EventQueryRejected is logged when a generated query fails the read-only guard.
	EventQueryRejected SecurityEventType = "query_rejected"
	// EventQueryExecution is logged for every executed query (high volume).
	EventQueryExecution SecurityEventType = "query_execution"
)

// SecurityEvent represents an auditable security event.
type SecurityEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType SecurityEventType `json:"event_type"`
	SessionID string            `json:"session_id"`
	CallerID  string            `json:"caller_id,omitempty"`
	Details   any               `json:"details"`
	Severity  string            `json:"severity"` // info, warning, critical
}

// SQLInjectionDetails contains specifics of a detected SQL injection attempt.
type SQLInjectionDetails struct {
	Field       string `json:"field"`
	Value       string `json:"value"`
	Fingerprint string `json:"fingerprint"` // libinjection fingerprint for pattern analysis
}

// SecurityAuditor logs security events for SIEM consumption.
type SecurityAuditor struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewSecurityAuditor creates a security auditor under the "security_audit" logger namespace.
func NewSecurityAuditor(logger *zap.Logger) *SecurityAuditor {
	return &SecurityAuditor{
		logger: logger.Named("security_audit"),
		now:    time.Now,
	}
}

func (a *SecurityAuditor) event(eventType SecurityEventType, sessionID, callerID, severity string, details any) string {
	event := SecurityEvent{
		Timestamp: a.now().UTC(),
		EventType: eventType,
		SessionID: sessionID,
		CallerID:  callerID,
		Details:   details,
		Severity:  severity,
	}
	// Marshaling known types does not fail
	eventJSON, _ := json.Marshal(event)
	return string(eventJSON)
}

// LogInjectionAttempt records a filter value dropped by the injection screen.
// Logged at ERROR level with "critical" severity for immediate alerting.
func (a *SecurityAuditor) LogInjectionAttempt(sessionID, callerID string, details SQLInjectionDetails) {
	a.logger.Error("SQL injection attempt detected",
		zap.String("event_json", a.event(EventSQLInjectionAttempt, sessionID, callerID, "critical", details)),
		zap.String("session_id", sessionID),
		zap.String("caller_id", callerID),
		zap.String("field", details.Field),
		zap.String("fingerprint", details.Fingerprint),
		zap.String("severity", "critical"),
	)
}

// LogQueryRejected records a generated query refused before execution.
// Logged at WARN level: this is usually model error, not an attack.
func (a *SecurityAuditor) LogQueryRejected(sessionID, callerID, reason, query string) {
	details := map[string]string{"reason": reason, "query": query}
	a.logger.Warn("Generated query rejected",
		zap.String("event_json", a.event(EventQueryRejected, sessionID, callerID, "warning", details)),
		zap.String("session_id", sessionID),
		zap.String("caller_id", callerID),
		zap.String("reason", reason),
		zap.String("severity", "warning"),
	)
}

// LogQueryExecution records an executed query at INFO level.
func (a *SecurityAuditor) LogQueryExecution(sessionID, callerID, query string, rows int) {
	details := map[string]any{"query": query, "rows": rows}
	a.logger.Info("Query executed",
		zap.String("event_json", a.event(EventQueryExecution, sessionID, callerID, "info", details)),
		zap.String("session_id", sessionID),
		zap.String("caller_id", callerID),
		zap.Int("rows", rows),
		zap.String("severity", "info"),
	)
}
