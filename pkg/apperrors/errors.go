package apperrors

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrInvalidModelOutput  = errors.New("invalid model output")
	ErrUnsupportedDialect  = errors.New("unsupported datasource type")
	ErrLLMNotConfigured    = errors.New("llm is not configured")
	ErrKnowledgeBaseLoad   = errors.New("knowledge base could not be loaded")
	ErrReadOnlyQueryNeeded = errors.New("only read-only queries are allowed")
)
