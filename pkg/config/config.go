package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// LLM providers.
const (
	LLMProviderOpenAI    = "openai"
	LLMProviderAnthropic = "anthropic"
)

// Datasource types; each has a registered executor.
const (
	DatasourcePostgres = "postgres"
	DatasourceMSSQL    = "mssql"
	DatasourceMySQL    = "mysql"
)

// Chat stream modes.
const (
	StreamModeStream = "stream"
	StreamModeSync   = "sync"
)

// Config holds all configuration for the chat engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3443"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	Version  string `yaml:"-"`                                      // Set at load time, not from config

	// Engine database (chat history, workflow logs)
	Database DatabaseConfig `yaml:"database"`

	// Target data store the generated queries run against
	Datasource DatasourceConfig `yaml:"datasource"`

	LLM       LLMConfig       `yaml:"llm"`
	Workflow  WorkflowConfig  `yaml:"workflow"`
	Knowledge KnowledgeConfig `yaml:"knowledge"`
	Audit     AuditConfig     `yaml:"audit"`
	Chat      ChatConfig      `yaml:"chat"`
	Cache     CacheConfig     `yaml:"cache"`
}

// DatabaseConfig holds PostgreSQL configuration for the engine's own tables.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"ekaya"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"ekaya_chat"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// DatasourceConfig describes the data store queried on behalf of users.
type DatasourceConfig struct {
	// Type selects the registered executor: postgres, mssql or mysql.
	Type     string `yaml:"type" env:"DATASOURCE_TYPE" env-default:"mysql"`
	Host     string `yaml:"host" env:"DATASOURCE_HOST" env-default:"127.0.0.1"`
	Port     int    `yaml:"port" env:"DATASOURCE_PORT" env-default:"3306"`
	User     string `yaml:"user" env:"DATASOURCE_USER" env-default:"root"`
	Password string `yaml:"-" env:"DATASOURCE_PASSWORD"` // Secret - not in YAML
	Database string `yaml:"database" env:"DATASOURCE_DATABASE" env-default:"edu_admin"`
	SSLMode  string `yaml:"ssl_mode" env:"DATASOURCE_SSL_MODE" env-default:"disable"`

	// PreviewLimit bounds rows returned by validation queries.
	PreviewLimit int `yaml:"preview_limit" env:"DATASOURCE_PREVIEW_LIMIT" env-default:"50"`
	// QueryTimeout bounds each validation or probe query.
	QueryTimeout time.Duration `yaml:"query_timeout" env:"DATASOURCE_QUERY_TIMEOUT" env-default:"15s"`
	PoolMaxConns int32         `yaml:"pool_max_conns" env:"DATASOURCE_POOL_MAX_CONNS" env-default:"10"`
}

// LLMConfig holds model endpoint settings.
type LLMConfig struct {
	// Provider is "openai" (any OpenAI-compatible endpoint) or "anthropic".
	Provider    string  `yaml:"provider" env:"LLM_PROVIDER" env-default:"openai"`
	BaseURL     string  `yaml:"base_url" env:"LLM_BASE_URL" env-default:"https://dashscope.aliyuncs.com/compatible-mode/v1"`
	APIKey      string  `yaml:"-" env:"LLM_API_KEY"` // Secret - not in YAML
	IntentModel string  `yaml:"intent_model" env:"LLM_MODEL_INTENT" env-default:"qwen-plus"`
	SQLModel    string  `yaml:"sql_model" env:"LLM_MODEL_SQL_GENERATION" env-default:"qwen3-coder-plus"`
	Temperature float64 `yaml:"temperature" env:"LLM_TEMPERATURE" env-default:"0.1"`
	MaxTokens   int     `yaml:"max_tokens" env:"LLM_MAX_TOKENS" env-default:"2048"`

	IntentTimeout     time.Duration `yaml:"intent_timeout" env:"LLM_INTENT_TIMEOUT" env-default:"20s"`
	TaskParseTimeout  time.Duration `yaml:"task_parse_timeout" env:"LLM_TASK_PARSE_TIMEOUT" env-default:"25s"`
	GenerationTimeout time.Duration `yaml:"generation_timeout" env:"LLM_GENERATION_TIMEOUT" env-default:"30s"`
	SummaryTimeout    time.Duration `yaml:"summary_timeout" env:"LLM_SUMMARY_TIMEOUT" env-default:"15s"`

	// MaxRetries applies to transient transport errors only.
	MaxRetries          int           `yaml:"max_retries" env:"LLM_MAX_RETRIES" env-default:"2"`
	BreakerThreshold    int           `yaml:"breaker_threshold" env:"LLM_BREAKER_THRESHOLD" env-default:"5"`
	BreakerResetAfter   time.Duration `yaml:"breaker_reset_after" env:"LLM_BREAKER_RESET_AFTER" env-default:"30s"`
	EnableResultSummary bool          `yaml:"enable_result_summary" env:"LLM_ENABLE_RESULT_SUMMARY" env-default:"true"`
}

// WorkflowConfig tunes the chat query workflow.
type WorkflowConfig struct {
	IntentConfidenceThreshold float64 `yaml:"intent_confidence_threshold" env:"INTENT_CONFIDENCE_THRESHOLD" env-default:"0.7"`
	// MaxRetries is the number of times the failure resolver may be entered per turn.
	MaxRetries     int `yaml:"max_retries" env:"WORKFLOW_MAX_RETRIES" env-default:"1"`
	HistoryLimit   int `yaml:"history_limit" env:"WORKFLOW_HISTORY_LIMIT" env-default:"4"`
	ProbeLimit     int `yaml:"probe_limit" env:"WORKFLOW_PROBE_LIMIT" env-default:"10"`
	MaxProbeFields int `yaml:"max_probe_fields" env:"WORKFLOW_MAX_PROBE_FIELDS" env-default:"3"`
	CandidateLimit int `yaml:"candidate_limit" env:"WORKFLOW_CANDIDATE_LIMIT" env-default:"5"`
}

// KnowledgeConfig locates the schema knowledge base.
type KnowledgeConfig struct {
	Path string `yaml:"path" env:"KNOWLEDGE_PATH" env-default:"knowledge/schema_kb_core.json"`
}

// AuditConfig selects where per-step audit records go.
type AuditConfig struct {
	NodeIOLogDir string `yaml:"node_io_log_dir" env:"NODE_IO_LOG_DIR" env-default:"local_logs/node_io"`
	EnableFile   bool   `yaml:"enable_file" env:"AUDIT_ENABLE_FILE" env-default:"true"`
	EnableDB     bool   `yaml:"enable_db" env:"AUDIT_ENABLE_DB" env-default:"true"`
}

// ChatConfig holds turn-entry and streaming settings.
type ChatConfig struct {
	// StreamMode is "stream" or "sync".
	StreamMode           string `yaml:"stream_mode" env:"CHAT_STREAM_MODE" env-default:"stream"`
	ExportDir            string `yaml:"export_dir" env:"CHAT_EXPORT_DIR" env-default:"local_logs/chat_exports"`
	WorkflowStartMessage string `yaml:"workflow_start_message" env-default:"Got it, let me look that up"`
	WorkflowEndMessage   string `yaml:"workflow_end_message" env-default:"Done, here is what I found"`

	// StepMessages maps step name to its start/end placeholder text.
	StepMessages map[string]StepMessages `yaml:"step_messages"`
}

// StepMessages are the placeholder texts streamed around a step.
type StepMessages struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

// CacheConfig configures the probe sample cache.
type CacheConfig struct {
	ProbeTTL      time.Duration `yaml:"probe_ttl" env:"CACHE_PROBE_TTL" env-default:"10m"`
	RedisHost     string        `yaml:"redis_host" env:"REDIS_HOST" env-default:""`
	RedisPort     int           `yaml:"redis_port" env:"REDIS_PORT" env-default:"6379"`
	RedisDB       int           `yaml:"redis_db" env:"REDIS_DB" env-default:"0"`
	RedisPassword string        `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
}

// DefaultStepMessages returns the placeholder texts used when config.yaml does not set them.
func DefaultStepMessages() map[string]StepMessages {
	return map[string]StepMessages{
		"intent_recognition": {Start: "Working out what you are asking", End: "Understood"},
		"task_parse":         {Start: "Breaking the question down", End: "The plan is clear"},
		"sql_generation":     {Start: "Assembling the query", End: "Query assembled"},
		"sql_validate":       {Start: "Double-checking the query", End: "Looks good"},
		"hidden_context":     {Start: "The query needs a fix, working on it", End: "Fixed, trying again"},
		"result_return":      {Start: "Putting the answer together", End: "All set"},
	}
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
// A missing config.yaml is not an error: defaults and environment apply.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		if !isMissingFile(err) {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

// applyDefaults fills values that cannot be expressed as env-default tags.
func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = (&url.URL{
			Scheme: "http",
			Host:   "localhost:" + c.Port,
		}).String()
	}

	defaults := DefaultStepMessages()
	if c.Chat.StepMessages == nil {
		c.Chat.StepMessages = defaults
		return
	}
	for step, msg := range defaults {
		if _, ok := c.Chat.StepMessages[step]; !ok {
			c.Chat.StepMessages[step] = msg
		}
	}
}

// Validate checks enumerations and numeric ranges.
func (c *Config) Validate() error {
	switch c.Datasource.Type {
	case DatasourcePostgres, DatasourceMSSQL, DatasourceMySQL:
	default:
		return fmt.Errorf("datasource.type must be postgres, mssql or mysql, got %q", c.Datasource.Type)
	}

	switch c.LLM.Provider {
	case LLMProviderOpenAI, LLMProviderAnthropic:
	default:
		return fmt.Errorf("llm.provider must be openai or anthropic, got %q", c.LLM.Provider)
	}

	switch c.Chat.StreamMode {
	case StreamModeStream, StreamModeSync:
	default:
		return fmt.Errorf("chat.stream_mode must be stream or sync, got %q", c.Chat.StreamMode)
	}

	if c.Workflow.IntentConfidenceThreshold < 0 || c.Workflow.IntentConfidenceThreshold > 1 {
		return fmt.Errorf("workflow.intent_confidence_threshold must be within [0,1], got %v", c.Workflow.IntentConfidenceThreshold)
	}
	if c.Workflow.MaxRetries < 0 {
		return fmt.Errorf("workflow.max_retries must not be negative, got %d", c.Workflow.MaxRetries)
	}
	if c.Workflow.HistoryLimit < 0 {
		return fmt.Errorf("workflow.history_limit must not be negative, got %d", c.Workflow.HistoryLimit)
	}
	if c.Datasource.PreviewLimit <= 0 {
		return fmt.Errorf("datasource.preview_limit must be positive, got %d", c.Datasource.PreviewLimit)
	}

	return nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// ConnectionMap returns the datasource settings in the shape executor factories accept.
func (c *DatasourceConfig) ConnectionMap() map[string]any {
	return map[string]any{
		"host":      c.Host,
		"port":      c.Port,
		"user":      c.User,
		"password":  c.Password,
		"database":  c.Database,
		"ssl_mode":  c.SSLMode,
		"max_conns": c.PoolMaxConns,
	}
}
