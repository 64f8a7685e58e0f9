package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-chat-engine/pkg/adapters/datasource"
	_ "github.com/ekaya-inc/ekaya-chat-engine/pkg/adapters/datasource/mssql"
	_ "github.com/ekaya-inc/ekaya-chat-engine/pkg/adapters/datasource/mysql"
	_ "github.com/ekaya-inc/ekaya-chat-engine/pkg/adapters/datasource/postgres"
	"github.com/ekaya-inc/ekaya-chat-engine/pkg/audit"
	"github.com/ekaya-inc/ekaya-chat-engine/pkg/cache"
	"github.com/ekaya-inc/ekaya-chat-engine/pkg/config"
	"github.com/ekaya-inc/ekaya-chat-engine/pkg/database"
	"github.com/ekaya-inc/ekaya-chat-engine/pkg/handlers"
	"github.com/ekaya-inc/ekaya-chat-engine/pkg/knowledge"
	"github.com/ekaya-inc/ekaya-chat-engine/pkg/llm"
	"github.com/ekaya-inc/ekaya-chat-engine/pkg/logging"
	"github.com/ekaya-inc/ekaya-chat-engine/pkg/middleware"
	"github.com/ekaya-inc/ekaya-chat-engine/pkg/repositories"
	"github.com/ekaya-inc/ekaya-chat-engine/pkg/services"
	"github.com/ekaya-inc/ekaya-chat-engine/pkg/services/chatflow"
)

// Version is set at build time via ldflags
var Version = "dev"

const shutdownTimeout = 20 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg.ResolveHosts()

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "local" || env == "dev" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("base_url", cfg.BaseURL),
		zap.String("database", fmt.Sprintf("%s@%s:%d/%s", cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)),
		zap.String("datasource_type", cfg.Datasource.Type),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("stream_mode", cfg.Chat.StreamMode))

	// Engine database: chat history and workflow logs
	db, err := database.NewConnection(ctx, database.ConfigFromSettings(cfg.Database))
	if err != nil {
		return fmt.Errorf("connect engine database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(logger); err != nil {
		return fmt.Errorf("migrate engine database: %w", err)
	}

	executor, err := datasource.NewQueryExecutor(ctx, cfg.Datasource.Type, cfg.Datasource.ConnectionMap(), logger)
	if err != nil {
		return fmt.Errorf("create %s executor: %w", cfg.Datasource.Type, err)
	}
	defer func() {
		if err := executor.Close(); err != nil {
			logger.Warn("Failed to close datasource", zap.Error(err))
		}
	}()
	if err := executor.Ping(ctx); err != nil {
		// The datasource may come up later; /ready reports it until then.
		logger.Warn("Datasource is not reachable yet", zap.String("error", logging.SanitizeError(err)))
	}

	probes, closeProbes, err := newProbeCache(ctx, cfg.Cache, logger)
	if err != nil {
		return err
	}
	defer closeProbes()

	kb, err := knowledge.Load(cfg.Knowledge.Path)
	if err != nil {
		return fmt.Errorf("load knowledge base: %w", err)
	}
	summary := kb.Summary()
	logger.Info("Knowledge base loaded",
		zap.String("path", cfg.Knowledge.Path),
		zap.Int("tables", summary.TableCount),
		zap.Int("fields", summary.FieldCount))

	client, err := llm.NewClientFromConfig(cfg.LLM, logger)
	if err != nil {
		return fmt.Errorf("create llm client: %w", err)
	}

	historyRepo := repositories.NewChatHistoryRepository(db)
	workflowLogRepo := repositories.NewWorkflowLogRepository(db)

	auditor := audit.MultiAuditor{audit.NewLogAuditor(logger)}
	if cfg.Audit.EnableFile {
		auditor = append(auditor, audit.NewFileAuditor(cfg.Audit.NodeIOLogDir, logger))
	}
	if cfg.Audit.EnableDB {
		auditor = append(auditor, audit.NewRepositoryAuditor(workflowLogRepo, logger))
	}

	security := audit.NewSecurityAuditor(logger)
	var summarizer llm.Client
	if cfg.LLM.EnableResultSummary {
		summarizer = client
	}

	router := chatflow.NewRouter(chatflow.Steps{
		IntentRecognition: chatflow.NewIntentRecognizer(client, cfg.LLM.IntentTimeout, logger),
		TaskParse:         chatflow.NewTaskParser(client, kb, security, cfg.LLM.TaskParseTimeout, logger),
		SQLGeneration:     chatflow.NewQueryGenerator(client, kb, executor.Dialect(), cfg.LLM.GenerationTimeout, logger),
		SQLValidate:       chatflow.NewQueryValidator(executor, security, cfg.Datasource.PreviewLimit, cfg.Datasource.QueryTimeout, logger),
		HiddenContext: chatflow.NewFailureResolver(executor, kb, probes, chatflow.ResolverConfig{
			ProbeLimit:     cfg.Workflow.ProbeLimit,
			MaxProbeFields: cfg.Workflow.MaxProbeFields,
			CandidateLimit: cfg.Workflow.CandidateLimit,
			ProbeTimeout:   cfg.Datasource.QueryTimeout,
		}, logger),
		ResultReturn: chatflow.NewResultReturner(summarizer, cfg.LLM.SummaryTimeout, logger),
	}, auditor, logger)

	chatService := services.NewChatService(router, historyRepo, services.ChatServiceConfig{
		Threshold:    cfg.Workflow.IntentConfidenceThreshold,
		RetryBound:   cfg.Workflow.MaxRetries,
		HistoryLimit: cfg.Workflow.HistoryLimit,
		DefaultModel: cfg.LLM.IntentModel,
		SQLModel:     cfg.LLM.SQLModel,
		ExportDir:    cfg.Chat.ExportDir,
	}, logger)

	mux := http.NewServeMux()

	// Register handlers
	handlers.NewHealthHandler(cfg, map[string]handlers.HealthCheck{
		"database":   func(ctx context.Context) error { return db.Ping(ctx) },
		"datasource": executor.Ping,
	}, logger).RegisterRoutes(mux)
	handlers.NewChatHandler(chatService, cfg.Chat, logger).RegisterRoutes(mux)
	handlers.NewStepLogHandler(workflowLogRepo, logger).RegisterRoutes(mux)

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           middleware.RequestID(middleware.RequestLogger(logger)(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting ekaya-chat-engine",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// newProbeCache shares probe samples through Redis when it is configured and
// keeps them in process otherwise.
func newProbeCache(ctx context.Context, cfg config.CacheConfig, logger *zap.Logger) (cache.ProbeCache, func(), error) {
	client, err := database.NewRedisClient(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect probe cache: %w", err)
	}
	if client != nil {
		logger.Info("Using Redis probe cache", zap.String("host", cfg.RedisHost))
		return cache.NewRedisProbeCache(client, cfg.ProbeTTL, logger), func() { _ = client.Close() }, nil
	}

	mem := cache.NewMemoryProbeCache(cfg.ProbeTTL)
	return mem, mem.Close, nil
}
