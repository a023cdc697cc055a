// Agentflow orchestration server — provides the HTTP API, runs the
// multi-agent orchestration kernel, and streams session progress over
// WebSockets.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"k8s.io/utils/clock"

	"github.com/dpmorgan-gotribe/agentflow/pkg/agent"
	"github.com/dpmorgan-gotribe/agentflow/pkg/api"
	"github.com/dpmorgan-gotribe/agentflow/pkg/config"
	"github.com/dpmorgan-gotribe/agentflow/pkg/decision"
	"github.com/dpmorgan-gotribe/agentflow/pkg/events"
	"github.com/dpmorgan-gotribe/agentflow/pkg/guardrails"
	"github.com/dpmorgan-gotribe/agentflow/pkg/llm"
	"github.com/dpmorgan-gotribe/agentflow/pkg/llm/anthropic"
	"github.com/dpmorgan-gotribe/agentflow/pkg/notify"
	"github.com/dpmorgan-gotribe/agentflow/pkg/orchestrator"
	"github.com/dpmorgan-gotribe/agentflow/pkg/retrieval"
	"github.com/dpmorgan-gotribe/agentflow/pkg/session"
	"github.com/dpmorgan-gotribe/agentflow/pkg/skills"
	"github.com/dpmorgan-gotribe/agentflow/pkg/synthesis"
	"github.com/dpmorgan-gotribe/agentflow/pkg/vectorstore"
	"github.com/dpmorgan-gotribe/agentflow/pkg/vectorstore/pgvector"
	"github.com/dpmorgan-gotribe/agentflow/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// buildProvider assembles the completion-provider chain for the configured
// default provider: the backend client wrapped in retry and circuit-breaker
// middleware per its provider config.
func buildProvider(cfg *config.Config, logger *slog.Logger) (llm.CompletionProvider, string, error) {
	name := cfg.DefaultLLMProvider
	pcfg, ok := cfg.LLMProviders[name]
	if !ok {
		return nil, "", fmt.Errorf("default LLM provider %q is not configured", name)
	}

	var base llm.CompletionProvider
	switch pcfg.Backend {
	case "anthropic":
		client, err := anthropic.New(pcfg, logger)
		if err != nil {
			return nil, "", fmt.Errorf("initializing provider %q: %w", name, err)
		}
		base = client
	default:
		// "scripted" is valid in config for test harnesses, but the server
		// binary only ships real backends.
		return nil, "", fmt.Errorf("provider %q: backend %q is not available in the server binary", name, pcfg.Backend)
	}

	return llm.Chain(base, pcfg, logger), pcfg.Model, nil
}

// buildStore selects the vector store backend from configuration.
func buildStore(ctx context.Context, cfg config.VectorStoreConfig, dims int, logger *slog.Logger) (vectorstore.Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return vectorstore.NewMemoryStore(dims), nil
	case "pgvector":
		envName := cfg.DatabaseURLEnv
		if envName == "" {
			envName = "DATABASE_URL"
		}
		databaseURL := os.Getenv(envName)
		if databaseURL == "" {
			return nil, fmt.Errorf("vector store backend pgvector requires %s to be set", envName)
		}
		return pgvector.New(ctx, databaseURL, dims, logger)
	default:
		return nil, fmt.Errorf("unknown vector store backend %q", cfg.Backend)
	}
}

func main() {
	// Parse command-line flags
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	// Load .env file from config directory
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	httpPort := getEnv("HTTP_PORT", "8080")

	slog.Info("Starting agentflow",
		"version", version.GitCommit,
		"http_port", httpPort,
		"config_dir", *configDir)

	ctx := context.Background()
	logger := slog.Default()
	gin.SetMode(gin.ReleaseMode)

	// 1. Initialize configuration
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. Build the completion provider
	provider, model, err := buildProvider(cfg, logger)
	if err != nil {
		slog.Error("Failed to initialize LLM provider", "error", err)
		os.Exit(1)
	}
	slog.Info("LLM provider initialized",
		"provider", cfg.DefaultLLMProvider, "model", model)

	// 3. Vector store and retrieval manager
	dims := cfg.VectorStore.Dimensions
	if dims <= 0 {
		dims = vectorstore.DefaultHashDimensions
	}
	backend := cfg.VectorStore.Backend
	if backend == "" {
		backend = "memory"
	}
	store, err := buildStore(ctx, cfg.VectorStore, dims, logger)
	if err != nil {
		slog.Error("Failed to initialize vector store", "error", err)
		os.Exit(1)
	}
	embedder := vectorstore.NewHashEmbedder(dims)
	retrievalMgr := retrieval.NewManager(&cfg.Context, store, embedder, nil, clock.RealClock{}, logger)
	slog.Info("Vector store initialized", "backend", backend, "dimensions", dims)

	// 4. Guardrail engine
	guard, err := guardrails.NewEngine(&cfg.Guardrails, cfg.Orchestrator.MaxInputLength,
		cfg.MCPServerRegistry, clock.RealClock{}, logger)
	if err != nil {
		slog.Error("Failed to initialize guardrails", "error", err)
		os.Exit(1)
	}

	// 5. Sessions, event bus, and WebSocket streaming
	sessions := session.NewManager(clock.RealClock{})
	bus := events.NewBus(logger)
	connManager := events.NewConnectionManager(bus, 10*time.Second)
	bus.AddSink(connManager.Broadcast)
	publisher := events.NewPublisher(bus)
	slog.Info("Streaming infrastructure initialized")

	// 6. Slack notifications (optional; NewService returns nil without a token)
	var notifier *notify.Service
	if cfg.Slack.NotificationsEnabled() {
		notifier = notify.NewService(notify.ServiceConfig{
			Token:        os.Getenv(cfg.Slack.TokenEnv),
			Channel:      cfg.Slack.Channel,
			DashboardURL: os.Getenv("DASHBOARD_URL"),
		})
		if notifier != nil {
			slog.Info("Slack notifications enabled", "channel", cfg.Slack.Channel)
		} else {
			slog.Warn("Slack notifications configured but token or channel is missing")
		}
	}

	// 7. Agent workers, decision engine, synthesizer
	workers := agent.BuildWorkers(agent.Deps{
		Provider: provider,
		Selector: skills.NewSelector(cfg.SkillRegistry, logger),
		Injector: skills.NewInjector(logger),
		Config:   cfg.Orchestrator,
		Clock:    clock.RealClock{},
		Logger:   logger,
	})
	decider := decision.NewEngine(provider, model, logger)
	synth := synthesis.NewSynthesizer(logger)

	// 8. Orchestration kernel
	kernel := orchestrator.New(orchestrator.Deps{
		Sessions:   sessions,
		Workers:    workers,
		Decider:    decider,
		Guardrails: guard,
		Retrieval:  retrievalMgr,
		Synth:      synth,
		Provider:   provider,
		Config:     cfg,
		Model:      model,
		Clock:      clock.RealClock{},
		Events:     publisher,
		Notify:     notifier,
		Logger:     logger,
	})

	// 9. Start HTTP server (non-blocking)
	httpServer := api.NewServer(cfg, kernel, sessions, connManager)
	errCh := make(chan error, 1)
	go func() {
		addr := ":" + httpPort
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	stats := cfg.Stats()
	slog.Info("Agentflow started successfully",
		"skills", stats.Skills,
		"llm_providers", stats.LLMProviders,
		"guardrail_strict_mode", cfg.Guardrails.StrictModeEnabled())

	// 10. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 11. Graceful shutdown. Create and resume hold their HTTP connections
	// for the life of the run, so the drain budget must cover the session
	// timeout, not just a request round-trip.
	shutdownBudget := time.Duration(cfg.Orchestrator.TimeoutMs)*time.Millisecond + 5*time.Second
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownBudget)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
