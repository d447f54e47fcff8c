package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/crosslink/crosslink/internal/ai"
	"github.com/crosslink/crosslink/internal/api"
	"github.com/crosslink/crosslink/internal/cache"
	"github.com/crosslink/crosslink/internal/dependency"
	"github.com/crosslink/crosslink/internal/matcher"
	"github.com/crosslink/crosslink/internal/storage"
	"github.com/crosslink/crosslink/internal/worker"
)

// initLogger configures the global slog default with JSON output.
func initLogger(level string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}
	h := slog.NewJSONHandler(os.Stdout, opts)
	slog.SetDefault(slog.New(h))
}

// envOrDefault resolves a configuration value with the priority:
//
//	flag (if explicitly set, i.e. differs from defaultVal) > env var > default.
func envOrDefault(envKey, flagVal, defaultVal string) string {
	if flagVal != defaultVal {
		return flagVal
	}
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	return defaultVal
}

func main() {
	// .env is optional; real env vars win over its contents.
	_ = godotenv.Load()

	// ---- Flags -----------------------------------------------------------
	dbPathFlag := flag.String("db-path", "./crosslink.db", "Path to SQLite database file")
	portFlag := flag.Int("port", 8080, "HTTP server port")
	logLevel := flag.String("log-level", "info", "Log level (debug|info|warn|error)")
	workersFlag := flag.Int("match-workers", 1, "Background match-scan workers")
	cacheSizeFlag := flag.Int("cache-size", 128, "LRU entries for graph memoization")
	aiProviderFlag := flag.String("ai-provider", "", "AI provider: bedrock or ollama (empty = disabled)")
	aiRegionFlag := flag.String("ai-region", "us-east-1", "AWS region for Bedrock provider")
	aiModelFlag := flag.String("ai-model", "", "LLM model ID (provider-specific)")
	ollamaURLFlag := flag.String("ollama-url", "http://localhost:11434", "Ollama API URL")
	flag.Parse()

	// Resolve config: flag > env var > default.
	dbPath := envOrDefault("CROSSLINK_DB_PATH", *dbPathFlag, "./crosslink.db")
	portStr := envOrDefault("CROSSLINK_PORT", strconv.Itoa(*portFlag), "8080")
	port, err := strconv.Atoi(portStr)
	if err != nil {
		log.Fatalf("invalid port value %q: %v", portStr, err)
	}
	aiProvider := envOrDefault("CROSSLINK_AI_PROVIDER", *aiProviderFlag, "")
	aiRegion := envOrDefault("CROSSLINK_AI_REGION", *aiRegionFlag, "us-east-1")
	aiModel := envOrDefault("CROSSLINK_AI_MODEL", *aiModelFlag, "")
	ollamaURL := envOrDefault("CROSSLINK_OLLAMA_URL", *ollamaURLFlag, "http://localhost:11434")

	initLogger(envOrDefault("CROSSLINK_LOG_LEVEL", *logLevel, "info"))

	// ---- Storage ---------------------------------------------------------
	store, err := storage.New(dbPath)
	if err != nil {
		log.Fatalf("failed to initialise storage: %v", err)
	}

	ctx := context.Background()

	// ---- Cache + dependency service --------------------------------------
	lru, err := cache.NewLRU(*cacheSizeFlag)
	if err != nil {
		log.Fatalf("failed to initialise cache: %v", err)
	}
	deps := dependency.New(store, lru, slog.Default())

	// ---- SSE Broadcaster -------------------------------------------------
	sse := api.NewSSEBroadcaster()

	// ---- Match-scan runner -----------------------------------------------
	m := matcher.New(store, slog.Default())
	runner := worker.NewRunner(m, api.NewWorkerBridge(sse), *workersFlag)

	// ---- AI Provider (optional) ------------------------------------------
	var provider ai.Provider
	if aiProvider != "" {
		cfg := ai.ProviderConfig{
			Kind:      ai.ProviderKind(aiProvider),
			Region:    aiRegion,
			Model:     aiModel,
			OllamaURL: ollamaURL,
		}
		provider, err = ai.NewProvider(ctx, cfg)
		if err != nil {
			slog.Warn("AI provider init failed — narratives disabled", "error", err)
			provider = nil
		} else {
			slog.Info("AI provider ready", "provider", provider.Name())
		}
	}

	// ---- HTTP Server -----------------------------------------------------
	srv := api.NewServer(store, deps, runner, provider, sse)
	srv.RegisterRoutes()

	stats, err := store.GetStats(ctx)
	if err != nil {
		log.Fatalf("failed to read graph stats: %v", err)
	}

	aiStatus := "disabled"
	if provider != nil {
		aiStatus = provider.Name()
	}
	slog.Info("crosslink starting",
		"db_path", dbPath,
		"port", port,
		"nodes", stats.TotalNodes,
		"connections", stats.TotalConnections,
		"projects", stats.TotalProjects,
		"ai_provider", aiStatus,
	)

	addr := fmt.Sprintf(":%d", port)

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	// ---- Graceful shutdown -----------------------------------------------
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	runner.Close()
	if provider != nil {
		provider.Close()
	}

	if err := store.Close(); err != nil {
		slog.Error("storage close error", "error", err)
	}

	slog.Info("crosslink shutdown complete")
}
