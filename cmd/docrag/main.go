// Command docrag serves a document question-answering API: upload documents,
// build a vector index, ask questions with cited answers.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/docraghq/docrag/internal/composer"
	"github.com/docraghq/docrag/internal/config"
	"github.com/docraghq/docrag/internal/embedder"
	"github.com/docraghq/docrag/internal/extract"
	"github.com/docraghq/docrag/internal/rag"
	"github.com/docraghq/docrag/internal/server"
)

var version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  = flag.String("config", "", "path to YAML config file")
		mcpMode     = flag.Bool("mcp", false, "serve the ask tool over MCP stdio instead of HTTP")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("docrag %s\n", version)
		return nil
	}

	// Optional .env for API keys during development.
	_ = godotenv.Load()

	// Logs go to stderr; in MCP mode stdout carries the protocol.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg := config.Default()
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
		if err != nil {
			return err
		}
	}

	var emb embedder.Embedder
	if cfg.Embedding.Provider != "" {
		emb, err = embedder.New(embedder.Config{
			Provider:  cfg.Embedding.Provider,
			Model:     cfg.Embedding.Model,
			CacheSize: cfg.Embedding.CacheSize,
		})
	} else {
		emb, err = embedder.NewFromEnv()
	}
	if err != nil {
		return fmt.Errorf("failed to initialize embedder: %w", err)
	}

	comp := composer.New(os.Getenv(embedder.EnvOpenAIAPIKey), cfg.Completion.Model)

	svc, err := rag.NewService(rag.Config{
		ChunkSize: cfg.Chunking.Size,
		Overlap:   cfg.Chunking.Overlap,
		TopK:      cfg.Retrieval.TopK,
		BatchSize: cfg.Embedding.BatchSize,
		Workers:   cfg.Embedding.Workers,
		Retry: rag.RetryConfig{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay.Std(),
			MaxDelay:    cfg.Retry.MaxDelay.Std(),
			Multiplier:  cfg.Retry.Multiplier,
		},
	}, extract.NewRegistry(), emb, comp, logger)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	logger.Info("starting",
		"version", version,
		"embedding_provider", emb.Provider(),
		"embedding_model", emb.Model(),
		"mcp", *mcpMode)

	if *mcpMode {
		return server.ServeMCP(svc)
	}
	return serveHTTP(cfg.Server.Addr, svc, logger)
}

func serveHTTP(addr string, svc *rag.Service, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: server.New(svc, logger).Handler(),
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", addr)
		errChan <- srv.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		logger.Info("shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown failed: %w", err)
		}
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	logger.Info("server stopped")
	return nil
}
