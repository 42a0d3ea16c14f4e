// Package main runs the ragsync HTTP server: question answering over
// indexed CMS content, health reporting, and content-event intake.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"

	"github.com/swayam-ai/ragsync/internal/config"
	"github.com/swayam-ai/ragsync/internal/content"
	"github.com/swayam-ai/ragsync/internal/embedding"
	"github.com/swayam-ai/ragsync/internal/indexer"
	"github.com/swayam-ai/ragsync/internal/llm"
	"github.com/swayam-ai/ragsync/internal/rag"
	"github.com/swayam-ai/ragsync/internal/server"
	"github.com/swayam-ai/ragsync/internal/state"
	"github.com/swayam-ai/ragsync/internal/storage"
	"github.com/swayam-ai/ragsync/internal/syncer"
)

func main() {
	// Load .env if present (local development), ignore if missing.
	_ = godotenv.Load()

	configPath := flag.String("config", "ragsync.toml", "path to TOML config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Vector store ---
	store, err := storage.New(storage.Config{
		Host:       cfg.QdrantHost,
		Port:       cfg.QdrantPort,
		APIKey:     cfg.QdrantAPIKey,
		Collection: cfg.Collection,
		Dimension:  cfg.EmbedDim,
	})
	if err != nil {
		return fmt.Errorf("connect to qdrant: %w", err)
	}
	defer store.Close()

	if err := store.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("ensure collection: %w", err)
	}

	// --- Model clients ---
	client := embedding.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey)
	embedder := embedding.NewEmbedder(client, cfg.EmbedModel, 0)
	chat := llm.NewChat(client.Client(), cfg.ChatModel)

	// --- Pipeline and orchestrator ---
	cms := content.NewClient(cfg.CMSBaseURL)
	pipeline := indexer.NewPipeline(content.NewExtractor(), embedder, store, cfg.ChunkSize, cfg.ChunkOverlap, logger)

	stateStore, err := state.NewStore(cfg.StateDir)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	defer stateStore.Close()

	sync := syncer.New(cms, pipeline, stateStore, cfg.ContentTypes, cfg.DocTimeout, logger)

	// --- Background sync worker over NATS ---
	nc, err := nats.Connect(cfg.NATSURL, nats.Name("ragsync-server"))
	if err != nil {
		return fmt.Errorf("connect to nats: %w", err)
	}
	defer nc.Close()

	worker := syncer.NewWorker(nc, sync, logger)
	if err := worker.Start(); err != nil {
		return fmt.Errorf("start sync worker: %w", err)
	}
	defer worker.Stop()

	// --- HTTP server ---
	answerer := rag.NewAnswerer(embedder, store, chat, logger)
	api := server.New(server.Config{
		Answerer:   answerer,
		Syncer:     sync,
		Queue:      syncer.NewQueue(nc),
		State:      stateStore,
		AdminToken: cfg.AdminToken,
		Debug:      cfg.Debug,
		Logger:     logger,
	})
	defer api.Close()

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      api.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}
