// Package main provides the ragsync CLI for managing the content index.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/swayam-ai/ragsync/internal/config"
	"github.com/swayam-ai/ragsync/internal/content"
	"github.com/swayam-ai/ragsync/internal/embedding"
	"github.com/swayam-ai/ragsync/internal/indexer"
	"github.com/swayam-ai/ragsync/internal/state"
	"github.com/swayam-ai/ragsync/internal/storage"
	"github.com/swayam-ai/ragsync/internal/syncer"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "ragsync",
	Short: "CMS content indexing tool",
	Long:  "CLI for managing the CMS content index in Qdrant",
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Re-index all published documents from the CMS",
	Long: `Re-indexes every published document of the configured types.

Each document is extracted, chunked, embedded, and written to Qdrant;
its previous records are purged first so re-runs never duplicate.
Documents that fail are reported and skipped; the rest of the batch
continues.`,
	RunE: runSync,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <document-id>",
	Short: "Remove one document's records from the index",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index status and last sync time",
	RunE:  runStatus,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "ragsync.toml", "path to TOML config file")
	rootCmd.AddCommand(syncCmd, deleteCmd, statusCmd)
}

func main() {
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app bundles the components a CLI command needs.
type app struct {
	cfg    *config.Config
	store  *storage.Store
	state  *state.Store
	syncer *syncer.Syncer
}

func buildApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	store, err := storage.New(storage.Config{
		Host:       cfg.QdrantHost,
		Port:       cfg.QdrantPort,
		APIKey:     cfg.QdrantAPIKey,
		Collection: cfg.Collection,
		Dimension:  cfg.EmbedDim,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to qdrant: %w", err)
	}

	stateStore, err := state.NewStore(cfg.StateDir)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open state store: %w", err)
	}

	client := embedding.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey)
	embedder := embedding.NewEmbedder(client, cfg.EmbedModel, 0)
	pipeline := indexer.NewPipeline(content.NewExtractor(), embedder, store, cfg.ChunkSize, cfg.ChunkOverlap, logger)
	cms := content.NewClient(cfg.CMSBaseURL)

	return &app{
		cfg:    cfg,
		store:  store,
		state:  stateStore,
		syncer: syncer.New(cms, pipeline, stateStore, cfg.ContentTypes, cfg.DocTimeout, logger),
	}, nil
}

func (a *app) close() {
	a.state.Close()
	a.store.Close()
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.store.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("ensure collection: %w", err)
	}

	fmt.Println("Starting sync...")
	result, err := a.syncer.SyncAll(ctx)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	fmt.Println()
	fmt.Println("Sync complete!")
	fmt.Printf("  Documents: %d/%d\n", result.TotalPosts-len(result.Errors), result.TotalPosts)
	fmt.Printf("  Records:   %d\n", result.TotalDocuments)
	fmt.Printf("  In index:  %d\n", result.IndexedCount)
	fmt.Printf("  Duration:  %s\n", result.Duration.Round(time.Second))

	if len(result.Errors) > 0 {
		fmt.Println()
		fmt.Println("Failed documents:")
		for _, failed := range result.Errors {
			fmt.Printf("  - %s (%s): %s\n", failed.DocumentID, failed.Title, failed.Reason)
		}
	}
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.syncer.DeleteDocument(context.Background(), args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted records for document %s\n", args[0])
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	st, err := a.state.Load(context.Background())
	if err != nil {
		return err
	}

	count, err := a.store.Count(context.Background())
	if err != nil {
		count = 0
	}

	fmt.Printf("Indexed records: %d\n", count)
	if st.LastSync.IsZero() {
		fmt.Println("Last sync:       never")
	} else {
		fmt.Printf("Last sync:       %s\n", st.LastSync.Format(time.RFC3339))
	}
	return nil
}
