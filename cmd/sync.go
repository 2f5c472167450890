package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/exbordia/exbordia/internal/app"
	"github.com/exbordia/exbordia/internal/config"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Ingest the Notion knowledge base",
	Long: `Sync the configured Notion database into the knowledge store.

Every page is fetched, chunked, summarized, categorized and embedded.
Pages already present are replaced; empty pages are skipped. Requires
NOTION_TOKEN and NOTION_DATABASE_ID.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runSync(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func runSync(parent context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err = cfg.ValidateSync(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	logger := newLogger()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer a.Close()

	ing, err := a.Ingestor()
	if err != nil {
		return fmt.Errorf("building ingestor: %w", err)
	}

	logger.Info("starting notion sync", "database_id", cfg.NotionDatabaseID)
	result, err := ing.SyncDatabase(ctx, cfg.NotionDatabaseID)
	if result != nil {
		fmt.Printf("Synced: %d  Skipped: %d  Failed: %d  (%s)\n",
			result.Synced, result.Skipped, result.Failed, result.Duration.Round(time.Millisecond))
	}
	if err != nil {
		return fmt.Errorf("syncing notion database: %w", err)
	}
	return nil
}
