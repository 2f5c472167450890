// Package cmd defines the exbordia command-line interface.
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/exbordia/exbordia/internal/log"
)

var (
	flagJSONLogs bool
	flagVerbose  bool
)

var rootCmd = &cobra.Command{
	Use:   "exbordia",
	Short: "Exbordia - AI assistant backend for cross-border Amazon sellers",
	Long: `Exbordia is a retrieval-augmented chat backend for Amazon cross-border
sellers. It ingests documentation from Notion into PostgreSQL with pgvector,
routes each question to a specialist agent, and answers in Spanish with the
relevant documentation as context.

Run "exbordia serve" to start the HTTP API or "exbordia sync" to ingest the
Notion knowledge base.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagJSONLogs, "json-logs", false, "emit logs in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
}

// newLogger builds the process logger from the persistent flags.
func newLogger() log.Logger {
	level := slog.LevelInfo
	if flagVerbose {
		level = slog.LevelDebug
	}
	return log.New(log.Config{Level: level, JSON: flagJSONLogs})
}
