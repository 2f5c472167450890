package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/exbordia/exbordia/internal/api"
	"github.com/exbordia/exbordia/internal/app"
	"github.com/exbordia/exbordia/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the chat backend HTTP server.

Routes:
  POST /message   answer a user question
  GET  /health    liveness probe
  GET  /ready     readiness probe (database ping)`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(parent context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := newLogger()
	logger.Info("starting exbordia server", "version", Version)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer a.Close()

	srv, err := api.NewServer(api.ServerConfig{
		Logger:       logger,
		Orchestrator: a.Orchestrator,
		Pool:         a.Pool,
		TrustProxy:   cfg.TrustProxy,
		RateLimit:    cfg.RateLimitRPS,
		RateBurst:    cfg.RateLimitBurst,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	return srv.ListenAndServe(ctx, cfg.ListenAddr)
}
