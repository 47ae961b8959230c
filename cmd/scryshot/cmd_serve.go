package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/copyleftdev/scryshot/internal/browser"
	"github.com/copyleftdev/scryshot/internal/runner"
	"github.com/copyleftdev/scryshot/internal/runs"
	"github.com/copyleftdev/scryshot/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the run API over HTTP",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	b, err := browser.New(cfg.Browser.Backend, logger)
	if err != nil {
		return err
	}
	manager := runs.NewManager(runner.New(b, logger), runs.ManagerOptions{
		Defaults:    cfg.RunnerOptions(),
		BackendName: b.Name(),
		MaxRuns:     int64(cfg.Browser.MaxRuns),
		RunTimeout:  cfg.Runner.RunTimeout,
	}, logger)
	srv := server.NewServer(cfg, manager, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutdown signal received", zap.Duration("timeout", cfg.Server.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
