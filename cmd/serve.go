// -- cmd/serve.go --
package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/0xfaultline/chatmux/api/schemas"
	"github.com/0xfaultline/chatmux/internal/browser"
	"github.com/0xfaultline/chatmux/internal/config"
	"github.com/0xfaultline/chatmux/internal/discussion"
	"github.com/0xfaultline/chatmux/internal/observability"
	"github.com/0xfaultline/chatmux/internal/server"
	"github.com/0xfaultline/chatmux/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Attach to the remote browser and expose the messaging API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.NewFromViper(viper.GetViper())
		if err != nil {
			return err
		}
		return runServe(cmd.Context(), cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(parentCtx context.Context, cfg *config.Config) error {
	logger := observability.GetLogger()

	ctx, stop := signal.NotifyContext(parentCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Persistence is optional: without a database URL the service still
	// relays messages, it just saves nothing.
	var repo schemas.Repository
	if cfg.Database.URL != "" {
		pool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("failed to create database pool: %w", err)
		}
		defer pool.Close()

		st, err := store.New(ctx, pool, logger)
		if err != nil {
			return err
		}
		repo = st
	} else {
		logger.Warn("No database.url configured; running without persistence.")
	}

	registry := browser.NewRegistry(cfg.Browser, cfg.Target, logger)
	if err := registry.Connect(ctx); err != nil {
		return err
	}
	defer registry.Close()

	detector := browser.NewDetector(cfg.Detector, logger)
	driver := browser.NewDriver(registry, detector, cfg.Target, cfg.Browser, logger)

	orch, err := discussion.New(driver, repo, cfg.Discussion, logger)
	if err != nil {
		return err
	}

	srv := server.New(cfg.Server, driver, registry, orch, repo, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down.")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown did not finish cleanly.", zap.Error(err))
	}
	return nil
}
