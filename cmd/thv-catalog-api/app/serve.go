package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	catalogapp "github.com/stacklok/toolhive-catalog-server/internal/app"
	"github.com/stacklok/toolhive-catalog-server/internal/telemetry"
)

const defaultGracefulTimeout = 30 * time.Second // Kubernetes-friendly shutdown time

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the catalog API server",
		Long: `Start the catalog API server.

The server requires a configuration file (--config) that specifies:
- GitHub discovery queries and credentials
- Sync interval, batch size and optional time window
- Storage backend (sqlite or postgres) and read strategy

See examples/ directory for sample configurations.`,
		RunE: runServe,
	}

	cmd.Flags().String("address", ":8080", "Address to listen on")
	cmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")

	if err := viper.BindPFlag("address", cmd.Flags().Lookup("address")); err != nil {
		slog.Error("Failed to bind address flag", "error", err)
	}
	if err := cmd.MarkFlagRequired("config"); err != nil {
		slog.Error("Failed to mark config flag as required", "error", err)
	}
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	tel, err := telemetry.New(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shutdown telemetry", "error", err)
		}
	}()

	opts := []catalogapp.CatalogAppOptions{
		catalogapp.WithConfig(cfg),
		catalogapp.WithAddress(viper.GetString("address")),
	}
	if tel.Enabled() {
		opts = append(opts,
			catalogapp.WithMeterProvider(tel.MeterProvider()),
			catalogapp.WithTracerProvider(tel.TracerProvider()),
		)
	}
	if h := tel.MetricsHandler(); h != nil {
		opts = append(opts, catalogapp.WithMetricsHandler(h))
	}

	app, err := catalogapp.NewCatalogApp(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to build application: %w", err)
	}

	startErr := app.Start(ctx)
	if err := app.Stop(defaultGracefulTimeout); err != nil {
		slog.Error("Graceful shutdown failed", "error", err)
	}
	return startErr
}
