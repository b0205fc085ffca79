package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	catalogapp "github.com/stacklok/toolhive-catalog-server/internal/app"
	pkgsync "github.com/stacklok/toolhive-catalog-server/internal/sync"
)

const (
	formatJSON  = "json"
	formatTable = "table"
)

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one forced sync cycle and exit",
		Long: `Run a single forced sync cycle against the configured store and print the
result. The sync window is ignored. Intended for cron-style deployments where
the server runs with scheduled sync disabled.`,
		RunE: runSync,
	}
	cmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")
	cmd.Flags().String("format", formatJSON, "Output format (json, table)")
	if err := cmd.MarkFlagRequired("config"); err != nil {
		slog.Error("Error marking config flag as required", "error", err)
	}
	return cmd
}

func runSync(cmd *cobra.Command, _ []string) error {
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return fmt.Errorf("failed to get format flag: %w", err)
	}
	if format != formatJSON && format != formatTable {
		return fmt.Errorf("unsupported output format %q (use %s or %s)", format, formatJSON, formatTable)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	app, err := catalogapp.NewCatalogApp(ctx, catalogapp.WithConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to build application: %w", err)
	}
	defer app.Close()

	result, runErr := app.RunSync(ctx)
	if result != nil {
		if err := printResult(cmd.OutOrStdout(), format, result); err != nil {
			return err
		}
	}

	var cycleErr *pkgsync.Error
	if errors.As(runErr, &cycleErr) {
		return fmt.Errorf("sync failed during %s: %w", cycleErr.Phase, runErr)
	}
	return runErr
}

func printResult(w io.Writer, format string, result *pkgsync.SyncResult) error {
	if format == formatTable {
		return printResultTable(w, result)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("failed to encode sync result: %w", err)
	}
	return nil
}

func printResultTable(w io.Writer, result *pkgsync.SyncResult) error {
	table := tablewriter.NewWriter(w)
	table.Header("Field", "Value")

	rows := [][]string{
		{"Run ID", result.RunID},
		{"Success", strconv.FormatBool(result.Success)},
		{"Message", result.Message},
		{"Fetched", strconv.Itoa(result.Fetched)},
		{"Inserted", strconv.Itoa(result.Inserted)},
		{"Updated", strconv.Itoa(result.Updated)},
		{"Skipped", strconv.Itoa(result.Skipped)},
		{"Errors", strconv.Itoa(result.Errors)},
		{"Duration", result.Duration.Round(time.Millisecond).String()},
		{"Timestamp", result.Timestamp.Format(time.RFC3339)},
	}
	for i, detail := range result.ErrorDetails {
		rows = append(rows, []string{fmt.Sprintf("Error %d", i+1), detail})
	}

	for _, row := range rows {
		if err := table.Append(row); err != nil {
			return fmt.Errorf("failed to render sync result: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render sync result: %w", err)
	}
	return nil
}
