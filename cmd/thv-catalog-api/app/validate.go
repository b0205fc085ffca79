package app

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file",
		Long:  "Load and validate a configuration file without opening the store or contacting GitHub.",
		RunE:  runValidate,
	}
	cmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")
	if err := cmd.MarkFlagRequired("config"); err != nil {
		slog.Error("Failed to mark config flag as required", "error", err)
	}
	return cmd
}

func runValidate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintln(out, "✓ Valid configuration")
	_, _ = fmt.Fprintf(out, "  Storage: %s\n", cfg.GetStorageType())
	_, _ = fmt.Fprintf(out, "  Strategy: %s\n", cfg.Service.GetStrategy())
	if cfg.Sync.IsEnabled() {
		_, _ = fmt.Fprintf(out, "  Sync interval: %s\n", cfg.Sync.GetInterval())
	} else {
		_, _ = fmt.Fprintln(out, "  Sync: manual only")
	}
	if w := cfg.Sync.Window; w != nil {
		_, _ = fmt.Fprintf(out, "  Sync window: %s-%s\n", w.Start, w.End)
	}
	return nil
}
