package app

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stacklok/toolhive-catalog-server/database"
	"github.com/stacklok/toolhive-catalog-server/internal/app/storage"
	"github.com/stacklok/toolhive-catalog-server/internal/config"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration tool",
		Long:  `Database migration tool for managing schema versions. Use with 'up' or 'down' subcommands.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Usage()
		},
	}

	cmd.PersistentFlags().BoolP("yes", "y", false, "Answer yes to all questions")
	cmd.PersistentFlags().UintP("num-steps", "n", 0, "Number of steps to migrate (0 = all)")
	cmd.PersistentFlags().String("config", "", "Path to configuration file (YAML format, required)")
	if err := cmd.MarkPersistentFlagRequired("config"); err != nil {
		panic(err)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending database migrations",
		Long: `Apply all pending database migrations to bring the schema up to date.
This command reads the database connection parameters from the config file.`,
		RunE: runMigrateUp,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Migrate the database down",
		Long: `Migrate the database schema down by reverting migrations.
WARNING: This operation can result in data loss. Use with caution.

Examples:
  # Migrate down by 1 step
  thv-catalog-api migrate down --config config.yaml --num-steps 1 --yes

  # Migrate down all the way (WARNING: destroys all data)
  thv-catalog-api migrate down --config config.yaml --yes`,
		RunE: runMigrateDown,
	})
	return cmd
}

// setupMigration loads the configuration and resolves the connection string.
func setupMigration(cmd *cobra.Command) (*config.Config, string, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, "", err
	}
	if cfg.GetStorageType() != config.StorageTypePostgres || cfg.Database == nil {
		return nil, "", fmt.Errorf("migrations require storage.type %q and a database section", config.StorageTypePostgres)
	}

	connString, err := storage.MigrationConnectionString(cmd.Context(), cfg.Database)
	if err != nil {
		return nil, "", fmt.Errorf("failed to get migration connection string: %w", err)
	}
	return cfg, connString, nil
}

func runMigrateUp(cmd *cobra.Command, _ []string) error {
	cfg, connString, err := setupMigration(cmd)
	if err != nil {
		return err
	}

	prompt := fmt.Sprintf("About to apply migrations to database %s@%s:%d/%s. Continue?",
		cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)
	if ok, err := confirmed(cmd, prompt); err != nil || !ok {
		return err
	}

	slog.Info("Applying database migrations...")
	if err := database.MigrateUp(cmd.Context(), connString); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	displayMigrationVersion(cmd.Context(), connString)
	return nil
}

func runMigrateDown(cmd *cobra.Command, _ []string) error {
	_, connString, err := setupMigration(cmd)
	if err != nil {
		return err
	}

	numSteps, err := cmd.Flags().GetUint("num-steps")
	if err != nil {
		return fmt.Errorf("failed to get num-steps flag: %w", err)
	}

	prompt := "WARNING: This will migrate down ALL steps and may result in complete data loss. Continue?"
	if numSteps > 0 {
		prompt = fmt.Sprintf("WARNING: This will migrate down %d step(s) and may result in data loss. Continue?", numSteps)
	}
	if ok, err := confirmed(cmd, prompt); err != nil || !ok {
		return err
	}

	if numSteps == 0 {
		slog.Warn("Migrating down all steps - this will remove all schema!")
	} else {
		slog.Info("Migrating down", "steps", numSteps)
	}
	if err := database.MigrateDown(cmd.Context(), connString, numSteps); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	slog.Info("Migration completed successfully")
	displayMigrationVersion(cmd.Context(), connString)
	return nil
}

// confirmed honors --yes, otherwise asks on the command's input.
func confirmed(cmd *cobra.Command, prompt string) (bool, error) {
	yes, err := cmd.Flags().GetBool("yes")
	if err != nil {
		return false, fmt.Errorf("failed to get yes flag: %w", err)
	}
	if yes {
		return true, nil
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s (yes/no): ", prompt)
	response, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && response == "" {
		return false, fmt.Errorf("failed to read user input: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(response)) {
	case "yes", "y":
		return true, nil
	default:
		slog.Info("Migration cancelled by user")
		return false, nil
	}
}

func displayMigrationVersion(ctx context.Context, connString string) {
	version, dirty, err := database.GetVersion(connString)
	switch {
	case err != nil:
		slog.WarnContext(ctx, "Unable to get migration version", "error", err)
	case dirty:
		slog.WarnContext(ctx, "Database is in a dirty state", "version", version)
	default:
		slog.InfoContext(ctx, "Current migration version", "version", version)
	}
}
