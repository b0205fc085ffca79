package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stacklok/toolhive-catalog-server/database"
	"github.com/stacklok/toolhive-catalog-server/internal/app/storage/auth"
	"github.com/stacklok/toolhive-catalog-server/internal/config"
	"github.com/stacklok/toolhive-catalog-server/internal/storage"
	"github.com/stacklok/toolhive-catalog-server/internal/storage/postgres"
)

// DatabaseFactory opens the PostgreSQL store over a shared connection pool.
type DatabaseFactory struct {
	config *config.DatabaseConfig
	pool   *pgxpool.Pool
	store  *postgres.Store
}

var _ Factory = (*DatabaseFactory)(nil)

// NewDatabaseFactory establishes the connection pool, running pending
// migrations first when autoMigrate is set.
func NewDatabaseFactory(ctx context.Context, cfg *config.Config) (*DatabaseFactory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Database == nil {
		return nil, fmt.Errorf("database configuration is required for postgres storage type")
	}

	slog.Info("Creating database-backed storage factory",
		"host", cfg.Database.Host,
		"database", cfg.Database.Database)

	if cfg.Database.AutoMigrate {
		if err := migrate(ctx, cfg.Database); err != nil {
			return nil, err
		}
	}

	pool, err := buildDatabaseConnectionPool(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection pool: %w", err)
	}

	return &DatabaseFactory{config: cfg.Database, pool: pool}, nil
}

// CreateStore wraps the pool in a PostgreSQL store.
func (d *DatabaseFactory) CreateStore(_ context.Context) (storage.Store, error) {
	if d.store == nil {
		d.store = postgres.New(d.pool)
	}
	return d.store, nil
}

// Cleanup closes the connection pool.
func (d *DatabaseFactory) Cleanup() {
	if d.pool != nil {
		slog.Info("Closing database connection pool")
		d.pool.Close()
		d.pool = nil
	}
}

// MigrationConnectionString returns a connection string usable by the
// migrator, with a one-off token in place of the password under dynamic auth.
func MigrationConnectionString(ctx context.Context, cfg *config.DatabaseConfig) (string, error) {
	if cfg.DynamicAuth == nil {
		return cfg.GetConnectionString()
	}
	token, err := auth.ResolveAuthToken(ctx, cfg, cfg.User)
	if err != nil {
		return "", fmt.Errorf("failed to resolve database auth token: %w", err)
	}
	return cfg.ConnectionStringWithPassword(token), nil
}

func migrate(ctx context.Context, cfg *config.DatabaseConfig) error {
	connString, err := MigrationConnectionString(ctx, cfg)
	if err != nil {
		return err
	}
	slog.Info("Applying database migrations")
	if err := database.MigrateUp(ctx, connString); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// buildDatabaseConnectionPool creates a pool sized from the configuration.
func buildDatabaseConnectionPool(ctx context.Context, cfg *config.DatabaseConfig) (*pgxpool.Pool, error) {
	connStr, err := cfg.GetConnectionString()
	if err != nil {
		return nil, err
	}

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database connection string: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = cfg.MaxOpenConns
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = cfg.MaxIdleConns
	}
	if lifetime := cfg.GetConnMaxLifetime(); lifetime > 0 {
		poolConfig.MaxConnLifetime = lifetime
	}

	beforeConnect, err := auth.BeforeConnect(ctx, cfg, cfg.User)
	if err != nil {
		return nil, fmt.Errorf("failed to configure dynamic auth: %w", err)
	}
	if beforeConnect != nil {
		poolConfig.BeforeConnect = beforeConnect
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection pool: %w", err)
	}

	slog.Info("Database connection pool created successfully")
	return pool, nil
}
