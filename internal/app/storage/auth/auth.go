// Package auth resolves short-lived database credentials for the PostgreSQL store.
package auth

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/stacklok/toolhive-catalog-server/internal/app/storage/auth/aws"
	"github.com/stacklok/toolhive-catalog-server/internal/config"
)

var errNoMethod = errors.New("dynamic auth is configured but no supported auth method (e.g., awsRdsIam) is specified")

// ResolveAuthToken returns a one-off token usable as the password of a
// connection string, or "" when dynamic auth is not configured. Used by
// short-lived connections such as migrations where no BeforeConnect hook runs.
func ResolveAuthToken(ctx context.Context, cfg *config.DatabaseConfig, user string) (string, error) {
	if cfg == nil {
		return "", errors.New("database configuration is required")
	}
	if cfg.DynamicAuth == nil {
		return "", nil
	}
	if cfg.DynamicAuth.AWSRDSIAM != nil {
		src, err := aws.NewTokenSource(ctx, cfg, user)
		if err != nil {
			return "", err
		}
		return src.Token(ctx)
	}
	return "", errNoMethod
}

// BeforeConnect returns a pgx hook that fills in a fresh token for every new
// pool connection. It returns nil, nil when dynamic auth is not configured.
func BeforeConnect(
	ctx context.Context,
	cfg *config.DatabaseConfig,
	user string,
) (func(ctx context.Context, connConfig *pgx.ConnConfig) error, error) {
	if cfg == nil {
		return nil, errors.New("database configuration is required")
	}
	if cfg.DynamicAuth == nil {
		return nil, nil
	}
	if cfg.DynamicAuth.AWSRDSIAM != nil {
		src, err := aws.NewTokenSource(ctx, cfg, user)
		if err != nil {
			return nil, err
		}
		return src.BeforeConnect, nil
	}
	return nil, errNoMethod
}
