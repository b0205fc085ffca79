package aws

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/toolhive-catalog-server/internal/config"
)

func rdsConfig(region string) *config.DatabaseConfig {
	return &config.DatabaseConfig{
		Host:     "catalog.cluster.example.com",
		Port:     5432,
		User:     "catalog",
		Database: "catalog",
		DynamicAuth: &config.DynamicAuthConfig{
			AWSRDSIAM: &config.DynamicAuthAWSRDSIAM{Region: region},
		},
	}
}

// fakeSource returns a TokenSource whose builder counts calls and whose clock
// is driven by the test.
func fakeSource(now *time.Time, calls *int, err error) *TokenSource {
	return &TokenSource{
		endpoint: "catalog.cluster.example.com:5432",
		region:   "eu-west-1",
		build: func(context.Context) (string, error) {
			if err != nil {
				return "", err
			}
			*calls++
			return "catalog.cluster.example.com:5432/eu-west-1/catalog/" + time.Duration(*calls).String(), nil
		},
		now: func() time.Time { return *now },
	}
}

func TestNewTokenSource(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     *config.DatabaseConfig
		wantErr string
	}{
		{name: "static region", cfg: rdsConfig("us-east-1")},
		{name: "missing region", cfg: rdsConfig(""), wantErr: "region is not configured"},
		{name: "not configured", cfg: &config.DatabaseConfig{Host: "db", Port: 5432}, wantErr: "not configured"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			src, err := NewTokenSource(context.Background(), tt.cfg, "catalog")
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "us-east-1", src.Region())
			assert.Equal(t, "catalog.cluster.example.com:5432", src.endpoint)
		})
	}
}

func TestTokenSource_ReusesUntilExpiry(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	calls := 0
	src := fakeSource(&now, &calls, nil)

	first, err := src.Token(context.Background())
	require.NoError(t, err)
	assert.Contains(t, first, "catalog.cluster.example.com:5432/eu-west-1/catalog")

	now = now.Add(tokenReuse - time.Second)
	again, err := src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.Equal(t, 1, calls)

	now = now.Add(2 * time.Second)
	fresh, err := src.Token(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first, fresh)
	assert.Equal(t, 2, calls)
}

func TestTokenSource_BeforeConnect(t *testing.T) {
	t.Parallel()

	now := time.Now()
	calls := 0
	src := fakeSource(&now, &calls, nil)

	connConfig := &pgx.ConnConfig{}
	require.NoError(t, src.BeforeConnect(context.Background(), connConfig))
	assert.NotEmpty(t, connConfig.Password)

	failing := fakeSource(&now, &calls, errors.New("no credentials"))
	err := failing.BeforeConnect(context.Background(), &pgx.ConnConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to build authentication token")
}
