package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		yamlContent string
		wantErr     string
		check       func(t *testing.T, cfg *Config)
	}{
		{
			name:        "empty_config_uses_defaults",
			yamlContent: `{}`,
			check: func(t *testing.T, cfg *Config) {
				t.Helper()
				assert.Equal(t, StorageTypeSQLite, cfg.GetStorageType())
				assert.Equal(t, defaultSQLitePath, cfg.GetSQLitePath())
				assert.Equal(t, time.Hour, cfg.Sync.GetInterval())
				assert.Equal(t, 50, cfg.Sync.GetBatchSize())
				assert.True(t, cfg.Sync.IsEnabled())
				assert.Equal(t, 5*time.Minute, cfg.Cache.GetTTL())
				assert.Equal(t, "database-first", cfg.Service.GetStrategy())
				assert.True(t, cfg.Service.FallbackEnabled())
				assert.Equal(t, PositionPersistenceMemory, cfg.GetPositionPersistence())
				assert.Equal(t, 3, cfg.Retry.Policy().MaxRetries)
				assert.Equal(t, time.Second, cfg.Retry.Policy().BaseDelay)
				assert.Equal(t, 100, cfg.GetWeights().HighTierMin)
			},
		},
		{
			name: "full_config",
			yamlContent: `github:
  host: github.example.com
  queries: ["mcp server", "topic:mcp"]
  perPage: 30
  maxCatalogSize: 200
  timeout: 10s
  filter:
    names:
      include: ["acme/*"]
    topics:
      exclude: [deprecated]
retry:
  maxRetries: 0
  baseDelay: 250ms
  attemptTimeout: 5s
scoring:
  high:
    keywords: [mcp]
    weights: {name: 40, description: 20, topic: 10}
  highTierMin: 80
  mediumTierMin: 40
sync:
  enabled: false
  interval: 30m
  batchSize: 25
  window:
    start: "22:00"
    end: "06:00"
  position:
    persistence: file
    file: /tmp/pos.json
  enrich: true
cache:
  ttl: 1m
service:
  strategy: GitHub-First
  fallback: false
enrichment:
  enabled: true
  endpoint: http://oracle.local/analyze
  timeout: 3s
storage:
  type: postgres
database:
  host: db
  port: 5432
  user: catalog
  database: catalog
  connMaxLifetime: 30m`,
			check: func(t *testing.T, cfg *Config) {
				t.Helper()
				assert.Equal(t, "github.example.com", cfg.GitHub.Host)
				assert.Equal(t, []string{"mcp server", "topic:mcp"}, cfg.GitHub.Queries)
				assert.Equal(t, 10*time.Second, cfg.GitHub.GetTimeout())
				require.NotNil(t, cfg.GitHub.Filter)
				assert.Equal(t, []string{"acme/*"}, cfg.GitHub.Filter.Names.Include)
				assert.Equal(t, []string{"deprecated"}, cfg.GitHub.Filter.Topics.Exclude)
				p := cfg.Retry.Policy()
				assert.Equal(t, 0, p.MaxRetries)
				assert.Equal(t, 250*time.Millisecond, p.BaseDelay)
				assert.Equal(t, 5*time.Second, p.AttemptTimeout)
				assert.Equal(t, 80, cfg.GetWeights().HighTierMin)
				assert.Equal(t, []string{"mcp"}, cfg.GetWeights().High.Keywords)
				assert.False(t, cfg.Sync.IsEnabled())
				assert.Equal(t, 30*time.Minute, cfg.Sync.GetInterval())
				assert.Equal(t, 25, cfg.Sync.GetBatchSize())
				assert.Equal(t, "22:00", cfg.Sync.Window.Start)
				assert.Equal(t, PositionPersistenceFile, cfg.GetPositionPersistence())
				assert.Equal(t, "/tmp/pos.json", cfg.Sync.GetPositionFile())
				assert.True(t, cfg.Sync.Enrich)
				assert.Equal(t, time.Minute, cfg.Cache.GetTTL())
				assert.Equal(t, "github-first", cfg.Service.GetStrategy())
				assert.False(t, cfg.Service.FallbackEnabled())
				assert.Equal(t, 3*time.Second, cfg.Enrichment.GetTimeout())
				assert.Equal(t, StorageTypePostgres, cfg.GetStorageType())
				assert.Equal(t, 30*time.Minute, cfg.Database.GetConnMaxLifetime())
			},
		},
		{
			name:        "invalid_yaml",
			yamlContent: "github: [",
			wantErr:     "failed to parse YAML config",
		},
		{
			name:        "bad_duration",
			yamlContent: "sync:\n  interval: soon",
			wantErr:     "sync.interval must be a valid duration",
		},
		{
			name:        "bad_window",
			yamlContent: "sync:\n  window:\n    start: \"25:00\"\n    end: \"06:00\"",
			wantErr:     "sync.window.start must be HH:MM",
		},
		{
			name:        "unknown_strategy",
			yamlContent: "service:\n  strategy: cache-only",
			wantErr:     "unknown strategy",
		},
		{
			name:        "postgres_without_database",
			yamlContent: "storage:\n  type: postgres",
			wantErr:     "requires a database section",
		},
		{
			name:        "unknown_storage",
			yamlContent: "storage:\n  type: mongo",
			wantErr:     "unknown type",
		},
		{
			name:        "enrichment_without_endpoint",
			yamlContent: "enrichment:\n  enabled: true",
			wantErr:     "enrichment.endpoint is required",
		},
		{
			name:        "per_page_out_of_range",
			yamlContent: "github:\n  perPage: 500",
			wantErr:     "github.perPage",
		},
		{
			name:        "bad_filter_pattern",
			yamlContent: "github:\n  filter:\n    names:\n      include: [\"[abc\"]",
			wantErr:     "github.filter",
		},
		{
			name:        "bad_scoring",
			yamlContent: "scoring:\n  highTierMin: 10\n  mediumTierMin: 20",
			wantErr:     "scoring:",
		},
		{
			name:        "unknown_position_persistence",
			yamlContent: "sync:\n  position:\n    persistence: redis",
			wantErr:     "sync.position.persistence",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := writeConfig(t, tt.yamlContent)
			cfg, err := LoadConfig(WithConfigPath(path))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestLoadConfig_RequiresPath(t *testing.T) {
	t.Parallel()

	_, err := LoadConfig()
	require.Error(t, err)

	_, err = LoadConfig(WithConfigPath(""))
	require.Error(t, err)

	_, err = LoadConfig(WithConfigPath(filepath.Join(t.TempDir(), "missing.yaml")))
	require.Error(t, err)
}

func TestDatabaseConfig_GetPassword(t *testing.T) {
	// Not parallel: modifies environment.
	dir := t.TempDir()
	pwFile := filepath.Join(dir, "pw")
	require.NoError(t, os.WriteFile(pwFile, []byte("  s3cret\n"), 0600))

	d := &DatabaseConfig{PasswordFile: pwFile}
	pw, err := d.GetPassword()
	require.NoError(t, err)
	assert.Equal(t, "s3cret", pw)

	t.Setenv(EnvPrefix+"_DATABASE_PASSWORD", "from-env")
	d = &DatabaseConfig{}
	pw, err = d.GetPassword()
	require.NoError(t, err)
	assert.Equal(t, "from-env", pw)

	t.Setenv(EnvPrefix+"_DATABASE_PASSWORD", "")
	_, err = d.GetPassword()
	require.Error(t, err)
}

func TestDatabaseConfig_GetConnectionString(t *testing.T) {
	t.Setenv(EnvPrefix+"_DATABASE_PASSWORD", "p@ss word")

	d := &DatabaseConfig{Host: "db", Port: 5432, User: "app", Database: "catalog"}
	conn, err := d.GetConnectionString()
	require.NoError(t, err)
	assert.Equal(t, "postgres://app:p%40ss+word@db:5432/catalog?sslmode=require", conn)

	d.SSLMode = "disable"
	conn, err = d.GetConnectionString()
	require.NoError(t, err)
	assert.Contains(t, conn, "sslmode=disable")

	d.DynamicAuth = &DynamicAuthConfig{AWSRDSIAM: &DynamicAuthAWSRDSIAM{Region: "us-east-1"}}
	conn, err = d.GetConnectionString()
	require.NoError(t, err)
	assert.Equal(t, "postgres://app@db:5432/catalog?sslmode=disable", conn)
}

func TestGitHubConfig_GetToken(t *testing.T) {
	dir := t.TempDir()
	tokenFile := filepath.Join(dir, "token")
	require.NoError(t, os.WriteFile(tokenFile, []byte("ghp_file\n"), 0600))

	g := &GitHubConfig{TokenFile: tokenFile}
	token, err := g.GetToken()
	require.NoError(t, err)
	assert.Equal(t, "ghp_file", token)

	t.Setenv(EnvPrefix+"_GITHUB_TOKEN", "")
	t.Setenv("GITHUB_TOKEN", "ghp_generic")
	g = &GitHubConfig{}
	token, err = g.GetToken()
	require.NoError(t, err)
	assert.Equal(t, "ghp_generic", token)

	t.Setenv(EnvPrefix+"_GITHUB_TOKEN", "ghp_prefixed")
	token, err = g.GetToken()
	require.NoError(t, err)
	assert.Equal(t, "ghp_prefixed", token)

	t.Setenv(EnvPrefix+"_GITHUB_TOKEN", "")
	t.Setenv("GITHUB_TOKEN", "")
	_, err = g.GetToken()
	require.Error(t, err)
}

func TestEnrichmentConfig_GetAPIKey(t *testing.T) {
	keyFile := filepath.Join(t.TempDir(), "key")
	require.NoError(t, os.WriteFile(keyFile, []byte(" sk-file \n"), 0600))

	e := &EnrichmentConfig{APIKeyFile: keyFile}
	key, err := e.GetAPIKey()
	require.NoError(t, err)
	assert.Equal(t, "sk-file", key)

	t.Setenv(EnvPrefix+"_ENRICHMENT_API_KEY", "sk-env")
	key, err = (&EnrichmentConfig{}).GetAPIKey()
	require.NoError(t, err)
	assert.Equal(t, "sk-env", key)

	_, err = (&EnrichmentConfig{APIKeyFile: filepath.Join(t.TempDir(), "missing")}).GetAPIKey()
	require.Error(t, err)
}
