// Package config provides configuration loading and management for the catalog server.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stacklok/toolhive-catalog-server/internal/filtering"
	"github.com/stacklok/toolhive-catalog-server/internal/retry"
	"github.com/stacklok/toolhive-catalog-server/internal/scoring"
	"github.com/stacklok/toolhive-catalog-server/internal/telemetry"
)

// EnvPrefix is the prefix of every environment variable read by the server.
const EnvPrefix = "THV_CATALOG"

const (
	// StorageTypeSQLite stores the catalog in an embedded SQLite file
	StorageTypeSQLite = "sqlite"

	// StorageTypePostgres stores the catalog in PostgreSQL
	StorageTypePostgres = "postgres"
)

const (
	// PositionPersistenceMemory keeps the sync cursor in memory only
	PositionPersistenceMemory = "memory"

	// PositionPersistenceFile stores the sync cursor in a JSON file
	PositionPersistenceFile = "file"

	// PositionPersistenceDatabase stores the sync cursor in the catalog store
	PositionPersistenceDatabase = "database"
)

const (
	defaultSyncInterval  = time.Hour
	defaultBatchSize     = 50
	defaultCacheTTL      = 5 * time.Minute
	defaultStrategy      = "database-first"
	defaultSQLitePath    = "./data/catalog.db"
	defaultPositionFile  = "./data/sync-position.json"
	defaultGitHubTimeout = 30 * time.Second
	defaultOracleTimeout = 20 * time.Second
	windowLayout         = "15:04"
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks; this also cleans the path.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		if !filepath.IsAbs(realPath) && !filepath.IsLocal(realPath) {
			return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	GitHub     GitHubConfig      `yaml:"github"`
	Retry      RetryConfig       `yaml:"retry,omitempty"`
	Scoring    *scoring.Weights  `yaml:"scoring,omitempty"`
	Sync       SyncConfig        `yaml:"sync,omitempty"`
	Cache      CacheConfig       `yaml:"cache,omitempty"`
	Service    ServiceConfig     `yaml:"service,omitempty"`
	Enrichment *EnrichmentConfig `yaml:"enrichment,omitempty"`
	Storage    StorageConfig     `yaml:"storage,omitempty"`
	SQLite     *SQLiteConfig     `yaml:"sqlite,omitempty"`
	Database   *DatabaseConfig   `yaml:"database,omitempty"`
	Telemetry  *telemetry.Config `yaml:"telemetry,omitempty"`
}

// GitHubConfig configures discovery through the GitHub search API
type GitHubConfig struct {
	// Host is the GitHub host; defaults to github.com
	Host string `yaml:"host,omitempty"`

	// TokenFile is the path to a file containing the API token
	TokenFile string `yaml:"tokenFile,omitempty"`

	// Queries is the ordered discovery query set
	Queries []string `yaml:"queries,omitempty"`

	// PerPage is the page size requested per query (max 100)
	PerPage int `yaml:"perPage,omitempty"`

	// MaxCatalogSize caps the ranked catalog
	MaxCatalogSize int `yaml:"maxCatalogSize,omitempty"`

	// Timeout bounds one search request (e.g. "30s")
	Timeout string `yaml:"timeout,omitempty"`

	// Filter restricts which discovered repositories enter the catalog
	Filter *filtering.Config `yaml:"filter,omitempty"`
}

// RetryConfig configures retries of outbound search calls
type RetryConfig struct {
	MaxRetries     *int   `yaml:"maxRetries,omitempty"`
	BaseDelay      string `yaml:"baseDelay,omitempty"`
	AttemptTimeout string `yaml:"attemptTimeout,omitempty"`
}

// SyncConfig configures the background synchronization loop
type SyncConfig struct {
	// Enabled turns the scheduled loop on; manual triggers always work
	Enabled *bool `yaml:"enabled,omitempty"`

	// Interval between scheduled cycles (e.g. "1h")
	Interval string `yaml:"interval,omitempty"`

	// BatchSize is the number of ranked items persisted per cycle
	BatchSize int `yaml:"batchSize,omitempty"`

	// Window restricts scheduled cycles to a time of day
	Window *WindowConfig `yaml:"window,omitempty"`

	// Position configures persistence of the sync cursor
	Position PositionConfig `yaml:"position,omitempty"`

	// Enrich runs the enrichment oracle on newly stored items
	Enrich bool `yaml:"enrich,omitempty"`
}

// WindowConfig is a daily "HH:MM"-"HH:MM" window, possibly wrapping midnight
type WindowConfig struct {
	Start    string `yaml:"start"`
	End      string `yaml:"end"`
	Location string `yaml:"location,omitempty"`
}

// PositionConfig configures sync cursor persistence
type PositionConfig struct {
	Persistence string `yaml:"persistence,omitempty"`
	File        string `yaml:"file,omitempty"`
}

// CacheConfig configures the read-path cache
type CacheConfig struct {
	TTL string `yaml:"ttl,omitempty"`
}

// ServiceConfig configures the read path
type ServiceConfig struct {
	// Strategy is one of database-first, github-first, database-only, github-only
	Strategy string `yaml:"strategy,omitempty"`

	// Fallback lets *-first strategies fall through to the other source
	Fallback *bool `yaml:"fallback,omitempty"`
}

// EnrichmentConfig configures the external analysis oracle
type EnrichmentConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Endpoint   string `yaml:"endpoint,omitempty"`
	Timeout    string `yaml:"timeout,omitempty"`
	APIKeyFile string `yaml:"apiKeyFile,omitempty"`
}

// StorageConfig selects the durable store
type StorageConfig struct {
	Type string `yaml:"type,omitempty"`
}

// SQLiteConfig configures the embedded store
type SQLiteConfig struct {
	Path string `yaml:"path,omitempty"`
}

// DatabaseConfig defines database connection settings
type DatabaseConfig struct {
	// Host is the database server hostname or IP address
	Host string `yaml:"host"`

	// Port is the database server port
	Port int `yaml:"port"`

	// User is the database username
	User string `yaml:"user"`

	// PasswordFile is the path to a file containing the database password
	// The file should contain only the password with optional trailing whitespace
	PasswordFile string `yaml:"passwordFile,omitempty"`

	// Database is the database name
	Database string `yaml:"database"`

	// SSLMode is the SSL mode for the connection (disable, require, verify-ca, verify-full)
	SSLMode string `yaml:"sslMode,omitempty"`

	// MaxOpenConns is the maximum number of open connections to the database
	MaxOpenConns int32 `yaml:"maxOpenConns,omitempty"`

	// MaxIdleConns is the minimum number of connections kept in the pool
	MaxIdleConns int32 `yaml:"maxIdleConns,omitempty"`

	// ConnMaxLifetime is the maximum lifetime of a connection (e.g., "1h", "30m")
	ConnMaxLifetime string `yaml:"connMaxLifetime,omitempty"`

	// AutoMigrate applies pending schema migrations when the store is opened
	AutoMigrate bool `yaml:"autoMigrate,omitempty"`

	// DynamicAuth replaces the static password with short-lived tokens
	DynamicAuth *DynamicAuthConfig `yaml:"dynamicAuth,omitempty"`
}

// DynamicAuthConfig selects a token-based database authentication method
type DynamicAuthConfig struct {
	AWSRDSIAM *DynamicAuthAWSRDSIAM `yaml:"awsRdsIam,omitempty"`
}

// DynamicAuthAWSRDSIAM authenticates with AWS RDS IAM tokens
type DynamicAuthAWSRDSIAM struct {
	// Region is the AWS region of the database, or "detect" to read it
	// from the instance metadata service
	Region string `yaml:"region"`
}

// LoadConfig loads and parses configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Scoring keys that are not set keep their default values.
	weights := scoring.DefaultWeights()
	config := Config{Scoring: &weights}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	var errs []error

	if c.GitHub.PerPage < 0 || c.GitHub.PerPage > 100 {
		errs = append(errs, fmt.Errorf("github.perPage must be between 1 and 100, got %d", c.GitHub.PerPage))
	}
	if c.GitHub.MaxCatalogSize < 0 {
		errs = append(errs, fmt.Errorf("github.maxCatalogSize must be positive, got %d", c.GitHub.MaxCatalogSize))
	}
	for i, q := range c.GitHub.Queries {
		if strings.TrimSpace(q) == "" {
			errs = append(errs, fmt.Errorf("github.queries[%d]: query must not be empty", i))
		}
	}
	if c.GitHub.Filter != nil {
		if _, err := filtering.New(*c.GitHub.Filter); err != nil {
			errs = append(errs, fmt.Errorf("github.filter: %w", err))
		}
	}

	errs = append(errs,
		validateDuration("github.timeout", c.GitHub.Timeout),
		validateDuration("retry.baseDelay", c.Retry.BaseDelay),
		validateDuration("retry.attemptTimeout", c.Retry.AttemptTimeout),
		validateDuration("sync.interval", c.Sync.Interval),
		validateDuration("cache.ttl", c.Cache.TTL),
	)
	if c.Retry.MaxRetries != nil && *c.Retry.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("retry.maxRetries must be non-negative, got %d", *c.Retry.MaxRetries))
	}

	if c.Scoring != nil {
		if err := c.Scoring.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("scoring: %w", err))
		}
	}

	errs = append(errs, c.validateSync()...)

	switch strings.ToLower(c.Service.Strategy) {
	case "", "database-first", "github-first", "database-only", "github-only":
	default:
		errs = append(errs, fmt.Errorf("service.strategy: unknown strategy %q", c.Service.Strategy))
	}

	if c.Enrichment != nil && c.Enrichment.Enabled {
		if c.Enrichment.Endpoint == "" {
			errs = append(errs, fmt.Errorf("enrichment.endpoint is required when enrichment is enabled"))
		} else if u, err := url.Parse(c.Enrichment.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("enrichment.endpoint must be an absolute URL, got %q", c.Enrichment.Endpoint))
		}
		errs = append(errs, validateDuration("enrichment.timeout", c.Enrichment.Timeout))
	}

	switch c.GetStorageType() {
	case StorageTypeSQLite:
	case StorageTypePostgres:
		if c.Database == nil {
			errs = append(errs, fmt.Errorf("storage.type %q requires a database section", StorageTypePostgres))
		} else if err := c.Database.validate(); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.type: unknown type %q", c.Storage.Type))
	}

	if err := c.Telemetry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}

	return errors.Join(errs...)
}

func (c *Config) validateSync() []error {
	var errs []error
	if c.Sync.BatchSize < 0 {
		errs = append(errs, fmt.Errorf("sync.batchSize must be positive, got %d", c.Sync.BatchSize))
	}
	if w := c.Sync.Window; w != nil {
		if _, err := time.Parse(windowLayout, w.Start); err != nil {
			errs = append(errs, fmt.Errorf("sync.window.start must be HH:MM, got %q", w.Start))
		}
		if _, err := time.Parse(windowLayout, w.End); err != nil {
			errs = append(errs, fmt.Errorf("sync.window.end must be HH:MM, got %q", w.End))
		}
		if w.Location != "" {
			if _, err := time.LoadLocation(w.Location); err != nil {
				errs = append(errs, fmt.Errorf("sync.window.location: %w", err))
			}
		}
	}
	switch c.GetPositionPersistence() {
	case PositionPersistenceMemory, PositionPersistenceFile, PositionPersistenceDatabase:
	default:
		errs = append(errs, fmt.Errorf("sync.position.persistence: unknown value %q", c.Sync.Position.Persistence))
	}
	return errs
}

func (d *DatabaseConfig) validate() error {
	var errs []error
	if d.Host == "" {
		errs = append(errs, fmt.Errorf("host is required"))
	}
	if d.Port == 0 {
		errs = append(errs, fmt.Errorf("port is required"))
	}
	if d.User == "" {
		errs = append(errs, fmt.Errorf("user is required"))
	}
	if d.Database == "" {
		errs = append(errs, fmt.Errorf("database name is required"))
	}
	errs = append(errs, validateDuration("connMaxLifetime", d.ConnMaxLifetime))
	return errors.Join(errs...)
}

func validateDuration(field, value string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s must be a valid duration (e.g., '30s', '1h'): %w", field, err)
	}
	if d < 0 {
		return fmt.Errorf("%s must not be negative", field)
	}
	return nil
}

// parseDuration returns the parsed value or def when unset. Values are
// validated at load time.
func parseDuration(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return d
}

// GetToken returns the GitHub token using the following priority:
// 1. Read from TokenFile if specified
// 2. THV_CATALOG_GITHUB_TOKEN environment variable
// 3. GITHUB_TOKEN environment variable
func (g *GitHubConfig) GetToken() (string, error) {
	if g.TokenFile != "" {
		data, err := os.ReadFile(filepath.Clean(g.TokenFile))
		if err != nil {
			return "", fmt.Errorf("failed to read GitHub token from file %s: %w", g.TokenFile, err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	if token := os.Getenv(EnvPrefix + "_GITHUB_TOKEN"); token != "" {
		return token, nil
	}
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		return token, nil
	}
	return "", fmt.Errorf(
		"no GitHub token configured: set github.tokenFile, %s_GITHUB_TOKEN or GITHUB_TOKEN", EnvPrefix)
}

// GetTimeout returns the per-request search timeout
func (g *GitHubConfig) GetTimeout() time.Duration {
	return parseDuration(g.Timeout, defaultGitHubTimeout)
}

// Policy converts the retry configuration into a retry.Policy
func (r *RetryConfig) Policy() retry.Policy {
	p := retry.DefaultPolicy()
	if r.MaxRetries != nil {
		p.MaxRetries = *r.MaxRetries
	}
	p.BaseDelay = parseDuration(r.BaseDelay, p.BaseDelay)
	p.AttemptTimeout = parseDuration(r.AttemptTimeout, 0)
	return p
}

// GetWeights returns the configured scoring weights or the defaults
func (c *Config) GetWeights() scoring.Weights {
	if c.Scoring == nil {
		return scoring.DefaultWeights()
	}
	return *c.Scoring
}

// IsEnabled reports whether the scheduled loop runs; defaults to true
func (s *SyncConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// GetInterval returns the scheduled sync interval
func (s *SyncConfig) GetInterval() time.Duration {
	return parseDuration(s.Interval, defaultSyncInterval)
}

// GetBatchSize returns the number of items persisted per cycle
func (s *SyncConfig) GetBatchSize() int {
	if s.BatchSize <= 0 {
		return defaultBatchSize
	}
	return s.BatchSize
}

// GetPositionFile returns the path of the cursor file
func (s *SyncConfig) GetPositionFile() string {
	if s.Position.File == "" {
		return defaultPositionFile
	}
	return s.Position.File
}

// GetPositionPersistence returns the configured cursor persistence
func (c *Config) GetPositionPersistence() string {
	if c.Sync.Position.Persistence == "" {
		return PositionPersistenceMemory
	}
	return strings.ToLower(c.Sync.Position.Persistence)
}

// GetTTL returns the cache time-to-live
func (c *CacheConfig) GetTTL() time.Duration {
	return parseDuration(c.TTL, defaultCacheTTL)
}

// GetStrategy returns the configured default read strategy
func (s *ServiceConfig) GetStrategy() string {
	if s.Strategy == "" {
		return defaultStrategy
	}
	return strings.ToLower(s.Strategy)
}

// FallbackEnabled reports whether *-first strategies may fall through
func (s *ServiceConfig) FallbackEnabled() bool {
	return s.Fallback == nil || *s.Fallback
}

// GetTimeout returns the oracle request timeout
func (e *EnrichmentConfig) GetTimeout() time.Duration {
	return parseDuration(e.Timeout, defaultOracleTimeout)
}

// GetAPIKey returns the oracle API key from APIKeyFile or the
// THV_CATALOG_ENRICHMENT_API_KEY environment variable. An empty key is valid.
func (e *EnrichmentConfig) GetAPIKey() (string, error) {
	if e.APIKeyFile != "" {
		data, err := os.ReadFile(filepath.Clean(e.APIKeyFile))
		if err != nil {
			return "", fmt.Errorf("failed to read enrichment API key from file %s: %w", e.APIKeyFile, err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	return os.Getenv(EnvPrefix + "_ENRICHMENT_API_KEY"), nil
}

// GetStorageType returns the configured store type; defaults to sqlite
func (c *Config) GetStorageType() string {
	if c.Storage.Type == "" {
		return StorageTypeSQLite
	}
	return strings.ToLower(c.Storage.Type)
}

// GetSQLitePath returns the SQLite database path
func (c *Config) GetSQLitePath() string {
	if c.SQLite == nil || c.SQLite.Path == "" {
		return defaultSQLitePath
	}
	return c.SQLite.Path
}

// GetPassword returns the database password using the following priority:
// 1. Read from PasswordFile if specified
// 2. Read from THV_CATALOG_DATABASE_PASSWORD environment variable
//
// The password from file will have leading/trailing whitespace trimmed.
func (d *DatabaseConfig) GetPassword() (string, error) {
	if d.PasswordFile != "" {
		data, err := os.ReadFile(filepath.Clean(d.PasswordFile))
		if err != nil {
			return "", fmt.Errorf("failed to read password from file %s: %w", d.PasswordFile, err)
		}
		return strings.TrimSpace(string(data)), nil
	}

	if envPassword := os.Getenv(EnvPrefix + "_DATABASE_PASSWORD"); envPassword != "" {
		return envPassword, nil
	}

	return "", fmt.Errorf(
		"no database password configured: set passwordFile or %s_DATABASE_PASSWORD environment variable", EnvPrefix,
	)
}

// GetConnectionString builds a PostgreSQL connection string with proper password handling.
// The password is URL-escaped to handle special characters safely. With dynamic
// auth the password is left out and supplied per connection.
func (d *DatabaseConfig) GetConnectionString() (string, error) {
	if d.DynamicAuth != nil {
		return d.ConnectionStringWithPassword(""), nil
	}
	password, err := d.GetPassword()
	if err != nil {
		return "", err
	}
	return d.ConnectionStringWithPassword(password), nil
}

// ConnectionStringWithPassword builds the connection string for an explicit password
func (d *DatabaseConfig) ConnectionStringWithPassword(password string) string {
	userInfo := url.QueryEscape(d.User)
	if password != "" {
		userInfo += ":" + url.QueryEscape(password)
	}

	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}

	return fmt.Sprintf(
		"postgres://%s@%s:%d/%s?sslmode=%s",
		userInfo,
		d.Host,
		d.Port,
		d.Database,
		sslMode,
	)
}

// GetConnMaxLifetime returns the pool connection lifetime, zero when unset
func (d *DatabaseConfig) GetConnMaxLifetime() time.Duration {
	return parseDuration(d.ConnMaxLifetime, 0)
}
