// Package aws issues AWS RDS IAM authentication tokens for the catalog's
// PostgreSQL connections.
package aws

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	"github.com/aws/aws-sdk-go-v2/feature/rds/auth"
	"github.com/jackc/pgx/v5"

	"github.com/stacklok/toolhive-catalog-server/internal/config"
)

const (
	// RegionDetect makes the region come from the instance metadata service
	RegionDetect = "detect"

	imdsTimeout = 2 * time.Second

	// RDS tokens are valid for 15 minutes; reuse one for at most 10.
	tokenReuse = 10 * time.Minute
)

// TokenSource builds RDS IAM tokens for one database user and reuses each
// token while it is comfortably inside its validity period.
type TokenSource struct {
	endpoint string
	region   string
	build    func(ctx context.Context) (string, error)
	now      func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewTokenSource resolves the region (once, from IMDS under "detect") and
// the default AWS credential chain for cfg.
func NewTokenSource(ctx context.Context, cfg *config.DatabaseConfig, user string) (*TokenSource, error) {
	if cfg.DynamicAuth == nil || cfg.DynamicAuth.AWSRDSIAM == nil {
		return nil, fmt.Errorf("AWS RDS IAM auth is not configured")
	}
	region, err := resolveRegion(ctx, cfg.DynamicAuth.AWSRDSIAM.Region)
	if err != nil {
		return nil, err
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	endpoint := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	creds := awsCfg.Credentials
	return &TokenSource{
		endpoint: endpoint,
		region:   region,
		build: func(ctx context.Context) (string, error) {
			return auth.BuildAuthToken(ctx, endpoint, region, user, creds)
		},
		now: time.Now,
	}, nil
}

func resolveRegion(ctx context.Context, region string) (string, error) {
	switch region {
	case "":
		return "", fmt.Errorf("AWS RDS IAM region is not configured")
	case RegionDetect:
		client := imds.New(imds.Options{HTTPClient: &http.Client{Timeout: imdsTimeout}})
		out, err := client.GetRegion(ctx, &imds.GetRegionInput{})
		if err != nil {
			return "", fmt.Errorf("failed to get region from IMDS: %w", err)
		}
		return out.Region, nil
	default:
		return region, nil
	}
}

// Region returns the resolved AWS region
func (s *TokenSource) Region() string {
	return s.region
}

// Token returns a valid token, building a new one when the cached token is
// missing or too old.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && s.now().Before(s.expires) {
		return s.token, nil
	}

	token, err := s.build(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to build authentication token: %w", err)
	}
	s.token = token
	s.expires = s.now().Add(tokenReuse)
	return token, nil
}

// BeforeConnect is a pgx hook setting the token as the connection password.
func (s *TokenSource) BeforeConnect(ctx context.Context, connConfig *pgx.ConnConfig) error {
	token, err := s.Token(ctx)
	if err != nil {
		return err
	}
	connConfig.Password = token
	return nil
}
