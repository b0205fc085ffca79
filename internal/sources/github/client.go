// Package github implements repository discovery against the GitHub search API.
package github

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cli/go-gh/v2/pkg/api"

	"github.com/stacklok/toolhive-catalog-server/internal/catalog"
)

const (
	// DefaultHost is the public GitHub host
	DefaultHost = "github.com"

	// MaxPerPage is the largest page size the search API accepts
	MaxPerPage = 100

	// DefaultTimeout bounds a single search request
	DefaultTimeout = 30 * time.Second

	searchPath = "search/repositories"
)

// ErrMissingToken is returned when no GitHub token is configured.
var ErrMissingToken = errors.New("github token is required")

// Options configures the search client.
type Options struct {
	// Host is the GitHub host, "github.com" or an enterprise hostname.
	Host string
	// Token authenticates search requests.
	Token string
	// Timeout bounds each request.
	Timeout time.Duration
	// Transport overrides the HTTP transport, used by tests.
	Transport http.RoundTripper
}

// Client searches GitHub repositories.
type Client struct {
	rest *api.RESTClient
	host string
}

// NewClient creates a search client.
func NewClient(opts Options) (*Client, error) {
	if opts.Token == "" {
		return nil, ErrMissingToken
	}
	host := opts.Host
	if host == "" {
		host = DefaultHost
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	rest, err := api.NewRESTClient(api.ClientOptions{
		AuthToken:    opts.Token,
		Host:         host,
		Timeout:      timeout,
		Transport:    opts.Transport,
		Log:          io.Discard,
		LogIgnoreEnv: true,
		Headers: map[string]string{
			"Accept": "application/vnd.github+json",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub REST client: %w", err)
	}

	return &Client{rest: rest, host: host}, nil
}

// searchResponse mirrors the fields of the repository search payload that
// the catalog consumes.
type searchResponse struct {
	TotalCount        int          `json:"total_count"`
	IncompleteResults bool         `json:"incomplete_results"`
	Items             []repository `json:"items"`
}

type repository struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	FullName    string    `json:"full_name"`
	HTMLURL     string    `json:"html_url"`
	Description string    `json:"description"`
	Stars       int       `json:"stargazers_count"`
	Forks       int       `json:"forks_count"`
	Language    string    `json:"language"`
	Topics      []string  `json:"topics"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Owner       struct {
		Login string `json:"login"`
	} `json:"owner"`
}

// Search runs one repository search ordered by stars, returning at most
// perPage items from the given 1-based page.
func (c *Client) Search(ctx context.Context, query string, page, perPage int) ([]catalog.Item, error) {
	if query == "" {
		return nil, errors.New("search query must not be empty")
	}
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > MaxPerPage {
		perPage = MaxPerPage
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("sort", "stars")
	params.Set("order", "desc")
	params.Set("per_page", strconv.Itoa(perPage))
	params.Set("page", strconv.Itoa(page))

	var resp searchResponse
	if err := c.rest.DoWithContext(ctx, http.MethodGet, searchPath+"?"+params.Encode(), nil, &resp); err != nil {
		return nil, fmt.Errorf("search %q failed: %w", query, err)
	}

	items := make([]catalog.Item, 0, len(resp.Items))
	for _, repo := range resp.Items {
		items = append(items, repo.toItem())
	}
	return items, nil
}

// Host returns the configured GitHub host.
func (c *Client) Host() string {
	return c.host
}

func (r repository) toItem() catalog.Item {
	return catalog.Item{
		ID:          strconv.FormatInt(r.ID, 10),
		Name:        r.Name,
		FullName:    r.FullName,
		Owner:       r.Owner.Login,
		URL:         r.HTMLURL,
		Description: r.Description,
		Stars:       r.Stars,
		Forks:       r.Forks,
		Language:    r.Language,
		Topics:      r.Topics,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}.Normalize()
}
