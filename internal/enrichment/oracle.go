package enrichment

import (
	"context"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/stacklok/toolhive-catalog-server/internal/catalog"
	"github.com/stacklok/toolhive-catalog-server/internal/httpclient"
)

// maxOracleText bounds the description sent to the oracle.
const maxOracleText = 4000

type oracleRequest struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	FullName    string   `json:"fullName"`
	URL         string   `json:"url"`
	Description string   `json:"description"`
	Language    string   `json:"language,omitempty"`
	Topics      []string `json:"topics,omitempty"`
}

// OracleClient asks an external analysis service for enrichment fields.
//
// The service receives the item text as JSON and answers with a JSON object.
// Fields are read leniently: a missing or mistyped field is left empty, and
// "category" is accepted as an alias of "projectType".
type OracleClient struct {
	client   httpclient.Client
	endpoint string
	apiKey   string
}

// OracleOption configures an OracleClient.
type OracleOption func(*OracleClient)

// WithAPIKey sends key as a bearer token.
func WithAPIKey(key string) OracleOption {
	return func(c *OracleClient) {
		c.apiKey = key
	}
}

// NewOracleClient creates a client for the service at endpoint.
func NewOracleClient(client httpclient.Client, endpoint string, opts ...OracleOption) *OracleClient {
	c := &OracleClient{client: client, endpoint: endpoint}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Enrich posts the item to the oracle and parses its answer.
func (c *OracleClient) Enrich(ctx context.Context, item catalog.Item) (catalog.Enrichment, error) {
	desc := item.Description
	if len(desc) > maxOracleText {
		desc = desc[:maxOracleText]
	}
	req := oracleRequest{
		ID:          item.ID,
		Name:        item.Name,
		FullName:    item.FullName,
		URL:         item.URL,
		Description: desc,
		Language:    item.Language,
		Topics:      item.Topics,
	}

	var headers map[string]string
	if c.apiKey != "" {
		headers = map[string]string{"Authorization": "Bearer " + c.apiKey}
	}

	body, err := c.client.PostJSON(ctx, c.endpoint, req, headers)
	if err != nil {
		return catalog.Enrichment{}, fmt.Errorf("enrichment request for %s failed: %w", item.ID, err)
	}
	return parseOracleResponse(body)
}

func parseOracleResponse(body []byte) (catalog.Enrichment, error) {
	if !gjson.ValidBytes(body) {
		return catalog.Enrichment{}, errors.New("enrichment response is not valid JSON")
	}
	res := gjson.ParseBytes(body)
	// Some deployments wrap the payload in {"data": {...}}.
	if data := res.Get("data"); data.IsObject() {
		res = data
	}
	if !res.IsObject() {
		return catalog.Enrichment{}, errors.New("enrichment response is not a JSON object")
	}

	e := catalog.Enrichment{
		Summary:            str(res, "summary"),
		KeyFeatures:        list(res, "keyFeatures"),
		UseCases:           list(res, "useCases"),
		ProjectType:        str(res, "projectType"),
		TechStack:          list(res, "techStack"),
		Compatibility:      list(res, "compatibility"),
		InstallCommand:     str(res, "installCommand"),
		QuickStart:         str(res, "quickStart"),
		DocumentationURL:   str(res, "documentationUrl"),
		ServerEndpoint:     str(res, "serverEndpoint"),
		ClientCapabilities: list(res, "clientCapabilities"),
	}
	if e.ProjectType == "" {
		e.ProjectType = str(res, "category")
	}
	return e, nil
}

func str(res gjson.Result, path string) string {
	v := res.Get(path)
	if v.Type != gjson.String {
		return ""
	}
	return v.String()
}

func list(res gjson.Result, path string) []string {
	v := res.Get(path)
	if !v.IsArray() {
		return nil
	}
	var out []string
	for _, el := range v.Array() {
		if el.Type == gjson.String && el.String() != "" {
			out = append(out, el.String())
		}
	}
	return out
}
