package enrichment

import (
	"context"
	"fmt"
	"strings"

	"github.com/stacklok/toolhive-catalog-server/internal/catalog"
)

// Project types reported by Heuristic.
const (
	ProjectTypeServer  = "server"
	ProjectTypeClient  = "client"
	ProjectTypeSDK     = "sdk"
	ProjectTypeTool    = "tool"
	ProjectTypeUnknown = "other"
)

var projectTypeKeywords = []struct {
	projectType string
	keywords    []string
}{
	{ProjectTypeSDK, []string{"sdk", "library", "framework"}},
	{ProjectTypeClient, []string{"client", "desktop", "inspector"}},
	{ProjectTypeServer, []string{"server", "mcp-server"}},
	{ProjectTypeTool, []string{"cli", "tool", "plugin", "extension"}},
}

// installCommands maps a primary language to an install command template.
// %s is replaced by the repository full name or URL.
var installCommands = map[string]string{
	"go":         "go install github.com/%s@latest",
	"python":     "pip install git+https://github.com/%s",
	"typescript": "npx -y github:%s",
	"javascript": "npx -y github:%s",
	"rust":       "cargo install --git https://github.com/%s",
}

// Heuristic derives enrichment defaults from discovery metadata alone.
type Heuristic struct{}

// NewHeuristic creates a Heuristic enricher.
func NewHeuristic() Heuristic {
	return Heuristic{}
}

// Enrich never fails.
func (Heuristic) Enrich(_ context.Context, item catalog.Item) (catalog.Enrichment, error) {
	e := catalog.Enrichment{
		Summary:     strings.TrimSpace(item.Description),
		ProjectType: classify(item),
	}
	if item.Language != "" {
		e.TechStack = []string{item.Language}
		if tmpl, ok := installCommands[strings.ToLower(item.Language)]; ok && item.FullName != "" {
			e.InstallCommand = fmt.Sprintf(tmpl, item.FullName)
		}
	}
	if item.URL != "" {
		e.DocumentationURL = item.URL + "#readme"
	}
	return e, nil
}

func classify(item catalog.Item) string {
	text := strings.ToLower(item.Name + " " + item.Description + " " + strings.Join(item.Topics, " "))
	for _, c := range projectTypeKeywords {
		for _, kw := range c.keywords {
			if strings.Contains(text, kw) {
				return c.projectType
			}
		}
	}
	return ProjectTypeUnknown
}
