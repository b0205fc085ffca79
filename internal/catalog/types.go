// Package catalog defines the record types shared by the discovery, sync and
// read paths of the catalog server.
package catalog

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Tier is the derived relevance bucket of a catalog item.
type Tier string

const (
	// TierHigh marks items that are clearly part of the MCP ecosystem
	TierHigh Tier = "High"
	// TierMedium marks items with a meaningful but weaker relevance signal
	TierMedium Tier = "Medium"
	// TierLow is the default tier
	TierLow Tier = "Low"
)

// ParseTier converts a string into a Tier. Matching is case-insensitive.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return TierHigh, nil
	case "medium":
		return TierMedium, nil
	case "low", "":
		return TierLow, nil
	default:
		return "", fmt.Errorf("unknown relevance tier %q", s)
	}
}

// Enrichment holds the fields populated by the analysis oracle. They are
// never produced by discovery and survive re-discovery of the same item.
type Enrichment struct {
	Summary            string   `json:"summary,omitempty"`
	KeyFeatures        []string `json:"keyFeatures,omitempty"`
	UseCases           []string `json:"useCases,omitempty"`
	ProjectType        string   `json:"projectType,omitempty"`
	TechStack          []string `json:"techStack,omitempty"`
	Compatibility      []string `json:"compatibility,omitempty"`
	InstallCommand     string   `json:"installCommand,omitempty"`
	QuickStart         string   `json:"quickStart,omitempty"`
	DocumentationURL   string   `json:"documentationUrl,omitempty"`
	ServerEndpoint     string   `json:"serverEndpoint,omitempty"`
	ClientCapabilities []string `json:"clientCapabilities,omitempty"`
}

// IsEmpty reports whether no enrichment field carries a value.
func (e Enrichment) IsEmpty() bool {
	return e.Summary == "" &&
		len(e.KeyFeatures) == 0 &&
		len(e.UseCases) == 0 &&
		e.ProjectType == "" &&
		len(e.TechStack) == 0 &&
		len(e.Compatibility) == 0 &&
		e.InstallCommand == "" &&
		e.QuickStart == "" &&
		e.DocumentationURL == "" &&
		e.ServerEndpoint == "" &&
		len(e.ClientCapabilities) == 0
}

// MergeOver returns base with every non-empty field of e applied on top.
func (e Enrichment) MergeOver(base Enrichment) Enrichment {
	out := base
	setString(&out.Summary, e.Summary)
	setString(&out.ProjectType, e.ProjectType)
	setString(&out.InstallCommand, e.InstallCommand)
	setString(&out.QuickStart, e.QuickStart)
	setString(&out.DocumentationURL, e.DocumentationURL)
	setString(&out.ServerEndpoint, e.ServerEndpoint)
	setList(&out.KeyFeatures, e.KeyFeatures)
	setList(&out.UseCases, e.UseCases)
	setList(&out.TechStack, e.TechStack)
	setList(&out.Compatibility, e.Compatibility)
	setList(&out.ClientCapabilities, e.ClientCapabilities)
	return out
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setList(dst *[]string, v []string) {
	if len(v) > 0 {
		*dst = slices.Clone(v)
	}
}

// Item is one discovered project. ID is the stable identifier assigned by
// the external source and is unique within the store.
type Item struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	FullName    string    `json:"fullName"`
	Owner       string    `json:"owner"`
	URL         string    `json:"url"`
	Description string    `json:"description,omitempty"`
	Stars       int       `json:"stars"`
	Forks       int       `json:"forks"`
	Language    string    `json:"language,omitempty"`
	Topics      []string  `json:"topics,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`

	Score int  `json:"score"`
	Tier  Tier `json:"tier"`

	Enrichment Enrichment `json:"enrichment"`

	// Bookkeeping maintained by the store.
	FirstSeenAt  time.Time `json:"firstSeenAt,omitzero"`
	LastSyncedAt time.Time `json:"lastSyncedAt,omitzero"`
}

// Key returns the lower-cased owner/name pair used for composite lookups.
func (i Item) Key() string {
	return Key(i.Owner, i.Name)
}

// Key builds the composite owner/name lookup key.
func Key(owner, name string) string {
	return strings.ToLower(owner) + "/" + strings.ToLower(name)
}

// Normalize sorts and de-duplicates topics and fills FullName when missing.
func (i Item) Normalize() Item {
	out := i
	if len(i.Topics) > 0 {
		topics := make([]string, 0, len(i.Topics))
		for _, t := range i.Topics {
			t = strings.ToLower(strings.TrimSpace(t))
			if t != "" {
				topics = append(topics, t)
			}
		}
		slices.Sort(topics)
		out.Topics = slices.Compact(topics)
	}
	if out.FullName == "" && out.Owner != "" && out.Name != "" {
		out.FullName = out.Owner + "/" + out.Name
	}
	if out.Tier == "" {
		out.Tier = TierLow
	}
	return out
}
