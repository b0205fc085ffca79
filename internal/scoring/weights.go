// Package scoring computes relevance scores and tiers for discovered items.
package scoring

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// FieldWeights assigns points for a keyword hit per matched field.
type FieldWeights struct {
	Name        int `yaml:"name"`
	Description int `yaml:"description"`
	Topic       int `yaml:"topic"`
}

// KeywordTier is one keyword list with the points its hits are worth.
type KeywordTier struct {
	Keywords []string     `yaml:"keywords"`
	Weights  FieldWeights `yaml:"weights"`
}

// Threshold awards Bonus when a metric reaches Min.
type Threshold struct {
	Min   int `yaml:"min"`
	Bonus int `yaml:"bonus"`
}

// AgeBonus awards Bonus when the last update happened less than MaxAge ago.
type AgeBonus struct {
	MaxAge time.Duration `yaml:"maxAge"`
	Bonus  int           `yaml:"bonus"`
}

// Weights is the complete tunable scoring configuration.
type Weights struct {
	High   KeywordTier `yaml:"high"`
	Medium KeywordTier `yaml:"medium"`
	Low    KeywordTier `yaml:"low"`

	// Ladders are evaluated highest-first; only the best matching step counts.
	Stars   []Threshold `yaml:"stars"`
	Forks   []Threshold `yaml:"forks"`
	Recency []AgeBonus  `yaml:"recency"`

	HighTierMin   int `yaml:"highTierMin"`
	MediumTierMin int `yaml:"mediumTierMin"`
}

const day = 24 * time.Hour

// DefaultWeights returns the built-in scoring configuration.
func DefaultWeights() Weights {
	return Weights{
		High: KeywordTier{
			Keywords: []string{
				"mcp", "model context protocol", "mcp-server", "mcp server",
				"mcp-client", "modelcontextprotocol",
			},
			Weights: FieldWeights{Name: 50, Description: 30, Topic: 20},
		},
		Medium: KeywordTier{
			Keywords: []string{
				"claude", "anthropic", "llm", "ai agent", "tool calling", "function calling",
			},
			Weights: FieldWeights{Name: 25, Description: 15, Topic: 10},
		},
		Low: KeywordTier{
			Keywords: []string{"ai", "agent", "tools", "server", "protocol"},
			Weights:  FieldWeights{Name: 10, Description: 5, Topic: 3},
		},
		Stars: []Threshold{
			{Min: 1000, Bonus: 30},
			{Min: 500, Bonus: 20},
			{Min: 100, Bonus: 10},
		},
		Forks: []Threshold{
			{Min: 100, Bonus: 10},
			{Min: 50, Bonus: 5},
			{Min: 10, Bonus: 2},
		},
		Recency: []AgeBonus{
			{MaxAge: 30 * day, Bonus: 15},
			{MaxAge: 90 * day, Bonus: 10},
			{MaxAge: 180 * day, Bonus: 5},
		},
		HighTierMin:   100,
		MediumTierMin: 50,
	}
}

// Validate checks the weights for values that would break tiering.
func (w Weights) Validate() error {
	var errs []error
	if w.MediumTierMin < 0 {
		errs = append(errs, fmt.Errorf("mediumTierMin must be non-negative, got %d", w.MediumTierMin))
	}
	if w.HighTierMin < w.MediumTierMin {
		errs = append(errs, fmt.Errorf("highTierMin (%d) must not be below mediumTierMin (%d)",
			w.HighTierMin, w.MediumTierMin))
	}
	for name, tier := range map[string]KeywordTier{"high": w.High, "medium": w.Medium, "low": w.Low} {
		if tier.Weights.Name < 0 || tier.Weights.Description < 0 || tier.Weights.Topic < 0 {
			errs = append(errs, fmt.Errorf("%s: keyword weights must be non-negative", name))
		}
	}
	return errors.Join(errs...)
}

// normalized returns a copy with lower-cased keywords and ladders sorted
// highest-first.
func (w Weights) normalized() Weights {
	out := w
	out.High.Keywords = lowerAll(w.High.Keywords)
	out.Medium.Keywords = lowerAll(w.Medium.Keywords)
	out.Low.Keywords = lowerAll(w.Low.Keywords)

	out.Stars = slices.Clone(w.Stars)
	slices.SortFunc(out.Stars, func(a, b Threshold) int { return b.Min - a.Min })
	out.Forks = slices.Clone(w.Forks)
	slices.SortFunc(out.Forks, func(a, b Threshold) int { return b.Min - a.Min })
	out.Recency = slices.Clone(w.Recency)
	slices.SortFunc(out.Recency, func(a, b AgeBonus) int {
		switch {
		case a.MaxAge < b.MaxAge:
			return -1
		case a.MaxAge > b.MaxAge:
			return 1
		}
		return 0
	})
	return out
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
