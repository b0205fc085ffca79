package service

import (
	"fmt"
	"strings"
)

// Strategy selects the read path of GetProjects.
type Strategy int

const (
	// DatabaseFirst reads the store and falls back to a live fetch
	DatabaseFirst Strategy = iota
	// GitHubFirst fetches live and falls back to the store
	GitHubFirst
	// DatabaseOnly reads the store only
	DatabaseOnly
	// GitHubOnly fetches live only
	GitHubOnly
)

var strategyNames = [...]string{
	DatabaseFirst: "database-first",
	GitHubFirst:   "github-first",
	DatabaseOnly:  "database-only",
	GitHubOnly:    "github-only",
}

// Strategies lists every strategy in declaration order.
func Strategies() []Strategy {
	return []Strategy{DatabaseFirst, GitHubFirst, DatabaseOnly, GitHubOnly}
}

func (s Strategy) String() string {
	if s < 0 || int(s) >= len(strategyNames) {
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
	return strategyNames[s]
}

// ParseStrategy converts a strategy name. Matching is case-insensitive.
func ParseStrategy(name string) (Strategy, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for i, candidate := range strategyNames {
		if candidate == n {
			return Strategy(i), nil
		}
	}
	return 0, fmt.Errorf("%w %q", ErrUnknownStrategy, name)
}

// MarshalText implements encoding.TextMarshaler.
func (s Strategy) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Strategy) UnmarshalText(text []byte) error {
	v, err := ParseStrategy(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
