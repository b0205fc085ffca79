package filtering

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"

	"github.com/stacklok/toolhive-catalog-server/internal/catalog"
)

// Rules is an include/exclude list
type Rules struct {
	Include []string `yaml:"include,omitempty"`
	Exclude []string `yaml:"exclude,omitempty"`
}

// Config holds the name and topic rules of a Filter
type Config struct {
	Names  *Rules `yaml:"names,omitempty"`
	Topics *Rules `yaml:"topics,omitempty"`
}

type pattern struct {
	source string
	glob   glob.Glob
}

// Filter admits or rejects catalog items. A nil *Filter admits everything.
type Filter struct {
	nameInclude  []pattern
	nameExclude  []pattern
	topicInclude []string
	topicExclude []string
}

// New compiles cfg. Every invalid pattern is reported.
func New(cfg Config) (*Filter, error) {
	f := &Filter{}
	var errs []string

	if cfg.Names != nil {
		var err error
		if f.nameInclude, err = compile(cfg.Names.Include); err != nil {
			errs = append(errs, "names.include: "+err.Error())
		}
		if f.nameExclude, err = compile(cfg.Names.Exclude); err != nil {
			errs = append(errs, "names.exclude: "+err.Error())
		}
	}
	if cfg.Topics != nil {
		f.topicInclude = lowerAll(cfg.Topics.Include)
		f.topicExclude = lowerAll(cfg.Topics.Exclude)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid filter: %s", strings.Join(errs, "; "))
	}
	return f, nil
}

// compile validates each pattern with filepath.Match syntax, then builds a
// glob without separators so that '*' crosses the owner/name slash.
func compile(patterns []string) ([]pattern, error) {
	out := make([]pattern, 0, len(patterns))
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if _, err := filepath.Match(p, "test"); err != nil {
			return nil, fmt.Errorf("pattern %q: %w", p, err)
		}
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", p, err)
		}
		out = append(out, pattern{source: p, glob: g})
	}
	return out, nil
}

func lowerAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// IsEmpty reports whether f admits everything.
func (f *Filter) IsEmpty() bool {
	return f == nil || (len(f.nameInclude) == 0 && len(f.nameExclude) == 0 &&
		len(f.topicInclude) == 0 && len(f.topicExclude) == 0)
}

// Allow reports whether item passes both rule sets, with the reason.
func (f *Filter) Allow(item catalog.Item) (bool, string) {
	if f.IsEmpty() {
		return true, "no filters specified"
	}

	name := strings.ToLower(item.FullName)
	if name == "" {
		name = strings.ToLower(item.Owner + "/" + item.Name)
	}
	if ok, reason := f.allowName(name); !ok {
		return false, "name filter: " + reason
	}
	if ok, reason := f.allowTopics(item.Topics); !ok {
		return false, "topic filter: " + reason
	}
	return true, "passed all filters"
}

func (f *Filter) allowName(name string) (bool, string) {
	for _, p := range f.nameExclude {
		if p.glob.Match(name) {
			return false, fmt.Sprintf("excluded by pattern '%s'", p.source)
		}
	}
	if len(f.nameInclude) == 0 {
		return true, ""
	}
	for _, p := range f.nameInclude {
		if p.glob.Match(name) {
			return true, ""
		}
	}
	return false, "no match found in include patterns"
}

func (f *Filter) allowTopics(topics []string) (bool, string) {
	lowered := lowerAll(topics)
	for _, t := range lowered {
		for _, ex := range f.topicExclude {
			if t == ex {
				return false, fmt.Sprintf("excluded by topic '%s'", ex)
			}
		}
	}
	if len(f.topicInclude) == 0 {
		return true, ""
	}
	for _, t := range lowered {
		for _, in := range f.topicInclude {
			if t == in {
				return true, ""
			}
		}
	}
	return false, fmt.Sprintf("no matching topics in include list %v", f.topicInclude)
}

// Apply returns the items that pass, preserving order.
func (f *Filter) Apply(ctx context.Context, items []catalog.Item) []catalog.Item {
	if f.IsEmpty() {
		return items
	}

	out := make([]catalog.Item, 0, len(items))
	for _, item := range items {
		ok, reason := f.Allow(item)
		if !ok {
			slog.DebugContext(ctx, "Excluding project", "full_name", item.FullName, "reason", reason)
			continue
		}
		out = append(out, item)
	}

	slog.InfoContext(ctx, "Project filtering completed",
		"included", len(out),
		"excluded", len(items)-len(out))
	return out
}
