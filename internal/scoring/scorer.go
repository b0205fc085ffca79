package scoring

import (
	"strings"
	"time"
	"unicode"

	"github.com/stacklok/toolhive-catalog-server/internal/catalog"
)

// Scorer computes relevance scores. It holds no mutable state and is safe
// for concurrent use.
type Scorer struct {
	weights Weights
	now     func() time.Time
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithWeights replaces the default weights.
func WithWeights(w Weights) Option {
	return func(s *Scorer) {
		s.weights = w
	}
}

// WithClock fixes the reference time used for the recency bonus.
func WithClock(now func() time.Time) Option {
	return func(s *Scorer) {
		s.now = now
	}
}

// New creates a Scorer with the default weights unless overridden.
func New(opts ...Option) *Scorer {
	s := &Scorer{
		weights: DefaultWeights(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.weights = s.weights.normalized()
	return s
}

// Score returns the relevance score of item. For a fixed clock the result
// depends only on the item.
func (s *Scorer) Score(item catalog.Item) int {
	w := s.weights
	score := 0

	name := strings.ToLower(item.Name + " " + item.FullName)
	desc := strings.ToLower(item.Description)

	score += s.fieldScore(func(kw string) bool { return containsWord(name, kw) },
		func(fw FieldWeights) int { return fw.Name })
	score += s.fieldScore(func(kw string) bool { return containsWord(desc, kw) },
		func(fw FieldWeights) int { return fw.Description })
	score += s.fieldScore(func(kw string) bool { return topicMatches(item.Topics, kw) },
		func(fw FieldWeights) int { return fw.Topic })

	score += ladder(w.Stars, item.Stars)
	score += ladder(w.Forks, item.Forks)
	score += s.recency(item.UpdatedAt)

	if score < 0 {
		return 0
	}
	return score
}

// Tier classifies a score.
func (s *Scorer) Tier(score int) catalog.Tier {
	switch {
	case score >= s.weights.HighTierMin:
		return catalog.TierHigh
	case score >= s.weights.MediumTierMin:
		return catalog.TierMedium
	default:
		return catalog.TierLow
	}
}

// Apply returns item with Score and Tier populated.
func (s *Scorer) Apply(item catalog.Item) catalog.Item {
	item.Score = s.Score(item)
	item.Tier = s.Tier(item.Score)
	return item
}

// fieldScore awards the weight of the highest keyword tier with a hit in
// one field. A field scores at most once.
func (s *Scorer) fieldScore(match func(string) bool, weight func(FieldWeights) int) int {
	for _, tier := range []KeywordTier{s.weights.High, s.weights.Medium, s.weights.Low} {
		for _, kw := range tier.Keywords {
			if match(kw) {
				return weight(tier.Weights)
			}
		}
	}
	return 0
}

func (s *Scorer) recency(updated time.Time) int {
	if updated.IsZero() {
		return 0
	}
	age := s.now().Sub(updated)
	if age < 0 {
		age = 0
	}
	for _, step := range s.weights.Recency {
		if age < step.MaxAge {
			return step.Bonus
		}
	}
	return 0
}

func ladder(steps []Threshold, v int) int {
	for _, step := range steps {
		if v >= step.Min {
			return step.Bonus
		}
	}
	return 0
}

func topicMatches(topics []string, kw string) bool {
	for _, t := range topics {
		t = strings.ToLower(t)
		if t == kw || containsWord(t, kw) {
			return true
		}
	}
	return false
}

// containsWord reports whether kw occurs in text delimited by non-alphanumeric
// characters, so "ai" matches "ai-tools" but not "email".
func containsWord(text, kw string) bool {
	if kw == "" {
		return false
	}
	for offset := 0; offset <= len(text)-len(kw); {
		idx := strings.Index(text[offset:], kw)
		if idx < 0 {
			return false
		}
		start := offset + idx
		end := start + len(kw)
		if boundaryBefore(text, start) && boundaryAfter(text, end) {
			return true
		}
		offset = start + 1
	}
	return false
}

func boundaryBefore(text string, i int) bool {
	if i == 0 {
		return true
	}
	return !isWordByte(text[i-1])
}

func boundaryAfter(text string, i int) bool {
	if i >= len(text) {
		return true
	}
	return !isWordByte(text[i])
}

func isWordByte(b byte) bool {
	return b < 0x80 && (unicode.IsLetter(rune(b)) || unicode.IsDigit(rune(b)))
}
