package engine

import (
	"context"
	"sort"

	"github.com/SumanthNagolu/intime-v3-sub020/internal/domain"
)

// PatternSource returns candidate patterns for an event. The matcher
// re-checks every candidate, so a source may over-select.
type PatternSource interface {
	MatchingPatterns(ctx context.Context, ev domain.Event) ([]domain.ActivityPattern, error)
}

type Matcher struct {
	Source PatternSource
}

// FindMatching returns the active patterns triggered by ev, ordered by
// pattern code then id.
func (m Matcher) FindMatching(ctx context.Context, ev domain.Event) ([]domain.ActivityPattern, error) {
	candidates, err := m.Source.MatchingPatterns(ctx, ev)
	if err != nil {
		return nil, err
	}
	out := candidates[:0]
	for _, p := range candidates {
		if p.Matches(ev) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].PatternCode != out[j].PatternCode {
			return out[i].PatternCode < out[j].PatternCode
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
