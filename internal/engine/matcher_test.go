package engine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SumanthNagolu/intime-v3-sub020/internal/domain"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/engine"
)

type staticSource []domain.ActivityPattern

func (s staticSource) MatchingPatterns(context.Context, domain.Event) ([]domain.ActivityPattern, error) {
	return append([]domain.ActivityPattern(nil), s...), nil
}

func TestMatcherFiltersAndOrders(t *testing.T) {
	src := staticSource{
		{ID: "2", PatternCode: "B", TriggerEvent: "job.created", EntityType: "*", IsActive: true},
		{ID: "1", PatternCode: "A", TriggerEvent: "job.created", EntityType: "job", IsActive: true},
		{ID: "3", PatternCode: "C", TriggerEvent: "job.created", EntityType: "job", IsActive: false},
		{ID: "4", PatternCode: "D", TriggerEvent: "job.created", EntityType: "candidate", IsActive: true},
		{ID: "5", PatternCode: "E", TriggerEvent: "job.closed", EntityType: "job", IsActive: true},
		{ID: "0", PatternCode: "B", TriggerEvent: "job.created", EntityType: "job", IsActive: true},
	}
	got, err := engine.Matcher{Source: src}.FindMatching(context.Background(), domain.Event{Type: "job.created", EntityType: "job"})
	require.NoError(t, err)
	var ids []string
	for _, p := range got {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"1", "0", "2"}, ids)
}

func TestMatcherAgainstRepo(t *testing.T) {
	env := newTestEnv(t)
	env.pattern(t, "WILD", func(p *domain.ActivityPattern) { p.EntityType = domain.WildcardEntityType })
	env.pattern(t, "CAND", nil)
	env.pattern(t, "JOB", func(p *domain.ActivityPattern) { p.EntityType = "job" })
	env.pattern(t, "OFF", func(p *domain.ActivityPattern) { p.IsActive = false })

	got, err := engine.Matcher{Source: env.repo}.FindMatching(env.ctx, submission("evt-m"))
	require.NoError(t, err)
	var codes []string
	for _, p := range got {
		codes = append(codes, p.PatternCode)
	}
	assert.Equal(t, []string{"CAND", "WILD"}, codes)
}
