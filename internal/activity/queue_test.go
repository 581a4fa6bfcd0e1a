package activity_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SumanthNagolu/intime-v3-sub020/internal/activity"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/domain"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/events"
)

func queued(env *testEnv, t *testing.T, prio domain.Priority, due time.Time) domain.Activity {
	t.Helper()
	return env.create(t, func(in *activity.CreateInput) {
		in.AssignedTo = ""
		in.AssignedGroup = "sourcing"
		in.Priority = prio
		in.DueDate = due
	})
}

func TestQueueOrdering(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	low := queued(env, t, domain.PriorityLow, base.Add(time.Hour))
	normalLate := queued(env, t, domain.PriorityNormal, base.Add(5*time.Hour))
	env.advance(time.Minute)
	normalEarly := queued(env, t, domain.PriorityNormal, base.Add(2*time.Hour))
	urgent := queued(env, t, domain.PriorityUrgent, base.Add(10*time.Hour))
	env.create(t, func(in *activity.CreateInput) { in.AssignedGroup = "sourcing" })

	items, err := env.svc.Queue(ctx, "org-1", "sourcing", 0)
	require.NoError(t, err)
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	assert.Equal(t, []string{urgent.ID, normalEarly.ID, normalLate.ID, low.ID}, ids)

	top, err := env.svc.Queue(ctx, "org-1", "sourcing", 2)
	require.NoError(t, err)
	assert.Len(t, top, 2)
}

func TestClaimAndRelease(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := queued(env, t, domain.PriorityNormal, base.Add(time.Hour))

	got, err := env.svc.Claim(ctx, a.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.AssignedTo)
	assert.Equal(t, "sourcing", got.AssignedGroup)

	_, err = env.svc.Claim(ctx, a.ID, "u2")
	assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)

	_, err = env.svc.Release(ctx, a.ID, "u2")
	assert.ErrorIs(t, err, domain.ErrNotClaimant)

	_, err = env.svc.Start(ctx, a.ID, "u1")
	require.NoError(t, err)
	got, err = env.svc.Release(ctx, a.ID, "u1")
	require.NoError(t, err)
	assert.Empty(t, got.AssignedTo)
	assert.Equal(t, domain.StatusOpen, got.Status)
	assert.Nil(t, got.StartedAt)

	items, err := env.svc.Queue(ctx, "org-1", "sourcing", 0)
	require.NoError(t, err)
	require.Len(t, items, 1)

	assert.Equal(t, []string{
		events.ActivityCreated, events.ActivityClaimed, events.ActivityStarted, events.ActivityReleased,
	}, env.pub.Types())
}

func TestClaimTerminalActivity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := queued(env, t, domain.PriorityNormal, base.Add(time.Hour))
	_, err := env.svc.Cancel(ctx, a.ID, "lead", "duplicate")
	require.NoError(t, err)

	_, err = env.svc.Claim(ctx, a.ID, "u1")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestReleaseRequiresQueue(t *testing.T) {
	env := newTestEnv(t)
	a := env.create(t, nil)
	_, err := env.svc.Release(context.Background(), a.ID, "u1")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestClaimNext(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	queued(env, t, domain.PriorityNormal, base.Add(time.Hour))
	high := queued(env, t, domain.PriorityHigh, base.Add(3*time.Hour))

	got, err := env.svc.ClaimNext(ctx, "org-1", "sourcing", "u3")
	require.NoError(t, err)
	assert.Equal(t, high.ID, got.ID)
	assert.Equal(t, "u3", got.AssignedTo)

	_, err = env.svc.ClaimNext(ctx, "org-1", "sourcing", "u3")
	require.NoError(t, err)
	_, err = env.svc.ClaimNext(ctx, "org-1", "sourcing", "u3")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
