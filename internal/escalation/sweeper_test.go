package escalation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SumanthNagolu/intime-v3-sub020/internal/activity"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/db"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/domain"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/escalation"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/events"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/migrate"
)

var base = time.Date(2026, 10, 5, 9, 0, 0, 0, time.UTC)

type testEnv struct {
	svc     activity.Service
	pub     *events.Recorder
	sweeper escalation.Sweeper
	now     *time.Time
	ctx     context.Context
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_, err = migrate.Migrate(context.Background(), conn)
	require.NoError(t, err)

	now := base
	env := &testEnv{pub: &events.Recorder{}, now: &now, ctx: context.Background()}
	clock := func() time.Time { return *env.now }
	env.svc = activity.New(conn)
	env.svc.Publisher = env.pub
	env.svc.Now = clock
	env.sweeper = escalation.Sweeper{
		Store:   env.svc.Repo,
		Actions: env.svc,
		Now:     clock,
		Options: escalation.Options{
			EscalateAfter:  4 * time.Hour,
			MaxEscalations: 2,
			ReminderBefore: 2 * time.Hour,
		},
	}
	return env
}

func (e *testEnv) create(t *testing.T, due time.Time) domain.Activity {
	t.Helper()
	a, err := e.svc.Create(e.ctx, activity.CreateInput{
		OrgID: "org-1", ActivityType: "call", Subject: "Call", EntityType: "candidate", EntityID: "c1",
		AssignedTo: "u1", DueDate: due,
	})
	require.NoError(t, err)
	return a
}

func TestDecide(t *testing.T) {
	opts := escalation.Options{EscalateAfter: time.Hour, MaxEscalations: 2, ReminderBefore: 30 * time.Minute}
	due := base
	cases := []struct {
		name string
		a    domain.Activity
		now  time.Time
		want string
	}{
		{"far future", domain.Activity{Status: domain.StatusOpen, DueDate: due}, due.Add(-2 * time.Hour), ""},
		{"reminder window", domain.Activity{Status: domain.StatusOpen, DueDate: due}, due.Add(-10 * time.Minute), escalation.ActionReminded},
		{"already reminded", domain.Activity{Status: domain.StatusOpen, DueDate: due, ReminderCount: 1}, due.Add(-10 * time.Minute), ""},
		{"just overdue", domain.Activity{Status: domain.StatusOpen, DueDate: due}, due.Add(30 * time.Minute), ""},
		{"first escalation", domain.Activity{Status: domain.StatusInProgress, DueDate: due}, due.Add(61 * time.Minute), escalation.ActionEscalated},
		{"second waits", domain.Activity{Status: domain.StatusOpen, DueDate: due, EscalationCount: 1}, due.Add(90 * time.Minute), ""},
		{"second escalation", domain.Activity{Status: domain.StatusOpen, DueDate: due, EscalationCount: 1}, due.Add(121 * time.Minute), escalation.ActionEscalated},
		{"max reached", domain.Activity{Status: domain.StatusOpen, DueDate: due, EscalationCount: 2}, due.Add(10 * time.Hour), ""},
		{"deferred ignored", domain.Activity{Status: domain.StatusDeferred, DueDate: due}, due.Add(10 * time.Hour), ""},
		{"completed ignored", domain.Activity{Status: domain.StatusCompleted, DueDate: due}, due.Add(-10 * time.Minute), ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, opts.Decide(tc.a, tc.now))
		})
	}
}

func TestSweepEscalatesAndReminds(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.svc.Repo.SetManager(env.ctx, "org-1", "u1", "boss"))
	late := env.create(t, base.Add(-5*time.Hour))
	soon := env.create(t, base.Add(time.Hour))
	later := env.create(t, base.Add(24*time.Hour))

	res, err := env.sweeper.Sweep(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, escalation.Result{Scanned: 2, Escalated: 1, Reminded: 1}, res)

	got, err := env.svc.Get(env.ctx, late.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.EscalationCount)
	require.NotNil(t, got.LastEscalatedAt)
	assert.Equal(t, base, *got.LastEscalatedAt)

	got, err = env.svc.Get(env.ctx, soon.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ReminderCount)

	got, err = env.svc.Get(env.ctx, later.ID)
	require.NoError(t, err)
	assert.Zero(t, got.ReminderCount)
	assert.Zero(t, got.EscalationCount)

	var escalated map[string]any
	for _, rec := range env.pub.Events() {
		if rec.Type == events.ActivityEscalated {
			escalated = rec.Payload
		}
	}
	require.NotNil(t, escalated)
	assert.Equal(t, "boss", escalated["notify"])

	// Second pass inside the same window does nothing new.
	res, err = env.sweeper.Sweep(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, escalation.Result{Scanned: 2}, res)
}

func TestSweepStopsAtMaxEscalations(t *testing.T) {
	env := newTestEnv(t)
	a := env.create(t, base.Add(-time.Minute))

	for i := 0; i < 6; i++ {
		*env.now = env.now.Add(5 * time.Hour)
		_, err := env.sweeper.Sweep(env.ctx)
		require.NoError(t, err)
	}
	got, err := env.svc.Get(env.ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.EscalationCount)
}

func TestSweepSkipsClosed(t *testing.T) {
	env := newTestEnv(t)
	a := env.create(t, base.Add(-10*time.Hour))
	_, err := env.svc.Cancel(env.ctx, a.ID, "u1", "not needed")
	require.NoError(t, err)

	res, err := env.sweeper.Sweep(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, escalation.Result{}, res)
}

func TestSweepHonoursContext(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, base.Add(-10*time.Hour))
	ctx, cancel := context.WithCancel(env.ctx)
	cancel()
	_, err := env.sweeper.Sweep(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
