package activity_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SumanthNagolu/intime-v3-sub020/internal/activity"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/db"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/domain"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/events"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/migrate"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/repo"
)

// Monday.
var base = time.Date(2026, 10, 5, 9, 0, 0, 0, time.UTC)

type testEnv struct {
	svc  activity.Service
	repo repo.Repo
	pub  *events.Recorder
	now  *time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_, err = migrate.Migrate(context.Background(), conn)
	require.NoError(t, err)

	now := base
	env := &testEnv{repo: repo.Repo{DB: conn}, pub: &events.Recorder{}, now: &now}
	seq := 0
	env.svc = activity.New(conn)
	env.svc.Publisher = env.pub
	env.svc.Now = func() time.Time { return *env.now }
	env.svc.NewID = func() string {
		seq++
		return fmt.Sprintf("id-%03d", seq)
	}
	return env
}

func (e *testEnv) advance(d time.Duration) { *e.now = e.now.Add(d) }

func (e *testEnv) create(t *testing.T, mut func(*activity.CreateInput)) domain.Activity {
	t.Helper()
	in := activity.CreateInput{
		OrgID:        "org-1",
		ActivityType: "call",
		Subject:      "Call candidate",
		EntityType:   "candidate",
		EntityID:     "c1",
		AssignedTo:   "u1",
		CreatedBy:    "u1",
		DueDate:      base.Add(48 * time.Hour),
	}
	if mut != nil {
		mut(&in)
	}
	a, err := e.svc.Create(context.Background(), in)
	require.NoError(t, err)
	return a
}

func TestCreateDefaults(t *testing.T) {
	env := newTestEnv(t)
	a := env.create(t, func(in *activity.CreateInput) {
		in.DueDate = time.Time{}
		in.Checklist = []domain.ChecklistItem{{ID: "a", Label: "Dial"}}
	})

	assert.Equal(t, "ACT-000001", a.ActivityNumber)
	assert.Equal(t, domain.StatusOpen, a.Status)
	assert.Equal(t, domain.PriorityNormal, a.Priority)
	assert.Equal(t, base.Add(24*time.Hour), a.DueDate)
	require.NotNil(t, a.AssignedAt)
	assert.Equal(t, base, *a.AssignedAt)

	got, err := env.svc.Get(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.Checklist, got.Checklist)
	assert.Equal(t, []string{events.ActivityCreated}, env.pub.Types())

	b := env.create(t, nil)
	assert.Equal(t, "ACT-000002", b.ActivityNumber)
}

func TestCreateValidation(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.Create(context.Background(), activity.CreateInput{OrgID: "org-1", ActivityType: "call"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = env.svc.Create(context.Background(), activity.CreateInput{
		OrgID: "org-1", ActivityType: "call", Subject: "x", EntityType: "job", EntityID: "j1",
	})
	assert.ErrorIs(t, err, domain.ErrValidation, "assignee or group is required")
	assert.Empty(t, env.pub.Events())
}

func TestCompleteWithFollowUp(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.create(t, func(in *activity.CreateInput) { in.Priority = domain.PriorityHigh })
	t2 := base.Add(72 * time.Hour)

	env.advance(time.Hour)
	res, err := env.svc.Complete(ctx, activity.CompleteInput{
		ActivityID: a.ID,
		UserID:     "u1",
		Outcome:    "no_answer",
		FollowUp:   &activity.FollowUpInput{ActivityType: "call", Subject: "Retry call", DueDate: t2},
	})
	require.NoError(t, err)
	require.NotNil(t, res.FollowUp)

	closed, err := env.svc.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, closed.Status)
	assert.Equal(t, "no_answer", closed.Outcome)
	assert.Equal(t, "u1", closed.PerformedBy)
	assert.Equal(t, res.FollowUp.ID, closed.FollowUpActivityID)
	assert.True(t, closed.FollowUpRequired)

	follow, err := env.svc.Get(ctx, closed.FollowUpActivityID)
	require.NoError(t, err)
	assert.Equal(t, "Retry call", follow.Subject)
	assert.Equal(t, t2, follow.DueDate)
	assert.Equal(t, "candidate", follow.EntityType)
	assert.Equal(t, "c1", follow.EntityID)
	assert.Equal(t, domain.PriorityHigh, follow.Priority)
	assert.Equal(t, domain.StatusOpen, follow.Status)

	assert.Equal(t, []string{events.ActivityCreated, events.ActivityCreated, events.ActivityCompleted}, env.pub.Types())
	last := env.pub.Events()[2]
	assert.Equal(t, true, last.Payload["follow_up_created"])
}

func TestCompleteFollowUpFailureRollsBack(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.create(t, nil)
	env.pub.Reset()

	_, err := env.svc.Complete(ctx, activity.CompleteInput{
		ActivityID: a.ID,
		UserID:     "u1",
		FollowUp:   &activity.FollowUpInput{Subject: ""},
	})
	require.ErrorIs(t, err, domain.ErrValidation)

	got, err := env.svc.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOpen, got.Status)
	assert.Empty(t, env.pub.Events())
	logged, err := env.repo.ListEvents(ctx, repo.EventFilter{Type: events.ActivityCompleted})
	require.NoError(t, err)
	assert.Empty(t, logged)
}

func TestCompleteComputesDuration(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.create(t, nil)
	_, err := env.svc.Start(ctx, a.ID, "u1")
	require.NoError(t, err)
	env.advance(25 * time.Minute)
	res, err := env.svc.Complete(ctx, activity.CompleteInput{ActivityID: a.ID, UserID: "u1", Outcome: "connected"})
	require.NoError(t, err)
	require.NotNil(t, res.Activity.DurationMinutes)
	assert.Equal(t, 25, *res.Activity.DurationMinutes)
	assert.Nil(t, res.FollowUp)
}

func TestRescheduleAndReassign(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.create(t, nil)
	due := base.Add(96 * time.Hour)

	got, err := env.svc.Reschedule(ctx, activity.RescheduleInput{ActivityID: a.ID, UserID: "u1", DueDate: due, Reason: "candidate travelling"})
	require.NoError(t, err)
	assert.Equal(t, due, got.DueDate)
	assert.Equal(t, domain.StatusOpen, got.Status)

	env.advance(time.Hour)
	got, err = env.svc.Reassign(ctx, activity.ReassignInput{ActivityID: a.ID, UserID: "u1", AssignTo: "u2"})
	require.NoError(t, err)
	assert.Equal(t, "u2", got.AssignedTo)
	assert.Equal(t, base.Add(time.Hour), *got.AssignedAt)

	evs := env.pub.Events()
	require.Len(t, evs, 3)
	assert.Equal(t, events.ActivityRescheduled, evs[1].Type)
	assert.Equal(t, "candidate travelling", evs[1].Payload["reason"])
	assert.Equal(t, a.DueDate.Format(time.RFC3339), evs[1].Payload["old_due_date"])
	assert.Equal(t, events.ActivityReassigned, evs[2].Type)
	assert.Equal(t, "u1", evs[2].Payload["old_assignee"])
	assert.Equal(t, "u2", evs[2].Payload["new_assignee"])
}

func TestMutationsOnMissingActivity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	calls := map[string]func() error{
		"complete": func() error {
			_, err := env.svc.Complete(ctx, activity.CompleteInput{ActivityID: "nope"})
			return err
		},
		"reschedule": func() error {
			_, err := env.svc.Reschedule(ctx, activity.RescheduleInput{ActivityID: "nope", DueDate: base})
			return err
		},
		"reassign": func() error {
			_, err := env.svc.Reassign(ctx, activity.ReassignInput{ActivityID: "nope", AssignTo: "u2"})
			return err
		},
		"start":  func() error { _, err := env.svc.Start(ctx, "nope", "u1"); return err },
		"cancel": func() error { _, err := env.svc.Cancel(ctx, "nope", "u1", ""); return err },
		"defer":  func() error { _, err := env.svc.Defer(ctx, "nope", "u1", base, ""); return err },
		"skip":   func() error { _, err := env.svc.Skip(ctx, "nope", "u1", ""); return err },
		"note":   func() error { _, err := env.svc.AddNote(ctx, "nope", "u1", "hi"); return err },
		"delete": func() error { return env.svc.Delete(ctx, "nope", "u1") },
		"claim":  func() error { _, err := env.svc.Claim(ctx, "nope", "u1"); return err },
	}
	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, call(), domain.ErrNotFound)
		})
	}
	assert.Empty(t, env.pub.Events())
}

func TestTerminalStatusesAreFinal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	completed := env.create(t, nil)
	_, err := env.svc.Complete(ctx, activity.CompleteInput{ActivityID: completed.ID, UserID: "u1"})
	require.NoError(t, err)
	cancelled := env.create(t, nil)
	_, err = env.svc.Cancel(ctx, cancelled.ID, "u1", "duplicate")
	require.NoError(t, err)

	for _, a := range []domain.Activity{completed, cancelled} {
		before, err := env.svc.Get(ctx, a.ID)
		require.NoError(t, err)

		_, err = env.svc.Start(ctx, a.ID, "u1")
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
		_, err = env.svc.Complete(ctx, activity.CompleteInput{ActivityID: a.ID, UserID: "u1"})
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
		_, err = env.svc.Cancel(ctx, a.ID, "u1", "")
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
		_, err = env.svc.Defer(ctx, a.ID, "u1", base.Add(time.Hour), "")
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
		_, err = env.svc.Skip(ctx, a.ID, "u1", "")
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
		_, err = env.svc.Reactivate(ctx, a.ID, "u1", base)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
		_, err = env.svc.Reschedule(ctx, activity.RescheduleInput{ActivityID: a.ID, DueDate: base})
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
		_, err = env.svc.Reassign(ctx, activity.ReassignInput{ActivityID: a.ID, AssignTo: "u9"})
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
		_, err = env.svc.Escalate(ctx, a.ID, "", "late")
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)

		after, err := env.svc.Get(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, before.Status, after.Status)
		assert.Equal(t, before.UpdatedAt, after.UpdatedAt)
	}
}

func TestDeferAndReactivate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.create(t, nil)
	later := base.Add(7 * 24 * time.Hour)

	got, err := env.svc.Defer(ctx, a.ID, "u1", later, "waiting on client")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDeferred, got.Status)
	assert.Equal(t, later, got.DueDate)
	assert.Equal(t, "waiting on client", got.OutcomeNotes)

	_, err = env.svc.Skip(ctx, a.ID, "u1", "")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	again := later.Add(24 * time.Hour)
	got, err = env.svc.Reactivate(ctx, a.ID, "u1", again)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOpen, got.Status)
	assert.Equal(t, again, got.DueDate)

	_, err = env.svc.Reactivate(ctx, a.ID, "u1", again)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestSkip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.create(t, nil)
	got, err := env.svc.Skip(ctx, a.ID, "u2", "not needed")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSkipped, got.Status)
	assert.Equal(t, "u2", got.PerformedBy)
	require.NotNil(t, got.CompletedAt)
}

func TestChecklistAndNotes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.create(t, func(in *activity.CreateInput) {
		in.Checklist = []domain.ChecklistItem{{ID: "dial", Label: "Dial"}, {ID: "log", Label: "Log call", Required: true}}
	})

	got, err := env.svc.UpdateChecklistItem(ctx, a.ID, "dial", true, "u1")
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"dial": true}, got.ChecklistProgress)

	_, err = env.svc.UpdateChecklistItem(ctx, a.ID, "unknown", true, "u1")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = env.svc.AddNote(ctx, a.ID, "u1", "  ")
	assert.ErrorIs(t, err, domain.ErrValidation)
	note, err := env.svc.AddNote(ctx, a.ID, "u1", "Left a voicemail")
	require.NoError(t, err)
	notes, err := env.svc.Notes(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, note.ID, notes[0].ID)
	assert.Equal(t, "Left a voicemail", notes[0].Body)
}

func TestDeleteHidesActivity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.create(t, nil)
	require.NoError(t, env.svc.Delete(ctx, a.ID, "u1"))

	_, err := env.svc.Get(ctx, a.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	list, err := env.svc.GetMany(ctx, domain.ActivityFilter{OrgID: "org-1"})
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.ErrorIs(t, env.svc.Delete(ctx, a.ID, "u1"), domain.ErrNotFound)
}

func TestEscalateAndRemind(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.create(t, nil)

	got, err := env.svc.Escalate(ctx, a.ID, "mgr", "overdue")
	require.NoError(t, err)
	assert.Equal(t, 1, got.EscalationCount)
	require.NotNil(t, got.LastEscalatedAt)

	got, err = env.svc.RecordReminder(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ReminderCount)

	evs := env.pub.Events()
	require.Len(t, evs, 3)
	assert.Equal(t, "mgr", evs[1].Payload["notify"])
	assert.Equal(t, domain.SystemActor, evs[2].ActorID)
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, domain.EventRecord) error {
	return errors.New("broker down")
}

func TestPublishFailureDoesNotFailMutation(t *testing.T) {
	env := newTestEnv(t)
	env.svc.Publisher = failingPublisher{}
	a := env.create(t, nil)
	_, err := env.svc.Start(context.Background(), a.ID, "u1")
	require.NoError(t, err)

	logged, err := env.repo.ListEvents(context.Background(), repo.EventFilter{EntityKind: events.EntityKindActivity, EntityID: a.ID})
	require.NoError(t, err)
	assert.Len(t, logged, 2)
}

func TestGetSummary(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	mk := func(due time.Time) domain.Activity {
		return env.create(t, func(in *activity.CreateInput) { in.DueDate = due })
	}
	mk(base.Add(-2 * time.Hour))
	mk(base.Add(3 * time.Hour))
	started := mk(base.Add(3 * 24 * time.Hour))
	mk(base.Add(10 * 24 * time.Hour))
	done := mk(base.Add(-5 * time.Hour))
	cancelled := mk(base.Add(time.Hour))
	deferred := mk(base.Add(time.Hour))
	env.create(t, func(in *activity.CreateInput) { in.AssignedTo = "u2" })

	_, err := env.svc.Start(ctx, started.ID, "u1")
	require.NoError(t, err)
	_, err = env.svc.Complete(ctx, activity.CompleteInput{ActivityID: done.ID, UserID: "u1"})
	require.NoError(t, err)
	_, err = env.svc.Cancel(ctx, cancelled.ID, "u1", "")
	require.NoError(t, err)
	_, err = env.svc.Defer(ctx, deferred.ID, "u1", base.Add(-time.Hour), "")
	require.NoError(t, err)

	sum, err := env.svc.GetSummary(ctx, "org-1", "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.Summary{
		Total: 7, Open: 3, InProgress: 1, Completed: 1, Cancelled: 1, Deferred: 1,
		Overdue: 1, DueToday: 1, DueThisWeek: 2,
	}, sum)
	assert.Equal(t, sum.Total, sum.Open+sum.InProgress+sum.Completed+sum.Skipped+sum.Cancelled+sum.Deferred)
	assert.LessOrEqual(t, sum.Overdue, sum.Open+sum.InProgress)
}
