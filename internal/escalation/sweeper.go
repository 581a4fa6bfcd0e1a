// Package escalation periodically escalates overdue activities and reminds
// assignees of activities that are about to fall due.
package escalation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/SumanthNagolu/intime-v3-sub020/internal/domain"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/metrics"
)

const (
	ActionEscalated = "escalated"
	ActionReminded  = "reminded"
	ActionFailed    = "failed"
)

// Store is the read side the sweep scans.
type Store interface {
	ListActivities(ctx context.Context, f domain.ActivityFilter) ([]domain.Activity, error)
	ManagerOf(ctx context.Context, orgID, userID string) (string, error)
}

// Actions applies sweep decisions. activity.Service implements it.
type Actions interface {
	Escalate(ctx context.Context, id, notify, reason string) (domain.Activity, error)
	RecordReminder(ctx context.Context, id string) (domain.Activity, error)
}

type Options struct {
	// OrgID limits the sweep to one org; empty sweeps every org.
	OrgID          string
	EscalateAfter  time.Duration
	MaxEscalations int
	ReminderBefore time.Duration
}

// Result summarizes one sweep.
type Result struct {
	Scanned   int `json:"scanned"`
	Escalated int `json:"escalated"`
	Reminded  int `json:"reminded"`
	Failed    int `json:"failed"`
}

type Sweeper struct {
	Store   Store
	Actions Actions
	Options Options
	Metrics *metrics.Metrics
	Logger  *log.Logger
	Now     func() time.Time
}

func (s Sweeper) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s Sweeper) logger() *log.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return log.Default()
}

// Decide returns the action due for a at now, or "" for none.
func (o Options) Decide(a domain.Activity, now time.Time) string {
	if !a.Status.Active() {
		return ""
	}
	if now.After(a.DueDate) {
		if o.EscalateAfter <= 0 || (o.MaxEscalations > 0 && a.EscalationCount >= o.MaxEscalations) {
			return ""
		}
		if now.Sub(a.DueDate) > o.EscalateAfter*time.Duration(a.EscalationCount+1) {
			return ActionEscalated
		}
		return ""
	}
	if o.ReminderBefore > 0 && a.ReminderCount == 0 && a.DueDate.Sub(now) <= o.ReminderBefore {
		return ActionReminded
	}
	return ""
}

// Sweep scans outstanding activities once. Failures on single activities are
// logged and counted; only a failed scan returns an error.
func (s Sweeper) Sweep(ctx context.Context) (Result, error) {
	now := s.now()
	horizon := now.Add(s.Options.ReminderBefore)
	list, err := s.Store.ListActivities(ctx, domain.ActivityFilter{
		OrgID:     s.Options.OrgID,
		Statuses:  domain.ActiveStatuses,
		DueBefore: &horizon,
		Sort:      domain.SortDueDate,
	})
	if err != nil {
		return Result{}, fmt.Errorf("scan activities: %w", err)
	}
	var res Result
	lg := s.logger()
	for _, a := range list {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Scanned++
		action := s.Options.Decide(a, now)
		switch action {
		case ActionEscalated:
			err = s.escalate(ctx, a, now)
		case ActionReminded:
			_, err = s.Actions.RecordReminder(ctx, a.ID)
		default:
			continue
		}
		if err != nil {
			res.Failed++
			s.Metrics.SweepAction(ActionFailed)
			lg.Error("sweep action failed", "activity_id", a.ID, "action", action, "err", err)
			continue
		}
		if action == ActionEscalated {
			res.Escalated++
		} else {
			res.Reminded++
		}
		s.Metrics.SweepAction(action)
	}
	lg.Info("sweep finished", "scanned", res.Scanned, "escalated", res.Escalated, "reminded", res.Reminded, "failed", res.Failed)
	return res, nil
}

func (s Sweeper) escalate(ctx context.Context, a domain.Activity, now time.Time) error {
	notify := ""
	if a.AssignedTo != "" {
		mgr, err := s.Store.ManagerOf(ctx, a.OrgID, a.AssignedTo)
		if err != nil {
			return err
		}
		notify = mgr
	}
	overdue := now.Sub(a.DueDate).Truncate(time.Minute)
	_, err := s.Actions.Escalate(ctx, a.ID, notify, fmt.Sprintf("overdue by %s", overdue))
	if errors.Is(err, domain.ErrInvalidTransition) {
		// closed between scan and update
		return nil
	}
	return err
}

// Run sweeps once; it lets a Sweeper be scheduled by a Trigger.
func (s Sweeper) Run(ctx context.Context) error {
	_, err := s.Sweep(ctx)
	return err
}
