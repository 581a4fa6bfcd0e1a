package activity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/SumanthNagolu/intime-v3-sub020/internal/domain"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/events"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/repo"
)

// FollowUpInput describes the activity spawned when another one completes.
type FollowUpInput struct {
	ActivityType string
	Subject      string
	Description  string
	DueDate      time.Time
	AssignedTo   string
	Priority     domain.Priority
}

type CompleteInput struct {
	ActivityID      string
	UserID          string
	Outcome         string
	OutcomeNotes    string
	DurationMinutes *int
	FollowUp        *FollowUpInput
}

type CompleteResult struct {
	Activity domain.Activity  `json:"activity"`
	FollowUp *domain.Activity `json:"follow_up,omitempty"`
}

// Complete closes an activity. A follow-up, when requested, is created in
// the same transaction and linked through FollowUpActivityID.
func (s Service) Complete(ctx context.Context, in CompleteInput) (CompleteResult, error) {
	var res CompleteResult
	a, err := s.mutate(ctx, in.ActivityID, func(tx repo.Repo, a *domain.Activity, now time.Time, emit emitFunc) error {
		if err := domain.EnsureTransition(a.Status, domain.StatusCompleted); err != nil {
			return err
		}
		a.Status = domain.StatusCompleted
		a.CompletedAt = &now
		a.Outcome = in.Outcome
		a.OutcomeNotes = in.OutcomeNotes
		a.PerformedBy = in.UserID
		a.DurationMinutes = in.DurationMinutes
		if a.DurationMinutes == nil && a.StartedAt != nil {
			d := int(now.Sub(*a.StartedAt).Minutes())
			a.DurationMinutes = &d
		}
		if in.FollowUp != nil {
			f, err := s.create(ctx, tx, emit, followUpInput(*a, in))
			if err != nil {
				return fmt.Errorf("follow-up: %w", err)
			}
			a.FollowUpRequired = true
			a.FollowUpDate = &f.DueDate
			a.FollowUpActivityID = f.ID
			res.FollowUp = &f
		}
		payload := events.Payload{
			"outcome":           a.Outcome,
			"follow_up_created": in.FollowUp != nil,
		}
		if a.DurationMinutes != nil {
			payload["duration_minutes"] = *a.DurationMinutes
		}
		if a.FollowUpActivityID != "" {
			payload["follow_up_activity_id"] = a.FollowUpActivityID
		}
		return emit(events.ActivityCompleted, *a, in.UserID, payload)
	})
	if err != nil {
		return CompleteResult{}, err
	}
	res.Activity = a
	return res, nil
}

func followUpInput(parent domain.Activity, in CompleteInput) CreateInput {
	f := *in.FollowUp
	out := CreateInput{
		OrgID:               parent.OrgID,
		ActivityType:        f.ActivityType,
		Subject:             f.Subject,
		Description:         f.Description,
		EntityType:          parent.EntityType,
		EntityID:            parent.EntityID,
		SecondaryEntityType: parent.SecondaryEntityType,
		SecondaryEntityID:   parent.SecondaryEntityID,
		AssignedTo:          f.AssignedTo,
		AssignedGroup:       parent.AssignedGroup,
		CreatedBy:           in.UserID,
		Priority:            f.Priority,
		DueDate:             f.DueDate,
	}
	if out.ActivityType == "" {
		out.ActivityType = parent.ActivityType
	}
	if out.AssignedTo == "" {
		out.AssignedTo = parent.AssignedTo
	}
	if out.Priority == "" {
		out.Priority = parent.Priority
	}
	return out
}

type RescheduleInput struct {
	ActivityID string
	UserID     string
	DueDate    time.Time
	Reason     string
}

// Reschedule moves the due date without touching the status.
func (s Service) Reschedule(ctx context.Context, in RescheduleInput) (domain.Activity, error) {
	if in.DueDate.IsZero() {
		return domain.Activity{}, domain.ValidationError{Field: "due_date", Message: "required"}
	}
	return s.mutate(ctx, in.ActivityID, func(_ repo.Repo, a *domain.Activity, _ time.Time, emit emitFunc) error {
		if a.Status.Terminal() {
			return domain.TransitionError{From: a.Status, To: a.Status}
		}
		old := a.DueDate
		a.DueDate = in.DueDate.UTC()
		a.ReminderCount = 0
		return emit(events.ActivityRescheduled, *a, in.UserID, events.Payload{
			"old_due_date": old.Format(time.RFC3339),
			"new_due_date": a.DueDate.Format(time.RFC3339),
			"reason":       in.Reason,
		})
	})
}

type ReassignInput struct {
	ActivityID string
	UserID     string
	AssignTo   string
	Reason     string
}

func (s Service) Reassign(ctx context.Context, in ReassignInput) (domain.Activity, error) {
	if strings.TrimSpace(in.AssignTo) == "" {
		return domain.Activity{}, domain.ValidationError{Field: "assigned_to", Message: "required"}
	}
	return s.mutate(ctx, in.ActivityID, func(_ repo.Repo, a *domain.Activity, now time.Time, emit emitFunc) error {
		if a.Status.Terminal() {
			return domain.TransitionError{From: a.Status, To: a.Status}
		}
		old := a.AssignedTo
		a.AssignedTo = in.AssignTo
		a.AssignedAt = &now
		return emit(events.ActivityReassigned, *a, in.UserID, events.Payload{
			"old_assignee": old,
			"new_assignee": a.AssignedTo,
			"reason":       in.Reason,
		})
	})
}

func (s Service) Start(ctx context.Context, id, userID string) (domain.Activity, error) {
	return s.mutate(ctx, id, func(_ repo.Repo, a *domain.Activity, now time.Time, emit emitFunc) error {
		if err := domain.EnsureTransition(a.Status, domain.StatusInProgress); err != nil {
			return err
		}
		a.Status = domain.StatusInProgress
		if a.StartedAt == nil {
			a.StartedAt = &now
		}
		if a.AssignedTo == "" {
			a.AssignedTo = userID
			a.AssignedAt = &now
		}
		return emit(events.ActivityStarted, *a, userID, nil)
	})
}

func (s Service) Cancel(ctx context.Context, id, userID, reason string) (domain.Activity, error) {
	return s.mutate(ctx, id, func(_ repo.Repo, a *domain.Activity, _ time.Time, emit emitFunc) error {
		if err := domain.EnsureTransition(a.Status, domain.StatusCancelled); err != nil {
			return err
		}
		a.Status = domain.StatusCancelled
		if reason != "" {
			a.OutcomeNotes = reason
		}
		return emit(events.ActivityCancelled, *a, userID, events.Payload{"reason": reason})
	})
}

// Defer parks an activity until a new due date.
func (s Service) Defer(ctx context.Context, id, userID string, due time.Time, reason string) (domain.Activity, error) {
	if due.IsZero() {
		return domain.Activity{}, domain.ValidationError{Field: "due_date", Message: "required"}
	}
	return s.mutate(ctx, id, func(_ repo.Repo, a *domain.Activity, _ time.Time, emit emitFunc) error {
		if err := domain.EnsureTransition(a.Status, domain.StatusDeferred); err != nil {
			return err
		}
		old := a.DueDate
		a.Status = domain.StatusDeferred
		a.DueDate = due.UTC()
		if reason != "" {
			a.OutcomeNotes = reason
		}
		return emit(events.ActivityDeferred, *a, userID, events.Payload{
			"old_due_date": old.Format(time.RFC3339),
			"new_due_date": a.DueDate.Format(time.RFC3339),
			"reason":       reason,
		})
	})
}

func (s Service) Skip(ctx context.Context, id, userID, reason string) (domain.Activity, error) {
	return s.mutate(ctx, id, func(_ repo.Repo, a *domain.Activity, now time.Time, emit emitFunc) error {
		if err := domain.EnsureTransition(a.Status, domain.StatusSkipped); err != nil {
			return err
		}
		a.Status = domain.StatusSkipped
		a.CompletedAt = &now
		a.PerformedBy = userID
		if reason != "" {
			a.OutcomeNotes = reason
		}
		return emit(events.ActivitySkipped, *a, userID, events.Payload{"reason": reason})
	})
}

// Reactivate returns a deferred activity to the open set with a new due date.
func (s Service) Reactivate(ctx context.Context, id, userID string, due time.Time) (domain.Activity, error) {
	return s.mutate(ctx, id, func(_ repo.Repo, a *domain.Activity, _ time.Time, emit emitFunc) error {
		if a.Status != domain.StatusDeferred {
			return domain.TransitionError{From: a.Status, To: domain.StatusOpen}
		}
		a.Status = domain.StatusOpen
		if !due.IsZero() {
			a.DueDate = due.UTC()
		}
		a.ReminderCount = 0
		return emit(events.ActivityReactivated, *a, userID, events.Payload{
			"due_date": a.DueDate.Format(time.RFC3339),
		})
	})
}

// Escalate bumps the escalation counter of an active activity. notify is the
// user told about it, usually the assignee's manager.
func (s Service) Escalate(ctx context.Context, id, notify, reason string) (domain.Activity, error) {
	return s.mutate(ctx, id, func(_ repo.Repo, a *domain.Activity, now time.Time, emit emitFunc) error {
		if !a.Status.Active() {
			return domain.TransitionError{From: a.Status, To: a.Status}
		}
		a.EscalationCount++
		a.LastEscalatedAt = &now
		payload := events.Payload{
			"escalation_count": a.EscalationCount,
			"reason":           reason,
		}
		if notify != "" {
			payload["notify"] = notify
		}
		return emit(events.ActivityEscalated, *a, domain.SystemActor, payload)
	})
}

func (s Service) RecordReminder(ctx context.Context, id string) (domain.Activity, error) {
	return s.mutate(ctx, id, func(_ repo.Repo, a *domain.Activity, _ time.Time, emit emitFunc) error {
		if !a.Status.Active() {
			return domain.TransitionError{From: a.Status, To: a.Status}
		}
		a.ReminderCount++
		return emit(events.ActivityReminder, *a, domain.SystemActor, events.Payload{
			"reminder_count": a.ReminderCount,
			"due_date":       a.DueDate.Format(time.RFC3339),
		})
	})
}

// UpdateChecklistItem marks a checklist item done or not done.
func (s Service) UpdateChecklistItem(ctx context.Context, id, itemID string, done bool, userID string) (domain.Activity, error) {
	return s.mutate(ctx, id, func(_ repo.Repo, a *domain.Activity, _ time.Time, emit emitFunc) error {
		if a.Status.Terminal() {
			return domain.TransitionError{From: a.Status, To: a.Status}
		}
		progress := make(map[string]bool, len(a.ChecklistProgress)+1)
		for k, v := range a.ChecklistProgress {
			progress[k] = v
		}
		progress[itemID] = done
		if err := domain.ValidateChecklistProgress(a.Checklist, progress); err != nil {
			return err
		}
		a.ChecklistProgress = progress
		return emit(events.ActivityChecklist, *a, userID, events.Payload{
			"item_id": itemID,
			"done":    done,
		})
	})
}

// AddNote attaches a note. Notes are allowed on closed activities.
func (s Service) AddNote(ctx context.Context, id, userID, body string) (domain.Note, error) {
	if strings.TrimSpace(body) == "" {
		return domain.Note{}, domain.ValidationError{Field: "body", Message: "required"}
	}
	var note domain.Note
	_, err := s.mutate(ctx, id, func(tx repo.Repo, a *domain.Activity, now time.Time, emit emitFunc) error {
		note = domain.Note{
			ID:         s.newID(),
			ActivityID: a.ID,
			AuthorID:   userID,
			Body:       body,
			CreatedAt:  now,
		}
		if err := tx.InsertNote(ctx, note); err != nil {
			return fmt.Errorf("insert note: %w", err)
		}
		return emit(events.ActivityNoteAdded, *a, userID, events.Payload{"note_id": note.ID})
	})
	return note, err
}

// Delete soft-deletes an activity; reads no longer return it.
func (s Service) Delete(ctx context.Context, id, userID string) error {
	_, err := s.mutate(ctx, id, func(_ repo.Repo, a *domain.Activity, now time.Time, emit emitFunc) error {
		a.DeletedAt = &now
		return emit(events.ActivityDeleted, *a, userID, nil)
	})
	return err
}
