// Package activity implements the activity lifecycle: creation, status
// transitions, derived read views and team queues.
package activity

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/SumanthNagolu/intime-v3-sub020/internal/domain"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/duedate"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/events"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/metrics"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/repo"
)

const defaultDueHours = 24

// Service mutates activities. Every mutation loads the row, applies the
// change and appends its event in one transaction; events are published
// after commit.
type Service struct {
	Repo      repo.Repo
	Events    events.Writer
	Publisher events.Publisher
	Metrics   *metrics.Metrics
	Logger    *log.Logger
	Now       func() time.Time
	NewID     func() string
	// Location decides calendar days for summaries and queues.
	Location *time.Location
	// DefaultDueHours is used when a direct create omits the due date.
	DefaultDueHours int
}

func New(db *sql.DB) Service {
	return Service{
		Repo:            repo.Repo{DB: db},
		Publisher:       events.Nop{},
		Now:             time.Now,
		NewID:           uuid.NewString,
		Location:        time.UTC,
		DefaultDueHours: defaultDueHours,
	}
}

func (s Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s Service) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}

func (s Service) logger() *log.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return log.Default()
}

func (s Service) loc() *time.Location {
	if s.Location != nil {
		return s.Location
	}
	return time.UTC
}

type emitFunc func(evtType string, a domain.Activity, actorID string, payload events.Payload) error

// inTx runs fn in a transaction and publishes the events it emitted once the
// transaction commits. Publish failures are logged, never returned.
func (s Service) inTx(ctx context.Context, fn func(tx repo.Repo, emit emitFunc) error) error {
	var pending []domain.EventRecord
	w := s.Events
	if w.Now == nil {
		w.Now = s.now
	}
	err := s.Repo.InTx(ctx, func(tx repo.Repo) error {
		emit := func(evtType string, a domain.Activity, actorID string, payload events.Payload) error {
			if payload == nil {
				payload = events.Payload{}
			}
			payload["activity_number"] = a.ActivityNumber
			payload["activity_type"] = a.ActivityType
			payload["entity_type"] = a.EntityType
			payload["entity_id"] = a.EntityID
			payload["status"] = string(a.Status)
			if a.AssignedTo != "" {
				payload["assigned_to"] = a.AssignedTo
			}
			rec, err := w.Append(ctx, tx, evtType, a.OrgID, events.EntityKindActivity, a.ID, actorID, payload)
			if err != nil {
				return err
			}
			pending = append(pending, rec)
			return nil
		}
		return fn(tx, emit)
	})
	if err != nil {
		return err
	}
	for _, rec := range pending {
		s.Metrics.ActivityEvent(rec.Type)
		if s.Publisher == nil {
			continue
		}
		if err := s.Publisher.Publish(ctx, rec); err != nil {
			s.logger().Warn("publish event", "type", rec.Type, "activity_id", rec.EntityID, "error", err)
		}
	}
	return nil
}

// mutate loads id, lets apply change it and persists the result.
func (s Service) mutate(ctx context.Context, id string, apply func(tx repo.Repo, a *domain.Activity, now time.Time, emit emitFunc) error) (domain.Activity, error) {
	var out domain.Activity
	err := s.inTx(ctx, func(tx repo.Repo, emit emitFunc) error {
		a, err := tx.GetActivity(ctx, id)
		if err != nil {
			return fmt.Errorf("activity %s: %w", id, err)
		}
		now := s.now()
		a.UpdatedAt = now
		if err := apply(tx, &a, now, emit); err != nil {
			return err
		}
		if err := tx.UpdateActivity(ctx, a); err != nil {
			return fmt.Errorf("update activity %s: %w", id, err)
		}
		out = a
		return nil
	})
	return out, err
}

// CreateInput describes a new activity.
type CreateInput struct {
	ID                  string
	OrgID               string
	ActivityType        string
	PatternCode         string
	PatternID           string
	IsAutoCreated       bool
	SourceEventID       string
	Subject             string
	Body                string
	Description         string
	Instructions        string
	Checklist           []domain.ChecklistItem
	Tags                []string
	EntityType          string
	EntityID            string
	SecondaryEntityType string
	SecondaryEntityID   string
	AssignedTo          string
	AssignedGroup       string
	CreatedBy           string
	Status              domain.Status
	Priority            domain.Priority
	DueDate             time.Time
	ScheduledAt         *time.Time
	FollowUpRequired    bool
	FollowUpDate        *time.Time
}

func (in CreateInput) validate() error {
	switch {
	case strings.TrimSpace(in.OrgID) == "":
		return domain.ValidationError{Field: "org_id", Message: "required"}
	case strings.TrimSpace(in.ActivityType) == "":
		return domain.ValidationError{Field: "activity_type", Message: "required"}
	case strings.TrimSpace(in.Subject) == "":
		return domain.ValidationError{Field: "subject", Message: "required"}
	case in.EntityType == "" || in.EntityID == "":
		return domain.ValidationError{Field: "entity", Message: "entity_type and entity_id are required"}
	case in.AssignedTo == "" && in.AssignedGroup == "":
		return domain.ValidationError{Field: "assigned_to", Message: "assignee or group required"}
	case in.Status != "" && !in.Status.Valid():
		return domain.ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", in.Status)}
	case in.Priority != "" && !in.Priority.Valid():
		return domain.ValidationError{Field: "priority", Message: fmt.Sprintf("unknown priority %q", in.Priority)}
	}
	return domain.ValidateChecklist(in.Checklist)
}

// Create persists a new activity and emits activity.created.
func (s Service) Create(ctx context.Context, in CreateInput) (domain.Activity, error) {
	var out domain.Activity
	err := s.inTx(ctx, func(tx repo.Repo, emit emitFunc) error {
		a, err := s.create(ctx, tx, emit, in)
		out = a
		return err
	})
	return out, err
}

func (s Service) create(ctx context.Context, tx repo.Repo, emit emitFunc, in CreateInput) (domain.Activity, error) {
	if err := in.validate(); err != nil {
		return domain.Activity{}, err
	}
	now := s.now()
	seq, err := tx.NextSequence(ctx, in.OrgID, "activity")
	if err != nil {
		return domain.Activity{}, err
	}
	a := domain.Activity{
		ID:                  in.ID,
		OrgID:               in.OrgID,
		ActivityNumber:      fmt.Sprintf("ACT-%06d", seq),
		ActivityType:        in.ActivityType,
		PatternCode:         in.PatternCode,
		PatternID:           in.PatternID,
		IsAutoCreated:       in.IsAutoCreated,
		SourceEventID:       in.SourceEventID,
		Subject:             in.Subject,
		Body:                in.Body,
		Description:         in.Description,
		Instructions:        in.Instructions,
		Checklist:           in.Checklist,
		Tags:                in.Tags,
		EntityType:          in.EntityType,
		EntityID:            in.EntityID,
		SecondaryEntityType: in.SecondaryEntityType,
		SecondaryEntityID:   in.SecondaryEntityID,
		AssignedTo:          in.AssignedTo,
		AssignedGroup:       in.AssignedGroup,
		CreatedBy:           in.CreatedBy,
		Status:              in.Status,
		Priority:            in.Priority,
		DueDate:             in.DueDate.UTC(),
		ScheduledAt:         in.ScheduledAt,
		FollowUpRequired:    in.FollowUpRequired,
		FollowUpDate:        in.FollowUpDate,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if a.ID == "" {
		a.ID = s.newID()
	}
	if a.CreatedBy == "" {
		a.CreatedBy = domain.SystemActor
	}
	if a.Status == "" {
		a.Status = domain.StatusOpen
	}
	if a.Priority == "" {
		a.Priority = domain.PriorityNormal
	}
	if in.DueDate.IsZero() {
		hours := s.DefaultDueHours
		if hours <= 0 {
			hours = defaultDueHours
		}
		a.DueDate = now.Add(time.Duration(hours) * time.Hour)
	}
	if a.AssignedTo != "" {
		a.AssignedAt = &now
	}
	if a.Status == domain.StatusInProgress {
		a.StartedAt = &now
	}
	if err := tx.InsertActivity(ctx, a); err != nil {
		return domain.Activity{}, fmt.Errorf("insert activity: %w", err)
	}
	payload := events.Payload{
		"subject":         a.Subject,
		"priority":        string(a.Priority),
		"due_date":        a.DueDate.Format(time.RFC3339),
		"is_auto_created": a.IsAutoCreated,
	}
	if a.PatternCode != "" {
		payload["pattern_code"] = a.PatternCode
	}
	if a.AssignedGroup != "" {
		payload["assigned_group"] = a.AssignedGroup
	}
	if err := emit(events.ActivityCreated, a, a.CreatedBy, payload); err != nil {
		return domain.Activity{}, err
	}
	return a, nil
}

// Get loads a live activity.
func (s Service) Get(ctx context.Context, id string) (domain.Activity, error) {
	a, err := s.Repo.GetActivity(ctx, id)
	if err != nil {
		return a, fmt.Errorf("activity %s: %w", id, err)
	}
	return a, nil
}

// GetMany lists activities matching f.
func (s Service) GetMany(ctx context.Context, f domain.ActivityFilter) ([]domain.Activity, error) {
	if f.Now.IsZero() {
		f.Now = s.now()
	}
	return s.Repo.ListActivities(ctx, f)
}

// Notes lists the notes of an activity, oldest first.
func (s Service) Notes(ctx context.Context, id string) ([]domain.Note, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.Repo.ListNotes(ctx, id)
}

// GetSummary counts the user's activities in a single pass. Overdue and
// due-window counts only consider open and in-progress work.
func (s Service) GetSummary(ctx context.Context, orgID, userID string) (domain.Summary, error) {
	var sum domain.Summary
	list, err := s.Repo.ListActivities(ctx, domain.ActivityFilter{OrgID: orgID, AssignedTo: userID})
	if err != nil {
		return sum, err
	}
	now := s.now().In(s.loc())
	endOfToday := duedate.EndOfDay(now)
	endOfWeek := duedate.EndOfDay(now.AddDate(0, 0, 6))
	for _, a := range list {
		sum.Total++
		switch a.Status {
		case domain.StatusOpen:
			sum.Open++
		case domain.StatusInProgress:
			sum.InProgress++
		case domain.StatusCompleted:
			sum.Completed++
		case domain.StatusSkipped:
			sum.Skipped++
		case domain.StatusCancelled:
			sum.Cancelled++
		case domain.StatusDeferred:
			sum.Deferred++
		}
		if !a.Status.Active() {
			continue
		}
		switch {
		case a.DueDate.Before(now):
			sum.Overdue++
		case !a.DueDate.After(endOfToday):
			sum.DueToday++
			sum.DueThisWeek++
		case !a.DueDate.After(endOfWeek):
			sum.DueThisWeek++
		}
	}
	return sum, nil
}
