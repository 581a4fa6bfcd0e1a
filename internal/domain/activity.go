package domain

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of an Activity.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusSkipped    Status = "skipped"
	StatusCancelled  Status = "cancelled"
	StatusDeferred   Status = "deferred"
)

// ActiveStatuses are the statuses that count as outstanding work.
var ActiveStatuses = []Status{StatusOpen, StatusInProgress}

func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusCompleted, StatusSkipped, StatusCancelled, StatusDeferred:
		return true
	}
	return false
}

// Active reports whether the activity still needs doing.
func (s Status) Active() bool {
	return s == StatusOpen || s == StatusInProgress
}

// Terminal reports whether no further status change is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusSkipped
}

// EnsureTransition validates a status change.
func EnsureTransition(from, to Status) error {
	switch from {
	case StatusOpen:
		switch to {
		case StatusInProgress, StatusCompleted, StatusSkipped, StatusCancelled, StatusDeferred:
			return nil
		}
	case StatusInProgress:
		switch to {
		case StatusOpen, StatusCompleted, StatusSkipped, StatusCancelled, StatusDeferred:
			return nil
		}
	case StatusDeferred:
		switch to {
		case StatusOpen, StatusInProgress, StatusCompleted, StatusCancelled, StatusDeferred:
			return nil
		}
	}
	return TransitionError{From: from, To: to}
}

// Priority of an activity.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Rank orders priorities with the most urgent first.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 0
	case PriorityHigh:
		return 1
	case PriorityNormal:
		return 2
	case PriorityLow:
		return 3
	}
	return 4
}

// ChecklistItem is one step of an activity checklist.
type ChecklistItem struct {
	ID       string `json:"id" yaml:"id"`
	Label    string `json:"label" yaml:"label"`
	Required bool   `json:"required,omitempty" yaml:"required,omitempty"`
}

// Activity is a unit of assigned work tracked to completion.
type Activity struct {
	ID             string `json:"id"`
	OrgID          string `json:"org_id"`
	ActivityNumber string `json:"activity_number"`

	ActivityType  string `json:"activity_type"`
	PatternCode   string `json:"pattern_code,omitempty"`
	PatternID     string `json:"pattern_id,omitempty"`
	IsAutoCreated bool   `json:"is_auto_created"`
	SourceEventID string `json:"source_event_id,omitempty"`

	Subject           string          `json:"subject"`
	Body              string          `json:"body,omitempty"`
	Description       string          `json:"description,omitempty"`
	Instructions      string          `json:"instructions,omitempty"`
	Checklist         []ChecklistItem `json:"checklist,omitempty"`
	ChecklistProgress map[string]bool `json:"checklist_progress,omitempty"`
	Tags              []string        `json:"tags,omitempty"`

	EntityType          string `json:"entity_type"`
	EntityID            string `json:"entity_id"`
	SecondaryEntityType string `json:"secondary_entity_type,omitempty"`
	SecondaryEntityID   string `json:"secondary_entity_id,omitempty"`

	AssignedTo    string     `json:"assigned_to,omitempty"`
	AssignedGroup string     `json:"assigned_group,omitempty"`
	AssignedAt    *time.Time `json:"assigned_at,omitempty" format:"date-time"`
	CreatedBy     string     `json:"created_by"`
	PerformedBy   string     `json:"performed_by,omitempty"`

	Status          Status     `json:"status" enum:"open,in_progress,completed,skipped,cancelled,deferred"`
	Priority        Priority   `json:"priority" enum:"low,normal,high,urgent"`
	DueDate         time.Time  `json:"due_date" format:"date-time"`
	ScheduledAt     *time.Time `json:"scheduled_at,omitempty" format:"date-time"`
	StartedAt       *time.Time `json:"started_at,omitempty" format:"date-time"`
	CompletedAt     *time.Time `json:"completed_at,omitempty" format:"date-time"`
	DurationMinutes *int       `json:"duration_minutes,omitempty"`

	Outcome      string `json:"outcome,omitempty"`
	OutcomeNotes string `json:"outcome_notes,omitempty"`

	FollowUpRequired   bool       `json:"follow_up_required"`
	FollowUpDate       *time.Time `json:"follow_up_date,omitempty" format:"date-time"`
	FollowUpActivityID string     `json:"follow_up_activity_id,omitempty"`

	EscalationCount int        `json:"escalation_count"`
	LastEscalatedAt *time.Time `json:"last_escalated_at,omitempty" format:"date-time"`
	ReminderCount   int        `json:"reminder_count"`

	CreatedAt time.Time  `json:"created_at" format:"date-time"`
	UpdatedAt time.Time  `json:"updated_at" format:"date-time"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" format:"date-time"`
}

// IsOverdue reports whether an active activity is past its due date.
func (a Activity) IsOverdue(now time.Time) bool {
	return a.Status.Active() && a.DueDate.Before(now)
}

// ValidateChecklistProgress enforces that progress keys reference checklist items.
func ValidateChecklistProgress(items []ChecklistItem, progress map[string]bool) error {
	if len(progress) == 0 {
		return nil
	}
	known := make(map[string]struct{}, len(items))
	for _, it := range items {
		known[it.ID] = struct{}{}
	}
	for id := range progress {
		if _, ok := known[id]; !ok {
			return invalid("checklist_progress", fmt.Sprintf("unknown checklist item %q", id))
		}
	}
	return nil
}

// ValidateChecklist rejects empty or duplicate item ids.
func ValidateChecklist(items []ChecklistItem) error {
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		if it.ID == "" {
			return invalid("checklist", "item id is required")
		}
		if _, dup := seen[it.ID]; dup {
			return invalid("checklist", fmt.Sprintf("duplicate item id %q", it.ID))
		}
		seen[it.ID] = struct{}{}
	}
	return nil
}
