package server

import (
	"fmt"
	"strings"
	"time"

	"github.com/SumanthNagolu/intime-v3-sub020/internal/activity"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/domain"
)

// Request payloads

type EventRequest struct {
	ID              string             `json:"id,omitempty"`
	Type            string             `json:"type" minLength:"1"`
	EntityType      string             `json:"entity_type" minLength:"1"`
	EntityID        string             `json:"entity_id" minLength:"1"`
	ActorID         string             `json:"actor_id,omitempty"`
	ActorType       string             `json:"actor_type,omitempty" enum:"user,system,integration"`
	ActorName       string             `json:"actor_name,omitempty"`
	OccurredAt      *time.Time         `json:"occurred_at,omitempty" format:"date-time"`
	EventData       map[string]any     `json:"event_data,omitempty"`
	RelatedEntities []domain.EntityRef `json:"related_entities,omitempty"`
}

func (r EventRequest) event(orgID string) domain.Event {
	ev := domain.Event{
		ID:              r.ID,
		Type:            r.Type,
		OrgID:           orgID,
		EntityType:      r.EntityType,
		EntityID:        r.EntityID,
		ActorID:         r.ActorID,
		ActorType:       r.ActorType,
		ActorName:       r.ActorName,
		EventData:       r.EventData,
		RelatedEntities: r.RelatedEntities,
	}
	if r.OccurredAt != nil {
		ev.OccurredAt = *r.OccurredAt
	}
	return ev
}

type EventBatchRequest struct {
	Events      []EventRequest `json:"events"`
	Concurrency int            `json:"concurrency,omitempty" minimum:"0"`
}

type PatternRequest struct {
	Name                  string                 `json:"name,omitempty"`
	ActivityType          string                 `json:"activity_type"`
	TriggerEvent          string                 `json:"trigger_event"`
	EntityType            string                 `json:"entity_type,omitempty"`
	AssignTo              domain.RuleSpec        `json:"assign_to"`
	DueOffsetHours        int                    `json:"due_offset_hours,omitempty"`
	DueOffsetBusinessDays *int                   `json:"due_offset_business_days,omitempty"`
	SpecificTime          string                 `json:"specific_time,omitempty"`
	UseBusinessHours      bool                   `json:"use_business_hours,omitempty"`
	SubjectTemplate       string                 `json:"subject_template"`
	DescriptionTemplate   string                 `json:"description_template,omitempty"`
	Instructions          string                 `json:"instructions,omitempty"`
	Checklist             []domain.ChecklistItem `json:"checklist,omitempty"`
	Priority              domain.Priority        `json:"priority,omitempty" enum:"low,normal,high,urgent"`
	Tags                  []string               `json:"tags,omitempty"`
	IsActive              *bool                  `json:"is_active,omitempty"`
}

func (r PatternRequest) pattern(orgID, code string) domain.ActivityPattern {
	p := domain.ActivityPattern{
		OrgID:                 orgID,
		PatternCode:           code,
		Name:                  r.Name,
		ActivityType:          r.ActivityType,
		TriggerEvent:          r.TriggerEvent,
		EntityType:            r.EntityType,
		AssignTo:              r.AssignTo,
		DueOffsetHours:        r.DueOffsetHours,
		DueOffsetBusinessDays: r.DueOffsetBusinessDays,
		SpecificTime:          r.SpecificTime,
		UseBusinessHours:      r.UseBusinessHours,
		SubjectTemplate:       r.SubjectTemplate,
		DescriptionTemplate:   r.DescriptionTemplate,
		Instructions:          r.Instructions,
		Checklist:             r.Checklist,
		Priority:              r.Priority,
		Tags:                  r.Tags,
		IsActive:              true,
	}
	if r.IsActive != nil {
		p.IsActive = *r.IsActive
	}
	return p
}

type ValidatePatternRequest struct {
	PatternCode string `json:"pattern_code"`
	PatternRequest
}

type CreateActivityRequest struct {
	ActivityType        string                 `json:"activity_type"`
	Subject             string                 `json:"subject"`
	Body                string                 `json:"body,omitempty"`
	Description         string                 `json:"description,omitempty"`
	Instructions        string                 `json:"instructions,omitempty"`
	Checklist           []domain.ChecklistItem `json:"checklist,omitempty"`
	Tags                []string               `json:"tags,omitempty"`
	EntityType          string                 `json:"entity_type"`
	EntityID            string                 `json:"entity_id"`
	SecondaryEntityType string                 `json:"secondary_entity_type,omitempty"`
	SecondaryEntityID   string                 `json:"secondary_entity_id,omitempty"`
	AssignedTo          string                 `json:"assigned_to,omitempty"`
	AssignedGroup       string                 `json:"assigned_group,omitempty"`
	Status              domain.Status          `json:"status,omitempty" enum:"open,in_progress,deferred"`
	Priority            domain.Priority        `json:"priority,omitempty" enum:"low,normal,high,urgent"`
	DueDate             *time.Time             `json:"due_date,omitempty" format:"date-time"`
	ScheduledAt         *time.Time             `json:"scheduled_at,omitempty" format:"date-time"`
	FollowUpRequired    bool                   `json:"follow_up_required,omitempty"`
	FollowUpDate        *time.Time             `json:"follow_up_date,omitempty" format:"date-time"`
}

func (r CreateActivityRequest) input(orgID, actorID string) activity.CreateInput {
	in := activity.CreateInput{
		OrgID:               orgID,
		ActivityType:        r.ActivityType,
		Subject:             r.Subject,
		Body:                r.Body,
		Description:         r.Description,
		Instructions:        r.Instructions,
		Checklist:           r.Checklist,
		Tags:                r.Tags,
		EntityType:          r.EntityType,
		EntityID:            r.EntityID,
		SecondaryEntityType: r.SecondaryEntityType,
		SecondaryEntityID:   r.SecondaryEntityID,
		AssignedTo:          r.AssignedTo,
		AssignedGroup:       r.AssignedGroup,
		CreatedBy:           actorID,
		Status:              r.Status,
		Priority:            r.Priority,
		ScheduledAt:         r.ScheduledAt,
		FollowUpRequired:    r.FollowUpRequired,
		FollowUpDate:        r.FollowUpDate,
	}
	if r.DueDate != nil {
		in.DueDate = *r.DueDate
	}
	return in
}

type FollowUpRequest struct {
	ActivityType string          `json:"activity_type,omitempty"`
	Subject      string          `json:"subject"`
	Description  string          `json:"description,omitempty"`
	DueDate      time.Time       `json:"due_date" format:"date-time"`
	AssignedTo   string          `json:"assigned_to,omitempty"`
	Priority     domain.Priority `json:"priority,omitempty" enum:"low,normal,high,urgent"`
}

type CompleteActivityRequest struct {
	Outcome         string           `json:"outcome,omitempty"`
	OutcomeNotes    string           `json:"outcome_notes,omitempty"`
	DurationMinutes *int             `json:"duration_minutes,omitempty" minimum:"0"`
	FollowUp        *FollowUpRequest `json:"follow_up,omitempty"`
}

type ReasonRequest struct {
	Reason string `json:"reason,omitempty"`
}

type DueDateRequest struct {
	DueDate time.Time `json:"due_date" format:"date-time"`
	Reason  string    `json:"reason,omitempty"`
}

type ReassignRequest struct {
	AssignedTo string `json:"assigned_to" minLength:"1"`
	Reason     string `json:"reason,omitempty"`
}

type ChecklistItemRequest struct {
	Done bool `json:"done"`
}

type NoteRequest struct {
	Body string `json:"body"`
}

type TransitionCheckRequest struct {
	Requirements []domain.Requirement `json:"requirements"`
}

type OwnerRequest struct {
	UserID    string          `json:"user_id" minLength:"1"`
	RACIRole  domain.RACIRole `json:"raci_role" enum:"responsible,accountable,consulted,informed"`
	IsPrimary bool            `json:"is_primary,omitempty"`
}

type MemberRequest struct {
	DisplayName string `json:"display_name,omitempty"`
	Active      *bool  `json:"active,omitempty"`
}

type ManagerRequest struct {
	ManagerID string `json:"manager_id" minLength:"1"`
}

// Responses

type ActivityPage struct {
	Items  []domain.Activity `json:"items"`
	Total  int               `json:"total"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
}

type ProcessedEvent struct {
	Activities []domain.Activity `json:"activities"`
}

type PatternValidation struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

type UserIDs struct {
	Users []string `json:"users"`
}

// ActivityFilterQuery is shared by listing and stats.
type ActivityFilterQuery struct {
	AssignedTo    string   `query:"assigned_to"`
	AssignedGroup string   `query:"assigned_group"`
	EntityType    string   `query:"entity_type"`
	EntityID      string   `query:"entity_id"`
	Status        []string `query:"status"`
	Priority      []string `query:"priority"`
	Type          []string `query:"activity_type"`
	PatternCode   string   `query:"pattern_code"`
	DueBefore     string   `query:"due_before" doc:"RFC 3339"`
	DueAfter      string   `query:"due_after" doc:"RFC 3339"`
	Overdue       string   `query:"overdue" doc:"true or false"`
	AutoCreated   string   `query:"is_auto_created" doc:"true or false"`
	Unassigned    bool     `query:"unassigned"`
}

func (q ActivityFilterQuery) filter(orgID string) (domain.ActivityFilter, error) {
	f := domain.ActivityFilter{
		OrgID:         orgID,
		AssignedTo:    q.AssignedTo,
		AssignedGroup: q.AssignedGroup,
		EntityType:    q.EntityType,
		EntityID:      q.EntityID,
		Types:         splitValues(q.Type),
		PatternCode:   q.PatternCode,
		Unassigned:    q.Unassigned,
	}
	for _, s := range splitValues(q.Status) {
		st := domain.Status(s)
		if !st.Valid() {
			return f, domain.ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", s)}
		}
		f.Statuses = append(f.Statuses, st)
	}
	for _, s := range splitValues(q.Priority) {
		p := domain.Priority(s)
		if !p.Valid() {
			return f, domain.ValidationError{Field: "priority", Message: fmt.Sprintf("unknown priority %q", s)}
		}
		f.Priorities = append(f.Priorities, p)
	}
	var err error
	if f.DueBefore, err = parseTimeParam("due_before", q.DueBefore); err != nil {
		return f, err
	}
	if f.DueAfter, err = parseTimeParam("due_after", q.DueAfter); err != nil {
		return f, err
	}
	f.Overdue = parseBoolParam(q.Overdue)
	f.IsAutoCreated = parseBoolParam(q.AutoCreated)
	return f, nil
}

// splitValues accepts both repeated and comma-separated query values.
func splitValues(in []string) []string {
	var out []string
	for _, v := range in {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func parseTimeParam(name, v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, domain.ValidationError{Field: name, Message: "expected RFC 3339 timestamp"}
	}
	return &t, nil
}

func parseBoolParam(v string) *bool {
	switch v {
	case "true":
		b := true
		return &b
	case "false":
		b := false
		return &b
	}
	return nil
}
