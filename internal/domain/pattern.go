package domain

import (
	"fmt"
	"strings"
	"time"
)

// WildcardEntityType on a pattern matches every entity type.
const WildcardEntityType = "*"

// ActivityPattern describes how to auto-generate an activity from an event.
type ActivityPattern struct {
	ID                    string          `json:"id" yaml:"id,omitempty"`
	OrgID                 string          `json:"org_id" yaml:"org_id,omitempty"`
	PatternCode           string          `json:"pattern_code" yaml:"pattern_code"`
	Name                  string          `json:"name,omitempty" yaml:"name,omitempty"`
	ActivityType          string          `json:"activity_type" yaml:"activity_type"`
	TriggerEvent          string          `json:"trigger_event" yaml:"trigger_event"`
	EntityType            string          `json:"entity_type" yaml:"entity_type"`
	AssignTo              RuleSpec        `json:"assign_to" yaml:"assign_to"`
	DueOffsetHours        int             `json:"due_offset_hours,omitempty" yaml:"due_offset_hours,omitempty"`
	DueOffsetBusinessDays *int            `json:"due_offset_business_days,omitempty" yaml:"due_offset_business_days,omitempty"`
	SpecificTime          string          `json:"specific_time,omitempty" yaml:"specific_time,omitempty"`
	UseBusinessHours      bool            `json:"use_business_hours,omitempty" yaml:"use_business_hours,omitempty"`
	SubjectTemplate       string          `json:"subject_template" yaml:"subject_template"`
	DescriptionTemplate   string          `json:"description_template,omitempty" yaml:"description_template,omitempty"`
	Instructions          string          `json:"instructions,omitempty" yaml:"instructions,omitempty"`
	Checklist             []ChecklistItem `json:"checklist,omitempty" yaml:"checklist,omitempty"`
	Priority              Priority        `json:"priority" yaml:"priority,omitempty" enum:"low,normal,high,urgent"`
	Tags                  []string        `json:"tags,omitempty" yaml:"tags,omitempty"`
	IsActive              bool            `json:"is_active" yaml:"is_active"`
	CreatedAt             time.Time       `json:"created_at" yaml:"-" format:"date-time"`
	UpdatedAt             time.Time       `json:"updated_at" yaml:"-" format:"date-time"`
}

// Matches reports whether the pattern is eligible for the event.
func (p ActivityPattern) Matches(ev Event) bool {
	if !p.IsActive || p.TriggerEvent != ev.Type {
		return false
	}
	if p.OrgID != "" && ev.OrgID != "" && p.OrgID != ev.OrgID {
		return false
	}
	return p.EntityType == "" || p.EntityType == WildcardEntityType || p.EntityType == ev.EntityType
}

// Validate checks the structural fields of a pattern. Template syntax is
// checked separately by the engine.
func (p ActivityPattern) Validate() error {
	if strings.TrimSpace(p.PatternCode) == "" {
		return invalid("pattern_code", "required")
	}
	if strings.TrimSpace(p.ActivityType) == "" {
		return invalid("activity_type", "required")
	}
	if strings.TrimSpace(p.TriggerEvent) == "" {
		return invalid("trigger_event", "required")
	}
	if strings.TrimSpace(p.SubjectTemplate) == "" {
		return invalid("subject_template", "required")
	}
	if p.Priority != "" && !p.Priority.Valid() {
		return invalid("priority", fmt.Sprintf("unknown priority %q", p.Priority))
	}
	if _, err := p.AssignTo.Rule(); err != nil {
		return err
	}
	if p.SpecificTime != "" {
		if _, _, ok := ParseClock(p.SpecificTime); !ok {
			return invalid("specific_time", fmt.Sprintf("expected HH:MM, got %q", p.SpecificTime))
		}
	}
	return ValidateChecklist(p.Checklist)
}

// ParseClock parses "HH:MM" in 24h form.
func ParseClock(s string) (hour, minute int, ok bool) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, false
	}
	return t.Hour(), t.Minute(), true
}
