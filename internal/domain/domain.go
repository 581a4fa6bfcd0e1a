package domain

import "time"

// SystemActor is recorded as creator/actor for work done by the engine.
const SystemActor = "system"

// EntityRef points at a CRM entity (job, candidate, account, ...).
type EntityRef struct {
	EntityType string `json:"entity_type" yaml:"entity_type"`
	EntityID   string `json:"entity_id" yaml:"entity_id"`
}

// Event is an immutable record of something that happened in the CRM.
type Event struct {
	ID              string         `json:"id,omitempty"`
	Type            string         `json:"type"`
	OrgID           string         `json:"org_id"`
	EntityType      string         `json:"entity_type"`
	EntityID        string         `json:"entity_id"`
	ActorID         string         `json:"actor_id,omitempty"`
	ActorType       string         `json:"actor_type,omitempty" enum:"user,system,integration"`
	ActorName       string         `json:"actor_name,omitempty"`
	OccurredAt      time.Time      `json:"occurred_at" format:"date-time"`
	EventData       map[string]any `json:"event_data,omitempty"`
	RelatedEntities []EntityRef    `json:"related_entities,omitempty"`
}

// EventRecord is a row of the event log: inbound CRM events and the
// activity.* events emitted by the service.
type EventRecord struct {
	ID         int64          `json:"id"`
	UID        string         `json:"uid"`
	TS         time.Time      `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	OrgID      string         `json:"org_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// RACIRole is an ownership role on an entity.
type RACIRole string

const (
	RACIResponsible RACIRole = "responsible"
	RACIAccountable RACIRole = "accountable"
	RACIConsulted   RACIRole = "consulted"
	RACIInformed    RACIRole = "informed"
)

// ParseRACIRole accepts the letter form (R/A/C/I) or the full name.
func ParseRACIRole(s string) (RACIRole, bool) {
	switch s {
	case "R", "r", string(RACIResponsible):
		return RACIResponsible, true
	case "A", "a", string(RACIAccountable):
		return RACIAccountable, true
	case "C", "c", string(RACIConsulted):
		return RACIConsulted, true
	case "I", "i", string(RACIInformed):
		return RACIInformed, true
	}
	return "", false
}

// EntityOwner links a user to an entity under a RACI role.
type EntityOwner struct {
	OrgID      string    `json:"org_id"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	UserID     string    `json:"user_id"`
	Role       RACIRole  `json:"raci_role" enum:"responsible,accountable,consulted,informed"`
	IsPrimary  bool      `json:"is_primary"`
	CreatedAt  time.Time `json:"created_at" format:"date-time"`
}

// Note is a free-text comment attached to an activity.
type Note struct {
	ID         string    `json:"id"`
	ActivityID string    `json:"activity_id"`
	AuthorID   string    `json:"author_id"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at" format:"date-time"`
}
