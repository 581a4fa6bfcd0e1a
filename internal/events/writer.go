package events

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/SumanthNagolu/intime-v3-sub020/internal/domain"
)

// Activity event types emitted by the service.
const (
	ActivityCreated     = "activity.created"
	ActivityStarted     = "activity.started"
	ActivityCompleted   = "activity.completed"
	ActivityRescheduled = "activity.rescheduled"
	ActivityReassigned  = "activity.reassigned"
	ActivityCancelled   = "activity.cancelled"
	ActivityDeferred    = "activity.deferred"
	ActivitySkipped     = "activity.skipped"
	ActivityReactivated = "activity.reactivated"
	ActivityClaimed     = "activity.claimed"
	ActivityReleased    = "activity.released"
	ActivityEscalated   = "activity.escalated"
	ActivityReminder    = "activity.reminder"
	ActivityNoteAdded   = "activity.note_added"
	ActivityChecklist   = "activity.checklist_updated"
	ActivityDeleted     = "activity.deleted"

	EntityKindActivity = "activity"
)

type Payload map[string]any

// Store persists event log rows; repo.Repo implements it.
type Store interface {
	InsertEvent(ctx context.Context, rec domain.EventRecord) (domain.EventRecord, bool, error)
}

// Writer appends to the event log through whatever store it is handed, so a
// transaction-bound store keeps the append atomic with the row change.
type Writer struct {
	Now    func() time.Time
	NewUID func() string
}

func (w Writer) Append(ctx context.Context, store Store, evtType, orgID, entityKind, entityID, actorID string, payload Payload) (domain.EventRecord, error) {
	if w.Now == nil {
		w.Now = time.Now
	}
	if w.NewUID == nil {
		w.NewUID = uuid.NewString
	}
	if payload == nil {
		payload = Payload{}
	}
	if actorID == "" {
		actorID = domain.SystemActor
	}
	rec, _, err := store.InsertEvent(ctx, domain.EventRecord{
		UID:        w.NewUID(),
		TS:         w.Now().UTC(),
		Type:       evtType,
		OrgID:      orgID,
		EntityKind: entityKind,
		EntityID:   entityID,
		ActorID:    actorID,
		Payload:    payload,
	})
	if err != nil {
		return rec, fmt.Errorf("append %s event: %w", evtType, err)
	}
	return rec, nil
}

// RecordInbound stores a CRM event in the log once, keyed on its id. It
// reports whether the event was new.
func (w Writer) RecordInbound(ctx context.Context, store Store, ev domain.Event) (domain.EventRecord, bool, error) {
	if w.NewUID == nil {
		w.NewUID = uuid.NewString
	}
	uid := ev.ID
	if uid == "" {
		uid = w.NewUID()
	}
	ts := ev.OccurredAt
	if ts.IsZero() {
		if w.Now == nil {
			w.Now = time.Now
		}
		ts = w.Now()
	}
	actor := ev.ActorID
	if actor == "" {
		actor = domain.SystemActor
	}
	payload := Payload{"event_data": ev.EventData}
	if ev.ActorName != "" {
		payload["actor_name"] = ev.ActorName
	}
	if ev.ActorType != "" {
		payload["actor_type"] = ev.ActorType
	}
	if len(ev.RelatedEntities) > 0 {
		related := make([]map[string]any, 0, len(ev.RelatedEntities))
		for _, r := range ev.RelatedEntities {
			related = append(related, map[string]any{"entity_type": r.EntityType, "entity_id": r.EntityID})
		}
		payload["related_entities"] = related
	}
	rec, inserted, err := store.InsertEvent(ctx, domain.EventRecord{
		UID:        uid,
		TS:         ts.UTC(),
		Type:       ev.Type,
		OrgID:      ev.OrgID,
		EntityKind: ev.EntityType,
		EntityID:   ev.EntityID,
		ActorID:    actor,
		Payload:    payload,
	})
	if err != nil {
		return rec, false, fmt.Errorf("record event %s: %w", ev.Type, err)
	}
	return rec, inserted, nil
}
