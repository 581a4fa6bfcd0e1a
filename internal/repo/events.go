package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/SumanthNagolu/intime-v3-sub020/internal/domain"
)

// InsertEvent appends a row to the event log. A record whose UID already
// exists is left untouched and the stored row is returned with inserted=false.
func (r Repo) InsertEvent(ctx context.Context, rec domain.EventRecord) (domain.EventRecord, bool, error) {
	payload := rec.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return rec, false, fmt.Errorf("marshal event payload: %w", err)
	}
	res, err := r.q().ExecContext(ctx, `INSERT INTO events(uid,ts,type,org_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?,?)
ON CONFLICT(uid) DO NOTHING`,
		rec.UID, formatTime(rec.TS), rec.Type, nullable(rec.OrgID), rec.EntityKind, nullable(rec.EntityID), rec.ActorID, string(data))
	if err != nil {
		return rec, false, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		existing, err := r.GetEventByUID(ctx, rec.UID)
		return existing, false, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return rec, false, err
	}
	rec.ID = id
	rec.Payload = payload
	return rec, true, nil
}

const eventSelect = `SELECT id,uid,ts,type,COALESCE(org_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events`

func scanEvent(s scanner) (domain.EventRecord, error) {
	var e domain.EventRecord
	var ts, payload string
	err := s.Scan(&e.ID, &e.UID, &ts, &e.Type, &e.OrgID, &e.EntityKind, &e.EntityID, &e.ActorID, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return e, ErrNotFound
	}
	if err != nil {
		return e, err
	}
	if e.TS, err = parseTime(ts); err != nil {
		return e, err
	}
	if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
		return e, fmt.Errorf("event %d payload: %w", e.ID, err)
	}
	return e, nil
}

func (r Repo) GetEventByUID(ctx context.Context, uid string) (domain.EventRecord, error) {
	return scanEvent(r.q().QueryRowContext(ctx, eventSelect+` WHERE uid=?`, uid))
}

// EventFilter narrows event log reads.
type EventFilter struct {
	OrgID      string
	Type       string
	EntityKind string
	EntityID   string
	// ActivityIDs also matches activity.* events recorded against these
	// activities.
	ActivityIDs []string
	// AfterID reads forward from a cursor; zero reads the latest events
	// unless Forward is set.
	AfterID int64
	Forward bool
	Limit   int
}

// ListEvents returns events newest first, or oldest first when AfterID is set.
func (r Repo) ListEvents(ctx context.Context, f EventFilter) ([]domain.EventRecord, error) {
	var clauses []string
	var args []any
	if f.OrgID != "" {
		clauses = append(clauses, "org_id=?")
		args = append(args, f.OrgID)
	}
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	entity := ""
	if f.EntityKind != "" && f.EntityID != "" {
		entity = "(entity_kind=? AND entity_id=?)"
		args = append(args, f.EntityKind, f.EntityID)
	} else if f.EntityKind != "" {
		entity = "entity_kind=?"
		args = append(args, f.EntityKind)
	}
	if len(f.ActivityIDs) > 0 {
		cond := "(entity_kind='activity' AND entity_id IN (" + strings.TrimSuffix(strings.Repeat("?,", len(f.ActivityIDs)), ",") + "))"
		for _, id := range f.ActivityIDs {
			args = append(args, id)
		}
		if entity != "" {
			entity = "(" + entity + " OR " + cond + ")"
		} else {
			entity = cond
		}
	}
	if entity != "" {
		clauses = append(clauses, entity)
	}
	order := " ORDER BY id DESC"
	if f.AfterID > 0 || f.Forward {
		clauses = append(clauses, "id > ?")
		args = append(args, f.AfterID)
		order = " ORDER BY id ASC"
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}
	query := eventSelect + where + order
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.q().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.EventRecord
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestEventID returns the id of the newest event, or 0 for an empty log.
func (r Repo) LatestEventID(ctx context.Context, orgID string) (int64, error) {
	query := `SELECT COALESCE(MAX(id),0) FROM events`
	var args []any
	if orgID != "" {
		query += ` WHERE org_id=?`
		args = append(args, orgID)
	}
	var id int64
	err := r.q().QueryRowContext(ctx, query, args...).Scan(&id)
	return id, err
}

// ListEventsAfter reads the log forward from a cursor.
func (r Repo) ListEventsAfter(ctx context.Context, orgID string, afterID int64, limit int) ([]domain.EventRecord, error) {
	return r.ListEvents(ctx, EventFilter{OrgID: orgID, AfterID: afterID, Forward: true, Limit: limit})
}
