package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/SumanthNagolu/intime-v3-sub020/internal/domain"
)

var activityColumns = []string{
	"id", "org_id", "activity_number", "activity_type", "pattern_code", "pattern_id", "is_auto_created", "source_event_id",
	"subject", "body", "description", "instructions", "checklist_json", "checklist_progress_json", "tags_json",
	"entity_type", "entity_id", "secondary_entity_type", "secondary_entity_id",
	"assigned_to", "assigned_group", "assigned_at", "created_by", "performed_by",
	"status", "priority", "due_date", "scheduled_at", "started_at", "completed_at", "duration_minutes",
	"outcome", "outcome_notes", "follow_up_required", "follow_up_date", "follow_up_activity_id",
	"escalation_count", "last_escalated_at", "reminder_count", "created_at", "updated_at", "deleted_at",
}

var (
	activitySelect = `SELECT ` + strings.Join(activityColumns, ",") + ` FROM activities`
	activityInsert = `INSERT INTO activities(` + strings.Join(activityColumns, ",") + `) VALUES (` +
		strings.TrimSuffix(strings.Repeat("?,", len(activityColumns)), ",") + `)`
	activityUpdate = `UPDATE activities SET ` + strings.Join(activityColumns[1:], "=?,") + `=? WHERE id=?`
)

func activityArgs(a domain.Activity) ([]any, error) {
	checklist, err := marshalJSON(a.Checklist)
	if err != nil {
		return nil, fmt.Errorf("marshal checklist: %w", err)
	}
	progress, err := marshalJSON(a.ChecklistProgress)
	if err != nil {
		return nil, fmt.Errorf("marshal checklist progress: %w", err)
	}
	tags, err := marshalJSON(a.Tags)
	if err != nil {
		return nil, fmt.Errorf("marshal tags: %w", err)
	}
	return []any{
		a.ID, a.OrgID, a.ActivityNumber, a.ActivityType, nullable(a.PatternCode), nullable(a.PatternID), boolInt(a.IsAutoCreated), nullable(a.SourceEventID),
		a.Subject, nullable(a.Body), nullable(a.Description), nullable(a.Instructions), checklist, progress, tags,
		a.EntityType, a.EntityID, nullable(a.SecondaryEntityType), nullable(a.SecondaryEntityID),
		nullable(a.AssignedTo), nullable(a.AssignedGroup), nullableTime(a.AssignedAt), a.CreatedBy, nullable(a.PerformedBy),
		string(a.Status), string(a.Priority), formatTime(a.DueDate), nullableTime(a.ScheduledAt), nullableTime(a.StartedAt), nullableTime(a.CompletedAt), nullableIntPtr(a.DurationMinutes),
		nullable(a.Outcome), nullable(a.OutcomeNotes), boolInt(a.FollowUpRequired), nullableTime(a.FollowUpDate), nullable(a.FollowUpActivityID),
		a.EscalationCount, nullableTime(a.LastEscalatedAt), a.ReminderCount, formatTime(a.CreatedAt), formatTime(a.UpdatedAt), nullableTime(a.DeletedAt),
	}, nil
}

func scanActivity(s scanner) (domain.Activity, error) {
	var a domain.Activity
	var (
		patternCode, patternID, sourceEventID, body, description, instructions sql.NullString
		checklist, progress, tags, secondaryType, secondaryID                  sql.NullString
		assignedTo, assignedGroup, assignedAt, performedBy                     sql.NullString
		status, priority, dueDate, scheduledAt, startedAt, completedAt         sql.NullString
		outcome, outcomeNotes, followUpDate, followUpID, lastEscalatedAt       sql.NullString
		createdAt, updatedAt, deletedAt                                        sql.NullString
		autoCreated, followUpRequired                                          int
		duration                                                               sql.NullInt64
	)
	err := s.Scan(&a.ID, &a.OrgID, &a.ActivityNumber, &a.ActivityType, &patternCode, &patternID, &autoCreated, &sourceEventID,
		&a.Subject, &body, &description, &instructions, &checklist, &progress, &tags,
		&a.EntityType, &a.EntityID, &secondaryType, &secondaryID,
		&assignedTo, &assignedGroup, &assignedAt, &a.CreatedBy, &performedBy,
		&status, &priority, &dueDate, &scheduledAt, &startedAt, &completedAt, &duration,
		&outcome, &outcomeNotes, &followUpRequired, &followUpDate, &followUpID,
		&a.EscalationCount, &lastEscalatedAt, &a.ReminderCount, &createdAt, &updatedAt, &deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	a.PatternCode = patternCode.String
	a.PatternID = patternID.String
	a.IsAutoCreated = autoCreated == 1
	a.SourceEventID = sourceEventID.String
	a.Body = body.String
	a.Description = description.String
	a.Instructions = instructions.String
	a.SecondaryEntityType = secondaryType.String
	a.SecondaryEntityID = secondaryID.String
	a.AssignedTo = assignedTo.String
	a.AssignedGroup = assignedGroup.String
	a.PerformedBy = performedBy.String
	a.Status = domain.Status(status.String)
	a.Priority = domain.Priority(priority.String)
	a.Outcome = outcome.String
	a.OutcomeNotes = outcomeNotes.String
	a.FollowUpRequired = followUpRequired == 1
	a.FollowUpActivityID = followUpID.String
	if duration.Valid {
		d := int(duration.Int64)
		a.DurationMinutes = &d
	}
	if err := unmarshalJSON(checklist, &a.Checklist); err != nil {
		return a, fmt.Errorf("activity %s checklist: %w", a.ID, err)
	}
	if err := unmarshalJSON(progress, &a.ChecklistProgress); err != nil {
		return a, fmt.Errorf("activity %s checklist progress: %w", a.ID, err)
	}
	if err := unmarshalJSON(tags, &a.Tags); err != nil {
		return a, fmt.Errorf("activity %s tags: %w", a.ID, err)
	}
	if a.DueDate, err = parseTime(dueDate.String); err != nil {
		return a, err
	}
	if a.CreatedAt, err = parseTime(createdAt.String); err != nil {
		return a, err
	}
	if a.UpdatedAt, err = parseTime(updatedAt.String); err != nil {
		return a, err
	}
	for _, f := range []struct {
		src sql.NullString
		dst **time.Time
	}{
		{assignedAt, &a.AssignedAt}, {scheduledAt, &a.ScheduledAt}, {startedAt, &a.StartedAt},
		{completedAt, &a.CompletedAt}, {followUpDate, &a.FollowUpDate}, {lastEscalatedAt, &a.LastEscalatedAt},
		{deletedAt, &a.DeletedAt},
	} {
		if *f.dst, err = parseNullTime(f.src); err != nil {
			return a, err
		}
	}
	return a, nil
}

func (r Repo) InsertActivity(ctx context.Context, a domain.Activity) error {
	args, err := activityArgs(a)
	if err != nil {
		return err
	}
	_, err = r.q().ExecContext(ctx, activityInsert, args...)
	return err
}

// UpdateActivity rewrites every column of an existing row.
func (r Repo) UpdateActivity(ctx context.Context, a domain.Activity) error {
	args, err := activityArgs(a)
	if err != nil {
		return err
	}
	args = append(args[1:], a.ID)
	res, err := r.q().ExecContext(ctx, activityUpdate, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetActivity loads a live (not soft-deleted) activity.
func (r Repo) GetActivity(ctx context.Context, id string) (domain.Activity, error) {
	return scanActivity(r.q().QueryRowContext(ctx, activitySelect+` WHERE id=? AND deleted_at IS NULL`, id))
}

func activityClauses(f domain.ActivityFilter) ([]string, []any) {
	clauses := []string{"deleted_at IS NULL"}
	var args []any
	eq := func(col, v string) {
		if v != "" {
			clauses = append(clauses, col+"=?")
			args = append(args, v)
		}
	}
	eq("org_id", f.OrgID)
	eq("assigned_to", f.AssignedTo)
	eq("assigned_group", f.AssignedGroup)
	eq("entity_type", f.EntityType)
	eq("entity_id", f.EntityID)
	eq("pattern_code", f.PatternCode)
	in := func(col string, vals []string) {
		if len(vals) == 0 {
			return
		}
		clauses = append(clauses, col+" IN ("+strings.TrimSuffix(strings.Repeat("?,", len(vals)), ",")+")")
		for _, v := range vals {
			args = append(args, v)
		}
	}
	statuses := make([]string, len(f.Statuses))
	for i, s := range f.Statuses {
		statuses[i] = string(s)
	}
	in("status", statuses)
	priorities := make([]string, len(f.Priorities))
	for i, p := range f.Priorities {
		priorities[i] = string(p)
	}
	in("priority", priorities)
	in("activity_type", f.Types)
	if f.DueBefore != nil {
		clauses = append(clauses, "due_date < ?")
		args = append(args, formatTime(*f.DueBefore))
	}
	if f.DueAfter != nil {
		clauses = append(clauses, "due_date > ?")
		args = append(args, formatTime(*f.DueAfter))
	}
	if f.Overdue != nil {
		now := f.Now
		if now.IsZero() {
			now = time.Now()
		}
		cond := "(status IN ('open','in_progress') AND due_date < ?)"
		if !*f.Overdue {
			cond = "NOT " + cond
		}
		clauses = append(clauses, cond)
		args = append(args, formatTime(now))
	}
	if f.IsAutoCreated != nil {
		clauses = append(clauses, "is_auto_created=?")
		args = append(args, boolInt(*f.IsAutoCreated))
	}
	if f.Unassigned {
		clauses = append(clauses, "(assigned_to IS NULL OR assigned_to='')")
	}
	return clauses, args
}

const priorityRank = `CASE priority WHEN 'urgent' THEN 0 WHEN 'high' THEN 1 WHEN 'normal' THEN 2 ELSE 3 END`

func activityOrder(f domain.ActivityFilter) string {
	dir := "ASC"
	if f.Desc {
		dir = "DESC"
	}
	switch f.Sort {
	case domain.SortPriority:
		return fmt.Sprintf(" ORDER BY %s %s, due_date ASC, created_at ASC, id ASC", priorityRank, dir)
	case domain.SortCreatedAt:
		return fmt.Sprintf(" ORDER BY created_at %s, id %s", dir, dir)
	default:
		return fmt.Sprintf(" ORDER BY due_date %s, id %s", dir, dir)
	}
}

// ListActivities returns live activities matching f with deterministic
// ordering and limit/offset pagination.
func (r Repo) ListActivities(ctx context.Context, f domain.ActivityFilter) ([]domain.Activity, error) {
	clauses, args := activityClauses(f)
	query := activitySelect + ` WHERE ` + strings.Join(clauses, " AND ") + activityOrder(f)
	switch {
	case f.Limit > 0:
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	case f.Offset > 0:
		query += " LIMIT -1 OFFSET ?"
		args = append(args, f.Offset)
	}
	rows, err := r.q().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// CountActivities counts live activities matching f, ignoring pagination.
func (r Repo) CountActivities(ctx context.Context, f domain.ActivityFilter) (int, error) {
	clauses, args := activityClauses(f)
	var n int
	err := r.q().QueryRowContext(ctx, `SELECT COUNT(*) FROM activities WHERE `+strings.Join(clauses, " AND "), args...).Scan(&n)
	return n, err
}

// ClaimActivity assigns an unassigned, non-terminal activity to userID.
// It reports false when the row was not claimable.
func (r Repo) ClaimActivity(ctx context.Context, id, userID string, now time.Time) (bool, error) {
	ts := formatTime(now)
	res, err := r.q().ExecContext(ctx, `UPDATE activities SET assigned_to=?, assigned_at=?, updated_at=?
WHERE id=? AND deleted_at IS NULL AND (assigned_to IS NULL OR assigned_to='') AND status IN ('open','in_progress','deferred')`,
		userID, ts, ts, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// ReleaseActivity returns a claimed activity to its queue when userID holds it.
func (r Repo) ReleaseActivity(ctx context.Context, id, userID string, now time.Time) (bool, error) {
	res, err := r.q().ExecContext(ctx, `UPDATE activities SET assigned_to=NULL, assigned_at=NULL, started_at=NULL,
status=CASE status WHEN 'in_progress' THEN 'open' ELSE status END, updated_at=?
WHERE id=? AND deleted_at IS NULL AND assigned_to=? AND assigned_group IS NOT NULL AND status IN ('open','in_progress','deferred')`,
		formatTime(now), id, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// OpenActivityCounts returns the number of open or in-progress activities
// per user; users with none map to zero.
func (r Repo) OpenActivityCounts(ctx context.Context, orgID string, users []string) (map[string]int, error) {
	counts := make(map[string]int, len(users))
	if len(users) == 0 {
		return counts, nil
	}
	args := []any{orgID}
	for _, u := range users {
		counts[u] = 0
		args = append(args, u)
	}
	rows, err := r.q().QueryContext(ctx, `SELECT assigned_to, COUNT(*) FROM activities
WHERE org_id=? AND deleted_at IS NULL AND status IN ('open','in_progress')
AND assigned_to IN (`+strings.TrimSuffix(strings.Repeat("?,", len(users)), ",")+`) GROUP BY assigned_to`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var user string
		var n int
		if err := rows.Scan(&user, &n); err != nil {
			return nil, err
		}
		counts[user] = n
	}
	return counts, rows.Err()
}

// LastGroupAssignments returns the latest assignment time per user among
// activities routed through groupID.
func (r Repo) LastGroupAssignments(ctx context.Context, orgID, groupID string) (map[string]time.Time, error) {
	rows, err := r.q().QueryContext(ctx, `SELECT assigned_to, MAX(COALESCE(assigned_at, created_at)) FROM activities
WHERE org_id=? AND assigned_group=? AND assigned_to IS NOT NULL AND assigned_to<>'' GROUP BY assigned_to`, orgID, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]time.Time{}
	for rows.Next() {
		var user, ts string
		if err := rows.Scan(&user, &ts); err != nil {
			return nil, err
		}
		t, err := parseTime(ts)
		if err != nil {
			return nil, err
		}
		res[user] = t
	}
	return res, rows.Err()
}

func (r Repo) InsertNote(ctx context.Context, n domain.Note) error {
	_, err := r.q().ExecContext(ctx, `INSERT INTO activity_notes(id,activity_id,author_id,body,created_at) VALUES (?,?,?,?,?)`,
		n.ID, n.ActivityID, n.AuthorID, n.Body, formatTime(n.CreatedAt))
	return err
}

func (r Repo) ListNotes(ctx context.Context, activityID string) ([]domain.Note, error) {
	rows, err := r.q().QueryContext(ctx, `SELECT id,activity_id,author_id,body,created_at FROM activity_notes WHERE activity_id=? ORDER BY created_at ASC, id ASC`, activityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Note
	for rows.Next() {
		var n domain.Note
		var created string
		if err := rows.Scan(&n.ID, &n.ActivityID, &n.AuthorID, &n.Body, &created); err != nil {
			return nil, err
		}
		if n.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, rows.Err()
}

// StaleEntities lists entities of entityType with no active activity whose
// latest activity was created or completed before cutoff, oldest first.
func (r Repo) StaleEntities(ctx context.Context, orgID, entityType string, cutoff time.Time, limit int) ([]domain.StaleEntity, error) {
	query := `SELECT entity_id, MAX(MAX(created_at), MAX(COALESCE(completed_at, ''))) AS last_at, COUNT(*) FROM activities
WHERE org_id=? AND entity_type=? AND deleted_at IS NULL
GROUP BY entity_id
HAVING SUM(CASE WHEN status IN ('open','in_progress') THEN 1 ELSE 0 END)=0 AND last_at<?
ORDER BY last_at ASC, entity_id ASC`
	args := []any{orgID, entityType, formatTime(cutoff)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.q().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.StaleEntity
	for rows.Next() {
		e := domain.StaleEntity{EntityType: entityType}
		var last string
		if err := rows.Scan(&e.EntityID, &last, &e.ActivityCount); err != nil {
			return nil, err
		}
		if e.LastActivityAt, err = parseTime(last); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
