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

const patternSelect = `SELECT id,org_id,pattern_code,name,activity_type,trigger_event,entity_type,assign_to_json,
due_offset_hours,due_offset_business_days,specific_time,use_business_hours,subject_template,description_template,
instructions,checklist_json,priority,tags_json,is_active,created_at,updated_at FROM activity_patterns`

func scanPattern(s scanner) (domain.ActivityPattern, error) {
	var p domain.ActivityPattern
	var (
		name, specificTime, descTemplate, instructions, checklist, tags sql.NullString
		assignTo, createdAt, updatedAt                                  string
		businessDays                                                    sql.NullInt64
		useBusinessHours, active                                        int
	)
	err := s.Scan(&p.ID, &p.OrgID, &p.PatternCode, &name, &p.ActivityType, &p.TriggerEvent, &p.EntityType, &assignTo,
		&p.DueOffsetHours, &businessDays, &specificTime, &useBusinessHours, &p.SubjectTemplate, &descTemplate,
		&instructions, &checklist, &p.Priority, &tags, &active, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.Name = name.String
	p.SpecificTime = specificTime.String
	p.DescriptionTemplate = descTemplate.String
	p.Instructions = instructions.String
	p.UseBusinessHours = useBusinessHours == 1
	p.IsActive = active == 1
	if businessDays.Valid {
		d := int(businessDays.Int64)
		p.DueOffsetBusinessDays = &d
	}
	if err := unmarshalJSON(sql.NullString{String: assignTo, Valid: true}, &p.AssignTo); err != nil {
		return p, fmt.Errorf("pattern %s assign_to: %w", p.PatternCode, err)
	}
	if err := unmarshalJSON(checklist, &p.Checklist); err != nil {
		return p, fmt.Errorf("pattern %s checklist: %w", p.PatternCode, err)
	}
	if err := unmarshalJSON(tags, &p.Tags); err != nil {
		return p, fmt.Errorf("pattern %s tags: %w", p.PatternCode, err)
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return p, err
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return p, err
	}
	return p, nil
}

// UpsertPattern inserts or replaces a pattern keyed by (org_id, pattern_code).
// The stored id and created_at survive updates.
func (r Repo) UpsertPattern(ctx context.Context, p domain.ActivityPattern) error {
	assignTo, err := marshalJSON(p.AssignTo)
	if err != nil {
		return err
	}
	checklist, err := marshalJSON(p.Checklist)
	if err != nil {
		return err
	}
	tags, err := marshalJSON(p.Tags)
	if err != nil {
		return err
	}
	entityType := p.EntityType
	if entityType == "" {
		entityType = domain.WildcardEntityType
	}
	_, err = r.q().ExecContext(ctx, `INSERT INTO activity_patterns(id,org_id,pattern_code,name,activity_type,trigger_event,entity_type,assign_to_json,
due_offset_hours,due_offset_business_days,specific_time,use_business_hours,subject_template,description_template,
instructions,checklist_json,priority,tags_json,is_active,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(org_id,pattern_code) DO UPDATE SET name=excluded.name, activity_type=excluded.activity_type,
trigger_event=excluded.trigger_event, entity_type=excluded.entity_type, assign_to_json=excluded.assign_to_json,
due_offset_hours=excluded.due_offset_hours, due_offset_business_days=excluded.due_offset_business_days,
specific_time=excluded.specific_time, use_business_hours=excluded.use_business_hours,
subject_template=excluded.subject_template, description_template=excluded.description_template,
instructions=excluded.instructions, checklist_json=excluded.checklist_json, priority=excluded.priority,
tags_json=excluded.tags_json, is_active=excluded.is_active, updated_at=excluded.updated_at`,
		p.ID, p.OrgID, p.PatternCode, nullable(p.Name), p.ActivityType, p.TriggerEvent, entityType, assignTo,
		p.DueOffsetHours, nullableIntPtr(p.DueOffsetBusinessDays), nullable(p.SpecificTime), boolInt(p.UseBusinessHours),
		p.SubjectTemplate, nullable(p.DescriptionTemplate), nullable(p.Instructions), checklist, string(p.Priority), tags,
		boolInt(p.IsActive), formatTime(p.CreatedAt), formatTime(p.UpdatedAt))
	return err
}

func (r Repo) GetPattern(ctx context.Context, orgID, code string) (domain.ActivityPattern, error) {
	return scanPattern(r.q().QueryRowContext(ctx, patternSelect+` WHERE org_id=? AND pattern_code=?`, orgID, code))
}

// SetPatternActive toggles is_active.
func (r Repo) SetPatternActive(ctx context.Context, orgID, code string, active bool, now time.Time) error {
	res, err := r.q().ExecContext(ctx, `UPDATE activity_patterns SET is_active=?, updated_at=? WHERE org_id=? AND pattern_code=?`,
		boolInt(active), formatTime(now), orgID, code)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListPatterns returns patterns ordered by pattern_code, then id.
func (r Repo) ListPatterns(ctx context.Context, f domain.PatternFilter) ([]domain.ActivityPattern, error) {
	var clauses []string
	var args []any
	if f.OrgID != "" {
		clauses = append(clauses, "org_id=?")
		args = append(args, f.OrgID)
	}
	if f.TriggerEvent != "" {
		clauses = append(clauses, "trigger_event=?")
		args = append(args, f.TriggerEvent)
	}
	if f.EntityType != "" {
		clauses = append(clauses, "(entity_type=? OR entity_type=? OR entity_type='')")
		args = append(args, f.EntityType, domain.WildcardEntityType)
	}
	if f.ActiveOnly {
		clauses = append(clauses, "is_active=1")
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}
	rows, err := r.q().QueryContext(ctx, patternSelect+where+` ORDER BY pattern_code ASC, id ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ActivityPattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// MatchingPatterns returns the active patterns triggered by ev.
func (r Repo) MatchingPatterns(ctx context.Context, ev domain.Event) ([]domain.ActivityPattern, error) {
	entityType := ev.EntityType
	if entityType == "" {
		entityType = domain.WildcardEntityType
	}
	return r.ListPatterns(ctx, domain.PatternFilter{
		OrgID:        ev.OrgID,
		TriggerEvent: ev.Type,
		EntityType:   entityType,
		ActiveOnly:   true,
	})
}
