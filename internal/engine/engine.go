// Package engine turns inbound CRM events into activities: it matches
// patterns, suppresses duplicates, resolves assignees, computes due dates and
// renders the activity text.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/SumanthNagolu/intime-v3-sub020/internal/activity"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/domain"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/duedate"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/events"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/metrics"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/repo"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/template"
)

const (
	patternUpserted    = "pattern.upserted"
	patternActivated   = "pattern.activated"
	patternDeactivated = "pattern.deactivated"
	entityKindPattern  = "pattern"
)

// ActivityLister is the read used by the duplicate check.
type ActivityLister interface {
	ListActivities(ctx context.Context, f domain.ActivityFilter) ([]domain.Activity, error)
}

// Creator persists activities; activity.Service implements it.
type Creator interface {
	Create(ctx context.Context, in activity.CreateInput) (domain.Activity, error)
}

type Engine struct {
	Repo       repo.Repo
	Matcher    Matcher
	Resolver   Resolver
	Activities ActivityLister
	Creator    Creator
	// Log records inbound events for entity timelines. Nil disables it.
	Log       events.Store
	Events    events.Writer
	Metrics   *metrics.Metrics
	Logger    *log.Logger
	Now       func() time.Time
	Location  *time.Location
	Templates template.Options
	// DefaultOrgID fills events and patterns that carry no org.
	DefaultOrgID string
}

// New wires an engine over one store.
func New(r repo.Repo, svc activity.Service) Engine {
	return Engine{
		Repo:       r,
		Matcher:    Matcher{Source: r},
		Resolver:   Resolver{Directory: r},
		Activities: r,
		Creator:    svc,
		Log:        r,
		Metrics:    svc.Metrics,
		Logger:     svc.Logger,
		Now:        time.Now,
		Location:   svc.Location,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) loc() *time.Location {
	if e.Location != nil {
		return e.Location
	}
	return time.UTC
}

func (e Engine) logger() *log.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return log.Default()
}

// ProcessEvent creates the activities ev triggers. Each matched pattern is
// handled on its own: a duplicate, an unresolved assignee or a failed create
// drops that pattern only. The error is non-nil only when matching fails.
// The inbound event is logged only when it created at least one activity, so
// an event that produces nothing leaves the store untouched.
func (e Engine) ProcessEvent(ctx context.Context, ev domain.Event) ([]domain.Activity, error) {
	start := time.Now()
	defer func() { e.Metrics.EventProcessed(time.Since(start)) }()

	if ev.OrgID == "" {
		ev.OrgID = e.DefaultOrgID
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = e.now()
	}
	lg := e.logger().With("event_type", ev.Type, "entity_type", ev.EntityType, "entity_id", ev.EntityID)

	patterns, err := e.Matcher.FindMatching(ctx, ev)
	if err != nil {
		return nil, fmt.Errorf("match patterns for %s: %w", ev.Type, err)
	}
	if len(patterns) == 0 {
		lg.Debug("no matching patterns")
		return []domain.Activity{}, nil
	}
	created := make([]domain.Activity, 0, len(patterns))
	for _, p := range patterns {
		a, ok, err := e.apply(ctx, p, ev)
		switch {
		case err != nil:
			e.Metrics.PatternFailed()
			lg.Error("pattern failed", "pattern_code", p.PatternCode, "error", err)
		case ok:
			e.Metrics.ActivityCreated(a.ActivityType)
			lg.Info("activity created", "pattern_code", p.PatternCode, "activity_id", a.ID, "assigned_to", a.AssignedTo)
			created = append(created, a)
		}
	}
	if len(created) > 0 && e.Log != nil {
		if _, _, err := e.Events.RecordInbound(ctx, e.Log, ev); err != nil {
			lg.Warn("record inbound event", "error", err)
		}
	}
	return created, nil
}

// apply runs one pattern. ok is false when the pattern was skipped.
func (e Engine) apply(ctx context.Context, p domain.ActivityPattern, ev domain.Event) (a domain.Activity, ok bool, err error) {
	// The duplicate check ignores empty filter fields, so an event without
	// its entity keys would collide with any open activity of the pattern.
	for _, f := range [...]struct{ name, value string }{
		{"org_id", ev.OrgID},
		{"entity_type", ev.EntityType},
		{"entity_id", ev.EntityID},
	} {
		if f.value == "" {
			return a, false, domain.ValidationError{Field: f.name, Message: "required"}
		}
	}
	existing, err := e.Activities.ListActivities(ctx, domain.ActivityFilter{
		OrgID:       ev.OrgID,
		EntityType:  ev.EntityType,
		EntityID:    ev.EntityID,
		PatternCode: p.PatternCode,
		Statuses:    domain.ActiveStatuses,
		Limit:       1,
	})
	if err != nil {
		return a, false, fmt.Errorf("duplicate check: %w", err)
	}
	if len(existing) > 0 {
		e.Metrics.PatternSkipped(metrics.SkipDuplicate)
		e.logger().Debug("duplicate suppressed", "pattern_code", p.PatternCode, "existing_id", existing[0].ID)
		return a, false, nil
	}

	rule, err := p.AssignTo.Rule()
	if err != nil {
		return a, false, err
	}
	who, err := e.Resolver.Resolve(ctx, rule, ev)
	if errors.Is(err, ErrUnresolved) {
		e.Metrics.PatternSkipped(metrics.SkipUnassigned)
		e.logger().Warn("no assignee, pattern skipped", "pattern_code", p.PatternCode, "reason", err)
		return a, false, nil
	}
	if err != nil {
		return a, false, fmt.Errorf("resolve assignee: %w", err)
	}

	due := duedate.Calculate(ev.OccurredAt.In(e.loc()), duedate.OptionsFor(p))
	tctx := e.templateContext(ev)
	subject := strings.TrimSpace(template.Interpolate(p.SubjectTemplate, tctx, e.Templates))
	if subject == "" {
		subject = p.Name
	}
	if subject == "" {
		subject = p.PatternCode
	}
	in := activity.CreateInput{
		OrgID:         ev.OrgID,
		ActivityType:  p.ActivityType,
		PatternCode:   p.PatternCode,
		PatternID:     p.ID,
		IsAutoCreated: true,
		SourceEventID: ev.ID,
		Subject:       subject,
		Description:   template.Interpolate(p.DescriptionTemplate, tctx, e.Templates),
		Instructions:  p.Instructions,
		Checklist:     p.Checklist,
		Tags:          p.Tags,
		EntityType:    ev.EntityType,
		EntityID:      ev.EntityID,
		AssignedTo:    who.UserID,
		AssignedGroup: who.GroupID,
		CreatedBy:     domain.SystemActor,
		Priority:      p.Priority,
		DueDate:       due.UTC(),
	}
	if len(ev.RelatedEntities) > 0 {
		in.SecondaryEntityType = ev.RelatedEntities[0].EntityType
		in.SecondaryEntityID = ev.RelatedEntities[0].EntityID
	}
	a, err = e.Creator.Create(ctx, in)
	if err != nil {
		return a, false, err
	}
	return a, true, nil
}

// templateContext is the event payload plus event metadata under "event",
// which replaces any payload key of that name. The event_type, actor_name and
// occurred_at shorthands are added at the top level only where the payload
// has no key of the same name.
func (e Engine) templateContext(ev domain.Event) map[string]any {
	occurred := ev.OccurredAt.In(e.loc())
	meta := map[string]any{
		"id":          ev.ID,
		"type":        ev.Type,
		"entity_type": ev.EntityType,
		"entity_id":   ev.EntityID,
		"actor_id":    ev.ActorID,
		"actor_name":  ev.ActorName,
		"occurred_at": occurred,
	}
	extra := map[string]any{"event": meta}
	for k, v := range map[string]any{"event_type": ev.Type, "actor_name": ev.ActorName, "occurred_at": occurred} {
		if _, taken := ev.EventData[k]; !taken {
			extra[k] = v
		}
	}
	return template.NewContext(ev.EventData, extra, e.now().In(e.loc()))
}

// ProcessEvents runs ProcessEvent over evs with at most concurrency events in
// flight. Results keep the input order.
func (e Engine) ProcessEvents(ctx context.Context, evs []domain.Event, concurrency int) ([][]domain.Activity, error) {
	out := make([][]domain.Activity, len(evs))
	var g errgroup.Group
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for i, ev := range evs {
		g.Go(func() error {
			created, err := e.ProcessEvent(ctx, ev)
			if err != nil {
				return fmt.Errorf("event %d (%s): %w", i, ev.Type, err)
			}
			out[i] = created
			return nil
		})
	}
	return out, g.Wait()
}

// ValidatePattern checks the pattern fields and both templates.
func (e Engine) ValidatePattern(p domain.ActivityPattern) error {
	if err := p.Validate(); err != nil {
		return err
	}
	checks := []struct{ field, tmpl string }{
		{"subject_template", p.SubjectTemplate},
		{"description_template", p.DescriptionTemplate},
	}
	for _, c := range checks {
		if res := template.Validate(c.tmpl, e.Templates); !res.Valid() {
			return domain.ValidationError{Field: c.field, Message: strings.Join(res.Errors, "; ")}
		}
	}
	return nil
}

// UpsertPattern validates and stores p, keyed by org and pattern code.
func (e Engine) UpsertPattern(ctx context.Context, p domain.ActivityPattern, actorID string) (domain.ActivityPattern, error) {
	if p.OrgID == "" {
		p.OrgID = e.DefaultOrgID
	}
	if p.OrgID == "" {
		return p, domain.ValidationError{Field: "org_id", Message: "required"}
	}
	if p.Priority == "" {
		p.Priority = domain.PriorityNormal
	}
	if p.EntityType == "" {
		p.EntityType = domain.WildcardEntityType
	}
	if err := e.ValidatePattern(p); err != nil {
		return p, err
	}
	now := e.now().UTC()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt, p.UpdatedAt = now, now
	var out domain.ActivityPattern
	err := e.Repo.InTx(ctx, func(tx repo.Repo) error {
		if err := tx.UpsertPattern(ctx, p); err != nil {
			return fmt.Errorf("upsert pattern %s: %w", p.PatternCode, err)
		}
		stored, err := tx.GetPattern(ctx, p.OrgID, p.PatternCode)
		if err != nil {
			return err
		}
		out = stored
		_, err = e.Events.Append(ctx, tx, patternUpserted, p.OrgID, entityKindPattern, stored.ID, actorID, events.Payload{
			"pattern_code":  stored.PatternCode,
			"trigger_event": stored.TriggerEvent,
			"is_active":     stored.IsActive,
		})
		return err
	})
	return out, err
}

// SetPatternActive enables or disables a pattern.
func (e Engine) SetPatternActive(ctx context.Context, orgID, code string, active bool, actorID string) (domain.ActivityPattern, error) {
	if orgID == "" {
		orgID = e.DefaultOrgID
	}
	var out domain.ActivityPattern
	err := e.Repo.InTx(ctx, func(tx repo.Repo) error {
		if err := tx.SetPatternActive(ctx, orgID, code, active, e.now().UTC()); err != nil {
			return fmt.Errorf("pattern %s: %w", code, err)
		}
		p, err := tx.GetPattern(ctx, orgID, code)
		if err != nil {
			return err
		}
		out = p
		evt := patternDeactivated
		if active {
			evt = patternActivated
		}
		_, err = e.Events.Append(ctx, tx, evt, orgID, entityKindPattern, p.ID, actorID, events.Payload{"pattern_code": code})
		return err
	})
	return out, err
}

// ListPatterns lists stored patterns.
func (e Engine) ListPatterns(ctx context.Context, f domain.PatternFilter) ([]domain.ActivityPattern, error) {
	if f.OrgID == "" {
		f.OrgID = e.DefaultOrgID
	}
	return e.Repo.ListPatterns(ctx, f)
}

func (e Engine) GetPattern(ctx context.Context, orgID, code string) (domain.ActivityPattern, error) {
	if orgID == "" {
		orgID = e.DefaultOrgID
	}
	p, err := e.Repo.GetPattern(ctx, orgID, code)
	if err != nil {
		return p, fmt.Errorf("pattern %s: %w", code, err)
	}
	return p, nil
}
