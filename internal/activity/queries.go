package activity

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/SumanthNagolu/intime-v3-sub020/internal/domain"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/duedate"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/repo"
)

const timelineEventLimit = 500

func (s Service) queueItem(a domain.Activity) domain.QueueItem {
	now := s.now().In(s.loc())
	due := a.DueDate.In(s.loc())
	return domain.QueueItem{
		Activity:  a,
		IsOverdue: a.IsOverdue(now),
		DueStatus: duedate.Status(due, now),
		DueLabel:  duedate.Format(due, now),
	}
}

// MyActivities splits the user's open and in-progress work into overdue,
// due today and upcoming, each ordered by due date.
func (s Service) MyActivities(ctx context.Context, orgID, userID string) (domain.MyActivities, error) {
	out := domain.MyActivities{
		Overdue:  []domain.QueueItem{},
		DueToday: []domain.QueueItem{},
		Upcoming: []domain.QueueItem{},
	}
	list, err := s.Repo.ListActivities(ctx, domain.ActivityFilter{
		OrgID:      orgID,
		AssignedTo: userID,
		Statuses:   domain.ActiveStatuses,
		Sort:       domain.SortDueDate,
	})
	if err != nil {
		return out, err
	}
	now := s.now().In(s.loc())
	endOfToday := duedate.EndOfDay(now)
	for _, a := range list {
		item := s.queueItem(a)
		switch {
		case a.DueDate.Before(now):
			out.Overdue = append(out.Overdue, item)
		case !a.DueDate.After(endOfToday):
			out.DueToday = append(out.DueToday, item)
		default:
			out.Upcoming = append(out.Upcoming, item)
		}
	}
	return out, nil
}

// EntityActivities counts the activities of one entity.
func (s Service) EntityActivities(ctx context.Context, orgID, entityType, entityID string) (domain.EntityActivities, error) {
	out := domain.EntityActivities{EntityType: entityType, EntityID: entityID}
	list, err := s.Repo.ListActivities(ctx, domain.ActivityFilter{OrgID: orgID, EntityType: entityType, EntityID: entityID})
	if err != nil {
		return out, err
	}
	for _, a := range list {
		out.TotalCount++
		switch {
		case a.Status.Active():
			out.OpenCount++
		case a.Status == domain.StatusCompleted:
			out.CompletedCount++
		}
		last := lastTouched(a)
		if out.LastActivityAt == nil || last.After(*out.LastActivityAt) {
			out.LastActivityAt = &last
		}
	}
	return out, nil
}

func lastTouched(a domain.Activity) (t time.Time) {
	t = a.CreatedAt
	if a.CompletedAt != nil && a.CompletedAt.After(t) {
		t = *a.CompletedAt
	}
	return t
}

// TimelineOptions narrows an entity timeline.
type TimelineOptions struct {
	// ActivityTypes keeps only activities of these types and drops events.
	ActivityTypes []string
	Limit         int
}

// EntityTimeline merges the entity's activities with the events recorded
// against it, newest first.
func (s Service) EntityTimeline(ctx context.Context, orgID, entityType, entityID string, opts TimelineOptions) ([]domain.TimelineEntry, error) {
	list, err := s.Repo.ListActivities(ctx, domain.ActivityFilter{
		OrgID:      orgID,
		EntityType: entityType,
		EntityID:   entityID,
		Types:      opts.ActivityTypes,
	})
	if err != nil {
		return nil, err
	}
	entries := make([]domain.TimelineEntry, 0, len(list))
	for i := range list {
		a := list[i]
		entries = append(entries, domain.TimelineEntry{
			Kind:     domain.TimelineActivity,
			At:       lastTouched(a),
			Activity: &a,
			Title:    a.Subject,
			ActorID:  a.AssignedTo,
		})
	}
	if len(opts.ActivityTypes) == 0 {
		evs, err := s.Repo.ListEvents(ctx, repo.EventFilter{
			OrgID:      orgID,
			EntityKind: entityType,
			EntityID:   entityID,
			Limit:      timelineEventLimit,
		})
		if err != nil {
			return nil, fmt.Errorf("timeline events: %w", err)
		}
		for i := range evs {
			e := evs[i]
			entries = append(entries, domain.TimelineEntry{
				Kind:      domain.TimelineEvent,
				At:        e.TS,
				Event:     &e,
				Title:     e.Type,
				ActorID:   e.ActorID,
				EventType: e.Type,
			})
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].At.After(entries[j].At)
	})
	if opts.Limit > 0 && len(entries) > opts.Limit {
		entries = entries[:opts.Limit]
	}
	return entries, nil
}

// Stats aggregates the activities matching f. Pagination in f is ignored.
func (s Service) Stats(ctx context.Context, f domain.ActivityFilter) (domain.Stats, error) {
	out := domain.Stats{ByType: map[string]int{}, ByOutcome: map[string]int{}}
	f.Limit, f.Offset = 0, 0
	list, err := s.GetMany(ctx, f)
	if err != nil {
		return out, err
	}
	var durations, totalMinutes int
	for _, a := range list {
		out.Total++
		out.ByType[a.ActivityType]++
		if a.Status != domain.StatusCompleted {
			continue
		}
		out.Completed++
		if a.Outcome != "" {
			out.ByOutcome[a.Outcome]++
		}
		if a.DurationMinutes != nil {
			durations++
			totalMinutes += *a.DurationMinutes
		}
		if a.CompletedAt != nil && a.CompletedAt.After(a.DueDate) {
			out.OverdueClosed++
		}
	}
	if out.Total > 0 {
		out.CompletionRate = float64(out.Completed) / float64(out.Total)
	}
	if durations > 0 {
		out.AverageDurationMinutes = float64(totalMinutes) / float64(durations)
	}
	if out.Completed > 0 {
		out.OnTimeRate = float64(out.Completed-out.OverdueClosed) / float64(out.Completed)
	}
	return out, nil
}

// CheckTransitionRequirements reports whether the entity's activity history
// satisfies every requirement.
func (s Service) CheckTransitionRequirements(ctx context.Context, orgID, entityType, entityID string, reqs []domain.Requirement) (domain.TransitionCheck, error) {
	out := domain.TransitionCheck{Satisfied: true, Unmet: []domain.UnmetRequirement{}}
	for _, r := range reqs {
		if r.Status == "" {
			r.Status = domain.StatusCompleted
		}
		if !r.Status.Valid() {
			return out, domain.ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", r.Status)}
		}
	}
	list, err := s.Repo.ListActivities(ctx, domain.ActivityFilter{OrgID: orgID, EntityType: entityType, EntityID: entityID})
	if err != nil {
		return out, err
	}
	for _, r := range reqs {
		if r.Status == "" {
			r.Status = domain.StatusCompleted
		}
		n := 0
		for _, a := range list {
			if a.ActivityType == r.ActivityType && a.Status == r.Status {
				n++
			}
		}
		if n < r.MinCount {
			out.Satisfied = false
			out.Unmet = append(out.Unmet, domain.UnmetRequirement{Requirement: r, Actual: n})
		}
	}
	return out, nil
}

// StaleEntities reports entities of entityType with nothing in flight and no
// activity touched in the last idle period.
func (s Service) StaleEntities(ctx context.Context, orgID, entityType string, idle time.Duration, limit int) ([]domain.StaleEntity, error) {
	if strings.TrimSpace(entityType) == "" {
		return nil, domain.ValidationError{Field: "entity_type", Message: "required"}
	}
	if idle <= 0 {
		return nil, domain.ValidationError{Field: "idle", Message: "must be positive"}
	}
	now := s.now()
	list, err := s.Repo.StaleEntities(ctx, orgID, entityType, now.Add(-idle), limit)
	if err != nil {
		return nil, err
	}
	for i := range list {
		list[i].IdleDays = int(now.Sub(list[i].LastActivityAt).Hours() / 24)
	}
	return list, nil
}
