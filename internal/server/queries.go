package server

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/SumanthNagolu/intime-v3-sub020/internal/activity"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/domain"
)

type EntityPath struct {
	EntityType string `path:"entity_type"`
	EntityID   string `path:"entity_id"`
}

func registerQueries(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "my-activities",
		Method:      http.MethodGet,
		Path:        "/me/activities",
		Summary:     "Active work of the caller split into overdue, today and upcoming",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*output[domain.MyActivities], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		mine, err := h.cfg.Activities.MyActivities(ctx, orgFromContext(ctx), actorID)
		if err != nil {
			return nil, h.handleError(err)
		}
		return respond(mine)
	})

	huma.Register(api, huma.Operation{
		OperationID: "my-summary",
		Method:      http.MethodGet,
		Path:        "/me/summary",
		Summary:     "Activity counts for the caller",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*output[domain.Summary], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		sum, err := h.cfg.Activities.GetSummary(ctx, orgFromContext(ctx), actorID)
		if err != nil {
			return nil, h.handleError(err)
		}
		return respond(sum)
	})

	huma.Register(api, huma.Operation{
		OperationID: "user-summary",
		Method:      http.MethodGet,
		Path:        "/users/{user_id}/summary",
		Summary:     "Activity counts for a user",
	}, func(ctx context.Context, input *struct {
		UserID string `path:"user_id"`
	}) (*output[domain.Summary], error) {
		sum, err := h.cfg.Activities.GetSummary(ctx, orgFromContext(ctx), input.UserID)
		if err != nil {
			return nil, h.handleError(err)
		}
		return respond(sum)
	})

	huma.Register(api, huma.Operation{
		OperationID: "entity-activities",
		Method:      http.MethodGet,
		Path:        "/entities/{entity_type}/{entity_id}/activities",
		Summary:     "Activity counts and last touch for an entity",
	}, func(ctx context.Context, input *EntityPath) (*output[domain.EntityActivities], error) {
		res, err := h.cfg.Activities.EntityActivities(ctx, orgFromContext(ctx), input.EntityType, input.EntityID)
		if err != nil {
			return nil, h.handleError(err)
		}
		return respond(res)
	})

	huma.Register(api, huma.Operation{
		OperationID: "entity-timeline",
		Method:      http.MethodGet,
		Path:        "/entities/{entity_type}/{entity_id}/timeline",
		Summary:     "Activities and events of an entity, newest first",
	}, func(ctx context.Context, input *struct {
		EntityPath
		Types []string `query:"activity_type"`
		Limit int      `query:"limit" default:"50"`
	}) (*output[[]domain.TimelineEntry], error) {
		entries, err := h.cfg.Activities.EntityTimeline(ctx, orgFromContext(ctx), input.EntityType, input.EntityID, activity.TimelineOptions{
			ActivityTypes: splitValues(input.Types),
			Limit:         normalizeLimit(input.Limit),
		})
		if err != nil {
			return nil, h.handleError(err)
		}
		if entries == nil {
			entries = []domain.TimelineEntry{}
		}
		return respond(entries)
	})

	huma.Register(api, huma.Operation{
		OperationID: "check-transition",
		Method:      http.MethodPost,
		Path:        "/entities/{entity_type}/{entity_id}/transition-check",
		Summary:     "Check activity requirements before an entity transition",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		EntityPath
		Body TransitionCheckRequest
	}) (*output[domain.TransitionCheck], error) {
		res, err := h.cfg.Activities.CheckTransitionRequirements(ctx, orgFromContext(ctx), input.EntityType, input.EntityID, input.Body.Requirements)
		if err != nil {
			return nil, h.handleError(err)
		}
		if res.Unmet == nil {
			res.Unmet = []domain.UnmetRequirement{}
		}
		return respond(res)
	})

	huma.Register(api, huma.Operation{
		OperationID: "stale-entities",
		Method:      http.MethodGet,
		Path:        "/entities/{entity_type}/stale",
		Summary:     "Entities with no open work and no recent activity",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		EntityType string `path:"entity_type"`
		IdleDays   int    `query:"idle_days" default:"14" minimum:"1"`
		Limit      int    `query:"limit" default:"50"`
	}) (*output[[]domain.StaleEntity], error) {
		idle := time.Duration(input.IdleDays) * 24 * time.Hour
		list, err := h.cfg.Activities.StaleEntities(ctx, orgFromContext(ctx), input.EntityType, idle, normalizeLimit(input.Limit))
		if err != nil {
			return nil, h.handleError(err)
		}
		if list == nil {
			list = []domain.StaleEntity{}
		}
		return respond(list)
	})

	huma.Register(api, huma.Operation{
		OperationID: "activity-stats",
		Method:      http.MethodGet,
		Path:        "/stats",
		Summary:     "Completion statistics over a filtered activity set",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *ActivityFilterQuery) (*output[domain.Stats], error) {
		f, err := input.filter(orgFromContext(ctx))
		if err != nil {
			return nil, h.handleError(err)
		}
		stats, err := h.cfg.Activities.Stats(ctx, f)
		if err != nil {
			return nil, h.handleError(err)
		}
		return respond(stats)
	})
}
