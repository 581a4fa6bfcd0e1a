package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/SumanthNagolu/intime-v3-sub020/internal/domain"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/repo"
)

type paginatedEvents struct {
	Items      []domain.EventRecord `json:"items"`
	NextCursor string               `json:"next_cursor,omitempty"`
}

func registerEvents(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "process-event",
		Method:      http.MethodPost,
		Path:        "/events",
		Summary:     "Feed a CRM event to the pattern engine",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body EventRequest
	}) (*output[ProcessedEvent], error) {
		started := time.Now()
		created, err := h.cfg.Engine.ProcessEvent(ctx, input.Body.event(orgFromContext(ctx)))
		if err != nil {
			return nil, h.handleError(err)
		}
		h.logger().Debug("event processed", "type", input.Body.Type, "created", len(created), "took", time.Since(started))
		if created == nil {
			created = []domain.Activity{}
		}
		return respond(ProcessedEvent{Activities: created})
	})

	huma.Register(api, huma.Operation{
		OperationID: "process-events",
		Method:      http.MethodPost,
		Path:        "/events/batch",
		Summary:     "Feed several CRM events concurrently; results keep input order",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body EventBatchRequest
	}) (*output[[]ProcessedEvent], error) {
		org := orgFromContext(ctx)
		evs := make([]domain.Event, len(input.Body.Events))
		for i, r := range input.Body.Events {
			evs[i] = r.event(org)
		}
		concurrency := input.Body.Concurrency
		if concurrency <= 0 {
			concurrency = h.cfg.Concurrency
		}
		results, err := h.cfg.Engine.ProcessEvents(ctx, evs, concurrency)
		if err != nil {
			return nil, h.handleError(err)
		}
		out := make([]ProcessedEvent, len(results))
		for i, created := range results {
			if created == nil {
				created = []domain.Activity{}
			}
			out[i] = ProcessedEvent{Activities: created}
		}
		return respond(out)
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recorded events, newest first",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor" doc:"Resume after this event id, oldest first"`
	}) (*output[paginatedEvents], error) {
		limit := normalizeLimit(input.Limit)
		f := repo.EventFilter{
			OrgID:      orgFromContext(ctx),
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
			Limit:      limit + 1,
		}
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil || parsed < 0 {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			f.AfterID = parsed
			f.Forward = true
		}
		items, err := h.cfg.Repo.ListEvents(ctx, f)
		if err != nil {
			return nil, h.handleError(err)
		}
		resp := paginatedEvents{Items: []domain.EventRecord{}}
		if len(items) > limit {
			items = items[:limit]
			if f.Forward {
				resp.NextCursor = strconv.FormatInt(items[limit-1].ID, 10)
			}
		}
		resp.Items = append(resp.Items, items...)
		return respond(resp)
	})
}

type PatternPath struct {
	Code string `path:"code"`
}

func registerPatterns(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "list-patterns",
		Method:      http.MethodGet,
		Path:        "/patterns",
		Summary:     "List activity patterns",
	}, func(ctx context.Context, input *struct {
		TriggerEvent string `query:"trigger_event"`
		EntityType   string `query:"entity_type"`
		ActiveOnly   bool   `query:"active_only"`
	}) (*output[[]domain.ActivityPattern], error) {
		items, err := h.cfg.Engine.ListPatterns(ctx, domain.PatternFilter{
			OrgID:        orgFromContext(ctx),
			TriggerEvent: input.TriggerEvent,
			EntityType:   input.EntityType,
			ActiveOnly:   input.ActiveOnly,
		})
		if err != nil {
			return nil, h.handleError(err)
		}
		if items == nil {
			items = []domain.ActivityPattern{}
		}
		return respond(items)
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-pattern",
		Method:      http.MethodGet,
		Path:        "/patterns/{code}",
		Summary:     "Get a pattern by code",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *PatternPath) (*output[domain.ActivityPattern], error) {
		p, err := h.cfg.Engine.GetPattern(ctx, orgFromContext(ctx), input.Code)
		if err != nil {
			return nil, h.handleError(err)
		}
		return respond(p)
	})

	huma.Register(api, huma.Operation{
		OperationID: "put-pattern",
		Method:      http.MethodPut,
		Path:        "/patterns/{code}",
		Summary:     "Create or replace a pattern",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		PatternPath
		Body PatternRequest
	}) (*output[domain.ActivityPattern], error) {
		if apiErr := requireRole(ctx, RoleAdmin); apiErr != nil {
			return nil, apiErr
		}
		actorID, _ := actorIDFromContext(ctx)
		p, err := h.cfg.Engine.UpsertPattern(ctx, input.Body.pattern(orgFromContext(ctx), input.Code), actorID)
		if err != nil {
			return nil, h.handleError(err)
		}
		return respond(p)
	})

	for _, active := range []bool{true, false} {
		opID, verb, summary := "enable-pattern", "enable", "Activate a pattern"
		if !active {
			opID, verb, summary = "disable-pattern", "disable", "Deactivate a pattern"
		}
		huma.Register(api, huma.Operation{
			OperationID: opID,
			Method:      http.MethodPost,
			Path:        "/patterns/{code}/" + verb,
			Summary:     summary,
			Errors:      []int{http.StatusNotFound, http.StatusForbidden},
		}, func(ctx context.Context, input *PatternPath) (*output[domain.ActivityPattern], error) {
			if apiErr := requireRole(ctx, RoleAdmin); apiErr != nil {
				return nil, apiErr
			}
			actorID, _ := actorIDFromContext(ctx)
			p, err := h.cfg.Engine.SetPatternActive(ctx, orgFromContext(ctx), input.Code, active, actorID)
			if err != nil {
				return nil, h.handleError(err)
			}
			return respond(p)
		})
	}

	huma.Register(api, huma.Operation{
		OperationID: "validate-pattern",
		Method:      http.MethodPost,
		Path:        "/patterns/validate",
		Summary:     "Validate a pattern and its templates without storing it",
	}, func(ctx context.Context, input *struct {
		Body ValidatePatternRequest
	}) (*output[PatternValidation], error) {
		p := input.Body.pattern(orgFromContext(ctx), input.Body.PatternCode)
		if p.Priority == "" {
			p.Priority = domain.PriorityNormal
		}
		if p.EntityType == "" {
			p.EntityType = domain.WildcardEntityType
		}
		res := PatternValidation{Valid: true, Errors: []string{}}
		if err := h.cfg.Engine.ValidatePattern(p); err != nil {
			if !errors.Is(err, domain.ErrValidation) {
				return nil, h.handleError(err)
			}
			res.Valid = false
			res.Errors = append(res.Errors, err.Error())
		}
		return respond(res)
	})
}
