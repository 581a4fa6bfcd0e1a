package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/SumanthNagolu/intime-v3-sub020/internal/activity"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/domain"
)

// output wraps a response body.
type output[T any] struct {
	Body T `json:"body"`
}

func respond[T any](body T) (*output[T], error) {
	return &output[T]{Body: body}, nil
}

type ActivityPath struct {
	ID string `path:"id"`
}

func registerActivities(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-activity",
		Method:        http.MethodPost,
		Path:          "/activities",
		Summary:       "Create an activity",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateActivityRequest
	}) (*output[domain.Activity], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := h.cfg.Activities.Create(ctx, input.Body.input(orgFromContext(ctx), actorID))
		if err != nil {
			return nil, h.handleError(err)
		}
		return respond(a)
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-activities",
		Method:      http.MethodGet,
		Path:        "/activities",
		Summary:     "List activities",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		ActivityFilterQuery
		Sort   string `query:"sort" enum:"due_date,priority,created_at" default:"due_date"`
		Desc   bool   `query:"desc"`
		Limit  int    `query:"limit" default:"50"`
		Offset int    `query:"offset" minimum:"0"`
	}) (*output[ActivityPage], error) {
		f, err := input.filter(orgFromContext(ctx))
		if err != nil {
			return nil, h.handleError(err)
		}
		if h.cfg.Activities.Now != nil {
			f.Now = h.cfg.Activities.Now()
		}
		total, err := h.cfg.Repo.CountActivities(ctx, f)
		if err != nil {
			return nil, h.handleError(err)
		}
		f.Sort = domain.SortField(input.Sort)
		f.Desc = input.Desc
		f.Limit = normalizeLimit(input.Limit)
		f.Offset = input.Offset
		items, err := h.cfg.Activities.GetMany(ctx, f)
		if err != nil {
			return nil, h.handleError(err)
		}
		if items == nil {
			items = []domain.Activity{}
		}
		return respond(ActivityPage{Items: items, Total: total, Limit: f.Limit, Offset: f.Offset})
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-activity",
		Method:      http.MethodGet,
		Path:        "/activities/{id}",
		Summary:     "Get an activity",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *ActivityPath) (*output[domain.Activity], error) {
		a, apiErr := h.loadActivity(ctx, input.ID)
		if apiErr != nil {
			return nil, apiErr
		}
		return respond(a)
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-activity",
		Method:        http.MethodDelete,
		Path:          "/activities/{id}",
		Summary:       "Soft-delete an activity",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *ActivityPath) (*struct{}, error) {
		actorID, apiErr := h.authorizeActivity(ctx, input.ID)
		if apiErr != nil {
			return nil, apiErr
		}
		if err := h.cfg.Activities.Delete(ctx, input.ID, actorID); err != nil {
			return nil, h.handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-activity-notes",
		Method:      http.MethodGet,
		Path:        "/activities/{id}/notes",
		Summary:     "List notes",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *ActivityPath) (*output[[]domain.Note], error) {
		if _, apiErr := h.loadActivity(ctx, input.ID); apiErr != nil {
			return nil, apiErr
		}
		notes, err := h.cfg.Activities.Notes(ctx, input.ID)
		if err != nil {
			return nil, h.handleError(err)
		}
		if notes == nil {
			notes = []domain.Note{}
		}
		return respond(notes)
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-activity-note",
		Method:        http.MethodPost,
		Path:          "/activities/{id}/notes",
		Summary:       "Add a note",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ActivityPath
		Body NoteRequest
	}) (*output[domain.Note], error) {
		actorID, apiErr := h.authorizeActivity(ctx, input.ID)
		if apiErr != nil {
			return nil, apiErr
		}
		n, err := h.cfg.Activities.AddNote(ctx, input.ID, actorID, input.Body.Body)
		if err != nil {
			return nil, h.handleError(err)
		}
		return respond(n)
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-checklist-item",
		Method:      http.MethodPut,
		Path:        "/activities/{id}/checklist/{item_id}",
		Summary:     "Tick or untick a checklist item",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ActivityPath
		ItemID string `path:"item_id"`
		Body   ChecklistItemRequest
	}) (*output[domain.Activity], error) {
		actorID, apiErr := h.authorizeActivity(ctx, input.ID)
		if apiErr != nil {
			return nil, apiErr
		}
		a, err := h.cfg.Activities.UpdateChecklistItem(ctx, input.ID, input.ItemID, input.Body.Done, actorID)
		if err != nil {
			return nil, h.handleError(err)
		}
		return respond(a)
	})
}

// authorizeActivity resolves the caller and checks the activity is visible
// in the request org.
func (h handlers) authorizeActivity(ctx context.Context, id string) (string, huma.StatusError) {
	actorID, authErr := actorIDFromContext(ctx)
	if authErr != nil {
		return "", authErr
	}
	if _, apiErr := h.loadActivity(ctx, id); apiErr != nil {
		return "", apiErr
	}
	return actorID, nil
}

func registerTransitions(api huma.API, h handlers) {
	errs := []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict}

	huma.Register(api, huma.Operation{
		OperationID: "start-activity",
		Method:      http.MethodPost,
		Path:        "/activities/{id}/start",
		Summary:     "Start work on an activity",
		Errors:      errs,
	}, func(ctx context.Context, input *ActivityPath) (*output[domain.Activity], error) {
		actorID, apiErr := h.authorizeActivity(ctx, input.ID)
		if apiErr != nil {
			return nil, apiErr
		}
		a, err := h.cfg.Activities.Start(ctx, input.ID, actorID)
		if err != nil {
			return nil, h.handleError(err)
		}
		return respond(a)
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-activity",
		Method:      http.MethodPost,
		Path:        "/activities/{id}/complete",
		Summary:     "Complete an activity, optionally scheduling a follow-up",
		Errors:      errs,
	}, func(ctx context.Context, input *struct {
		ActivityPath
		Body CompleteActivityRequest
	}) (*output[activity.CompleteResult], error) {
		actorID, apiErr := h.authorizeActivity(ctx, input.ID)
		if apiErr != nil {
			return nil, apiErr
		}
		in := activity.CompleteInput{
			ActivityID:      input.ID,
			UserID:          actorID,
			Outcome:         input.Body.Outcome,
			OutcomeNotes:    input.Body.OutcomeNotes,
			DurationMinutes: input.Body.DurationMinutes,
		}
		if fu := input.Body.FollowUp; fu != nil {
			in.FollowUp = &activity.FollowUpInput{
				ActivityType: fu.ActivityType,
				Subject:      fu.Subject,
				Description:  fu.Description,
				DueDate:      fu.DueDate,
				AssignedTo:   fu.AssignedTo,
				Priority:     fu.Priority,
			}
		}
		res, err := h.cfg.Activities.Complete(ctx, in)
		if err != nil {
			return nil, h.handleError(err)
		}
		return respond(res)
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-activity",
		Method:      http.MethodPost,
		Path:        "/activities/{id}/cancel",
		Summary:     "Cancel an activity",
		Errors:      errs,
	}, func(ctx context.Context, input *struct {
		ActivityPath
		Body ReasonRequest
	}) (*output[domain.Activity], error) {
		actorID, apiErr := h.authorizeActivity(ctx, input.ID)
		if apiErr != nil {
			return nil, apiErr
		}
		a, err := h.cfg.Activities.Cancel(ctx, input.ID, actorID, input.Body.Reason)
		if err != nil {
			return nil, h.handleError(err)
		}
		return respond(a)
	})

	huma.Register(api, huma.Operation{
		OperationID: "skip-activity",
		Method:      http.MethodPost,
		Path:        "/activities/{id}/skip",
		Summary:     "Skip an activity",
		Errors:      errs,
	}, func(ctx context.Context, input *struct {
		ActivityPath
		Body ReasonRequest
	}) (*output[domain.Activity], error) {
		actorID, apiErr := h.authorizeActivity(ctx, input.ID)
		if apiErr != nil {
			return nil, apiErr
		}
		a, err := h.cfg.Activities.Skip(ctx, input.ID, actorID, input.Body.Reason)
		if err != nil {
			return nil, h.handleError(err)
		}
		return respond(a)
	})

	huma.Register(api, huma.Operation{
		OperationID: "defer-activity",
		Method:      http.MethodPost,
		Path:        "/activities/{id}/defer",
		Summary:     "Defer an activity to a later due date",
		Errors:      errs,
	}, func(ctx context.Context, input *struct {
		ActivityPath
		Body DueDateRequest
	}) (*output[domain.Activity], error) {
		actorID, apiErr := h.authorizeActivity(ctx, input.ID)
		if apiErr != nil {
			return nil, apiErr
		}
		a, err := h.cfg.Activities.Defer(ctx, input.ID, actorID, input.Body.DueDate, input.Body.Reason)
		if err != nil {
			return nil, h.handleError(err)
		}
		return respond(a)
	})

	huma.Register(api, huma.Operation{
		OperationID: "reactivate-activity",
		Method:      http.MethodPost,
		Path:        "/activities/{id}/reactivate",
		Summary:     "Reopen a deferred activity",
		Errors:      errs,
	}, func(ctx context.Context, input *struct {
		ActivityPath
		Body DueDateRequest
	}) (*output[domain.Activity], error) {
		actorID, apiErr := h.authorizeActivity(ctx, input.ID)
		if apiErr != nil {
			return nil, apiErr
		}
		a, err := h.cfg.Activities.Reactivate(ctx, input.ID, actorID, input.Body.DueDate)
		if err != nil {
			return nil, h.handleError(err)
		}
		return respond(a)
	})

	huma.Register(api, huma.Operation{
		OperationID: "reschedule-activity",
		Method:      http.MethodPost,
		Path:        "/activities/{id}/reschedule",
		Summary:     "Move the due date",
		Errors:      errs,
	}, func(ctx context.Context, input *struct {
		ActivityPath
		Body DueDateRequest
	}) (*output[domain.Activity], error) {
		actorID, apiErr := h.authorizeActivity(ctx, input.ID)
		if apiErr != nil {
			return nil, apiErr
		}
		a, err := h.cfg.Activities.Reschedule(ctx, activity.RescheduleInput{
			ActivityID: input.ID,
			UserID:     actorID,
			DueDate:    input.Body.DueDate,
			Reason:     input.Body.Reason,
		})
		if err != nil {
			return nil, h.handleError(err)
		}
		return respond(a)
	})

	huma.Register(api, huma.Operation{
		OperationID: "reassign-activity",
		Method:      http.MethodPost,
		Path:        "/activities/{id}/reassign",
		Summary:     "Hand an activity to another user",
		Errors:      errs,
	}, func(ctx context.Context, input *struct {
		ActivityPath
		Body ReassignRequest
	}) (*output[domain.Activity], error) {
		actorID, apiErr := h.authorizeActivity(ctx, input.ID)
		if apiErr != nil {
			return nil, apiErr
		}
		a, err := h.cfg.Activities.Reassign(ctx, activity.ReassignInput{
			ActivityID: input.ID,
			UserID:     actorID,
			AssignTo:   input.Body.AssignedTo,
			Reason:     input.Body.Reason,
		})
		if err != nil {
			return nil, h.handleError(err)
		}
		return respond(a)
	})

	huma.Register(api, huma.Operation{
		OperationID: "escalate-activity",
		Method:      http.MethodPost,
		Path:        "/activities/{id}/escalate",
		Summary:     "Escalate an activity",
		Errors:      append(errs, http.StatusForbidden),
	}, func(ctx context.Context, input *struct {
		ActivityPath
		Body struct {
			Notify string `json:"notify,omitempty"`
			Reason string `json:"reason,omitempty"`
		}
	}) (*output[domain.Activity], error) {
		if apiErr := requireRole(ctx, RoleAdmin); apiErr != nil {
			return nil, apiErr
		}
		if _, apiErr := h.loadActivity(ctx, input.ID); apiErr != nil {
			return nil, apiErr
		}
		a, err := h.cfg.Activities.Escalate(ctx, input.ID, input.Body.Notify, input.Body.Reason)
		if err != nil {
			return nil, h.handleError(err)
		}
		return respond(a)
	})
}

func registerQueues(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "group-queue",
		Method:      http.MethodGet,
		Path:        "/queues/{group_id}",
		Summary:     "Unclaimed activities of a group, most urgent first",
	}, func(ctx context.Context, input *struct {
		GroupID string `path:"group_id"`
		Limit   int    `query:"limit" default:"50"`
	}) (*output[[]domain.QueueItem], error) {
		items, err := h.cfg.Activities.Queue(ctx, orgFromContext(ctx), input.GroupID, normalizeLimit(input.Limit))
		if err != nil {
			return nil, h.handleError(err)
		}
		if items == nil {
			items = []domain.QueueItem{}
		}
		return respond(items)
	})

	huma.Register(api, huma.Operation{
		OperationID: "claim-next",
		Method:      http.MethodPost,
		Path:        "/queues/{group_id}/claim-next",
		Summary:     "Claim the head of a group queue",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		GroupID string `path:"group_id"`
	}) (*output[domain.Activity], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := h.cfg.Activities.ClaimNext(ctx, orgFromContext(ctx), input.GroupID, actorID)
		if err != nil {
			return nil, h.handleError(err)
		}
		return respond(a)
	})

	huma.Register(api, huma.Operation{
		OperationID: "claim-activity",
		Method:      http.MethodPost,
		Path:        "/activities/{id}/claim",
		Summary:     "Claim a queued activity",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *ActivityPath) (*output[domain.Activity], error) {
		actorID, apiErr := h.authorizeActivity(ctx, input.ID)
		if apiErr != nil {
			return nil, apiErr
		}
		a, err := h.cfg.Activities.Claim(ctx, input.ID, actorID)
		if err != nil {
			return nil, h.handleError(err)
		}
		return respond(a)
	})

	huma.Register(api, huma.Operation{
		OperationID: "release-activity",
		Method:      http.MethodPost,
		Path:        "/activities/{id}/release",
		Summary:     "Return a claimed activity to its queue",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *ActivityPath) (*output[domain.Activity], error) {
		actorID, apiErr := h.authorizeActivity(ctx, input.ID)
		if apiErr != nil {
			return nil, apiErr
		}
		a, err := h.cfg.Activities.Release(ctx, input.ID, actorID)
		if err != nil {
			return nil, h.handleError(err)
		}
		return respond(a)
	})
}
