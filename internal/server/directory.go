package server

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/SumanthNagolu/intime-v3-sub020/internal/domain"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/escalation"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/repo"
)

func registerDirectory(api huma.API, h handlers) {
	adminErrs := []int{http.StatusBadRequest, http.StatusForbidden}

	huma.Register(api, huma.Operation{
		OperationID: "list-members",
		Method:      http.MethodGet,
		Path:        "/directory/members",
		Summary:     "List org members",
	}, func(ctx context.Context, _ *struct{}) (*output[[]repo.Member], error) {
		members, err := h.cfg.Repo.ListMembers(ctx, orgFromContext(ctx))
		if err != nil {
			return nil, h.handleError(err)
		}
		if members == nil {
			members = []repo.Member{}
		}
		return respond(members)
	})

	huma.Register(api, huma.Operation{
		OperationID: "put-member",
		Method:      http.MethodPut,
		Path:        "/directory/members/{user_id}",
		Summary:     "Add or update an org member",
		Errors:      adminErrs,
	}, func(ctx context.Context, input *struct {
		UserID string `path:"user_id"`
		Body   MemberRequest
	}) (*output[repo.Member], error) {
		if apiErr := requireRole(ctx, RoleAdmin); apiErr != nil {
			return nil, apiErr
		}
		m := repo.Member{
			OrgID:       orgFromContext(ctx),
			UserID:      input.UserID,
			DisplayName: input.Body.DisplayName,
			Active:      input.Body.Active == nil || *input.Body.Active,
			CreatedAt:   h.now(),
		}
		if err := h.cfg.Repo.UpsertMember(ctx, m); err != nil {
			return nil, h.handleError(err)
		}
		return respond(m)
	})

	for _, kind := range []string{"roles", "groups"} {
		huma.Register(api, huma.Operation{
			OperationID: "list-" + kind + "-members",
			Method:      http.MethodGet,
			Path:        "/directory/" + kind + "/{name}/members",
			Summary:     "List members of a " + kind[:len(kind)-1],
		}, func(ctx context.Context, input *struct {
			Name string `path:"name"`
		}) (*output[UserIDs], error) {
			list := h.cfg.Repo.RoleMembers
			if kind == "groups" {
				list = h.cfg.Repo.GroupMembers
			}
			users, err := list(ctx, orgFromContext(ctx), input.Name)
			if err != nil {
				return nil, h.handleError(err)
			}
			if users == nil {
				users = []string{}
			}
			return respond(UserIDs{Users: users})
		})

		huma.Register(api, huma.Operation{
			OperationID:   "add-" + kind + "-member",
			Method:        http.MethodPut,
			Path:          "/directory/" + kind + "/{name}/members/{user_id}",
			Summary:       "Add a user to a " + kind[:len(kind)-1],
			DefaultStatus: http.StatusNoContent,
			Errors:        adminErrs,
		}, func(ctx context.Context, input *struct {
			Name   string `path:"name"`
			UserID string `path:"user_id"`
		}) (*struct{}, error) {
			if apiErr := requireRole(ctx, RoleAdmin); apiErr != nil {
				return nil, apiErr
			}
			var err error
			if kind == "groups" {
				err = h.cfg.Repo.AddGroupMember(ctx, orgFromContext(ctx), input.Name, input.UserID, h.now())
			} else {
				err = h.cfg.Repo.AddRoleMember(ctx, orgFromContext(ctx), input.Name, input.UserID)
			}
			if err != nil {
				return nil, h.handleError(err)
			}
			return &struct{}{}, nil
		})

		huma.Register(api, huma.Operation{
			OperationID:   "remove-" + kind + "-member",
			Method:        http.MethodDelete,
			Path:          "/directory/" + kind + "/{name}/members/{user_id}",
			Summary:       "Remove a user from a " + kind[:len(kind)-1],
			DefaultStatus: http.StatusNoContent,
			Errors:        adminErrs,
		}, func(ctx context.Context, input *struct {
			Name   string `path:"name"`
			UserID string `path:"user_id"`
		}) (*struct{}, error) {
			if apiErr := requireRole(ctx, RoleAdmin); apiErr != nil {
				return nil, apiErr
			}
			remove := h.cfg.Repo.RemoveRoleMember
			if kind == "groups" {
				remove = h.cfg.Repo.RemoveGroupMember
			}
			if err := remove(ctx, orgFromContext(ctx), input.Name, input.UserID); err != nil {
				return nil, h.handleError(err)
			}
			return &struct{}{}, nil
		})
	}

	huma.Register(api, huma.Operation{
		OperationID: "get-manager",
		Method:      http.MethodGet,
		Path:        "/directory/managers/{user_id}",
		Summary:     "Manager of a user",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		UserID string `path:"user_id"`
	}) (*output[ManagerRequest], error) {
		manager, err := h.cfg.Repo.ManagerOf(ctx, orgFromContext(ctx), input.UserID)
		if err != nil {
			return nil, h.handleError(err)
		}
		if manager == "" {
			return nil, newAPIError(http.StatusNotFound, "not_found", "user has no manager", map[string]any{"user_id": input.UserID})
		}
		return respond(ManagerRequest{ManagerID: manager})
	})

	huma.Register(api, huma.Operation{
		OperationID:   "put-manager",
		Method:        http.MethodPut,
		Path:          "/directory/managers/{user_id}",
		Summary:       "Set the manager of a user",
		DefaultStatus: http.StatusNoContent,
		Errors:        adminErrs,
	}, func(ctx context.Context, input *struct {
		UserID string `path:"user_id"`
		Body   ManagerRequest
	}) (*struct{}, error) {
		if apiErr := requireRole(ctx, RoleAdmin); apiErr != nil {
			return nil, apiErr
		}
		if err := h.cfg.Repo.SetManager(ctx, orgFromContext(ctx), input.UserID, input.Body.ManagerID); err != nil {
			return nil, h.handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-entity-owners",
		Method:      http.MethodGet,
		Path:        "/entities/{entity_type}/{entity_id}/owners",
		Summary:     "RACI owners of an entity",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		EntityPath
		Role string `query:"raci_role" doc:"R, A, C, I or the full role name"`
	}) (*output[[]domain.EntityOwner], error) {
		var role domain.RACIRole
		if input.Role != "" {
			parsed, ok := domain.ParseRACIRole(input.Role)
			if !ok {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "unknown raci role", map[string]any{"raci_role": input.Role})
			}
			role = parsed
		}
		owners, err := h.cfg.Repo.EntityOwners(ctx, orgFromContext(ctx), input.EntityType, input.EntityID, role)
		if err != nil {
			return nil, h.handleError(err)
		}
		if owners == nil {
			owners = []domain.EntityOwner{}
		}
		return respond(owners)
	})

	huma.Register(api, huma.Operation{
		OperationID: "put-entity-owner",
		Method:      http.MethodPut,
		Path:        "/entities/{entity_type}/{entity_id}/owners",
		Summary:     "Assign a RACI role on an entity",
		Errors:      adminErrs,
	}, func(ctx context.Context, input *struct {
		EntityPath
		Body OwnerRequest
	}) (*output[domain.EntityOwner], error) {
		if apiErr := requireRole(ctx, RoleAdmin); apiErr != nil {
			return nil, apiErr
		}
		o := domain.EntityOwner{
			OrgID:      orgFromContext(ctx),
			EntityType: input.EntityType,
			EntityID:   input.EntityID,
			UserID:     input.Body.UserID,
			Role:       input.Body.RACIRole,
			IsPrimary:  input.Body.IsPrimary,
			CreatedAt:  h.now(),
		}
		if err := h.cfg.Repo.SetEntityOwner(ctx, o); err != nil {
			return nil, h.handleError(err)
		}
		return respond(o)
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-entity-owner",
		Method:        http.MethodDelete,
		Path:          "/entities/{entity_type}/{entity_id}/owners/{user_id}",
		Summary:       "Remove a RACI role from an entity",
		DefaultStatus: http.StatusNoContent,
		Errors:        append(adminErrs, http.StatusNotFound),
	}, func(ctx context.Context, input *struct {
		EntityPath
		UserID string `path:"user_id"`
		Role   string `query:"raci_role" required:"true"`
	}) (*struct{}, error) {
		if apiErr := requireRole(ctx, RoleAdmin); apiErr != nil {
			return nil, apiErr
		}
		role, ok := domain.ParseRACIRole(input.Role)
		if !ok {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "unknown raci role", map[string]any{"raci_role": input.Role})
		}
		if err := h.cfg.Repo.RemoveEntityOwner(ctx, orgFromContext(ctx), input.EntityType, input.EntityID, input.UserID, role); err != nil {
			return nil, h.handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerSweeps(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "run-sweep",
		Method:      http.MethodPost,
		Path:        "/sweeps",
		Summary:     "Escalate overdue activities and send due reminders now",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*output[escalation.Result], error) {
		if apiErr := requireRole(ctx, RoleAdmin); apiErr != nil {
			return nil, apiErr
		}
		sw := h.cfg.Sweeper
		sw.Options.OrgID = orgFromContext(ctx)
		res, err := sw.Sweep(ctx)
		if err != nil {
			return nil, h.handleError(err)
		}
		return respond(res)
	})
}

func (h handlers) now() time.Time {
	if h.cfg.Activities.Now != nil {
		return h.cfg.Activities.Now().UTC()
	}
	return time.Now().UTC()
}
