package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/SumanthNagolu/intime-v3-sub020/internal/domain"
)

// ErrUnresolved means a rule produced no assignee. The pattern is skipped.
var ErrUnresolved = errors.New("assignee unresolved")

// UnresolvedError explains why a rule produced no assignee.
type UnresolvedError struct {
	Rule   domain.AssignmentType
	Reason string
}

func (e UnresolvedError) Error() string {
	return fmt.Sprintf("%s: %s", e.Rule, e.Reason)
}

func (e UnresolvedError) Unwrap() error { return ErrUnresolved }

// Directory is the ownership and membership data rules resolve against.
type Directory interface {
	EntityOwners(ctx context.Context, orgID, entityType, entityID string, role domain.RACIRole) ([]domain.EntityOwner, error)
	RoleMembers(ctx context.Context, orgID, role string) ([]string, error)
	GroupMembers(ctx context.Context, orgID, groupID string) ([]string, error)
	OrgMembers(ctx context.Context, orgID string) ([]string, error)
	ManagerOf(ctx context.Context, orgID, userID string) (string, error)
	OpenActivityCounts(ctx context.Context, orgID string, users []string) (map[string]int, error)
	LastGroupAssignments(ctx context.Context, orgID, groupID string) (map[string]time.Time, error)
}

// Assignment is a resolved assignee. GroupID is set when the user was picked
// from a group.
type Assignment struct {
	UserID  string
	GroupID string
}

// Resolver turns assignment rules into users. It keeps no state of its own:
// rotation and workload come from the directory.
type Resolver struct {
	Directory Directory
}

// Resolve returns the assignee for rule. Errors wrapping ErrUnresolved mean
// "no assignee"; anything else is a lookup failure.
func (r Resolver) Resolve(ctx context.Context, rule domain.AssignmentRule, ev domain.Event) (Assignment, error) {
	switch v := rule.(type) {
	case domain.OwnerRule:
		u, err := r.owner(ctx, ev)
		return Assignment{UserID: u}, err
	case domain.CreatorRule:
		if ev.ActorID == "" || ev.ActorID == domain.SystemActor {
			return Assignment{}, unresolved(v, "event has no user actor")
		}
		return Assignment{UserID: ev.ActorID}, nil
	case domain.RACIRule:
		owners, err := r.Directory.EntityOwners(ctx, ev.OrgID, ev.EntityType, ev.EntityID, v.Role)
		if err != nil {
			return Assignment{}, err
		}
		if len(owners) == 0 {
			return Assignment{}, unresolved(v, fmt.Sprintf("no %s owner on %s %s", v.Role, ev.EntityType, ev.EntityID))
		}
		return Assignment{UserID: owners[0].UserID}, nil
	case domain.SpecificUserRule:
		if v.UserID == "" {
			return Assignment{}, unresolved(v, "no user configured")
		}
		return Assignment{UserID: v.UserID}, nil
	case domain.SpecificRoleRule:
		members, err := r.Directory.RoleMembers(ctx, ev.OrgID, v.Role)
		if err != nil {
			return Assignment{}, err
		}
		u, err := r.leastBusy(ctx, ev.OrgID, members)
		if err != nil {
			return Assignment{}, err
		}
		if u == "" {
			return Assignment{}, unresolved(v, fmt.Sprintf("role %q has no members", v.Role))
		}
		return Assignment{UserID: u}, nil
	case domain.RoundRobinRule:
		u, err := r.roundRobin(ctx, ev.OrgID, v.GroupID)
		if err != nil {
			return Assignment{}, err
		}
		if u == "" {
			return Assignment{}, unresolved(v, fmt.Sprintf("group %q has no members", v.GroupID))
		}
		return Assignment{UserID: u, GroupID: v.GroupID}, nil
	case domain.LeastBusyRule:
		var members []string
		var err error
		if v.GroupID != "" {
			members, err = r.Directory.GroupMembers(ctx, ev.OrgID, v.GroupID)
		} else {
			members, err = r.Directory.OrgMembers(ctx, ev.OrgID)
		}
		if err != nil {
			return Assignment{}, err
		}
		u, err := r.leastBusy(ctx, ev.OrgID, members)
		if err != nil {
			return Assignment{}, err
		}
		if u == "" {
			return Assignment{}, unresolved(v, "no candidates")
		}
		return Assignment{UserID: u, GroupID: v.GroupID}, nil
	case domain.ManagerRule:
		owner, err := r.owner(ctx, ev)
		if err != nil {
			return Assignment{}, err
		}
		mgr, err := r.Directory.ManagerOf(ctx, ev.OrgID, owner)
		if err != nil {
			return Assignment{}, err
		}
		if mgr == "" {
			return Assignment{}, unresolved(v, fmt.Sprintf("owner %s has no manager", owner))
		}
		return Assignment{UserID: mgr}, nil
	case nil:
		return Assignment{}, UnresolvedError{Reason: "no rule"}
	default:
		panic(fmt.Sprintf("engine: unhandled assignment rule %T", rule))
	}
}

func unresolved(rule domain.AssignmentRule, reason string) error {
	return UnresolvedError{Rule: rule.Type(), Reason: reason}
}

// owner is the accountable owner flagged primary.
func (r Resolver) owner(ctx context.Context, ev domain.Event) (string, error) {
	owners, err := r.Directory.EntityOwners(ctx, ev.OrgID, ev.EntityType, ev.EntityID, domain.RACIAccountable)
	if err != nil {
		return "", err
	}
	for _, o := range owners {
		if o.IsPrimary {
			return o.UserID, nil
		}
	}
	return "", unresolved(domain.OwnerRule{}, fmt.Sprintf("no primary accountable owner on %s %s", ev.EntityType, ev.EntityID))
}

// leastBusy picks the candidate with the fewest open activities, breaking
// ties by user id.
func (r Resolver) leastBusy(ctx context.Context, orgID string, candidates []string) (string, error) {
	if len(candidates) == 0 {
		return "", nil
	}
	counts, err := r.Directory.OpenActivityCounts(ctx, orgID, candidates)
	if err != nil {
		return "", err
	}
	users := append([]string(nil), candidates...)
	sort.Slice(users, func(i, j int) bool {
		if counts[users[i]] != counts[users[j]] {
			return counts[users[i]] < counts[users[j]]
		}
		return users[i] < users[j]
	})
	return users[0], nil
}

// roundRobin picks the group member who has waited longest since their last
// assignment from the group. Members never assigned go first, in join order.
func (r Resolver) roundRobin(ctx context.Context, orgID, groupID string) (string, error) {
	members, err := r.Directory.GroupMembers(ctx, orgID, groupID)
	if err != nil || len(members) == 0 {
		return "", err
	}
	last, err := r.Directory.LastGroupAssignments(ctx, orgID, groupID)
	if err != nil {
		return "", err
	}
	pick := ""
	var pickAt time.Time
	for _, m := range members {
		at, seen := last[m]
		if !seen {
			return m, nil
		}
		if pick == "" || at.Before(pickAt) {
			pick, pickAt = m, at
		}
	}
	return pick, nil
}
