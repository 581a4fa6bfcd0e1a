package domain

import "fmt"

// AssignmentType tags the variants of AssignmentRule.
type AssignmentType string

const (
	AssignOwner        AssignmentType = "owner"
	AssignCreator      AssignmentType = "creator"
	AssignRACIRole     AssignmentType = "raci_role"
	AssignSpecificUser AssignmentType = "specific_user"
	AssignSpecificRole AssignmentType = "specific_role"
	AssignRoundRobin   AssignmentType = "round_robin"
	AssignLeastBusy    AssignmentType = "least_busy"
	AssignManager      AssignmentType = "manager"
)

// AssignmentRule is a sealed sum type: only the variants below implement it.
type AssignmentRule interface {
	Type() AssignmentType
	isAssignmentRule()
}

// OwnerRule assigns to the accountable, primary owner of the entity.
type OwnerRule struct{}

// CreatorRule assigns to the actor that caused the event.
type CreatorRule struct{}

// RACIRule assigns to the entity owner holding Role.
type RACIRule struct{ Role RACIRole }

// SpecificUserRule assigns to a fixed user.
type SpecificUserRule struct{ UserID string }

// SpecificRoleRule assigns to a member of an org role.
type SpecificRoleRule struct{ Role string }

// RoundRobinRule rotates through the members of a group.
type RoundRobinRule struct{ GroupID string }

// LeastBusyRule picks the candidate with the fewest active activities.
// An empty GroupID means every org member is a candidate.
type LeastBusyRule struct{ GroupID string }

// ManagerRule assigns to the manager of the entity owner.
type ManagerRule struct{}

func (OwnerRule) Type() AssignmentType        { return AssignOwner }
func (CreatorRule) Type() AssignmentType      { return AssignCreator }
func (RACIRule) Type() AssignmentType         { return AssignRACIRole }
func (SpecificUserRule) Type() AssignmentType { return AssignSpecificUser }
func (SpecificRoleRule) Type() AssignmentType { return AssignSpecificRole }
func (RoundRobinRule) Type() AssignmentType   { return AssignRoundRobin }
func (LeastBusyRule) Type() AssignmentType    { return AssignLeastBusy }
func (ManagerRule) Type() AssignmentType      { return AssignManager }

func (OwnerRule) isAssignmentRule()        {}
func (CreatorRule) isAssignmentRule()      {}
func (RACIRule) isAssignmentRule()         {}
func (SpecificUserRule) isAssignmentRule() {}
func (SpecificRoleRule) isAssignmentRule() {}
func (RoundRobinRule) isAssignmentRule()   {}
func (LeastBusyRule) isAssignmentRule()    {}
func (ManagerRule) isAssignmentRule()      {}

// RuleSpec is the wire/storage form of an AssignmentRule:
// {"type":"raci_role","role":"R"}.
type RuleSpec struct {
	Type    AssignmentType `json:"type" yaml:"type" enum:"owner,creator,raci_role,specific_user,specific_role,round_robin,least_busy,manager"`
	Role    string         `json:"role,omitempty" yaml:"role,omitempty"`
	UserID  string         `json:"user_id,omitempty" yaml:"user_id,omitempty"`
	GroupID string         `json:"group_id,omitempty" yaml:"group_id,omitempty"`
}

// Rule decodes the spec into its variant.
func (s RuleSpec) Rule() (AssignmentRule, error) {
	switch s.Type {
	case AssignOwner:
		return OwnerRule{}, nil
	case AssignCreator:
		return CreatorRule{}, nil
	case AssignRACIRole:
		role, ok := ParseRACIRole(s.Role)
		if !ok {
			return nil, invalid("assign_to.role", fmt.Sprintf("unknown RACI role %q", s.Role))
		}
		return RACIRule{Role: role}, nil
	case AssignSpecificUser:
		if s.UserID == "" {
			return nil, invalid("assign_to.user_id", "required for specific_user")
		}
		return SpecificUserRule{UserID: s.UserID}, nil
	case AssignSpecificRole:
		if s.Role == "" {
			return nil, invalid("assign_to.role", "required for specific_role")
		}
		return SpecificRoleRule{Role: s.Role}, nil
	case AssignRoundRobin:
		if s.GroupID == "" {
			return nil, invalid("assign_to.group_id", "required for round_robin")
		}
		return RoundRobinRule{GroupID: s.GroupID}, nil
	case AssignLeastBusy:
		return LeastBusyRule{GroupID: s.GroupID}, nil
	case AssignManager:
		return ManagerRule{}, nil
	case "":
		return nil, invalid("assign_to.type", "required")
	}
	return nil, invalid("assign_to.type", fmt.Sprintf("unknown assignment type %q", s.Type))
}

// SpecOf encodes a rule variant.
func SpecOf(r AssignmentRule) RuleSpec {
	switch v := r.(type) {
	case RACIRule:
		return RuleSpec{Type: AssignRACIRole, Role: string(v.Role)}
	case SpecificUserRule:
		return RuleSpec{Type: AssignSpecificUser, UserID: v.UserID}
	case SpecificRoleRule:
		return RuleSpec{Type: AssignSpecificRole, Role: v.Role}
	case RoundRobinRule:
		return RuleSpec{Type: AssignRoundRobin, GroupID: v.GroupID}
	case LeastBusyRule:
		return RuleSpec{Type: AssignLeastBusy, GroupID: v.GroupID}
	case nil:
		return RuleSpec{}
	default:
		return RuleSpec{Type: r.Type()}
	}
}
