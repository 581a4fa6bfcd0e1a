package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/SumanthNagolu/intime-v3-sub020/internal/domain"
)

// Member is an org member as stored in the directory.
type Member struct {
	OrgID       string    `json:"org_id"`
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

func (r Repo) UpsertMember(ctx context.Context, m Member) error {
	_, err := r.q().ExecContext(ctx, `INSERT INTO org_members(org_id,user_id,display_name,is_active,created_at) VALUES (?,?,?,?,?)
ON CONFLICT(org_id,user_id) DO UPDATE SET display_name=excluded.display_name, is_active=excluded.is_active`,
		m.OrgID, m.UserID, nullable(m.DisplayName), boolInt(m.Active), formatTime(m.CreatedAt))
	return err
}

func (r Repo) ListMembers(ctx context.Context, orgID string) ([]Member, error) {
	rows, err := r.q().QueryContext(ctx, `SELECT org_id,user_id,COALESCE(display_name,''),is_active,created_at FROM org_members WHERE org_id=? ORDER BY user_id`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Member
	for rows.Next() {
		var m Member
		var active int
		var created string
		if err := rows.Scan(&m.OrgID, &m.UserID, &m.DisplayName, &active, &created); err != nil {
			return nil, err
		}
		m.Active = active == 1
		if m.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// OrgMembers lists the ids of active org members.
func (r Repo) OrgMembers(ctx context.Context, orgID string) ([]string, error) {
	return r.userIDs(ctx, `SELECT user_id FROM org_members WHERE org_id=? AND is_active=1 ORDER BY user_id`, orgID)
}

// SetEntityOwner records a RACI owner. Marking an owner primary clears the
// primary flag of other holders of the same role.
func (r Repo) SetEntityOwner(ctx context.Context, o domain.EntityOwner) error {
	return r.InTx(ctx, func(tx Repo) error {
		if o.IsPrimary {
			if _, err := tx.q().ExecContext(ctx, `UPDATE entity_owners SET is_primary=0 WHERE org_id=? AND entity_type=? AND entity_id=? AND raci_role=?`,
				o.OrgID, o.EntityType, o.EntityID, string(o.Role)); err != nil {
				return err
			}
		}
		_, err := tx.q().ExecContext(ctx, `INSERT INTO entity_owners(org_id,entity_type,entity_id,user_id,raci_role,is_primary,created_at) VALUES (?,?,?,?,?,?,?)
ON CONFLICT(org_id,entity_type,entity_id,user_id,raci_role) DO UPDATE SET is_primary=excluded.is_primary`,
			o.OrgID, o.EntityType, o.EntityID, o.UserID, string(o.Role), boolInt(o.IsPrimary), formatTime(o.CreatedAt))
		return err
	})
}

func (r Repo) RemoveEntityOwner(ctx context.Context, orgID, entityType, entityID, userID string, role domain.RACIRole) error {
	res, err := r.q().ExecContext(ctx, `DELETE FROM entity_owners WHERE org_id=? AND entity_type=? AND entity_id=? AND user_id=? AND raci_role=?`,
		orgID, entityType, entityID, userID, string(role))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// EntityOwners returns the owners of an entity, primary first then oldest.
// An empty role returns every role.
func (r Repo) EntityOwners(ctx context.Context, orgID, entityType, entityID string, role domain.RACIRole) ([]domain.EntityOwner, error) {
	query := `SELECT org_id,entity_type,entity_id,user_id,raci_role,is_primary,created_at FROM entity_owners WHERE org_id=? AND entity_type=? AND entity_id=?`
	args := []any{orgID, entityType, entityID}
	if role != "" {
		query += ` AND raci_role=?`
		args = append(args, string(role))
	}
	rows, err := r.q().QueryContext(ctx, query+` ORDER BY is_primary DESC, created_at ASC, user_id ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.EntityOwner
	for rows.Next() {
		var o domain.EntityOwner
		var primary int
		var created string
		if err := rows.Scan(&o.OrgID, &o.EntityType, &o.EntityID, &o.UserID, &o.Role, &primary, &created); err != nil {
			return nil, err
		}
		o.IsPrimary = primary == 1
		if o.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

func (r Repo) AddRoleMember(ctx context.Context, orgID, role, userID string) error {
	_, err := r.q().ExecContext(ctx, `INSERT OR IGNORE INTO role_members(org_id, role, user_id) VALUES (?,?,?)`, orgID, role, userID)
	return err
}

func (r Repo) RemoveRoleMember(ctx context.Context, orgID, role, userID string) error {
	_, err := r.q().ExecContext(ctx, `DELETE FROM role_members WHERE org_id=? AND role=? AND user_id=?`, orgID, role, userID)
	return err
}

func (r Repo) RoleMembers(ctx context.Context, orgID, role string) ([]string, error) {
	return r.userIDs(ctx, `SELECT user_id FROM role_members WHERE org_id=? AND role=? ORDER BY user_id`, orgID, role)
}

func (r Repo) AddGroupMember(ctx context.Context, orgID, groupID, userID string, now time.Time) error {
	_, err := r.q().ExecContext(ctx, `INSERT OR IGNORE INTO group_members(org_id, group_id, user_id, created_at) VALUES (?,?,?,?)`,
		orgID, groupID, userID, formatTime(now))
	return err
}

func (r Repo) RemoveGroupMember(ctx context.Context, orgID, groupID, userID string) error {
	_, err := r.q().ExecContext(ctx, `DELETE FROM group_members WHERE org_id=? AND group_id=? AND user_id=?`, orgID, groupID, userID)
	return err
}

// GroupMembers lists a group's members in the order they joined.
func (r Repo) GroupMembers(ctx context.Context, orgID, groupID string) ([]string, error) {
	return r.userIDs(ctx, `SELECT user_id FROM group_members WHERE org_id=? AND group_id=? ORDER BY created_at, user_id`, orgID, groupID)
}

func (r Repo) SetManager(ctx context.Context, orgID, userID, managerID string) error {
	_, err := r.q().ExecContext(ctx, `INSERT INTO managers(org_id,user_id,manager_id) VALUES (?,?,?)
ON CONFLICT(org_id,user_id) DO UPDATE SET manager_id=excluded.manager_id`, orgID, userID, managerID)
	return err
}

// ManagerOf returns the user's manager, or "" when none is recorded.
func (r Repo) ManagerOf(ctx context.Context, orgID, userID string) (string, error) {
	var manager string
	err := r.q().QueryRowContext(ctx, `SELECT manager_id FROM managers WHERE org_id=? AND user_id=?`, orgID, userID).Scan(&manager)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return manager, err
}

func (r Repo) userIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.q().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		res = append(res, id)
	}
	return res, rows.Err()
}
