package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/identserv/identityd/types"
)

var groupMapping = Mapping[types.Group]{
	Table:   "groups",
	Columns: []string{"id", "name", "is_deleted", "created_at"},
	Scan: func(row Scanner) (types.Group, error) {
		var group types.Group
		err := row.Scan(&group.ID, &group.Name, &group.Deleted, &group.CreatedAt)
		return group, err
	},
}

// GroupStore handles persistence for groups and their permission grants.
type GroupStore struct {
	*Repo[types.Group]
	db *sql.DB
}

func NewGroupStore(db *sql.DB) *GroupStore {
	return &GroupStore{Repo: NewRepo(db, groupMapping), db: db}
}

func (s *GroupStore) Create(ctx context.Context, group types.Group) (types.Group, error) {
	group.CreatedAt = time.Now()

	const query = `
		INSERT INTO groups (name, created_at)
		VALUES ($1, $2)
		RETURNING id`
	if err := s.db.QueryRowContext(ctx, query, group.Name, group.CreatedAt).Scan(&group.ID); err != nil {
		return types.Group{}, translate(err)
	}
	return group, nil
}

func (s *GroupStore) GetByName(ctx context.Context, name string) (types.Group, error) {
	return s.FindBy(ctx, "name = $1", name)
}

// Grant records a group↔permission edge. Granting twice is a no-op.
func (s *GroupStore) Grant(ctx context.Context, groupID, permissionID int) error {
	const query = `
		INSERT INTO group_permissions (group_id, permission_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`
	_, err := s.db.ExecContext(ctx, query, groupID, permissionID)
	return err
}

func (s *GroupStore) Revoke(ctx context.Context, groupID, permissionID int) error {
	const query = `DELETE FROM group_permissions WHERE group_id = $1 AND permission_id = $2`
	_, err := s.db.ExecContext(ctx, query, groupID, permissionID)
	return err
}

// Permissions returns the live permission texts granted to the group.
func (s *GroupStore) Permissions(ctx context.Context, groupID int) ([]string, error) {
	const query = `
		SELECT p.permission
		FROM permissions p
		JOIN group_permissions gp ON gp.permission_id = p.id
		WHERE gp.group_id = $1 AND NOT p.is_deleted
		ORDER BY p.permission`
	rows, err := s.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var texts []string
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, err
		}
		texts = append(texts, text)
	}
	return texts, rows.Err()
}
