package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/identserv/identityd/types"
)

var permissionMapping = Mapping[types.Permission]{
	Table:   "permissions",
	Columns: []string{"id", "permission", "is_deleted", "created_at"},
	Scan: func(row Scanner) (types.Permission, error) {
		var perm types.Permission
		err := row.Scan(&perm.ID, &perm.Text, &perm.Deleted, &perm.CreatedAt)
		return perm, err
	},
}

// PermissionStore handles persistence for permissions.
type PermissionStore struct {
	*Repo[types.Permission]
	db *sql.DB
}

func NewPermissionStore(db *sql.DB) *PermissionStore {
	return &PermissionStore{Repo: NewRepo(db, permissionMapping), db: db}
}

func (s *PermissionStore) Create(ctx context.Context, perm types.Permission) (types.Permission, error) {
	perm.CreatedAt = time.Now()

	const query = `
		INSERT INTO permissions (permission, created_at)
		VALUES ($1, $2)
		RETURNING id`
	if err := s.db.QueryRowContext(ctx, query, perm.Text, perm.CreatedAt).Scan(&perm.ID); err != nil {
		return types.Permission{}, translate(err)
	}
	return perm, nil
}

func (s *PermissionStore) GetByText(ctx context.Context, text string) (types.Permission, error) {
	return s.FindBy(ctx, "permission = $1", text)
}
