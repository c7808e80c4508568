package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/identserv/identityd/types"
)

var userMapping = Mapping[types.User]{
	Table: "users",
	Columns: []string{
		"id", "public_id", "username", "email", "nickname",
		"password_hash", "is_deleted", "created_at", "updated_at",
	},
	Scan: func(row Scanner) (types.User, error) {
		var user types.User
		err := row.Scan(
			&user.ID,
			&user.PublicID,
			&user.Username,
			&user.Email,
			&user.Nickname,
			&user.PasswordHash,
			&user.Deleted,
			&user.CreatedAt,
			&user.UpdatedAt,
		)
		return user, err
	},
}

// UserStore handles persistence for users and their group memberships.
type UserStore struct {
	*Repo[types.User]
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{Repo: NewRepo(db, userMapping), db: db}
}

func (s *UserStore) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.Nickname == "" {
		user.Nickname = types.DefaultNickname
	}

	const query = `
		INSERT INTO users (public_id, username, email, nickname, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	if err := s.db.QueryRowContext(
		ctx,
		query,
		user.PublicID,
		user.Username,
		user.Email,
		user.Nickname,
		user.PasswordHash,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID); err != nil {
		return types.User{}, translate(err)
	}
	return user, nil
}

// Update persists field changes by surrogate id. A soft-deleted row is still
// updatable; only a physically absent row yields ErrNotFound.
func (s *UserStore) Update(ctx context.Context, user types.User) (types.User, error) {
	user.UpdatedAt = time.Now()

	const query = `
		UPDATE users
		SET username = $1,
			email = $2,
			nickname = $3,
			password_hash = $4,
			updated_at = $5
		WHERE id = $6`
	result, err := s.db.ExecContext(
		ctx,
		query,
		user.Username,
		user.Email,
		user.Nickname,
		user.PasswordHash,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return types.User{}, translate(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.User{}, err
	}
	if affected == 0 {
		return types.User{}, ErrNotFound
	}
	return user, nil
}

func (s *UserStore) GetByUsername(ctx context.Context, username string) (types.User, error) {
	return s.FindBy(ctx, "username = $1", username)
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (types.User, error) {
	return s.FindBy(ctx, "email = $1", email)
}

func (s *UserStore) GetByPublicID(ctx context.Context, publicID string) (types.User, error) {
	return s.FindBy(ctx, "public_id = $1", publicID)
}

// AddToGroup records a user↔group membership edge. Adding an existing edge is
// a no-op.
func (s *UserStore) AddToGroup(ctx context.Context, userID, groupID int) error {
	const query = `
		INSERT INTO user_groups (user_id, group_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`
	_, err := s.db.ExecContext(ctx, query, userID, groupID)
	return err
}

func (s *UserStore) RemoveFromGroup(ctx context.Context, userID, groupID int) error {
	const query = `DELETE FROM user_groups WHERE user_id = $1 AND group_id = $2`
	_, err := s.db.ExecContext(ctx, query, userID, groupID)
	return err
}

// GroupNames returns the names of the live groups the user belongs to.
// Membership edges pointing at soft-deleted groups are treated as absent.
func (s *UserStore) GroupNames(ctx context.Context, userID int) ([]string, error) {
	const query = `
		SELECT g.name
		FROM groups g
		JOIN user_groups ug ON ug.group_id = g.id
		WHERE ug.user_id = $1 AND NOT g.is_deleted
		ORDER BY g.name`
	return s.queryStrings(ctx, query, userID)
}

// EffectivePermissions returns the distinct permission texts reachable from
// the user through live groups and live permissions. Edges whose group or
// permission is soft-deleted contribute nothing, even though the edge row
// itself survives.
func (s *UserStore) EffectivePermissions(ctx context.Context, userID int) ([]string, error) {
	const query = `
		SELECT DISTINCT p.permission
		FROM permissions p
		JOIN group_permissions gp ON gp.permission_id = p.id
		JOIN groups g ON g.id = gp.group_id AND NOT g.is_deleted
		JOIN user_groups ug ON ug.group_id = g.id
		WHERE ug.user_id = $1 AND NOT p.is_deleted
		ORDER BY p.permission`
	return s.queryStrings(ctx, query, userID)
}

func (s *UserStore) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, err
		}
		values = append(values, value)
	}
	return values, rows.Err()
}
