package services

import (
	"context"
	"fmt"

	"github.com/identserv/identityd/internal/store"
	"github.com/identserv/identityd/types"
)

// GroupRepository defines persistence operations for groups and grants.
type GroupRepository interface {
	Create(ctx context.Context, group types.Group) (types.Group, error)
	FindByID(ctx context.Context, id int) (types.Group, error)
	GetByName(ctx context.Context, name string) (types.Group, error)
	FilterBy(ctx context.Context, cond string, args ...any) ([]types.Group, error)
	SoftDelete(ctx context.Context, id int) error
	Grant(ctx context.Context, groupID, permissionID int) error
	Revoke(ctx context.Context, groupID, permissionID int) error
}

// PermissionRepository defines persistence operations for permissions.
type PermissionRepository interface {
	Create(ctx context.Context, perm types.Permission) (types.Permission, error)
	GetByText(ctx context.Context, text string) (types.Permission, error)
	FilterBy(ctx context.Context, cond string, args ...any) ([]types.Permission, error)
	SoftDelete(ctx context.Context, id int) error
}

// DirectoryService administers groups, permissions, and the edges connecting
// them to users. All lookups resolve names rather than surrogate ids, so the
// HTTP layer never sees internal identifiers.
type DirectoryService struct {
	users       UserRepository
	groups      GroupRepository
	permissions PermissionRepository
}

func NewDirectoryService(users UserRepository, groups GroupRepository, permissions PermissionRepository) *DirectoryService {
	return &DirectoryService{users: users, groups: groups, permissions: permissions}
}

func (s *DirectoryService) CreateGroup(ctx context.Context, name string) (types.Group, error) {
	if name == "" {
		return types.Group{}, fmt.Errorf("%w: group name is required", store.ErrValidation)
	}
	return s.groups.Create(ctx, types.Group{Name: name})
}

func (s *DirectoryService) ListGroups(ctx context.Context) ([]types.Group, error) {
	return s.groups.FilterBy(ctx, "")
}

func (s *DirectoryService) DeleteGroup(ctx context.Context, name string) error {
	group, err := s.groups.GetByName(ctx, name)
	if err != nil {
		return err
	}
	return s.groups.SoftDelete(ctx, group.ID)
}

func (s *DirectoryService) CreatePermission(ctx context.Context, text string) (types.Permission, error) {
	if text == "" {
		return types.Permission{}, fmt.Errorf("%w: permission text is required", store.ErrValidation)
	}
	return s.permissions.Create(ctx, types.Permission{Text: text})
}

func (s *DirectoryService) ListPermissions(ctx context.Context) ([]types.Permission, error) {
	return s.permissions.FilterBy(ctx, "")
}

func (s *DirectoryService) DeletePermission(ctx context.Context, text string) error {
	perm, err := s.permissions.GetByText(ctx, text)
	if err != nil {
		return err
	}
	return s.permissions.SoftDelete(ctx, perm.ID)
}

// AddMember puts the user identified by public id into the named group.
func (s *DirectoryService) AddMember(ctx context.Context, groupName, userPublicID string) error {
	user, err := s.users.GetByPublicID(ctx, userPublicID)
	if err != nil {
		return err
	}
	group, err := s.groups.GetByName(ctx, groupName)
	if err != nil {
		return err
	}
	return s.users.AddToGroup(ctx, user.ID, group.ID)
}

// RemoveMember drops the membership edge. Removing a non-member is a no-op.
func (s *DirectoryService) RemoveMember(ctx context.Context, groupName, userPublicID string) error {
	user, err := s.users.GetByPublicID(ctx, userPublicID)
	if err != nil {
		return err
	}
	group, err := s.groups.GetByName(ctx, groupName)
	if err != nil {
		return err
	}
	return s.users.RemoveFromGroup(ctx, user.ID, group.ID)
}

// Grant attaches the named permission to the named group.
func (s *DirectoryService) Grant(ctx context.Context, groupName, permissionText string) error {
	group, err := s.groups.GetByName(ctx, groupName)
	if err != nil {
		return err
	}
	perm, err := s.permissions.GetByText(ctx, permissionText)
	if err != nil {
		return err
	}
	return s.groups.Grant(ctx, group.ID, perm.ID)
}

// Revoke detaches the named permission from the named group.
func (s *DirectoryService) Revoke(ctx context.Context, groupName, permissionText string) error {
	group, err := s.groups.GetByName(ctx, groupName)
	if err != nil {
		return err
	}
	perm, err := s.permissions.GetByText(ctx, permissionText)
	if err != nil {
		return err
	}
	return s.groups.Revoke(ctx, group.ID, perm.ID)
}
