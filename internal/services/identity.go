package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/identserv/identityd/internal/password"
	"github.com/identserv/identityd/internal/store"
	"github.com/identserv/identityd/types"
)

// ErrInvalidCredentials is returned by Authenticate when the user exists but
// the password does not match.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Conflict refinements so the HTTP layer can name the offending field. Both
// match store.ErrConflict under errors.Is.
var (
	ErrUsernameTaken = fmt.Errorf("%w: username", store.ErrConflict)
	ErrEmailTaken    = fmt.Errorf("%w: email", store.ErrConflict)
)

// UserRepository defines persistence operations for users and their
// membership edges.
type UserRepository interface {
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, user types.User) (types.User, error)
	FindByID(ctx context.Context, id int) (types.User, error)
	GetByUsername(ctx context.Context, username string) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	GetByPublicID(ctx context.Context, publicID string) (types.User, error)
	Paginate(ctx context.Context, page, perPage, maxPerPage int) (store.Page[types.User], error)
	SoftDelete(ctx context.Context, id int) error
	HardRemove(ctx context.Context, id int) error
	AddToGroup(ctx context.Context, userID, groupID int) error
	RemoveFromGroup(ctx context.Context, userID, groupID int) error
	GroupNames(ctx context.Context, userID int) ([]string, error)
	EffectivePermissions(ctx context.Context, userID int) ([]string, error)
}

// IdentityService encapsulates user use-cases: registration, credential
// verification, and the group/permission reachability queries backing token
// issuance.
type IdentityService struct {
	repo UserRepository
}

func NewIdentityService(repo UserRepository) *IdentityService {
	return &IdentityService{repo: repo}
}

// CreateUser registers a new account. The plaintext password goes through the
// credential store and is never persisted. The username and email pre-checks
// are best-effort; the store's unique indexes settle concurrent races, also
// reported as store.ErrConflict.
func (s *IdentityService) CreateUser(ctx context.Context, publicID, username, email, plaintext string) (types.User, error) {
	if username == "" || email == "" || plaintext == "" || publicID == "" {
		return types.User{}, fmt.Errorf("%w: username, email and password are required", store.ErrValidation)
	}

	if _, err := s.repo.GetByUsername(ctx, username); err == nil {
		return types.User{}, ErrUsernameTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.User{}, err
	}
	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return types.User{}, ErrEmailTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.User{}, err
	}

	digest, err := password.Hash(plaintext)
	if err != nil {
		return types.User{}, err
	}

	return s.repo.Create(ctx, types.User{
		PublicID:     publicID,
		Username:     username,
		Email:        email,
		Nickname:     types.DefaultNickname,
		PasswordHash: digest,
	})
}

// Authenticate verifies a username/password pair. An absent or soft-deleted
// user yields store.ErrNotFound; a wrong password yields
// ErrInvalidCredentials.
func (s *IdentityService) Authenticate(ctx context.Context, username, plaintext string) (types.User, error) {
	user, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		return types.User{}, err
	}
	if !password.Verify(plaintext, user.PasswordHash) {
		return types.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// EffectivePermissions returns the flattened permission set reachable from
// the user through live groups: the union of each live group's live
// permissions, duplicates collapsed.
func (s *IdentityService) EffectivePermissions(ctx context.Context, user types.User) ([]string, error) {
	return s.repo.EffectivePermissions(ctx, user.ID)
}

// GroupNames returns the live group names the user belongs to.
func (s *IdentityService) GroupNames(ctx context.Context, user types.User) ([]string, error) {
	return s.repo.GroupNames(ctx, user.ID)
}

func (s *IdentityService) GetByID(ctx context.Context, id int) (types.User, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *IdentityService) GetByPublicID(ctx context.Context, publicID string) (types.User, error) {
	return s.repo.GetByPublicID(ctx, publicID)
}

// List returns one page of live users.
func (s *IdentityService) List(ctx context.Context, page, perPage, maxPerPage int) (store.Page[types.User], error) {
	return s.repo.Paginate(ctx, page, perPage, maxPerPage)
}

// UpdateNickname changes the user's display name.
func (s *IdentityService) UpdateNickname(ctx context.Context, user types.User, nickname string) (types.User, error) {
	if nickname == "" {
		return types.User{}, fmt.Errorf("%w: nickname is required", store.ErrValidation)
	}
	user.Nickname = nickname
	return s.repo.Update(ctx, user)
}

// Delete soft-deletes the user; the row is retained and the username/email
// become reusable. The administrator policy guard is the caller's
// responsibility, via GroupNames.
func (s *IdentityService) Delete(ctx context.Context, user types.User) error {
	return s.repo.SoftDelete(ctx, user.ID)
}
