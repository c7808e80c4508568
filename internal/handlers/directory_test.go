package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/identserv/identityd/internal/services"
	"github.com/identserv/identityd/internal/store"
	"github.com/identserv/identityd/internal/token"
	"github.com/identserv/identityd/types"
)

// fakeGroupRepo and fakePermissionRepo are the minimal in-memory directory
// backends for routing tests.
type fakeGroupRepo struct {
	nextID int
	groups map[int]types.Group
	edges  map[[2]int]bool
}

func newFakeGroupRepo() *fakeGroupRepo {
	return &fakeGroupRepo{nextID: 1, groups: map[int]types.Group{}, edges: map[[2]int]bool{}}
}

func (f *fakeGroupRepo) Create(_ context.Context, group types.Group) (types.Group, error) {
	for _, existing := range f.groups {
		if !existing.Deleted && existing.Name == group.Name {
			return types.Group{}, store.ErrConflict
		}
	}
	group.ID = f.nextID
	f.nextID++
	f.groups[group.ID] = group
	return group, nil
}

func (f *fakeGroupRepo) FindByID(_ context.Context, id int) (types.Group, error) {
	group, ok := f.groups[id]
	if !ok || group.Deleted {
		return types.Group{}, store.ErrNotFound
	}
	return group, nil
}

func (f *fakeGroupRepo) GetByName(_ context.Context, name string) (types.Group, error) {
	for _, group := range f.groups {
		if !group.Deleted && group.Name == name {
			return group, nil
		}
	}
	return types.Group{}, store.ErrNotFound
}

func (f *fakeGroupRepo) FilterBy(_ context.Context, _ string, _ ...any) ([]types.Group, error) {
	var live []types.Group
	for id := 1; id < f.nextID; id++ {
		if group, ok := f.groups[id]; ok && !group.Deleted {
			live = append(live, group)
		}
	}
	return live, nil
}

func (f *fakeGroupRepo) SoftDelete(_ context.Context, id int) error {
	group, ok := f.groups[id]
	if !ok {
		return store.ErrNotFound
	}
	group.Deleted = true
	f.groups[id] = group
	return nil
}

func (f *fakeGroupRepo) Grant(_ context.Context, groupID, permissionID int) error {
	f.edges[[2]int{groupID, permissionID}] = true
	return nil
}

func (f *fakeGroupRepo) Revoke(_ context.Context, groupID, permissionID int) error {
	delete(f.edges, [2]int{groupID, permissionID})
	return nil
}

type fakePermissionRepo struct {
	nextID int
	perms  map[int]types.Permission
}

func newFakePermissionRepo() *fakePermissionRepo {
	return &fakePermissionRepo{nextID: 1, perms: map[int]types.Permission{}}
}

func (f *fakePermissionRepo) Create(_ context.Context, perm types.Permission) (types.Permission, error) {
	for _, existing := range f.perms {
		if !existing.Deleted && existing.Text == perm.Text {
			return types.Permission{}, store.ErrConflict
		}
	}
	perm.ID = f.nextID
	f.nextID++
	f.perms[perm.ID] = perm
	return perm, nil
}

func (f *fakePermissionRepo) GetByText(_ context.Context, text string) (types.Permission, error) {
	for _, perm := range f.perms {
		if !perm.Deleted && perm.Text == text {
			return perm, nil
		}
	}
	return types.Permission{}, store.ErrNotFound
}

func (f *fakePermissionRepo) FilterBy(_ context.Context, _ string, _ ...any) ([]types.Permission, error) {
	var live []types.Permission
	for id := 1; id < f.nextID; id++ {
		if perm, ok := f.perms[id]; ok && !perm.Deleted {
			live = append(live, perm)
		}
	}
	return live, nil
}

func (f *fakePermissionRepo) SoftDelete(_ context.Context, id int) error {
	perm, ok := f.perms[id]
	if !ok {
		return store.ErrNotFound
	}
	perm.Deleted = true
	f.perms[id] = perm
	return nil
}

func newDirectoryRig(t *testing.T) (*fakeUserRepo, *token.Service, http.Handler) {
	t.Helper()
	users := newFakeUserRepo()
	tokens := token.NewService("test-secret", time.Hour, true)
	handler := NewDirectoryHandler(
		services.NewDirectoryService(users, newFakeGroupRepo(), newFakePermissionRepo()),
		tokens, nil,
	)

	router := chi.NewRouter()
	router.Route("/auth", func(r chi.Router) {
		DirectoryRouter(r, handler)
	})
	return users, tokens, router
}

func postJSON(t *testing.T, handler http.Handler, path string, body any, tokenString string) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	if tokenString != "" {
		req.Header.Set(tokenCookieName, tokenString)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestDirectoryRequiresManagePermission(t *testing.T) {
	repo, tokens, router := newDirectoryRig(t)
	plain := seedUser(t, repo, "uuid-plain", "plain", "pw", nil)
	manager := seedUser(t, repo, "uuid-manager", "manager", "pw", map[string][]string{
		"staff": {types.PermManageGroups},
	})

	rec := doRequest(t, router, http.MethodGet, "/auth/groups", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("want 401 without token, got %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodGet, "/auth/groups", issueFor(t, tokens, repo, plain))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("want 403 without permission, got %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodGet, "/auth/groups", issueFor(t, tokens, repo, manager))
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200 with permission, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestDirectoryGroupAdministration(t *testing.T) {
	repo, tokens, router := newDirectoryRig(t)
	manager := seedUser(t, repo, "uuid-manager", "manager", "pw", map[string][]string{
		"staff": {types.PermManageGroups},
	})
	seedUser(t, repo, "uuid-alice", "alice", "pw", nil)
	managerToken := issueFor(t, tokens, repo, manager)

	rec := postJSON(t, router, "/auth/groups", groupRequest{Name: "editors"}, managerToken)
	if rec.Code != http.StatusCreated {
		t.Fatalf("want 201 creating group, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = postJSON(t, router, "/auth/groups", groupRequest{Name: "editors"}, managerToken)
	if rec.Code != http.StatusConflict {
		t.Fatalf("want 409 for duplicate group, got %d", rec.Code)
	}
	if msg := decodeMessage(t, rec); msg != "Group already exists." {
		t.Fatalf("unexpected message: %q", msg)
	}

	rec = postJSON(t, router, "/auth/permissions", permissionRequest{Permission: "can publish"}, managerToken)
	if rec.Code != http.StatusCreated {
		t.Fatalf("want 201 creating permission, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = postJSON(t, router, "/auth/groups/editors/permissions", permissionRequest{Permission: "can publish"}, managerToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200 granting, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = postJSON(t, router, "/auth/groups/editors/members", memberRequest{UUID: "uuid-alice"}, managerToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200 adding member, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = postJSON(t, router, "/auth/groups/editors/members", memberRequest{UUID: "uuid-ghost"}, managerToken)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("want 404 for unknown member, got %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodDelete, "/auth/groups/editors", managerToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200 deleting group, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = doRequest(t, router, http.MethodDelete, "/auth/groups/editors", managerToken)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("want 404 for already-deleted group, got %d", rec.Code)
	}
}
