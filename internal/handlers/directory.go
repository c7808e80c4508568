package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/identserv/identityd/internal/events"
	"github.com/identserv/identityd/internal/services"
	"github.com/identserv/identityd/internal/store"
	"github.com/identserv/identityd/internal/token"
	"github.com/identserv/identityd/types"
)

// DirectoryHandler administers groups, permissions, memberships, and grants.
// Every route requires the group-management permission.
type DirectoryHandler struct {
	directory *services.DirectoryService
	tokens    *token.Service
	audit     *events.Publisher
}

func NewDirectoryHandler(directory *services.DirectoryService, tokens *token.Service, audit *events.Publisher) *DirectoryHandler {
	return &DirectoryHandler{directory: directory, tokens: tokens, audit: audit}
}

// DirectoryRouter registers group and permission administration routes.
func DirectoryRouter(r chi.Router, h *DirectoryHandler) {
	r.Use(RequirePermission(h.tokens, types.PermManageGroups))

	r.Get("/groups", h.ListGroups)
	r.Post("/groups", h.CreateGroup)
	r.Delete("/groups/{name}", h.DeleteGroup)
	r.Post("/groups/{name}/members", h.AddMember)
	r.Delete("/groups/{name}/members/{uuid}", h.RemoveMember)
	r.Post("/groups/{name}/permissions", h.Grant)
	r.Delete("/groups/{name}/permissions", h.Revoke)

	r.Get("/permissions", h.ListPermissions)
	r.Post("/permissions", h.CreatePermission)
	r.Delete("/permissions", h.DeletePermission)
}

type groupRequest struct {
	Name string `json:"name"`
}

type permissionRequest struct {
	Permission string `json:"permission"`
}

type memberRequest struct {
	UUID string `json:"uuid"`
}

func (h *DirectoryHandler) ListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.directory.ListGroups(r.Context())
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "Failed to list groups.")
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

func (h *DirectoryHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req groupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request.")
		return
	}

	group, err := h.directory.CreateGroup(r.Context(), strings.TrimSpace(req.Name))
	if err != nil {
		writeDirectoryError(w, err, "Group already exists.", "Failed to create group.")
		return
	}
	writeJSON(w, http.StatusCreated, group)
}

func (h *DirectoryHandler) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	if err := h.directory.DeleteGroup(r.Context(), chi.URLParam(r, "name")); err != nil {
		writeDirectoryError(w, err, "", "Failed to delete group.")
		return
	}
	writeMessage(w, http.StatusOK, "Group has been deleted.")
}

func (h *DirectoryHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	var req memberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UUID == "" {
		writeMessage(w, http.StatusBadRequest, "Invalid request.")
		return
	}

	name := chi.URLParam(r, "name")
	if err := h.directory.AddMember(r.Context(), name, req.UUID); err != nil {
		writeDirectoryError(w, err, "", "Failed to add member.")
		return
	}
	h.audit.Emit(r.Context(), events.KindMemberAdded, req.UUID, map[string]string{"group": name})
	writeMessage(w, http.StatusOK, "Member added.")
}

func (h *DirectoryHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	uuid := chi.URLParam(r, "uuid")
	if err := h.directory.RemoveMember(r.Context(), name, uuid); err != nil {
		writeDirectoryError(w, err, "", "Failed to remove member.")
		return
	}
	h.audit.Emit(r.Context(), events.KindMemberRemoved, uuid, map[string]string{"group": name})
	writeMessage(w, http.StatusOK, "Member removed.")
}

func (h *DirectoryHandler) Grant(w http.ResponseWriter, r *http.Request) {
	var req permissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Permission == "" {
		writeMessage(w, http.StatusBadRequest, "Invalid request.")
		return
	}

	name := chi.URLParam(r, "name")
	if err := h.directory.Grant(r.Context(), name, req.Permission); err != nil {
		writeDirectoryError(w, err, "", "Failed to grant permission.")
		return
	}
	h.audit.Emit(r.Context(), events.KindGrantAdded, name, map[string]string{"permission": req.Permission})
	writeMessage(w, http.StatusOK, "Permission granted.")
}

func (h *DirectoryHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	var req permissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Permission == "" {
		writeMessage(w, http.StatusBadRequest, "Invalid request.")
		return
	}

	name := chi.URLParam(r, "name")
	if err := h.directory.Revoke(r.Context(), name, req.Permission); err != nil {
		writeDirectoryError(w, err, "", "Failed to revoke permission.")
		return
	}
	h.audit.Emit(r.Context(), events.KindGrantRevoked, name, map[string]string{"permission": req.Permission})
	writeMessage(w, http.StatusOK, "Permission revoked.")
}

func (h *DirectoryHandler) ListPermissions(w http.ResponseWriter, r *http.Request) {
	permissions, err := h.directory.ListPermissions(r.Context())
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "Failed to list permissions.")
		return
	}
	writeJSON(w, http.StatusOK, permissions)
}

func (h *DirectoryHandler) CreatePermission(w http.ResponseWriter, r *http.Request) {
	var req permissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request.")
		return
	}

	perm, err := h.directory.CreatePermission(r.Context(), strings.TrimSpace(req.Permission))
	if err != nil {
		writeDirectoryError(w, err, "Permission already exists.", "Failed to create permission.")
		return
	}
	writeJSON(w, http.StatusCreated, perm)
}

func (h *DirectoryHandler) DeletePermission(w http.ResponseWriter, r *http.Request) {
	var req permissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Permission == "" {
		writeMessage(w, http.StatusBadRequest, "Invalid request.")
		return
	}

	if err := h.directory.DeletePermission(r.Context(), req.Permission); err != nil {
		writeDirectoryError(w, err, "", "Failed to delete permission.")
		return
	}
	writeMessage(w, http.StatusOK, "Permission has been deleted.")
}

func writeDirectoryError(w http.ResponseWriter, err error, conflictMsg, fallbackMsg string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeMessage(w, http.StatusNotFound, "Does not exist.")
	case errors.Is(err, store.ErrConflict) && conflictMsg != "":
		writeMessage(w, http.StatusConflict, conflictMsg)
	case errors.Is(err, store.ErrValidation):
		writeMessage(w, http.StatusBadRequest, "Invalid request.")
	default:
		writeMessage(w, http.StatusInternalServerError, fallbackMsg)
	}
}
