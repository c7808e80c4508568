package handlers

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/identserv/identityd/internal/services"
	"github.com/identserv/identityd/internal/storage"
	"github.com/identserv/identityd/internal/store"
	"github.com/identserv/identityd/internal/token"
)

const maxAvatarBytes = 2 << 20

// AvatarHandler stores and serves user avatars from object storage. The
// routes are only mounted when a storage backend is configured.
type AvatarHandler struct {
	identity *services.IdentityService
	tokens   *token.Service
	avatars  *storage.AvatarStore
}

func NewAvatarHandler(identity *services.IdentityService, tokens *token.Service, avatars *storage.AvatarStore) *AvatarHandler {
	return &AvatarHandler{identity: identity, tokens: tokens, avatars: avatars}
}

// AvatarRouter registers the avatar routes.
func AvatarRouter(r chi.Router, h *AvatarHandler) {
	r.With(RequireAuth(h.tokens)).Put("/user/me/avatar", h.Upload)
	r.Get("/user/{uuid}/avatar", h.Fetch)
}

// Upload replaces the authenticated user's avatar.
func (h *AvatarHandler) Upload(w http.ResponseWriter, r *http.Request) {
	claims, err := claimsFromContext(r.Context())
	if err != nil {
		writeMessage(w, http.StatusUnauthorized, msgMissingCredential)
		return
	}

	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxAvatarBytes+1))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Failed to read upload.")
		return
	}
	if len(data) == 0 {
		writeMessage(w, http.StatusBadRequest, "Avatar image is required.")
		return
	}
	if len(data) > maxAvatarBytes {
		writeMessage(w, http.StatusRequestEntityTooLarge, "Avatar image too large.")
		return
	}

	if err := h.avatars.Put(r.Context(), claims.PublicID, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		writeMessage(w, http.StatusInternalServerError, "Failed to store avatar.")
		return
	}
	writeMessage(w, http.StatusOK, "Avatar updated.")
}

// Fetch streams a user's avatar.
func (h *AvatarHandler) Fetch(w http.ResponseWriter, r *http.Request) {
	publicID := chi.URLParam(r, "uuid")

	// Soft-deleted users have no public profile, and no avatar either.
	if _, err := h.identity.GetByPublicID(r.Context(), publicID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeMessage(w, http.StatusNotFound, "User does not exist.")
			return
		}
		writeMessage(w, http.StatusInternalServerError, "Failed to load user.")
		return
	}

	object, err := h.avatars.Get(r.Context(), publicID)
	if err != nil {
		writeMessage(w, http.StatusNotFound, "Avatar does not exist.")
		return
	}
	defer object.Close()

	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, object); err != nil {
		return
	}
}
