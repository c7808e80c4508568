package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/identserv/identityd/internal/events"
	"github.com/identserv/identityd/internal/services"
	"github.com/identserv/identityd/internal/store"
	"github.com/identserv/identityd/internal/token"
	"github.com/identserv/identityd/types"
)

const (
	defaultPage    = 1
	defaultPerPage = 20
	maxPerPage     = 100
)

// AuthHandler provides the registration, login, and profile endpoints.
type AuthHandler struct {
	identity   *services.IdentityService
	tokens     *token.Service
	audit      *events.Publisher
	adminGroup string
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(identity *services.IdentityService, tokens *token.Service, audit *events.Publisher, adminGroup string) *AuthHandler {
	return &AuthHandler{
		identity:   identity,
		tokens:     tokens,
		audit:      audit,
		adminGroup: adminGroup,
	}
}

// AuthRouter registers the auth routes on the given router.
func AuthRouter(r chi.Router, h *AuthHandler) {
	r.Post("/login", h.Login)
	r.Post("/logout", h.Logout)
	r.Post("/user", h.CreateUser)
	r.With(RequireAuth(h.tokens)).Get("/user/me", h.Me)
	r.With(RequirePermission(h.tokens, types.PermViewUsers)).Get("/users", h.ListUsers)
	r.Route("/user/{uuid}", func(r chi.Router) {
		r.Get("/", h.ViewUser)
		r.With(RequireAuth(h.tokens)).Put("/", h.UpdateUser)
		r.With(RequirePermission(h.tokens, types.PermDeleteUsers)).Delete("/", h.DeleteUser)
	})
}

// Login verifies credentials and sets the jwt cookie.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.FormValue("username"))
	plaintext := strings.TrimSpace(r.FormValue("password"))

	var missing []string
	if username == "" {
		missing = append(missing, "username")
	}
	if plaintext == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		writeMessage(w, http.StatusBadRequest, missingFields(missing...))
		return
	}

	user, err := h.identity.Authenticate(r.Context(), username, plaintext)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeMessage(w, http.StatusNotFound, "User does not exist.")
		case errors.Is(err, services.ErrInvalidCredentials):
			h.audit.Emit(r.Context(), events.KindLoginFailed, username, nil)
			writeMessage(w, http.StatusUnauthorized, "Wrong username or password.")
		default:
			writeMessage(w, http.StatusInternalServerError, "Failed to authenticate.")
		}
		return
	}

	permissions, err := h.identity.EffectivePermissions(r.Context(), user)
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "Failed to authenticate.")
		return
	}
	groups, err := h.identity.GroupNames(r.Context(), user)
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "Failed to authenticate.")
		return
	}

	signed, err := h.tokens.Issue(user, permissions, groups)
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "Failed to create token.")
		return
	}

	http.SetCookie(w, h.sessionCookie(signed, h.tokens.TTL()))
	h.audit.Emit(r.Context(), events.KindUserLogin, user.PublicID, nil)
	writeMessage(w, http.StatusOK, "login successful.")
}

// Logout clears the jwt cookie. Tokens themselves stay valid until expiry —
// the service keeps no session state to invalidate.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, h.sessionCookie("", time.Second))
	writeMessage(w, http.StatusOK, "You have already logged out.")
}

// CreateUser registers a new account.
func (h *AuthHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.FormValue("username"))
	email := strings.TrimSpace(r.FormValue("email"))
	plaintext := strings.TrimSpace(r.FormValue("password"))

	var missing []string
	if username == "" {
		missing = append(missing, "username")
	}
	if plaintext == "" {
		missing = append(missing, "password")
	}
	if email == "" {
		missing = append(missing, "email")
	}
	if len(missing) > 0 {
		writeMessage(w, http.StatusBadRequest, missingFields(missing...))
		return
	}

	user, err := h.identity.CreateUser(r.Context(), uuid.NewString(), username, email, plaintext)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmailTaken):
			writeMessage(w, http.StatusConflict, "Email has been registered.")
		case errors.Is(err, store.ErrConflict):
			writeMessage(w, http.StatusConflict, "Username already exists.")
		case errors.Is(err, store.ErrValidation):
			writeMessage(w, http.StatusBadRequest, "Invalid registration data.")
		default:
			writeMessage(w, http.StatusInternalServerError, "Failed to create user.")
		}
		return
	}

	h.audit.Emit(r.Context(), events.KindUserCreated, user.PublicID, map[string]string{"username": user.Username})
	writeMessage(w, http.StatusCreated, "Created a new user.")
}

// Me returns the authenticated user's own profile, with the group and
// permission snapshot frozen into the presented token.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, err := claimsFromContext(r.Context())
	if err != nil {
		writeMessage(w, http.StatusUnauthorized, msgMissingCredential)
		return
	}

	user, err := h.identity.GetByID(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeMessage(w, http.StatusNotFound, "User does not exist.")
			return
		}
		writeMessage(w, http.StatusInternalServerError, "Failed to load user.")
		return
	}

	writeJSON(w, http.StatusOK, ProfileResponse{
		UUID:        user.PublicID,
		Username:    user.Username,
		Email:       user.Email,
		Nickname:    user.Nickname,
		Groups:      claims.Groups,
		Permissions: claims.Permissions,
		CreatedOn:   user.CreatedAt,
	})
}

// ViewUser returns another user's public profile by public id.
func (h *AuthHandler) ViewUser(w http.ResponseWriter, r *http.Request) {
	publicID := chi.URLParam(r, "uuid")

	user, err := h.identity.GetByPublicID(r.Context(), publicID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeMessage(w, http.StatusNotFound, "User does not exist.")
			return
		}
		writeMessage(w, http.StatusInternalServerError, "Failed to load user.")
		return
	}

	writeJSON(w, http.StatusOK, ProfileResponse{
		UUID:      user.PublicID,
		Username:  user.Username,
		Email:     user.Email,
		Nickname:  user.Nickname,
		CreatedOn: user.CreatedAt,
	})
}

// ListUsers returns one page of live users.
func (h *AuthHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	page, perPage, err := parsePagination(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.identity.List(r.Context(), page, perPage, maxPerPage)
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "Failed to list users.")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// UpdateUser changes a user's nickname. Users may only modify themselves.
func (h *AuthHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	claims, err := claimsFromContext(r.Context())
	if err != nil {
		writeMessage(w, http.StatusUnauthorized, msgMissingCredential)
		return
	}

	if chi.URLParam(r, "uuid") != claims.PublicID {
		writeMessage(w, http.StatusUnauthorized, "Can only modify your own information.")
		return
	}

	user, err := h.identity.GetByID(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeMessage(w, http.StatusNotFound, "User does not exist.")
			return
		}
		writeMessage(w, http.StatusInternalServerError, "Failed to load user.")
		return
	}

	nickname := strings.TrimSpace(r.FormValue("nickname"))
	if nickname == "" {
		writeMessage(w, http.StatusBadRequest, missingFields("nickname"))
		return
	}

	if _, err := h.identity.UpdateNickname(r.Context(), user, nickname); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeMessage(w, http.StatusNotFound, "User does not exist.")
			return
		}
		writeMessage(w, http.StatusInternalServerError, "Failed to update user.")
		return
	}

	h.audit.Emit(r.Context(), events.KindUserUpdated, user.PublicID, nil)
	writeMessage(w, http.StatusOK, "Data update completed.")
}

// DeleteUser soft-deletes a user. Members of the administrator group are
// protected; the check lives here, against the target's current group
// memberships, not inside the identity graph.
func (h *AuthHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	publicID := chi.URLParam(r, "uuid")

	user, err := h.identity.GetByPublicID(r.Context(), publicID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeMessage(w, http.StatusNotFound, "User does not exist.")
			return
		}
		writeMessage(w, http.StatusInternalServerError, "Failed to load user.")
		return
	}

	groups, err := h.identity.GroupNames(r.Context(), user)
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "Failed to load user.")
		return
	}
	for _, name := range groups {
		if name == h.adminGroup {
			writeMessage(w, http.StatusForbidden, "Cannot delete an administrator.")
			return
		}
	}

	if err := h.identity.Delete(r.Context(), user); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeMessage(w, http.StatusNotFound, "User does not exist.")
			return
		}
		writeMessage(w, http.StatusInternalServerError, "Failed to delete user.")
		return
	}

	h.audit.Emit(r.Context(), events.KindUserDeleted, user.PublicID, nil)
	writeMessage(w, http.StatusOK, "User has been deleted.")
}

func (h *AuthHandler) sessionCookie(value string, maxAge time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     tokenCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// ProfileResponse is the user profile payload.
type ProfileResponse struct {
	UUID        string    `json:"uuid"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	Nickname    string    `json:"nickname"`
	Groups      []string  `json:"groups,omitempty"`
	Permissions []string  `json:"permissions,omitempty"`
	CreatedOn   time.Time `json:"created_on"`
}
