package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/blog-backend/internal/apperror"
	"github.com/sakif/blog-backend/internal/auth"
	"github.com/sakif/blog-backend/internal/model"
	"github.com/sakif/blog-backend/internal/service"
)

// UserHandler serves the admin-only user endpoints. Routes are mounted
// behind RequireAuth and RestrictTo(AllowAdmin).
type UserHandler struct {
	svc      *service.AuthService
	validate *requestValidator
	logger   *slog.Logger
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(svc *service.AuthService, logger *slog.Logger) *UserHandler {
	return &UserHandler{svc: svc, validate: newRequestValidator(), logger: logger}
}

// HandleList returns active users.
//
// HTTP: GET /api/v1/users?limit=&offset=
func (h *UserHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pageParams(r)
	if err != nil {
		writeError(w, err)
		return
	}

	users, err := h.svc.ListUsers(r.Context(), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	if users == nil {
		users = []model.User{}
	}
	writeJSON(w, http.StatusOK, DataResponse{Data: users})
}

type setRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=user admin"`
}

// HandleSetRole changes a user's role.
//
// HTTP: PATCH /api/v1/users/{id}/role
func (h *UserHandler) HandleSetRole(w http.ResponseWriter, r *http.Request) {
	adminID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("Unauthorized: Please log in"))
		return
	}

	var req setRoleRequest
	if err := h.validate.decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.svc.SetRole(r.Context(), adminID, chi.URLParam(r, "id"), model.Role(req.Role))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DataResponse{Data: user})
}

// HandleDeactivate deactivates a user and revokes their sessions.
//
// HTTP: DELETE /api/v1/users/{id}
func (h *UserHandler) HandleDeactivate(w http.ResponseWriter, r *http.Request) {
	adminID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("Unauthorized: Please log in"))
		return
	}

	if err := h.svc.Deactivate(r.Context(), adminID, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "User deactivated"})
}
