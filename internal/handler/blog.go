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

// BlogHandler serves /api/v1/blogs. Every route sits behind RequireAuth, so
// the caller is always available from the request context.
//
// HANDLER RESPONSIBILITIES:
//   - decode and shape-check the request
//   - call BlogService
//   - pick the response envelope ({data}, {status, data} or {message})
//
// Title/body rules live in the service so every caller gets the same
// messages.
type BlogHandler struct {
	svc      *service.BlogService
	validate *requestValidator
	logger   *slog.Logger
}

// NewBlogHandler creates a BlogHandler.
func NewBlogHandler(svc *service.BlogService, logger *slog.Logger) *BlogHandler {
	return &BlogHandler{svc: svc, validate: newRequestValidator(), logger: logger}
}

type createBlogRequest struct {
	Title       string   `json:"title"`
	Body        string   `json:"body"`
	Tags        []string `json:"tags" validate:"omitempty,dive,max=50"`
	IsPublished bool     `json:"isPublished"`
}

type updateBlogRequest struct {
	Title       *string   `json:"title"`
	Body        *string   `json:"body"`
	Tags        *[]string `json:"tags" validate:"omitempty,dive,max=50"`
	IsPublished *bool     `json:"isPublished"`
}

// HandleList returns all posts.
//
// HTTP: GET /api/v1/blogs?limit=&offset=
func (h *BlogHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pageParams(r)
	if err != nil {
		writeError(w, err)
		return
	}

	blogs, err := h.svc.List(r.Context(), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	if blogs == nil {
		blogs = []model.Blog{}
	}
	writeJSON(w, http.StatusOK, DataResponse{Data: blogs})
}

// HandleCreate creates a post owned by the caller.
//
// HTTP: POST /api/v1/blogs
func (h *BlogHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("Unauthorized: Please log in"))
		return
	}

	var req createBlogRequest
	if err := h.validate.decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	blog, err := h.svc.Create(r.Context(), userID, service.BlogInput{
		Title:       req.Title,
		Body:        req.Body,
		Tags:        req.Tags,
		IsPublished: req.IsPublished,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DataResponse{Status: "success", Data: blog})
}

// HandleGet returns one post and counts the view.
//
// HTTP: GET /api/v1/blogs/{id}
func (h *BlogHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	blog, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DataResponse{Data: blog})
}

// HandleUpdate applies a partial update to a post the caller owns.
//
// HTTP: PATCH /api/v1/blogs/{id}
func (h *BlogHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("Unauthorized: Please log in"))
		return
	}

	var req updateBlogRequest
	if err := h.validate.decodeStrict(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	blog, err := h.svc.Update(r.Context(), userID, chi.URLParam(r, "id"), service.BlogPatch{
		Title:       req.Title,
		Body:        req.Body,
		Tags:        req.Tags,
		IsPublished: req.IsPublished,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DataResponse{Data: blog})
}

// HandleDelete removes a post the caller owns.
//
// HTTP: DELETE /api/v1/blogs/{id}
func (h *BlogHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("Unauthorized: Please log in"))
		return
	}

	if err := h.svc.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Blog deleted successfully"})
}

// HandleToggleLike likes the post, or unlikes it if the caller already did.
//
// HTTP: POST /api/v1/blogs/{id}/like
func (h *BlogHandler) HandleToggleLike(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("Unauthorized: Please log in"))
		return
	}

	blog, err := h.svc.ToggleLike(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DataResponse{Data: blog})
}

// HandleListByUser returns the posts of one user, or 204 No Content when
// the user has none.
//
// HTTP: GET /api/v1/blogs/user/{userId}
func (h *BlogHandler) HandleListByUser(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pageParams(r)
	if err != nil {
		writeError(w, err)
		return
	}

	blogs, err := h.svc.ListByUser(r.Context(), chi.URLParam(r, "userId"), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	if len(blogs) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, DataResponse{Data: blogs})
}
