// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes to the database
//
// Services accept plain Go values and return model types or apperror values.
// They know nothing about HTTP: the handler package maps apperror sentinels to
// status codes. They depend on repository interfaces, never on sqlite or
// redis directly, so tests run against in-memory fakes.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/xid"

	"github.com/sakif/blog-backend/internal/apperror"
	"github.com/sakif/blog-backend/internal/model"
	"github.com/sakif/blog-backend/internal/repository"
)

// Post constraints.
const (
	MinTitleLength = 3
	MaxTitleLength = 250
	MinBodyLength  = 10
	MaxTags        = 20
	MaxListLimit   = 100
)

// Client-facing messages for missing posts. They differ per operation.
const (
	msgNoPost       = "No post found"
	msgBlogNotFound = "Blog not found"
)

// BlogService handles business logic for blog posts.
type BlogService struct {
	repo   repository.BlogRepository
	logger *slog.Logger
	now    func() time.Time
}

// NewBlogService creates a BlogService.
func NewBlogService(repo repository.BlogRepository, logger *slog.Logger) *BlogService {
	return &BlogService{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// BlogInput holds the fields of a new post.
type BlogInput struct {
	Title       string
	Body        string
	Tags        []string
	IsPublished bool
}

// BlogPatch holds a partial update. Nil fields are left unchanged.
type BlogPatch struct {
	Title       *string
	Body        *string
	Tags        *[]string
	IsPublished *bool
}

// Create validates and saves a new post owned by ownerID.
func (s *BlogService) Create(ctx context.Context, ownerID string, in BlogInput) (*model.Blog, error) {
	title, err := validateTitle(in.Title)
	if err != nil {
		return nil, err
	}
	body, err := validateBody(in.Body)
	if err != nil {
		return nil, err
	}
	tags, err := normalizeTags(in.Tags)
	if err != nil {
		return nil, err
	}

	blog := &model.Blog{
		Title:       title,
		Body:        body,
		UserID:      ownerID,
		Tags:        tags,
		IsPublished: in.IsPublished,
	}
	if blog.IsPublished {
		now := s.now().UTC()
		blog.PublishedAt = &now
	}

	if err := s.repo.CreateBlog(ctx, blog); err != nil {
		s.logger.Error("failed to create blog",
			slog.String("userID", ownerID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating blog: %w", err)
	}

	s.logger.Info("blog created",
		slog.String("id", blog.ID),
		slog.String("userID", ownerID),
	)
	return blog, nil
}

// List returns every post, newest first. A zero limit returns all posts;
// larger limits are clamped to MaxListLimit.
func (s *BlogService) List(ctx context.Context, limit, offset int) ([]model.Blog, error) {
	blogs, err := s.repo.ListBlogs(ctx, clampList(limit, offset))
	if err != nil {
		s.logger.Error("failed to list blogs", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing blogs: %w", err)
	}
	return blogs, nil
}

// Get returns a post and counts the read as a view. A malformed or unknown
// id is a validation error ("No post found"), not a 404.
func (s *BlogService) Get(ctx context.Context, id string) (*model.Blog, error) {
	if !validID(id) {
		return nil, apperror.ValidationFailed("id", msgNoPost)
	}

	if err := s.repo.IncrementViews(ctx, id); err != nil {
		if isNotFound(err) {
			return nil, apperror.ValidationFailed("id", msgNoPost)
		}
		return nil, fmt.Errorf("counting view of blog %s: %w", id, err)
	}

	blog, err := s.repo.GetBlog(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, apperror.ValidationFailed("id", msgNoPost)
		}
		return nil, fmt.Errorf("getting blog %s: %w", id, err)
	}
	return blog, nil
}

// ListByUser returns the posts owned by userID. An empty result is not an
// error; the handler decides how to present it.
func (s *BlogService) ListByUser(ctx context.Context, userID string, limit, offset int) ([]model.Blog, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperror.ValidationFailed("userId", "user ID is required")
	}
	blogs, err := s.repo.ListBlogsByUser(ctx, userID, clampList(limit, offset))
	if err != nil {
		return nil, fmt.Errorf("listing blogs of user %s: %w", userID, err)
	}
	return blogs, nil
}

// Update applies a partial update. Only the owner may update a post.
func (s *BlogService) Update(ctx context.Context, callerID, id string, patch BlogPatch) (*model.Blog, error) {
	if !validID(id) {
		return nil, apperror.ValidationFailed("id", msgBlogNotFound)
	}

	blog, err := s.repo.GetBlog(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, apperror.ValidationFailed("id", msgBlogNotFound)
		}
		return nil, fmt.Errorf("getting blog %s: %w", id, err)
	}
	if blog.UserID != callerID {
		return nil, apperror.Forbidden("You are not allowed to update this blog")
	}

	if patch.Title != nil {
		if blog.Title, err = validateTitle(*patch.Title); err != nil {
			return nil, err
		}
	}
	if patch.Body != nil {
		if blog.Body, err = validateBody(*patch.Body); err != nil {
			return nil, err
		}
	}
	if patch.Tags != nil {
		if blog.Tags, err = normalizeTags(*patch.Tags); err != nil {
			return nil, err
		}
	}
	if patch.IsPublished != nil {
		switch {
		case *patch.IsPublished && !blog.IsPublished:
			now := s.now().UTC()
			blog.PublishedAt = &now
		case !*patch.IsPublished:
			blog.PublishedAt = nil
		}
		blog.IsPublished = *patch.IsPublished
	}

	if err := s.repo.UpdateBlog(ctx, blog); err != nil {
		if isNotFound(err) {
			return nil, apperror.ValidationFailed("id", msgBlogNotFound)
		}
		s.logger.Error("failed to update blog",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("updating blog: %w", err)
	}

	s.logger.Info("blog updated", slog.String("id", id), slog.String("userID", callerID))
	return blog, nil
}

// Delete removes a post. Only the owner may delete it.
func (s *BlogService) Delete(ctx context.Context, callerID, id string) error {
	if !validID(id) {
		return apperror.NotFoundMessage(msgBlogNotFound)
	}

	blog, err := s.repo.GetBlog(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return apperror.NotFoundMessage(msgBlogNotFound)
		}
		return fmt.Errorf("getting blog %s: %w", id, err)
	}
	if blog.UserID != callerID {
		return apperror.Forbidden("You are not allowed to delete this blog")
	}

	if err := s.repo.DeleteBlog(ctx, id); err != nil {
		if isNotFound(err) {
			return apperror.NotFoundMessage(msgBlogNotFound)
		}
		return fmt.Errorf("deleting blog: %w", err)
	}

	s.logger.Info("blog deleted", slog.String("id", id), slog.String("userID", callerID))
	return nil
}

// ToggleLike adds the caller's like, or removes it if already present.
func (s *BlogService) ToggleLike(ctx context.Context, userID, id string) (*model.Blog, error) {
	if !validID(id) {
		return nil, apperror.ValidationFailed("id", msgNoPost)
	}

	blog, err := s.repo.ToggleLike(ctx, id, userID)
	if err != nil {
		if isNotFound(err) {
			return nil, apperror.ValidationFailed("id", msgNoPost)
		}
		return nil, fmt.Errorf("toggling like on blog %s: %w", id, err)
	}

	s.logger.Debug("blog like toggled",
		slog.String("id", id),
		slog.String("userID", userID),
		slog.Bool("liked", blog.LikedBy(userID)),
	)
	return blog, nil
}

func validateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	n := utf8.RuneCountInString(title)
	switch {
	case n == 0:
		return "", apperror.ValidationFailed("title", "A blog should have a title")
	case n < MinTitleLength:
		return "", apperror.ValidationFailed("title",
			fmt.Sprintf("A blog title must have at least %d characters", MinTitleLength))
	case n > MaxTitleLength:
		return "", apperror.ValidationFailed("title",
			fmt.Sprintf("A blog title must have less than or equal to %d characters", MaxTitleLength))
	}
	return title, nil
}

func validateBody(body string) (string, error) {
	body = strings.TrimSpace(body)
	n := utf8.RuneCountInString(body)
	switch {
	case n == 0:
		return "", apperror.ValidationFailed("body", "A blog should have a body")
	case n < MinBodyLength:
		return "", apperror.ValidationFailed("body",
			fmt.Sprintf("A blog body must have at least %d characters", MinBodyLength))
	}
	return body, nil
}

// normalizeTags trims tags and drops empty ones and duplicates, keeping the
// first occurrence's position.
func normalizeTags(tags []string) ([]string, error) {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	if len(out) > MaxTags {
		return nil, apperror.ValidationFailed("tags", fmt.Sprintf("A blog can have at most %d tags", MaxTags))
	}
	return out, nil
}

// validID reports whether id is a well-formed entity id.
func validID(id string) bool {
	_, err := xid.FromString(id)
	return err == nil
}

func clampList(limit, offset int) repository.ListOptions {
	if limit < 0 {
		limit = 0
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return repository.ListOptions{Limit: limit, Offset: offset}
}
