// Package repository declares the storage contracts the services depend on.
//
// Implementations live in sub-packages (sqlite, redis). Every implementation
// translates "no such row/key" into apperror.NotFound and unique-key
// violations into apperror.Conflict, so services can branch on the apperror
// sentinels without knowing which database is underneath.
package repository

import (
	"context"
	"time"

	"github.com/sakif/blog-backend/internal/model"
)

// ListOptions pages a list query. A zero Limit means "no limit".
type ListOptions struct {
	Limit  int
	Offset int
}

// UserRepository stores accounts. Lookups only ever return active users.
type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByGitHubID(ctx context.Context, githubID int64) (*model.User, error)
	// GetUserByResetToken finds the user holding the given reset-token digest.
	// Expiry is checked by the caller.
	GetUserByResetToken(ctx context.Context, tokenHash string) (*model.User, error)
	UpdateUser(ctx context.Context, user *model.User) error
	ListUsers(ctx context.Context, opts ListOptions) ([]model.User, error)
}

// BlogRepository stores posts and their likes.
type BlogRepository interface {
	CreateBlog(ctx context.Context, blog *model.Blog) error
	GetBlog(ctx context.Context, id string) (*model.Blog, error)
	ListBlogs(ctx context.Context, opts ListOptions) ([]model.Blog, error)
	ListBlogsByUser(ctx context.Context, userID string, opts ListOptions) ([]model.Blog, error)
	UpdateBlog(ctx context.Context, blog *model.Blog) error
	DeleteBlog(ctx context.Context, id string) error
	// IncrementViews bumps the view counter by one.
	IncrementViews(ctx context.Context, id string) error
	// ToggleLike removes userID from the post's likes if present, otherwise
	// appends it, atomically with respect to other toggles on the same post.
	// It returns the post as it is after the toggle.
	ToggleLike(ctx context.Context, blogID, userID string) (*model.Blog, error)
}

// SessionStore stores server-side login sessions.
type SessionStore interface {
	CreateSession(ctx context.Context, session *model.Session) error
	GetSession(ctx context.Context, id string) (*model.Session, error)
	// DeleteSession is idempotent: deleting a missing session is not an error.
	DeleteSession(ctx context.Context, id string) error
	DeleteUserSessions(ctx context.Context, userID string) error
	// DeleteExpiredSessions removes sessions that expired at or before now
	// and reports how many were removed. Stores with native expiry may
	// always report zero.
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}
