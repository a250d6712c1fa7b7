package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/blog-backend/internal/apperror"
	"github.com/sakif/blog-backend/internal/model"
	"github.com/sakif/blog-backend/internal/repository"
)

func newTestBlogService() (*BlogService, *fakeBlogRepo) {
	repo := newFakeBlogRepo()
	return NewBlogService(repo, discardLogger()), repo
}

func mustCreate(t *testing.T, svc *BlogService, owner, title string) *model.Blog {
	t.Helper()
	b, err := svc.Create(context.Background(), owner, BlogInput{Title: title, Body: "a body of ten or more chars"})
	require.NoError(t, err)
	return b
}

func ptr[T any](v T) *T { return &v }

func manyTags(n int) []string {
	tags := make([]string, n)
	for i := range tags {
		tags[i] = fmt.Sprintf("tag-%d", i)
	}
	return tags
}

// =========================================================================
// CREATE
// =========================================================================

func TestBlogCreate(t *testing.T) {
	svc, _ := newTestBlogService()

	b, err := svc.Create(context.Background(), "owner-1", BlogInput{
		Title: "  Hello Go  ",
		Body:  "  a body of ten or more chars ",
		Tags:  []string{"go", " go ", "", "web"},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, b.ID)
	assert.Equal(t, "Hello Go", b.Title)
	assert.Equal(t, "a body of ten or more chars", b.Body)
	assert.Equal(t, "owner-1", b.UserID)
	assert.Equal(t, []string{"go", "web"}, b.Tags)
	assert.Empty(t, b.Likes)
	assert.Nil(t, b.PublishedAt)
}

func TestBlogCreate_PublishedGetsTimestamp(t *testing.T) {
	svc, _ := newTestBlogService()

	b, err := svc.Create(context.Background(), "o", BlogInput{Title: "Title", Body: "0123456789", IsPublished: true})
	require.NoError(t, err)
	assert.NotNil(t, b.PublishedAt)
}

func TestBlogCreate_Validation(t *testing.T) {
	svc, _ := newTestBlogService()

	tests := []struct {
		name      string
		in        BlogInput
		wantField string
		wantMsg   string
	}{
		{"empty title", BlogInput{Title: "   ", Body: "0123456789"}, "title", "A blog should have a title"},
		{"short title", BlogInput{Title: "ab", Body: "0123456789"}, "title", "A blog title must have at least 3 characters"},
		{"long title", BlogInput{Title: strings.Repeat("t", 251), Body: "0123456789"}, "title", "A blog title must have less than or equal to 250 characters"},
		{"empty body", BlogInput{Title: "Title", Body: ""}, "body", "A blog should have a body"},
		{"short body", BlogInput{Title: "Title", Body: "  short  "}, "body", "A blog body must have at least 10 characters"},
		{"too many tags", BlogInput{Title: "Title", Body: "0123456789", Tags: manyTags(MaxTags + 1)}, "tags", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), "o", tt.in)

			var appErr *apperror.AppError
			require.ErrorAs(t, err, &appErr)
			assert.ErrorIs(t, err, apperror.ErrValidation)
			assert.Equal(t, tt.wantField, appErr.Field)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, appErr.Message)
			}
		})
	}
}

// =========================================================================
// READ
// =========================================================================

func TestBlogGet_CountsView(t *testing.T) {
	svc, repo := newTestBlogService()
	b := mustCreate(t, svc, "o", "Viewed")

	got, err := svc.Get(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Views)
	assert.Equal(t, []string{b.ID}, repo.viewed)
}

func TestBlogGet_MalformedOrMissing(t *testing.T) {
	svc, _ := newTestBlogService()

	for _, id := range []string{"", "not-an-id", newID()} {
		_, err := svc.Get(context.Background(), id)
		assert.ErrorIs(t, err, apperror.ErrValidation, "id %q", id)
		assert.Equal(t, "No post found", err.Error())
	}
}

func TestBlogListByUser(t *testing.T) {
	svc, _ := newTestBlogService()
	mustCreate(t, svc, "alice", "Alice 1")
	mustCreate(t, svc, "alice", "Alice 2")
	mustCreate(t, svc, "bob", "Bob 1")

	got, err := svc.ListByUser(context.Background(), "alice", 0, 0)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	none, err := svc.ListByUser(context.Background(), "carol", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = svc.ListByUser(context.Background(), " ", 0, 0)
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestBlogList(t *testing.T) {
	svc, _ := newTestBlogService()
	mustCreate(t, svc, "a", "First")
	mustCreate(t, svc, "b", "Second")

	got, err := svc.List(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestClampList(t *testing.T) {
	assert.Equal(t, 0, clampList(-5, 0).Limit)
	assert.Equal(t, MaxListLimit, clampList(1000, 0).Limit)
	assert.Equal(t, 0, clampList(10, -3).Offset)
	assert.Equal(t, 10, clampList(10, 5).Limit)
}

// =========================================================================
// UPDATE
// =========================================================================

func TestBlogUpdate_Owner(t *testing.T) {
	svc, _ := newTestBlogService()
	b := mustCreate(t, svc, "owner", "Before")

	got, err := svc.Update(context.Background(), "owner", b.ID, BlogPatch{
		Title:       ptr("After"),
		IsPublished: ptr(true),
	})
	require.NoError(t, err)
	assert.Equal(t, "After", got.Title)
	assert.Equal(t, b.Body, got.Body, "unset fields stay unchanged")
	assert.True(t, got.IsPublished)
	require.NotNil(t, got.PublishedAt)

	got, err = svc.Update(context.Background(), "owner", b.ID, BlogPatch{IsPublished: ptr(false)})
	require.NoError(t, err)
	assert.False(t, got.IsPublished)
	assert.Nil(t, got.PublishedAt)
}

func TestBlogUpdate_NonOwnerForbidden(t *testing.T) {
	svc, repo := newTestBlogService()
	b := mustCreate(t, svc, "owner", "Mine")

	_, err := svc.Update(context.Background(), "intruder", b.ID, BlogPatch{Title: ptr("Hijacked")})
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	stored, _ := repo.GetBlog(context.Background(), b.ID)
	assert.Equal(t, "Mine", stored.Title)
}

func TestBlogUpdate_MissingAndInvalid(t *testing.T) {
	svc, _ := newTestBlogService()
	b := mustCreate(t, svc, "owner", "Mine")

	_, err := svc.Update(context.Background(), "owner", newID(), BlogPatch{Title: ptr("x")})
	assert.ErrorIs(t, err, apperror.ErrValidation)
	assert.Equal(t, "Blog not found", err.Error())

	_, err = svc.Update(context.Background(), "owner", b.ID, BlogPatch{Body: ptr("short")})
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

// =========================================================================
// DELETE
// =========================================================================

func TestBlogDelete(t *testing.T) {
	svc, _ := newTestBlogService()
	ctx := context.Background()
	b := mustCreate(t, svc, "owner", "Doomed")

	err := svc.Delete(ctx, "intruder", b.ID)
	assert.ErrorIs(t, err, apperror.ErrForbidden)
	assert.Equal(t, "You are not allowed to delete this blog", err.Error())
	_, err = svc.Get(ctx, b.ID)
	require.NoError(t, err, "post must survive a forbidden delete")

	require.NoError(t, svc.Delete(ctx, "owner", b.ID))
	_, err = svc.Get(ctx, b.ID)
	assert.ErrorIs(t, err, apperror.ErrValidation)

	assert.ErrorIs(t, svc.Delete(ctx, "owner", b.ID), apperror.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, "owner", "garbage"), apperror.ErrNotFound)
}

// =========================================================================
// LIKE
// =========================================================================

func TestBlogToggleLike(t *testing.T) {
	svc, _ := newTestBlogService()
	ctx := context.Background()
	b := mustCreate(t, svc, "owner", "Likeable")

	got, err := svc.ToggleLike(ctx, "fan", b.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"fan"}, got.Likes)

	got, err = svc.ToggleLike(ctx, "fan", b.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Likes)

	_, err = svc.ToggleLike(ctx, "fan", "bad")
	assert.ErrorIs(t, err, apperror.ErrValidation)
	_, err = svc.ToggleLike(ctx, "fan", newID())
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestBlogService_RepositoryErrorsAreWrapped(t *testing.T) {
	svc, _ := newTestBlogService()
	boom := errors.New("disk full")
	svc.repo = failingBlogRepo{fakeBlogRepo: newFakeBlogRepo(), err: boom}

	_, err := svc.List(context.Background(), 0, 0)
	assert.ErrorIs(t, err, boom)
	assert.False(t, errors.Is(err, apperror.ErrNotFound))
}

type failingBlogRepo struct {
	*fakeBlogRepo
	err error
}

func (f failingBlogRepo) ListBlogs(context.Context, repository.ListOptions) ([]model.Blog, error) {
	return nil, f.err
}
