package service

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/sakif/blog-backend/internal/apperror"
	"github.com/sakif/blog-backend/internal/mail"
	"github.com/sakif/blog-backend/internal/model"
	"github.com/sakif/blog-backend/internal/repository"
)

// =========================================================================
// FAKES
// =========================================================================
//
// In-memory implementations of the repository interfaces. They store copies
// so a test can't accidentally mutate "database" state through a pointer it
// got back, which is how the real stores behave too.

type fakeUserRepo struct {
	mu     sync.Mutex
	users  map[string]*model.User
	nextID int
	// set to a non-nil error to simulate a database failure
	createErr error
	updateErr error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*model.User)}
}

func (f *fakeUserRepo) CreateUser(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	for _, existing := range f.users {
		if existing.Email == u.Email {
			return apperror.ConflictMessage("email", "An account with this email already exists")
		}
	}
	f.nextID++
	u.ID = fmt.Sprintf("user-%d", f.nextID)
	u.Active = true
	if u.Role == "" {
		u.Role = model.RoleUser
	}
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	c := *u
	f.users[u.ID] = &c
	return nil
}

func (f *fakeUserRepo) find(match func(*model.User) bool) (*model.User, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Active && match(u) {
			c := *u
			return &c, true
		}
	}
	return nil, false
}

func (f *fakeUserRepo) GetUserByID(_ context.Context, id string) (*model.User, error) {
	if u, ok := f.find(func(u *model.User) bool { return u.ID == id }); ok {
		return u, nil
	}
	return nil, apperror.NotFound("user", id)
}

func (f *fakeUserRepo) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	if u, ok := f.find(func(u *model.User) bool { return u.Email == email }); ok {
		return u, nil
	}
	return nil, apperror.NotFoundMessage("There is no user with that email address")
}

func (f *fakeUserRepo) GetUserByGitHubID(_ context.Context, id int64) (*model.User, error) {
	if u, ok := f.find(func(u *model.User) bool { return u.GitHubID != nil && *u.GitHubID == id }); ok {
		return u, nil
	}
	return nil, apperror.NotFound("user", fmt.Sprint(id))
}

func (f *fakeUserRepo) GetUserByResetToken(_ context.Context, hash string) (*model.User, error) {
	if hash != "" {
		if u, ok := f.find(func(u *model.User) bool { return u.PasswordResetToken == hash }); ok {
			return u, nil
		}
	}
	return nil, apperror.NotFoundMessage("Token is invalid or has expired")
}

func (f *fakeUserRepo) UpdateUser(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	if _, ok := f.users[u.ID]; !ok {
		return apperror.NotFound("user", u.ID)
	}
	u.UpdatedAt = time.Now()
	c := *u
	f.users[u.ID] = &c
	return nil
}

func (f *fakeUserRepo) ListUsers(_ context.Context, _ repository.ListOptions) ([]model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.User{}
	for _, u := range f.users {
		if u.Active {
			out = append(out, *u)
		}
	}
	slices.SortFunc(out, func(a, b model.User) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

// stored returns the raw stored record, including inactive users.
func (f *fakeUserRepo) stored(id string) *model.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := *f.users[id]
	return &c
}

type fakeSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{sessions: make(map[string]*model.Session)}
}

func (f *fakeSessionStore) CreateSession(_ context.Context, s *model.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[s.ID]; ok {
		return apperror.Conflict("session", s.ID)
	}
	c := *s
	f.sessions[s.ID] = &c
	return nil
}

func (f *fakeSessionStore) GetSession(_ context.Context, id string) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, apperror.NotFound("session", id)
	}
	c := *s
	return &c, nil
}

func (f *fakeSessionStore) DeleteSession(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, id)
	return nil
}

func (f *fakeSessionStore) DeleteUserSessions(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, s := range f.sessions {
		if s.UserID == userID {
			delete(f.sessions, id)
		}
	}
	return nil
}

func (f *fakeSessionStore) DeleteExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, s := range f.sessions {
		if s.Expired(now) {
			delete(f.sessions, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeSessionStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
}

func (f *fakeMailer) Send(_ context.Context, msg mail.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

type fakeBlogRepo struct {
	mu     sync.Mutex
	blogs  map[string]*model.Blog
	viewed []string
}

func newFakeBlogRepo() *fakeBlogRepo {
	return &fakeBlogRepo{blogs: make(map[string]*model.Blog)}
}

func copyBlog(b *model.Blog) *model.Blog {
	c := *b
	c.Likes = slices.Clone(b.Likes)
	c.Tags = slices.Clone(b.Tags)
	return &c
}

func (f *fakeBlogRepo) CreateBlog(_ context.Context, b *model.Blog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b.ID = newID()
	b.Likes = []string{}
	b.CreatedAt = time.Now()
	b.UpdatedAt = b.CreatedAt
	f.blogs[b.ID] = copyBlog(b)
	return nil
}

func (f *fakeBlogRepo) GetBlog(_ context.Context, id string) (*model.Blog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.blogs[id]
	if !ok {
		return nil, apperror.NotFound("blog", id)
	}
	return copyBlog(b), nil
}

func (f *fakeBlogRepo) list(match func(*model.Blog) bool) []model.Blog {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Blog{}
	for _, b := range f.blogs {
		if match(b) {
			out = append(out, *copyBlog(b))
		}
	}
	return out
}

func (f *fakeBlogRepo) ListBlogs(_ context.Context, _ repository.ListOptions) ([]model.Blog, error) {
	return f.list(func(*model.Blog) bool { return true }), nil
}

func (f *fakeBlogRepo) ListBlogsByUser(_ context.Context, userID string, _ repository.ListOptions) ([]model.Blog, error) {
	return f.list(func(b *model.Blog) bool { return b.UserID == userID }), nil
}

func (f *fakeBlogRepo) UpdateBlog(_ context.Context, b *model.Blog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.blogs[b.ID]; !ok {
		return apperror.NotFound("blog", b.ID)
	}
	b.UpdatedAt = time.Now()
	f.blogs[b.ID] = copyBlog(b)
	return nil
}

func (f *fakeBlogRepo) DeleteBlog(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.blogs[id]; !ok {
		return apperror.NotFound("blog", id)
	}
	delete(f.blogs, id)
	return nil
}

func (f *fakeBlogRepo) IncrementViews(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.blogs[id]
	if !ok {
		return apperror.NotFound("blog", id)
	}
	b.Views++
	f.viewed = append(f.viewed, id)
	return nil
}

func (f *fakeBlogRepo) ToggleLike(_ context.Context, blogID, userID string) (*model.Blog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.blogs[blogID]
	if !ok {
		return nil, apperror.NotFound("blog", blogID)
	}
	if i := slices.Index(b.Likes, userID); i >= 0 {
		b.Likes = slices.Delete(b.Likes, i, i+1)
	} else {
		b.Likes = append(b.Likes, userID)
	}
	return copyBlog(b), nil
}
