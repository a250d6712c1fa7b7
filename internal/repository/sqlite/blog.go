package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/xid"

	"github.com/sakif/blog-backend/internal/apperror"
	"github.com/sakif/blog-backend/internal/model"
	"github.com/sakif/blog-backend/internal/repository"
)

var _ repository.BlogRepository = (*DB)(nil)

const blogColumns = `id, title, body, user_id, tags, views, is_published, published_at, created_at, updated_at`

// CreateBlog inserts a new post. Likes always start empty.
func (db *DB) CreateBlog(ctx context.Context, blog *model.Blog) error {
	now := db.now().UTC()
	blog.ID = xid.New().String()
	blog.CreatedAt = now
	blog.UpdatedAt = now
	blog.Likes = []string{}
	if blog.Tags == nil {
		blog.Tags = []string{}
	}

	tags, err := json.Marshal(blog.Tags)
	if err != nil {
		return fmt.Errorf("sqlite: encoding tags: %w", err)
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO blogs (`+blogColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		blog.ID,
		blog.Title,
		blog.Body,
		blog.UserID,
		string(tags),
		blog.Views,
		blog.IsPublished,
		nullTime(blog.PublishedAt),
		blog.CreatedAt,
		blog.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating blog: %w", err)
	}
	return nil
}

// GetBlog retrieves a post together with its likes.
func (db *DB) GetBlog(ctx context.Context, id string) (*model.Blog, error) {
	return getBlog(ctx, db.conn, id)
}

// ListBlogs returns every post, newest first.
func (db *DB) ListBlogs(ctx context.Context, opts repository.ListOptions) ([]model.Blog, error) {
	page, args := limitOffset(opts.Limit, opts.Offset)
	return db.listBlogs(ctx,
		`SELECT `+blogColumns+` FROM blogs ORDER BY created_at DESC, id DESC`+page,
		args...,
	)
}

// ListBlogsByUser returns the posts owned by userID, newest first.
func (db *DB) ListBlogsByUser(ctx context.Context, userID string, opts repository.ListOptions) ([]model.Blog, error) {
	page, args := limitOffset(opts.Limit, opts.Offset)
	return db.listBlogs(ctx,
		`SELECT `+blogColumns+` FROM blogs WHERE user_id = ? ORDER BY created_at DESC, id DESC`+page,
		append([]any{userID}, args...)...,
	)
}

// UpdateBlog writes the editable fields of a post. Likes and views are
// owned by ToggleLike and IncrementViews and are not touched here.
func (db *DB) UpdateBlog(ctx context.Context, blog *model.Blog) error {
	blog.UpdatedAt = db.now().UTC()
	if blog.Tags == nil {
		blog.Tags = []string{}
	}
	tags, err := json.Marshal(blog.Tags)
	if err != nil {
		return fmt.Errorf("sqlite: encoding tags: %w", err)
	}

	res, err := db.conn.ExecContext(ctx,
		`UPDATE blogs
		 SET title = ?, body = ?, tags = ?, is_published = ?, published_at = ?, updated_at = ?
		 WHERE id = ?`,
		blog.Title,
		blog.Body,
		string(tags),
		blog.IsPublished,
		nullTime(blog.PublishedAt),
		blog.UpdatedAt,
		blog.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating blog %s: %w", blog.ID, err)
	}
	return expectOneRow(res, "blog", blog.ID)
}

// DeleteBlog removes a post. Its likes go with it (ON DELETE CASCADE).
func (db *DB) DeleteBlog(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM blogs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting blog %s: %w", id, err)
	}
	return expectOneRow(res, "blog", id)
}

// IncrementViews bumps the view counter in a single statement, so
// concurrent readers never lose a count.
func (db *DB) IncrementViews(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `UPDATE blogs SET views = views + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: incrementing views of blog %s: %w", id, err)
	}
	return expectOneRow(res, "blog", id)
}

// ToggleLike flips userID's like on a post.
//
// WHY A TRANSACTION?
// "Read the likes, decide, write the likes" done as separate statements lets
// two concurrent toggles both read the same state and overwrite each other.
// Here the decision and the write happen inside one IMMEDIATE transaction
// (see _txlock in New), which holds SQLite's write lock from BEGIN to COMMIT,
// so toggles on the same post are serialised. The (blog_id, user_id) primary
// key makes a duplicate like impossible even if that were ever bypassed.
func (db *DB) ToggleLike(ctx context.Context, blogID, userID string) (*model.Blog, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: beginning like transaction: %w", err)
	}
	// Rollback after Commit is a no-op that returns sql.ErrTxDone.
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM blogs WHERE id = ?`, blogID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("sqlite: checking blog %s: %w", blogID, err)
	}
	if exists == 0 {
		return nil, apperror.NotFound("blog", blogID)
	}

	res, err := tx.ExecContext(ctx,
		`DELETE FROM blog_likes WHERE blog_id = ? AND user_id = ?`, blogID, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: removing like: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if removed == 0 {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO blog_likes (blog_id, user_id, liked_at) VALUES (?, ?, ?)`,
			blogID, userID, db.now().UTC().UnixNano())
		if err != nil {
			return nil, fmt.Errorf("sqlite: adding like: %w", err)
		}
	}

	blog, err := getBlog(ctx, tx, blogID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite: committing like transaction: %w", err)
	}
	return blog, nil
}

// querier is the subset of *sql.DB and *sql.Tx the read helpers need, so
// ToggleLike can read its own writes inside the transaction.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getBlog(ctx context.Context, q querier, id string) (*model.Blog, error) {
	row := q.QueryRowContext(ctx, `SELECT `+blogColumns+` FROM blogs WHERE id = ?`, id)
	blog, err := scanBlog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("blog", id)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting blog %s: %w", id, err)
	}

	likes, err := loadLikes(ctx, q, id)
	if err != nil {
		return nil, err
	}
	blog.Likes = likes
	return blog, nil
}

// listBlogs runs a blog SELECT and attaches likes afterwards.
//
// The likes queries run only after rows is closed: an in-memory database has
// a single connection, and a second query issued while rows still holds it
// would block forever.
func (db *DB) listBlogs(ctx context.Context, query string, args ...any) ([]model.Blog, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing blogs: %w", err)
	}

	blogs := []model.Blog{}
	for rows.Next() {
		b, err := scanBlog(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite: scanning blog row: %w", err)
		}
		blogs = append(blogs, *b)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("sqlite: iterating blog rows: %w", err)
	}
	rows.Close()

	for i := range blogs {
		likes, err := loadLikes(ctx, db.conn, blogs[i].ID)
		if err != nil {
			return nil, err
		}
		blogs[i].Likes = likes
	}
	return blogs, nil
}

func loadLikes(ctx context.Context, q querier, blogID string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT user_id FROM blog_likes WHERE blog_id = ? ORDER BY liked_at ASC, rowid ASC`,
		blogID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading likes of blog %s: %w", blogID, err)
	}
	defer rows.Close()

	likes := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scanning like row: %w", err)
		}
		likes = append(likes, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating like rows: %w", err)
	}
	return likes, nil
}

func scanBlog(s scanner) (*model.Blog, error) {
	var (
		b           model.Blog
		tags        string
		publishedAt sql.NullTime
	)
	err := s.Scan(
		&b.ID,
		&b.Title,
		&b.Body,
		&b.UserID,
		&tags,
		&b.Views,
		&b.IsPublished,
		&publishedAt,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &b.Tags); err != nil {
		return nil, fmt.Errorf("decoding tags of blog %s: %w", b.ID, err)
	}
	if b.Tags == nil {
		b.Tags = []string{}
	}
	b.PublishedAt = timePtr(publishedAt)
	return &b, nil
}

// expectOneRow turns "no row matched" into apperror.NotFound.
func expectOneRow(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound(resource, id)
	}
	return nil
}
