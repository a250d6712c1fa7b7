package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/xid"

	"github.com/sakif/blog-backend/internal/apperror"
	"github.com/sakif/blog-backend/internal/model"
	"github.com/sakif/blog-backend/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, first_name, last_name, email, password_hash, role, active, github_id,
	password_changed_at, password_reset_token, password_reset_expires, created_at, updated_at`

// CreateUser inserts a new account. The email is normalised (trimmed and
// lowercased) before it is stored, and a duplicate email or GitHub id is
// reported as apperror.ErrConflict.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	now := db.now().UTC()
	user.ID = xid.New().String()
	user.Email = normalizeEmail(user.Email)
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.Role == "" {
		user.Role = model.RoleUser
	}
	user.Active = true

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.FirstName,
		user.LastName,
		user.Email,
		user.PasswordHash,
		string(user.Role),
		user.Active,
		nullGitHubID(user.GitHubID),
		nullTime(user.PasswordChangedAt),
		user.PasswordResetToken,
		nullTime(user.PasswordResetExpires),
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.ConflictMessage("email", "An account with this email already exists")
		}
		return fmt.Errorf("sqlite: creating user: %w", err)
	}
	return nil
}

// GetUserByID retrieves an active user by id.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	u, err := db.getUser(ctx, `id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("user", id)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return u, nil
}

// GetUserByEmail retrieves an active user by email, case-insensitively.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := db.getUser(ctx, `email = ?`, normalizeEmail(email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFoundMessage("There is no user with that email address")
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting user by email: %w", err)
	}
	return u, nil
}

// GetUserByGitHubID retrieves the active user linked to a GitHub account.
func (db *DB) GetUserByGitHubID(ctx context.Context, githubID int64) (*model.User, error) {
	u, err := db.getUser(ctx, `github_id = ?`, githubID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("user", fmt.Sprintf("github:%d", githubID))
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting user by github id %d: %w", githubID, err)
	}
	return u, nil
}

// GetUserByResetToken retrieves the active user whose pending reset token
// hashes to tokenHash.
func (db *DB) GetUserByResetToken(ctx context.Context, tokenHash string) (*model.User, error) {
	if tokenHash == "" {
		return nil, apperror.NotFoundMessage("Token is invalid or has expired")
	}
	u, err := db.getUser(ctx, `password_reset_token = ?`, tokenHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFoundMessage("Token is invalid or has expired")
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting user by reset token: %w", err)
	}
	return u, nil
}

// UpdateUser writes every mutable field of user back to its row.
// Deactivating a user is an update with Active = false.
func (db *DB) UpdateUser(ctx context.Context, user *model.User) error {
	user.Email = normalizeEmail(user.Email)
	user.UpdatedAt = db.now().UTC()

	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET
			first_name = ?, last_name = ?, email = ?, password_hash = ?, role = ?, active = ?,
			github_id = ?, password_changed_at = ?, password_reset_token = ?,
			password_reset_expires = ?, updated_at = ?
		 WHERE id = ?`,
		user.FirstName,
		user.LastName,
		user.Email,
		user.PasswordHash,
		string(user.Role),
		user.Active,
		nullGitHubID(user.GitHubID),
		nullTime(user.PasswordChangedAt),
		user.PasswordResetToken,
		nullTime(user.PasswordResetExpires),
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.ConflictMessage("email", "An account with this email already exists")
		}
		return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("user", user.ID)
	}
	return nil
}

// ListUsers returns active users, oldest first.
func (db *DB) ListUsers(ctx context.Context, opts repository.ListOptions) ([]model.User, error) {
	page, args := limitOffset(opts.Limit, opts.Offset)
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE active = 1
		 ORDER BY created_at ASC, id ASC`+page,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing users: %w", err)
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning user row: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating user rows: %w", err)
	}
	return users, nil
}

func (db *DB) getUser(ctx context.Context, where string, arg any) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+where+` AND active = 1`,
		arg,
	)
	return scanUser(row)
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner) (*model.User, error) {
	var (
		u              model.User
		role           string
		githubID       sql.NullInt64
		changedAt      sql.NullTime
		resetExpiresAt sql.NullTime
	)
	err := s.Scan(
		&u.ID,
		&u.FirstName,
		&u.LastName,
		&u.Email,
		&u.PasswordHash,
		&role,
		&u.Active,
		&githubID,
		&changedAt,
		&u.PasswordResetToken,
		&resetExpiresAt,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.Role = model.Role(role)
	if githubID.Valid {
		id := githubID.Int64
		u.GitHubID = &id
	}
	u.PasswordChangedAt = timePtr(changedAt)
	u.PasswordResetExpires = timePtr(resetExpiresAt)
	return &u, nil
}

func nullGitHubID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

