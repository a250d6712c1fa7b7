package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/blog-backend/internal/apperror"
	"github.com/sakif/blog-backend/internal/model"
	"github.com/sakif/blog-backend/internal/repository"
)

var _ repository.SessionStore = (*DB)(nil)

// Session timestamps are stored as unix seconds so the janitor's
// "expires_at <= ?" comparison is numeric rather than a string comparison
// of formatted dates.

// CreateSession stores a new session. The caller assigns the id.
func (db *DB) CreateSession(ctx context.Context, s *model.Session) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = db.now()
	}
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, user_agent, ip, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		s.ID, s.UserID, s.UserAgent, s.IP, s.CreatedAt.Unix(), s.ExpiresAt.Unix(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("session", s.ID)
		}
		return fmt.Errorf("sqlite: creating session: %w", err)
	}
	return nil
}

// GetSession returns a session by id. Expired sessions are still returned;
// the caller decides what expiry means.
func (db *DB) GetSession(ctx context.Context, id string) (*model.Session, error) {
	var (
		s                  model.Session
		created, expiresAt int64
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, user_id, user_agent, ip, created_at, expires_at FROM sessions WHERE id = ?`,
		id,
	).Scan(&s.ID, &s.UserID, &s.UserAgent, &s.IP, &created, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("session", id)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting session: %w", err)
	}
	s.CreatedAt = time.Unix(created, 0).UTC()
	s.ExpiresAt = time.Unix(expiresAt, 0).UTC()
	return &s, nil
}

func (db *DB) DeleteSession(ctx context.Context, id string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("sqlite: deleting session: %w", err)
	}
	return nil
}

func (db *DB) DeleteUserSessions(ctx context.Context, userID string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("sqlite: deleting sessions of user %s: %w", userID, err)
	}
	return nil
}

func (db *DB) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("sqlite: deleting expired sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return n, nil
}
