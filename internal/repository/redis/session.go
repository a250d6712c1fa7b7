// Package redis implements repository.SessionStore on Redis.
//
// Each session is one JSON value under "session:<id>" with a TTL equal to its
// remaining lifetime, so Redis expires sessions on its own. A set under
// "user_sessions:<userID>" indexes a user's session ids for bulk revocation.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/sakif/blog-backend/internal/apperror"
	"github.com/sakif/blog-backend/internal/model"
	"github.com/sakif/blog-backend/internal/repository"
)

var _ repository.SessionStore = (*SessionStore)(nil)

// SessionStore stores sessions in Redis.
type SessionStore struct {
	rdb *goredis.Client
	now func() time.Time
}

// NewSessionStore wraps an existing client.
func NewSessionStore(rdb *goredis.Client) *SessionStore {
	return &SessionStore{rdb: rdb, now: time.Now}
}

// Connect parses a redis:// URL, opens a client and pings it.
func Connect(ctx context.Context, url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parsing url: %w", err)
	}
	rdb := goredis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return rdb, nil
}

func sessionKey(id string) string         { return "session:" + id }
func userSessionsKey(userID string) string { return "user_sessions:" + userID }

// CreateSession stores s until s.ExpiresAt. An already expired session is
// rejected since Redis could not hold it for any time at all.
func (s *SessionStore) CreateSession(ctx context.Context, sess *model.Session) error {
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = s.now()
	}
	ttl := sess.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return apperror.ValidationFailed("expiresAt", "session already expired")
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("redis: encoding session: %w", err)
	}

	ok, err := s.rdb.SetNX(ctx, sessionKey(sess.ID), data, ttl).Result()
	if err != nil {
		return fmt.Errorf("redis: storing session: %w", err)
	}
	if !ok {
		return apperror.Conflict("session", sess.ID)
	}

	// Every session gets the same configured lifetime, so the newest one
	// always expires last and refreshing the index TTL to it keeps the
	// index alive exactly as long as it can hold a live id.
	_, err = s.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.SAdd(ctx, userSessionsKey(sess.UserID), sess.ID)
		p.Expire(ctx, userSessionsKey(sess.UserID), ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: indexing session: %w", err)
	}
	return nil
}

func (s *SessionStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	data, err := s.rdb.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, apperror.NotFound("session", id)
		}
		return nil, fmt.Errorf("redis: getting session: %w", err)
	}

	var sess model.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		// Unreadable values can never authenticate anyone; drop them.
		s.rdb.Del(ctx, sessionKey(id))
		return nil, apperror.NotFound("session", id)
	}
	return &sess, nil
}

func (s *SessionStore) DeleteSession(ctx context.Context, id string) error {
	sess, err := s.GetSession(ctx, id)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	_, err = s.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.Del(ctx, sessionKey(id))
		p.SRem(ctx, userSessionsKey(sess.UserID), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: deleting session: %w", err)
	}
	return nil
}

func (s *SessionStore) DeleteUserSessions(ctx context.Context, userID string) error {
	ids, err := s.rdb.SMembers(ctx, userSessionsKey(userID)).Result()
	if err != nil {
		return fmt.Errorf("redis: listing sessions of user %s: %w", userID, err)
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, sessionKey(id))
	}
	keys = append(keys, userSessionsKey(userID))

	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis: deleting sessions of user %s: %w", userID, err)
	}
	return nil
}

// DeleteExpiredSessions is a no-op: Redis expires session keys itself.
func (s *SessionStore) DeleteExpiredSessions(context.Context, time.Time) (int64, error) {
	return 0, nil
}
