package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/blog-backend/internal/model"
)

// contextKey is unexported so no other package can read or overwrite the
// values this package stores in a request context.
type contextKey string

const (
	userKey    contextKey = "user"
	sessionKey contextKey = "sessionID"
)

// Rejection messages, one per step of RequireAuth. Each is distinct so a
// client (or a log reader) can tell which check failed.
const (
	MsgNoSessionData    = "Unauthorized: Session data not found"
	MsgMalformedSession = "Unauthorized: Malformed session data"
	MsgNoToken          = "Unauthorized: Token not found in session data"
	MsgInvalidToken     = "Unauthorized: Invalid token"
	MsgTokenMismatch    = "Unauthorized: Token does not match user ID"
	MsgNoSession        = "Unauthorized: Session not found"
	MsgUserMissing      = "Unauthorized: User not found"
	MsgPasswordChanged  = "Unauthorized: Password recently changed, please log in again"
)

// SessionFinder looks up a server-side session by id.
type SessionFinder interface {
	GetSession(ctx context.Context, id string) (*model.Session, error)
}

// UserFinder looks up an active user by id.
type UserFinder interface {
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}

// Gate resolves the caller of a protected request.
type Gate struct {
	tokens   *TokenService
	sessions SessionFinder
	users    UserFinder
	logger   *slog.Logger
	now      func() time.Time
}

// NewGate creates a Gate. All collaborators are required.
func NewGate(tokens *TokenService, sessions SessionFinder, users UserFinder, logger *slog.Logger) *Gate {
	return &Gate{
		tokens:   tokens,
		sessions: sessions,
		users:    users,
		logger:   logger,
		now:      time.Now,
	}
}

// RequireAuth is the middleware form of Gate.Authenticate. On success the
// user and session id are stored in the request context; on failure it
// answers 401 and next never runs.
//
// Chi applies middlewares in a chain: req → M1 → M2 → Handler → M2 → M1 → resp
func (g *Gate) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, sessionID, msg := g.Authenticate(r)
		if user == nil {
			g.logger.Debug("request rejected by auth gate",
				slog.String("path", r.URL.Path),
				slog.String("reason", msg),
			)
			writeAuthError(w, http.StatusUnauthorized, "unauthorized", msg)
			return
		}

		ctx := context.WithValue(r.Context(), userKey, user)
		ctx = context.WithValue(ctx, sessionKey, sessionID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Authenticate runs the checks in order and stops at the first failure.
// It returns the user and session id, or a nil user and the rejection
// message. Nothing is cached between requests.
func (g *Gate) Authenticate(r *http.Request) (*model.User, string, string) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil, "", MsgNoSessionData
	}

	bundle, err := DecodeSessionBundle(cookie.Value)
	if err != nil {
		return nil, "", MsgMalformedSession
	}
	if bundle.Token == "" {
		return nil, "", MsgNoToken
	}

	claims, err := g.tokens.Validate(bundle.Token)
	if err != nil {
		return nil, "", MsgInvalidToken
	}

	// A valid token pasted next to someone else's user id is rejected here.
	if claims.UserID != bundle.UserID {
		return nil, "", MsgTokenMismatch
	}

	ctx := r.Context()

	if claims.SessionID == "" {
		return nil, "", MsgNoSession
	}
	session, err := g.sessions.GetSession(ctx, claims.SessionID)
	if err != nil || session == nil || session.UserID != claims.UserID || session.Expired(g.now()) {
		return nil, "", MsgNoSession
	}

	user, err := g.users.GetUserByID(ctx, claims.UserID)
	if err != nil || user == nil {
		return nil, "", MsgUserMissing
	}

	if user.ChangedPasswordAfter(claims.IssuedAt) {
		return nil, "", MsgPasswordChanged
	}

	return user, session.ID, ""
}

// OptionalSessionID extracts the session id from a request's cookie without
// enforcing anything beyond a valid token. Logout uses it to find the
// session to destroy even when the user record is gone. An expired token
// yields nothing; its session is already past use and the janitor removes it.
func (g *Gate) OptionalSessionID(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return "", false
	}
	bundle, err := DecodeSessionBundle(cookie.Value)
	if err != nil || bundle.Token == "" {
		return "", false
	}
	claims, err := g.tokens.Validate(bundle.Token)
	if err != nil || claims.SessionID == "" {
		return "", false
	}
	return claims.SessionID, true
}

// UserFromContext returns the user attached by RequireAuth.
func UserFromContext(ctx context.Context) (*model.User, bool) {
	u, ok := ctx.Value(userKey).(*model.User)
	return u, ok && u != nil
}

// UserIDFromContext returns the id of the user attached by RequireAuth.
func UserIDFromContext(ctx context.Context) (string, bool) {
	u, ok := UserFromContext(ctx)
	if !ok {
		return "", false
	}
	return u.ID, u.ID != ""
}

// SessionIDFromContext returns the session id attached by RequireAuth.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(sessionKey).(string)
	return id, ok && id != ""
}

// WithUser returns a copy of ctx carrying user. Handler tests use it to skip
// the gate.
func WithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeAuthError(w http.ResponseWriter, status int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: kind, Message: message})
}
