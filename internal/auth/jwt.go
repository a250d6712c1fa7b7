// Package auth provides the identity primitives of the blog API: password
// hashing, password-reset tokens, signed identity tokens, the session cookie
// bundle, and the HTTP middleware that turns a cookie into a user.
//
// LOGIN FLOW OVERVIEW:
//  1. POST /login verifies the password and creates a server-side session.
//  2. The server signs a JWT whose subject is the user id and whose "jti" is
//     the session id, and stores {token, userId} in the sessionData cookie.
//  3. RequireAuth reads the cookie on every protected request, verifies the
//     JWT, checks that the session still exists, loads the user, and puts it
//     in the request context.
//
// JWT STRUCTURE (three base64url parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header: {"alg":"HS256","typ":"JWT"}
//	- Payload: {"sub":"<user id>","jti":"<session id>","iat":...,"exp":...}
//	- Signature: HMAC-SHA256(header+"."+payload, secret)
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL is the lifetime of an identity token.
const DefaultTokenTTL = time.Hour

const tokenIssuer = "blog-backend"

// ErrTokenExpired is returned by Validate for a well-formed token past its exp.
var ErrTokenExpired = errors.New("auth: token expired")

// TokenService handles JWT creation and validation.
//
// It holds the HMAC secret used to sign and verify tokens. Rotating the
// secret invalidates every outstanding token at once.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a TokenService with the given secret and lifetime.
// A non-positive ttl means DefaultTokenTTL.
// Example: BLOG_JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

// TTL returns the lifetime of tokens issued by Generate.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Claims is what a verified token asserts.
type Claims struct {
	UserID    string
	SessionID string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Generate signs a token for userID bound to sessionID, valid for TTL().
func (s *TokenService) Generate(userID, sessionID string) (string, error) {
	return s.GenerateWithDuration(userID, sessionID, s.ttl)
}

// GenerateWithDuration signs a token with a custom lifetime.
// Negative durations produce already-expired tokens, which the tests rely on.
func (s *TokenService) GenerateWithDuration(userID, sessionID string, d time.Duration) (string, error) {
	now := time.Now()

	c := jwt.RegisteredClaims{
		Subject:   userID,
		ID:        sessionID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(d)),
		Issuer:    tokenIssuer,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// Validate parses and verifies a JWT string.
//
// The jwt library checks the signature, the expiry, the issuer and (through
// WithValidMethods) that the algorithm is HS256, which rules out "alg: none"
// and RSA/HMAC confusion.
func (s *TokenService) Validate(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&jwt.RegisteredClaims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("auth: invalid token: %w", err)
	}

	rc, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("auth: invalid token claims")
	}
	if rc.Subject == "" {
		return nil, fmt.Errorf("auth: token has no subject")
	}

	c := &Claims{
		UserID:    rc.Subject,
		SessionID: rc.ID,
	}
	if rc.IssuedAt != nil {
		c.IssuedAt = rc.IssuedAt.Time
	}
	if rc.ExpiresAt != nil {
		c.ExpiresAt = rc.ExpiresAt.Time
	}
	return c, nil
}
