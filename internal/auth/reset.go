package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"
)

// DefaultResetTokenTTL is how long a password-reset link stays usable.
const DefaultResetTokenTTL = 10 * time.Minute

const resetTokenBytes = 32

// ResetToken is a freshly issued password-reset secret.
//
// Raw goes to the user (inside the emailed link) and is never stored. Hash is
// what the database keeps; a leaked database row therefore cannot be turned
// back into a working link.
type ResetToken struct {
	Raw       string
	Hash      string
	ExpiresAt time.Time
}

// ResetTokenGenerator issues single-use password-reset tokens.
type ResetTokenGenerator struct {
	ttl time.Duration
	now func() time.Time
}

// NewResetTokenGenerator creates a generator whose tokens expire after ttl.
// A non-positive ttl means DefaultResetTokenTTL.
func NewResetTokenGenerator(ttl time.Duration) *ResetTokenGenerator {
	if ttl <= 0 {
		ttl = DefaultResetTokenTTL
	}
	return &ResetTokenGenerator{ttl: ttl, now: time.Now}
}

// TTL is how long issued tokens stay valid.
func (g *ResetTokenGenerator) TTL() time.Duration {
	return g.ttl
}

// Issue returns a new random token, its digest, and its expiry.
func (g *ResetTokenGenerator) Issue() (*ResetToken, error) {
	buf := make([]byte, resetTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("auth: generating reset token: %w", err)
	}

	raw := hex.EncodeToString(buf)
	return &ResetToken{
		Raw:       raw,
		Hash:      HashResetToken(raw),
		ExpiresAt: g.now().Add(g.ttl),
	}, nil
}

// HashResetToken returns the hex SHA-256 digest stored for a raw token.
// A fast hash is fine here: the input is 256 bits of randomness, not a
// human-chosen password.
func HashResetToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// CheckResetToken reports whether raw matches storedHash and the token has
// not expired at now. A nil expiry never matches.
func CheckResetToken(raw, storedHash string, expiresAt *time.Time, now time.Time) bool {
	if storedHash == "" || expiresAt == nil {
		return false
	}
	if !now.Before(*expiresAt) {
		return false
	}
	got := HashResetToken(raw)
	return subtle.ConstantTimeCompare([]byte(got), []byte(storedHash)) == 1
}
