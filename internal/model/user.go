// Package model defines the data structures used throughout the application.
package model

import "time"

// Role is the enumerated authorization level of a user.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User represents a registered account.
//
// PasswordHash and the reset-token fields carry `json:"-"`: they must never
// leave the server, no matter which handler happens to serialize a User.
// Accounts created through GitHub sign-in have an empty PasswordHash, which
// bcrypt never matches, so they cannot log in with a password until they
// reset one.
type User struct {
	ID                   string     `json:"id"`
	FirstName            string     `json:"firstName"`
	LastName             string     `json:"lastName"`
	Email                string     `json:"email"`
	PasswordHash         string     `json:"-"`
	Role                 Role       `json:"role"`
	Active               bool       `json:"-"`
	GitHubID             *int64     `json:"githubId,omitempty"`
	PasswordChangedAt    *time.Time `json:"passwordChangedAt,omitempty"`
	PasswordResetToken   string     `json:"-"` // SHA-256 hex of the raw token
	PasswordResetExpires *time.Time `json:"-"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
}

// ChangedPasswordAfter reports whether the password was changed after t.
// Tokens issued before a password change are no longer honoured.
func (u *User) ChangedPasswordAfter(t time.Time) bool {
	if u.PasswordChangedAt == nil {
		return false
	}
	return u.PasswordChangedAt.Unix() > t.Unix()
}

// ClearPasswordReset drops any pending reset token.
func (u *User) ClearPasswordReset() {
	u.PasswordResetToken = ""
	u.PasswordResetExpires = nil
}
