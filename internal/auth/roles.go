package auth

import (
	"net/http"

	"github.com/sakif/blog-backend/internal/model"
)

// RoleSet is a fixed set of roles allowed through RestrictTo.
// It is a bit set over the enumerated roles, so it is comparable, cheap to
// copy, and cannot contain a role that does not exist.
type RoleSet uint8

const (
	AllowUser RoleSet = 1 << iota
	AllowAdmin

	AllowAny = AllowUser | AllowAdmin
)

// Permits reports whether role is in the set.
func (s RoleSet) Permits(role model.Role) bool {
	switch role {
	case model.RoleUser:
		return s&AllowUser != 0
	case model.RoleAdmin:
		return s&AllowAdmin != 0
	default:
		return false
	}
}

// RestrictTo returns middleware that only lets users whose role is in allowed
// reach next. It must run after RequireAuth: without a user in the context it
// answers 401, with a user of the wrong role it answers 403.
func RestrictTo(allowed RoleSet) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok {
				writeAuthError(w, http.StatusUnauthorized, "unauthorized", "Unauthorized: Please log in")
				return
			}
			if !allowed.Permits(user.Role) {
				writeAuthError(w, http.StatusForbidden, "forbidden", "You do not have permission to perform this action")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
