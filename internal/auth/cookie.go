package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// SessionCookieName is the cookie that carries the session bundle.
const SessionCookieName = "sessionData"

// SessionBundle is the JSON payload of the sessionData cookie.
type SessionBundle struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
}

var errMalformedBundle = errors.New("auth: malformed session data")

// EncodeSessionBundle renders a bundle as a cookie value: JSON, then
// percent-encoded so quotes and commas survive the cookie grammar.
func EncodeSessionBundle(b SessionBundle) (string, error) {
	raw, err := json.Marshal(b)
	if err != nil {
		return "", fmt.Errorf("auth: encoding session bundle: %w", err)
	}
	return url.QueryEscape(string(raw)), nil
}

// DecodeSessionBundle reverses EncodeSessionBundle.
func DecodeSessionBundle(value string) (*SessionBundle, error) {
	decoded, err := url.QueryUnescape(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errMalformedBundle, err)
	}

	var b SessionBundle
	if err := json.Unmarshal([]byte(decoded), &b); err != nil {
		return nil, fmt.Errorf("%w: %w", errMalformedBundle, err)
	}
	return &b, nil
}

// CookieOptions controls the attributes of the session cookie.
type CookieOptions struct {
	Secure bool
	MaxAge time.Duration
}

// SetSessionCookie writes the sessionData cookie.
//
// HttpOnly keeps it away from page scripts; Secure restricts it to HTTPS.
// SameSite=Lax stops it riding along on cross-site POSTs.
func SetSessionCookie(w http.ResponseWriter, b SessionBundle, opts CookieOptions) error {
	value, err := EncodeSessionBundle(b)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(opts.MaxAge.Seconds()),
		Expires:  time.Now().Add(opts.MaxAge),
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// ClearSessionCookie tells the browser to drop the sessionData cookie.
func ClearSessionCookie(w http.ResponseWriter, opts CookieOptions) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
