package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

// GitHubIdentity is what a blog account needs from a GitHub profile.
// The /user response carries far more; only these fields are decoded.
type GitHubIdentity struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// FirstLast splits the display name into first and last name. Profiles
// without a name fall back to the login.
func (g *GitHubIdentity) FirstLast() (string, string) {
	name := strings.TrimSpace(g.Name)
	if name == "" {
		return g.Login, ""
	}
	first, last, _ := strings.Cut(name, " ")
	return first, strings.TrimSpace(last)
}

// ErrNoVerifiedEmail is returned when a GitHub account exposes no verified
// address. Blog accounts are keyed by email, so sign-in cannot proceed.
var ErrNoVerifiedEmail = errors.New("auth: github account has no verified email")

// GitHubProvider runs the OAuth 2.0 authorization code flow against GitHub.
//
// The browser is sent to GitHub with a random state; GitHub calls back with a
// code; the server trades the code for an access token server-to-server and
// uses it to read the profile. The access token is discarded afterwards: the
// caller only ever holds the blog's own session cookie.
type GitHubProvider struct {
	config  *oauth2.Config
	apiBase string
}

// NewGitHubProvider creates a GitHubProvider. callbackURL must match the
// "Authorization callback URL" registered for the OAuth app.
func NewGitHubProvider(clientID, clientSecret, callbackURL string) *GitHubProvider {
	return &GitHubProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint,
		},
		apiBase: "https://api.github.com",
	}
}

// NewState returns a random value for the OAuth state parameter. It is stored
// in a short-lived cookie and compared on callback to stop login CSRF.
func NewState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("auth: generating oauth state: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// AuthURL returns the GitHub authorization URL for state.
func (p *GitHubProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades an authorization code for the caller's GitHub identity.
// When the public profile hides the email, the verified primary address is
// read from /user/emails.
func (p *GitHubProvider) Exchange(ctx context.Context, code string) (*GitHubIdentity, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging oauth code: %w", err)
	}
	client := p.config.Client(ctx, token)

	var ident GitHubIdentity
	if err := p.getJSON(ctx, client, "/user", &ident); err != nil {
		return nil, err
	}
	if ident.ID == 0 {
		return nil, errors.New("auth: github returned an invalid user (id = 0)")
	}

	if ident.Email == "" {
		email, err := p.primaryEmail(ctx, client)
		if err != nil {
			return nil, err
		}
		ident.Email = email
	}
	ident.Email = strings.ToLower(strings.TrimSpace(ident.Email))
	return &ident, nil
}

func (p *GitHubProvider) primaryEmail(ctx context.Context, client *http.Client) (string, error) {
	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := p.getJSON(ctx, client, "/user/emails", &emails); err != nil {
		return "", err
	}

	fallback := ""
	for _, e := range emails {
		if !e.Verified {
			continue
		}
		if e.Primary {
			return e.Email, nil
		}
		if fallback == "" {
			fallback = e.Email
		}
	}
	if fallback == "" {
		return "", ErrNoVerifiedEmail
	}
	return fallback, nil
}

func (p *GitHubProvider) getJSON(ctx context.Context, client *http.Client, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBase+path, nil)
	if err != nil {
		return fmt.Errorf("auth: building github request %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("auth: calling github %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("auth: github %s returned status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("auth: decoding github %s response: %w", path, err)
	}
	return nil
}
