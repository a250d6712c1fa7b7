package handler

import (
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/blog-backend/internal/apperror"
	"github.com/sakif/blog-backend/internal/auth"
	"github.com/sakif/blog-backend/internal/service"
)

const oauthStateCookie = "oauth_state"

// AuthHandler serves account endpoints: signup, login, logout, GitHub
// sign-in, password reset and the current-user routes.
//
// DEPENDENCY CHAIN:
//   - svc    *service.AuthService  → every account operation
//   - gate   *auth.Gate            → logout reads the session id from the cookie
//   - github *auth.GitHubProvider  → optional; nil disables GitHub sign-in
type AuthHandler struct {
	svc       *service.AuthService
	gate      *auth.Gate
	github    *auth.GitHubProvider
	cookie    auth.CookieOptions
	publicURL string
	validate  *requestValidator
	logger    *slog.Logger
}

// AuthHandlerConfig carries the non-service settings of AuthHandler.
type AuthHandlerConfig struct {
	Cookie auth.CookieOptions
	// PublicURL is the externally visible base URL used in reset links.
	// Empty means "derive it from the request".
	PublicURL string
}

// NewAuthHandler creates an AuthHandler. github may be nil.
func NewAuthHandler(
	svc *service.AuthService,
	gate *auth.Gate,
	github *auth.GitHubProvider,
	cfg AuthHandlerConfig,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		svc:       svc,
		gate:      gate,
		github:    github,
		cookie:    cfg.Cookie,
		publicURL: strings.TrimRight(cfg.PublicURL, "/"),
		validate:  newRequestValidator(),
		logger:    logger,
	}
}

type signupRequest struct {
	FirstName       string `json:"firstName" validate:"required"`
	LastName        string `json:"lastName" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=8"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required"`
	// Role is accepted and ignored; roles come from configuration or an admin.
	Role string `json:"role"`
}

// HandleSignup creates an account.
//
// HTTP: POST /signup
func (h *AuthHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := h.validate.decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	_, err := h.svc.Signup(r.Context(), service.SignupInput{
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		Email:           req.Email,
		Password:        req.Password,
		PasswordConfirm: req.PasswordConfirm,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "Account created, Please login"})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// HandleLogin verifies credentials and sets the sessionData cookie.
//
// HTTP: POST /login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := h.validate.decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.svc.Login(r.Context(), req.Email, req.Password, sessionMeta(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.setSession(w, res); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "Login successful"})
}

// HandleLogout destroys the caller's session, if any, and clears the cookie.
// It succeeds for anonymous callers too: the end state is the same.
//
// HTTP: POST /logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if sessionID, ok := h.gate.OptionalSessionID(r); ok {
		if err := h.svc.Logout(r.Context(), sessionID); err != nil {
			h.logger.Error("Error destroying session", slog.String("error", err.Error()))
			writeError(w, apperror.Internal("Error destroying session", err))
			return
		}
	}

	auth.ClearSessionCookie(w, h.cookie)
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Logout successful"})
}

// HandleGitHubLogin redirects the browser to GitHub's authorization page.
//
// HTTP: GET /auth/github/login
//
// CSRF PROTECTION VIA STATE:
// A random state is stored in a short-lived HttpOnly cookie and sent to
// GitHub; the callback only proceeds when both match.
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	if h.github == nil {
		writeError(w, apperror.NotFoundMessage("GitHub sign-in is not configured"))
		return
	}

	state, err := auth.NewState()
	if err != nil {
		writeError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes GitHub sign-in.
//
// HTTP: GET /auth/github/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Validate the state parameter (CSRF check)
//  2. Exchange the code for a GitHub identity
//  3. Link or create the local account and open a session
//  4. Set the sessionData cookie and redirect to the app
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	if h.github == nil {
		writeError(w, apperror.NotFoundMessage("GitHub sign-in is not configured"))
		return
	}

	// --- Step 1: Validate CSRF state ---
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || stateCookie.Value == "" || r.URL.Query().Get("state") != stateCookie.Value {
		h.logger.Warn("github callback: state mismatch")
		writeError(w, apperror.ValidationFailed("state", "Invalid OAuth state"))
		return
	}
	// single use
	http.SetCookie(w, &http.Cookie{Name: oauthStateCookie, Value: "", Path: "/", MaxAge: -1})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("github callback: user denied authorization", slog.String("error", errParam))
		http.Redirect(w, r, "/?auth=denied", http.StatusSeeOther)
		return
	}

	// --- Step 2: Exchange code ---
	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, apperror.ValidationFailed("code", "Missing OAuth code"))
		return
	}
	ident, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("github callback: exchange failed", slog.String("error", err.Error()))
		writeError(w, apperror.Unauthorized("Unauthorized: GitHub authentication failed"))
		return
	}

	// --- Step 3 + 4: Account, session, cookie ---
	res, err := h.svc.LoginOrRegisterGitHub(r.Context(), ident, sessionMeta(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.setSession(w, res); err != nil {
		writeError(w, err)
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// HandleForgotPassword mails a single-use reset link.
//
// HTTP: POST /api/v1/users/forgotPassword
func (h *AuthHandler) HandleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := h.validate.decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.svc.ForgotPassword(r.Context(), req.Email, h.baseURL(r)); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Token sent to email!",
	})
}

type resetPasswordRequest struct {
	Password        string `json:"password" validate:"required,min=8"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required"`
}

// HandleResetPassword consumes a reset token and sets a new password.
//
// HTTP: PATCH /api/v1/users/resetPassword/{token}
func (h *AuthHandler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := h.validate.decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	token := chi.URLParam(r, "token")
	if err := h.svc.ResetPassword(r.Context(), token, req.Password, req.PasswordConfirm); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "Password reset successfully, please login"})
}

// HandleMe returns the authenticated user.
//
// HTTP: GET /api/v1/users/me
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("Unauthorized: Please log in"))
		return
	}
	writeJSON(w, http.StatusOK, DataResponse{Data: user})
}

type updatePasswordRequest struct {
	PasswordCurrent string `json:"passwordCurrent" validate:"required"`
	Password        string `json:"password" validate:"required,min=8"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required"`
}

// HandleUpdateMyPassword changes the caller's password. Every existing
// session is revoked, so the response carries a fresh cookie.
//
// HTTP: PATCH /api/v1/users/updateMyPassword
func (h *AuthHandler) HandleUpdateMyPassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("Unauthorized: Please log in"))
		return
	}

	var req updatePasswordRequest
	if err := h.validate.decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.svc.UpdatePassword(r.Context(), userID, req.PasswordCurrent, req.Password, req.PasswordConfirm, sessionMeta(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.setSession(w, res); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "Password updated successfully"})
}

func (h *AuthHandler) setSession(w http.ResponseWriter, res *service.LoginResult) error {
	return auth.SetSessionCookie(w, auth.SessionBundle{
		Token:  res.Token,
		UserID: res.User.ID,
	}, h.cookie)
}

// baseURL is where reset links point: the configured public URL, else the
// scheme and host of the incoming request.
func (h *AuthHandler) baseURL(r *http.Request) string {
	if h.publicURL != "" {
		return h.publicURL
	}
	scheme := "http"
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

// sessionMeta describes the client. RemoteAddr has already been rewritten by
// the RealIP middleware when the server sits behind a proxy.
func sessionMeta(r *http.Request) service.SessionMeta {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return service.SessionMeta{UserAgent: r.UserAgent(), IP: ip}
}
