package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/sakif/blog-backend/internal/apperror"
	"github.com/sakif/blog-backend/internal/auth"
	"github.com/sakif/blog-backend/internal/mail"
	"github.com/sakif/blog-backend/internal/model"
	"github.com/sakif/blog-backend/internal/repository"
)

const (
	MinPasswordLength = 8
	maxPasswordBytes  = 72

	// DefaultSessionTTL is how long a server-side session lives.
	DefaultSessionTTL = 10 * time.Hour

	msgBadCredentials = "email or password is incorrect"
	msgBadResetToken  = "Token is invalid or has expired"
	msgMailFailed     = "There was an error sending the email. Please try again."
)

// AuthConfig holds the tunables of AuthService.
type AuthConfig struct {
	SessionTTL time.Duration
	// AdminEmails are granted the admin role when they sign up. Signup
	// requests cannot choose a role themselves.
	AdminEmails []string
}

// AuthService handles signup, login, password management and user
// administration.
//
//	AuthHandler (HTTP) → AuthService → UserRepository  (accounts)
//	                                 → SessionStore    (server-side sessions)
//	                                 → TokenService    (signed identity tokens)
//	                                 → mail.Sender     (reset links)
//
// A login produces two things that must agree: a session record, and a
// token whose subject is the user and whose jti is the session id. The
// token is what the client holds; the session is what the server can revoke.
type AuthService struct {
	users     repository.UserRepository
	sessions  repository.SessionStore
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	resets    *auth.ResetTokenGenerator
	mailer    mail.Sender
	cfg       AuthConfig
	logger    *slog.Logger
	validate  *validator.Validate
	now       func() time.Time
}

// NewAuthService creates an AuthService with all required dependencies.
func NewAuthService(
	users repository.UserRepository,
	sessions repository.SessionStore,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	resets *auth.ResetTokenGenerator,
	mailer mail.Sender,
	cfg AuthConfig,
	logger *slog.Logger,
) *AuthService {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	admins := make([]string, 0, len(cfg.AdminEmails))
	for _, e := range cfg.AdminEmails {
		if e = normalizeEmail(e); e != "" {
			admins = append(admins, e)
		}
	}
	cfg.AdminEmails = admins

	return &AuthService{
		users:     users,
		sessions:  sessions,
		tokens:    tokens,
		passwords: passwords,
		resets:    resets,
		mailer:    mailer,
		cfg:       cfg,
		logger:    logger,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		now:       time.Now,
	}
}

// SignupInput is a signup request. PasswordConfirm is checked, never stored.
type SignupInput struct {
	FirstName       string
	LastName        string
	Email           string
	Password        string
	PasswordConfirm string
}

// SessionMeta describes the client a session is issued to.
type SessionMeta struct {
	UserAgent string
	IP        string
}

// LoginResult is everything the handler needs to set the session cookie.
type LoginResult struct {
	User    *model.User
	Session *model.Session
	Token   string
}

// Signup creates a new account. The password is hashed before the user is
// handed to the repository, so plaintext never reaches storage.
func (s *AuthService) Signup(ctx context.Context, in SignupInput) (*model.User, error) {
	first := strings.TrimSpace(in.FirstName)
	last := strings.TrimSpace(in.LastName)
	email := normalizeEmail(in.Email)

	if first == "" {
		return nil, apperror.ValidationFailed("firstName", "Please provide your first name")
	}
	if last == "" {
		return nil, apperror.ValidationFailed("lastName", "Please provide your last name")
	}
	if err := s.checkEmail(email); err != nil {
		return nil, err
	}
	if err := checkNewPassword(in.Password, in.PasswordConfirm); err != nil {
		return nil, err
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}

	role := model.RoleUser
	if slices.Contains(s.cfg.AdminEmails, email) {
		role = model.RoleAdmin
	}

	user := &model.User{
		FirstName:    first,
		LastName:     last,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("service/auth: creating user: %w", err)
	}

	s.logger.Info("user signed up",
		slog.String("userID", user.ID),
		slog.String("role", string(user.Role)),
	)
	return user, nil
}

// Login checks credentials and opens a session. Unknown email and wrong
// password produce the same error so the response doesn't reveal which
// accounts exist.
func (s *AuthService) Login(ctx context.Context, email, password string, meta SessionMeta) (*LoginResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, apperror.ValidationFailed("email", "Please provide email and password")
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if isNotFound(err) {
			return nil, apperror.Unauthorized(msgBadCredentials)
		}
		return nil, fmt.Errorf("service/auth: looking up user: %w", err)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		s.logger.Info("login rejected", slog.String("userID", user.ID))
		return nil, apperror.Unauthorized(msgBadCredentials)
	}

	res, err := s.openSession(ctx, user, meta)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user logged in",
		slog.String("userID", user.ID),
		slog.String("sessionID", res.Session.ID),
	)
	return res, nil
}

// Logout destroys a session. An empty or unknown id is not an error.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := s.sessions.DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("service/auth: deleting session: %w", err)
	}
	s.logger.Info("user logged out", slog.String("sessionID", sessionID))
	return nil
}

// ForgotPassword issues a reset token for email and mails a link built from
// baseURL. Only the token's digest is stored. If the mail can't be sent
// the token is withdrawn again, so no usable token exists that its owner
// never received.
func (s *AuthService) ForgotPassword(ctx context.Context, email, baseURL string) error {
	email = normalizeEmail(email)
	if email == "" {
		return apperror.ValidationFailed("email", "Please provide your email")
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if isNotFound(err) {
			return apperror.NotFoundMessage("There is no user with that email address")
		}
		return fmt.Errorf("service/auth: looking up user: %w", err)
	}

	token, err := s.resets.Issue()
	if err != nil {
		return fmt.Errorf("service/auth: issuing reset token: %w", err)
	}
	expires := token.ExpiresAt
	user.PasswordResetToken = token.Hash
	user.PasswordResetExpires = &expires
	if err := s.users.UpdateUser(ctx, user); err != nil {
		return fmt.Errorf("service/auth: storing reset token: %w", err)
	}

	resetURL := strings.TrimRight(baseURL, "/") + "/api/v1/users/resetPassword/" + token.Raw
	msg := mail.PasswordReset(user.Email, resetURL, s.resets.TTL())

	if err := s.mailer.Send(ctx, msg); err != nil {
		user.ClearPasswordReset()
		if uerr := s.users.UpdateUser(ctx, user); uerr != nil {
			s.logger.Error("failed to withdraw reset token",
				slog.String("userID", user.ID),
				slog.String("error", uerr.Error()),
			)
		}
		s.logger.Error("failed to send reset email",
			slog.String("userID", user.ID),
			slog.String("error", err.Error()),
		)
		return apperror.Internal(msgMailFailed, err)
	}

	s.logger.Info("password reset issued", slog.String("userID", user.ID))
	return nil
}

// ResetPassword consumes a reset token and sets a new password. The token
// is cleared in the same write as the new hash, so it works only once, and
// every existing session of the user is revoked.
func (s *AuthService) ResetPassword(ctx context.Context, rawToken, password, confirm string) error {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return apperror.ValidationFailed("token", msgBadResetToken)
	}

	user, err := s.users.GetUserByResetToken(ctx, auth.HashResetToken(rawToken))
	if err != nil {
		if isNotFound(err) {
			return apperror.ValidationFailed("token", msgBadResetToken)
		}
		return fmt.Errorf("service/auth: looking up reset token: %w", err)
	}
	if !auth.CheckResetToken(rawToken, user.PasswordResetToken, user.PasswordResetExpires, s.now()) {
		return apperror.ValidationFailed("token", msgBadResetToken)
	}

	if err := checkNewPassword(password, confirm); err != nil {
		return err
	}
	if err := s.setPassword(ctx, user, password); err != nil {
		return err
	}

	s.logger.Info("password reset consumed", slog.String("userID", user.ID))
	return nil
}

// UpdatePassword changes the password of a logged-in user after checking the
// current one. All sessions are revoked and a fresh one is opened for the
// caller, so only this client stays logged in.
func (s *AuthService) UpdatePassword(ctx context.Context, userID, current, password, confirm string, meta SessionMeta) (*LoginResult, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return nil, apperror.Unauthorized("Unauthorized: User not found")
		}
		return nil, fmt.Errorf("service/auth: looking up user: %w", err)
	}

	if err := s.passwords.Verify(user.PasswordHash, current); err != nil {
		return nil, apperror.Unauthorized("Your current password is wrong")
	}
	if err := checkNewPassword(password, confirm); err != nil {
		return nil, err
	}
	if err := s.setPassword(ctx, user, password); err != nil {
		return nil, err
	}

	s.logger.Info("password updated", slog.String("userID", user.ID))
	return s.openSession(ctx, user, meta)
}

// LoginOrRegisterGitHub signs in the account linked to a GitHub identity.
// On first sign-in the identity is linked to the existing account with the
// same email, or a new passwordless account is created.
func (s *AuthService) LoginOrRegisterGitHub(ctx context.Context, ident *auth.GitHubIdentity, meta SessionMeta) (*LoginResult, error) {
	if ident == nil || ident.ID == 0 {
		return nil, fmt.Errorf("service/auth: GitHub identity must not be empty")
	}

	user, err := s.users.GetUserByGitHubID(ctx, ident.ID)
	switch {
	case err == nil:
	case isNotFound(err):
		user, err = s.linkOrCreateGitHubUser(ctx, ident)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("service/auth: looking up github user: %w", err)
	}

	res, err := s.openSession(ctx, user, meta)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user authenticated via GitHub",
		slog.String("userID", user.ID),
		slog.String("login", ident.Login),
	)
	return res, nil
}

func (s *AuthService) linkOrCreateGitHubUser(ctx context.Context, ident *auth.GitHubIdentity) (*model.User, error) {
	email := normalizeEmail(ident.Email)
	if err := s.checkEmail(email); err != nil {
		return nil, err
	}
	ghID := ident.ID

	user, err := s.users.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		user.GitHubID = &ghID
		if err := s.users.UpdateUser(ctx, user); err != nil {
			return nil, fmt.Errorf("service/auth: linking github account: %w", err)
		}
		return user, nil
	case !isNotFound(err):
		return nil, fmt.Errorf("service/auth: looking up user by email: %w", err)
	}

	first, last := ident.FirstLast()
	role := model.RoleUser
	if slices.Contains(s.cfg.AdminEmails, email) {
		role = model.RoleAdmin
	}
	user = &model.User{
		FirstName: first,
		LastName:  last,
		Email:     email,
		Role:      role,
		GitHubID:  &ghID,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("service/auth: creating github user: %w", err)
	}
	s.logger.Info("user signed up via GitHub", slog.String("userID", user.ID))
	return user, nil
}

// GetUserByID returns an active user.
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, apperror.ValidationFailed("id", "user ID is required")
	}
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", id, err)
	}
	return user, nil
}

// ListUsers returns active users, oldest first.
func (s *AuthService) ListUsers(ctx context.Context, limit, offset int) ([]model.User, error) {
	users, err := s.users.ListUsers(ctx, clampList(limit, offset))
	if err != nil {
		return nil, fmt.Errorf("service/auth: listing users: %w", err)
	}
	return users, nil
}

// SetRole changes a user's role. Admins cannot demote themselves, which
// would otherwise let the last admin lock everyone out of administration.
func (s *AuthService) SetRole(ctx context.Context, adminID, userID string, role model.Role) (*model.User, error) {
	if !role.Valid() {
		return nil, apperror.ValidationFailed("role", fmt.Sprintf("%q is not a valid role", role))
	}
	if adminID == userID && role != model.RoleAdmin {
		return nil, apperror.Forbidden("You cannot remove your own admin role")
	}

	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	user.Role = role
	if err := s.users.UpdateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: updating role: %w", err)
	}

	s.logger.Info("user role changed",
		slog.String("userID", user.ID),
		slog.String("role", string(role)),
		slog.String("by", adminID),
	)
	return user, nil
}

// Deactivate hides a user from every lookup and revokes their sessions.
func (s *AuthService) Deactivate(ctx context.Context, adminID, userID string) error {
	if adminID == userID {
		return apperror.Forbidden("You cannot deactivate your own account")
	}

	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	user.Active = false
	if err := s.users.UpdateUser(ctx, user); err != nil {
		return fmt.Errorf("service/auth: deactivating user: %w", err)
	}
	if err := s.sessions.DeleteUserSessions(ctx, user.ID); err != nil {
		return fmt.Errorf("service/auth: revoking sessions: %w", err)
	}

	s.logger.Info("user deactivated", slog.String("userID", user.ID), slog.String("by", adminID))
	return nil
}

// PurgeExpiredSessions removes sessions past their expiry.
func (s *AuthService) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	n, err := s.sessions.DeleteExpiredSessions(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("service/auth: purging sessions: %w", err)
	}
	return n, nil
}

// openSession stores a new session for user and signs a token bound to it.
func (s *AuthService) openSession(ctx context.Context, user *model.User, meta SessionMeta) (*LoginResult, error) {
	now := s.now()
	session := &model.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		UserAgent: meta.UserAgent,
		IP:        meta.IP,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.SessionTTL),
	}
	if err := s.sessions.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("service/auth: creating session: %w", err)
	}

	token, err := s.tokens.Generate(user.ID, session.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}
	return &LoginResult{User: user, Session: session, Token: token}, nil
}

// setPassword stores a new hash, stamps the change one second in the past
// (so a token issued in the same second as the change stays valid), clears
// any pending reset and revokes every session of the user.
func (s *AuthService) setPassword(ctx context.Context, user *model.User, password string) error {
	hash, err := s.passwords.Hash(password)
	if err != nil {
		return fmt.Errorf("service/auth: hashing password: %w", err)
	}
	changed := s.now().Add(-time.Second).UTC()
	user.PasswordHash = hash
	user.PasswordChangedAt = &changed
	user.ClearPasswordReset()

	if err := s.users.UpdateUser(ctx, user); err != nil {
		return fmt.Errorf("service/auth: saving password: %w", err)
	}
	if err := s.sessions.DeleteUserSessions(ctx, user.ID); err != nil {
		return fmt.Errorf("service/auth: revoking sessions: %w", err)
	}
	return nil
}

func (s *AuthService) checkEmail(email string) error {
	if email == "" {
		return apperror.ValidationFailed("email", "Please provide your email")
	}
	if err := s.validate.Var(email, "email"); err != nil {
		return apperror.ValidationFailed("email", fmt.Sprintf("%s is not a valid email address!", email))
	}
	return nil
}

func checkNewPassword(password, confirm string) error {
	switch {
	case password == "":
		return apperror.ValidationFailed("password", "Please provide your password")
	case utf8.RuneCountInString(password) < MinPasswordLength:
		return apperror.ValidationFailed("password",
			fmt.Sprintf("Password must be at least %d characters", MinPasswordLength))
	case len(password) > maxPasswordBytes:
		return apperror.ValidationFailed("password",
			fmt.Sprintf("Password must be at most %d bytes", maxPasswordBytes))
	case confirm == "":
		return apperror.ValidationFailed("passwordConfirm", "Please confirm your password")
	case confirm != password:
		return apperror.ValidationFailed("passwordConfirm", "Passwords do not match")
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func isNotFound(err error) bool {
	return errors.Is(err, apperror.ErrNotFound)
}
