// Package server is the composition root: it opens the stores, builds the
// services and handlers, mounts the routes and owns the process lifecycle.
//
// LIFECYCLE:
//
//	New      → open SQLite (+ Redis), wire everything, build the router
//	Run      → start the session janitor and serve until ctx is cancelled
//	Shutdown → drain HTTP, stop the janitor, close Redis and SQLite
//
// main owns signal handling; Run only watches its context, so tests can drive
// a full server without sending signals.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	goredis "github.com/redis/go-redis/v9"

	"github.com/sakif/blog-backend/internal/auth"
	"github.com/sakif/blog-backend/internal/config"
	"github.com/sakif/blog-backend/internal/handler"
	"github.com/sakif/blog-backend/internal/mail"
	"github.com/sakif/blog-backend/internal/middleware"
	"github.com/sakif/blog-backend/internal/repository"
	redisRepo "github.com/sakif/blog-backend/internal/repository/redis"
	sqliteRepo "github.com/sakif/blog-backend/internal/repository/sqlite"
	"github.com/sakif/blog-backend/internal/service"
)

// Server holds every long-lived resource of the process.
type Server struct {
	cfg    *config.Config
	logger *slog.Logger

	db       *sqliteRepo.DB
	rdb      *goredis.Client // nil unless session.store is redis
	sessions repository.SessionStore
	auth     *service.AuthService

	router *chi.Mux
	http   *http.Server

	mu          sync.Mutex
	closed      bool
	stopJanitor context.CancelFunc
	janitorWG   sync.WaitGroup
}

// New opens the stores and wires the application. On error everything
// opened so far is closed again.
//
// DEPENDENCY CHAIN:
//
//	sqlite.DB ─┬→ UserRepository ─┬→ AuthService → AuthHandler, UserHandler
//	           │                  └→ auth.Gate (user lookups)
//	           └→ BlogRepository  →  BlogService → BlogHandler
//	SessionStore (sqlite or redis) → AuthService, auth.Gate
func New(ctx context.Context, cfg *config.Config, mailer mail.Sender, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(ctx, cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("server: opening database: %w", err)
	}

	s := &Server{cfg: cfg, logger: logger, db: db, sessions: db}

	if cfg.Session.Store == config.StoreRedis {
		rdb, err := redisRepo.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("server: connecting to redis: %w", err)
		}
		s.rdb = rdb
		s.sessions = redisRepo.NewSessionStore(rdb)
	}

	if err := s.setupRoutes(mailer); err != nil {
		s.close()
		return nil, fmt.Errorf("server: setting up routes: %w", err)
	}

	s.http = &http.Server{
		Addr:         net.JoinHostPort("", strconv.Itoa(cfg.Server.Port)),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes builds services and handlers and mounts them.
//
// ROUTES:
//
//	POST   /signup, /login           rate limited (one shared budget per IP)
//	POST   /logout
//	GET    /auth/github/login, /auth/github/callback   (when configured)
//	       /api/v1/users/...         password reset, me, admin
//	       /api/v1/blogs/...         all behind the auth gate
//	GET    /healthz
//
// MIDDLEWARE ORDER MATTERS:
// RequestID and RealIP come first so the logger and the rate limiter see the
// id and the real client address. Recoverer sits inside Logger so a panic is
// logged as the 500 it becomes.
func (s *Server) setupRoutes(mailer mail.Sender) error {
	cfg := s.cfg

	tokens, err := auth.NewTokenService(cfg.JWT.Secret, cfg.JWT.TTL)
	if err != nil {
		return err
	}
	passwords := auth.NewPasswordServiceWithCost(cfg.Auth.BcryptCost)
	resets := auth.NewResetTokenGenerator(cfg.Auth.ResetTokenTTL)

	s.auth = service.NewAuthService(s.db, s.sessions, tokens, passwords, resets, mailer,
		service.AuthConfig{SessionTTL: cfg.Session.TTL, AdminEmails: cfg.Auth.AdminEmails},
		s.logger,
	)
	blogService := service.NewBlogService(s.db, s.logger)
	gate := auth.NewGate(tokens, s.sessions, s.db, s.logger)

	var github *auth.GitHubProvider
	if cfg.GitHubEnabled() {
		callback := cfg.GitHub.CallbackURL
		if callback == "" && cfg.Server.PublicURL != "" {
			callback = strings.TrimRight(cfg.Server.PublicURL, "/") + "/auth/github/callback"
		}
		github = auth.NewGitHubProvider(cfg.GitHub.ClientID, cfg.GitHub.ClientSecret, callback)
	}

	authHandler := handler.NewAuthHandler(s.auth, gate, github, handler.AuthHandlerConfig{
		Cookie:    auth.CookieOptions{Secure: !cfg.Cookie.Insecure, MaxAge: tokens.TTL()},
		PublicURL: cfg.Server.PublicURL,
	}, s.logger)
	userHandler := handler.NewUserHandler(s.auth, s.logger)
	blogHandler := handler.NewBlogHandler(blogService, s.logger)

	checks := map[string]handler.HealthCheck{"database": s.db.Ping}
	if s.rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return s.rdb.Ping(ctx).Err() }
	}
	healthHandler := handler.NewHealthHandler(checks, s.logger)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.RequestIDHeader)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.SecurityHeaders(!cfg.IsProduction()))
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins))

	r.NotFound(handler.NotFound)
	r.MethodNotAllowed(handler.MethodNotAllowed)

	r.Get("/healthz", healthHandler.HandleHealth)

	limit := middleware.RateLimit(cfg.RateLimit.Requests, cfg.RateLimit.Window, s.logger)
	r.With(limit).Post("/signup", authHandler.HandleSignup)
	r.With(limit).Post("/login", authHandler.HandleLogin)
	r.Post("/logout", authHandler.HandleLogout)

	r.Get("/auth/github/login", authHandler.HandleGitHubLogin)
	r.Get("/auth/github/callback", authHandler.HandleGitHubCallback)

	r.Route("/api/v1/users", func(r chi.Router) {
		r.Post("/forgotPassword", authHandler.HandleForgotPassword)
		r.Patch("/resetPassword/{token}", authHandler.HandleResetPassword)

		r.Group(func(r chi.Router) {
			r.Use(gate.RequireAuth)
			r.Get("/me", authHandler.HandleMe)
			r.Patch("/updateMyPassword", authHandler.HandleUpdateMyPassword)

			r.Group(func(r chi.Router) {
				r.Use(auth.RestrictTo(auth.AllowAdmin))
				r.Get("/", userHandler.HandleList)
				r.Patch("/{id}/role", userHandler.HandleSetRole)
				r.Delete("/{id}", userHandler.HandleDeactivate)
			})
		})
	})

	r.Route("/api/v1/blogs", func(r chi.Router) {
		r.Use(gate.RequireAuth)
		r.Get("/", blogHandler.HandleList)
		r.Post("/", blogHandler.HandleCreate)
		r.Get("/user/{userId}", blogHandler.HandleListByUser)
		r.Get("/{id}", blogHandler.HandleGet)
		r.Patch("/{id}", blogHandler.HandleUpdate)
		r.Delete("/{id}", blogHandler.HandleDelete)
		r.Post("/{id}/like", blogHandler.HandleToggleLike)
	})

	s.router = r
	return nil
}

// Run starts the janitor and serves HTTP until ctx is cancelled, then shuts
// down gracefully within the configured timeout.
func (s *Server) Run(ctx context.Context) error {
	s.startJanitor(ctx)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.String("addr", s.http.Addr),
			slog.String("env", s.cfg.Env),
			slog.String("database", s.cfg.Database.Path),
			slog.String("sessions", s.cfg.Session.Store),
		)
		serverErrors <- s.http.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		s.close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: listening: %w", err)

	case <-ctx.Done():
		s.logger.Info("shutdown requested")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

// Shutdown drains in-flight requests, then releases every resource. It is
// safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.http != nil {
		if serr := s.http.Shutdown(ctx); serr != nil {
			err = fmt.Errorf("server: graceful shutdown: %w", serr)
		}
	}
	s.close()
	if err == nil {
		s.logger.Info("server stopped gracefully")
	}
	return err
}

// close stops the janitor and closes the stores, once.
func (s *Server) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	stop := s.stopJanitor
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
	s.janitorWG.Wait()

	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil {
			s.logger.Warn("closing redis", slog.String("error", err.Error()))
		}
	}
	if err := s.db.Close(); err != nil {
		s.logger.Warn("closing database", slog.String("error", err.Error()))
	}
}

// startJanitor deletes expired sessions every session.cleanupInterval until
// ctx is cancelled or the server closes.
func (s *Server) startJanitor(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.stopJanitor != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.stopJanitor = cancel

	interval := s.cfg.Session.CleanupInterval
	s.janitorWG.Add(1)
	go func() {
		defer s.janitorWG.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.purgeSessions(ctx)
			}
		}
	}()
}

func (s *Server) purgeSessions(ctx context.Context) {
	n, err := s.auth.PurgeExpiredSessions(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("session cleanup failed", slog.String("error", err.Error()))
		}
		return
	}
	if n > 0 {
		s.logger.Info("expired sessions removed", slog.Int64("count", n))
	}
}
