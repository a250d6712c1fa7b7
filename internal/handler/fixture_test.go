package handler_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/blog-backend/internal/auth"
	"github.com/sakif/blog-backend/internal/handler"
	"github.com/sakif/blog-backend/internal/mail"
	"github.com/sakif/blog-backend/internal/repository/sqlite"
	"github.com/sakif/blog-backend/internal/service"
)

const adminEmail = "admin@example.com"

// captureMailer records messages instead of sending them.
type captureMailer struct {
	mu   sync.Mutex
	msgs []mail.Message
	err  error
}

func (m *captureMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.msgs = append(m.msgs, msg)
	return nil
}

func (m *captureMailer) last(t *testing.T) mail.Message {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.msgs, "no mail was sent")
	return m.msgs[len(m.msgs)-1]
}

// testAPI wires the real services over an in-memory database and mounts the
// handlers on a chi router laid out like the server's.
type testAPI struct {
	t      *testing.T
	router http.Handler
	db     *sqlite.DB
	mailer *captureMailer
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	db, err := sqlite.New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tokens, err := auth.NewTokenService("handler-test-secret-0123456789", time.Hour)
	require.NoError(t, err)
	mailer := &captureMailer{}

	authSvc := service.NewAuthService(db, db, tokens,
		auth.NewPasswordServiceWithCost(bcrypt.MinCost),
		auth.NewResetTokenGenerator(0),
		mailer,
		service.AuthConfig{AdminEmails: []string{adminEmail}},
		logger,
	)
	blogSvc := service.NewBlogService(db, logger)
	gate := auth.NewGate(tokens, db, db, logger)

	authH := handler.NewAuthHandler(authSvc, gate, nil, handler.AuthHandlerConfig{
		Cookie:    auth.CookieOptions{MaxAge: time.Hour},
		PublicURL: "http://blog.test/",
	}, logger)
	userH := handler.NewUserHandler(authSvc, logger)
	blogH := handler.NewBlogHandler(blogSvc, logger)

	r := chi.NewRouter()
	r.Post("/signup", authH.HandleSignup)
	r.Post("/login", authH.HandleLogin)
	r.Post("/logout", authH.HandleLogout)
	r.Get("/auth/github/login", authH.HandleGitHubLogin)
	r.Route("/api/v1/users", func(r chi.Router) {
		r.Post("/forgotPassword", authH.HandleForgotPassword)
		r.Patch("/resetPassword/{token}", authH.HandleResetPassword)
		r.Group(func(r chi.Router) {
			r.Use(gate.RequireAuth)
			r.Get("/me", authH.HandleMe)
			r.Patch("/updateMyPassword", authH.HandleUpdateMyPassword)
			r.Group(func(r chi.Router) {
				r.Use(auth.RestrictTo(auth.AllowAdmin))
				r.Get("/", userH.HandleList)
				r.Patch("/{id}/role", userH.HandleSetRole)
				r.Delete("/{id}", userH.HandleDeactivate)
			})
		})
	})
	r.Route("/api/v1/blogs", func(r chi.Router) {
		r.Use(gate.RequireAuth)
		r.Get("/", blogH.HandleList)
		r.Post("/", blogH.HandleCreate)
		r.Get("/user/{userId}", blogH.HandleListByUser)
		r.Get("/{id}", blogH.HandleGet)
		r.Patch("/{id}", blogH.HandleUpdate)
		r.Delete("/{id}", blogH.HandleDelete)
		r.Post("/{id}/like", blogH.HandleToggleLike)
	})

	return &testAPI{t: t, router: r, db: db, mailer: mailer}
}

// do sends a request with an optional JSON body and session cookie.
func (a *testAPI) do(method, path, body string, cookie *http.Cookie) *httptest.ResponseRecorder {
	a.t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	return rr
}

func (a *testAPI) signup(email, password string) {
	a.t.Helper()
	rr := a.do(http.MethodPost, "/signup", `{"firstName":"Ada","lastName":"Lovelace","email":"`+email+
		`","password":"`+password+`","passwordConfirm":"`+password+`"}`, nil)
	require.Equal(a.t, http.StatusOK, rr.Code, rr.Body.String())
}

func (a *testAPI) login(email, password string) *http.Cookie {
	a.t.Helper()
	rr := a.do(http.MethodPost, "/login", `{"email":"`+email+`","password":"`+password+`"}`, nil)
	require.Equal(a.t, http.StatusOK, rr.Code, rr.Body.String())
	c := sessionCookie(rr)
	require.NotNil(a.t, c, "login did not set the session cookie")
	return c
}

// account signs up and logs in, returning the session cookie and user id.
func (a *testAPI) account(email string) (*http.Cookie, string) {
	a.t.Helper()
	a.signup(email, "correct-horse")
	c := a.login(email, "correct-horse")
	bundle, err := auth.DecodeSessionBundle(c.Value)
	require.NoError(a.t, err)
	return c, bundle.UserID
}

func sessionCookie(rr *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == auth.SessionCookieName {
			return c
		}
	}
	return nil
}

var resetTokenRE = regexp.MustCompile(`resetPassword/([0-9a-f]+)`)

func resetTokenFrom(t *testing.T, msg mail.Message) string {
	t.Helper()
	m := resetTokenRE.FindStringSubmatch(msg.Body)
	require.Len(t, m, 2, "no reset link in %q", msg.Body)
	return m[1]
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v), rr.Body.String())
	return v
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field"`
}

type messageBody struct {
	Message string `json:"message"`
}
