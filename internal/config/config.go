// Package config loads the server configuration.
//
// Sources are layered, later ones winning:
//
//  1. compiled defaults (Default)
//  2. an optional YAML file
//  3. environment variables prefixed with BLOG_
//
// Environment keys are matched against the known config keys, so
// BLOG_JWT_SECRET sets jwt.secret and BLOG_SERVER_PUBLIC_URL sets
// server.publicURL. List values are comma separated.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"os"
	"reflect"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix prefixes every environment variable the loader reads.
	EnvPrefix = "BLOG_"
	// PathEnv names the YAML file when no path is passed to Load.
	PathEnv = EnvPrefix + "CONFIG"

	minSecretLength = 16
)

// Session store backends.
const (
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

type Config struct {
	// Env is "development" or "production". Development relaxes HSTS and
	// the Secure cookie flag and mails reset links to the log.
	Env       string    `koanf:"env"`
	Log       Log       `koanf:"log"`
	Server    Server    `koanf:"server"`
	Database  Database  `koanf:"database"`
	Session   Session   `koanf:"session"`
	Cookie    Cookie    `koanf:"cookie"`
	Redis     Redis     `koanf:"redis"`
	JWT       JWT       `koanf:"jwt"`
	Auth      Auth      `koanf:"auth"`
	RateLimit RateLimit `koanf:"rateLimit"`
	Email     Email     `koanf:"email"`
	GitHub    GitHub    `koanf:"github"`
}

type Log struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // text or json
}

type Server struct {
	Port int `koanf:"port"`
	// PublicURL is the externally visible base URL, used in reset links.
	PublicURL       string        `koanf:"publicURL"`
	ReadTimeout     time.Duration `koanf:"readTimeout"`
	WriteTimeout    time.Duration `koanf:"writeTimeout"`
	IdleTimeout     time.Duration `koanf:"idleTimeout"`
	ShutdownTimeout time.Duration `koanf:"shutdownTimeout"`
	// AllowedOrigins for CORS. Empty allows any origin, which production
	// rejects.
	AllowedOrigins []string `koanf:"allowedOrigins"`
}

type Database struct {
	Path string `koanf:"path"`
}

type Session struct {
	Store           string        `koanf:"store"` // sqlite or redis
	TTL             time.Duration `koanf:"ttl"`
	CleanupInterval time.Duration `koanf:"cleanupInterval"`
}

// Cookie tunes the sessionData cookie. It is Secure unless Insecure is set,
// which is only for serving plain HTTP on a non-localhost address during
// development. Production rejects it.
type Cookie struct {
	Insecure bool `koanf:"insecure"`
}

type Redis struct {
	URL string `koanf:"url"`
}

type JWT struct {
	Secret string        `koanf:"secret"`
	TTL    time.Duration `koanf:"ttl"`
}

type Auth struct {
	BcryptCost    int           `koanf:"bcryptCost"`
	ResetTokenTTL time.Duration `koanf:"resetTokenTTL"`
	AdminEmails   []string      `koanf:"adminEmails"`
}

type RateLimit struct {
	Requests int           `koanf:"requests"`
	Window   time.Duration `koanf:"window"`
}

// Email configures SMTP delivery. An empty Host selects the log sender.
type Email struct {
	Host     string        `koanf:"host"`
	Port     int           `koanf:"port"`
	Username string        `koanf:"username"`
	Password string        `koanf:"password"`
	From     string        `koanf:"from"`
	Timeout  time.Duration `koanf:"timeout"`
}

// GitHub enables GitHub sign-in when ClientID and ClientSecret are set.
type GitHub struct {
	ClientID     string `koanf:"clientID"`
	ClientSecret string `koanf:"clientSecret"`
	CallbackURL  string `koanf:"callbackURL"`
}

// Default returns the compiled-in configuration. It is not valid on its own:
// a JWT secret must still be supplied.
func Default() *Config {
	return &Config{
		Env: "development",
		Log: Log{Level: "info", Format: "text"},
		Server: Server{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: Database{Path: "data/blog.db"},
		Session: Session{
			Store:           StoreSQLite,
			TTL:             10 * time.Hour,
			CleanupInterval: 15 * time.Minute,
		},
		JWT:       JWT{TTL: time.Hour},
		Auth:      Auth{BcryptCost: 12, ResetTokenTTL: 10 * time.Minute},
		RateLimit: RateLimit{Requests: 100, Window: 24 * time.Hour},
		Email: Email{
			Port:    587,
			From:    "Blog <no-reply@blog.local>",
			Timeout: 10 * time.Second,
		},
	}
}

// Load reads the configuration from path (or $BLOG_CONFIG when path is empty)
// and the process environment, then validates it.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(PathEnv)
	}
	return load(path, os.Environ)
}

func load(path string, environ func() []string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	known := keyTree(reflect.TypeOf(Config{}))
	if err := k.Load(env.Provider(".", env.Opt{
		Prefix:      EnvPrefix,
		EnvironFunc: environ,
		TransformFunc: func(key, value string) (string, any) {
			key = strings.TrimPrefix(key, EnvPrefix)
			if key == "CONFIG" {
				return "", nil
			}
			return canonicalizeEnvKey(key, known), value
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("config: reading environment: %w", err)
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           cfg,
			TagName:          "koanf",
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
			MatchName: func(mapKey, fieldName string) bool {
				return strings.EqualFold(mapKey, fieldName)
			},
		},
	}); err != nil {
		return nil, fmt.Errorf("config: decoding: %w", err)
	}

	cfg.Auth.AdminEmails = trimAll(cfg.Auth.AdminEmails)
	cfg.Server.AllowedOrigins = trimAll(cfg.Server.AllowedOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every problem at once, joined.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("config: "+format, args...))
	}

	if c.Env != "development" && c.Env != "production" {
		add("env must be development or production, got %q", c.Env)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		add("log.level: %v", err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		add("log.format must be text or json, got %q", c.Log.Format)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		add("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		add("database.path is required")
	}
	if len(c.JWT.Secret) < minSecretLength {
		add("jwt.secret must be at least %d characters (set %sJWT_SECRET)", minSecretLength, EnvPrefix)
	}

	positive := map[string]time.Duration{
		"jwt.ttl":                 c.JWT.TTL,
		"session.ttl":             c.Session.TTL,
		"session.cleanupInterval": c.Session.CleanupInterval,
		"auth.resetTokenTTL":      c.Auth.ResetTokenTTL,
		"rateLimit.window":        c.RateLimit.Window,
		"server.shutdownTimeout":  c.Server.ShutdownTimeout,
	}
	names := make([]string, 0, len(positive))
	for name := range positive {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if positive[name] <= 0 {
			add("%s must be positive", name)
		}
	}
	if c.RateLimit.Requests <= 0 {
		add("rateLimit.requests must be positive")
	}

	switch c.Session.Store {
	case StoreSQLite:
	case StoreRedis:
		if c.Redis.URL == "" {
			add("redis.url is required when session.store is redis")
		}
	default:
		add("session.store must be %s or %s, got %q", StoreSQLite, StoreRedis, c.Session.Store)
	}

	if c.Email.Host != "" {
		if c.Email.Port <= 0 {
			add("email.port must be positive")
		}
		if _, err := mail.ParseAddress(c.Email.From); err != nil {
			add("email.from %q is not a valid address", c.Email.From)
		}
	}
	if c.IsProduction() {
		if len(c.Server.AllowedOrigins) == 0 {
			add("server.allowedOrigins must list the allowed origins in production")
		}
		if c.Cookie.Insecure {
			add("cookie.insecure must not be set in production")
		}
	}
	if (c.GitHub.ClientID == "") != (c.GitHub.ClientSecret == "") {
		add("github.clientID and github.clientSecret must be set together")
	}

	return errors.Join(errs...)
}

// IsProduction reports whether Env is "production".
func (c *Config) IsProduction() bool { return c.Env == "production" }

// GitHubEnabled reports whether GitHub sign-in is configured.
func (c *Config) GitHubEnabled() bool { return c.GitHub.ClientID != "" && c.GitHub.ClientSecret != "" }

// SlogLevel parses Level.
func (l Log) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo, err
	}
	return lvl, nil
}

// keyTree maps the koanf tag names of t into a nested map mirroring the
// config layout. Leaves are nil.
func keyTree(t reflect.Type) map[string]any {
	tree := make(map[string]any, t.NumField())
	for i := range t.NumField() {
		f := t.Field(i)
		name := f.Tag.Get("koanf")
		if name == "" {
			continue
		}
		if f.Type.Kind() == reflect.Struct && f.Type != reflect.TypeOf(time.Duration(0)) {
			tree[name] = keyTree(f.Type)
		} else {
			tree[name] = nil
		}
	}
	return tree
}

// canonicalizeEnvKey turns an env key such as SERVER_PUBLIC_URL into a dotted
// config key such as server.publicURL. At each level it takes the shortest run
// of underscore-separated segments that names a known key; segments that
// match nothing are kept lowercased, one per level.
func canonicalizeEnvKey(raw string, known map[string]any) string {
	segments := strings.FieldsFunc(strings.ToLower(raw), func(r rune) bool { return r == '_' })
	out := make([]string, 0, len(segments))
	current := known

	for i := 0; i < len(segments); {
		matched, next, n := matchSegments(current, segments[i:])
		if n == 0 {
			out = append(out, segments[i])
			current = nil
			i++
			continue
		}
		out = append(out, matched)
		current = next
		i += n
	}
	return strings.Join(out, ".")
}

func matchSegments(current map[string]any, segments []string) (string, map[string]any, int) {
	if len(current) == 0 {
		return "", nil, 0
	}
	var joined strings.Builder
	for n, seg := range segments {
		joined.WriteString(seg)
		needle := joined.String()
		for key, value := range current {
			if normalizeToken(key) == needle {
				child, _ := value.(map[string]any)
				return key, child, n + 1
			}
		}
	}
	return "", nil, 0
}

func normalizeToken(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

func trimAll(in []string) []string {
	out := in[:0:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
