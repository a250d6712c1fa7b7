package middleware

import (
	"net/http"

	"github.com/rs/cors"
	"github.com/unrolled/secure"
)

// SecurityHeaders sets the usual hardening headers on every response:
// no framing, no MIME sniffing, no referrer, a deny-all CSP (this server only
// speaks JSON) and HSTS on HTTPS requests.
//
// In development HSTS is skipped so a browser that once visited over a TLS
// proxy doesn't pin localhost to HTTPS.
func SecurityHeaders(development bool) func(http.Handler) http.Handler {
	sec := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "no-referrer",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		STSSeconds:            31536000,
		STSIncludeSubdomains:  true,
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
		IsDevelopment:         development,
	})
	return sec.Handler
}

// CORS allows cross-origin calls from allowedOrigins. Credentials are allowed
// because authentication rides on a cookie. An empty list allows any origin.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders:   []string{"Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           600,
	})
	return c.Handler
}
