package middleware

import (
	"net/http"
	"os"
)

// The API serves JSON and stored documents only, never pages or scripts
const defaultCSP = "default-src 'none'; frame-ancestors 'none'; sandbox"

// RequestSizeLimit rejects bodies over maxBytes. Declared lengths fail fast
// with 413; chunked bodies fail while the handler reads them.
func RequestSizeLimit(maxBytes int64) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				respondError(w, http.StatusRequestEntityTooLarge, "Request body too large")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// SecurityHeaders sets response headers for an API that streams
// user-uploaded proformas and receipts. CSP_POLICY overrides the policy.
func SecurityHeaders() func(next http.Handler) http.Handler {
	csp := defaultCSP
	if v := os.Getenv("CSP_POLICY"); v != "" {
		csp = v
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Content-Security-Policy", csp)
			h.Set("Referrer-Policy", "no-referrer")

			// request bodies and documents carry prices and vendor terms
			if r.Header.Get("Authorization") != "" {
				h.Set("Cache-Control", "no-store")
			}

			if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			next.ServeHTTP(w, r)
		})
	}
}
