package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/davidmoltin/procurement-workflows/internal/models"
	"github.com/davidmoltin/procurement-workflows/pkg/auth"
	"github.com/davidmoltin/procurement-workflows/pkg/logger"
	"github.com/davidmoltin/procurement-workflows/pkg/metrics"
	"go.uber.org/zap"
)

type contextKey string

const (
	claimsKey contextKey = "claims"
	actorKey  contextKey = "actor"
)

// TokenValidator verifies bearer tokens
type TokenValidator interface {
	ValidateAccessToken(tokenString string) (*auth.JWTClaims, error)
}

// JWTAuth is a middleware that validates JWT tokens and puts the caller's
// identity and role on the request context
func JWTAuth(validator TokenValidator, m *metrics.Metrics, log *logger.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Extract token from Authorization header
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				m.RecordAuth("jwt", "missing")
				respondError(w, http.StatusUnauthorized, "Missing authorization header")
				return
			}

			// Check Bearer token format
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				m.RecordAuth("jwt", "malformed")
				respondError(w, http.StatusUnauthorized, "Invalid authorization header format")
				return
			}

			claims, err := validator.ValidateAccessToken(parts[1])
			if err != nil {
				m.RecordAuth("jwt", "invalid")
				log.Warn("Invalid JWT token", zap.Error(err))
				respondError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}

			role := models.Role(claims.Role)
			if !role.Valid() {
				m.RecordAuth("jwt", "invalid")
				log.Warn("JWT carries unknown role", zap.String("role", claims.Role))
				respondError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}

			m.RecordAuth("jwt", "success")
			ctx := context.WithValue(r.Context(), claimsKey, claims)
			ctx = WithActor(ctx, models.Actor{UserID: claims.UserID, Role: role})

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithActor stores the caller identity on ctx
func WithActor(ctx context.Context, actor models.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// GetActor extracts the caller identity from request context
func GetActor(ctx context.Context) (models.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(models.Actor)
	return actor, ok
}

// TokenFromQuery copies a token from the named query parameter into the
// Authorization header when the header is absent. Browsers cannot set
// headers on WebSocket upgrades.
func TokenFromQuery(param string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				if token := r.URL.Query().Get(param); token != "" {
					r.Header.Set("Authorization", "Bearer "+token)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetClaims extracts JWT claims from request context
func GetClaims(ctx context.Context) *auth.JWTClaims {
	if claims, ok := ctx.Value(claimsKey).(*auth.JWTClaims); ok {
		return claims
	}
	return nil
}

// respondError sends an error response with proper JSON encoding
func respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := map[string]string{"error": message}
	json.NewEncoder(w).Encode(response)
}
