package middleware

import (
	"net/http"

	"github.com/davidmoltin/procurement-workflows/internal/models"
	"github.com/davidmoltin/procurement-workflows/pkg/logger"
	"go.uber.org/zap"
)

// RequireAnyRole is a middleware that checks if the caller holds one of the
// specified roles. It is a coarse route gate; the workflow service still
// applies the full capability table.
func RequireAnyRole(roles []models.Role, log *logger.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := GetActor(r.Context())
			if !ok {
				log.Warn("No actor found in context for role check")
				respondError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			if !hasRole(roles, actor.Role) {
				log.Warn("Role check failed - no matching roles",
					zap.String("user_id", actor.UserID.String()),
					zap.String("role", string(actor.Role)),
					zap.String("path", r.URL.Path),
				)
				respondError(w, http.StatusForbidden, "Insufficient privileges")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole is a middleware that checks if the caller holds a specific role
func RequireRole(role models.Role, log *logger.Logger) func(next http.Handler) http.Handler {
	return RequireAnyRole([]models.Role{role}, log)
}

func hasRole(allowed []models.Role, role models.Role) bool {
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}
