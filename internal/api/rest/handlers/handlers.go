package handlers

import (
	"net/http"

	"github.com/davidmoltin/procurement-workflows/internal/services"
	"github.com/davidmoltin/procurement-workflows/pkg/logger"
)

// Handlers aggregates all HTTP handlers
type Handlers struct {
	Health   *HealthHandler
	Request  *RequestHandler
	Approval *ApprovalHandler
	Document *DocumentHandler
	Auth     *AuthHandler
	// Events is optional; the live feed routes are only mounted when set
	Events EventStream
}

// EventStream serves the live request event feed
type EventStream interface {
	HandleWebSocket(w http.ResponseWriter, r *http.Request)
	HandleStats(w http.ResponseWriter, r *http.Request)
}

// Services holds the service layer the handlers delegate to
type Services struct {
	Workflow  *services.WorkflowService
	Documents *services.DocumentService
	Auth      *services.AuthService
}

// NewHandlers creates a new handlers instance
func NewHandlers(
	log *logger.Logger,
	svc Services,
	maxUpload int64,
	healthChecks map[string]HealthChecker,
	version string,
) *Handlers {
	return &Handlers{
		Health:   NewHealthHandler(log, healthChecks, version),
		Request:  NewRequestHandler(log, svc.Workflow),
		Approval: NewApprovalHandler(log, svc.Workflow),
		Document: NewDocumentHandler(log, svc.Documents, maxUpload),
		Auth:     NewAuthHandler(log, svc.Auth),
	}
}
