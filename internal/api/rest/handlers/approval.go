package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/davidmoltin/procurement-workflows/internal/api/rest/middleware"
	"github.com/davidmoltin/procurement-workflows/internal/models"
	"github.com/davidmoltin/procurement-workflows/internal/services"
	"github.com/davidmoltin/procurement-workflows/pkg/logger"
	"github.com/google/uuid"
)

// ReviewRequest is the body of approve, reject, override and cancel calls.
// Level is optional; when omitted it is derived from the caller's role.
type ReviewRequest struct {
	Comments string                `json:"comments"`
	Level    *models.ApprovalLevel `json:"level,omitempty"`
}

// ApprovalHandler handles review and cancellation endpoints
type ApprovalHandler struct {
	logger   *logger.Logger
	workflow *services.WorkflowService
}

// NewApprovalHandler creates a new approval handler
func NewApprovalHandler(log *logger.Logger, workflow *services.WorkflowService) *ApprovalHandler {
	return &ApprovalHandler{
		logger:   log,
		workflow: workflow,
	}
}

type reviewFunc func(ctx context.Context, actor models.Actor, id uuid.UUID, body ReviewRequest) (*models.PurchaseRequest, error)

// Approve handles POST /api/v1/requests/{id}/approve
func (h *ApprovalHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, func(ctx context.Context, actor models.Actor, id uuid.UUID, body ReviewRequest) (*models.PurchaseRequest, error) {
		return h.workflow.Approve(ctx, actor, id, body.Level, body.Comments)
	})
}

// Reject handles POST /api/v1/requests/{id}/reject
func (h *ApprovalHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, func(ctx context.Context, actor models.Actor, id uuid.UUID, body ReviewRequest) (*models.PurchaseRequest, error) {
		return h.workflow.Reject(ctx, actor, id, body.Level, body.Comments)
	})
}

// OverrideApprove handles POST /api/v1/requests/{id}/override/approve
func (h *ApprovalHandler) OverrideApprove(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, func(ctx context.Context, actor models.Actor, id uuid.UUID, body ReviewRequest) (*models.PurchaseRequest, error) {
		return h.workflow.OverrideApprove(ctx, actor, id, body.Comments)
	})
}

// OverrideReject handles POST /api/v1/requests/{id}/override/reject
func (h *ApprovalHandler) OverrideReject(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, func(ctx context.Context, actor models.Actor, id uuid.UUID, body ReviewRequest) (*models.PurchaseRequest, error) {
		return h.workflow.OverrideReject(ctx, actor, id, body.Comments)
	})
}

// Cancel handles POST /api/v1/requests/{id}/cancel
func (h *ApprovalHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, func(ctx context.Context, actor models.Actor, id uuid.UUID, body ReviewRequest) (*models.PurchaseRequest, error) {
		return h.workflow.Cancel(ctx, actor, id, body.Comments)
	})
}

func (h *ApprovalHandler) handle(w http.ResponseWriter, r *http.Request, fn reviewFunc) {
	actor, ok := middleware.GetActor(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	id, err := parseRequestID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request ID")
		return
	}

	// an empty body falls through to the service's comments check
	var body ReviewRequest
	if err := decodeJSON(r, &body); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	updated, err := fn(r.Context(), actor, id, body)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, updated)
}
