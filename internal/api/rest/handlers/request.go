package handlers

import (
	"net/http"

	"github.com/davidmoltin/procurement-workflows/internal/api/rest/middleware"
	"github.com/davidmoltin/procurement-workflows/internal/models"
	"github.com/davidmoltin/procurement-workflows/internal/services"
	"github.com/davidmoltin/procurement-workflows/pkg/logger"
)

// RequestHandler handles purchase request CRUD endpoints
type RequestHandler struct {
	logger   *logger.Logger
	workflow *services.WorkflowService
}

// NewRequestHandler creates a new request handler
func NewRequestHandler(log *logger.Logger, workflow *services.WorkflowService) *RequestHandler {
	return &RequestHandler{
		logger:   log,
		workflow: workflow,
	}
}

// CreateRequest handles POST /api/v1/requests
func (h *RequestHandler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.GetActor(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req models.CreatePurchaseRequestRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	created, err := h.workflow.Submit(r.Context(), actor, &req)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusCreated, created)
}

// ListRequests handles GET /api/v1/requests
func (h *RequestHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.GetActor(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var status *models.RequestStatus
	if s := r.URL.Query().Get("status"); s != "" {
		st := models.RequestStatus(s)
		status = &st
	}

	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid limit")
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid offset")
		return
	}

	list, err := h.workflow.List(r.Context(), actor, status, limit, offset)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, list)
}

// GetRequest handles GET /api/v1/requests/{id}
func (h *RequestHandler) GetRequest(w http.ResponseWriter, r *http.Request) {
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

	req, err := h.workflow.Get(r.Context(), actor, id)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, req)
}

// UpdateRequest handles PUT /api/v1/requests/{id}
func (h *RequestHandler) UpdateRequest(w http.ResponseWriter, r *http.Request) {
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

	var input models.UpdatePurchaseRequestRequest
	if err := decodeJSON(r, &input); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	updated, err := h.workflow.Update(r.Context(), actor, id, &input)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, updated)
}

// DeleteRequest handles DELETE /api/v1/requests/{id}
func (h *RequestHandler) DeleteRequest(w http.ResponseWriter, r *http.Request) {
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

	if err := h.workflow.Delete(r.Context(), actor, id); err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
