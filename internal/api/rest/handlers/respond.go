package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/davidmoltin/procurement-workflows/internal/models"
	"github.com/davidmoltin/procurement-workflows/internal/services"
	"github.com/davidmoltin/procurement-workflows/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error   string   `json:"error"`
	Field   string   `json:"field,omitempty"`
	Details []string `json:"details,omitempty"`

	// Set on 409 so clients can resynchronize without a reload
	Status         models.RequestStatus `json:"status,omitempty"`
	Level1Approved *bool                `json:"level_1_approved,omitempty"`
	Level2Approved *bool                `json:"level_2_approved,omitempty"`
	Version        int                  `json:"version,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Error: message})
}

// respondServiceError maps service errors onto HTTP statuses. Unknown errors
// are logged and reported as 500 without leaking their text.
func respondServiceError(w http.ResponseWriter, log *logger.Logger, err error) {
	var (
		validationErr *services.ValidationError
		permissionErr *services.PermissionError
		conflictErr   *services.StateConflictError
		maxBytesErr   *http.MaxBytesError
	)

	switch {
	case errors.As(err, &validationErr):
		respondJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   validationErr.Error(),
			Field:   validationErr.Field,
			Details: validationErr.Details,
		})
	case errors.As(err, &permissionErr):
		respondError(w, http.StatusForbidden, permissionErr.Error())
	case errors.As(err, &conflictErr):
		respondJSON(w, http.StatusConflict, ErrorResponse{
			Error:          conflictErr.Error(),
			Status:         conflictErr.Status,
			Level1Approved: boolPtr(conflictErr.Level1Approved),
			Level2Approved: boolPtr(conflictErr.Level2Approved),
			Version:        conflictErr.Version,
		})
	case errors.As(err, &maxBytesErr):
		respondError(w, http.StatusRequestEntityTooLarge, "Request body too large")
	case errors.Is(err, services.ErrNotFound),
		errors.Is(err, services.ErrDocumentNotFound),
		errors.Is(err, services.ErrUserNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrInvalidCredentials):
		respondError(w, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, services.ErrUserDisabled):
		respondError(w, http.StatusForbidden, "Account is disabled")
	case errors.Is(err, services.ErrUserExists):
		respondError(w, http.StatusConflict, "Username or email already registered")
	default:
		log.Error("Request failed", logger.Err(err))
		respondError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func boolPtr(b bool) *bool {
	return &b
}

// decodeJSON reads a JSON body into dst, rejecting unknown fields
func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func parseRequestID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "id"))
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
