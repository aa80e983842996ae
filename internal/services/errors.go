package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/davidmoltin/procurement-workflows/internal/models"
	"github.com/davidmoltin/procurement-workflows/internal/policy"
	"github.com/davidmoltin/procurement-workflows/internal/repository"
	"github.com/davidmoltin/procurement-workflows/pkg/validator"
)

// ErrNotFound is returned when a request does not exist or is not visible to the caller
var ErrNotFound = errors.New("purchase request not found")

// ValidationError reports malformed caller input. No state was changed.
type ValidationError struct {
	Field   string
	Message string
	// Details lists individual problems when more than one was found
	Details []string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// PermissionError reports that the caller's role or ownership does not allow the action
type PermissionError struct {
	Action  string
	Role    models.Role
	Message string
}

func (e *PermissionError) Error() string {
	return e.Message
}

// StateConflictError reports that the request is not in a state that allows
// the action. It carries the current state so callers can resynchronize.
type StateConflictError struct {
	Message        string
	Status         models.RequestStatus
	Level1Approved bool
	Level2Approved bool
	Version        int
}

func (e *StateConflictError) Error() string {
	return e.Message
}

func newStateConflict(r *models.PurchaseRequest, format string, args ...any) *StateConflictError {
	return &StateConflictError{
		Message:        fmt.Sprintf(format, args...),
		Status:         r.Status,
		Level1Approved: r.Level1Approved,
		Level2Approved: r.Level2Approved,
		Version:        r.Version,
	}
}

// decisionError converts a denied policy decision into the matching error type
func decisionError(d policy.Decision, action policy.Action, role models.Role, r *models.PurchaseRequest) error {
	if d.Reason == policy.ReasonPermission {
		return &PermissionError{Action: string(action), Role: role, Message: d.Message}
	}
	return newStateConflict(r, "%s", d.Message)
}

func requireComments(comments string) (string, error) {
	comments = strings.TrimSpace(comments)
	if comments == "" {
		return "", &ValidationError{Field: "comments", Message: "comments are required"}
	}
	return comments, nil
}

// validateInput runs struct validation and reports the first failing field
func validateInput(v any) error {
	err := validator.Validate(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.Errors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		details := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			details = append(details, fe.Message)
		}
		return &ValidationError{Field: fieldErrs[0].Field, Message: fieldErrs[0].Message, Details: details}
	}
	return &ValidationError{Message: err.Error()}
}

// mapStoreError translates repository sentinels into service errors
func mapStoreError(err error, r *models.PurchaseRequest) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, repository.ErrVersionConflict):
		if r != nil {
			return newStateConflict(r, "request was modified concurrently, reload and retry")
		}
		return &StateConflictError{Message: "request was modified concurrently, reload and retry"}
	}
	return err
}
