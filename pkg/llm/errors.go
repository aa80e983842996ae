package llm

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidProvider is returned when an unsupported provider is specified
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidAPIKey is returned when the API key is missing or invalid
	ErrInvalidAPIKey = errors.New("invalid or missing API key")

	ErrInvalidRequest     = errors.New("invalid request")
	ErrRateLimitExceeded  = errors.New("rate limit exceeded")
	ErrTimeout            = errors.New("request timeout")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrUnknown            = errors.New("unknown error")
)

// ErrorType classifies provider failures
type ErrorType string

const (
	ErrorTypeInvalidRequest     ErrorType = "invalid_request"
	ErrorTypeAuthentication     ErrorType = "authentication"
	ErrorTypeRateLimit          ErrorType = "rate_limit"
	ErrorTypeTimeout            ErrorType = "timeout"
	ErrorTypeServiceUnavailable ErrorType = "service_unavailable"
	ErrorTypeUnknown            ErrorType = "unknown"
)

// Error represents an LLM API error
type Error struct {
	Type          ErrorType
	Message       string
	Provider      Provider
	OriginalError error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.OriginalError != nil {
		return fmt.Sprintf("%s error from %s: %s (original: %v)",
			e.Type, e.Provider, e.Message, e.OriginalError)
	}
	return fmt.Sprintf("%s error from %s: %s", e.Type, e.Provider, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.OriginalError
}

// Is matches the error against the package sentinels
func (e *Error) Is(target error) bool {
	switch e.Type {
	case ErrorTypeInvalidRequest:
		return target == ErrInvalidRequest
	case ErrorTypeAuthentication:
		return target == ErrInvalidAPIKey
	case ErrorTypeRateLimit:
		return target == ErrRateLimitExceeded
	case ErrorTypeTimeout:
		return target == ErrTimeout
	case ErrorTypeServiceUnavailable:
		return target == ErrServiceUnavailable
	default:
		return target == ErrUnknown
	}
}

// NewError creates a new LLM error
func NewError(provider Provider, errType ErrorType, message string, originalErr error) *Error {
	return &Error{
		Type:          errType,
		Message:       message,
		Provider:      provider,
		OriginalError: originalErr,
	}
}

// IsRetryable returns true if the error is retryable
func IsRetryable(err error) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		switch llmErr.Type {
		case ErrorTypeRateLimit, ErrorTypeTimeout, ErrorTypeServiceUnavailable:
			return true
		}
	}
	return false
}
