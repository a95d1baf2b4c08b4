package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/usestring/formsense/pkg/backend"
)

// Error codes for MCP tool responses.
const (
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeInvalidInput       = "INVALID_INPUT"
	ErrCodeBackendUnavailable = "BACKEND_UNAVAILABLE"
	ErrCodeBackendError       = "BACKEND_ERROR"
	ErrCodeTimeout            = "TIMEOUT"
)

// CodedError is an error with an associated error code.
type CodedError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CodedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *CodedError) Unwrap() error {
	return e.Cause
}

// WrapBackendError converts a backend failure to a coded error.
func WrapBackendError(err error) error {
	if err == nil {
		return nil
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded
	}

	var statusErr *backend.StatusError
	var netErr net.Error
	switch {
	case errors.As(err, &statusErr):
		coded = &CodedError{
			Code:    ErrCodeBackendError,
			Message: fmt.Sprintf("backend answered HTTP %d", statusErr.StatusCode),
			Cause:   err,
		}
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		coded = &CodedError{
			Code:    ErrCodeTimeout,
			Message: "request timed out",
			Cause:   err,
		}
	default:
		coded = &CodedError{
			Code:    ErrCodeBackendError,
			Message: err.Error(),
			Cause:   err,
		}
	}

	slog.Warn("backend error",
		slog.String("code", coded.Code),
		slog.String("message", coded.Message),
	)

	return coded
}

// ErrNotFound creates a not found error.
func ErrNotFound(resource, id string) error {
	return &CodedError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// ErrInvalidInput creates an invalid input error.
func ErrInvalidInput(message string) error {
	return &CodedError{
		Code:    ErrCodeInvalidInput,
		Message: message,
	}
}

// ErrBackendUnavailable reports that no candidate answered a health check.
func ErrBackendUnavailable(checked int) error {
	return &CodedError{
		Code:    ErrCodeBackendUnavailable,
		Message: fmt.Sprintf("no healthy backend found (%d candidates checked)", checked),
	}
}
