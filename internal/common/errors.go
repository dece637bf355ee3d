package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Failure taxonomy. Collaborator transport failures are retryable; the rest
// describe bad input or concurrent mutation.
var (
	ErrNotFound             = errors.New("resource not found")
	ErrInvalidInput         = errors.New("invalid input")
	ErrOCRUnavailable       = errors.New("ocr service unavailable")
	ErrInferenceUnavailable = errors.New("inference service unavailable")
	ErrInferenceMalformed   = errors.New("inference response malformed")
	ErrPersistenceConflict  = errors.New("concurrent case mutation detected")
	ErrInvalidOverride      = errors.New("manual override failed field validation")
)

// NewAppError builds an AppError with a stable code for logs and API payloads.
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Retryable reports whether re-invoking the failed operation can succeed
// without any input changing (collaborator outages).
func Retryable(err error) bool {
	return errors.Is(err, ErrOCRUnavailable) || errors.Is(err, ErrInferenceUnavailable)
}
