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

// Pipeline error taxonomy. Every terminal item failure wraps exactly one
// of these so callers can classify without string matching.
var (
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrNormalizationFailed  = errors.New("normalization failed")
	ErrTransientService     = errors.New("transient service error")
	ErrAuthentication       = errors.New("authentication error")
	ErrInvalidRequest       = errors.New("invalid request")
	ErrMalformedResponse    = errors.New("malformed extraction response")
)

// Error constructors
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

// IsRetryable reports whether err is in the transient class. Timeouts are
// folded into the transient class by the extraction client before they
// reach this check.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransientService)
}
