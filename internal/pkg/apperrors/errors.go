package apperrors

import (
	"fmt"
	"net/http"
	"time"
)

type ErrorType string

const (
	ErrUnauthenticated    ErrorType = "UNAUTHENTICATED"
	ErrForbidden          ErrorType = "FORBIDDEN"
	ErrPolicyMissing      ErrorType = "POLICY_MISSING"
	ErrPolicyUnavailable  ErrorType = "POLICY_UNAVAILABLE"
	ErrSuspended          ErrorType = "SUSPENDED"
	ErrRateLimited        ErrorType = "RATE_LIMITED"
	ErrInvalidPolicy      ErrorType = "INVALID_POLICY"
	ErrInvalidRequest     ErrorType = "INVALID_REQUEST"
	ErrDuplicateClient    ErrorType = "DUPLICATE_CLIENT"
	ErrDuplicatePair      ErrorType = "DUPLICATE_PAIR"
	ErrPairNotAllowed     ErrorType = "PAIR_NOT_ALLOWED"
	ErrExchangeNotAllowed ErrorType = "EXCHANGE_NOT_ALLOWED"
	ErrVolumeExceeded     ErrorType = "VOLUME_EXCEEDED"
	ErrSpreadExceeded     ErrorType = "SPREAD_EXCEEDED"
	ErrExecutor           ErrorType = "EXECUTOR_ERROR"
	ErrNotFound           ErrorType = "NOT_FOUND"
	ErrInternal           ErrorType = "INTERNAL_ERROR"
)

// AppError is the standard error struct for the application
type AppError struct {
	Type       ErrorType `json:"code"`
	Message    string    `json:"message"`
	Suggestion string    `json:"suggestion,omitempty"`
	RetryAfter int       `json:"retry_after_seconds,omitempty"`
	HTTPStatus int       `json:"-"`
	Cause      error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(errType ErrorType, msg string, cause error) *AppError {
	return &AppError{
		Type:       errType,
		Message:    msg,
		Cause:      cause,
		HTTPStatus: mapTypeToStatus(errType),
		Suggestion: mapTypeToSuggestion(errType),
	}
}

func NewInvalidRequest(msg string) *AppError {
	return New(ErrInvalidRequest, msg, nil)
}

func NewForbidden(msg string) *AppError {
	return New(ErrForbidden, msg, nil)
}

// NewRateLimited rounds the remaining window up so a caller that sleeps
// RetryAfter seconds always lands in a fresh window.
func NewRateLimited(msg string, retryAfter time.Duration) *AppError {
	e := New(ErrRateLimited, msg, nil)
	secs := int(retryAfter / time.Second)
	if retryAfter%time.Second != 0 {
		secs++
	}
	if secs < 1 {
		secs = 1
	}
	e.RetryAfter = secs
	return e
}

func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return New(ErrInternal, err.Error(), err)
}

func mapTypeToStatus(t ErrorType) int {
	switch t {
	case ErrInvalidRequest, ErrInvalidPolicy, ErrVolumeExceeded, ErrSpreadExceeded:
		return http.StatusBadRequest
	case ErrUnauthenticated:
		return http.StatusUnauthorized
	case ErrForbidden, ErrPolicyMissing, ErrSuspended, ErrPairNotAllowed, ErrExchangeNotAllowed:
		return http.StatusForbidden
	case ErrNotFound:
		return http.StatusNotFound
	case ErrDuplicateClient, ErrDuplicatePair:
		return http.StatusConflict
	case ErrRateLimited:
		return http.StatusTooManyRequests
	case ErrPolicyUnavailable:
		return http.StatusServiceUnavailable
	case ErrExecutor:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func mapTypeToSuggestion(t ErrorType) string {
	switch t {
	case ErrUnauthenticated:
		return "Check the bearer token."
	case ErrPolicyMissing:
		return "Ask an administrator to provision a policy for this client."
	case ErrPolicyUnavailable:
		return "Retry once the policy store recovers."
	case ErrSuspended:
		return "Contact an administrator to reactivate the client."
	case ErrRateLimited:
		return "Slow down and retry after the window resets."
	case ErrVolumeExceeded:
		return "Reduce the size or wait for the rolling window to drain."
	case ErrSpreadExceeded:
		return "Use a spread within the client's ceiling."
	case ErrDuplicateClient:
		return "Look up the existing client record."
	case ErrDuplicatePair:
		return "The pair is already configured for this client."
	case ErrExecutor:
		return "Check the trading backend and retry if safe."
	default:
		return ""
	}
}
