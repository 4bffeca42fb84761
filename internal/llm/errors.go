package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

// ErrorType categorizes provider failures for retry classification.
type ErrorType string

const (
	// ErrorTypeTimeout indicates request timeout or deadline exceeded (retryable).
	ErrorTypeTimeout ErrorType = "timeout"

	// ErrorTypeRateLimit indicates the provider throttled the request (retryable).
	ErrorTypeRateLimit ErrorType = "rate_limit"

	// ErrorTypeNetwork indicates network connectivity issues (retryable).
	ErrorTypeNetwork ErrorType = "network"

	// ErrorTypeProvider indicates the provider service is unavailable (retryable).
	ErrorTypeProvider ErrorType = "provider_unavailable"

	// ErrorTypeValidation indicates the provider rejected the request shape.
	ErrorTypeValidation ErrorType = "validation_failed"

	// ErrorTypeAuth indicates authentication failed.
	ErrorTypeAuth ErrorType = "authentication"

	// ErrorTypePermission indicates insufficient permissions.
	ErrorTypePermission ErrorType = "permission_denied"

	// ErrorTypeQuota indicates account quota exceeded.
	ErrorTypeQuota ErrorType = "quota_exceeded"

	// ErrorTypeUnknown indicates an unclassified error.
	ErrorTypeUnknown ErrorType = "unknown"
)

// serverErrorThreshold is the first HTTP status treated as a provider outage.
const serverErrorThreshold = 500

var (
	// ErrUnknownModel indicates no provider is registered for a model name.
	ErrUnknownModel = errors.New("unknown model")

	// ErrInvalidResponse indicates the provider returned no usable text.
	ErrInvalidResponse = errors.New("invalid provider response")
)

// ProviderError captures a structured error response from an LLM provider.
type ProviderError struct {
	Provider   string    `json:"provider"`
	StatusCode int       `json:"status_code"`
	Message    string    `json:"message"`
	Code       string    `json:"code"`
	Type       ErrorType `json:"type"`
	RetryAfter int       `json:"retry_after"` // seconds
	Cause      error     `json:"-"`
}

// NewProviderError builds a ProviderError and classifies it from its status
// and provider error code.
func NewProviderError(provider string, status int, code, message string, cause error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		StatusCode: status,
		Message:    message,
		Code:       code,
		Type:       ClassifyStatus(status, code),
		Cause:      cause,
	}
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// IsRetryable reports whether the failure is transient.
func (e *ProviderError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeTimeout, ErrorTypeRateLimit, ErrorTypeNetwork, ErrorTypeProvider:
		return true
	default:
		return false
	}
}

// GetRetryAfter returns the provider's requested delay, if any.
func (e *ProviderError) GetRetryAfter() time.Duration {
	if e.RetryAfter > 0 {
		return time.Duration(e.RetryAfter) * time.Second
	}
	return 0
}

// RateLimitError is returned when a local limiter refuses a call.
type RateLimitError struct {
	Provider   string `json:"provider"`
	RetryAfter int    `json:"retry_after"`
	Limit      int    `json:"limit"`
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s (limit %d), retry after %ds", e.Provider, e.Limit, e.RetryAfter)
}

// GetRetryAfter returns the suggested delay before retrying.
func (e *RateLimitError) GetRetryAfter() time.Duration {
	return time.Duration(e.RetryAfter) * time.Second
}

// ClassifyStatus determines an ErrorType from an HTTP status and a provider
// error code. The code wins when it names a specific condition.
func ClassifyStatus(statusCode int, errorCode string) ErrorType {
	lowerCode := strings.ToLower(errorCode)
	switch {
	case strings.Contains(lowerCode, "rate") || strings.Contains(lowerCode, "limit"):
		return ErrorTypeRateLimit
	case strings.Contains(lowerCode, "overloaded"):
		return ErrorTypeProvider
	case strings.Contains(lowerCode, "timeout"):
		return ErrorTypeTimeout
	case strings.Contains(lowerCode, "auth") || strings.Contains(lowerCode, "unauthorized"):
		return ErrorTypeAuth
	case strings.Contains(lowerCode, "permission") || strings.Contains(lowerCode, "forbidden"):
		return ErrorTypePermission
	case strings.Contains(lowerCode, "quota"):
		return ErrorTypeQuota
	}

	switch statusCode {
	case http.StatusTooManyRequests:
		return ErrorTypeRateLimit
	case http.StatusUnauthorized:
		return ErrorTypeAuth
	case http.StatusForbidden:
		return ErrorTypePermission
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return ErrorTypeTimeout
	case http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity:
		return ErrorTypeValidation
	default:
		if statusCode >= serverErrorThreshold {
			return ErrorTypeProvider
		}
		return ErrorTypeUnknown
	}
}

// IsRetryable reports whether err is worth another attempt. Cancellation of
// the caller's context is never retryable; a per-attempt deadline is.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.IsRetryable()
	}
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// retryAfterProvider is implemented by errors that carry a server-requested delay.
type retryAfterProvider interface {
	GetRetryAfter() time.Duration
}

func retryAfter(err error) time.Duration {
	var p retryAfterProvider
	if errors.As(err, &p) {
		return p.GetRetryAfter()
	}
	return 0
}
