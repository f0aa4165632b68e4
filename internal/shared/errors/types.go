package errors

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// ErrorType classifies failures of remote calls.
type ErrorType int

const (
	// ErrorTypeTransient - the remote side may recover (5xx, 429, network)
	ErrorTypeTransient ErrorType = iota
	// ErrorTypePermanent - the request itself is wrong (4xx, bad config)
	ErrorTypePermanent
	// ErrorTypeDegraded - the caller continues with reduced context
	ErrorTypeDegraded
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypePermanent:
		return "permanent"
	case ErrorTypeDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// TransientError represents a failure that may clear on its own.
type TransientError struct {
	Err        error
	StatusCode int    // HTTP status code if applicable
	RetryAfter int    // Seconds from a Retry-After header, if any
	Message    string // Operator-facing message
}

func (e *TransientError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("transient error: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// PermanentError represents a failure that will not clear without a change
// on the caller side.
type PermanentError struct {
	Err        error
	StatusCode int    // HTTP status code if applicable
	Message    string // Operator-facing message
}

func (e *PermanentError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("permanent error: %v", e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// DegradedError marks an advisory failure: the pipeline keeps going and the
// affected piece of context is dropped or replaced by FallbackContent.
type DegradedError struct {
	Err             error
	FallbackContent string
	Message         string
}

func (e *DegradedError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("degraded: %v", e.Err)
}

func (e *DegradedError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is expected to clear on its own.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var transientErr *TransientError
	if errors.As(err, &transientErr) {
		return true
	}

	var permanentErr *PermanentError
	if errors.As(err, &permanentErr) {
		return false
	}

	if isNetworkError(err) {
		return true
	}

	return isSyscallError(err)
}

// IsDegraded reports whether err is an advisory failure.
func IsDegraded(err error) bool {
	var degradedErr *DegradedError
	return errors.As(err, &degradedErr)
}

// GetErrorType classifies an error.
func GetErrorType(err error) ErrorType {
	if err == nil {
		return ErrorTypePermanent
	}
	if IsDegraded(err) {
		return ErrorTypeDegraded
	}
	if IsTransient(err) {
		return ErrorTypeTransient
	}
	return ErrorTypePermanent
}

// StatusCode returns the HTTP status carried by a classified error, or 0.
func StatusCode(err error) int {
	var transientErr *TransientError
	if errors.As(err, &transientErr) {
		return transientErr.StatusCode
	}
	var permanentErr *PermanentError
	if errors.As(err, &permanentErr) {
		return permanentErr.StatusCode
	}
	return 0
}

const maxDetailRunes = 200

// FromHTTPStatus builds a classified error for a non-2xx response of service.
// body is trimmed into the message so operators can see the remote reason.
func FromHTTPStatus(service string, statusCode int, body string) error {
	detail := strings.TrimSpace(body)
	if runes := []rune(detail); len(runes) > maxDetailRunes {
		detail = string(runes[:maxDetailRunes]) + "..."
	}
	base := fmt.Errorf("%s returned status %d", service, statusCode)
	message := base.Error()
	if detail != "" {
		message = fmt.Sprintf("%s: %s", message, detail)
	}
	if isTransientHTTPStatus(statusCode) {
		return &TransientError{Err: base, StatusCode: statusCode, Message: message}
	}
	return &PermanentError{Err: base, StatusCode: statusCode, Message: message}
}

// Describe converts err into a short operator-facing hint.
func Describe(err error) string {
	if err == nil {
		return ""
	}

	switch code := StatusCode(err); {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return "Authentication failed. Check the configured API key or token."
	case code == http.StatusNotFound:
		return "Resource not found. Check the base URL and identifiers."
	case code == http.StatusTooManyRequests:
		return "Rate limited by the remote service. Try again later."
	case code >= 500:
		return "The remote service is temporarily unavailable."
	}

	lowerErr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lowerErr, "connection refused"):
		return "Service is not running. Check the configured base URL."
	case strings.Contains(lowerErr, "timeout") || strings.Contains(lowerErr, "deadline exceeded"):
		return "Request timed out."
	case strings.Contains(lowerErr, "no such host") || strings.Contains(lowerErr, "dns"):
		return "Network connectivity issue."
	}
	return err.Error()
}

func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTemporary || dnsErr.IsTimeout
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range []string{"connection refused", "timeout", "deadline exceeded", "connection reset", "broken pipe"} {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

func isSyscallError(err error) bool {
	var syscallErr syscall.Errno
	if errors.As(err, &syscallErr) {
		switch syscallErr {
		case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.EPIPE,
			syscall.ETIMEDOUT, syscall.ENETUNREACH, syscall.EHOSTUNREACH:
			return true
		}
	}
	return false
}

func isTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests, // 429
		http.StatusInternalServerError, // 500
		http.StatusBadGateway,          // 502
		http.StatusServiceUnavailable,  // 503
		http.StatusGatewayTimeout:      // 504
		return true
	}
	return false
}

// NewTransientError creates a new transient error.
func NewTransientError(err error, message string) *TransientError {
	return &TransientError{Err: err, Message: message}
}

// NewPermanentError creates a new permanent error.
func NewPermanentError(err error, message string) *PermanentError {
	return &PermanentError{Err: err, Message: message}
}

// NewDegradedError creates a new degraded error with fallback content.
func NewDegradedError(err error, message, fallback string) *DegradedError {
	return &DegradedError{Err: err, Message: message, FallbackContent: fallback}
}
