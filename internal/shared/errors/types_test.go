package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"syscall"
	"testing"
	"unicode/utf8"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "nil error", err: nil, expected: false},
		{name: "explicit transient", err: NewTransientError(errors.New("x"), "transient"), expected: true},
		{name: "explicit permanent", err: NewPermanentError(errors.New("x"), "permanent"), expected: false},
		{name: "wrapped transient", err: fmt.Errorf("poll: %w", NewTransientError(errors.New("x"), "")), expected: true},
		{name: "deadline exceeded", err: errors.New("context deadline exceeded"), expected: true},
		{name: "connection refused", err: errors.New("dial tcp 127.0.0.1:7272: connect: connection refused"), expected: true},
		{name: "syscall reset", err: syscall.ECONNRESET, expected: true},
		{name: "plain error", err: errors.New("boom"), expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.expected {
				t.Fatalf("IsTransient(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestFromHTTPStatusClassifies(t *testing.T) {
	tests := []struct {
		status    int
		transient bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusGatewayTimeout, true},
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
		{http.StatusNotFound, false},
		{http.StatusUnprocessableEntity, false},
	}

	for _, tt := range tests {
		err := FromHTTPStatus("knowledge service", tt.status, "details")
		if IsTransient(err) != tt.transient {
			t.Fatalf("status %d: transient = %v, want %v", tt.status, IsTransient(err), tt.transient)
		}
		if (GetErrorType(err) == ErrorTypePermanent) == tt.transient {
			t.Fatalf("status %d: permanent should be the inverse of transient", tt.status)
		}
		if StatusCode(err) != tt.status {
			t.Fatalf("status %d: StatusCode = %d", tt.status, StatusCode(err))
		}
		if !strings.Contains(err.Error(), "details") {
			t.Fatalf("expected body detail in message, got %q", err.Error())
		}
	}
}

func TestFromHTTPStatusTruncatesBody(t *testing.T) {
	err := FromHTTPStatus("agent service", http.StatusBadRequest, strings.Repeat("x", 500))
	if len(err.Error()) > 260 {
		t.Fatalf("expected truncated message, got %d chars", len(err.Error()))
	}
}

func TestFromHTTPStatusTruncatesByRune(t *testing.T) {
	err := FromHTTPStatus("agent service", http.StatusBadRequest, strings.Repeat("é", 300))
	if !utf8.ValidString(err.Error()) {
		t.Fatalf("message is not valid UTF-8: %q", err.Error())
	}
	if !strings.HasSuffix(err.Error(), strings.Repeat("é", maxDetailRunes)+"...") {
		t.Fatalf("expected %d runes of detail, got %q", maxDetailRunes, err.Error())
	}
}

func TestGetErrorType(t *testing.T) {
	if got := GetErrorType(NewDegradedError(errors.New("x"), "no context", "")); got != ErrorTypeDegraded {
		t.Fatalf("expected degraded, got %s", got)
	}
	if got := GetErrorType(NewTransientError(errors.New("x"), "")); got != ErrorTypeTransient {
		t.Fatalf("expected transient, got %s", got)
	}
	if got := GetErrorType(errors.New("anything")); got != ErrorTypePermanent {
		t.Fatalf("expected permanent default, got %s", got)
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{FromHTTPStatus("svc", http.StatusUnauthorized, ""), "Authentication failed"},
		{FromHTTPStatus("svc", http.StatusServiceUnavailable, ""), "temporarily unavailable"},
		{errors.New("dial tcp: connection refused"), "not running"},
		{errors.New("context deadline exceeded"), "timed out"},
		{errors.New("custom"), "custom"},
	}
	for _, tt := range tests {
		if got := Describe(tt.err); !strings.Contains(got, tt.want) {
			t.Fatalf("Describe(%v) = %q, want substring %q", tt.err, got, tt.want)
		}
	}
	if Describe(nil) != "" {
		t.Fatal("expected empty description for nil")
	}
}
