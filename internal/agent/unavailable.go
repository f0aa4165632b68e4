package agent

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnavailable is returned by the Unavailable service.
var ErrUnavailable = errors.New("agent service unavailable")

type unavailable struct {
	reason string
}

// Unavailable returns a Service that refuses every call with reason.
func Unavailable(reason string) Service {
	if reason == "" {
		reason = "not configured"
	}
	return unavailable{reason: reason}
}

func (u unavailable) CreateTask(context.Context, string) (*RemoteTask, error) {
	return nil, fmt.Errorf("%w: %s", ErrUnavailable, u.reason)
}

func (u unavailable) Refresh(context.Context, *RemoteTask) error {
	return fmt.Errorf("%w: %s", ErrUnavailable, u.reason)
}

// IsAvailable reports whether svc can accept submissions.
func IsAvailable(svc Service) bool {
	if svc == nil {
		return false
	}
	_, stub := svc.(unavailable)
	return !stub
}

// UnavailableReason returns why svc is unavailable, or "".
func UnavailableReason(svc Service) string {
	if svc == nil {
		return "not configured"
	}
	if u, ok := svc.(unavailable); ok {
		return u.reason
	}
	return ""
}
