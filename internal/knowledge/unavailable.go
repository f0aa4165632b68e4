package knowledge

import (
	"context"
	"errors"
)

// ErrUnavailable is the cause carried by every Unavailable outcome.
var ErrUnavailable = errors.New("knowledge service unavailable")

// unavailable satisfies Service without touching the network. Advisory calls
// fail exactly as if the service were unreachable.
type unavailable struct {
	reason string
}

// Unavailable returns a Service whose calls all fail with reason.
func Unavailable(reason string) Service {
	if reason == "" {
		reason = "not configured"
	}
	return unavailable{reason: reason}
}

func (u unavailable) err() error {
	return &unavailableError{reason: u.reason}
}

type unavailableError struct {
	reason string
}

func (e *unavailableError) Error() string { return ErrUnavailable.Error() + ": " + e.reason }
func (e *unavailableError) Unwrap() error { return ErrUnavailable }

func (u unavailable) Search(context.Context, string, int) Outcome[[]Chunk] {
	return Failed[[]Chunk](u.err(), "knowledge search unavailable")
}

func (u unavailable) RAGAnswer(context.Context, string, int) Outcome[*Answer] {
	return Failed[*Answer](u.err(), "knowledge answer unavailable")
}

func (u unavailable) Archive(context.Context, string, map[string]any) Outcome[bool] {
	return Failed[bool](u.err(), "archive failed")
}

func (u unavailable) Health(context.Context) error { return u.err() }

func (u unavailable) Entities(context.Context, string, int) ([]map[string]any, error) {
	return nil, u.err()
}

func (u unavailable) Relationships(context.Context, string, int) ([]map[string]any, error) {
	return nil, u.err()
}

func (u unavailable) Communities(context.Context, string, int) ([]map[string]any, error) {
	return nil, u.err()
}

func (u unavailable) Converse(context.Context, string, string, int) (Turn, error) {
	return Turn{}, u.err()
}

// IsAvailable reports whether svc is backed by a real service.
func IsAvailable(svc Service) bool {
	if svc == nil {
		return false
	}
	_, stub := svc.(unavailable)
	return !stub
}
