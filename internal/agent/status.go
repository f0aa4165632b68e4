// Package agent talks to the remote asynchronous code-generation agent.
package agent

import "strings"

// Status is the lifecycle state of a generation task. The first group is
// reported by the agent service; timed_out and error are assigned locally.
type Status string

const (
	StatusSubmitted Status = "submitted"
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusTimedOut  Status = "timed_out"
	StatusError     Status = "error"
)

// Terminal reports whether no further transitions can happen.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusTimedOut, StatusError:
		return true
	}
	return false
}

// Known reports whether s is one of the enumerated statuses.
func (s Status) Known() bool {
	switch s {
	case StatusSubmitted, StatusQueued, StatusRunning, StatusCompleted,
		StatusFailed, StatusCancelled, StatusTimedOut, StatusError:
		return true
	}
	return false
}

// NormalizeStatus maps the agent service vocabulary onto Status. Unknown
// values are kept lower-cased and are treated as non-terminal.
func NormalizeStatus(raw string) Status {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch value {
	case "":
		return StatusSubmitted
	case "complete", "completed", "succeeded", "success", "done":
		return StatusCompleted
	case "active", "running", "in_progress", "evaluating":
		return StatusRunning
	case "pending", "queued", "waiting":
		return StatusQueued
	case "failed", "failure", "error":
		return StatusFailed
	case "cancelled", "canceled", "stopped":
		return StatusCancelled
	}
	return Status(value)
}
