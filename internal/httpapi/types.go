package httpapi

import (
	"time"

	"genflow/internal/health"
	"genflow/internal/orchestrator"
)

// APIResponse is the envelope of every /v1 response.
type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// TaskRequest submits a generation task.
type TaskRequest struct {
	Type           string   `json:"type,omitempty"`
	Description    string   `json:"description"`
	Files          []string `json:"files,omitempty"`
	Wait           *bool    `json:"wait,omitempty"`
	MaxWaitSeconds float64  `json:"max_wait_seconds,omitempty"`
}

// TaskResponse carries the finished handle and, when history is enabled,
// the ledger run id.
type TaskResponse struct {
	RunID string                  `json:"run_id,omitempty"`
	Task  orchestrator.TaskHandle `json:"task"`
}

// SearchRequest runs a filtered knowledge search.
type SearchRequest struct {
	Query      string   `json:"query"`
	MaxResults int      `json:"max_results,omitempty"`
	MinScore   *float64 `json:"min_score,omitempty"`
}

// ResearchRequest asks for an iterative research report.
type ResearchRequest struct {
	Query      string `json:"query"`
	Iterations int    `json:"num_iterations,omitempty"`
	MaxTokens  int    `json:"max_tokens_per_iteration,omitempty"`
}

// SynthesizeRequest asks for a multi-source answer.
type SynthesizeRequest struct {
	Query      string `json:"query"`
	NumSources int    `json:"num_sources,omitempty"`
}

// HealthResponse is returned by /healthz.
type HealthResponse struct {
	Status     string                   `json:"status"`
	Version    string                   `json:"version"`
	Timestamp  time.Time                `json:"timestamp"`
	Uptime     string                   `json:"uptime"`
	Components []health.ComponentHealth `json:"components"`
}
