package orchestrator

import (
	"bytes"
	"encoding/json"
	"time"

	"genflow/internal/agent"
)

// TaskHandle is the local record of one generation task. It is owned by the
// Run call that created it and is not modified after Run returns.
type TaskHandle struct {
	ID        string        `json:"task_id"`
	Status    agent.Status  `json:"status"`
	Result    any           `json:"result"`
	WebURL    string        `json:"web_url,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Elapsed   time.Duration `json:"-"`
	PollCount int           `json:"poll_count"`
	Error     string        `json:"error,omitempty"`
	// TimedOut is set when polling stopped on the wall-clock budget while the
	// remote task was still in flight.
	TimedOut bool `json:"timed_out,omitempty"`
	Archived bool `json:"archived,omitempty"`
}

// ExecutionSeconds is Elapsed in seconds.
func (h TaskHandle) ExecutionSeconds() float64 {
	return h.Elapsed.Seconds()
}

// Succeeded reports whether the remote task completed.
func (h TaskHandle) Succeeded() bool {
	return h.Status == agent.StatusCompleted
}

// Failed reports whether the task ended in failure or could not run.
func (h TaskHandle) Failed() bool {
	return h.Status == agent.StatusFailed || h.Status == agent.StatusError
}

// MarshalJSON adds execution_time in seconds. Result text is written as is,
// without HTML escaping.
func (h TaskHandle) MarshalJSON() ([]byte, error) {
	type plain TaskHandle
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(struct {
		plain
		ExecutionTime float64 `json:"execution_time"`
	}{plain: plain(h), ExecutionTime: h.ExecutionSeconds()}); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
