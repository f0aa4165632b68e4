// Package archive feeds completed generation results back into the
// knowledge service so later tasks can retrieve them.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"genflow/internal/knowledge"
	"genflow/internal/shared/logging"
)

// Provenance describes where an archived result came from.
type Provenance struct {
	TaskDescription string
	Files           []string
	RemoteTaskID    string
	ExecutionTime   time.Duration
	Timestamp       time.Time
}

// Metadata renders the provenance as document metadata.
func (p Provenance) Metadata() map[string]any {
	files := p.Files
	if files == nil {
		files = []string{}
	}
	return map[string]any{
		"task_description": p.TaskDescription,
		"files":            files,
		"remote_task_id":   p.RemoteTaskID,
		"execution_time":   p.ExecutionTime.Seconds(),
		"timestamp":        p.Timestamp.Format(time.RFC3339),
	}
}

// Archiver uploads results through a knowledge.Ingester.
type Archiver struct {
	ingester knowledge.Ingester
	logger   logging.Logger
}

// New builds an Archiver. A nil ingester behaves as an unavailable
// knowledge service.
func New(ingester knowledge.Ingester, logger logging.Logger) *Archiver {
	if ingester == nil {
		ingester = knowledge.Unavailable("")
	}
	return &Archiver{ingester: ingester, logger: logging.OrNop(logger)}
}

// Archive stores payload with its provenance. It makes a single attempt and
// reports success; failures are logged, never returned.
func (a *Archiver) Archive(ctx context.Context, payload any, prov Provenance) bool {
	content := Stringify(payload)
	outcome := a.ingester.Archive(ctx, content, prov.Metadata())
	if !outcome.OK() {
		a.logger.Warn("Archiving result of task %s failed: %s", prov.RemoteTaskID, outcome.Reason())
		return false
	}
	a.logger.Info("Archived result of task %s (%d bytes)", prov.RemoteTaskID, len(content))
	return true
}

// Stringify converts a result payload to document text.
func Stringify(payload any) string {
	switch v := payload.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case fmt.Stringer:
		return v.String()
	case error:
		return v.Error()
	}
	if encoded, err := json.MarshalIndent(payload, "", "  "); err == nil {
		return string(encoded)
	}
	return fmt.Sprintf("%v", payload)
}
