package archive

import (
	"context"
	"errors"
	"testing"
	"time"

	"genflow/internal/knowledge"
	"genflow/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingIngester struct {
	fail     bool
	calls    int
	content  string
	metadata map[string]any
}

func (r *recordingIngester) Archive(_ context.Context, content string, metadata map[string]any) knowledge.Outcome[bool] {
	r.calls++
	r.content = content
	r.metadata = metadata
	if r.fail {
		return knowledge.Failed[bool](errors.New("status 403"), "archive failed")
	}
	return knowledge.Succeeded(true)
}

type named struct{ name string }

func (n named) String() string { return "named:" + n.name }

func TestArchiveSendsProvenance(t *testing.T) {
	ingester := &recordingIngester{}
	logger := &testutil.RecordingLogger{}
	stamp := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	ok := New(ingester, logger).Archive(context.Background(), "diff applied", Provenance{
		TaskDescription: "Fix null check",
		Files:           []string{"a.go"},
		RemoteTaskID:    "77",
		ExecutionTime:   1500 * time.Millisecond,
		Timestamp:       stamp,
	})

	require.True(t, ok)
	require.Equal(t, 1, ingester.calls)
	assert.Equal(t, "diff applied", ingester.content)
	assert.Equal(t, "Fix null check", ingester.metadata["task_description"])
	assert.Equal(t, []string{"a.go"}, ingester.metadata["files"])
	assert.Equal(t, "77", ingester.metadata["remote_task_id"])
	assert.Equal(t, 1.5, ingester.metadata["execution_time"])
	assert.Equal(t, "2026-03-01T12:00:00Z", ingester.metadata["timestamp"])
	assert.Equal(t, 1, logger.Count("info"))
}

func TestArchiveFailureIsReportedNotRaised(t *testing.T) {
	ingester := &recordingIngester{fail: true}
	logger := &testutil.RecordingLogger{}

	ok := New(ingester, logger).Archive(context.Background(), "x", Provenance{RemoteTaskID: "9"})

	assert.False(t, ok)
	assert.Equal(t, 1, ingester.calls, "archiving makes a single attempt")
	assert.True(t, logger.Contains("warn", "task 9"))
}

func TestArchiveWithoutIngester(t *testing.T) {
	assert.False(t, New(nil, nil).Archive(context.Background(), "x", Provenance{}))
}

func TestProvenanceMetadataNilFiles(t *testing.T) {
	meta := Provenance{}.Metadata()
	assert.Equal(t, []string{}, meta["files"])
}

func TestStringify(t *testing.T) {
	tests := []struct {
		name    string
		payload any
		want    string
	}{
		{name: "nil", payload: nil, want: ""},
		{name: "string", payload: "plain", want: "plain"},
		{name: "bytes", payload: []byte("raw"), want: "raw"},
		{name: "stringer", payload: named{name: "x"}, want: "named:x"},
		{name: "error", payload: errors.New("boom"), want: "boom"},
		{name: "map", payload: map[string]any{"k": 1}, want: "{\n  \"k\": 1\n}"},
		{name: "unencodable", payload: make(chan int), want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Stringify(tt.payload)
			if tt.name == "unencodable" {
				assert.NotEmpty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
