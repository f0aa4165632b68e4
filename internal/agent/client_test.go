package agent

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "genflow/internal/shared/errors"

	"github.com/stretchr/testify/require"
)

func TestNormalizeStatus(t *testing.T) {
	tests := map[string]Status{
		"":          StatusSubmitted,
		"ACTIVE":    StatusRunning,
		"running":   StatusRunning,
		"PENDING":   StatusQueued,
		"queued":    StatusQueued,
		"COMPLETE":  StatusCompleted,
		"completed": StatusCompleted,
		"FAILED":    StatusFailed,
		"ERROR":     StatusFailed,
		"CANCELLED": StatusCancelled,
		"canceled":  StatusCancelled,
		"Paused":    Status("paused"),
	}
	for raw, want := range tests {
		require.Equal(t, want, NormalizeStatus(raw), "raw status %q", raw)
	}
}

func TestTerminal(t *testing.T) {
	for _, s := range []Status{StatusCompleted, StatusFailed, StatusCancelled, StatusTimedOut, StatusError} {
		require.True(t, s.Terminal(), "%s should be terminal", s)
	}
	for _, s := range []Status{StatusSubmitted, StatusQueued, StatusRunning, Status("paused")} {
		require.False(t, s.Terminal(), "%s should not be terminal", s)
	}
}

func TestKnown(t *testing.T) {
	require.True(t, StatusQueued.Known())
	require.True(t, StatusTimedOut.Known())
	require.False(t, NormalizeStatus("Paused").Known())
}

func TestCreateTaskAndRefresh(t *testing.T) {
	refreshes := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer cg-token", r.Header.Get("Authorization"))
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/organizations/42/agent/run":
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.Equal(t, "do the thing", body["prompt"])
			_, _ = io.WriteString(w, `{"id": 1234, "status": "ACTIVE", "web_url": "https://codegen.com/run/1234"}`)
		case r.Method == http.MethodGet && r.URL.Path == "/v1/organizations/42/agent/run/1234":
			refreshes++
			_, _ = io.WriteString(w, `{"id": 1234, "status": "COMPLETE", "result": "diff applied"}`)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, OrgID: "42", Token: "cg-token"}, WithHTTPClient(server.Client()))
	task, err := client.CreateTask(context.Background(), "do the thing")
	require.NoError(t, err)
	require.Equal(t, "1234", task.ID)
	require.Equal(t, StatusRunning, task.Status)
	require.Equal(t, "ACTIVE", task.RawStatus)
	require.Equal(t, "https://codegen.com/run/1234", task.WebURL)

	require.NoError(t, client.Refresh(context.Background(), task))
	require.Equal(t, 1, refreshes)
	require.Equal(t, StatusCompleted, task.Status)
	require.Equal(t, "diff applied", task.Result)
	require.Equal(t, "https://codegen.com/run/1234", task.WebURL)
}

func TestCreateTaskStringID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id": "run-abc", "status": "pending"}`)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, OrgID: "1", Token: "t"}, WithHTTPClient(server.Client()))
	task, err := client.CreateTask(context.Background(), "p")
	require.NoError(t, err)
	require.Equal(t, "run-abc", task.ID)
	require.Equal(t, StatusQueued, task.Status)
}

func TestCreateTaskWithoutIDIsUnusable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status": "ACTIVE"}`)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, OrgID: "1", Token: "t"}, WithHTTPClient(server.Client()))
	_, err := client.CreateTask(context.Background(), "p")
	require.Error(t, err)
	require.Equal(t, apperrors.ErrorTypePermanent, apperrors.GetErrorType(err))
}

func TestCreateTaskHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"invalid token"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, OrgID: "1", Token: "bad"}, WithHTTPClient(server.Client()))
	_, err := client.CreateTask(context.Background(), "p")
	require.Error(t, err)
	require.Equal(t, http.StatusUnauthorized, apperrors.StatusCode(err))
	require.Contains(t, err.Error(), "invalid token")
}

func TestRefreshTransientFailureKeepsTask(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, OrgID: "1", Token: "t"}, WithHTTPClient(server.Client()))
	task := &RemoteTask{ID: "7", Status: StatusRunning}
	err := client.Refresh(context.Background(), task)
	require.Error(t, err)
	require.True(t, apperrors.IsTransient(err))
	require.Equal(t, StatusRunning, task.Status)

	require.Error(t, client.Refresh(context.Background(), &RemoteTask{}))
}

func TestUnreachableServiceIsTransient(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := NewClient(Config{BaseURL: url, OrgID: "1", Token: "t"})
	_, err := client.CreateTask(context.Background(), "p")
	require.Error(t, err)
	require.True(t, apperrors.IsTransient(err))
	require.Contains(t, err.Error(), "unreachable")
}

func TestDefaultBaseURL(t *testing.T) {
	client := NewClient(Config{OrgID: "1"})
	require.Equal(t, DefaultBaseURL, client.baseURL)
	require.Equal(t, DefaultTimeout, client.timeout)
}

func TestUnavailable(t *testing.T) {
	svc := Unavailable("missing CODEGEN_API_TOKEN")
	require.False(t, IsAvailable(svc))
	require.False(t, IsAvailable(nil))
	require.True(t, IsAvailable(NewClient(Config{})))
	require.Equal(t, "missing CODEGEN_API_TOKEN", UnavailableReason(svc))
	require.Equal(t, "", UnavailableReason(NewClient(Config{})))

	_, err := svc.CreateTask(context.Background(), "p")
	require.True(t, errors.Is(err, ErrUnavailable))
	require.True(t, errors.Is(svc.Refresh(context.Background(), &RemoteTask{ID: "1"}), ErrUnavailable))
}
