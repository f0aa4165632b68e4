package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/viper"
)

type fakeServices struct {
	r2r      *httptest.Server
	codegen  *httptest.Server
	archived atomic.Int32
	prompts  atomic.Int32
	// onSubmit runs after a task submission has been accepted.
	onSubmit func()
}

func newFakeServices(t *testing.T, agentStatus string) *fakeServices {
	t.Helper()
	f := &fakeServices{}

	f.r2r = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v3/health":
			_, _ = w.Write([]byte(`{"results":{"message":"ok"}}`))
		case "/v3/retrieval/search":
			_, _ = w.Write([]byte(`{"results":{"chunk_search_results":[{"text":"Wrap errors with context.","score":0.91,"metadata":{"title":"Errors guide"}}]}}`))
		case "/v3/retrieval/rag":
			_, _ = w.Write([]byte(`{"results":{"completion":{"choices":[{"message":{"content":"Keep functions small."}}]}}}`))
		case "/v3/documents":
			f.archived.Add(1)
			_, _ = w.Write([]byte(`{"results":{"document_id":"doc-1"}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(f.r2r.Close)

	f.codegen = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/organizations/42/agent/run" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret-token" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		var body struct {
			Prompt string `json:"prompt"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || !strings.Contains(body.Prompt, "# CODEGEN TASK") {
			http.Error(w, "bad prompt", http.StatusBadRequest)
			return
		}
		f.prompts.Add(1)
		if f.onSubmit != nil {
			f.onSubmit()
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":7,"status":"` + agentStatus + `","result":"generated patch"}`))
	}))
	t.Cleanup(f.codegen.Close)
	return f
}

func (f *fakeServices) env() map[string]string {
	return map[string]string{
		"CODEGEN_ORG_ID":    "42",
		"CODEGEN_API_TOKEN": "secret-token",
		"CODEGEN_BASE_URL":  f.codegen.URL,
		"R2R_BASE_URL":      f.r2r.URL,
		"R2R_API_KEY":       "r2r-key",
	}
}

type testCLI struct {
	env     map[string]string
	home    string
	workDir string
}

func newTestCLI(t *testing.T, env map[string]string) *testCLI {
	t.Helper()
	return &testCLI{env: env, home: t.TempDir(), workDir: t.TempDir()}
}

func (tc *testCLI) run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	return tc.runContext(t, context.Background(), args...)
}

func (tc *testCLI) runContext(t *testing.T, ctx context.Context, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := execute(ctx, cliEnv{
		stdout: &stdout,
		stderr: &stderr,
		env: func(key string) (string, bool) {
			v, ok := tc.env[key]
			return v, ok
		},
		homeDir: func() (string, error) { return tc.home, nil },
		workDir: tc.workDir,
		plain:   true,
	}, args)
	return code, stdout.String(), stderr.String()
}

func (tc *testCLI) writeFile(t *testing.T, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(tc.workDir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestRunReportsMissingConfiguration(t *testing.T) {
	tc := newTestCLI(t, nil)

	code, stdout, _ := tc.run(t, "run")
	if code != exitFailure {
		t.Fatalf("expected exit %d, got %d", exitFailure, code)
	}
	want := "Missing required environment variables: CODEGEN_ORG_ID, CODEGEN_API_TOKEN, R2R_BASE_URL, R2R_API_KEY"
	if !strings.Contains(stdout, want) {
		t.Fatalf("expected missing variables in output, got:\n%s", stdout)
	}
	if !strings.Contains(stdout, "Configuration Guide") {
		t.Fatalf("expected configuration guide, got:\n%s", stdout)
	}
}

func TestRunWithoutTaskIsNoop(t *testing.T) {
	services := newFakeServices(t, "COMPLETE")
	tc := newTestCLI(t, services.env())

	code, stdout, _ := tc.run(t)
	if code != exitOK {
		t.Fatalf("expected exit 0, got %d\n%s", code, stdout)
	}
	if !strings.Contains(stdout, "No files to analyze") {
		t.Fatalf("expected no-op message, got:\n%s", stdout)
	}
	if services.prompts.Load() != 0 {
		t.Fatalf("expected no submission")
	}
}

func TestRunCompletesTaskAndWritesArtifacts(t *testing.T) {
	services := newFakeServices(t, "COMPLETE")
	tc := newTestCLI(t, services.env())
	tc.writeFile(t, "codegen_task.json", `{"type":"generate_code","description":"add a retry helper"}`)
	outDir := t.TempDir()

	code, stdout, stderr := tc.run(t, "run", "--output-dir", outDir, "--guidelines", filepath.Join(tc.workDir, "CLAUDE.md"))
	if code != exitOK {
		t.Fatalf("expected exit 0, got %d\nstdout:\n%s\nstderr:\n%s", code, stdout, stderr)
	}
	for _, want := range []string{
		"R2R connection verified",
		"Loading task configuration",
		"Task ID:        7",
		"Full result saved to:",
		"Run recorded as",
		"Task completed successfully",
	} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, stdout)
		}
	}
	if services.prompts.Load() != 1 {
		t.Fatalf("expected one submission, got %d", services.prompts.Load())
	}
	if services.archived.Load() != 1 {
		t.Fatalf("expected one archive call, got %d", services.archived.Load())
	}

	raw, err := os.ReadFile(filepath.Join(outDir, "codegen_output.json"))
	if err != nil {
		t.Fatalf("read output json: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("decode output json: %v", err)
	}
	if decoded["task_id"] != "7" || decoded["status"] != "completed" {
		t.Fatalf("unexpected output json: %s", raw)
	}
	report, err := os.ReadFile(filepath.Join(outDir, "codegen_result.md"))
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if !strings.Contains(string(report), "generated patch") {
		t.Fatalf("report missing result:\n%s", report)
	}

	code, stdout, _ = tc.run(t, "history")
	if code != exitOK || !strings.Contains(stdout, "generate_code") || !strings.Contains(stdout, "completed") {
		t.Fatalf("expected recorded run in history (exit %d):\n%s", code, stdout)
	}
}

func TestRunFailedTaskExitsWithFailure(t *testing.T) {
	services := newFakeServices(t, "FAILED")
	tc := newTestCLI(t, services.env())

	code, stdout, _ := tc.run(t,
		"--type", "fix_bugs",
		"--description", "nil map write",
		"--output-dir", t.TempDir(),
		"--ledger=false",
	)
	if code != exitFailure {
		t.Fatalf("expected exit 1, got %d\n%s", code, stdout)
	}
	if !strings.Contains(stdout, "Task failed") {
		t.Fatalf("expected failure verdict, got:\n%s", stdout)
	}
	if services.archived.Load() != 0 {
		t.Fatalf("failed tasks must not be archived")
	}
	if strings.Contains(stdout, "Run recorded as") {
		t.Fatalf("ledger was disabled but a run was recorded")
	}
}

func TestRunInterruptedWhilePolling(t *testing.T) {
	services := newFakeServices(t, "ACTIVE")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	services.onSubmit = func() { time.AfterFunc(50*time.Millisecond, cancel) }
	tc := newTestCLI(t, services.env())
	outDir := t.TempDir()

	start := time.Now()
	code, stdout, _ := tc.runContext(t, ctx,
		"--type", "generate_code",
		"--description", "long running task",
		"--output-dir", outDir,
		"--poll-interval", "10s",
		"--max-wait", "1m",
	)
	if code != exitInterrupted {
		t.Fatalf("expected exit %d, got %d\n%s", exitInterrupted, code, stdout)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("expected polling to stop promptly, took %s", elapsed)
	}
	if !strings.Contains(stdout, "Task interrupted by user") {
		t.Fatalf("expected interrupt message, got:\n%s", stdout)
	}
	if services.prompts.Load() != 1 {
		t.Fatalf("expected one submission, got %d", services.prompts.Load())
	}
	if _, err := os.Stat(filepath.Join(outDir, "codegen_output.json")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("interrupted runs must not write artifacts, stat err: %v", err)
	}
}

func TestRunAnalyzePRRequiresNumber(t *testing.T) {
	services := newFakeServices(t, "COMPLETE")
	tc := newTestCLI(t, services.env())
	tc.writeFile(t, "codegen_task.json", `{"type":"analyze_pr","description":"review"}`)

	code, stdout, _ := tc.run(t, "run", "--output-dir", t.TempDir())
	if code != exitFailure {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(stdout, "PR number required for analyze_pr task") {
		t.Fatalf("expected PR number error, got:\n%s", stdout)
	}
	if services.prompts.Load() != 0 {
		t.Fatalf("expected no submission")
	}
}

func TestHealthCommandReportsComponents(t *testing.T) {
	services := newFakeServices(t, "COMPLETE")
	tc := newTestCLI(t, services.env())

	code, stdout, _ := tc.run(t, "health")
	if code != exitOK {
		t.Fatalf("expected healthy exit, got %d\n%s", code, stdout)
	}
	if !strings.Contains(stdout, "knowledge") || !strings.Contains(stdout, "agent") {
		t.Fatalf("expected both components, got:\n%s", stdout)
	}

	env := services.env()
	delete(env, "CODEGEN_API_TOKEN")
	tc.env = env
	code, _, stderr := tc.run(t, "health")
	if code != exitFailure {
		t.Fatalf("expected failure without agent credentials, got %d", code)
	}
	if !strings.Contains(stderr, "not ready") {
		t.Fatalf("expected error message, got:\n%s", stderr)
	}
}

func TestServersRequireKnowledgeURL(t *testing.T) {
	tc := newTestCLI(t, nil)
	for _, cmd := range []string{"mcp", "http"} {
		code, _, stderr := tc.run(t, cmd)
		if code != exitFailure {
			t.Fatalf("%s: expected exit 1, got %d", cmd, code)
		}
		if !strings.Contains(stderr, "R2R_BASE_URL") {
			t.Fatalf("%s: expected missing R2R_BASE_URL, got:\n%s", cmd, stderr)
		}
	}
}

func TestHistoryWhenLedgerDisabled(t *testing.T) {
	tc := newTestCLI(t, map[string]string{"GENFLOW_LEDGER": "false"})

	code, _, stderr := tc.run(t, "history")
	if code != exitFailure || !strings.Contains(stderr, "run ledger is disabled") {
		t.Fatalf("expected disabled ledger error (exit %d): %s", code, stderr)
	}
}

func TestOverridesOnlyIncludeChangedFlags(t *testing.T) {
	c := &cli{env: cliEnv{}.withDefaults(), viper: viper.New()}
	cmd := newRunCommand(c)
	cmd.Flags().String("log-level", "", "")
	cmd.Flags().Bool("ledger", true, "")
	if err := cmd.Flags().Parse([]string{"--max-wait", "90s", "--ledger=false", "--timeout-policy", "mark"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if err := c.viper.BindPFlags(cmd.Flags()); err != nil {
		t.Fatalf("bind flags: %v", err)
	}

	o := c.overrides(cmd)
	if o.MaxWait == nil || *o.MaxWait != 90*time.Second {
		t.Fatalf("expected max wait override of 90s, got %v", o.MaxWait)
	}
	if o.LedgerEnabled == nil || *o.LedgerEnabled {
		t.Fatalf("expected ledger override false, got %v", o.LedgerEnabled)
	}
	if o.TimeoutPolicy == nil || *o.TimeoutPolicy != "mark" {
		t.Fatalf("expected timeout policy override, got %v", o.TimeoutPolicy)
	}
	if o.LogLevel != nil || o.PollInterval != nil || o.OutputDir != nil {
		t.Fatalf("unchanged flags must not override: %+v", o)
	}
}

func TestExitCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, exitOK},
		{errors.New("boom"), exitFailure},
		{&ExitCodeError{Code: exitInterrupted, Err: errReported}, exitInterrupted},
	}
	for _, tc := range cases {
		if got := exitCode(tc.err); got != tc.want {
			t.Fatalf("exitCode(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
