package task

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"genflow/internal/knowledge"
)

type stubAdvisor struct {
	answer    string
	questions []string
}

func (s *stubAdvisor) RAGAnswer(_ context.Context, question string, _ int) knowledge.Outcome[*knowledge.Answer] {
	s.questions = append(s.questions, question)
	if s.answer == "" {
		return knowledge.Failed[*knowledge.Answer](errors.New("no choices in response"), "knowledge answer unavailable")
	}
	return knowledge.Succeeded(&knowledge.Answer{Content: s.answer})
}

func TestInferFromChangedFiles(t *testing.T) {
	tests := []struct {
		name  string
		files []string
		want  Type
		desc  string
	}{
		{name: "docs win", files: []string{"main.py", "README.md"}, want: TypeImproveDocs,
			desc: "Improve documentation: enhance clarity, fix errors, add examples for 2 files"},
		{name: "python", files: []string{"a.py", "b.go"}, want: TypeReviewCode,
			desc: "Review 2 Python files for quality and best practices"},
		{name: "other", files: []string{"a.go", "b.go", "c.yaml"}, want: TypeAnalyzeChanges,
			desc: "Analyze 3 changed files and provide recommendations"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, ok := InferFromChangedFiles(tt.files)
			if !ok {
				t.Fatal("expected a task")
			}
			if cfg.Type != tt.want || cfg.Description != tt.desc || len(cfg.Files) != len(tt.files) {
				t.Fatalf("unexpected config %+v", cfg)
			}
		})
	}
	if _, ok := InferFromChangedFiles(nil); ok {
		t.Fatal("expected no-op for an empty list")
	}
}

func TestParseChangedFiles(t *testing.T) {
	got := ParseChangedFiles("  a.go \n\n\tb.md\n   \n")
	if len(got) != 2 || got[0] != "a.go" || got[1] != "b.md" {
		t.Fatalf("unexpected files %q", got)
	}
}

func TestDiscoverPrefersConfigFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ConfigFileName), `{"type": "Fix_Bugs", "description": " nil deref ", "files": ["a.go", " "]}`)
	writeFile(t, filepath.Join(dir, ChangedFilesName), "README.md\n")

	cfg, source, err := Discover(dir)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if source != SourceConfigFile || cfg.Type != TypeFixBugs || cfg.Description != "nil deref" {
		t.Fatalf("unexpected %s %+v", source, cfg)
	}
	if len(cfg.Files) != 1 {
		t.Fatalf("expected blank file entries dropped, got %q", cfg.Files)
	}
}

func TestDiscoverFallsBackToChangedFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ChangedFilesName), "docs/guide.md\nmain.go\n")

	cfg, source, err := Discover(dir)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if source != SourceChangedFiles || cfg.Type != TypeImproveDocs {
		t.Fatalf("unexpected %s %+v", source, cfg)
	}
}

func TestDiscoverNothingToDo(t *testing.T) {
	cfg, source, err := Discover(t.TempDir())
	if err != nil || source != SourceNone || cfg.Type != "" {
		t.Fatalf("expected no-op, got %s %+v %v", source, cfg, err)
	}
}

func TestDiscoverReportsBrokenConfig(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ConfigFileName), `{"type": `)
	if _, _, err := Discover(dir); err == nil {
		t.Fatal("expected parse error")
	}

	readFile := func(string) ([]byte, error) { return nil, &fs.PathError{Op: "open", Err: fs.ErrPermission} }
	if _, _, err := discover(dir, readFile); err == nil || !errors.Is(err, fs.ErrPermission) {
		t.Fatalf("expected permission error, got %v", err)
	}
}

func TestLoadConfigYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "task.yaml")
	writeFile(t, path, "type: analyze_pr\ndescription: check\npr_number: 42\naction: audit\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Type != TypeAnalyzePR || cfg.PRNumber != 42 || cfg.Action != "audit" {
		t.Fatalf("unexpected config %+v", cfg)
	}

	writeFile(t, path, "description: no type\n")
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected missing type error")
	}
}

func TestResolvePresets(t *testing.T) {
	files := []string{"a.go"}
	tests := []struct {
		cfg  Config
		want string
	}{
		{Config{Type: TypeImproveDocs, Files: files}, "Improve documentation: enhance clarity, fix errors, add examples"},
		{Config{Type: TypeGenerateCode, Description: "a CSV parser", Files: files}, "Generate code: a CSV parser"},
		{Config{Type: TypeFixBugs, Description: "panic on empty input", Files: files}, "Fix bug: panic on empty input"},
		{Config{Type: TypeReviewCode, Files: files}, "Review code: check quality, security, performance, and adherence to best practices"},
		{Config{Type: TypeAnalyzeChanges, Description: "Analyze 1 changed files and provide recommendations", Files: files}, "Analyze 1 changed files and provide recommendations"},
	}
	for _, tt := range tests {
		t.Run(string(tt.cfg.Type), func(t *testing.T) {
			req, err := Resolve(context.Background(), tt.cfg, nil)
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if req.Description != tt.want || len(req.Files) != 1 {
				t.Fatalf("unexpected request %+v", req)
			}
		})
	}

	if _, err := Resolve(context.Background(), Config{Type: "custom"}, nil); err == nil {
		t.Fatal("expected error for a custom task without description")
	}
}

func TestResolveAnalyzePR(t *testing.T) {
	advisor := &stubAdvisor{answer: strings.Repeat("b", 1500)}
	req, err := Resolve(context.Background(), Config{Type: TypeAnalyzePR, PRNumber: 17, Files: []string{"x.go"}}, advisor)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := "Review PR #17\n\nBest Practices:\n" + strings.Repeat("b", 1000)
	if req.Description != want {
		t.Fatalf("unexpected description %q", req.Description)
	}
	if len(req.Files) != 0 {
		t.Fatalf("PR analysis runs without files, got %q", req.Files)
	}
	if advisor.questions[0] != "What are the best practices for review in pull requests?" {
		t.Fatalf("unexpected question %q", advisor.questions[0])
	}

	req, err = Resolve(context.Background(), Config{Type: TypeAnalyzePR, PRNumber: 3, Action: "SECURITY audit"}, &stubAdvisor{})
	if err != nil || req.Description != "Security audit PR #3" {
		t.Fatalf("unexpected %q %v", req.Description, err)
	}

	if _, err := Resolve(context.Background(), Config{Type: TypeAnalyzePR}, advisor); !errors.Is(err, ErrPRNumberRequired) {
		t.Fatalf("expected ErrPRNumberRequired, got %v", err)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
