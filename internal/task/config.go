// Package task turns task configuration files into runner requests.
package task

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// ConfigFileName is the explicit task configuration.
	ConfigFileName = "codegen_task.json"
	// ChangedFilesName lists changed paths, one per line.
	ChangedFilesName = "changed_files.txt"
)

// Type names a task preset.
type Type string

const (
	TypeImproveDocs    Type = "improve_docs"
	TypeGenerateCode   Type = "generate_code"
	TypeFixBugs        Type = "fix_bugs"
	TypeReviewCode     Type = "review_code"
	TypeAnalyzePR      Type = "analyze_pr"
	TypeAnalyzeChanges Type = "analyze_changes"
)

// Config describes one task.
type Config struct {
	Type        Type     `json:"type" yaml:"type"`
	Description string   `json:"description" yaml:"description"`
	Files       []string `json:"files,omitempty" yaml:"files,omitempty"`
	PRNumber    int      `json:"pr_number,omitempty" yaml:"pr_number,omitempty"`
	Action      string   `json:"action,omitempty" yaml:"action,omitempty"`
}

// Source tells where a Config came from.
type Source string

const (
	SourceConfigFile   Source = "config_file"
	SourceChangedFiles Source = "changed_files"
	SourceNone         Source = "none"
)

// LoadConfig parses a task file. Files ending in .yaml or .yml are read as
// YAML, everything else as JSON.
func LoadConfig(path string) (Config, error) {
	return loadConfig(path, os.ReadFile)
}

func loadConfig(path string, readFile func(string) ([]byte, error)) (Config, error) {
	data, err := readFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read task config: %w", err)
	}
	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return Config{}, fmt.Errorf("parse task config %s: %w", path, err)
	}
	cfg.normalize()
	if cfg.Type == "" {
		return Config{}, fmt.Errorf("task config %s: type is required", path)
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Type = Type(strings.ToLower(strings.TrimSpace(string(c.Type))))
	c.Description = strings.TrimSpace(c.Description)
	c.Action = strings.TrimSpace(c.Action)
	files := c.Files[:0]
	for _, f := range c.Files {
		if f = strings.TrimSpace(f); f != "" {
			files = append(files, f)
		}
	}
	c.Files = files
}

// ParseChangedFiles returns the non-blank trimmed lines of data.
func ParseChangedFiles(data string) []string {
	var files []string
	for _, line := range strings.Split(data, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			files = append(files, line)
		}
	}
	return files
}

// InferFromChangedFiles picks a preset from file extensions. It returns
// false when there is nothing to do.
func InferFromChangedFiles(files []string) (Config, bool) {
	if len(files) == 0 {
		return Config{}, false
	}
	n := len(files)
	switch {
	case anyWithSuffix(files, ".md"):
		return Config{
			Type:        TypeImproveDocs,
			Description: fmt.Sprintf("Improve documentation: enhance clarity, fix errors, add examples for %d files", n),
			Files:       files,
		}, true
	case anyWithSuffix(files, ".py"):
		return Config{
			Type:        TypeReviewCode,
			Description: fmt.Sprintf("Review %d Python files for quality and best practices", n),
			Files:       files,
		}, true
	}
	return Config{
		Type:        TypeAnalyzeChanges,
		Description: fmt.Sprintf("Analyze %d changed files and provide recommendations", n),
		Files:       files,
	}, true
}

func anyWithSuffix(files []string, suffix string) bool {
	for _, f := range files {
		if strings.HasSuffix(f, suffix) {
			return true
		}
	}
	return false
}

// Discover finds the task for dir: the config file when present, otherwise
// a preset inferred from the changed-files list. SourceNone means no-op.
func Discover(dir string) (Config, Source, error) {
	return discover(dir, os.ReadFile)
}

func discover(dir string, readFile func(string) ([]byte, error)) (Config, Source, error) {
	cfg, err := loadConfig(filepath.Join(dir, ConfigFileName), readFile)
	switch {
	case err == nil:
		return cfg, SourceConfigFile, nil
	case !errors.Is(err, fs.ErrNotExist):
		return Config{}, SourceNone, err
	}

	data, err := readFile(filepath.Join(dir, ChangedFilesName))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, SourceNone, fmt.Errorf("read changed files: %w", err)
	}
	inferred, ok := InferFromChangedFiles(ParseChangedFiles(string(data)))
	if !ok {
		return Config{}, SourceNone, nil
	}
	return inferred, SourceChangedFiles, nil
}
