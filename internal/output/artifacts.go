// Package output writes run artifacts and renders the terminal summary.
package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"genflow/internal/archive"
	"genflow/internal/orchestrator"
)

const (
	// JSONFileName holds the machine-readable run result.
	JSONFileName = "codegen_output.json"
	// ReportFileName holds the human-readable result.
	ReportFileName = "codegen_result.md"
	// PreviewLimit is the number of result characters shown in the summary.
	PreviewLimit = 800
)

// WriteJSON writes handle to dir/codegen_output.json and returns the path.
func WriteJSON(dir string, handle orchestrator.TaskHandle) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(handle); err != nil {
		return "", fmt.Errorf("encode run result: %w", err)
	}
	path := filepath.Join(dir, JSONFileName)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", JSONFileName, err)
	}
	return path, nil
}

// ResultText is the handle result as text, or "".
func ResultText(handle orchestrator.TaskHandle) string {
	return archive.Stringify(handle.Result)
}

// Report renders the markdown report for handle.
func Report(description string, handle orchestrator.TaskHandle) string {
	taskID := handle.ID
	if taskID == "" {
		taskID = "N/A"
	}
	var b strings.Builder
	b.WriteString("# 🤖 Codegen Generation Result\n\n")
	fmt.Fprintf(&b, "**Task:** %s\n\n", description)
	fmt.Fprintf(&b, "**Status:** %s\n\n", handle.Status)
	fmt.Fprintf(&b, "**Task ID:** %s\n\n", taskID)
	if handle.Elapsed > 0 {
		fmt.Fprintf(&b, "**Execution Time:** %.1fs\n\n", handle.ExecutionSeconds())
	}
	b.WriteString("---\n\n")
	b.WriteString("## Generated Output\n\n")
	b.WriteString(ResultText(handle))
	b.WriteString("\n\n---\n\n")
	b.WriteString("*Generated by Codegen with R2R context integration*\n")
	return b.String()
}

// WriteReport writes dir/codegen_result.md when handle carries a result.
// It returns the path, or "" when nothing was written.
func WriteReport(dir, description string, handle orchestrator.TaskHandle) (string, error) {
	if ResultText(handle) == "" {
		return "", nil
	}
	path := filepath.Join(dir, ReportFileName)
	if err := os.WriteFile(path, []byte(Report(description, handle)), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", ReportFileName, err)
	}
	return path, nil
}

// Preview returns the first limit characters of text, followed by "..." when
// text is longer.
func Preview(text string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	return string([]rune(text)[:limit]) + "..."
}
