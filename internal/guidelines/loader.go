// Package guidelines reads the repository rules document and extracts the
// sections that go into generation prompts.
package guidelines

import (
	"os"
	"strings"

	"genflow/internal/shared/logging"
)

// DefaultPath is the rules document looked up in the working directory.
const DefaultPath = "CLAUDE.md"

var (
	// OverviewMarkers identify the project overview heading.
	OverviewMarkers = []string{"Обзор проекта", "Project Overview"}
	// PracticesMarkers identify the mandatory practices heading.
	PracticesMarkers = []string{"Обязательные практики", "Mandatory Practices", "Required Practices"}
)

// Loader reads the rules document from disk.
type Loader struct {
	path     string
	readFile func(string) ([]byte, error)
	logger   logging.Logger
}

// LoaderOption customises a Loader.
type LoaderOption func(*Loader)

// WithReadFile injects the file reader, used in tests.
func WithReadFile(readFile func(string) ([]byte, error)) LoaderOption {
	return func(l *Loader) {
		if readFile != nil {
			l.readFile = readFile
		}
	}
}

// WithLogger sets the loader logger.
func WithLogger(logger logging.Logger) LoaderOption {
	return func(l *Loader) { l.logger = logging.OrNop(logger) }
}

// NewLoader returns a Loader for path, or DefaultPath when path is empty.
func NewLoader(path string, opts ...LoaderOption) *Loader {
	if strings.TrimSpace(path) == "" {
		path = DefaultPath
	}
	l := &Loader{path: path, readFile: os.ReadFile, logger: logging.Nop()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Path returns the document location.
func (l *Loader) Path() string {
	return l.path
}

// Load returns the document text, or "" when it is missing or unreadable.
func (l *Loader) Load() string {
	data, err := l.readFile(l.path)
	if err != nil {
		if !os.IsNotExist(err) {
			l.logger.Warn("Could not read guidelines %s: %v", l.path, err)
		}
		return ""
	}
	return string(data)
}

// Excerpt returns the overview and mandatory-practices sections of text
// joined by a blank line. Missing sections are left out; the result is ""
// when neither is present.
func Excerpt(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	outline := ParseOutline(text)
	var parts []string
	for _, markers := range [][]string{OverviewMarkers, PracticesMarkers} {
		if section, ok := outline.Find(markers...); ok {
			parts = append(parts, section.Text())
		}
	}
	return strings.Join(parts, "\n\n")
}
