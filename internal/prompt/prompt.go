// Package prompt assembles the size-bounded generation prompt from the task
// description, repository rules, knowledge-service context and changed
// files.
package prompt

import (
	"strings"
	"unicode/utf8"
)

// Section caps are design constants, not configuration, so the overall prompt
// size stays predictable whatever the knowledge service returns.
const (
	GuidelinesCap          = 2000
	BestPracticesCap       = 1500
	BestPracticesMaxTokens = 2000
	ContextChunkLimit      = 3
	ContextChunkCap        = 400
	SourceLabelCap         = 120
	FilePreviewLimit       = 5
	FilePreviewCap         = 800

	chunkEllipsis   = "..."
	fileTruncMarker = "\n... (truncated)"
)

// Instructions is the fixed footer appended to every prompt.
const Instructions = `Please follow these guidelines:
1. Follow the repository rules and coding standards from CLAUDE.md
2. Apply best practices from the knowledge base
3. Reference relevant documentation and examples
4. Ensure code quality, readability, and maintainability
5. Include proper error handling and comments
6. Write tests for new functionality where appropriate`

// Kind identifies a prompt section.
type Kind string

const (
	KindTask          Kind = "task"
	KindContextHeader Kind = "context_header"
	KindGuidelines    Kind = "guidelines"
	KindBestPractices Kind = "best_practices"
	KindContext       Kind = "context"
	KindFiles         Kind = "files"
	KindInstructions  Kind = "instructions"
)

// Section is one heading and its body.
type Section struct {
	Kind    Kind
	Heading string
	Body    string
}

func (s Section) render() string {
	if s.Body == "" {
		return s.Heading
	}
	return s.Heading + "\n\n" + s.Body
}

// EnrichedPrompt is the ordered set of sections sent to the agent. It is
// built once by Composer and read-only afterwards.
type EnrichedPrompt struct {
	sections      []Section
	fileCount     int
	embeddedFiles int
	tokenEstimate int
}

// Sections returns a copy of the prompt sections in order.
func (p EnrichedPrompt) Sections() []Section {
	out := make([]Section, len(p.sections))
	copy(out, p.sections)
	return out
}

// Has reports whether a section of kind is present.
func (p EnrichedPrompt) Has(kind Kind) bool {
	_, ok := p.Section(kind)
	return ok
}

// Section returns the first section of kind.
func (p EnrichedPrompt) Section(kind Kind) (Section, bool) {
	for _, s := range p.sections {
		if s.Kind == kind {
			return s, true
		}
	}
	return Section{}, false
}

// FileCount is the number of files supplied, embedded or not.
func (p EnrichedPrompt) FileCount() int { return p.fileCount }

// EmbeddedFiles is the number of file previews included.
func (p EnrichedPrompt) EmbeddedFiles() int { return p.embeddedFiles }

// TokenEstimate is the approximate prompt size in tokens.
func (p EnrichedPrompt) TokenEstimate() int { return p.tokenEstimate }

// String serializes the prompt.
func (p EnrichedPrompt) String() string {
	parts := make([]string, 0, len(p.sections))
	for _, s := range p.sections {
		parts = append(parts, s.render())
	}
	return strings.Join(parts, "\n\n") + "\n"
}

// truncateRunes cuts s to at most limit runes and reports whether it did.
func truncateRunes(s string, limit int) (string, bool) {
	if limit < 0 || utf8.RuneCountInString(s) <= limit {
		return s, false
	}
	count := 0
	for i := range s {
		if count == limit {
			return s[:i], true
		}
		count++
	}
	return s, false
}
