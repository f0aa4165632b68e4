package prompt

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"genflow/internal/guidelines"
	"genflow/internal/knowledge"
	"genflow/internal/shared/logging"
	tokenutil "genflow/internal/shared/token"
)

// GuidelineSource yields the raw repository rules document.
type GuidelineSource interface {
	Load() string
}

// Option customises a Composer.
type Option func(*Composer)

// WithLogger sets the composer logger.
func WithLogger(logger logging.Logger) Option {
	return func(c *Composer) { c.logger = logging.OrNop(logger) }
}

// WithReadFile injects how changed files are read.
func WithReadFile(readFile func(string) ([]byte, error)) Option {
	return func(c *Composer) {
		if readFile != nil {
			c.readFile = readFile
		}
	}
}

// WithTokenCounter overrides the token estimator.
func WithTokenCounter(count func(string) int) Option {
	return func(c *Composer) {
		if count != nil {
			c.countTokens = count
		}
	}
}

// Observer is notified of every composed prompt.
type Observer interface {
	ObservePrompt(p EnrichedPrompt)
}

// WithObserver registers an observer for composed prompts.
func WithObserver(observer Observer) Option {
	return func(c *Composer) { c.observer = observer }
}

// Composer builds EnrichedPrompts.
type Composer struct {
	retriever   knowledge.Retriever
	guidelines  GuidelineSource
	readFile    func(string) ([]byte, error)
	countTokens func(string) int
	logger      logging.Logger
	observer    Observer
}

// NewComposer returns a Composer. A nil retriever behaves like an
// unreachable knowledge service; nil guidelines omit the rules section.
func NewComposer(retriever knowledge.Retriever, rules GuidelineSource, opts ...Option) *Composer {
	if retriever == nil {
		retriever = knowledge.Unavailable("no retriever configured")
	}
	c := &Composer{
		retriever:   retriever,
		guidelines:  rules,
		readFile:    os.ReadFile,
		countTokens: tokenutil.CountTokens,
		logger:      logging.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compose builds the prompt for taskDescription and files. Knowledge-service
// failures drop the affected sections; unreadable files are skipped.
func (c *Composer) Compose(ctx context.Context, taskDescription string, files []string) EnrichedPrompt {
	p := EnrichedPrompt{fileCount: len(files)}
	p.sections = append(p.sections,
		Section{Kind: KindTask, Heading: "# CODEGEN TASK", Body: taskDescription},
		Section{Kind: KindContextHeader, Heading: "## PROJECT CONTEXT & AGENT RULES"},
	)

	if section, ok := c.guidelineSection(); ok {
		p.sections = append(p.sections, section)
	}
	if section, ok := c.bestPracticesSection(ctx, taskDescription); ok {
		p.sections = append(p.sections, section)
	}
	if section, ok := c.contextSection(ctx, taskDescription); ok {
		p.sections = append(p.sections, section)
	}
	if len(files) > 0 {
		section, embedded := c.filesSection(files)
		p.sections = append(p.sections, section)
		p.embeddedFiles = embedded
	}
	p.sections = append(p.sections, Section{Kind: KindInstructions, Heading: "## INSTRUCTIONS", Body: Instructions})

	rendered := p.String()
	p.tokenEstimate = c.countTokens(rendered)
	c.logger.Info("Built enriched prompt (%d chars, ~%d tokens, %d/%d files embedded)",
		utf8.RuneCountInString(rendered), p.tokenEstimate, p.embeddedFiles, p.fileCount)
	if c.observer != nil {
		c.observer.ObservePrompt(p)
	}
	return p
}

func (c *Composer) guidelineSection() (Section, bool) {
	if c.guidelines == nil {
		return Section{}, false
	}
	excerpt := guidelines.Excerpt(c.guidelines.Load())
	if excerpt == "" {
		return Section{}, false
	}
	excerpt, _ = truncateRunes(excerpt, GuidelinesCap)
	return Section{Kind: KindGuidelines, Heading: "### Repository Rules (from CLAUDE.md)", Body: excerpt}, true
}

func (c *Composer) bestPracticesSection(ctx context.Context, taskDescription string) (Section, bool) {
	outcome := c.retriever.RAGAnswer(ctx, "best practices for "+taskDescription, BestPracticesMaxTokens)
	if !outcome.OK() || outcome.Value == nil || outcome.Value.Content == "" {
		if !outcome.OK() {
			c.logger.Debug("Best practices section omitted: %s", outcome.Reason())
		}
		return Section{}, false
	}
	answer, _ := truncateRunes(outcome.Value.Content, BestPracticesCap)
	return Section{Kind: KindBestPractices, Heading: "### Best Practices from Knowledge Base", Body: answer}, true
}

func (c *Composer) contextSection(ctx context.Context, taskDescription string) (Section, bool) {
	outcome := c.retriever.Search(ctx, taskDescription, ContextChunkLimit)
	if !outcome.OK() {
		c.logger.Debug("Context section omitted: %s", outcome.Reason())
		return Section{}, false
	}
	chunks := outcome.Value
	if len(chunks) > ContextChunkLimit {
		chunks = chunks[:ContextChunkLimit]
	}
	if len(chunks) == 0 {
		return Section{}, false
	}

	entries := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		preview, truncated := truncateRunes(chunk.Text, ContextChunkCap)
		if truncated {
			preview += chunkEllipsis
		}
		title, _ := truncateRunes(chunk.Title(), SourceLabelCap)
		docType, _ := truncateRunes(chunk.DocumentType(), SourceLabelCap)
		entries = append(entries, fmt.Sprintf("#### Context %d (relevance: %.3f)\n**Source:** %s (%s)\n\n```\n%s\n```",
			i+1, chunk.Score, title, docType, preview))
	}
	return Section{Kind: KindContext, Heading: "### Relevant Documentation & Examples", Body: strings.Join(entries, "\n\n")}, true
}

func (c *Composer) filesSection(files []string) (Section, int) {
	entries := []string{fmt.Sprintf("Total files: %d", len(files))}
	embedded := 0
	limit := len(files)
	if limit > FilePreviewLimit {
		limit = FilePreviewLimit
	}
	for _, path := range files[:limit] {
		data, err := c.readFile(path)
		if err != nil {
			c.logger.Warn("Could not read %s: %v", path, err)
			continue
		}
		if !utf8.Valid(data) {
			c.logger.Warn("Could not read %s: not valid UTF-8", path)
			continue
		}
		preview, truncated := truncateRunes(string(data), FilePreviewCap)
		if truncated {
			preview += fileTruncMarker
		}
		entries = append(entries, fmt.Sprintf("### %s\n```%s\n%s\n```", path, fenceLanguage(path), preview))
		embedded++
	}
	return Section{Kind: KindFiles, Heading: "## CHANGED FILES", Body: strings.Join(entries, "\n\n")}, embedded
}

func fenceLanguage(path string) string {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return "txt"
	}
	return ext
}
