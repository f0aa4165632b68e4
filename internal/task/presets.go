package task

import (
	"context"
	"errors"
	"fmt"
	"unicode"
	"unicode/utf8"

	"genflow/internal/knowledge"
	"genflow/internal/orchestrator"
)

const (
	prContextCap       = 1000
	prContextMaxTokens = 4000
	defaultPRAction    = "review"
)

// ErrPRNumberRequired is returned for analyze_pr tasks without pr_number.
var ErrPRNumberRequired = errors.New("PR number required for analyze_pr task")

// Advisor answers best-practice questions.
type Advisor interface {
	RAGAnswer(ctx context.Context, question string, maxTokens int) knowledge.Outcome[*knowledge.Answer]
}

// Resolve maps cfg onto the request the runner executes. Advisor may be nil.
func Resolve(ctx context.Context, cfg Config, advisor Advisor) (orchestrator.TaskRequest, error) {
	switch cfg.Type {
	case TypeImproveDocs:
		return orchestrator.TaskRequest{
			Description: "Improve documentation: enhance clarity, fix errors, add examples",
			Files:       cfg.Files,
		}, nil
	case TypeGenerateCode:
		return orchestrator.TaskRequest{Description: "Generate code: " + cfg.Description, Files: cfg.Files}, nil
	case TypeFixBugs:
		return orchestrator.TaskRequest{Description: "Fix bug: " + cfg.Description, Files: cfg.Files}, nil
	case TypeReviewCode:
		return orchestrator.TaskRequest{
			Description: "Review code: check quality, security, performance, and adherence to best practices",
			Files:       cfg.Files,
		}, nil
	case TypeAnalyzePR:
		return analyzePR(ctx, cfg, advisor)
	}
	if cfg.Description == "" {
		return orchestrator.TaskRequest{}, fmt.Errorf("task %q has no description", cfg.Type)
	}
	return orchestrator.TaskRequest{Description: cfg.Description, Files: cfg.Files}, nil
}

func analyzePR(ctx context.Context, cfg Config, advisor Advisor) (orchestrator.TaskRequest, error) {
	if cfg.PRNumber <= 0 {
		return orchestrator.TaskRequest{}, ErrPRNumberRequired
	}
	action := cfg.Action
	if action == "" {
		action = defaultPRAction
	}
	description := fmt.Sprintf("%s PR #%d", capitalize(action), cfg.PRNumber)
	if advisor != nil {
		question := fmt.Sprintf("What are the best practices for %s in pull requests?", action)
		if outcome := advisor.RAGAnswer(ctx, question, prContextMaxTokens); outcome.OK() && outcome.Value.Content != "" {
			description += "\n\nBest Practices:\n" + firstRunes(outcome.Value.Content, prContextCap)
		}
	}
	// PR analysis runs without file context.
	return orchestrator.TaskRequest{Description: description}, nil
}

// capitalize upper-cases the first rune and lower-cases the rest.
func capitalize(s string) string {
	first, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return s
	}
	rest := []rune(s[size:])
	for i, r := range rest {
		rest[i] = unicode.ToLower(r)
	}
	return string(unicode.ToUpper(first)) + string(rest)
}

func firstRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}
