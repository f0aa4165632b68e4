// Package knowledge talks to the R2R knowledge service: hybrid search, RAG
// answers, document ingestion and knowledge-graph listings.
//
// Search, RAGAnswer and Archive are advisory. They never return errors to
// the caller; failures are folded into an Outcome that carries the reason.
// Graph reads return plain errors because graph views must fail as a whole.
package knowledge

import (
	"context"
	"fmt"
	"strconv"

	apperrors "genflow/internal/shared/errors"
)

// Chunk is one scored unit of retrieved text.
type Chunk struct {
	Text     string            `json:"text"`
	Score    float64           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Title returns the source title, or "Unknown".
func (c Chunk) Title() string {
	if title := c.Metadata["title"]; title != "" {
		return title
	}
	return "Unknown"
}

// DocumentType returns the source document type, possibly empty.
func (c Chunk) DocumentType() string {
	return c.Metadata["document_type"]
}

// Answer is a synthesized RAG answer and the question that produced it.
type Answer struct {
	Content string `json:"content"`
	Query   string `json:"query"`
}

// Outcome is the result of an advisory call. A failed outcome holds the
// zero Value and a *errors.DegradedError describing why.
type Outcome[T any] struct {
	Value T
	Err   error
}

// OK reports whether the call succeeded.
func (o Outcome[T]) OK() bool {
	return o.Err == nil
}

// Reason returns the failure reason, or "" on success.
func (o Outcome[T]) Reason() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// Succeeded wraps a successful value.
func Succeeded[T any](value T) Outcome[T] {
	return Outcome[T]{Value: value}
}

// Failed wraps err as a degraded failure.
func Failed[T any](err error, message string) Outcome[T] {
	return Outcome[T]{Err: apperrors.NewDegradedError(err, fmt.Sprintf("%s: %v", message, err), "")}
}

// Retriever is the read side used while composing prompts.
type Retriever interface {
	Search(ctx context.Context, query string, limit int) Outcome[[]Chunk]
	RAGAnswer(ctx context.Context, question string, maxTokens int) Outcome[*Answer]
}

// Ingester stores generated artifacts for later retrieval.
type Ingester interface {
	Archive(ctx context.Context, content string, metadata map[string]any) Outcome[bool]
}

// GraphReader lists knowledge-graph resources of a collection.
type GraphReader interface {
	Entities(ctx context.Context, collectionID string, limit int) ([]map[string]any, error)
	Relationships(ctx context.Context, collectionID string, limit int) ([]map[string]any, error)
	Communities(ctx context.Context, collectionID string, limit int) ([]map[string]any, error)
}

// Turn is one exchange with the knowledge service research agent.
type Turn struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Response       string `json:"response"`
}

// Researcher holds multi-turn conversations with the research agent. An empty
// conversationID starts a new conversation.
type Researcher interface {
	Converse(ctx context.Context, message, conversationID string, maxTokens int) (Turn, error)
}

// Service is everything the knowledge service offers.
type Service interface {
	Retriever
	Ingester
	GraphReader
	Researcher
	Health(ctx context.Context) error
}

func stringifyMetadata(raw map[string]any) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]string, len(raw))
	for key, value := range raw {
		switch v := value.(type) {
		case nil:
			continue
		case string:
			out[key] = v
		case float64:
			out[key] = strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			out[key] = strconv.FormatBool(v)
		default:
			out[key] = fmt.Sprint(v)
		}
	}
	return out
}
