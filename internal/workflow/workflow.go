// Package workflow composes knowledge-service primitives into higher level
// operations: filtered search, graph views, multi-source synthesis and
// iterative research.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"genflow/internal/knowledge"
	"genflow/internal/shared/logging"
)

const (
	DefaultMaxResults = 10
	DefaultMinScore   = 0.7
	DefaultNumSources = 10

	graphEntityLimit       = 50
	graphRelationshipLimit = 50
	graphCommunityLimit    = 20

	synthesisPrefix    = "Synthesize comprehensive answer from multiple sources: "
	synthesisMaxTokens = 8000

	DefaultResearchIterations = 3
	MaxResearchIterations     = 10
	DefaultResearchMaxTokens  = 4000
)

// SearchReport is the result of SmartSearch.
type SearchReport struct {
	Query         string            `json:"query"`
	TotalFound    int               `json:"total_found"`
	FilteredCount int               `json:"filtered_count"`
	MinScore      float64           `json:"min_score"`
	Results       []knowledge.Chunk `json:"results"`
}

// GraphStats counts the resources of a GraphView.
type GraphStats struct {
	EntityCount       int `json:"entity_count"`
	RelationshipCount int `json:"relationship_count"`
	CommunityCount    int `json:"community_count"`
}

// GraphView joins the entities, relationships and communities of one
// collection.
type GraphView struct {
	CollectionID  string           `json:"collection_id"`
	EntityFilter  string           `json:"entity_filter,omitempty"`
	Entities      []map[string]any `json:"entities"`
	Relationships []map[string]any `json:"relationships"`
	Communities   []map[string]any `json:"communities"`
	Stats         GraphStats       `json:"graph_stats"`
}

// SynthesisReport is the result of SynthesizeSources.
type SynthesisReport struct {
	Query             string            `json:"query"`
	SourcesFound      int               `json:"sources_found"`
	SynthesizedAnswer string            `json:"synthesized_answer"`
	Sources           []knowledge.Chunk `json:"sources"`
}

// ResearchStep is the agent response of one research iteration.
type ResearchStep struct {
	Iteration int    `json:"iteration"`
	Response  string `json:"response"`
}

// ResearchReport is the result of DeepResearch.
type ResearchReport struct {
	Query          string         `json:"query"`
	Iterations     int            `json:"iterations"`
	ConversationID string         `json:"conversation_id,omitempty"`
	Steps          []ResearchStep `json:"research_steps"`
	Status         string         `json:"status"`
}

// Service runs the composite workflows.
type Service struct {
	retriever  knowledge.Retriever
	graph      knowledge.GraphReader
	researcher knowledge.Researcher
	logger     logging.Logger
}

// New builds a Service over svc.
func New(svc knowledge.Service, logger logging.Logger) *Service {
	if svc == nil {
		svc = knowledge.Unavailable("")
	}
	return &Service{retriever: svc, graph: svc, researcher: svc, logger: logging.OrNop(logger)}
}

// SmartSearch over-fetches, keeps chunks scoring at least minScore and
// returns at most maxResults of them in service order.
func (s *Service) SmartSearch(ctx context.Context, query string, maxResults int, minScore float64) (SearchReport, error) {
	if strings.TrimSpace(query) == "" {
		return SearchReport{}, errors.New("query is required")
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	outcome := s.retriever.Search(ctx, query, maxResults*2)
	if !outcome.OK() {
		return SearchReport{}, outcome.Err
	}

	filtered := make([]knowledge.Chunk, 0, maxResults)
	for _, chunk := range outcome.Value {
		if chunk.Score < minScore {
			continue
		}
		filtered = append(filtered, chunk)
		if len(filtered) == maxResults {
			break
		}
	}
	s.logger.Debug("Smart search %q: %d found, %d kept", query, len(outcome.Value), len(filtered))
	return SearchReport{
		Query:         query,
		TotalFound:    len(outcome.Value),
		FilteredCount: len(filtered),
		MinScore:      minScore,
		Results:       filtered,
	}, nil
}

// KnowledgeGraph reads the three graph listings concurrently. Any failed
// read fails the whole view.
func (s *Service) KnowledgeGraph(ctx context.Context, collectionID, entityFilter string) (GraphView, error) {
	if strings.TrimSpace(collectionID) == "" {
		return GraphView{}, errors.New("collection id is required")
	}
	view := GraphView{CollectionID: collectionID, EntityFilter: entityFilter}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		entities, err := s.graph.Entities(gctx, collectionID, graphEntityLimit)
		view.Entities = entities
		return err
	})
	g.Go(func() error {
		relationships, err := s.graph.Relationships(gctx, collectionID, graphRelationshipLimit)
		view.Relationships = relationships
		return err
	})
	g.Go(func() error {
		communities, err := s.graph.Communities(gctx, collectionID, graphCommunityLimit)
		view.Communities = communities
		return err
	})
	if err := g.Wait(); err != nil {
		return GraphView{}, fmt.Errorf("knowledge graph %s: %w", collectionID, err)
	}

	if view.Entities == nil {
		view.Entities = []map[string]any{}
	}
	if view.Relationships == nil {
		view.Relationships = []map[string]any{}
	}
	if view.Communities == nil {
		view.Communities = []map[string]any{}
	}
	view.Stats = GraphStats{
		EntityCount:       len(view.Entities),
		RelationshipCount: len(view.Relationships),
		CommunityCount:    len(view.Communities),
	}
	return view, nil
}

// SynthesizeSources gathers numSources chunks and asks for an answer that
// combines them.
func (s *Service) SynthesizeSources(ctx context.Context, query string, numSources int) (SynthesisReport, error) {
	if strings.TrimSpace(query) == "" {
		return SynthesisReport{}, errors.New("query is required")
	}
	if numSources <= 0 {
		numSources = DefaultNumSources
	}
	sources := s.retriever.Search(ctx, query, numSources)
	if !sources.OK() {
		return SynthesisReport{}, sources.Err
	}
	answer := s.retriever.RAGAnswer(ctx, synthesisPrefix+query, synthesisMaxTokens)
	if !answer.OK() {
		return SynthesisReport{}, answer.Err
	}
	return SynthesisReport{
		Query:             query,
		SourcesFound:      len(sources.Value),
		SynthesizedAnswer: answer.Value.Content,
		Sources:           sources.Value,
	}, nil
}

// DeepResearch runs iterations turns of one research-agent conversation. The
// first turn asks the question and every later turn asks to go deeper. A
// failed turn fails the whole report.
func (s *Service) DeepResearch(ctx context.Context, query string, iterations, maxTokens int) (ResearchReport, error) {
	if strings.TrimSpace(query) == "" {
		return ResearchReport{}, errors.New("query is required")
	}
	if iterations <= 0 {
		iterations = DefaultResearchIterations
	}
	if iterations > MaxResearchIterations {
		iterations = MaxResearchIterations
	}
	if maxTokens <= 0 {
		maxTokens = DefaultResearchMaxTokens
	}

	report := ResearchReport{Query: query, Iterations: iterations, Steps: make([]ResearchStep, 0, iterations)}
	for i := 1; i <= iterations; i++ {
		message := fmt.Sprintf("Research question: %s. Provide comprehensive analysis with key concepts.", query)
		if i > 1 {
			message = fmt.Sprintf("Based on previous response, provide deeper analysis of iteration %d/%d.", i, iterations)
		}
		turn, err := s.researcher.Converse(ctx, message, report.ConversationID, maxTokens)
		if err != nil {
			return ResearchReport{}, fmt.Errorf("research iteration %d: %w", i, err)
		}
		if turn.ConversationID != "" {
			report.ConversationID = turn.ConversationID
		}
		report.Steps = append(report.Steps, ResearchStep{Iteration: i, Response: turn.Response})
		s.logger.Debug("Research iteration %d/%d done (%d chars)", i, iterations, len(turn.Response))
	}
	report.Status = "completed"
	return report, nil
}
