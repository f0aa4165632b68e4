package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genflow/internal/knowledge"
)

type fakeKnowledge struct {
	mu         sync.Mutex
	chunks     []knowledge.Chunk
	answer     string
	searchErr  error
	ragErr     error
	graphErr   map[string]error
	limits     map[string]int
	questions  []string
	searchArgs []int
	turns      []knowledge.Turn
	turnErr    map[int]error
	messages   []string
	convIDs    []string
}

func (f *fakeKnowledge) Converse(_ context.Context, message, conversationID string, _ int) (knowledge.Turn, error) {
	f.messages = append(f.messages, message)
	f.convIDs = append(f.convIDs, conversationID)
	n := len(f.messages)
	if err := f.turnErr[n]; err != nil {
		return knowledge.Turn{}, err
	}
	if n <= len(f.turns) {
		return f.turns[n-1], nil
	}
	return knowledge.Turn{Response: "more"}, nil
}

func (f *fakeKnowledge) Search(_ context.Context, _ string, limit int) knowledge.Outcome[[]knowledge.Chunk] {
	f.searchArgs = append(f.searchArgs, limit)
	if f.searchErr != nil {
		return knowledge.Failed[[]knowledge.Chunk](f.searchErr, "knowledge search unavailable")
	}
	out := f.chunks
	if len(out) > limit {
		out = out[:limit]
	}
	return knowledge.Succeeded(out)
}

func (f *fakeKnowledge) RAGAnswer(_ context.Context, question string, _ int) knowledge.Outcome[*knowledge.Answer] {
	f.questions = append(f.questions, question)
	if f.ragErr != nil {
		return knowledge.Failed[*knowledge.Answer](f.ragErr, "knowledge answer unavailable")
	}
	return knowledge.Succeeded(&knowledge.Answer{Content: f.answer, Query: question})
}

func (f *fakeKnowledge) Archive(context.Context, string, map[string]any) knowledge.Outcome[bool] {
	return knowledge.Succeeded(true)
}

func (f *fakeKnowledge) Health(context.Context) error { return nil }

func (f *fakeKnowledge) list(resource string, limit int, n int) ([]map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.limits == nil {
		f.limits = map[string]int{}
	}
	f.limits[resource] = limit
	if err := f.graphErr[resource]; err != nil {
		return nil, err
	}
	out := make([]map[string]any, n)
	for i := range out {
		out[i] = map[string]any{"id": i}
	}
	return out, nil
}

func (f *fakeKnowledge) Entities(_ context.Context, _ string, limit int) ([]map[string]any, error) {
	return f.list("entities", limit, 3)
}

func (f *fakeKnowledge) Relationships(_ context.Context, _ string, limit int) ([]map[string]any, error) {
	return f.list("relationships", limit, 2)
}

func (f *fakeKnowledge) Communities(_ context.Context, _ string, limit int) ([]map[string]any, error) {
	return f.list("communities", limit, 0)
}

func TestSmartSearchFiltersAndCaps(t *testing.T) {
	fk := &fakeKnowledge{chunks: []knowledge.Chunk{
		{Text: "a", Score: 0.95},
		{Text: "b", Score: 0.4},
		{Text: "c", Score: 0.7},
		{Text: "d", Score: 0.81},
		{Text: "e", Score: 0.9},
	}}
	report, err := New(fk, nil).SmartSearch(context.Background(), "retry policy", 2, 0.7)
	require.NoError(t, err)

	assert.Equal(t, []int{4}, fk.searchArgs, "over-fetches twice the result count")
	assert.Equal(t, 4, report.TotalFound)
	assert.Equal(t, 2, report.FilteredCount)
	require.Len(t, report.Results, 2)
	assert.Equal(t, "a", report.Results[0].Text)
	assert.Equal(t, "c", report.Results[1].Text, "a score equal to the threshold is kept")
}

func TestSmartSearchDefaultsAndFailures(t *testing.T) {
	fk := &fakeKnowledge{}
	report, err := New(fk, nil).SmartSearch(context.Background(), "q", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{20}, fk.searchArgs)
	assert.Empty(t, report.Results)

	_, err = New(fk, nil).SmartSearch(context.Background(), "  ", 5, 0.5)
	assert.Error(t, err)

	fk = &fakeKnowledge{searchErr: errors.New("connection refused")}
	_, err = New(fk, nil).SmartSearch(context.Background(), "q", 5, 0.5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestKnowledgeGraphJoinsAllListings(t *testing.T) {
	fk := &fakeKnowledge{}
	view, err := New(fk, nil).KnowledgeGraph(context.Background(), "col-1", "Parser")
	require.NoError(t, err)

	assert.Equal(t, "col-1", view.CollectionID)
	assert.Equal(t, "Parser", view.EntityFilter)
	assert.Equal(t, GraphStats{EntityCount: 3, RelationshipCount: 2, CommunityCount: 0}, view.Stats)
	assert.NotNil(t, view.Communities)
	assert.Equal(t, map[string]int{"entities": 50, "relationships": 50, "communities": 20}, fk.limits)
}

func TestKnowledgeGraphFailsAsWhole(t *testing.T) {
	fk := &fakeKnowledge{graphErr: map[string]error{"relationships": errors.New("status 500")}}
	view, err := New(fk, nil).KnowledgeGraph(context.Background(), "col-1", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
	assert.Nil(t, view.Entities)

	_, err = New(fk, nil).KnowledgeGraph(context.Background(), "", "")
	assert.Error(t, err)
}

func TestSynthesizeSources(t *testing.T) {
	fk := &fakeKnowledge{
		chunks: []knowledge.Chunk{{Text: "one"}, {Text: "two"}, {Text: "three"}},
		answer: "combined",
	}
	report, err := New(fk, nil).SynthesizeSources(context.Background(), "caching", 2)
	require.NoError(t, err)

	assert.Equal(t, 2, report.SourcesFound)
	assert.Equal(t, "combined", report.SynthesizedAnswer)
	assert.Equal(t, []string{"Synthesize comprehensive answer from multiple sources: caching"}, fk.questions)

	fk.ragErr = errors.New("no choices in response")
	_, err = New(fk, nil).SynthesizeSources(context.Background(), "caching", 0)
	require.Error(t, err)
	assert.Equal(t, []int{2, 10}, fk.searchArgs)
}

func TestNewWithoutService(t *testing.T) {
	_, err := New(nil, nil).KnowledgeGraph(context.Background(), "col", "")
	assert.ErrorIs(t, err, knowledge.ErrUnavailable)
}

func TestDeepResearchThreadsConversation(t *testing.T) {
	fk := &fakeKnowledge{turns: []knowledge.Turn{
		{ConversationID: "conv-9", Response: "overview"},
		{Response: "details"},
	}}
	report, err := New(fk, nil).DeepResearch(context.Background(), "event sourcing", 3, 0)
	require.NoError(t, err)

	assert.Equal(t, "completed", report.Status)
	assert.Equal(t, 3, report.Iterations)
	assert.Equal(t, "conv-9", report.ConversationID)
	require.Len(t, report.Steps, 3)
	assert.Equal(t, ResearchStep{Iteration: 1, Response: "overview"}, report.Steps[0])
	assert.Equal(t, []string{"", "conv-9", "conv-9"}, fk.convIDs)
	assert.Contains(t, fk.messages[0], "Research question: event sourcing.")
	assert.Contains(t, fk.messages[2], "iteration 3/3")
}

func TestDeepResearchDefaultsAndFailures(t *testing.T) {
	fk := &fakeKnowledge{}
	report, err := New(fk, nil).DeepResearch(context.Background(), "q", 0, 0)
	require.NoError(t, err)
	assert.Len(t, report.Steps, DefaultResearchIterations)

	report, err = New(&fakeKnowledge{}, nil).DeepResearch(context.Background(), "q", 50, 0)
	require.NoError(t, err)
	assert.Equal(t, MaxResearchIterations, report.Iterations)

	_, err = New(fk, nil).DeepResearch(context.Background(), " ", 1, 0)
	assert.Error(t, err)

	boom := errors.New("agent down")
	_, err = New(&fakeKnowledge{turnErr: map[int]error{2: boom}}, nil).DeepResearch(context.Background(), "q", 3, 0)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "research iteration 2")
}
