package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"genflow/internal/orchestrator"
	"genflow/internal/workflow"
)

// Workflows is the composite knowledge surface exposed as tools.
type Workflows interface {
	SmartSearch(ctx context.Context, query string, maxResults int, minScore float64) (workflow.SearchReport, error)
	KnowledgeGraph(ctx context.Context, collectionID, entityFilter string) (workflow.GraphView, error)
	SynthesizeSources(ctx context.Context, query string, numSources int) (workflow.SynthesisReport, error)
	DeepResearch(ctx context.Context, query string, iterations, maxTokens int) (workflow.ResearchReport, error)
}

// TaskRunner runs generation tasks.
type TaskRunner interface {
	RunTask(ctx context.Context, req orchestrator.TaskRequest, opts orchestrator.RunOptions) orchestrator.TaskHandle
}

// SearchTool handles knowledge_search.
type SearchTool struct {
	workflows Workflows
}

// NewSearchTool creates a SearchTool.
func NewSearchTool(w Workflows) *SearchTool {
	return &SearchTool{workflows: w}
}

// Definition returns the MCP tool definition for registration.
func (t *SearchTool) Definition() mcp.Tool {
	return mcp.NewTool("knowledge_search",
		mcp.WithDescription(
			"Hybrid search over the knowledge base with score filtering. "+
				"Returns at most max_results chunks scoring at least min_score, in relevance order.",
		),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query")),
		mcp.WithNumber("max_results", mcp.Description("Maximum results to return (default 10)")),
		mcp.WithNumber("min_score", mcp.Description("Minimum relevance score between 0 and 1 (default 0.7)")),
	)
}

// Handle processes the knowledge_search tool call.
func (t *SearchTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	if query == "" {
		return mcp.NewToolResultError("query is required"), nil
	}
	report, err := t.workflows.SmartSearch(ctx, query,
		int(req.GetFloat("max_results", workflow.DefaultMaxResults)),
		req.GetFloat("min_score", workflow.DefaultMinScore))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	return jsonResult(report)
}

// GraphTool handles knowledge_graph_query.
type GraphTool struct {
	workflows Workflows
}

// NewGraphTool creates a GraphTool.
func NewGraphTool(w Workflows) *GraphTool {
	return &GraphTool{workflows: w}
}

// Definition returns the MCP tool definition for registration.
func (t *GraphTool) Definition() mcp.Tool {
	return mcp.NewTool("knowledge_graph_query",
		mcp.WithDescription("Entities, relationships and communities of a collection's knowledge graph, with counts."),
		mcp.WithString("collection_id", mcp.Required(), mcp.Description("Collection ID")),
		mcp.WithString("entity_name", mcp.Description("Optional entity to focus on")),
	)
}

// Handle processes the knowledge_graph_query tool call.
func (t *GraphTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	collectionID := req.GetString("collection_id", "")
	if collectionID == "" {
		return mcp.NewToolResultError("collection_id is required"), nil
	}
	view, err := t.workflows.KnowledgeGraph(ctx, collectionID, req.GetString("entity_name", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("graph query failed: %v", err)), nil
	}
	return jsonResult(view)
}

// SynthesizeTool handles synthesize_sources.
type SynthesizeTool struct {
	workflows Workflows
}

// NewSynthesizeTool creates a SynthesizeTool.
func NewSynthesizeTool(w Workflows) *SynthesizeTool {
	return &SynthesizeTool{workflows: w}
}

// Definition returns the MCP tool definition for registration.
func (t *SynthesizeTool) Definition() mcp.Tool {
	return mcp.NewTool("synthesize_sources",
		mcp.WithDescription("Search several sources and synthesize one comprehensive answer from them."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Question to answer")),
		mcp.WithNumber("num_sources", mcp.Description("Number of sources to gather (default 10)")),
	)
}

// Handle processes the synthesize_sources tool call.
func (t *SynthesizeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	if query == "" {
		return mcp.NewToolResultError("query is required"), nil
	}
	report, err := t.workflows.SynthesizeSources(ctx, query, int(req.GetFloat("num_sources", workflow.DefaultNumSources)))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("synthesis failed: %v", err)), nil
	}
	return jsonResult(report)
}

// ResearchTool handles deep_research.
type ResearchTool struct {
	workflows Workflows
}

// NewResearchTool creates a ResearchTool.
func NewResearchTool(w Workflows) *ResearchTool {
	return &ResearchTool{workflows: w}
}

// Definition returns the MCP tool definition for registration.
func (t *ResearchTool) Definition() mcp.Tool {
	return mcp.NewTool("deep_research",
		mcp.WithDescription("Multi-turn research with the knowledge base agent. Each iteration refines the previous answer."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Research question")),
		mcp.WithNumber("num_iterations", mcp.Description("Number of refinement turns (default 3, at most 10)")),
		mcp.WithNumber("max_tokens_per_iteration", mcp.Description("Token budget of each turn (default 4000)")),
	)
}

// Handle processes the deep_research tool call.
func (t *ResearchTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	if query == "" {
		return mcp.NewToolResultError("query is required"), nil
	}
	report, err := t.workflows.DeepResearch(ctx, query,
		int(req.GetFloat("num_iterations", workflow.DefaultResearchIterations)),
		int(req.GetFloat("max_tokens_per_iteration", workflow.DefaultResearchMaxTokens)))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("research failed: %v", err)), nil
	}
	return jsonResult(report)
}

// RunTool handles codegen_run.
type RunTool struct {
	runner TaskRunner
}

// NewRunTool creates a RunTool.
func NewRunTool(r TaskRunner) *RunTool {
	return &RunTool{runner: r}
}

// Definition returns the MCP tool definition for registration.
func (t *RunTool) Definition() mcp.Tool {
	return mcp.NewTool("codegen_run",
		mcp.WithDescription(
			"Run a code generation task enriched with repository rules and knowledge-base context. "+
				"Blocks until the task finishes or max_wait_seconds elapses unless wait is false.",
		),
		mcp.WithString("description", mcp.Required(), mcp.Description("What the agent should do")),
		mcp.WithArray("files", mcp.Description("Changed or relevant file paths"), mcp.WithStringItems()),
		mcp.WithBoolean("wait", mcp.Description("Poll until completion (default true)")),
		mcp.WithNumber("max_wait_seconds", mcp.Description("Polling budget in seconds (default 300)")),
	)
}

// Handle processes the codegen_run tool call.
func (t *RunTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	description := req.GetString("description", "")
	if description == "" {
		return mcp.NewToolResultError("description is required"), nil
	}
	maxWait := time.Duration(req.GetFloat("max_wait_seconds", orchestrator.DefaultMaxWait.Seconds()) * float64(time.Second))
	handle := t.runner.RunTask(ctx,
		orchestrator.TaskRequest{Description: description, Files: req.GetStringSlice("files", nil)},
		orchestrator.RunOptions{Wait: req.GetBool("wait", true), MaxWait: maxWait},
	)
	if handle.Failed() {
		data, err := json.MarshalIndent(handle, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshaling task handle: %w", err)
		}
		return mcp.NewToolResultError(string(data)), nil
	}
	return jsonResult(handle)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
