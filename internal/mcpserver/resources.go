package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// staticResource is a read-only markdown document served under a fixed URI.
type staticResource struct {
	uri         string
	name        string
	description string
	text        string
}

func (r staticResource) Resource() mcp.Resource {
	return mcp.NewResource(
		r.uri,
		r.name,
		mcp.WithResourceDescription(r.description),
		mcp.WithMIMEType("text/markdown"),
	)
}

func (r staticResource) Handle(_ context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "text/markdown",
			Text:     r.text,
		},
	}, nil
}

func staticResources() []staticResource {
	return []staticResource{
		{
			uri:         "prompts://research/deep_analysis",
			name:        "Deep Analysis Prompt",
			description: "Step-by-step structure for answering a research question from the knowledge base",
			text:        deepAnalysisPrompt,
		},
		{
			uri:         "prompts://synthesis/multi_source",
			name:        "Multi-Source Synthesis Prompt",
			description: "How to merge several retrieved sources into one attributed answer",
			text:        multiSourcePrompt,
		},
		{
			uri:         "workflows://available",
			name:        "Available Workflows",
			description: "Tools exposed by this server and when to use them",
			text:        availableWorkflows(),
		},
	}
}

const deepAnalysisPrompt = `# Deep Analysis

1. **Frame the question**
   - Restate it in one sentence
   - List the key terms and anything ambiguous

2. **Gather evidence**
   - Run knowledge_search with a focused query
   - Drop weak matches by raising min_score
   - Pull out concrete facts and figures

3. **Analyze**
   - Look for patterns across results
   - Record contradictions and gaps

4. **Conclude**
   - Answer from the evidence only
   - State how confident you are

5. **Follow up**
   - Suggest the next queries worth running
`

const multiSourcePrompt = `# Multi-Source Synthesis

1. **Compare sources**
   - Find themes shared between sources
   - Note what each source adds on its own
   - Resolve or flag contradictions

2. **Merge**
   - Write a single narrative that keeps the nuance of each source

3. **Cite**
   - Reference sources as [source_id]
   - Mark where sources agree and where they disagree
`

var workflowSummaries = []struct {
	name    string
	summary string
}{
	{"knowledge_search", "hybrid search filtered by minimum relevance score"},
	{"knowledge_graph_query", "entities, relationships and communities of a collection"},
	{"synthesize_sources", "one synthesized answer built from many sources"},
	{"deep_research", "multi-turn agent research that refines its answer each iteration"},
	{"codegen_run", "context-enriched code generation task with polling and archiving"},
}

func availableWorkflows() string {
	var b strings.Builder
	b.WriteString("# Available Workflows\n\n")
	for i, w := range workflowSummaries {
		fmt.Fprintf(&b, "%d. **%s** - %s\n", i+1, w.name, w.summary)
	}
	return b.String()
}
