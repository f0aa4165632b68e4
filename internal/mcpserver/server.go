// Package mcpserver exposes the knowledge workflows and the generation runner
// as an MCP server over stdio.
package mcpserver

import (
	"errors"

	"github.com/mark3labs/mcp-go/server"

	"genflow/internal/shared/logging"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Dependencies wires the server to the rest of the application.
type Dependencies struct {
	Workflows Workflows
	// Runner is optional; codegen_run is only registered when set.
	Runner TaskRunner
	Logger logging.Logger
}

// New creates the MCP server with every tool and resource registered.
func New(deps Dependencies) (*server.MCPServer, error) {
	if deps.Workflows == nil {
		return nil, errors.New("mcpserver: workflows are required")
	}
	logger := logging.OrNop(deps.Logger)

	s := server.NewMCPServer(
		"genflow",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions(deps.Runner != nil)),
	)

	searchTool := NewSearchTool(deps.Workflows)
	s.AddTool(searchTool.Definition(), searchTool.Handle)

	graphTool := NewGraphTool(deps.Workflows)
	s.AddTool(graphTool.Definition(), graphTool.Handle)

	synthesizeTool := NewSynthesizeTool(deps.Workflows)
	s.AddTool(synthesizeTool.Definition(), synthesizeTool.Handle)

	researchTool := NewResearchTool(deps.Workflows)
	s.AddTool(researchTool.Definition(), researchTool.Handle)

	if deps.Runner != nil {
		runTool := NewRunTool(deps.Runner)
		s.AddTool(runTool.Definition(), runTool.Handle)
	} else {
		logger.Warn("codegen_run not registered: no task runner configured")
	}

	for _, r := range staticResources() {
		s.AddResource(r.Resource(), r.Handle)
	}
	return s, nil
}

// Serve runs s on stdin/stdout until the client disconnects.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

func serverInstructions(withRunner bool) string {
	text := `genflow answers questions from an R2R knowledge base.

Use knowledge_search for targeted lookups, synthesize_sources for broad questions
that need an answer built from many documents, deep_research for questions that
need several rounds of refinement, and knowledge_graph_query to explore entities
and relationships of a collection.`
	if withRunner {
		text += `

codegen_run submits a code generation task. The prompt is enriched with repository
rules and knowledge-base context before submission, and the call waits for the
remote agent unless wait is false.`
	}
	return text
}
