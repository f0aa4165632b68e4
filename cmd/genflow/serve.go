package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"genflow/internal/agent"
	"genflow/internal/config"
	"genflow/internal/httpapi"
	"genflow/internal/mcpserver"
)

func newMCPCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "mcp",
		Aliases: []string{"serve"},
		Short:   "Serve the knowledge tools over MCP stdio",
		Long: `mcp exposes knowledge_search, knowledge_graph_query and synthesize_sources
to MCP clients over stdin/stdout. codegen_run is added when Codegen
credentials are configured. Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			container, err := c.serverContainer(cmd)
			if err != nil {
				return err
			}
			defer container.Close()

			deps := mcpserver.Dependencies{
				Workflows: container.Workflows,
				Logger:    container.Logger.Component("mcp"),
			}
			if agent.IsAvailable(container.Agent) {
				deps.Runner = container.Runner
			}
			mcpserver.Version = Version
			s, err := mcpserver.New(deps)
			if err != nil {
				return err
			}
			container.Logger.Info("mcp server listening on stdio", "version", Version)
			return mcpserver.Serve(s)
		},
	}
	return cmd
}

func newHTTPCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "http",
		Short: "Serve the knowledge workflows and the task runner over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			container, err := c.serverContainer(cmd)
			if err != nil {
				return err
			}
			defer container.Close()

			cfg := httpapi.DefaultConfig()
			cfg.Addr = container.Config.HTTP.Addr
			cfg.AllowedOrigins = container.Config.HTTP.AllowedOrigins
			cfg.Debug = container.Config.Observability.Logging.Level == "debug"

			deps := httpapi.Dependencies{
				Workflows: container.Workflows,
				Health:    container.Health,
				Gatherer:  container.Registry,
				Logger:    container.Logger.Component("http"),
				Version:   Version,
			}
			if agent.IsAvailable(container.Agent) {
				deps.Runner = container.Runner
			}
			// A nil *ledger.Store must not become a non-nil interface.
			if container.Ledger != nil {
				deps.History = container.Ledger
			}
			srv, err := httpapi.NewServer(cfg, deps)
			if err != nil {
				return err
			}
			container.Logger.Info("http server listening", "addr", cfg.Addr, "version", Version)
			return srv.ListenAndServe(cmd.Context())
		},
	}
	cmd.Flags().String("addr", "", "Listen address (default 127.0.0.1:8080)")
	return cmd
}

// serverContainer loads config for the long-running servers. Only the
// knowledge service is required; the agent is wired when credentials exist.
func (c *cli) serverContainer(cmd *cobra.Command) (*Container, error) {
	cfg, _, err := c.loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateKnowledge(); err != nil {
		var missing *config.MissingError
		if errors.As(err, &missing) {
			fmt.Fprintf(c.env.stderr, "❌ %v\n\n%s\n", err, config.Guide())
			return nil, &ExitCodeError{Code: exitFailure, Err: errReported}
		}
		return nil, err
	}
	return buildContainer(cfg, c.env, containerOptions{withAgent: true, withLedger: true})
}
