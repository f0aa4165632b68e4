package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"genflow/internal/config"
)

// Version is set at build time via ldflags.
var Version = "dev"

// cliEnv carries the process surroundings so tests can replace them.
type cliEnv struct {
	stdout  io.Writer
	stderr  io.Writer
	env     config.EnvLookup
	homeDir func() (string, error)
	// workDir is where task files are discovered.
	workDir string
	// plain disables colors and markdown rendering.
	plain bool
}

func (e cliEnv) withDefaults() cliEnv {
	if e.stdout == nil {
		e.stdout = os.Stdout
	}
	if e.stderr == nil {
		e.stderr = os.Stderr
	}
	if e.env == nil {
		e.env = config.DefaultEnvLookup
	}
	if e.homeDir == nil {
		e.homeDir = os.UserHomeDir
	}
	if e.workDir == "" {
		e.workDir = "."
	}
	return e
}

// cli holds state shared by every subcommand.
type cli struct {
	env   cliEnv
	viper *viper.Viper
}

// NewRootCommand creates the genflow command tree. With no subcommand it
// behaves like "genflow run".
func NewRootCommand(env cliEnv) *cobra.Command {
	c := &cli{env: env.withDefaults(), viper: viper.New()}

	runCmd := newRunCommand(c)
	rootCmd := &cobra.Command{
		Use:   "genflow",
		Short: "🤖 Context-enriched code generation with R2R knowledge integration",
		Long: `genflow enriches a code generation task with repository rules, knowledge
base context and changed-file snippets, submits it to the Codegen agent
and archives the result back into the knowledge base.

Examples:
  genflow                        # run the task in codegen_task.json or changed_files.txt
  genflow run --type fix_bugs --description "nil map in loader" --files internal/a.go
  genflow mcp                    # serve the knowledge tools over MCP stdio
  genflow http --addr :8080      # serve the HTTP API
  genflow history                # list recent runs`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.viper.BindPFlags(cmd.Flags())
		},
		RunE: runCmd.RunE,
	}
	rootCmd.SetOut(c.env.stdout)
	rootCmd.SetErr(c.env.stderr)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Path to the config file (default ~/.genflow/config.yaml)")
	flags.String("log-level", "", "Log level (debug|info|warn|error)")
	flags.String("log-format", "", "Log format (text|json)")
	flags.String("data-dir", "", "Directory holding the run ledger")
	flags.Bool("ledger", true, "Record runs in the local ledger")
	flags.Bool("tracing", false, "Export OpenTelemetry traces")
	flags.String("r2r-url", "", "R2R API endpoint (overrides R2R_BASE_URL)")
	flags.String("codegen-url", "", "Codegen API endpoint (overrides CODEGEN_BASE_URL)")

	// The bare command accepts the run flags too.
	rootCmd.Flags().AddFlagSet(runCmd.Flags())

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(newMCPCommand(c))
	rootCmd.AddCommand(newHTTPCommand(c))
	rootCmd.AddCommand(newHistoryCommand(c))
	rootCmd.AddCommand(newHealthCommand(c))
	return rootCmd
}

// loadConfig resolves the configuration with flags taking highest precedence.
func (c *cli) loadConfig(cmd *cobra.Command) (config.Config, config.Metadata, error) {
	opts := []config.Option{
		config.WithEnv(c.env.env),
		config.WithHomeDir(c.env.homeDir),
		config.WithOverrides(c.overrides(cmd)),
	}
	if path := c.viper.GetString("config"); path != "" {
		opts = append(opts, config.WithConfigPath(path))
	}
	cfg, meta, err := config.Load(opts...)
	if err != nil {
		return config.Config{}, config.Metadata{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, meta, nil
}

// overrides collects the flags the user actually set. Flag defaults never
// shadow the file or the environment.
func (c *cli) overrides(cmd *cobra.Command) config.Overrides {
	changed := func(name string) bool {
		f := cmd.Flags().Lookup(name)
		return f != nil && f.Changed
	}
	str := func(name string) *string {
		if !changed(name) {
			return nil
		}
		v := c.viper.GetString(name)
		return &v
	}
	boolean := func(name string) *bool {
		if !changed(name) {
			return nil
		}
		v := c.viper.GetBool(name)
		return &v
	}

	o := config.Overrides{
		CodegenBaseURL:   str("codegen-url"),
		KnowledgeBaseURL: str("r2r-url"),
		LogLevel:         str("log-level"),
		LogFormat:        str("log-format"),
		DataDir:          str("data-dir"),
		LedgerEnabled:    boolean("ledger"),
		TracingEnabled:   boolean("tracing"),
		GuidelinesPath:   str("guidelines"),
		OutputDir:        str("output-dir"),
		TimeoutPolicy:    str("timeout-policy"),
		HTTPAddr:         str("addr"),
	}
	if changed("max-wait") {
		d := c.viper.GetDuration("max-wait")
		o.MaxWait = &d
	}
	if changed("poll-interval") {
		d := c.viper.GetDuration("poll-interval")
		o.PollInterval = &d
	}
	return o
}
