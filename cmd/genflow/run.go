package main

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"genflow/internal/config"
	"genflow/internal/orchestrator"
	"genflow/internal/output"
	"genflow/internal/task"
)

func newRunCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the generation task found in the working directory",
		Long: `Run reads codegen_task.json, or infers a task from changed_files.txt when
the config file is absent. --type or --description describe the task on the
command line instead.

Writes codegen_output.json and, when the agent returned a result,
codegen_result.md to the output directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runTask(cmd)
		},
	}

	flags := cmd.Flags()
	flags.String("dir", "", "Directory holding codegen_task.json or changed_files.txt (default: working directory)")
	flags.String("output-dir", "", "Directory for codegen_output.json and codegen_result.md")
	flags.String("guidelines", "", "Repository rules document (default CLAUDE.md)")
	flags.String("type", "", "Task type: improve_docs, generate_code, fix_bugs, review_code, analyze_pr")
	flags.String("description", "", "Task description")
	flags.StringSlice("files", nil, "Files whose contents are embedded in the prompt")
	flags.Int("pr", 0, "Pull request number for analyze_pr")
	flags.String("action", "", "Pull request action for analyze_pr (default review)")
	flags.Bool("wait", true, "Poll the agent until the task finishes")
	flags.Duration("max-wait", 0, "Polling budget (default 5m)")
	flags.Duration("poll-interval", 0, "Delay between status polls (default 5s)")
	flags.String("timeout-policy", "", "Status after the budget runs out: keep_last_status or mark_timed_out")
	return cmd
}

func (c *cli) printer() *output.Printer {
	if c.env.plain {
		return output.NewPlainPrinter(c.env.stdout)
	}
	return output.NewPrinter(c.env.stdout)
}

func (c *cli) runTask(cmd *cobra.Command) error {
	ctx := cmd.Context()
	p := c.printer()

	p.Banner("🤖 Codegen Orchestration Manager\n   AI-powered code generation with R2R context integration")
	p.Info("")

	cfg, _, err := c.loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		var missing *config.MissingError
		if !errors.As(err, &missing) {
			return err
		}
		p.Fail("❌ Missing required environment variables: %s", strings.Join(missing.Vars, ", "))
		p.Info("\n%s", config.Guide())
		return &ExitCodeError{Code: exitFailure, Err: errReported}
	}

	p.Info("🔧 Initializing R2R context provider...")
	p.Info("🔧 Initializing Codegen orchestrator...")
	container, err := buildContainer(cfg, c.env, containerOptions{withAgent: true, withLedger: true})
	if err != nil {
		return err
	}
	defer func() {
		if err := container.Close(); err != nil {
			container.Logger.Warn("shutdown incomplete", "error", err)
		}
	}()
	if err := container.Knowledge.Health(ctx); err != nil {
		p.Warn("⚠️  R2R connection warning: %v", err)
	} else {
		p.Info("✅ R2R connection verified")
	}
	p.Info("")

	taskCfg, found, err := c.taskConfig(p)
	if err != nil {
		return err
	}
	if !found {
		p.Info("✅ No files to analyze")
		return nil
	}

	p.Info("")
	p.Info("🎯 Task Configuration:")
	p.Info("   Type: %s", taskCfg.Type)
	p.Info("   Description: %s", taskCfg.Description)
	p.Info("   Files: %d", len(taskCfg.Files))
	p.Info("")

	req, err := task.Resolve(ctx, taskCfg, container.Knowledge)
	if err != nil {
		p.Fail("❌ %v", err)
		return &ExitCodeError{Code: exitFailure, Err: errReported}
	}

	p.Info("🚀 Starting Codegen orchestration...")
	p.Info("   Task: %s", req.Description)
	p.Info("   Files: %d files", len(req.Files))
	handle := container.Runner.RunTask(ctx, req, orchestrator.RunOptions{
		Wait:    c.viper.GetBool("wait"),
		MaxWait: cfg.Runner.MaxWait,
	})
	if errors.Is(ctx.Err(), context.Canceled) {
		p.Warn("\n\n⚠️  Task interrupted by user")
		return &ExitCodeError{Code: exitInterrupted, Err: errReported}
	}

	if _, err := output.WriteJSON(cfg.OutputDir, handle); err != nil {
		return err
	}
	p.Summary(handle)
	reportPath, err := output.WriteReport(cfg.OutputDir, taskCfg.Description, handle)
	if err != nil {
		return err
	}
	if reportPath != "" {
		p.Info("✅ Full result saved to: %s", reportPath)
	}
	// Recording uses a fresh context so a late interrupt still leaves a row.
	if rec, ok := container.recordRun(context.WithoutCancel(ctx), string(taskCfg.Type), taskCfg.Description, handle); ok {
		p.Info("🗂  Run recorded as %s", rec.RunID)
	}
	p.Info("")
	p.Verdict(handle)

	if handle.Failed() {
		return &ExitCodeError{Code: exitFailure, Err: errReported}
	}
	return nil
}

// taskConfig picks the task from the command line or the task directory.
// found is false when there is nothing to do.
func (c *cli) taskConfig(p *output.Printer) (task.Config, bool, error) {
	v := c.viper
	if typ, desc := v.GetString("type"), v.GetString("description"); typ != "" || desc != "" {
		cfg := task.Config{
			Type:        task.Type(typ),
			Description: desc,
			Files:       v.GetStringSlice("files"),
			PRNumber:    v.GetInt("pr"),
			Action:      v.GetString("action"),
		}
		if cfg.Type == "" {
			cfg.Type = task.TypeGenerateCode
		}
		p.Info("📝 Using task from the command line...")
		return cfg, true, nil
	}

	dir := v.GetString("dir")
	if dir == "" {
		dir = c.env.workDir
	}
	cfg, source, err := task.Discover(dir)
	if err != nil {
		return task.Config{}, false, err
	}
	switch source {
	case task.SourceConfigFile:
		p.Info("📝 Loading task configuration from %s...", filepath.Join(dir, task.ConfigFileName))
		return cfg, true, nil
	case task.SourceChangedFiles:
		p.Info("📝 No task configuration found, analyzing changed files...")
		return cfg, true, nil
	}
	p.Info("📝 No task configuration found, analyzing changed files...")
	return task.Config{}, false, nil
}
