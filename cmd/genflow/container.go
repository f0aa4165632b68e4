package main

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"genflow/internal/agent"
	"genflow/internal/archive"
	"genflow/internal/config"
	"genflow/internal/guidelines"
	"genflow/internal/health"
	"genflow/internal/knowledge"
	"genflow/internal/ledger"
	"genflow/internal/observability"
	"genflow/internal/orchestrator"
	"genflow/internal/prompt"
	"genflow/internal/workflow"
)

// Container holds the wired services for one command invocation.
type Container struct {
	Config    config.Config
	Logger    *observability.Logger
	Registry  *prometheus.Registry
	Knowledge knowledge.Service
	Agent     agent.Service
	Workflows *workflow.Service
	Runner    *orchestrator.Runner
	Health    *health.Checker
	// Ledger is nil when disabled or when it could not be opened.
	Ledger *ledger.Store

	tracer  *observability.TracerProvider
	metrics *observability.MetricsCollector
}

type containerOptions struct {
	// withAgent wires the Codegen client when credentials are present.
	withAgent bool
	// withLedger opens the run ledger when enabled in config.
	withLedger bool
}

// buildContainer wires every service from cfg. Missing remote services are
// replaced by their unavailable variants so callers never nil-check.
func buildContainer(cfg config.Config, env cliEnv, opts containerOptions) (*Container, error) {
	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
		Output: env.stderr,
	})

	tracingCfg := cfg.Observability.Tracing
	if tracingCfg.ServiceVersion == "" || tracingCfg.ServiceVersion == "dev" {
		tracingCfg.ServiceVersion = Version
	}
	tracer, err := observability.NewTracerProvider(tracingCfg)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := observability.NewMetricsCollector(cfg.Observability.Metrics, registry)
	if err != nil {
		return nil, err
	}

	c := &Container{
		Config:   cfg,
		Logger:   logger,
		Registry: registry,
		tracer:   tracer,
		metrics:  metrics,
	}

	if cfg.Knowledge.Configured() {
		c.Knowledge = knowledge.NewClient(knowledge.Config{
			BaseURL:      cfg.Knowledge.BaseURL,
			APIKey:       cfg.Knowledge.APIKey,
			ShortTimeout: cfg.Knowledge.ShortTimeout,
			LongTimeout:  cfg.Knowledge.LongTimeout,
		},
			knowledge.WithLogger(logger.Component("knowledge")),
			knowledge.WithObserver(metrics),
			knowledge.WithTracer(tracer.Tracer()),
		)
	} else {
		c.Knowledge = knowledge.Unavailable("R2R_BASE_URL not set")
	}

	switch {
	case !opts.withAgent:
		c.Agent = agent.Unavailable("agent disabled for this command")
	case cfg.Codegen.Configured():
		c.Agent = agent.NewClient(agent.Config{
			BaseURL: cfg.Codegen.BaseURL,
			OrgID:   cfg.Codegen.OrgID,
			Token:   cfg.Codegen.Token,
			Timeout: cfg.Codegen.Timeout,
		}, agent.WithLogger(logger.Component("agent")))
	default:
		c.Agent = agent.Unavailable("CODEGEN_ORG_ID or CODEGEN_API_TOKEN not set")
	}

	rules := guidelines.NewLoader(cfg.GuidelinesPath, guidelines.WithLogger(logger.Component("guidelines")))
	composer := prompt.NewComposer(c.Knowledge, rules,
		prompt.WithLogger(logger.Component("prompt")),
		prompt.WithObserver(observability.NewPromptMetricsWithRegisterer(registry)),
	)
	runner, err := orchestrator.New(orchestrator.Dependencies{
		Agent:         c.Agent,
		Composer:      composer,
		Archiver:      archive.New(c.Knowledge, logger.Component("archive")),
		Metrics:       orchestrator.MustNewMetrics(registry),
		Logger:        logger.Component("orchestrator"),
		Tracer:        tracer.Tracer(),
		PollInterval:  cfg.Runner.PollInterval,
		TimeoutPolicy: cfg.Runner.TimeoutPolicy,
	})
	if err != nil {
		return nil, err
	}
	c.Runner = runner
	c.Workflows = workflow.New(c.Knowledge, logger.Component("workflow"))
	c.Health = health.NewChecker(
		health.NewKnowledgeProbe(c.Knowledge, cfg.Knowledge.BaseURL),
		health.NewAgentProbe(c.Agent),
	)

	if opts.withLedger && cfg.LedgerEnabled {
		store, err := ledger.Open(cfg.DataDir)
		if err != nil {
			// The ledger is optional; a broken data dir must not block a run.
			logger.Warn("run ledger unavailable", "data_dir", cfg.DataDir, "error", err)
		} else {
			c.Ledger = store
		}
	}
	return c, nil
}

// Close flushes telemetry and releases the ledger.
func (c *Container) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	if c.Ledger != nil {
		errs = append(errs, c.Ledger.Close())
	}
	errs = append(errs, c.metrics.Shutdown(ctx), c.tracer.Shutdown(ctx))
	return errors.Join(errs...)
}

// recordRun stores handle in the ledger when one is open.
func (c *Container) recordRun(ctx context.Context, taskType, description string, handle orchestrator.TaskHandle) (ledger.RunRecord, bool) {
	if c.Ledger == nil {
		return ledger.RunRecord{}, false
	}
	rec, err := c.Ledger.Record(ctx, ledger.FromHandle(taskType, description, handle))
	if err != nil {
		c.Logger.Warn("failed to record run", "task_id", handle.ID, "error", err)
		return ledger.RunRecord{}, false
	}
	return rec, true
}
