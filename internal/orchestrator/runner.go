// Package orchestrator drives one generation task from submission through
// polling to archiving.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"genflow/internal/agent"
	"genflow/internal/archive"
	"genflow/internal/prompt"
	apperrors "genflow/internal/shared/errors"
	"genflow/internal/shared/logging"
)

const (
	// DefaultPollInterval is the fixed wait between refreshes.
	DefaultPollInterval = 5 * time.Second
	// DefaultMaxWait is the polling budget when RunOptions.MaxWait is unset.
	DefaultMaxWait = 300 * time.Second
)

// TimeoutPolicy decides what the handle says when the budget runs out.
type TimeoutPolicy int

const (
	// KeepLastStatus leaves the last observed status and sets TimedOut.
	KeepLastStatus TimeoutPolicy = iota
	// MarkTimedOut rewrites the status to timed_out.
	MarkTimedOut
)

// ParseTimeoutPolicy maps a config value onto a TimeoutPolicy.
func ParseTimeoutPolicy(value string) (TimeoutPolicy, error) {
	switch value {
	case "", "keep", "keep_last_status":
		return KeepLastStatus, nil
	case "mark", "timed_out", "mark_timed_out":
		return MarkTimedOut, nil
	}
	return KeepLastStatus, fmt.Errorf("unknown timeout policy %q", value)
}

// Clock abstracts time for the poll loop.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time                         { return time.Now() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// PromptComposer builds the enriched prompt for a task.
type PromptComposer interface {
	Compose(ctx context.Context, taskDescription string, files []string) prompt.EnrichedPrompt
}

// ResultArchiver stores completed results.
type ResultArchiver interface {
	Archive(ctx context.Context, payload any, prov archive.Provenance) bool
}

// TaskRequest is what a caller asks the runner to do.
type TaskRequest struct {
	Description string   `json:"description"`
	Files       []string `json:"files,omitempty"`
}

// RunOptions controls waiting. Task supplies the provenance recorded when
// the result is archived.
type RunOptions struct {
	Wait    bool
	MaxWait time.Duration
	Task    TaskRequest
}

// Dependencies wires a Runner.
type Dependencies struct {
	Agent         agent.Service
	Composer      PromptComposer
	Archiver      ResultArchiver
	Clock         Clock
	Metrics       *Metrics
	Logger        logging.Logger
	Tracer        trace.Tracer
	PollInterval  time.Duration
	TimeoutPolicy TimeoutPolicy
}

// Runner submits prompts to the agent service and polls them to completion.
type Runner struct {
	agent         agent.Service
	composer      PromptComposer
	archiver      ResultArchiver
	clock         Clock
	metrics       *Metrics
	logger        logging.Logger
	tracer        trace.Tracer
	pollInterval  time.Duration
	timeoutPolicy TimeoutPolicy
}

// New validates deps and returns a Runner.
func New(deps Dependencies) (*Runner, error) {
	if deps.Composer == nil {
		return nil, errors.New("orchestrator: prompt composer is required")
	}
	if deps.PollInterval < 0 {
		return nil, fmt.Errorf("orchestrator: negative poll interval %s", deps.PollInterval)
	}
	r := &Runner{
		agent:         deps.Agent,
		composer:      deps.Composer,
		archiver:      deps.Archiver,
		clock:         deps.Clock,
		metrics:       deps.Metrics,
		logger:        logging.OrNop(deps.Logger),
		tracer:        deps.Tracer,
		pollInterval:  deps.PollInterval,
		timeoutPolicy: deps.TimeoutPolicy,
	}
	if r.agent == nil {
		r.agent = agent.Unavailable("")
	}
	if r.archiver == nil {
		r.archiver = archive.New(nil, r.logger)
	}
	if r.clock == nil {
		r.clock = systemClock{}
	}
	if r.metrics == nil {
		r.metrics = defaultMetrics()
	}
	if r.tracer == nil {
		r.tracer = otel.Tracer("genflow/orchestrator")
	}
	if r.pollInterval == 0 {
		r.pollInterval = DefaultPollInterval
	}
	return r, nil
}

// RunTask composes the enriched prompt for req and runs it.
func (r *Runner) RunTask(ctx context.Context, req TaskRequest, opts RunOptions) TaskHandle {
	enriched := r.composer.Compose(ctx, req.Description, req.Files)
	opts.Task = req
	return r.Run(ctx, enriched.String(), opts)
}

// Run submits promptText and, when opts.Wait is set, polls until the task
// is terminal, the budget is spent, a refresh fails or ctx is done.
func (r *Runner) Run(ctx context.Context, promptText string, opts RunOptions) TaskHandle {
	ctx, span := r.tracer.Start(ctx, "genflow.orchestrator.run",
		trace.WithAttributes(attribute.Bool("genflow.wait", opts.Wait)))
	defer span.End()

	r.metrics.IncActiveTasks()
	defer r.metrics.DecActiveTasks()

	handle := r.run(ctx, promptText, opts)

	span.SetAttributes(
		attribute.String("genflow.task_id", handle.ID),
		attribute.String("genflow.status", string(handle.Status)),
		attribute.Int("genflow.poll_count", handle.PollCount),
	)
	if handle.Failed() {
		span.SetStatus(codes.Error, handle.Error)
	}
	r.metrics.ObserveTask(string(handle.Status), handle.Elapsed)
	return handle
}

func (r *Runner) run(ctx context.Context, promptText string, opts RunOptions) TaskHandle {
	if !agent.IsAvailable(r.agent) {
		r.logger.Error("Codegen agent not available: %s", agent.UnavailableReason(r.agent))
		return TaskHandle{
			Status:    agent.StatusError,
			StartedAt: r.clock.Now(),
			Error:     "codegen agent not available: " + agent.UnavailableReason(r.agent),
		}
	}

	remote, err := r.agent.CreateTask(ctx, promptText)
	if err == nil && (remote == nil || remote.ID == "") {
		err = errors.New("agent returned an unusable task")
	}
	if err != nil {
		r.logger.Error("Task submission failed: %v", err)
		if hint := apperrors.Describe(err); hint != err.Error() {
			r.logger.Warn("Hint: %s", hint)
		}
		return TaskHandle{Status: agent.StatusError, StartedAt: r.clock.Now(), Error: err.Error()}
	}

	start := r.clock.Now()
	handle := TaskHandle{
		ID:        remote.ID,
		Status:    remote.Status,
		Result:    remote.Result,
		WebURL:    remote.WebURL,
		StartedAt: start,
	}
	r.logger.Info("Task %s submitted, initial status %s", handle.ID, handle.Status)

	if opts.Wait {
		r.poll(ctx, remote, &handle, opts.maxWait())
	}
	handle.Elapsed = r.clock.Now().Sub(start)

	switch handle.Status {
	case agent.StatusCompleted:
		r.logger.Info("Task %s completed in %.1fs (%d polls)", handle.ID, handle.ExecutionSeconds(), handle.PollCount)
		handle.Archived = r.archive(ctx, handle, opts.Task, promptText)
	case agent.StatusFailed:
		r.logger.Warn("Task %s failed after %.1fs", handle.ID, handle.ExecutionSeconds())
	case agent.StatusCancelled:
		r.logger.Warn("Task %s cancelled after %.1fs", handle.ID, handle.ExecutionSeconds())
	}
	return handle
}

func (r *Runner) poll(ctx context.Context, remote *agent.RemoteTask, handle *TaskHandle, maxWait time.Duration) {
	last := handle.Status
	for !handle.Status.Terminal() {
		if r.clock.Now().Sub(handle.StartedAt) >= maxWait {
			r.logger.Warn("Task %s still %s after %s budget", handle.ID, handle.Status, maxWait)
			handle.TimedOut = true
			if r.timeoutPolicy == MarkTimedOut {
				handle.Status = agent.StatusTimedOut
			}
			return
		}

		select {
		case <-ctx.Done():
			handle.Error = ctx.Err().Error()
			r.logger.Warn("Polling task %s stopped: %v", handle.ID, ctx.Err())
			return
		case <-r.clock.After(r.pollInterval):
		}

		handle.PollCount++
		r.metrics.IncPoll()
		if err := r.agent.Refresh(ctx, remote); err != nil {
			handle.Error = err.Error()
			r.logger.Warn("Refreshing task %s failed: %v", handle.ID, err)
			return
		}
		handle.Status = remote.Status
		handle.Result = remote.Result
		if remote.WebURL != "" {
			handle.WebURL = remote.WebURL
		}
		if handle.Status != last {
			r.logger.Info("Task %s status update [%d]: %s", handle.ID, handle.PollCount, handle.Status)
			last = handle.Status
		}
	}
}

func (r *Runner) archive(ctx context.Context, handle TaskHandle, req TaskRequest, promptText string) bool {
	description := req.Description
	if description == "" {
		description = promptText
	}
	ok := r.archiver.Archive(ctx, handle.Result, archive.Provenance{
		TaskDescription: description,
		Files:           req.Files,
		RemoteTaskID:    handle.ID,
		ExecutionTime:   handle.Elapsed,
		Timestamp:       r.clock.Now(),
	})
	if !ok {
		r.metrics.IncArchiveFailure()
	}
	return ok
}

func (o RunOptions) maxWait() time.Duration {
	if o.MaxWait <= 0 {
		return DefaultMaxWait
	}
	return o.MaxWait
}
