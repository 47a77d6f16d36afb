// Package runtime wires the planner and executor into the end-to-end
// plan-then-execute loop for one task.
package runtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/floegence/taskrun-agent/internal/agent"
	"github.com/floegence/taskrun-agent/internal/executor"
	"github.com/floegence/taskrun-agent/internal/planner"
	"github.com/floegence/taskrun-agent/internal/runstore"
	"github.com/google/uuid"
)

type Options struct {
	Logger  *slog.Logger
	Context *agent.Context

	// Store persists run traces. Optional; store failures are logged and
	// never fail the run.
	Store *runstore.Store
}

// Runtime is the externally visible entry point: one Run call produces the
// plan message and the execution message for a task.
type Runtime struct {
	log   *slog.Logger
	actx  *agent.Context
	plan  *planner.Planner
	exec  *executor.Executor
	store *runstore.Store
}

func New(opts Options) *Runtime {
	logger := opts.Logger
	if logger == nil && opts.Context != nil {
		logger = opts.Context.Logger()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{
		log:   logger,
		actx:  opts.Context,
		plan:  planner.New(planner.Options{Logger: logger, Context: opts.Context}),
		exec:  executor.New(executor.Options{Logger: logger, Context: opts.Context}),
		store: opts.Store,
	}
}

// Run wraps the task as a user message, plans, executes, and returns the
// two-message trace [plan, execution]. It performs no branching of its own.
func (r *Runtime) Run(ctx context.Context, task string) ([]agent.Message, error) {
	if r == nil || r.actx == nil {
		return nil, fmt.Errorf("runtime has no agent context")
	}

	runID := uuid.NewString()
	r.persistRunStart(ctx, runID, task)

	userMsg := agent.NewMessage(agent.RoleUser, task, nil)
	r.persistMessage(ctx, runID, 0, userMsg)

	planMsg, err := r.plan.Step(ctx, userMsg)
	if err != nil {
		r.persistRunEnd(ctx, runID, runstore.StatusError, err.Error())
		return nil, err
	}
	r.persistMessage(ctx, runID, 1, planMsg)

	execMsg, err := r.exec.Step(ctx, planMsg)
	if err != nil {
		r.persistRunEnd(ctx, runID, runstore.StatusError, err.Error())
		return nil, err
	}
	r.persistMessage(ctx, runID, 2, execMsg)

	r.persistRunEnd(ctx, runID, runstore.StatusComplete, "")
	return []agent.Message{planMsg, execMsg}, nil
}

func (r *Runtime) persistRunStart(ctx context.Context, runID string, task string) {
	if r.store == nil {
		return
	}
	if err := r.store.CreateRun(ctx, runID, r.actx.Name(), task); err != nil {
		r.log.Warn("runstore create failed", "run_id", runID, "error", err)
	}
}

func (r *Runtime) persistMessage(ctx context.Context, runID string, seq int, msg agent.Message) {
	if r.store == nil {
		return
	}
	if err := r.store.AppendMessage(ctx, runID, seq, msg); err != nil {
		r.log.Warn("runstore append failed", "run_id", runID, "error", err)
	}
}

func (r *Runtime) persistRunEnd(ctx context.Context, runID string, status string, errText string) {
	if r.store == nil {
		return
	}
	if err := r.store.FinishRun(ctx, runID, status, errText); err != nil {
		r.log.Warn("runstore finish failed", "run_id", runID, "error", err)
	}
}
