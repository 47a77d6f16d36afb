// Package executor walks a Plan's steps in order, invoking bound tools and
// summarizing each outcome, without ever letting one failed step abort the
// rest of the run.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/floegence/taskrun-agent/internal/agent"
	"github.com/floegence/taskrun-agent/internal/model"
)

type Options struct {
	Logger  *slog.Logger
	Context *agent.Context
}

// Executor runs plans against the context's tool registry and model
// gateway. Steps within one plan execute strictly sequentially; distinct
// plans may run concurrently when their contexts share thread-safe
// collaborators.
type Executor struct {
	log  *slog.Logger
	actx *agent.Context
}

func New(opts Options) *Executor {
	logger := opts.Logger
	if logger == nil && opts.Context != nil {
		logger = opts.Context.Logger()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{log: logger, actx: opts.Context}
}

// ExecutePlan processes plan.Steps in list order (ids may repeat or skip;
// each occurrence runs independently) and returns one message per step.
//
// Tool lookup happens here, at execution time: a tool named at planning
// time may legitimately be gone, which surfaces as a failed step, not an
// abort. Only summarization failures (rate limit, provider error) abort;
// the messages produced so far are still returned alongside the error.
func (e *Executor) ExecutePlan(ctx context.Context, plan agent.Plan) ([]agent.Message, error) {
	if e == nil || e.actx == nil {
		return nil, fmt.Errorf("executor has no agent context")
	}

	msgs := make([]agent.Message, 0, len(plan.Steps))
	for _, step := range plan.Steps {
		e.actx.Emit("executor.step.start", map[string]any{
			"step_id":     step.ID,
			"description": step.Description,
		})

		res := e.runStep(ctx, step)

		summary, err := e.summarize(ctx, plan.Task, step, res)
		if err != nil {
			return msgs, fmt.Errorf("summarize step %d: %w", step.ID, err)
		}

		msg := agent.NewMessage(agent.RoleAgent, step.Description+"\n\n"+summary, map[string]any{
			"step_id": step.ID,
			"tool":    step.Tool,
			"success": res.Success,
		})
		e.actx.AppendShortTerm(msg)
		msgs = append(msgs, msg)

		e.actx.Emit("executor.step.complete", map[string]any{
			"step_id": step.ID,
			"success": res.Success,
		})
	}
	return msgs, nil
}

// runStep resolves and invokes the step's tool. Steps without a tool are
// vacuously successful.
func (e *Executor) runStep(ctx context.Context, step agent.PlanStep) agent.StepResult {
	name := strings.TrimSpace(step.Tool)
	if name == "" {
		return agent.StepResult{StepID: step.ID, Success: true}
	}

	tool, ok := e.actx.Tools().Lookup(name)
	if !ok {
		return agent.StepResult{
			StepID: step.ID,
			Error:  fmt.Sprintf("tool %q is not registered", name),
		}
	}

	e.actx.Emit("executor.tool.call", map[string]any{
		"step_id": step.ID,
		"tool":    name,
		"inputs":  step.Inputs,
	})

	out, err := tool.Invoke(ctx, step.Inputs)
	if err != nil {
		e.actx.Emit("executor.tool.error", map[string]any{
			"step_id": step.ID,
			"tool":    name,
			"error":   err.Error(),
		})
		return agent.StepResult{StepID: step.ID, Error: err.Error()}
	}

	e.actx.Emit("executor.tool.result", map[string]any{
		"step_id": step.ID,
		"tool":    name,
	})
	return agent.StepResult{StepID: step.ID, Success: true, Output: out}
}

// summarize produces the human-readable outcome line for one step, via the
// model when one is configured, otherwise directly from the result.
func (e *Executor) summarize(ctx context.Context, task string, step agent.PlanStep, res agent.StepResult) (string, error) {
	if !e.actx.HasModel() {
		return plainSummary(res), nil
	}

	prompt := []model.ChatMessage{
		{Role: model.RoleSystem, Content: "Summarize the outcome of one task step in one or two sentences. Be factual; do not invent detail."},
		{Role: model.RoleUser, Content: buildSummaryPrompt(task, step, res)},
	}
	gen, err := e.actx.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(gen.Text) == "" {
		return plainSummary(res), nil
	}
	return gen.Text, nil
}

func buildSummaryPrompt(task string, step agent.PlanStep, res agent.StepResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\nStep: %s\n", task, step.Description)
	if strings.TrimSpace(step.Tool) != "" {
		fmt.Fprintf(&b, "Tool: %s\n", step.Tool)
	}
	fmt.Fprintf(&b, "Outcome: %s", plainSummary(res))
	return b.String()
}

func plainSummary(res agent.StepResult) string {
	if res.Success {
		if res.Output != nil {
			return fmt.Sprintf("succeeded: %v", res.Output)
		}
		return "succeeded"
	}
	return "failed: " + res.Error
}

// Step decodes a Plan from the incoming message, executes it, and returns
// the last per-step message, or a sentinel reply when the plan has no steps.
func (e *Executor) Step(ctx context.Context, in agent.Message) (agent.Message, error) {
	plan, err := agent.ParsePlan(in.Content)
	if err != nil {
		return agent.Message{}, fmt.Errorf("invalid plan message: %w", err)
	}
	e.actx.AppendShortTerm(in)

	msgs, err := e.ExecutePlan(ctx, plan)
	if err != nil {
		return agent.Message{}, err
	}
	if len(msgs) == 0 {
		reply := agent.NewMessage(agent.RoleAgent, "no steps to execute", map[string]any{"steps": 0})
		e.actx.AppendShortTerm(reply)
		return reply, nil
	}
	return msgs[len(msgs)-1], nil
}
