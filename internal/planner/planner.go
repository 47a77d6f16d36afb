// Package planner turns a natural-language task into a structured Plan by
// prompting the model gateway and strictly decoding its JSON reply.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/floegence/taskrun-agent/internal/agent"
	"github.com/floegence/taskrun-agent/internal/model"
)

const systemPrompt = `You are a planning assistant. Decompose the user's task into an ordered list of steps.

Respond with JSON only, no prose, matching exactly this shape:
{"task": "<task>", "steps": [{"id": 1, "description": "<what to do>", "tool": "<tool name or omit>", "inputs": {"<arg>": "<value>"}, "notes": "<optional>"}]}

Rules:
- "tool" must be one of the available tools, or omitted for steps needing no tool.
- "inputs" holds the tool arguments, or is omitted.
- Keep descriptions short and actionable.`

type Options struct {
	Logger  *slog.Logger
	Context *agent.Context
}

// Planner owns the plan state machine: prompt, await, parse, done. One
// Planner may serve many sequential Plan calls; the shared context carries
// everything mutable.
type Planner struct {
	log  *slog.Logger
	actx *agent.Context
}

func New(opts Options) *Planner {
	logger := opts.Logger
	if logger == nil && opts.Context != nil {
		logger = opts.Context.Logger()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{log: logger, actx: opts.Context}
}

// Plan prompts the model for a structured plan. A response that is not
// valid plan JSON degrades to a single-step plan carrying the raw text, so
// the run can still proceed; only rate-limit rejections and provider errors
// abort.
func (p *Planner) Plan(ctx context.Context, task string) (agent.Plan, error) {
	if p == nil || p.actx == nil {
		return agent.Plan{}, fmt.Errorf("planner has no agent context")
	}
	p.actx.Emit("planner.start", map[string]any{"task": task})

	prompt := []model.ChatMessage{
		{Role: model.RoleSystem, Content: systemPrompt},
		{Role: model.RoleUser, Content: buildUserPrompt(task, p.toolCatalog())},
	}

	gen, err := p.actx.Generate(ctx, prompt)
	if err != nil {
		return agent.Plan{}, fmt.Errorf("planning failed: %w", err)
	}

	p.actx.Emit("planner.raw_output", map[string]any{"text": gen.Text})

	plan, parseErr := agent.ParsePlan(gen.Text)
	if parseErr != nil {
		// Deliberate fallback, not a fatal error: degrade to one freeform
		// step so execution can still proceed.
		p.log.Debug("plan parse failed, using single-step fallback", "error", parseErr)
		plan = agent.Plan{
			Task:  task,
			Steps: []agent.PlanStep{{ID: 1, Description: gen.Text}},
		}
	}
	if strings.TrimSpace(plan.Task) == "" {
		plan.Task = task
	}

	p.actx.Emit("planner.complete", map[string]any{"steps": len(plan.Steps)})
	return plan, nil
}

// Step wraps Plan for message-oriented callers: the reply message carries
// the plan serialized to its wire JSON shape, and both messages land in the
// context's short-term history.
func (p *Planner) Step(ctx context.Context, in agent.Message) (agent.Message, error) {
	plan, err := p.Plan(ctx, in.Content)
	if err != nil {
		return agent.Message{}, err
	}
	payload, err := json.Marshal(plan)
	if err != nil {
		return agent.Message{}, fmt.Errorf("serialize plan: %w", err)
	}
	reply := agent.NewMessage(agent.RoleAgent, string(payload), map[string]any{
		"type":  "plan",
		"steps": len(plan.Steps),
	})
	p.actx.AppendShortTerm(in, reply)
	return reply, nil
}

// toolCatalog renders the registered tools as a stable, human-readable
// listing for the prompt, or "None" when the registry is empty or absent.
func (p *Planner) toolCatalog() string {
	reg := p.actx.Tools()
	if reg == nil {
		return "None"
	}
	list := reg.List()
	if len(list) == 0 {
		return "None"
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	var b strings.Builder
	for _, t := range list {
		fmt.Fprintf(&b, "- %s: %s\n", t.Name, t.Description)
	}
	return strings.TrimRight(b.String(), "\n")
}

func buildUserPrompt(task string, catalog string) string {
	return fmt.Sprintf("Task: %s\n\nAvailable tools:\n%s", task, catalog)
}
