package agent

import (
	"encoding/json"
	"errors"
	"strings"
)

// PlanStep is one unit of planned work, optionally bound to a tool.
//
// Step ids are planner-assigned and unique within a plan by convention only;
// duplicates and gaps are tolerated, and execution order is always the list
// order, never the id order.
type PlanStep struct {
	ID          int            `json:"id"`
	Description string         `json:"description"`
	Tool        string         `json:"tool,omitempty"`
	Inputs      map[string]any `json:"inputs,omitempty"`
	Notes       string         `json:"notes,omitempty"`
}

// Plan is the ordered decomposition of a task into steps. The JSON tags are
// the wire contract the planner prompt demands and the executor decodes.
type Plan struct {
	Task  string     `json:"task"`
	Steps []PlanStep `json:"steps"`
}

// ParsePlan strictly decodes the wire JSON shape. It either fully succeeds
// or fails; callers decide whether a failure degrades (planner fallback) or
// aborts (executor input).
func ParsePlan(raw string) (Plan, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Plan{}, errors.New("empty plan payload")
	}
	var p Plan
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Plan{}, err
	}
	return p, nil
}

// StepResult is the ephemeral outcome of executing one step.
type StepResult struct {
	StepID  int    `json:"step_id"`
	Success bool   `json:"success"`
	Output  any    `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
}
