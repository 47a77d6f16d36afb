package agent

import (
	"context"
	"encoding/json"
	"reflect"
	"testing"
)

func TestPlan_WireRoundTrip(t *testing.T) {
	t.Parallel()

	orig := Plan{
		Task: "demo",
		Steps: []PlanStep{
			{ID: 1, Description: "do X", Tool: "echo", Inputs: map[string]any{"text": "hi"}},
			{ID: 3, Description: "think", Notes: "no tool"},
		},
	}

	b, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	parsed, err := ParsePlan(string(b))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !reflect.DeepEqual(orig, parsed) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", parsed, orig)
	}
}

func TestParsePlan_WireShape(t *testing.T) {
	t.Parallel()

	raw := `{"task":"demo","steps":[{"id":1,"description":"do X","tool":"echo","inputs":{"text":"hi"},"notes":null}]}`
	plan, err := ParsePlan(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if plan.Task != "demo" || len(plan.Steps) != 1 {
		t.Fatalf("plan=%+v", plan)
	}
	step := plan.Steps[0]
	if step.ID != 1 || step.Tool != "echo" || step.Inputs["text"] != "hi" {
		t.Fatalf("step=%+v", step)
	}
}

func TestParsePlan_Invalid(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "   ", "not json at all", `{"task": "x", "steps": "nope"}`} {
		if _, err := ParsePlan(raw); err == nil {
			t.Fatalf("ParsePlan(%q) succeeded, want error", raw)
		}
	}
}

func TestNewMessage_FreshIDs(t *testing.T) {
	t.Parallel()

	a := NewMessage(RoleUser, "one", nil)
	b := NewMessage(RoleUser, "one", nil)
	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("ids not fresh: %q vs %q", a.ID, b.ID)
	}
}

func TestContext_HistoryAppend(t *testing.T) {
	t.Parallel()

	c := NewContext(Options{Name: "t"})
	c.AppendShortTerm(NewMessage(RoleUser, "hi", nil))
	c.AppendShortTerm(NewMessage(RoleAgent, "plan", nil))
	c.AppendLongTerm(NewMessage(RoleSystem, "note", nil))

	if got := len(c.ShortTerm()); got != 2 {
		t.Fatalf("short term has %d messages, want 2", got)
	}
	if got := len(c.LongTerm()); got != 1 {
		t.Fatalf("long term has %d messages, want 1", got)
	}

	// Snapshots must not alias internal state.
	snap := c.ShortTerm()
	snap[0].Content = "mutated"
	if c.ShortTerm()[0].Content != "hi" {
		t.Fatalf("snapshot aliases internal history")
	}
}

func TestContext_GenerateWithoutModel(t *testing.T) {
	t.Parallel()

	c := NewContext(Options{Name: "t"})
	if c.HasModel() {
		t.Fatalf("HasModel=true without gateway")
	}
	if _, err := c.Generate(context.Background(), nil); err == nil {
		t.Fatalf("Generate succeeded without a gateway")
	}
}
