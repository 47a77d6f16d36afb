package runtime

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/floegence/taskrun-agent/internal/agent"
	"github.com/floegence/taskrun-agent/internal/events"
	"github.com/floegence/taskrun-agent/internal/model"
	"github.com/floegence/taskrun-agent/internal/model/modeltest"
	"github.com/floegence/taskrun-agent/internal/runstore"
	"github.com/floegence/taskrun-agent/internal/tools"
)

func newTestContext(t *testing.T, gw model.Gateway) (*agent.Context, *events.MemorySink) {
	t.Helper()
	reg := tools.NewRegistry()
	err := reg.Register(tools.Tool{
		Name:        "echo",
		Description: "Return the text input.",
		Handler: func(_ context.Context, args map[string]any) (any, error) {
			return args["text"], nil
		},
	})
	if err != nil {
		t.Fatalf("register echo: %v", err)
	}

	mem := events.NewMemorySink()
	bus := events.NewBus(slog.Default())
	bus.AddSink(mem)

	return agent.NewContext(agent.Options{
		Name:    "runtime-test",
		Tools:   reg,
		Model:   &model.Config{Provider: "openai", Model: "test-model"},
		Gateway: gw,
		Bus:     bus,
	}), mem
}

func TestRun_PlanThenExecute(t *testing.T) {
	t.Parallel()

	gw := modeltest.NewScriptedGateway(
		modeltest.TextResponse(`{"task":"demo","steps":[{"id":1,"description":"do X","tool":"echo","inputs":{"text":"hi"}}]}`),
		modeltest.TextResponse("Echoed the input successfully."),
	)
	actx, mem := newTestContext(t, gw)
	rt := New(Options{Context: actx})

	trace, err := rt.Run(context.Background(), "demo")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(trace) != 2 {
		t.Fatalf("%d trace messages, want 2 (plan, execution)", len(trace))
	}

	planMsg, execMsg := trace[0], trace[1]
	if planMsg.Metadata["type"] != "plan" {
		t.Fatalf("plan metadata=%v", planMsg.Metadata)
	}
	if execMsg.Metadata["success"] != true || execMsg.Metadata["tool"] != "echo" {
		t.Fatalf("execution metadata=%v", execMsg.Metadata)
	}
	if !strings.Contains(execMsg.Content, "Echoed the input successfully.") {
		t.Fatalf("execution content=%q", execMsg.Content)
	}

	types := mem.Types()
	want := map[string]bool{
		"planner.start":          false,
		"planner.complete":       false,
		"executor.step.start":    false,
		"executor.step.complete": false,
	}
	for _, ty := range types {
		if _, ok := want[ty]; ok {
			want[ty] = true
		}
	}
	for ty, seen := range want {
		if !seen {
			t.Fatalf("events %v missing %s", types, ty)
		}
	}
}

func TestRun_PersistsTrace(t *testing.T) {
	t.Parallel()

	store, err := runstore.Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	gw := modeltest.NewScriptedGateway(
		modeltest.TextResponse(`{"task":"demo","steps":[{"id":1,"description":"think"}]}`),
		modeltest.TextResponse("Thought about it."),
	)
	actx, _ := newTestContext(t, gw)
	rt := New(Options{Context: actx, Store: store})

	if _, err := rt.Run(context.Background(), "demo"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	runs, err := store.ListRuns(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("%d runs, want 1", len(runs))
	}
	if runs[0].Status != runstore.StatusComplete || runs[0].Task != "demo" {
		t.Fatalf("run=%+v", runs[0])
	}

	msgs, err := store.ListMessages(context.Background(), runs[0].RunID)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("%d stored messages, want 3 (user, plan, execution)", len(msgs))
	}
	if msgs[0].Role != agent.RoleUser || msgs[0].Content != "demo" {
		t.Fatalf("first stored message=%+v", msgs[0])
	}
}

func TestRun_ProviderErrorMarksRunFailed(t *testing.T) {
	t.Parallel()

	store, err := runstore.Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	provErr := errors.New("provider down")
	gw := modeltest.NewScriptedGateway(modeltest.Response{Err: provErr})
	actx, _ := newTestContext(t, gw)
	rt := New(Options{Context: actx, Store: store})

	if _, err := rt.Run(context.Background(), "demo"); !errors.Is(err, provErr) {
		t.Fatalf("error %v does not wrap provider error", err)
	}

	runs, err := store.ListRuns(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].Status != runstore.StatusError {
		t.Fatalf("runs=%+v, want one error run", runs)
	}
	if !strings.Contains(runs[0].Error, "provider down") {
		t.Fatalf("run error=%q", runs[0].Error)
	}
}

func TestRun_StoreFailureDoesNotFailRun(t *testing.T) {
	t.Parallel()

	store, err := runstore.Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	store.Close() // writes will fail from here on

	gw := modeltest.NewScriptedGateway(
		modeltest.TextResponse(`{"task":"demo","steps":[{"id":1,"description":"think"}]}`),
		modeltest.TextResponse("Thought about it."),
	)
	actx, _ := newTestContext(t, gw)
	rt := New(Options{Context: actx, Store: store})

	trace, err := rt.Run(context.Background(), "demo")
	if err != nil {
		t.Fatalf("Run failed on store errors: %v", err)
	}
	if len(trace) != 2 {
		t.Fatalf("%d trace messages, want 2", len(trace))
	}
}
