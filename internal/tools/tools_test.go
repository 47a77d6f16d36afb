package tools

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestRegister_LastWriteWins(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	first := func(context.Context, map[string]any) (any, error) { return "first", nil }
	second := func(context.Context, map[string]any) (any, error) { return "second", nil }

	if err := r.Register(Tool{Name: "echo", Handler: first}); err != nil {
		t.Fatalf("register first: %v", err)
	}
	if err := r.Register(Tool{Name: "echo", Description: "v2", Handler: second}); err != nil {
		t.Fatalf("register second: %v", err)
	}

	tool, ok := r.Lookup("echo")
	if !ok {
		t.Fatalf("lookup failed")
	}
	if tool.Description != "v2" {
		t.Fatalf("description=%q, want v2", tool.Description)
	}
	out, err := tool.Invoke(context.Background(), nil)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if out != "second" {
		t.Fatalf("out=%v, want second", out)
	}
}

func TestRegister_Validation(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	if err := r.Register(Tool{Name: "  ", Handler: func(context.Context, map[string]any) (any, error) { return nil, nil }}); err == nil {
		t.Fatalf("accepted blank name")
	}
	if err := r.Register(Tool{Name: "x"}); err == nil {
		t.Fatalf("accepted nil handler")
	}
}

func TestLookup_Missing(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	if _, ok := r.Lookup("nope"); ok {
		t.Fatalf("lookup found unregistered tool")
	}
	if _, ok := (*Registry)(nil).Lookup("nope"); ok {
		t.Fatalf("nil registry lookup returned ok")
	}
}

func TestList(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	for i := 0; i < 3; i++ {
		name := fmt.Sprintf("tool-%d", i)
		if err := r.Register(Tool{Name: name, Handler: func(context.Context, map[string]any) (any, error) { return nil, nil }}); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}
	if got := len(r.List()); got != 3 {
		t.Fatalf("list has %d tools, want 3", got)
	}
}

func TestInvoke_PanicBecomesError(t *testing.T) {
	t.Parallel()

	tool := Tool{Name: "boom", Handler: func(context.Context, map[string]any) (any, error) {
		panic("kaboom")
	}}
	_, err := tool.Invoke(context.Background(), nil)
	if err == nil {
		t.Fatalf("panic was not converted to an error")
	}
}

func TestInvoke_NilArgsBecomeEmptyMap(t *testing.T) {
	t.Parallel()

	tool := Tool{Name: "args", Handler: func(_ context.Context, args map[string]any) (any, error) {
		if args == nil {
			return nil, errors.New("nil args")
		}
		return len(args), nil
	}}
	out, err := tool.Invoke(context.Background(), nil)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if out != 0 {
		t.Fatalf("out=%v, want 0", out)
	}
}

func TestRegistry_ConcurrentUse(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("tool-%d", i%4)
			_ = r.Register(Tool{Name: name, Handler: func(context.Context, map[string]any) (any, error) { return nil, nil }})
			_, _ = r.Lookup(name)
			_ = r.List()
		}(i)
	}
	wg.Wait()

	if got := len(r.List()); got != 4 {
		t.Fatalf("list has %d tools, want 4", got)
	}
}
