package events

import (
	"log/slog"
	"sync"
	"testing"
)

type panickySink struct{}

func (panickySink) Emit(Event) { panic("sink exploded") }

func TestEmit_RegistrationOrder(t *testing.T) {
	t.Parallel()

	bus := NewBus(slog.Default())
	var mu sync.Mutex
	var order []string
	bus.AddSink(sinkFunc(func(Event) {
		mu.Lock()
		order = append(order, "a")
		mu.Unlock()
	}))
	bus.AddSink(sinkFunc(func(Event) {
		mu.Lock()
		order = append(order, "b")
		mu.Unlock()
	}))

	bus.Emit("test.event", "agent", nil)

	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("delivery order %v, want [a b]", order)
	}
}

func TestEmit_SinkPanicIsIsolated(t *testing.T) {
	t.Parallel()

	bus := NewBus(slog.Default())
	mem := NewMemorySink()
	bus.AddSink(panickySink{})
	bus.AddSink(mem)

	bus.Emit("test.event", "agent", map[string]any{"k": "v"})

	got := mem.Events()
	if len(got) != 1 {
		t.Fatalf("later sink received %d events, want 1", len(got))
	}
	e := got[0]
	if e.Type != "test.event" || e.Agent != "agent" {
		t.Fatalf("event %+v has wrong type/agent", e)
	}
	if e.ID == "" || e.Timestamp.IsZero() {
		t.Fatalf("event missing id or timestamp: %+v", e)
	}
}

func TestEmit_NilBusIsNoop(t *testing.T) {
	t.Parallel()

	var bus *Bus
	bus.Emit("test.event", "agent", nil) // must not panic
	bus.AddSink(NewMemorySink())
}

func TestMemorySink_Types(t *testing.T) {
	t.Parallel()

	bus := NewBus(slog.Default())
	mem := NewMemorySink()
	bus.AddSink(mem)

	bus.Emit("one", "a", nil)
	bus.Emit("two", "a", nil)

	types := mem.Types()
	if len(types) != 2 || types[0] != "one" || types[1] != "two" {
		t.Fatalf("types=%v, want [one two]", types)
	}
}

// sinkFunc adapts a function to the Sink interface.
type sinkFunc func(Event)

func (f sinkFunc) Emit(e Event) { f(e) }
