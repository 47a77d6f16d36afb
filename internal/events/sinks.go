package events

import (
	"log/slog"
	"sync"
)

// SlogSink writes every event to a structured logger at debug level
// (llm.* and *.error events at info).
type SlogSink struct {
	log *slog.Logger
}

func NewSlogSink(log *slog.Logger) *SlogSink {
	if log == nil {
		log = slog.Default()
	}
	return &SlogSink{log: log}
}

func (s *SlogSink) Emit(e Event) {
	if s == nil {
		return
	}
	attrs := []any{"agent", e.Agent, "event_id", e.ID}
	for k, v := range e.Data {
		attrs = append(attrs, k, v)
	}
	switch e.Type {
	case "llm.latency", "llm.usage", "executor.tool.error":
		s.log.Info(e.Type, attrs...)
	default:
		s.log.Debug(e.Type, attrs...)
	}
}

// MemorySink captures events in memory for tests and trace dumps.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Emit(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

// Events returns a snapshot of captured events in emission order.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// Types returns the captured event types in emission order.
func (s *MemorySink) Types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Type)
	}
	return out
}
