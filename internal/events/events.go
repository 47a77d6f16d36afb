// Package events is the fan-out notification channel from runtime components
// to zero or more sinks (logging, audit files, dashboards).
package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is one notable runtime transition. Never mutated after creation.
type Event struct {
	Type      string         `json:"event_type"`
	Agent     string         `json:"agent"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	ID        string         `json:"event_id"`
}

// Sink consumes emitted events. Sinks must not block for long; a slow sink
// delays every emitter.
type Sink interface {
	Emit(e Event)
}

// Bus delivers each event to every attached sink in registration order.
// Sink failures (including panics) are isolated: they are logged and never
// propagate to the emitting component or to later sinks.
type Bus struct {
	log *slog.Logger

	mu    sync.Mutex
	sinks []Sink
}

func NewBus(log *slog.Logger) *Bus {
	if log == nil {
		log = slog.Default()
	}
	return &Bus{log: log}
}

func (b *Bus) AddSink(s Sink) {
	if b == nil || s == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, s)
}

// Emit builds an event with a fresh id and current timestamp and fans it
// out. Safe to call on a nil bus (no-op), so components can treat eventing
// as optional.
func (b *Bus) Emit(eventType string, agentName string, data map[string]any) {
	if b == nil {
		return
	}
	e := Event{
		Type:      eventType,
		Agent:     agentName,
		Data:      data,
		Timestamp: time.Now().UTC(),
		ID:        uuid.NewString(),
	}

	b.mu.Lock()
	sinks := make([]Sink, len(b.sinks))
	copy(sinks, b.sinks)
	b.mu.Unlock()

	for _, s := range sinks {
		b.deliver(s, e)
	}
}

func (b *Bus) deliver(s Sink, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Warn("event sink panicked", "event_type", e.Type, "panic", r)
		}
	}()
	s.Emit(e)
}
