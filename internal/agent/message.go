// Package agent holds the shared data model of the plan/execute runtime:
// conversation messages, plans, step results, and the per-agent context the
// planner and executor operate on.
package agent

import "github.com/google/uuid"

// Message roles.
const (
	RoleUser   = "user"
	RoleAgent  = "agent"
	RoleSystem = "system"
)

// Message is the unit exchanged between planner, executor, and callers.
// Immutable once created; ids are generated fresh per message.
type Message struct {
	ID       string         `json:"id"`
	Role     string         `json:"role"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func NewMessage(role string, content string, metadata map[string]any) Message {
	return Message{
		ID:       uuid.NewString(),
		Role:     role,
		Content:  content,
		Metadata: metadata,
	}
}
