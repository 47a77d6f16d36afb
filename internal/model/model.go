// Package model defines the gateway contract between the runtime and the
// LLM providers, plus the provider adapters implementing it.
package model

import (
	"context"
	"strings"
)

// Chat roles as sent to providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one role-tagged prompt message.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Config selects the provider and model for a gateway call.
//
// Notes:
// - APIKey is resolved by the caller (config names the env var, never the key).
// - MaxOutputTokens <= 0 means the provider default applies.
type Config struct {
	Provider        string   `json:"provider"` // "openai" | "openai_compatible" | "anthropic"
	Model           string   `json:"model"`
	BaseURL         string   `json:"base_url,omitempty"`
	APIKey          string   `json:"-"`
	MaxOutputTokens int      `json:"max_output_tokens,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
}

// Generation is the result of one gateway call.
type Generation struct {
	Text             string `json:"text"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
}

// Gateway turns a prompt into generated text plus token usage.
//
// Implementations must be safe for concurrent use. Provider failures are
// returned as-is; the gateway never retries.
type Gateway interface {
	Generate(ctx context.Context, messages []ChatMessage, cfg Config) (Generation, error)
}

// TokenEstimator approximates the token cost of a prompt before it is sent.
// Used for rate-limit admission only; it does not need to match the
// provider's tokenizer.
type TokenEstimator interface {
	Estimate(messages []ChatMessage) int
}

// WordCount estimates tokens as the whitespace-separated word count across
// all messages. Cheap and deliberately rough.
type WordCount struct{}

func (WordCount) Estimate(messages []ChatMessage) int {
	total := 0
	for _, m := range messages {
		total += len(strings.Fields(m.Content))
	}
	return total
}
