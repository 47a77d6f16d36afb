// Package modeltest provides deterministic model gateways for tests.
package modeltest

import (
	"context"
	"fmt"
	"sync"

	"github.com/floegence/taskrun-agent/internal/model"
)

// Response configures one gateway call in a scripted sequence.
type Response struct {
	Generation model.Generation
	Err        error
}

// ScriptedGateway replays a fixed sequence of responses. Once the script is
// exhausted, further calls fail.
type ScriptedGateway struct {
	mu        sync.Mutex
	index     int
	calls     [][]model.ChatMessage
	responses []Response
}

var _ model.Gateway = (*ScriptedGateway)(nil)

func NewScriptedGateway(responses ...Response) *ScriptedGateway {
	cloned := make([]Response, len(responses))
	copy(cloned, responses)
	return &ScriptedGateway{responses: cloned}
}

func (g *ScriptedGateway) Generate(_ context.Context, messages []model.ChatMessage, _ model.Config) (model.Generation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	recorded := make([]model.ChatMessage, len(messages))
	copy(recorded, messages)
	g.calls = append(g.calls, recorded)

	if g.index >= len(g.responses) {
		return model.Generation{}, fmt.Errorf("script exhausted at call %d", g.index+1)
	}
	current := g.responses[g.index]
	g.index++
	if current.Err != nil {
		return model.Generation{}, current.Err
	}
	return current.Generation, nil
}

// Calls returns the prompts seen so far, in order.
func (g *ScriptedGateway) Calls() [][]model.ChatMessage {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([][]model.ChatMessage, len(g.calls))
	copy(out, g.calls)
	return out
}

// TextResponse is a shorthand for a successful generation with plausible
// usage counts.
func TextResponse(text string) Response {
	return Response{Generation: model.Generation{
		Text:             text,
		PromptTokens:     20,
		CompletionTokens: 10,
		TotalTokens:      30,
	}}
}
