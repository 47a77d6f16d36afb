package agent

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/floegence/taskrun-agent/internal/events"
	"github.com/floegence/taskrun-agent/internal/model"
	"github.com/floegence/taskrun-agent/internal/ratelimit"
	"github.com/floegence/taskrun-agent/internal/tools"
)

// Options configures a Context. Only Logger has a hard default; everything
// else is optional and degrades gracefully when absent.
type Options struct {
	Logger *slog.Logger

	// Name identifies this agent in events and rate-limit scope keys.
	Name string
	// Tenant scopes tenant-keyed rate limit rules. Optional.
	Tenant string

	Tools   *tools.Registry
	Model   *model.Config
	Gateway model.Gateway
	Limiter *ratelimit.Limiter
	Bus     *events.Bus

	// Estimator approximates prompt token cost for rate limiting.
	// Defaults to model.WordCount.
	Estimator model.TokenEstimator
}

// Context aggregates everything one agent instance works against: message
// history, the tool registry, model configuration, and the optional rate
// limiter and event bus.
//
// One Context is owned by one agent instance for its lifetime. The registry,
// limiter, and bus may be shared by reference across concurrent runs; they
// are safe for that. History is guarded by the context's own mutex.
type Context struct {
	log *slog.Logger

	name   string
	tenant string

	tools     *tools.Registry
	modelCfg  *model.Config
	gateway   model.Gateway
	limiter   *ratelimit.Limiter
	bus       *events.Bus
	estimator model.TokenEstimator

	mu        sync.Mutex
	shortTerm []Message
	longTerm  []Message
}

func NewContext(opts Options) *Context {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		name = "agent"
	}
	estimator := opts.Estimator
	if estimator == nil {
		estimator = model.WordCount{}
	}
	return &Context{
		log:       logger,
		name:      name,
		tenant:    strings.TrimSpace(opts.Tenant),
		tools:     opts.Tools,
		modelCfg:  opts.Model,
		gateway:   opts.Gateway,
		limiter:   opts.Limiter,
		bus:       opts.Bus,
		estimator: estimator,
	}
}

func (c *Context) Logger() *slog.Logger { return c.log }

func (c *Context) Name() string { return c.name }

func (c *Context) Tools() *tools.Registry { return c.tools }

// HasModel reports whether both a gateway and a model configuration are
// present, i.e. whether model-backed prompting is possible at all.
func (c *Context) HasModel() bool {
	return c != nil && c.gateway != nil && c.modelCfg != nil
}

// ModelName returns the configured model id, or "" when no model is set.
func (c *Context) ModelName() string {
	if c == nil || c.modelCfg == nil {
		return ""
	}
	return c.modelCfg.Model
}

// Emit publishes an event on behalf of this agent. No-op without a bus.
func (c *Context) Emit(eventType string, data map[string]any) {
	if c == nil {
		return
	}
	c.bus.Emit(eventType, c.name, data)
}

// Generate runs one rate-limited model call and emits llm.latency and
// llm.usage. The admission check uses the configured token estimator; a
// rate-limit rejection or provider error is returned untouched.
func (c *Context) Generate(ctx context.Context, messages []model.ChatMessage) (model.Generation, error) {
	if !c.HasModel() {
		return model.Generation{}, errors.New("no model gateway configured")
	}
	if c.limiter != nil {
		estimate := c.estimator.Estimate(messages)
		id := ratelimit.Identity{Agent: c.name, Model: c.modelCfg.Model, Tenant: c.tenant}
		if err := c.limiter.Check(id, estimate); err != nil {
			return model.Generation{}, err
		}
	}

	start := time.Now()
	gen, err := c.gateway.Generate(ctx, messages, *c.modelCfg)
	if err != nil {
		return model.Generation{}, err
	}
	latency := time.Since(start)

	c.Emit("llm.latency", map[string]any{
		"model":      c.modelCfg.Model,
		"latency_ms": latency.Milliseconds(),
	})
	c.Emit("llm.usage", map[string]any{
		"model":             c.modelCfg.Model,
		"prompt_tokens":     gen.PromptTokens,
		"completion_tokens": gen.CompletionTokens,
		"total_tokens":      gen.TotalTokens,
	})
	return gen, nil
}

// AppendShortTerm appends messages to the short-term conversation history.
func (c *Context) AppendShortTerm(msgs ...Message) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shortTerm = append(c.shortTerm, msgs...)
}

// AppendLongTerm appends messages to the long-term history.
func (c *Context) AppendLongTerm(msgs ...Message) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.longTerm = append(c.longTerm, msgs...)
}

// ShortTerm returns a snapshot of the short-term history.
func (c *Context) ShortTerm() []Message {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.shortTerm))
	copy(out, c.shortTerm)
	return out
}

// LongTerm returns a snapshot of the long-term history.
func (c *Context) LongTerm() []Message {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.longTerm))
	copy(out, c.longTerm)
	return out
}
