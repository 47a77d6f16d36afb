// Package ratelimit implements sliding-window admission control for model
// calls, keyed by configurable scope (model, agent, tenant, global).
package ratelimit

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Scope is the identity dimension a rule applies to.
type Scope string

const (
	ScopeModel  Scope = "model"
	ScopeAgent  Scope = "agent"
	ScopeTenant Scope = "tenant"
	ScopeGlobal Scope = "global"
)

func ParseScope(raw string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(raw))) {
	case ScopeModel:
		return ScopeModel, nil
	case ScopeAgent:
		return ScopeAgent, nil
	case ScopeTenant:
		return ScopeTenant, nil
	case ScopeGlobal:
		return ScopeGlobal, nil
	default:
		return "", fmt.Errorf("unknown rate limit scope %q", raw)
	}
}

// Rule is one static ceiling. MaxCalls/MaxTokens <= 0 means that dimension
// is unlimited.
type Rule struct {
	Name      string
	MaxCalls  int
	MaxTokens int
	Window    time.Duration
	Scope     Scope
}

func (r Rule) validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("rule name is required")
	}
	if r.Window <= 0 {
		return fmt.Errorf("rule %s: window must be > 0", r.Name)
	}
	if _, err := ParseScope(string(r.Scope)); err != nil {
		return fmt.Errorf("rule %s: %w", r.Name, err)
	}
	return nil
}

// Identity carries the caller fields rules derive their scope key from.
type Identity struct {
	Agent  string
	Model  string
	Tenant string
}

// Violation reports which rule rejected a call and on which dimension.
type Violation struct {
	Rule string
	Kind string // "calls" | "tokens"
}

func (v *Violation) Error() string {
	return fmt.Sprintf("rate limit exceeded: rule %q over %s budget", v.Rule, v.Kind)
}

type tokenEntry struct {
	at     time.Time
	tokens int
}

type window struct {
	calls  []time.Time
	tokens []tokenEntry
}

// Limiter evaluates every configured rule on each check and admits the call
// only if all pass. Evaluation and recording are atomic: a rejected check
// records nothing anywhere.
type Limiter struct {
	rules []Rule
	now   func() time.Time

	mu      sync.Mutex
	windows map[string]*window // rule name + scope key -> window
}

func New(rules []Rule) (*Limiter, error) {
	cloned := make([]Rule, len(rules))
	copy(cloned, rules)
	for i := range cloned {
		cloned[i].Name = strings.TrimSpace(cloned[i].Name)
		if err := cloned[i].validate(); err != nil {
			return nil, err
		}
	}
	return &Limiter{
		rules:   cloned,
		now:     time.Now,
		windows: make(map[string]*window),
	}, nil
}

// Rules returns a copy of the configured rules.
func (l *Limiter) Rules() []Rule {
	if l == nil {
		return nil
	}
	out := make([]Rule, len(l.rules))
	copy(out, l.rules)
	return out
}

// Check admits or rejects one call worth the given token estimate.
//
// Eviction is lazy: expired entries are dropped as part of the check. If any
// rule rejects, no window records the call.
func (l *Limiter) Check(id Identity, tokens int) error {
	if l == nil || len(l.rules) == 0 {
		return nil
	}
	if tokens < 0 {
		tokens = 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	// First pass: evict and evaluate every rule. Fail closed on the first
	// violation, before anything is recorded.
	keys := make([]string, len(l.rules))
	for i, rule := range l.rules {
		key := rule.Name + "|" + scopeKey(rule.Scope, id)
		keys[i] = key
		w := l.windows[key]
		if w == nil {
			w = &window{}
			l.windows[key] = w
		}
		evict(w, now.Add(-rule.Window))

		if rule.MaxCalls > 0 && len(w.calls) >= rule.MaxCalls {
			return &Violation{Rule: rule.Name, Kind: "calls"}
		}
		if rule.MaxTokens > 0 {
			sum := tokens
			for _, e := range w.tokens {
				sum += e.tokens
			}
			if sum > rule.MaxTokens {
				return &Violation{Rule: rule.Name, Kind: "tokens"}
			}
		}
	}

	// Second pass: all rules passed, record the call in every window.
	for _, key := range keys {
		w := l.windows[key]
		w.calls = append(w.calls, now)
		w.tokens = append(w.tokens, tokenEntry{at: now, tokens: tokens})
	}
	return nil
}

func scopeKey(scope Scope, id Identity) string {
	switch scope {
	case ScopeModel:
		return "model:" + id.Model
	case ScopeAgent:
		return "agent:" + id.Agent
	case ScopeTenant:
		return "tenant:" + id.Tenant
	default:
		return "global"
	}
}

func evict(w *window, cutoff time.Time) {
	i := 0
	for i < len(w.calls) && !w.calls[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.calls = append(w.calls[:0], w.calls[i:]...)
	}
	j := 0
	for j < len(w.tokens) && !w.tokens[j].at.After(cutoff) {
		j++
	}
	if j > 0 {
		w.tokens = append(w.tokens[:0], w.tokens[j:]...)
	}
}
