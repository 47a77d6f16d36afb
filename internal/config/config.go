// Package config is the on-disk configuration for taskrun-agent.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/floegence/taskrun-agent/internal/ratelimit"
)

// Config is the agent configuration file.
//
// NOTE: Secrets (API keys) are never stored here. Providers name the env var
// holding their key.
type Config struct {
	// AgentName identifies this agent in events and rate-limit scopes.
	AgentName string `json:"agent_name,omitempty"`
	// Tenant scopes tenant-keyed rate limit rules. Optional.
	Tenant string `json:"tenant,omitempty"`

	// StateDir holds the run database and audit log.
	// If empty, ~/.taskrun-agent is used.
	StateDir string `json:"state_dir,omitempty"`

	// Providers is the model provider registry.
	Providers []Provider `json:"providers,omitempty"`

	// DefaultModel selects the model as "<provider_id>/<model_name>".
	DefaultModel string `json:"default_model,omitempty"`

	// RateLimits are evaluated on every model call; all must pass.
	RateLimits []RateLimitRule `json:"rate_limits,omitempty"`

	// DisableBuiltinTools skips registering echo/time.now/sys.info.
	DisableBuiltinTools bool `json:"disable_builtin_tools,omitempty"`

	// LogFormat is "json" or "text".
	LogFormat string `json:"log_format,omitempty"`
	// LogLevel is "debug|info|warn|error".
	LogLevel string `json:"log_level,omitempty"`
}

type Provider struct {
	// ID is a stable internal id, referenced by default_model.
	ID string `json:"id"`

	// Type is one of: "openai" | "anthropic" | "openai_compatible".
	Type string `json:"type"`

	// BaseURL overrides the provider endpoint. Required for
	// openai_compatible, optional otherwise.
	BaseURL string `json:"base_url,omitempty"`

	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `json:"api_key_env"`

	// Models is the allowed model list for this provider.
	Models []string `json:"models,omitempty"`
}

type RateLimitRule struct {
	Name          string `json:"name"`
	MaxCalls      int    `json:"max_calls,omitempty"`
	MaxTokens     int    `json:"max_tokens,omitempty"`
	WindowSeconds int    `json:"window_seconds"`
	Scope         string `json:"scope"`
}

func (c *Config) Validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	seen := map[string]bool{}
	for i := range c.Providers {
		p := &c.Providers[i]
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return fmt.Errorf("providers[%d]: missing id", i)
		}
		if seen[id] {
			return fmt.Errorf("providers[%d]: duplicate id %q", i, id)
		}
		seen[id] = true
		switch strings.ToLower(strings.TrimSpace(p.Type)) {
		case "openai", "anthropic":
		case "openai_compatible":
			if strings.TrimSpace(p.BaseURL) == "" {
				return fmt.Errorf("provider %s: openai_compatible requires base_url", id)
			}
		default:
			return fmt.Errorf("provider %s: unsupported type %q", id, p.Type)
		}
		if strings.TrimSpace(p.APIKeyEnv) == "" {
			return fmt.Errorf("provider %s: missing api_key_env", id)
		}
	}
	if strings.TrimSpace(c.DefaultModel) != "" {
		if _, _, err := c.ResolveModel(c.DefaultModel); err != nil {
			return fmt.Errorf("invalid default_model: %w", err)
		}
	}
	for i, r := range c.RateLimits {
		if _, err := r.Rule(); err != nil {
			return fmt.Errorf("rate_limits[%d]: %w", i, err)
		}
	}
	switch strings.ToLower(strings.TrimSpace(c.LogFormat)) {
	case "", "json", "text":
	default:
		return fmt.Errorf("unsupported log_format %q", c.LogFormat)
	}
	return nil
}

// ResolveModel splits a "<provider_id>/<model_name>" reference and returns
// the matching provider. A bare model name is accepted when exactly one
// provider is configured.
func (c *Config) ResolveModel(ref string) (Provider, string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		ref = strings.TrimSpace(c.DefaultModel)
	}
	if ref == "" {
		return Provider{}, "", errors.New("no model selected and no default_model configured")
	}

	providerID, modelName, ok := strings.Cut(ref, "/")
	if !ok {
		if len(c.Providers) == 1 {
			return c.Providers[0], ref, nil
		}
		return Provider{}, "", fmt.Errorf("model %q must be qualified as <provider_id>/<model_name>", ref)
	}
	for _, p := range c.Providers {
		if strings.TrimSpace(p.ID) != strings.TrimSpace(providerID) {
			continue
		}
		modelName = strings.TrimSpace(modelName)
		if modelName == "" {
			return Provider{}, "", fmt.Errorf("model reference %q has an empty model name", ref)
		}
		return p, modelName, nil
	}
	return Provider{}, "", fmt.Errorf("unknown provider %q", providerID)
}

// Rule converts the config shape to a limiter rule.
func (r RateLimitRule) Rule() (ratelimit.Rule, error) {
	if strings.TrimSpace(r.Name) == "" {
		return ratelimit.Rule{}, errors.New("missing name")
	}
	if r.WindowSeconds <= 0 {
		return ratelimit.Rule{}, fmt.Errorf("rule %s: window_seconds must be > 0", r.Name)
	}
	scope, err := ratelimit.ParseScope(r.Scope)
	if err != nil {
		return ratelimit.Rule{}, err
	}
	return ratelimit.Rule{
		Name:      strings.TrimSpace(r.Name),
		MaxCalls:  r.MaxCalls,
		MaxTokens: r.MaxTokens,
		Window:    time.Duration(r.WindowSeconds) * time.Second,
		Scope:     scope,
	}, nil
}

// Rules converts all configured rate limits.
func (c *Config) Rules() ([]ratelimit.Rule, error) {
	out := make([]ratelimit.Rule, 0, len(c.RateLimits))
	for _, r := range c.RateLimits {
		rule, err := r.Rule()
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, nil
}

// ResolveStateDir returns the configured state dir or the default under the
// user home dir.
func (c *Config) ResolveStateDir() string {
	if c != nil && strings.TrimSpace(c.StateDir) != "" {
		return filepath.Clean(strings.TrimSpace(c.StateDir))
	}
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return ".taskrun-agent"
	}
	return filepath.Join(home, ".taskrun-agent")
}

// DefaultConfigPath returns the default config path:
//
//	~/.taskrun-agent/config.json
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return "taskrun-agent.config.json"
	}
	return filepath.Join(home, ".taskrun-agent", "config.json")
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	// Write atomically.
	tmp := path + ".tmp"
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')

	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
