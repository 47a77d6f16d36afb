package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/floegence/taskrun-agent/internal/agent"
	"github.com/floegence/taskrun-agent/internal/auditlog"
	"github.com/floegence/taskrun-agent/internal/config"
	"github.com/floegence/taskrun-agent/internal/events"
	"github.com/floegence/taskrun-agent/internal/lockfile"
	"github.com/floegence/taskrun-agent/internal/model"
	"github.com/floegence/taskrun-agent/internal/ratelimit"
	"github.com/floegence/taskrun-agent/internal/runstore"
	"github.com/floegence/taskrun-agent/internal/runtime"
	"github.com/floegence/taskrun-agent/internal/taskspec"
	"github.com/floegence/taskrun-agent/internal/tools"
	"github.com/floegence/taskrun-agent/internal/tools/builtin"
)

var (
	// Version is set via -ldflags at build time.
	Version = "dev"
	// Commit is set via -ldflags at build time.
	Commit = "unknown"
	// BuildTime is set via -ldflags at build time.
	BuildTime = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "init":
		initCmd(os.Args[2:])
	case "run":
		runCmd(os.Args[2:])
	case "runs":
		runsCmd(os.Args[2:])
	case "version":
		fmt.Printf("taskrun-agent %s (%s) %s\n", Version, Commit, BuildTime)
	default:
		printUsage()
		os.Exit(2)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `taskrun-agent

Usage:
  taskrun-agent init [flags]
  taskrun-agent run [flags]
  taskrun-agent runs [flags]
  taskrun-agent version

Commands:
  init        Write a starter config file.
  run         Plan and execute a task (or a YAML task spec) and print the trace.
  runs        List persisted runs, or show one run's trace.
  version     Print build information.

`)
}

func initCmd(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	cfgPath := fs.String("config", config.DefaultConfigPath(), "Config file path")
	force := fs.Bool("force", false, "Overwrite an existing config file")
	_ = fs.Parse(args)

	if !*force {
		if _, err := os.Stat(*cfgPath); err == nil {
			fmt.Fprintf(os.Stderr, "config already exists: %s (use -force to overwrite)\n", *cfgPath)
			os.Exit(1)
		}
	}

	cfg := &config.Config{
		AgentName: "taskrun",
		Providers: []config.Provider{{
			ID:        "openai",
			Type:      "openai",
			APIKeyEnv: "OPENAI_API_KEY",
			Models:    []string{"gpt-4o-mini"},
		}},
		DefaultModel: "openai/gpt-4o-mini",
		RateLimits: []config.RateLimitRule{{
			Name:          "model-calls",
			MaxCalls:      30,
			WindowSeconds: 60,
			Scope:         "model",
		}},
		LogFormat: "text",
		LogLevel:  "info",
	}
	if err := config.Save(*cfgPath, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Config written: %s\n", filepath.Clean(*cfgPath))
}

func runCmd(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", config.DefaultConfigPath(), "Config file path")
	task := fs.String("task", "", "Task text to plan and execute")
	specPath := fs.String("spec", "", "YAML task spec path (alternative to -task)")
	modelRef := fs.String("model", "", "Model override as <provider_id>/<model_name>")
	timeout := fs.Duration("timeout", 5*time.Minute, "Overall run timeout")
	_ = fs.Parse(args)

	if strings.TrimSpace(*task) == "" && strings.TrimSpace(*specPath) == "" {
		fmt.Fprintln(os.Stderr, "one of -task or -spec is required")
		fs.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(filepath.Clean(*cfgPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := buildLogger(cfg.LogFormat, cfg.LogLevel)

	var runs []taskspec.Task
	if strings.TrimSpace(*specPath) != "" {
		runs, err = taskspec.Load(*specPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load task spec: %v\n", err)
			os.Exit(1)
		}
	} else {
		runs = []taskspec.Task{{ID: "cli", Task: strings.TrimSpace(*task), Model: strings.TrimSpace(*modelRef)}}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx, cancelTO := context.WithTimeout(ctx, *timeout)
	defer cancelTO()

	stateDir := cfg.ResolveStateDir()
	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create state dir: %v\n", err)
		os.Exit(1)
	}
	lock, err := lockfile.Acquire(filepath.Join(stateDir, "agent.lock"))
	if err != nil {
		if errors.Is(err, lockfile.ErrAlreadyLocked) {
			fmt.Fprintf(os.Stderr, "another taskrun-agent run is already using %s\n", stateDir)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "failed to lock state dir: %v\n", err)
		os.Exit(1)
	}
	defer lock.Release()

	store, err := runstore.Open(filepath.Join(stateDir, "runs.db"))
	if err != nil {
		log.Warn("run store unavailable, traces will not be persisted", "error", err)
		store = nil
	} else {
		defer store.Close()
	}

	failed := 0
	for _, t := range runs {
		if err := runOne(ctx, log, cfg, store, t); err != nil {
			log.Error("run failed", "task_id", t.ID, "error", err)
			failed++
		}
	}
	if failed > 0 {
		os.Exit(1)
	}
}

func runOne(ctx context.Context, log *slog.Logger, cfg *config.Config, store *runstore.Store, t taskspec.Task) error {
	provider, modelName, err := cfg.ResolveModel(t.Model)
	if err != nil {
		return err
	}
	apiKey := strings.TrimSpace(os.Getenv(provider.APIKeyEnv))
	if apiKey == "" {
		return fmt.Errorf("missing api key: set %s", provider.APIKeyEnv)
	}
	gateway, err := model.NewProviderGateway(provider.Type, provider.BaseURL, apiKey)
	if err != nil {
		return err
	}

	registry := tools.NewRegistry()
	if !cfg.DisableBuiltinTools {
		if err := builtin.Register(registry); err != nil {
			return err
		}
	}

	var limiter *ratelimit.Limiter
	if rules, err := cfg.Rules(); err != nil {
		return err
	} else if len(rules) > 0 {
		limiter, err = ratelimit.New(rules)
		if err != nil {
			return err
		}
	}

	bus := events.NewBus(log)
	bus.AddSink(events.NewSlogSink(log))
	if audit, err := auditlog.New(auditlog.Options{Logger: log, StateDir: cfg.ResolveStateDir()}); err != nil {
		log.Warn("audit log unavailable", "error", err)
	} else {
		bus.AddSink(audit)
	}

	actx := agent.NewContext(agent.Options{
		Logger: log,
		Name:   cfg.AgentName,
		Tenant: cfg.Tenant,
		Tools:  registry,
		Model: &model.Config{
			Provider: provider.Type,
			Model:    modelName,
			BaseURL:  provider.BaseURL,
			APIKey:   apiKey,
		},
		Gateway: gateway,
		Limiter: limiter,
		Bus:     bus,
	})

	rt := runtime.New(runtime.Options{Logger: log, Context: actx, Store: store})
	msgs, err := rt.Run(ctx, t.Task)
	if err != nil {
		return err
	}
	printTrace(t, msgs)
	return nil
}

func printTrace(t taskspec.Task, msgs []agent.Message) {
	if strings.TrimSpace(t.Title) != "" {
		fmt.Printf("== %s (%s)\n", t.Title, t.ID)
	}
	for _, m := range msgs {
		label := m.Role
		if v, ok := m.Metadata["type"].(string); ok {
			label = v
		}
		fmt.Printf("--- %s\n%s\n", label, m.Content)
	}
}

func runsCmd(args []string) {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	cfgPath := fs.String("config", config.DefaultConfigPath(), "Config file path")
	limit := fs.Int("limit", 20, "Max runs to list")
	runID := fs.String("id", "", "Show the message trace for one run")
	_ = fs.Parse(args)

	cfg, err := config.Load(filepath.Clean(*cfgPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	store, err := runstore.Open(filepath.Join(cfg.ResolveStateDir(), "runs.db"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open run store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()
	if strings.TrimSpace(*runID) != "" {
		msgs, err := store.ListMessages(ctx, *runID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to list messages: %v\n", err)
			os.Exit(1)
		}
		if len(msgs) == 0 {
			fmt.Fprintf(os.Stderr, "no messages for run %s\n", *runID)
			os.Exit(1)
		}
		for _, m := range msgs {
			fmt.Printf("--- [%d] %s\n%s\n", m.Seq, m.Role, m.Content)
		}
		return
	}

	list, err := store.ListRuns(ctx, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to list runs: %v\n", err)
		os.Exit(1)
	}
	if len(list) == 0 {
		fmt.Println("no runs recorded")
		return
	}
	for _, r := range list {
		line := map[string]any{
			"run_id":  r.RunID,
			"status":  r.Status,
			"task":    r.Task,
			"updated": time.UnixMilli(r.UpdatedAtUnixMs).UTC().Format(time.RFC3339),
		}
		if r.Error != "" {
			line["error"] = r.Error
		}
		b, err := json.Marshal(line)
		if err != nil {
			continue
		}
		fmt.Println(string(b))
	}
}

