// Package taskspec loads YAML task-spec files for batch CLI runs.
package taskspec

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Task is one task to run.
type Task struct {
	ID    string `yaml:"id"`
	Title string `yaml:"title"`

	// Task is the natural-language task text handed to the planner.
	Task string `yaml:"task"`

	// Model overrides the configured default ("<provider_id>/<model_name>").
	Model string `yaml:"model"`
}

type specFile struct {
	Version string `yaml:"version"`
	Tasks   []Task `yaml:"tasks"`
}

// Load reads a task spec file and validates every entry.
func Load(path string) ([]Task, error) {
	cleanPath := strings.TrimSpace(path)
	if cleanPath == "" {
		return nil, fmt.Errorf("missing task spec path")
	}
	data, err := os.ReadFile(filepath.Clean(cleanPath))
	if err != nil {
		return nil, err
	}
	var spec specFile
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, err
	}
	if len(spec.Tasks) == 0 {
		return nil, fmt.Errorf("task spec has no tasks")
	}

	seen := map[string]bool{}
	out := make([]Task, 0, len(spec.Tasks))
	for _, item := range spec.Tasks {
		id := strings.TrimSpace(item.ID)
		if id == "" {
			return nil, fmt.Errorf("task id is empty")
		}
		if seen[id] {
			return nil, fmt.Errorf("duplicate task id %s", id)
		}
		seen[id] = true
		task := strings.TrimSpace(item.Task)
		if task == "" {
			return nil, fmt.Errorf("task %s has no task text", id)
		}
		out = append(out, Task{
			ID:    id,
			Title: strings.TrimSpace(item.Title),
			Task:  task,
			Model: strings.TrimSpace(item.Model),
		})
	}
	return out, nil
}
