package taskspec

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeSpec(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tasks.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write spec: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Parallel()

	path := writeSpec(t, `
version: "1"
tasks:
  - id: greet
    title: Greeting
    task: Say hello to the user.
  - id: report
    task: "  Summarize system health.  "
    model: openai/gpt-4o-mini
`)
	tasks, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("%d tasks, want 2", len(tasks))
	}
	if tasks[0].ID != "greet" || tasks[0].Title != "Greeting" {
		t.Fatalf("first task=%+v", tasks[0])
	}
	if tasks[1].Task != "Summarize system health." {
		t.Fatalf("task text=%q, want trimmed", tasks[1].Task)
	}
	if tasks[1].Model != "openai/gpt-4o-mini" {
		t.Fatalf("model=%q", tasks[1].Model)
	}
}

func TestLoad_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		wantSub string
	}{
		{
			name:    "no tasks",
			content: `version: "1"`,
			wantSub: "no tasks",
		},
		{
			name: "empty id",
			content: `tasks:
  - task: do something`,
			wantSub: "task id is empty",
		},
		{
			name: "duplicate id",
			content: `tasks:
  - id: a
    task: one
  - id: a
    task: two`,
			wantSub: "duplicate task id",
		},
		{
			name: "missing task text",
			content: `tasks:
  - id: a
    title: Empty`,
			wantSub: "has no task text",
		},
		{
			name:    "not yaml",
			content: "{{{",
			wantSub: "yaml",
		},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := Load(writeSpec(t, tc.content))
			if err == nil {
				t.Fatalf("Load passed, want error containing %q", tc.wantSub)
			}
			if !strings.Contains(err.Error(), tc.wantSub) {
				t.Fatalf("error %q does not contain %q", err, tc.wantSub)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("Load accepted missing file")
	}
	if _, err := Load("  "); err == nil {
		t.Fatalf("Load accepted blank path")
	}
}
