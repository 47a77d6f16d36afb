package auditlog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/floegence/taskrun-agent/internal/events"
)

func TestEmitAppendsJSONLines(t *testing.T) {
	t.Parallel()

	stateDir := t.TempDir()
	s, err := New(Options{StateDir: stateDir})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	s.Emit(events.Event{Type: "planner.start", Agent: "a", Data: map[string]any{"task": "demo"}})
	s.Emit(events.Event{Type: "planner.complete", Agent: "a", Data: map[string]any{"steps": 2}})

	f, err := os.Open(filepath.Join(stateDir, "audit", "events.jsonl"))
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()

	var types []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e events.Event
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("line %q is not a JSON event: %v", sc.Text(), err)
		}
		types = append(types, e.Type)
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(types) != 2 || types[0] != "planner.start" || types[1] != "planner.complete" {
		t.Fatalf("types=%v", types)
	}
}

func TestRotationKeepsBoundedBackups(t *testing.T) {
	t.Parallel()

	stateDir := t.TempDir()
	s, err := New(Options{StateDir: stateDir, MaxBytes: 1, MaxBackups: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Every event exceeds MaxBytes, so each Emit rotates the active file.
	for i := 0; i < 6; i++ {
		s.Emit(events.Event{Type: "executor.step.complete", Agent: "a"})
	}

	ents, err := os.ReadDir(filepath.Join(stateDir, "audit"))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	var rotated int
	for _, ent := range ents {
		name := ent.Name()
		if strings.HasPrefix(name, "events-") && strings.HasSuffix(name, ".jsonl") {
			rotated++
		}
	}
	if rotated > 2 {
		t.Fatalf("%d rotated backups, want at most 2", rotated)
	}

	// The active file was truncated on the last rotation.
	st, err := os.Stat(filepath.Join(stateDir, "audit", "events.jsonl"))
	if err != nil {
		t.Fatalf("stat active: %v", err)
	}
	if st.Size() != 0 {
		t.Fatalf("active file size=%d, want 0 after rotation", st.Size())
	}
}

func TestNew_RequiresStateDir(t *testing.T) {
	t.Parallel()

	if _, err := New(Options{}); err == nil {
		t.Fatalf("New accepted empty StateDir")
	}
}
