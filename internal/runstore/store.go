// Package runstore is the local SQLite-backed persistence layer for run
// traces: one row per run, one row per message in the trace.
package runstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/floegence/taskrun-agent/internal/agent"
	_ "modernc.org/sqlite"
)

// Run statuses.
const (
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusError    = "error"
)

// Store wraps a single-writer SQLite database. WAL is enabled so the CLI
// can read past runs while one is in flight.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("missing db path")
	}
	p = filepath.Clean(p)
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`PRAGMA journal_mode=WAL`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			agent TEXT NOT NULL,
			task TEXT NOT NULL,
			status TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			created_at_unix_ms INTEGER NOT NULL,
			updated_at_unix_ms INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS run_messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			message_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			metadata_json TEXT NOT NULL DEFAULT '',
			created_at_unix_ms INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_run_messages_run ON run_messages(run_id, seq)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_updated ON runs(updated_at_unix_ms DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Run is one persisted run row.
type Run struct {
	RunID           string `json:"run_id"`
	Agent           string `json:"agent"`
	Task            string `json:"task"`
	Status          string `json:"status"`
	Error           string `json:"error,omitempty"`
	CreatedAtUnixMs int64  `json:"created_at_unix_ms"`
	UpdatedAtUnixMs int64  `json:"updated_at_unix_ms"`
}

// StoredMessage is one persisted trace message.
type StoredMessage struct {
	RunID           string `json:"run_id"`
	Seq             int    `json:"seq"`
	MessageID       string `json:"message_id"`
	Role            string `json:"role"`
	Content         string `json:"content"`
	MetadataJSON    string `json:"metadata_json,omitempty"`
	CreatedAtUnixMs int64  `json:"created_at_unix_ms"`
}

func (s *Store) CreateRun(ctx context.Context, runID string, agentName string, task string) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return errors.New("missing run_id")
	}
	now := time.Now().UnixMilli()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, agent, task, status, created_at_unix_ms, updated_at_unix_ms)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		runID, strings.TrimSpace(agentName), task, StatusRunning, now, now)
	return err
}

func (s *Store) FinishRun(ctx context.Context, runID string, status string, errText string) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return errors.New("missing run_id")
	}
	switch status {
	case StatusComplete, StatusError:
	default:
		return errors.New("invalid final status")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, updated_at_unix_ms = ? WHERE run_id = ?`,
		status, strings.TrimSpace(errText), time.Now().UnixMilli(), runID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.New("run not found")
	}
	return nil
}

func (s *Store) AppendMessage(ctx context.Context, runID string, seq int, msg agent.Message) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return errors.New("missing run_id")
	}
	metadata := ""
	if len(msg.Metadata) > 0 {
		b, err := json.Marshal(msg.Metadata)
		if err == nil {
			metadata = string(b)
		}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_messages (run_id, seq, message_id, role, content, metadata_json, created_at_unix_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, seq, msg.ID, msg.Role, msg.Content, metadata, time.Now().UnixMilli())
	return err
}

// ListRuns returns the most recently updated runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialized")
	}
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, agent, task, status, error, created_at_unix_ms, updated_at_unix_ms
		 FROM runs ORDER BY updated_at_unix_ms DESC, run_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.RunID, &r.Agent, &r.Task, &r.Status, &r.Error, &r.CreatedAtUnixMs, &r.UpdatedAtUnixMs); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListMessages returns a run's trace in sequence order.
func (s *Store) ListMessages(ctx context.Context, runID string) ([]StoredMessage, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialized")
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return nil, errors.New("missing run_id")
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, seq, message_id, role, content, metadata_json, created_at_unix_ms
		 FROM run_messages WHERE run_id = ? ORDER BY seq ASC, id ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StoredMessage
	for rows.Next() {
		var m StoredMessage
		if err := rows.Scan(&m.RunID, &m.Seq, &m.MessageID, &m.Role, &m.Content, &m.MetadataJSON, &m.CreatedAtUnixMs); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
