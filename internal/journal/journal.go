// Package journal keeps an append-only SQLite record of the agent's
// observable history: lifecycle transitions, orchestrator operations,
// maintenance notices, and dropped heartbeats. It is diagnostic history for
// the ops API; heartbeat state is never restored from it.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/lifeline-project/lifeline/events"
)

const schema = `
CREATE TABLE IF NOT EXISTS agent_events (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	recorded_at TEXT NOT NULL,
	kind       TEXT NOT NULL,
	detail     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_agent_events_recorded_at ON agent_events(recorded_at);
`

// Entry is one recorded agent event.
type Entry struct {
	ID         int64     `json:"id"`
	RecordedAt time.Time `json:"recorded_at"`
	Kind       string    `json:"kind"`
	Detail     string    `json:"detail"`
}

// Journal is a thread-safe append-only event store.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// Open creates or opens the journal database at dbPath and applies the
// schema.
func Open(dbPath string) (*Journal, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", dbPath, err)
	}

	// SQLite takes one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		log.Warn().Err(err).Msg("failed to enable WAL mode")
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply journal schema: %w", err)
	}

	log.Info().Str("path", dbPath).Msg("journal opened")
	return &Journal{db: db}, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record appends one event. The detail is stored as JSON.
func (j *Journal) Record(kind string, detail any) error {
	payload, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("marshal journal detail: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	_, err = j.db.Exec(
		"INSERT INTO agent_events (recorded_at, kind, detail) VALUES (?, ?, ?)",
		time.Now().UTC().Format(time.RFC3339), kind, string(payload),
	)
	if err != nil {
		return fmt.Errorf("append journal entry: %w", err)
	}
	return nil
}

// Recent returns the newest n entries, newest first.
func (j *Journal) Recent(n int) ([]Entry, error) {
	rows, err := j.db.Query(
		"SELECT id, recorded_at, kind, detail FROM agent_events ORDER BY id DESC LIMIT ?", n)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry Entry
			ts    string
		)
		if err := rows.Scan(&entry.ID, &ts, &entry.Kind, &entry.Detail); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		entry.RecordedAt, _ = time.Parse(time.RFC3339, ts)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Subscribe wires the journal to the agent event bus so every observable
// event is recorded as it happens.
func (j *Journal) Subscribe(bus *events.Bus) {
	record := func(ctx context.Context, event events.Event) error {
		return j.Record(string(event.Type), event.Payload)
	}

	for _, t := range []events.EventType{
		events.EventStateChanged,
		events.EventOperationReceived,
		events.EventSessionConfigUpdated,
		events.EventMaintenanceScheduled,
		events.EventHeartbeatFailed,
		events.EventAgentStopped,
	} {
		bus.Subscribe(t, "journal."+string(t), record)
	}
}
