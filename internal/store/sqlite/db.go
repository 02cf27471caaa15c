// Package sqlite provides the standalone-mode store backend. It keeps the
// same semantics as the Postgres backend but runs from a single local file,
// so the gateway works without any external database.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/itzamna-labs/chasqui/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS contacts (
    id TEXT PRIMARY KEY,
    phone TEXT NOT NULL UNIQUE,
    display_name TEXT,
    is_blocked INTEGER NOT NULL DEFAULT 0,
    category TEXT,
    priority TEXT NOT NULL DEFAULT 'medium',
    metadata TEXT NOT NULL DEFAULT '{}',
    last_seen INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS conversations (
    id TEXT PRIMARY KEY,
    contact_id TEXT NOT NULL REFERENCES contacts (id),
    status TEXT NOT NULL DEFAULT 'active',
    priority TEXT NOT NULL DEFAULT 'medium',
    category TEXT,
    is_assistant_enabled INTEGER NOT NULL DEFAULT 1,
    message_count INTEGER NOT NULL DEFAULT 0,
    last_message_at INTEGER NOT NULL,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS conversations_contact_idx ON conversations (contact_id, status);

CREATE TABLE IF NOT EXISTS messages (
    id TEXT PRIMARY KEY,
    conversation_id TEXT NOT NULL REFERENCES conversations (id),
    contact_id TEXT NOT NULL REFERENCES contacts (id),
    external_id TEXT,
    sender TEXT NOT NULL,
    content TEXT NOT NULL,
    message_type TEXT NOT NULL DEFAULT 'text',
    trigger_message_id TEXT,
    ai_generated INTEGER NOT NULL DEFAULT 0,
    timestamp INTEGER NOT NULL,
    created_at INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS messages_external_id_idx
    ON messages (external_id) WHERE external_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS messages_conversation_ts_idx ON messages (conversation_id, timestamp);
CREATE INDEX IF NOT EXISTS messages_trigger_idx
    ON messages (trigger_message_id) WHERE trigger_message_id IS NOT NULL;
`

// OpenDB opens (and if needed creates) the SQLite database file and applies
// the schema.
func OpenDB(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// modernc sqlite serializes writes; one writer connection avoids
	// SQLITE_BUSY churn under concurrent lanes.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return db, nil
}

// NewStores creates all stores backed by SQLite (standalone mode).
func NewStores(cfg store.Config) (*store.Stores, error) {
	path := cfg.SQLitePath
	if path == "" {
		path = "chasqui.db"
	}
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	return store.NewStores(
		NewContactStore(db),
		NewConversationStore(db),
		NewMessageStore(db),
		db.Close,
	), nil
}

// Timestamps are stored as unix milliseconds.

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nilStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
