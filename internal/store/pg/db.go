package pg

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/itzamna-labs/chasqui/internal/store"
)

// OpenDB opens a pooled Postgres connection using the pgx stdlib driver.
func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// NewStores creates all stores backed by Postgres (managed mode).
func NewStores(cfg store.Config) (*store.Stores, error) {
	db, err := OpenDB(cfg.PostgresDSN)
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
