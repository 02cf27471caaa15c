package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/itzamna-labs/chasqui/internal/store"
)

// ContactStore implements store.ContactStore backed by SQLite.
type ContactStore struct {
	db *sql.DB
}

func NewContactStore(db *sql.DB) *ContactStore {
	return &ContactStore{db: db}
}

const contactColumns = `id, phone, display_name, is_blocked, category, priority, metadata, last_seen, created_at, updated_at`

func (s *ContactStore) GetOrCreateByPhone(ctx context.Context, phone, displayName string) (*store.Contact, bool, error) {
	if c, err := s.GetByPhone(ctx, phone); err == nil {
		return c, false, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, false, err
	}

	now := time.Now().UTC()
	c := &store.Contact{
		ID:          uuid.Must(uuid.NewV7()),
		Phone:       phone,
		DisplayName: displayName,
		Priority:    store.PriorityMedium,
		LastSeen:    now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO contacts (id, phone, display_name, is_blocked, category, priority, metadata, last_seen, created_at, updated_at)
		 VALUES (?, ?, ?, 0, NULL, ?, '{}', ?, ?, ?)
		 ON CONFLICT (phone) DO NOTHING`,
		c.ID.String(), c.Phone, nilStr(c.DisplayName), c.Priority,
		toMillis(c.LastSeen), toMillis(c.CreatedAt), toMillis(c.UpdatedAt))
	if err != nil {
		return nil, false, fmt.Errorf("insert contact: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		existing, err := s.GetByPhone(ctx, phone)
		return existing, false, err
	}
	return c, true, nil
}

func (s *ContactStore) GetByPhone(ctx context.Context, phone string) (*store.Contact, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE phone = ?`, phone)
	return scanContact(row)
}

func (s *ContactStore) Touch(ctx context.Context, id uuid.UUID, displayName string) error {
	now := toMillis(time.Now())
	_, err := s.db.ExecContext(ctx,
		`UPDATE contacts
		 SET last_seen = ?,
		     display_name = COALESCE(NULLIF(?, ''), display_name),
		     updated_at = ?
		 WHERE id = ?`,
		now, displayName, now, id.String())
	if err != nil {
		return fmt.Errorf("touch contact: %w", err)
	}
	return nil
}

func (s *ContactStore) SetBlocked(ctx context.Context, id uuid.UUID, blocked bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE contacts SET is_blocked = ?, updated_at = ? WHERE id = ?`,
		blocked, toMillis(time.Now()), id.String())
	return err
}

func (s *ContactStore) UpdateClassification(ctx context.Context, id uuid.UUID, category, priority string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE contacts
		 SET category = COALESCE(NULLIF(?, ''), category),
		     priority = COALESCE(NULLIF(?, ''), priority),
		     updated_at = ?
		 WHERE id = ?`,
		category, priority, toMillis(time.Now()), id.String())
	return err
}

func (s *ContactStore) SetMetadata(ctx context.Context, id uuid.UUID, key, value string) error {
	// Read-modify-write; single-writer connection makes this safe.
	var metaJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT metadata FROM contacts WHERE id = ?`, id.String()).Scan(&metaJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return err
	}

	meta := map[string]string{}
	json.Unmarshal([]byte(metaJSON), &meta)
	meta[key] = value
	updated, err := json.Marshal(meta)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE contacts SET metadata = ?, updated_at = ? WHERE id = ?`,
		string(updated), toMillis(time.Now()), id.String())
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanContact(row rowScanner) (*store.Contact, error) {
	var c store.Contact
	var id string
	var displayName, category, priority *string
	var metaJSON string
	var lastSeen, createdAt, updatedAt int64

	err := row.Scan(&id, &c.Phone, &displayName, &c.IsBlocked, &category, &priority,
		&metaJSON, &lastSeen, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan contact: %w", err)
	}

	c.ID, _ = uuid.Parse(id)
	c.DisplayName = derefStr(displayName)
	c.Category = derefStr(category)
	c.Priority = derefStr(priority)
	json.Unmarshal([]byte(metaJSON), &c.Metadata)
	c.LastSeen = fromMillis(lastSeen)
	c.CreatedAt = fromMillis(createdAt)
	c.UpdatedAt = fromMillis(updatedAt)
	return &c, nil
}
