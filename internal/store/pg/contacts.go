package pg

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

// ContactStore implements store.ContactStore backed by Postgres.
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

	metaJSON, _ := json.Marshal(map[string]string{})

	// Concurrent first-message races resolve on the phone unique index:
	// the loser re-reads the winner's row.
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO contacts (id, phone, display_name, is_blocked, category, priority, metadata, last_seen, created_at, updated_at)
		 VALUES ($1, $2, $3, false, NULL, $4, $5, $6, $7, $8)
		 ON CONFLICT (phone) DO NOTHING`,
		c.ID, c.Phone, nilStr(c.DisplayName), c.Priority, metaJSON, c.LastSeen, c.CreatedAt, c.UpdatedAt,
	)
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
		`SELECT `+contactColumns+` FROM contacts WHERE phone = $1`, phone)
	return scanContact(row)
}

func (s *ContactStore) Touch(ctx context.Context, id uuid.UUID, displayName string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`UPDATE contacts
		 SET last_seen = $1,
		     display_name = COALESCE(NULLIF($2, ''), display_name),
		     updated_at = $1
		 WHERE id = $3`,
		now, displayName, id)
	if err != nil {
		return fmt.Errorf("touch contact: %w", err)
	}
	return nil
}

func (s *ContactStore) SetBlocked(ctx context.Context, id uuid.UUID, blocked bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE contacts SET is_blocked = $1, updated_at = $2 WHERE id = $3`,
		blocked, time.Now().UTC(), id)
	return err
}

func (s *ContactStore) UpdateClassification(ctx context.Context, id uuid.UUID, category, priority string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE contacts
		 SET category = COALESCE(NULLIF($1, ''), category),
		     priority = COALESCE(NULLIF($2, ''), priority),
		     updated_at = $3
		 WHERE id = $4`,
		category, priority, time.Now().UTC(), id)
	return err
}

func (s *ContactStore) SetMetadata(ctx context.Context, id uuid.UUID, key, value string) error {
	kv, err := json.Marshal(map[string]string{key: value})
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE contacts SET metadata = metadata || $1::jsonb, updated_at = $2 WHERE id = $3`,
		kv, time.Now().UTC(), id)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanContact(row rowScanner) (*store.Contact, error) {
	var c store.Contact
	var displayName, category, priority *string
	var metaJSON []byte

	err := row.Scan(&c.ID, &c.Phone, &displayName, &c.IsBlocked, &category, &priority,
		&metaJSON, &c.LastSeen, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan contact: %w", err)
	}

	c.DisplayName = derefStr(displayName)
	c.Category = derefStr(category)
	c.Priority = derefStr(priority)
	if len(metaJSON) > 0 {
		json.Unmarshal(metaJSON, &c.Metadata)
	}
	return &c, nil
}
