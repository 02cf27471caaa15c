package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/itzamna-labs/chasqui/internal/store"
)

// ConversationStore implements store.ConversationStore backed by Postgres.
type ConversationStore struct {
	db *sql.DB
}

func NewConversationStore(db *sql.DB) *ConversationStore {
	return &ConversationStore{db: db}
}

const conversationColumns = `id, contact_id, status, priority, category, is_assistant_enabled, message_count, last_message_at, created_at`

func (s *ConversationStore) GetOrCreateForContact(ctx context.Context, contactID uuid.UUID) (*store.Conversation, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations
		 WHERE contact_id = $1 AND status != $2
		 ORDER BY last_message_at DESC LIMIT 1`,
		contactID, store.StatusClosed)
	conv, err := scanConversation(row)
	if err == nil {
		return conv, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, err
	}

	now := time.Now().UTC()
	conv = &store.Conversation{
		ID:                 uuid.Must(uuid.NewV7()),
		ContactID:          contactID,
		Status:             store.StatusActive,
		Priority:           store.PriorityMedium,
		IsAssistantEnabled: true,
		LastMessageAt:      now,
		CreatedAt:          now,
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, contact_id, status, priority, category, is_assistant_enabled, message_count, last_message_at, created_at)
		 VALUES ($1, $2, $3, $4, NULL, true, 0, $5, $6)`,
		conv.ID, conv.ContactID, conv.Status, conv.Priority, conv.LastMessageAt, conv.CreatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("insert conversation: %w", err)
	}
	return conv, true, nil
}

func (s *ConversationStore) Get(ctx context.Context, id uuid.UUID) (*store.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id)
	return scanConversation(row)
}

func (s *ConversationStore) RecordMessage(ctx context.Context, id uuid.UUID, msg store.Message) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversations
		 SET message_count = message_count + 1,
		     last_message_at = GREATEST(last_message_at, $1)
		 WHERE id = $2`,
		msg.Timestamp, id)
	if err != nil {
		return fmt.Errorf("record message: %w", err)
	}
	return nil
}

func (s *ConversationStore) SetAssistantEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET is_assistant_enabled = $1 WHERE id = $2`, enabled, id)
	return err
}

func (s *ConversationStore) SetPriority(ctx context.Context, id uuid.UUID, priority string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET priority = $1 WHERE id = $2`, priority, id)
	return err
}

func (s *ConversationStore) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET status = $1 WHERE id = $2`, status, id)
	return err
}

func (s *ConversationStore) ListByPriority(ctx context.Context, priorities []string, limit int) ([]store.Conversation, error) {
	if len(priorities) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	args := make([]interface{}, 0, len(priorities)+1)
	in := ""
	for i, p := range priorities {
		if i > 0 {
			in += ", "
		}
		in += fmt.Sprintf("$%d", i+1)
		args = append(args, p)
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations
		 WHERE priority IN (`+in+`)
		 ORDER BY last_message_at DESC
		 LIMIT $`+fmt.Sprint(len(priorities)+1),
		args...)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var result []store.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *conv)
	}
	return result, rows.Err()
}

func scanConversation(row rowScanner) (*store.Conversation, error) {
	var c store.Conversation
	var category *string

	err := row.Scan(&c.ID, &c.ContactID, &c.Status, &c.Priority, &category,
		&c.IsAssistantEnabled, &c.MessageCount, &c.LastMessageAt, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation: %w", err)
	}
	c.Category = derefStr(category)
	return &c, nil
}
