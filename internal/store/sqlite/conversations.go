package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/itzamna-labs/chasqui/internal/store"
)

// ConversationStore implements store.ConversationStore backed by SQLite.
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
		 WHERE contact_id = ? AND status != ?
		 ORDER BY last_message_at DESC LIMIT 1`,
		contactID.String(), store.StatusClosed)
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
		 VALUES (?, ?, ?, ?, NULL, 1, 0, ?, ?)`,
		conv.ID.String(), conv.ContactID.String(), conv.Status, conv.Priority,
		toMillis(conv.LastMessageAt), toMillis(conv.CreatedAt))
	if err != nil {
		return nil, false, fmt.Errorf("insert conversation: %w", err)
	}
	return conv, true, nil
}

func (s *ConversationStore) Get(ctx context.Context, id uuid.UUID) (*store.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id.String())
	return scanConversation(row)
}

func (s *ConversationStore) RecordMessage(ctx context.Context, id uuid.UUID, msg store.Message) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversations
		 SET message_count = message_count + 1,
		     last_message_at = MAX(last_message_at, ?)
		 WHERE id = ?`,
		toMillis(msg.Timestamp), id.String())
	if err != nil {
		return fmt.Errorf("record message: %w", err)
	}
	return nil
}

func (s *ConversationStore) SetAssistantEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET is_assistant_enabled = ? WHERE id = ?`, enabled, id.String())
	return err
}

func (s *ConversationStore) SetPriority(ctx context.Context, id uuid.UUID, priority string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET priority = ? WHERE id = ?`, priority, id.String())
	return err
}

func (s *ConversationStore) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET status = ? WHERE id = ?`, status, id.String())
	return err
}

func (s *ConversationStore) ListByPriority(ctx context.Context, priorities []string, limit int) ([]store.Conversation, error) {
	if len(priorities) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(priorities)), ", ")
	args := make([]interface{}, 0, len(priorities)+1)
	for _, p := range priorities {
		args = append(args, p)
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations
		 WHERE priority IN (`+placeholders+`)
		 ORDER BY last_message_at DESC
		 LIMIT ?`, args...)
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
	var id, contactID string
	var category *string
	var lastMessageAt, createdAt int64

	err := row.Scan(&id, &contactID, &c.Status, &c.Priority, &category,
		&c.IsAssistantEnabled, &c.MessageCount, &lastMessageAt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation: %w", err)
	}

	c.ID, _ = uuid.Parse(id)
	c.ContactID, _ = uuid.Parse(contactID)
	c.Category = derefStr(category)
	c.LastMessageAt = fromMillis(lastMessageAt)
	c.CreatedAt = fromMillis(createdAt)
	return &c, nil
}
