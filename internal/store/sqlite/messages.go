package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/itzamna-labs/chasqui/internal/store"
)

// MessageStore implements store.MessageStore backed by SQLite.
type MessageStore struct {
	db *sql.DB
}

func NewMessageStore(db *sql.DB) *MessageStore {
	return &MessageStore{db: db}
}

func (s *MessageStore) Insert(ctx context.Context, msg *store.Message) (bool, error) {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.Must(uuid.NewV7())
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = msg.CreatedAt
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, contact_id, external_id, sender, content, message_type, trigger_message_id, ai_generated, timestamp, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (external_id) WHERE external_id IS NOT NULL DO NOTHING`,
		msg.ID.String(), msg.ConversationID.String(), msg.ContactID.String(),
		nilStr(msg.ExternalID), msg.Sender, msg.Content, msg.MessageType,
		nilStr(msg.TriggerMessageID), msg.AIGenerated,
		toMillis(msg.Timestamp), toMillis(msg.CreatedAt))
	if err != nil {
		return false, fmt.Errorf("insert message: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *MessageStore) ReplyExists(ctx context.Context, triggerMessageID string) (bool, error) {
	if triggerMessageID == "" {
		return false, nil
	}
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM messages
		   WHERE sender = ? AND trigger_message_id = ?)`,
		store.SenderAssistant, triggerMessageID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("reply exists: %w", err)
	}
	return exists, nil
}

func (s *MessageStore) Query(ctx context.Context, spec store.QuerySpec) ([]store.MessageWithContact, error) {
	spec = spec.Normalize()
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	where, args := buildWhere(spec)

	order := `LOWER(COALESCE(c.display_name, c.phone)) ASC, m.timestamp ASC`
	if spec.Order == store.OrderFeed {
		order = `m.timestamp DESC`
	}

	args = append(args, spec.Limit)
	q := fmt.Sprintf(`
		SELECT m.id, m.conversation_id, m.contact_id, m.external_id, m.sender,
		       m.content, m.message_type, m.trigger_message_id, m.ai_generated,
		       m.timestamp, m.created_at,
		       c.phone, COALESCE(c.display_name, ''), v.priority
		FROM messages m
		JOIN contacts c ON c.id = m.contact_id
		JOIN conversations v ON v.id = m.conversation_id
		%s
		ORDER BY %s
		LIMIT ?`, where, order)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var result []store.MessageWithContact
	for rows.Next() {
		var r store.MessageWithContact
		var id, conversationID, contactID string
		var externalID, triggerID *string
		var ts, createdAt int64
		if err := rows.Scan(&id, &conversationID, &contactID, &externalID, &r.Sender,
			&r.Content, &r.MessageType, &triggerID, &r.AIGenerated,
			&ts, &createdAt,
			&r.ContactPhone, &r.ContactDisplayName, &r.ConversationPriority); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		r.ID, _ = uuid.Parse(id)
		r.ConversationID, _ = uuid.Parse(conversationID)
		r.ContactID, _ = uuid.Parse(contactID)
		r.ExternalID = derefStr(externalID)
		r.TriggerMessageID = derefStr(triggerID)
		r.Timestamp = fromMillis(ts)
		r.CreatedAt = fromMillis(createdAt)
		result = append(result, r)
	}
	return result, rows.Err()
}

func (s *MessageStore) Count(ctx context.Context, spec store.QuerySpec) (int, error) {
	spec = spec.Normalize()
	if err := spec.Validate(); err != nil {
		return 0, err
	}

	where, args := buildWhere(spec)
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM messages m
		JOIN contacts c ON c.id = m.contact_id
		JOIN conversations v ON v.id = m.conversation_id
		`+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}

func (s *MessageStore) Recent(ctx context.Context, conversationID uuid.UUID, window store.TimeRange, limit int) ([]store.Message, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, contact_id, external_id, sender, content,
		       message_type, trigger_message_id, ai_generated, timestamp, created_at
		FROM (
			SELECT * FROM messages
			WHERE conversation_id = ? AND timestamp >= ? AND timestamp <= ?
			ORDER BY timestamp DESC
			LIMIT ?
		)
		ORDER BY timestamp ASC`,
		conversationID.String(), toMillis(window.Start), toMillis(window.End), limit)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	defer rows.Close()

	var result []store.Message
	for rows.Next() {
		var m store.Message
		var id, convID, contactID string
		var externalID, triggerID *string
		var ts, createdAt int64
		if err := rows.Scan(&id, &convID, &contactID, &externalID, &m.Sender,
			&m.Content, &m.MessageType, &triggerID, &m.AIGenerated, &ts, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.ID, _ = uuid.Parse(id)
		m.ConversationID, _ = uuid.Parse(convID)
		m.ContactID, _ = uuid.Parse(contactID)
		m.ExternalID = derefStr(externalID)
		m.TriggerMessageID = derefStr(triggerID)
		m.Timestamp = fromMillis(ts)
		m.CreatedAt = fromMillis(createdAt)
		result = append(result, m)
	}
	return result, rows.Err()
}

// buildWhere composes the WHERE clause shared by Query and Count.
// SQLite LIKE is case-insensitive for ASCII; LOWER() both sides keeps the
// behaviour aligned with the Postgres backend's ILIKE.
func buildWhere(spec store.QuerySpec) (string, []interface{}) {
	var conds []string
	var args []interface{}

	if spec.Timeframe != nil {
		conds = append(conds, "m.timestamp >= ?", "m.timestamp <= ?")
		args = append(args, toMillis(spec.Timeframe.Start), toMillis(spec.Timeframe.End))
	}
	if spec.Sender != "" {
		conds = append(conds, "m.sender = ?")
		args = append(args, spec.Sender)
	}
	if spec.ContactName != "" {
		conds = append(conds, "LOWER(c.display_name) LIKE LOWER(?)")
		args = append(args, "%"+spec.ContactName+"%")
	}
	if len(spec.Keywords) > 0 {
		ors := make([]string, 0, len(spec.Keywords))
		for _, kw := range spec.Keywords {
			ors = append(ors, "LOWER(m.content) LIKE LOWER(?)")
			args = append(args, "%"+kw+"%")
		}
		conds = append(conds, "("+strings.Join(ors, " OR ")+")")
	}
	for _, kw := range spec.Exclude {
		conds = append(conds, "LOWER(m.content) NOT LIKE LOWER(?)")
		args = append(args, "%"+kw+"%")
	}
	if len(spec.MessageTypes) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(spec.MessageTypes)), ", ")
		conds = append(conds, "m.message_type IN ("+placeholders+")")
		for _, mt := range spec.MessageTypes {
			args = append(args, mt)
		}
	}
	if len(spec.Priorities) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(spec.Priorities)), ", ")
		conds = append(conds, "v.priority IN ("+placeholders+")")
		for _, p := range spec.Priorities {
			args = append(args, p)
		}
	}

	if len(conds) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}
