package pg

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/itzamna-labs/chasqui/internal/store"
)

// MessageStore implements store.MessageStore backed by Postgres.
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

	// external_id has a partial unique index (WHERE external_id IS NOT NULL):
	// replays of the same platform message are no-ops.
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, contact_id, external_id, sender, content, message_type, trigger_message_id, ai_generated, timestamp, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (external_id) WHERE external_id IS NOT NULL DO NOTHING`,
		msg.ID, msg.ConversationID, msg.ContactID, nilStr(msg.ExternalID),
		msg.Sender, msg.Content, msg.MessageType, nilStr(msg.TriggerMessageID),
		msg.AIGenerated, msg.Timestamp, msg.CreatedAt)
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
		   WHERE sender = $1 AND trigger_message_id = $2)`,
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
		LIMIT $%d`, where, order, len(args))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var result []store.MessageWithContact
	for rows.Next() {
		var r store.MessageWithContact
		var externalID, triggerID *string
		if err := rows.Scan(&r.ID, &r.ConversationID, &r.ContactID, &externalID, &r.Sender,
			&r.Content, &r.MessageType, &triggerID, &r.AIGenerated,
			&r.Timestamp, &r.CreatedAt,
			&r.ContactPhone, &r.ContactDisplayName, &r.ConversationPriority); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		r.ExternalID = derefStr(externalID)
		r.TriggerMessageID = derefStr(triggerID)
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

	// Inner DESC + outer re-sort keeps the *latest* rows while returning
	// them chronologically ascending.
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, contact_id, external_id, sender, content,
		       message_type, trigger_message_id, ai_generated, timestamp, created_at
		FROM (
			SELECT * FROM messages
			WHERE conversation_id = $1 AND timestamp >= $2 AND timestamp <= $3
			ORDER BY timestamp DESC
			LIMIT $4
		) latest
		ORDER BY timestamp ASC`,
		conversationID, window.Start, window.End, limit)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	defer rows.Close()

	var result []store.Message
	for rows.Next() {
		var m store.Message
		var externalID, triggerID *string
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.ContactID, &externalID, &m.Sender,
			&m.Content, &m.MessageType, &triggerID, &m.AIGenerated, &m.Timestamp, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.ExternalID = derefStr(externalID)
		m.TriggerMessageID = derefStr(triggerID)
		result = append(result, m)
	}
	return result, rows.Err()
}

// buildWhere composes the WHERE clause shared by Query and Count.
func buildWhere(spec store.QuerySpec) (string, []interface{}) {
	var conds []string
	var args []interface{}

	next := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if spec.Timeframe != nil {
		conds = append(conds, "m.timestamp >= "+next(spec.Timeframe.Start))
		conds = append(conds, "m.timestamp <= "+next(spec.Timeframe.End))
	}
	if spec.Sender != "" {
		conds = append(conds, "m.sender = "+next(spec.Sender))
	}
	if spec.ContactName != "" {
		conds = append(conds, "c.display_name ILIKE "+next("%"+spec.ContactName+"%"))
	}
	if len(spec.Keywords) > 0 {
		ors := make([]string, 0, len(spec.Keywords))
		for _, kw := range spec.Keywords {
			ors = append(ors, "m.content ILIKE "+next("%"+kw+"%"))
		}
		conds = append(conds, "("+strings.Join(ors, " OR ")+")")
	}
	for _, kw := range spec.Exclude {
		conds = append(conds, "m.content NOT ILIKE "+next("%"+kw+"%"))
	}
	if len(spec.MessageTypes) > 0 {
		in := make([]string, 0, len(spec.MessageTypes))
		for _, mt := range spec.MessageTypes {
			in = append(in, next(mt))
		}
		conds = append(conds, "m.message_type IN ("+strings.Join(in, ", ")+")")
	}
	if len(spec.Priorities) > 0 {
		in := make([]string, 0, len(spec.Priorities))
		for _, p := range spec.Priorities {
			in = append(in, next(p))
		}
		conds = append(conds, "v.priority IN ("+strings.Join(in, ", ")+")")
	}

	if len(conds) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}
