package store

import (
	"context"

	"github.com/google/uuid"
)

// ContactStore persists messaging identities.
type ContactStore interface {
	// GetOrCreateByPhone finds a contact by phone or creates one with the
	// given display name. Returns created=true on first sight.
	GetOrCreateByPhone(ctx context.Context, phone, displayName string) (*Contact, bool, error)
	GetByPhone(ctx context.Context, phone string) (*Contact, error)
	// Touch updates LastSeen and, when non-empty, the display name.
	Touch(ctx context.Context, id uuid.UUID, displayName string) error
	SetBlocked(ctx context.Context, id uuid.UUID, blocked bool) error
	// UpdateClassification refines category/priority after a processed message.
	UpdateClassification(ctx context.Context, id uuid.UUID, category, priority string) error
	SetMetadata(ctx context.Context, id uuid.UUID, key, value string) error
}

// ConversationStore persists conversations. A conversation's ContactID is
// immutable after creation.
type ConversationStore interface {
	// GetOrCreateForContact returns the contact's open conversation, creating
	// an active one if none exists.
	GetOrCreateForContact(ctx context.Context, contactID uuid.UUID) (*Conversation, bool, error)
	Get(ctx context.Context, id uuid.UUID) (*Conversation, error)
	// RecordMessage bumps MessageCount and LastMessageAt.
	RecordMessage(ctx context.Context, id uuid.UUID, at Message) error
	SetAssistantEnabled(ctx context.Context, id uuid.UUID, enabled bool) error
	SetPriority(ctx context.Context, id uuid.UUID, priority string) error
	SetStatus(ctx context.Context, id uuid.UUID, status string) error
	// ListByPriority returns conversations at any of the given priorities,
	// most recently active first.
	ListByPriority(ctx context.Context, priorities []string, limit int) ([]Conversation, error)
}

// MessageStore persists conversation turns and executes validated queries.
type MessageStore interface {
	// Insert writes one message row. Idempotent by ExternalID: inserting a
	// message whose external id already exists is a no-op returning
	// inserted=false.
	Insert(ctx context.Context, msg *Message) (bool, error)
	// ReplyExists reports whether an assistant message keyed by the given
	// triggering message id was already persisted.
	ReplyExists(ctx context.Context, triggerMessageID string) (bool, error)
	// Query executes a validated QuerySpec. The spec must have passed
	// Validate(); ordering follows spec.Order.
	Query(ctx context.Context, spec QuerySpec) ([]MessageWithContact, error)
	// Count returns the number of rows matching the spec, ignoring Limit.
	Count(ctx context.Context, spec QuerySpec) (int, error)
	// Recent returns the conversation's latest messages within the window,
	// chronological ascending, capped at limit.
	Recent(ctx context.Context, conversationID uuid.UUID, window TimeRange, limit int) ([]Message, error)
}

// Stores aggregates all store implementations behind one handle.
type Stores struct {
	Contacts      ContactStore
	Conversations ConversationStore
	Messages      MessageStore

	closer func() error
}

// NewStores builds the aggregate. closer releases shared resources (the DB
// handle) on shutdown; nil is allowed.
func NewStores(contacts ContactStore, conversations ConversationStore, messages MessageStore, closer func() error) *Stores {
	return &Stores{
		Contacts:      contacts,
		Conversations: conversations,
		Messages:      messages,
		closer:        closer,
	}
}

// Close releases underlying resources.
func (s *Stores) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

// Config selects and configures a store backend.
type Config struct {
	// Mode is "sqlite" (default) or "postgres".
	Mode string
	// PostgresDSN comes from env only, never from the config file.
	PostgresDSN string
	// SQLitePath is the database file for sqlite mode.
	SQLitePath string
}
