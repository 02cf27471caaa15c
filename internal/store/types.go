package store

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ControlConversationID is the reserved conversation identifier that routes
// inbound messages to the control-channel dispatcher instead of the customer
// pipeline.
const ControlConversationID = "assistant"

// Sender values for Message rows.
const (
	SenderUser      = "user"
	SenderAssistant = "assistant"
	SenderSystem    = "system"
)

// Conversation status values.
const (
	StatusActive   = "active"
	StatusPending  = "pending"
	StatusResolved = "resolved"
	StatusClosed   = "closed"
)

// Priority values, ordered low → urgent.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Message type values accepted from channel adapters.
var KnownMessageTypes = map[string]bool{
	"text":     true,
	"image":    true,
	"audio":    true,
	"video":    true,
	"document": true,
	"sticker":  true,
	"location": true,
	"reaction": true,
}

// ErrInvalidDateRange is returned when a timeframe resolves to start > end.
// Ranges are rejected, never silently swapped.
var ErrInvalidDateRange = errors.New("invalid date range: start after end")

// ErrNotFound is returned by stores when a row does not exist.
var ErrNotFound = errors.New("not found")

// Contact is a messaging identity keyed by phone number.
type Contact struct {
	ID          uuid.UUID         `json:"id"`
	Phone       string            `json:"phone"`
	DisplayName string            `json:"display_name,omitempty"`
	IsBlocked   bool              `json:"is_blocked"`
	Category    string            `json:"category,omitempty"`
	Priority    string            `json:"priority,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	LastSeen    time.Time         `json:"last_seen"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Conversation groups the messages exchanged with one contact.
// ContactID never changes after creation.
type Conversation struct {
	ID                 uuid.UUID `json:"id"`
	ContactID          uuid.UUID `json:"contact_id"`
	Status             string    `json:"status"`
	Priority           string    `json:"priority"`
	Category           string    `json:"category,omitempty"`
	IsAssistantEnabled bool      `json:"is_assistant_enabled"`
	MessageCount       int       `json:"message_count"`
	LastMessageAt      time.Time `json:"last_message_at"`
	CreatedAt          time.Time `json:"created_at"`
}

// Message is one conversation turn. Immutable once persisted; dedup is by
// ExternalID where available. Assistant replies carry the triggering
// message's external id so retries never double-send.
type Message struct {
	ID               uuid.UUID `json:"id"`
	ConversationID   uuid.UUID `json:"conversation_id"`
	ContactID        uuid.UUID `json:"contact_id"`
	ExternalID       string    `json:"external_id,omitempty"`
	Sender           string    `json:"sender"` // user, assistant, system
	Content          string    `json:"content"`
	MessageType      string    `json:"message_type"`
	TriggerMessageID string    `json:"trigger_message_id,omitempty"`
	AIGenerated      bool      `json:"ai_generated,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
	CreatedAt        time.Time `json:"created_at"`
}

// TimeRange is a closed [Start, End] window. Valid iff Start ≤ End.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Valid reports whether the range is well-formed.
func (r TimeRange) Valid() bool { return !r.Start.After(r.End) }

// Query ordering modes.
const (
	OrderSearch = "search" // contact display name asc, then chronological asc
	OrderFeed   = "feed"   // reverse-chronological
)

// Query limit defaults.
const (
	DefaultQueryLimit = 50
	MaxQueryLimit     = 200
)

// QuerySpec is the normalized, validated filter set executed against the
// message store. Pure data: built once per query, never mutated after
// validation.
type QuerySpec struct {
	Timeframe    *TimeRange `json:"timeframe,omitempty"`
	Sender       string     `json:"sender,omitempty"`       // exact role: user | assistant
	ContactName  string     `json:"contact_name,omitempty"` // case-insensitive substring on display name
	Keywords     []string   `json:"keywords,omitempty"`     // OR-group, case-insensitive substring
	Exclude      []string   `json:"exclude,omitempty"`      // AND-group of negated substrings
	MessageTypes []string   `json:"message_types,omitempty"`
	Priorities   []string   `json:"priorities,omitempty"` // joined at conversation level
	Limit        int        `json:"limit"`
	Order        string     `json:"order,omitempty"`
}

// Normalize applies limit defaults and the hard cap. Order defaults to search.
func (q QuerySpec) Normalize() QuerySpec {
	if q.Limit <= 0 {
		q.Limit = DefaultQueryLimit
	}
	if q.Limit > MaxQueryLimit {
		q.Limit = MaxQueryLimit
	}
	if q.Order == "" {
		q.Order = OrderSearch
	}
	return q
}

// Validate checks the invariants that must hold before execution.
func (q QuerySpec) Validate() error {
	if q.Timeframe != nil && !q.Timeframe.Valid() {
		return ErrInvalidDateRange
	}
	for _, mt := range q.MessageTypes {
		if !KnownMessageTypes[mt] {
			return errors.New("unknown message type: " + mt)
		}
	}
	return nil
}

// MessageWithContact is a query result row: the message plus the resolved
// contact display fields needed for ordering and grouping.
type MessageWithContact struct {
	Message
	ContactPhone         string `json:"contact_phone"`
	ContactDisplayName   string `json:"contact_display_name"`
	ConversationPriority string `json:"conversation_priority,omitempty"`
}
