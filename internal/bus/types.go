package bus

import (
	"context"
	"time"
)

// InboundMessage is the canonical form of one message received from a channel
// adapter (WhatsApp bridge, Telegram, Discord). Ephemeral: produced by the
// adapter, consumed exactly once by the pipeline.
type InboundMessage struct {
	Channel        string            `json:"channel"`
	MessageID      string            `json:"message_id"` // platform message id, dedup key
	Phone          string            `json:"phone"`
	Content        string            `json:"content"`
	MessageType    string            `json:"message_type"` // text, image, audio, video, document, reaction
	PushName       string            `json:"push_name,omitempty"`
	Timestamp      time.Time         `json:"timestamp"`
	IsGroupMessage bool              `json:"is_group_message,omitempty"`
	GroupName      string            `json:"group_name,omitempty"`
	ConversationID string            `json:"conversation_id,omitempty"` // set only for control-channel routing
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// OutboundMessage is a message to be delivered through a channel.
type OutboundMessage struct {
	Channel  string            `json:"channel"`
	Phone    string            `json:"phone"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Event is a server-side event broadcast to WebSocket observers
// (live message feed, typing indicators, health).
type Event struct {
	Name    string      `json:"name"`
	Payload interface{} `json:"payload,omitempty"`
}

// MessageHandler handles an inbound message from a specific channel.
type MessageHandler func(InboundMessage) error

// EventHandler handles a broadcast event.
type EventHandler func(Event)

// EventPublisher abstracts event broadcast + subscription.
// Used by the gateway server and the pipeline to decouple from MessageBus.
type EventPublisher interface {
	Subscribe(id string, handler EventHandler)
	Unsubscribe(id string)
	Broadcast(event Event)
}

// MessageRouter abstracts inbound/outbound message routing between channels
// and the processing pipeline.
type MessageRouter interface {
	PublishInbound(msg InboundMessage)
	ConsumeInbound(ctx context.Context) (InboundMessage, bool)
	PublishOutbound(msg OutboundMessage)
	ConsumeOutbound(ctx context.Context) (OutboundMessage, bool)
}
