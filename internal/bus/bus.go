package bus

import (
	"context"
	"log/slog"
	"sync"
)

const defaultQueueSize = 256

// MessageBus routes inbound and outbound messages between channels and the
// pipeline, and fans out events to subscribers. Inbound/outbound queues are
// buffered FIFO channels; publishing to a full queue drops the message with a
// log entry rather than blocking a channel adapter.
type MessageBus struct {
	inbound  chan InboundMessage
	outbound chan OutboundMessage

	mu          sync.RWMutex
	subscribers map[string]EventHandler
}

// NewMessageBus creates a message bus with default queue sizes.
func NewMessageBus() *MessageBus {
	return &MessageBus{
		inbound:     make(chan InboundMessage, defaultQueueSize),
		outbound:    make(chan OutboundMessage, defaultQueueSize),
		subscribers: make(map[string]EventHandler),
	}
}

// PublishInbound enqueues a message for pipeline processing.
func (b *MessageBus) PublishInbound(msg InboundMessage) {
	select {
	case b.inbound <- msg:
	default:
		slog.Warn("bus: inbound queue full, dropping message",
			"channel", msg.Channel, "message_id", msg.MessageID)
	}
}

// ConsumeInbound blocks until a message is available or ctx is done.
// Returns ok=false when the context is cancelled.
func (b *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	select {
	case msg := <-b.inbound:
		return msg, true
	case <-ctx.Done():
		return InboundMessage{}, false
	}
}

// PublishOutbound enqueues a message for channel delivery.
func (b *MessageBus) PublishOutbound(msg OutboundMessage) {
	select {
	case b.outbound <- msg:
	default:
		slog.Warn("bus: outbound queue full, dropping message",
			"channel", msg.Channel, "phone", msg.Phone)
	}
}

// ConsumeOutbound blocks until an outbound message is available or ctx is done.
func (b *MessageBus) ConsumeOutbound(ctx context.Context) (OutboundMessage, bool) {
	select {
	case msg := <-b.outbound:
		return msg, true
	case <-ctx.Done():
		return OutboundMessage{}, false
	}
}

// Subscribe registers an event handler under an id. Re-subscribing with the
// same id replaces the previous handler.
func (b *MessageBus) Subscribe(id string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[id] = handler
}

// Unsubscribe removes an event handler.
func (b *MessageBus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers, id)
}

// Broadcast delivers an event to all subscribers. Handlers run synchronously;
// they must not block.
func (b *MessageBus) Broadcast(event Event) {
	b.mu.RLock()
	handlers := make([]EventHandler, 0, len(b.subscribers))
	for _, h := range b.subscribers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
}
