// Package channels provides the channel abstraction layer connecting
// messaging platforms (WhatsApp, Telegram, Discord) to the processing
// pipeline via the message bus.
package channels

import (
	"context"

	"github.com/itzamna-labs/chasqui/internal/bus"
)

// Channel is implemented by every platform adapter.
type Channel interface {
	// Name returns the channel identifier ("whatsapp", "telegram", "discord").
	Name() string

	// Start begins listening for messages. Non-blocking after setup.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the channel.
	Stop(ctx context.Context) error

	// Send delivers an outbound message.
	Send(ctx context.Context, msg bus.OutboundMessage) error

	// IsRunning reports whether the channel is actively processing.
	IsRunning() bool
}

// TypingChannel extends Channel with a typing indicator. Adapters that
// support it show the indicator while a reply is being generated.
type TypingChannel interface {
	Channel
	SetTyping(ctx context.Context, phone string, typing bool) error
}

// BaseChannel provides shared state for channel implementations.
type BaseChannel struct {
	name    string
	bus     *bus.MessageBus
	running bool
}

func NewBaseChannel(name string, msgBus *bus.MessageBus) *BaseChannel {
	return &BaseChannel{name: name, bus: msgBus}
}

func (c *BaseChannel) Name() string { return c.name }

func (c *BaseChannel) IsRunning() bool { return c.running }

func (c *BaseChannel) SetRunning(running bool) { c.running = running }

func (c *BaseChannel) Bus() *bus.MessageBus { return c.bus }

// HandleMessage publishes a canonical inbound message to the bus. This is
// the standard way for adapters to forward received messages.
func (c *BaseChannel) HandleMessage(msg bus.InboundMessage) {
	msg.Channel = c.name
	c.bus.PublishInbound(msg)
}

// Truncate shortens a string to maxLen, appending "..." if truncated.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
