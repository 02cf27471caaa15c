// Package discord implements the Discord bot channel.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/itzamna-labs/chasqui/internal/bus"
	"github.com/itzamna-labs/chasqui/internal/channels"
	"github.com/itzamna-labs/chasqui/internal/config"
)

const maxMessageLen = 2000

// Channel connects a Discord bot to the pipeline. Discord channel ids stand
// in for phone numbers.
type Channel struct {
	*channels.BaseChannel
	session *discordgo.Session
	botID   string
}

func New(cfg config.DiscordConfig, msgBus *bus.MessageBus) (*Channel, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("discord token is required")
	}

	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	return &Channel{
		BaseChannel: channels.NewBaseChannel("discord", msgBus),
		session:     session,
	}, nil
}

// Start opens the gateway connection.
func (c *Channel) Start(_ context.Context) error {
	slog.Info("starting discord bot")

	c.session.AddHandler(c.handleMessage)

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}

	user, err := c.session.User("@me")
	if err != nil {
		_ = c.session.Close()
		return fmt.Errorf("discord identity check: %w", err)
	}
	c.botID = user.ID

	c.SetRunning(true)
	slog.Info("discord bot connected", "username", user.Username)
	return nil
}

// Stop closes the gateway connection.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping discord bot")
	c.SetRunning(false)
	return c.session.Close()
}

// Send delivers an outbound message, chunking at the Discord length limit.
func (c *Channel) Send(_ context.Context, msg bus.OutboundMessage) error {
	text := msg.Content
	for len(text) > 0 {
		chunk := text
		if len(chunk) > maxMessageLen {
			chunk = text[:maxMessageLen]
		}
		text = text[len(chunk):]
		if _, err := c.session.ChannelMessageSend(msg.Phone, chunk); err != nil {
			return fmt.Errorf("send discord message: %w", err)
		}
	}
	return nil
}

// SetTyping shows the typing indicator; Discord expires it on its own.
func (c *Channel) SetTyping(_ context.Context, channelID string, typing bool) error {
	if !typing {
		return nil
	}
	return c.session.ChannelTyping(channelID)
}

func (c *Channel) handleMessage(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == c.botID || m.Author.Bot {
		return
	}

	content := m.Content
	messageType := "text"
	if content == "" && len(m.Attachments) > 0 {
		messageType = "document"
		content = "[" + messageType + "]"
	}
	if content == "" {
		return
	}

	isGroup := m.GuildID != ""
	ts := m.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	pushName := m.Author.Username
	if m.Member != nil && m.Member.Nick != "" {
		pushName = m.Member.Nick
	}

	slog.Debug("discord message received",
		"channel_id", m.ChannelID,
		"preview", channels.Truncate(content, 50),
	)

	c.HandleMessage(bus.InboundMessage{
		MessageID:      m.ID,
		Phone:          m.ChannelID,
		Content:        content,
		MessageType:    messageType,
		PushName:       pushName,
		Timestamp:      ts.UTC(),
		IsGroupMessage: isGroup,
	})
}
