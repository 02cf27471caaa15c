// Package telegram implements the Telegram bot channel via long polling.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/itzamna-labs/chasqui/internal/bus"
	"github.com/itzamna-labs/chasqui/internal/channels"
	"github.com/itzamna-labs/chasqui/internal/config"
	"github.com/itzamna-labs/chasqui/internal/store"
)

// Channel connects a Telegram bot to the pipeline.
type Channel struct {
	*channels.BaseChannel
	bot           *telego.Bot
	controlChatID string
	pollCancel    context.CancelFunc
	pollDone      chan struct{}
}

func New(cfg config.TelegramConfig, msgBus *bus.MessageBus) (*Channel, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}

	bot, err := telego.NewBot(cfg.Token, telego.WithDiscardLogger())
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	return &Channel{
		BaseChannel:   channels.NewBaseChannel("telegram", msgBus),
		bot:           bot,
		controlChatID: cfg.ControlChatID,
	}, nil
}

// Start begins long polling for updates.
func (c *Channel) Start(ctx context.Context) error {
	slog.Info("starting telegram bot (polling mode)")

	pollCtx, cancel := context.WithCancel(ctx)
	c.pollCancel = cancel
	c.pollDone = make(chan struct{})

	updates, err := c.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout:        30,
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("start long polling: %w", err)
	}

	c.SetRunning(true)
	slog.Info("telegram bot connected", "username", c.bot.Username())

	go func() {
		defer close(c.pollDone)
		for {
			select {
			case <-pollCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					slog.Info("telegram updates channel closed")
					return
				}
				if update.Message != nil {
					c.handleMessage(update.Message)
				}
			}
		}
	}()

	return nil
}

// Stop cancels polling and waits for the poll goroutine.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping telegram bot")
	c.SetRunning(false)

	if c.pollCancel != nil {
		c.pollCancel()
	}
	if c.pollDone != nil {
		select {
		case <-c.pollDone:
		case <-time.After(5 * time.Second):
			slog.Warn("telegram poll goroutine did not exit in time")
		}
	}
	return nil
}

// Send delivers an outbound message. Phone carries the Telegram chat id.
func (c *Channel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	chatID, err := strconv.ParseInt(msg.Phone, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat id %q: %w", msg.Phone, err)
	}
	if _, err := c.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), msg.Content)); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

// SetTyping shows the typing action. Telegram auto-expires it after a few
// seconds, so only the "on" edge is sent.
func (c *Channel) SetTyping(ctx context.Context, phone string, typing bool) error {
	if !typing {
		return nil
	}
	chatID, err := strconv.ParseInt(phone, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat id %q: %w", phone, err)
	}
	return c.bot.SendChatAction(ctx, tu.ChatAction(tu.ID(chatID), telego.ChatActionTyping))
}

func (c *Channel) handleMessage(message *telego.Message) {
	if message.From == nil {
		return
	}

	content := message.Text
	messageType := "text"
	switch {
	case content == "" && len(message.Photo) > 0:
		content = message.Caption
		messageType = "image"
	case content == "" && message.Voice != nil:
		messageType = "audio"
	case content == "" && message.Document != nil:
		messageType = "document"
	case content == "" && message.Sticker != nil:
		messageType = "sticker"
	}
	if content == "" {
		content = "[" + messageType + "]"
	}

	isGroup := message.Chat.Type == telego.ChatTypeGroup || message.Chat.Type == telego.ChatTypeSupergroup

	pushName := message.From.FirstName
	if message.From.LastName != "" {
		pushName += " " + message.From.LastName
	}

	slog.Debug("telegram message received",
		"chat_id", message.Chat.ID,
		"preview", channels.Truncate(content, 50),
	)

	chatID := strconv.FormatInt(message.Chat.ID, 10)
	msg := bus.InboundMessage{
		MessageID:      strconv.Itoa(message.MessageID),
		Phone:          chatID,
		Content:        content,
		MessageType:    messageType,
		PushName:       pushName,
		Timestamp:      time.Unix(message.Date, 0).UTC(),
		IsGroupMessage: isGroup,
		GroupName:      message.Chat.Title,
	}
	// The configured owner chat talks to the assistant, not the pipeline.
	if c.controlChatID != "" && chatID == c.controlChatID {
		msg.ConversationID = store.ControlConversationID
	}
	c.HandleMessage(msg)
}
