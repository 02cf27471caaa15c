package telegram

import (
	"context"
	"testing"
	"time"

	"github.com/mymmrac/telego"

	"github.com/itzamna-labs/chasqui/internal/bus"
	"github.com/itzamna-labs/chasqui/internal/channels"
	"github.com/itzamna-labs/chasqui/internal/store"
)

func testChannel(controlChatID string) (*Channel, *bus.MessageBus) {
	msgBus := bus.NewMessageBus()
	return &Channel{
		BaseChannel:   channels.NewBaseChannel("telegram", msgBus),
		controlChatID: controlChatID,
	}, msgBus
}

func tgMessage(chatID int64, text string) *telego.Message {
	return &telego.Message{
		MessageID: 42,
		From:      &telego.User{ID: chatID, FirstName: "Rosa"},
		Chat:      telego.Chat{ID: chatID, Type: telego.ChatTypePrivate},
		Date:      time.Now().Unix(),
		Text:      text,
	}
}

func TestHandleMessageControlChatRouting(t *testing.T) {
	t.Run("owner chat goes to control conversation", func(t *testing.T) {
		c, msgBus := testChannel("777000")
		c.handleMessage(tgMessage(777000, "resumen de hoy"))

		msg, ok := msgBus.ConsumeInbound(context.Background())
		if !ok {
			t.Fatal("no inbound message published")
		}
		if msg.ConversationID != store.ControlConversationID {
			t.Errorf("ConversationID = %q, want control conversation", msg.ConversationID)
		}
		if msg.Phone != "777000" {
			t.Errorf("Phone = %q", msg.Phone)
		}
	})

	t.Run("other chats stay on the customer path", func(t *testing.T) {
		c, msgBus := testChannel("777000")
		c.handleMessage(tgMessage(123456, "hola, quiero una cita"))

		msg, ok := msgBus.ConsumeInbound(context.Background())
		if !ok {
			t.Fatal("no inbound message published")
		}
		if msg.ConversationID != "" {
			t.Errorf("ConversationID = %q, want empty", msg.ConversationID)
		}
	})

	t.Run("no control chat configured", func(t *testing.T) {
		c, msgBus := testChannel("")
		c.handleMessage(tgMessage(777000, "hola"))

		msg, ok := msgBus.ConsumeInbound(context.Background())
		if !ok {
			t.Fatal("no inbound message published")
		}
		if msg.ConversationID != "" {
			t.Errorf("ConversationID = %q, want empty", msg.ConversationID)
		}
	})
}
