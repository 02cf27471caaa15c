package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/itzamna-labs/chasqui/internal/ai"
	"github.com/itzamna-labs/chasqui/internal/bus"
	"github.com/itzamna-labs/chasqui/internal/config"
	"github.com/itzamna-labs/chasqui/internal/store"
)

// respond generates a reply, sends it, and persists the assistant turn keyed
// by the triggering message id. Returns true when a send happened. Retried
// processing of the same inbound message never double-sends: the trigger key
// is checked before generating.
func (p *Pipeline) respond(ctx context.Context, cfg config.Config, msg bus.InboundMessage, contact *store.Contact, conv *store.Conversation) bool {
	if msg.MessageID != "" {
		exists, err := p.stores.Messages.ReplyExists(ctx, msg.MessageID)
		if err != nil {
			slog.Warn("reply idempotency check failed, skipping send", "trigger", msg.MessageID, "error", err)
			return false
		}
		if exists {
			slog.Info("reply already sent for trigger", "trigger", msg.MessageID)
			return false
		}
	}

	text, aiGenerated := p.draftReply(ctx, cfg, msg, contact, conv)

	if _, err := p.sender.Send(ctx, msg.Channel, msg.Phone, text); err != nil {
		slog.Error("outbound send failed", "phone", msg.Phone, "error", err)
		return false
	}

	reply := &store.Message{
		ConversationID:   conv.ID,
		ContactID:        contact.ID,
		Sender:           store.SenderAssistant,
		Content:          text,
		MessageType:      "text",
		TriggerMessageID: msg.MessageID,
		AIGenerated:      aiGenerated,
		Timestamp:        time.Now().UTC(),
	}
	if _, err := p.stores.Messages.Insert(ctx, reply); err != nil {
		slog.Error("assistant reply not persisted", "trigger", msg.MessageID, "error", err)
	} else if err := p.stores.Conversations.RecordMessage(ctx, conv.ID, *reply); err != nil {
		slog.Warn("conversation counters not updated", "conversation_id", conv.ID, "error", err)
	}

	p.broadcast("message.sent", map[string]interface{}{
		"conversation_id": conv.ID.String(),
		"phone":           contact.Phone,
		"ai_generated":    aiGenerated,
	})
	return true
}

// draftReply asks the model for reply text, falling back to the deterministic
// template when the model fails or returns nothing. The fallback never calls
// out and always succeeds.
func (p *Pipeline) draftReply(ctx context.Context, cfg config.Config, msg bus.InboundMessage, contact *store.Contact, conv *store.Conversation) (string, bool) {
	aiCtx, cancel := context.WithTimeout(ctx, p.aiTimeout)
	defer cancel()

	text, err := p.responder.GenerateReply(aiCtx, ai.ReplyRequest{
		OwnerName:     cfg.Assistant.OwnerName,
		AssistantName: cfg.Assistant.AssistantName,
		ContactName:   displayName(contact, msg.PushName),
		Content:       msg.Content,
		History:       p.recentHistory(ctx, conv.ID, msg.Timestamp),
		SystemPrompt:  cfg.Assistant.SystemPrompt,
	})
	if err == nil && text != "" {
		return text, true
	}
	if err != nil {
		slog.Warn("reply generation failed, using fallback", "error", err)
	}
	return fallbackReply(displayName(contact, msg.PushName), conv.Priority, time.Now().In(p.cfg.Location())), false
}

// fallbackReply builds the canned reply from local data only.
func fallbackReply(name, priority string, now time.Time) string {
	greeting := "Buenas noches"
	switch h := now.Hour(); {
	case h >= 5 && h < 12:
		greeting = "Buenos días"
	case h >= 12 && h < 19:
		greeting = "Buenas tardes"
	}

	who := ""
	if name != "" {
		who = " " + name
	}

	if priority == store.PriorityHigh || priority == store.PriorityUrgent {
		return fmt.Sprintf("%s%s, recibimos tu mensaje y lo estamos atendiendo con prioridad. Te respondemos muy pronto.", greeting, who)
	}
	return fmt.Sprintf("%s%s, gracias por tu mensaje. Te responderemos a la brevedad.", greeting, who)
}

func displayName(contact *store.Contact, pushName string) string {
	if contact.DisplayName != "" {
		return contact.DisplayName
	}
	return pushName
}
