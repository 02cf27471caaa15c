package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/itzamna-labs/chasqui/internal/ai"
	"github.com/itzamna-labs/chasqui/internal/bus"
	"github.com/itzamna-labs/chasqui/internal/config"
	"github.com/itzamna-labs/chasqui/internal/store"
)

// gateHistoryWindow bounds the recent-context lookback fed to the model.
const gateHistoryWindow = 30 * time.Minute

const gateHistoryLimit = 10

// Decision is the gate's verdict for one inbound message.
type Decision struct {
	Respond bool
	Reason  string
}

// evaluateGate decides whether to auto-reply. Deterministic checks run first
// in strict order; only when all pass does the model get consulted. When the
// model is unavailable the gate defaults to fail-closed (no reply) unless
// ai.fail_open is set, because auto-replying under uncertainty risks sending
// wrong content to a business contact.
func (p *Pipeline) evaluateGate(ctx context.Context, cfg config.Config, msg bus.InboundMessage, contact *store.Contact, conv *store.Conversation) Decision {
	if !cfg.Assistant.Enabled {
		return Decision{Reason: "assistant_disabled"}
	}
	if msg.Metadata["sender"] == store.SenderSystem || msg.Metadata["sender"] == store.SenderAssistant {
		return Decision{Reason: "non_user_sender"}
	}
	if contact.IsBlocked {
		return Decision{Reason: "contact_blocked"}
	}
	if !conv.IsAssistantEnabled {
		return Decision{Reason: "conversation_assistant_disabled"}
	}

	history := p.recentHistory(ctx, conv.ID, msg.Timestamp)

	aiCtx, cancel := context.WithTimeout(ctx, p.aiTimeout)
	defer cancel()
	decision, err := p.responder.DecideResponse(aiCtx, ai.GateRequest{
		OwnerName:  cfg.Assistant.OwnerName,
		SenderName: displayName(contact, msg.PushName),
		Content:    msg.Content,
		History:    history,
	})
	if err != nil {
		if cfg.AI.FailOpen {
			slog.Warn("gate degraded, failing open", "error", err)
			return Decision{Respond: true, Reason: "ai_unavailable_fail_open"}
		}
		slog.Warn("gate degraded, failing closed", "error", err)
		return Decision{Reason: "ai_unavailable_fail_closed"}
	}

	return Decision{Respond: decision.ShouldRespond, Reason: decision.Reason}
}

// recentHistory loads the conversation's last turns within the gate window.
// Best-effort; an empty history just means less context for the model.
func (p *Pipeline) recentHistory(ctx context.Context, conversationID uuid.UUID, until time.Time) []ai.HistoryMessage {
	window := store.TimeRange{Start: until.Add(-gateHistoryWindow), End: until}
	rows, err := p.stores.Messages.Recent(ctx, conversationID, window, gateHistoryLimit)
	if err != nil {
		slog.Warn("recent history unavailable", "conversation_id", conversationID, "error", err)
		return nil
	}
	history := make([]ai.HistoryMessage, 0, len(rows))
	for _, m := range rows {
		history = append(history, ai.HistoryMessage{Sender: m.Sender, Content: m.Content})
	}
	return history
}
