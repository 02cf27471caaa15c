package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/itzamna-labs/chasqui/internal/ai"
	"github.com/itzamna-labs/chasqui/internal/bus"
	"github.com/itzamna-labs/chasqui/internal/config"
	"github.com/itzamna-labs/chasqui/internal/filter"
	"github.com/itzamna-labs/chasqui/internal/store"
	"github.com/itzamna-labs/chasqui/internal/telemetry"
)

// Terminal reasons returned by Process.
const (
	ReasonProcessed          = "processed"
	ReasonAssistantDisabled  = "assistant_disabled"
	ReasonControlDispatched  = "control_dispatched"
	ReasonReactionsDisabled  = "reactions_disabled"
	ReasonGroupDisabled      = "group_messages_disabled"
	ReasonIndividualDisabled = "individual_messages_disabled"
	ReasonSpamDetected       = "spam_detected"
	ReasonContactBlocked     = "contact_blocked"
	ReasonDuplicate          = "duplicate_message"
	ReasonProcessingError    = "processing_error"
)

// Result is the structured outcome of processing one inbound message.
// Process never returns an error outward; failures land here.
type Result struct {
	Processed bool
	Reason    string
	Responded bool
	Err       error
}

// Sender delivers one outbound text through the named channel. Returns the
// provider message id when the transport reports one.
type Sender interface {
	Send(ctx context.Context, channel, phone, text string) (string, error)
}

// ControlHandler answers owner queries on the reserved control conversation.
type ControlHandler interface {
	Handle(ctx context.Context, text string) string
}

// Responder is the slice of the AI client the pipeline needs.
type Responder interface {
	DecideResponse(ctx context.Context, req ai.GateRequest) (*ai.GateDecision, error)
	GenerateReply(ctx context.Context, req ai.ReplyRequest) (string, error)
}

// SummaryScheduler accepts deferred summary tasks for busy conversations.
type SummaryScheduler interface {
	ScheduleSummary(conversationID uuid.UUID, delay time.Duration)
}

// Pipeline turns one raw inbound message into a persisted conversation turn
// and decides whether to auto-respond. Stages short-circuit on the first
// terminal condition; at most one outbound send happens per inbound message.
type Pipeline struct {
	cfg       *config.Config
	stores    *store.Stores
	responder Responder
	sender    Sender
	control   ControlHandler
	events    bus.EventPublisher
	scheduler SummaryScheduler
	stats     *Stats
	aiTimeout time.Duration
}

func New(cfg *config.Config, stores *store.Stores, responder Responder, sender Sender, control ControlHandler) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		stores:    stores,
		responder: responder,
		sender:    sender,
		control:   control,
		stats:     NewStats(),
		aiTimeout: cfg.Snapshot().AI.Timeout(),
	}
}

// SetEvents wires the live event broadcaster. Optional.
func (p *Pipeline) SetEvents(events bus.EventPublisher) { p.events = events }

// SetScheduler wires the deferred summary scheduler. Optional.
func (p *Pipeline) SetScheduler(s SummaryScheduler) { p.scheduler = s }

// Stats exposes the processing counters.
func (p *Pipeline) Stats() *Stats { return p.stats }

// Process runs the full stage sequence for one inbound message. It never
// panics outward and never returns an error; every failure path yields a
// structured Result.
func (p *Pipeline) Process(ctx context.Context, msg bus.InboundMessage) (res Result) {
	ctx, span := telemetry.Tracer("pipeline").Start(ctx, "pipeline.process")
	defer func() {
		if r := recover(); r != nil {
			slog.Error("pipeline panic", "channel", msg.Channel, "message_id", msg.MessageID, "panic", r)
			res = Result{Reason: ReasonProcessingError, Err: fmt.Errorf("panic: %v", r)}
			p.stats.RecordError()
		}
		span.SetAttributes(
			attribute.String("pipeline.channel", msg.Channel),
			attribute.String("pipeline.reason", res.Reason),
			attribute.Bool("pipeline.responded", res.Responded),
		)
		if res.Err != nil {
			span.RecordError(res.Err)
		}
		span.End()
	}()

	cfg := p.cfg.Snapshot()

	// Stage 1: global off-switch.
	if !cfg.Assistant.Enabled {
		return p.skip(ReasonAssistantDisabled)
	}

	// Stage 2: control-channel shortcut. Bypasses the gate entirely; the
	// control path always responds.
	if msg.ConversationID == store.ControlConversationID {
		return p.dispatchControl(ctx, msg)
	}

	// Stage 3: per-installation message-type preferences. Reactions take
	// precedence over the group/individual split.
	isReaction := msg.MessageType == "reaction"
	isBroadcast := msg.Metadata["broadcast"] == "true"
	if !cfg.Preferences.Allows(msg.IsGroupMessage, isReaction, isBroadcast) {
		switch {
		case isReaction:
			return p.skip(ReasonReactionsDisabled)
		case msg.IsGroupMessage:
			return p.skip(ReasonGroupDisabled)
		default:
			return p.skip(ReasonIndividualDisabled)
		}
	}

	// Stage 4: cheap local spam heuristics before any paid AI call.
	if v := filter.Check(msg.Content); v.Spam {
		slog.Info("spam rejected", "phone", msg.Phone, "reason", v.Reason)
		return p.skip(ReasonSpamDetected)
	}

	// Stage 5: find-or-create the contact.
	contact, created, err := p.stores.Contacts.GetOrCreateByPhone(ctx, msg.Phone, msg.PushName)
	if err != nil {
		return p.fail(fmt.Errorf("resolve contact: %w", err))
	}
	if created {
		slog.Info("new contact", "phone", msg.Phone, "channel", msg.Channel)
	}
	if msg.IsGroupMessage {
		p.mergeGroupLabel(ctx, contact, msg.GroupName)
	}

	// Stage 6: blocked contacts are dropped before persistence.
	if contact.IsBlocked {
		return p.skip(ReasonContactBlocked)
	}

	// Stage 7: find-or-create the conversation.
	conv, _, err := p.stores.Conversations.GetOrCreateForContact(ctx, contact.ID)
	if err != nil {
		return p.fail(fmt.Errorf("resolve conversation: %w", err))
	}

	// Stage 8: persist the turn. Contact and conversation already exist, so
	// a crash here never leaves a message without a valid parent. Insert is
	// idempotent by external id.
	row := &store.Message{
		ConversationID: conv.ID,
		ContactID:      contact.ID,
		ExternalID:     msg.MessageID,
		Sender:         store.SenderUser,
		Content:        msg.Content,
		MessageType:    msg.MessageType,
		Timestamp:      msg.Timestamp,
	}
	inserted, err := p.stores.Messages.Insert(ctx, row)
	if err != nil {
		return p.fail(fmt.Errorf("persist message: %w", err))
	}
	if !inserted {
		return p.skip(ReasonDuplicate)
	}
	if err := p.stores.Conversations.RecordMessage(ctx, conv.ID, *row); err != nil {
		slog.Warn("conversation counters not updated", "conversation_id", conv.ID, "error", err)
	}
	if err := p.stores.Contacts.Touch(ctx, contact.ID, msg.PushName); err != nil {
		slog.Warn("contact last-seen not updated", "contact_id", contact.ID, "error", err)
	}
	p.broadcast("message.received", map[string]interface{}{
		"channel":         msg.Channel,
		"conversation_id": conv.ID.String(),
		"phone":           contact.Phone,
		"content":         msg.Content,
	})

	// Stage 9: response gate.
	decision := p.evaluateGate(ctx, cfg, msg, contact, conv)

	// Stage 10: generate and send, at most once per inbound message.
	responded := false
	if decision.Respond {
		responded = p.respond(ctx, cfg, msg, contact, conv)
	}

	// Stage 11: counters.
	p.stats.RecordProcessed(responded)

	// Stage 12: deferred summary for busy high-priority conversations.
	// Fire-and-forget, best-effort.
	if p.scheduler != nil && (conv.Priority == store.PriorityHigh || conv.Priority == store.PriorityUrgent) {
		p.scheduler.ScheduleSummary(conv.ID, 5*time.Minute)
	}

	return Result{Processed: true, Reason: ReasonProcessed, Responded: responded}
}

func (p *Pipeline) dispatchControl(ctx context.Context, msg bus.InboundMessage) Result {
	reply := p.control.Handle(ctx, msg.Content)
	if _, err := p.sender.Send(ctx, msg.Channel, msg.Phone, reply); err != nil {
		slog.Error("control reply not delivered", "phone", msg.Phone, "error", err)
		return Result{Reason: ReasonProcessingError, Err: err}
	}
	p.stats.RecordControl()
	return Result{Processed: true, Reason: ReasonControlDispatched, Responded: true}
}

// mergeGroupLabel stores the group display name on the contact. Best-effort;
// a failure falls back to a generic label rather than failing the pipeline.
func (p *Pipeline) mergeGroupLabel(ctx context.Context, contact *store.Contact, groupName string) {
	label := groupName
	if label == "" {
		label = "group chat"
	}
	if contact.Metadata["group_name"] == label {
		return
	}
	if err := p.stores.Contacts.SetMetadata(ctx, contact.ID, "group_name", label); err != nil {
		slog.Warn("group label not saved", "contact_id", contact.ID, "error", err)
	}
}

func (p *Pipeline) broadcast(name string, payload map[string]interface{}) {
	if p.events == nil {
		return
	}
	p.events.Broadcast(bus.Event{Name: name, Payload: payload})
}

func (p *Pipeline) skip(reason string) Result {
	p.stats.RecordSkipped(reason)
	return Result{Reason: reason}
}

func (p *Pipeline) fail(err error) Result {
	slog.Error("pipeline stage failed", "error", err)
	p.stats.RecordError()
	return Result{Reason: ReasonProcessingError, Err: err}
}
