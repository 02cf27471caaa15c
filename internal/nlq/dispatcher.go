package nlq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/itzamna-labs/chasqui/internal/ai"
	"github.com/itzamna-labs/chasqui/internal/retrieval"
	"github.com/itzamna-labs/chasqui/internal/store"
)

// minConfidence gates whether a classified intent is trusted enough to run a
// real query instead of replying conversationally.
const minConfidence = 0.5

// Assistant is the slice of the AI client the dispatcher needs.
type Assistant interface {
	Classify(ctx context.Context, text string) (*ai.Classification, error)
	Summarize(ctx context.Context, question, corpus string) (string, error)
}

// Searcher executes validated query specs.
type Searcher interface {
	Search(ctx context.Context, spec store.QuerySpec) (*retrieval.Result, error)
}

// Dispatcher handles messages on the reserved control conversation: it
// classifies the owner's question, runs the matching query, and always
// produces a textual answer. It never consults the response gate.
type Dispatcher struct {
	assistant     Assistant
	translator    *Translator
	searcher      Searcher
	contacts      store.ContactStore
	conversations store.ConversationStore
	now           func() time.Time
}

func NewDispatcher(assistant Assistant, translator *Translator, searcher Searcher, stores *store.Stores) *Dispatcher {
	return &Dispatcher{
		assistant:     assistant,
		translator:    translator,
		searcher:      searcher,
		contacts:      stores.Contacts,
		conversations: stores.Conversations,
		now:           time.Now,
	}
}

// Handle answers one owner query. The returned string is never empty; every
// failure path degrades to a usable reply.
func (d *Dispatcher) Handle(ctx context.Context, text string) string {
	cls, err := d.assistant.Classify(ctx, text)
	if err != nil {
		slog.Warn("control query classification failed", "error", err)
		return "I couldn't process that right now. Please try again in a moment."
	}

	slog.Info("control query classified", "intent", cls.Intent, "confidence", cls.Confidence)

	if cls.Intent == ai.IntentClarificationNeeded {
		if cls.Response != "" {
			return cls.Response
		}
		return "Could you be more specific? For example: \"messages from Maria yesterday\" or \"summary of today\"."
	}

	if cls.Confidence > minConfidence {
		switch cls.Intent {
		case ai.IntentMessageQuery, ai.IntentSummary:
			return d.handleMessageQuery(ctx, text, cls)
		case ai.IntentContactQuery:
			return d.handleContactQuery(ctx, cls)
		case ai.IntentConversationQuery:
			return d.handleConversationQuery(ctx, cls)
		}
	}

	if cls.Response != "" {
		return cls.Response
	}
	return "I'm not sure what you're asking. You can ask about recent messages, contacts, or conversations."
}

func (d *Dispatcher) handleMessageQuery(ctx context.Context, text string, cls *ai.Classification) string {
	spec, err := d.translator.Translate(cls.Entities, text, d.now())
	if err != nil {
		return clarificationFor(err)
	}

	res, err := d.searcher.Search(ctx, spec)
	if err != nil {
		if isValidation(err) {
			return clarificationFor(err)
		}
		slog.Error("control query retrieval failed", "error", err)
		return "I couldn't search the message history right now. Please try again."
	}

	if res.Stats.Total == 0 {
		return "No messages matched that query."
	}

	summary, err := d.assistant.Summarize(ctx, text, res.Corpus())
	if err != nil {
		slog.Warn("summarizer unavailable, formatting raw results", "error", err)
		return formatResult(res)
	}
	return summary
}

func (d *Dispatcher) handleContactQuery(ctx context.Context, cls *ai.Classification) string {
	var ent ContactQueryEntities
	if err := decodeEntities(cls.Entities, &ent); err != nil {
		return clarificationFor(err)
	}

	if ent.Phone != "" {
		contact, err := d.contacts.GetByPhone(ctx, ent.Phone)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Sprintf("No contact found with phone %s.", ent.Phone)
			}
			slog.Error("contact lookup failed", "error", err)
			return "I couldn't look up contacts right now."
		}
		return formatContact(contact)
	}

	if ent.Name != "" {
		// Name search reuses the message query path with a contact filter.
		res, err := d.searcher.Search(ctx, store.QuerySpec{ContactName: ent.Name, Limit: 5, Order: store.OrderFeed})
		if err != nil || res.Stats.Total == 0 {
			return fmt.Sprintf("No recent activity found for %q.", ent.Name)
		}
		m := res.Messages[0]
		name := m.ContactDisplayName
		if name == "" {
			name = m.ContactPhone
		}
		return fmt.Sprintf("%s (%s), last message %s: %s",
			name, m.ContactPhone, m.Timestamp.Format("Jan 2 15:04"), res.Groups[0].Summary)
	}

	return "Which contact? Give me a name or phone number."
}

func (d *Dispatcher) handleConversationQuery(ctx context.Context, cls *ai.Classification) string {
	priorities, err := d.translator.TranslateConversations(cls.Entities)
	if err != nil {
		return clarificationFor(err)
	}

	convs, err := d.conversations.ListByPriority(ctx, priorities, 20)
	if err != nil {
		slog.Error("conversation listing failed", "error", err)
		return "I couldn't list conversations right now."
	}
	if len(convs) == 0 {
		return fmt.Sprintf("No %s conversations at the moment.", strings.Join(priorities, "/"))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d conversation(s):\n", len(convs))
	for _, c := range convs {
		fmt.Fprintf(&b, "- [%s/%s] %d messages, last at %s\n",
			c.Priority, c.Status, c.MessageCount, c.LastMessageAt.Format("Jan 2 15:04"))
	}
	return strings.TrimSpace(b.String())
}

// formatResult is the deterministic fallback when the summarizer is down.
func formatResult(res *retrieval.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d message(s) from %d contact(s):\n", res.Stats.Total, res.Stats.DistinctContacts)
	for i, g := range res.Groups {
		if i >= 10 {
			fmt.Fprintf(&b, "...and %d more group(s)\n", len(res.Groups)-i)
			break
		}
		name := g.ContactDisplayName
		if name == "" {
			name = g.ContactPhone
		}
		fmt.Fprintf(&b, "- %s at %s: %s\n", name, g.Start.Format("Jan 2 15:04"), g.Summary)
	}
	return strings.TrimSpace(b.String())
}

func formatContact(c *store.Contact) string {
	name := c.DisplayName
	if name == "" {
		name = c.Phone
	}
	status := "active"
	if c.IsBlocked {
		status = "blocked"
	}
	return fmt.Sprintf("%s (%s), %s, last seen %s.", name, c.Phone, status, c.LastSeen.Format("Jan 2 15:04"))
}

func clarificationFor(err error) string {
	if errors.Is(err, store.ErrInvalidDateRange) {
		return "That date range doesn't work: the start is after the end. Could you rephrase it?"
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return "I didn't quite get that (" + ve.Msg + "). Could you rephrase?"
	}
	return "Could you rephrase that?"
}

func isValidation(err error) bool {
	var ve *ValidationError
	return errors.Is(err, store.ErrInvalidDateRange) || errors.As(err, &ve)
}
