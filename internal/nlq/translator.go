package nlq

import (
	"encoding/json"
	"time"

	"github.com/itzamna-labs/chasqui/internal/store"
)

// Translator converts classifier {intent, entities} bundles into validated
// query specs. It holds only static configuration; Translate is pure given
// its now argument.
type Translator struct {
	Location  *time.Location
	FloorYear int
}

func NewTranslator(loc *time.Location, floorYear int) *Translator {
	if loc == nil {
		loc = time.UTC
	}
	return &Translator{Location: loc, FloorYear: floorYear}
}

// Translate builds a QuerySpec for a message_query or summary intent.
// rawText is the user's original message, used for timeframe corrections.
// Returns a ValidationError or store.ErrInvalidDateRange on bad input.
func (t *Translator) Translate(raw json.RawMessage, rawText string, now time.Time) (store.QuerySpec, error) {
	var ent MessageQueryEntities
	if err := decodeEntities(raw, &ent); err != nil {
		return store.QuerySpec{}, err
	}

	tr, err := ResolveTimeframe(ent.Timeframe, rawText, now.In(t.Location), t.FloorYear)
	if err != nil {
		return store.QuerySpec{}, err
	}

	for _, mt := range ent.MessageTypes {
		if !store.KnownMessageTypes[mt] {
			return store.QuerySpec{}, &ValidationError{Field: "message_types", Msg: "unknown type " + mt}
		}
	}

	spec := store.QuerySpec{
		Timeframe:    tr,
		Keywords:     ent.Keywords,
		Exclude:      ent.Exclude,
		MessageTypes: ent.MessageTypes,
		Limit:        ent.Limit,
		Order:        store.OrderSearch,
	}

	// Sender is an exact role, or a contact-name substring otherwise.
	switch ent.Sender {
	case "", "all", "any":
		spec.ContactName = ent.ContactName
	case store.SenderUser, store.SenderAssistant:
		spec.Sender = ent.Sender
		spec.ContactName = ent.ContactName
	default:
		spec.ContactName = ent.Sender
	}

	spec = spec.Normalize()
	if err := spec.Validate(); err != nil {
		return store.QuerySpec{}, err
	}
	return spec, nil
}

// TranslateConversations builds the priority filter for conversation_query.
func (t *Translator) TranslateConversations(raw json.RawMessage) ([]string, error) {
	var ent ConversationQueryEntities
	if err := decodeEntities(raw, &ent); err != nil {
		return nil, err
	}
	for _, p := range ent.Priorities {
		switch p {
		case store.PriorityLow, store.PriorityMedium, store.PriorityHigh, store.PriorityUrgent:
		default:
			return nil, &ValidationError{Field: "priorities", Msg: "unknown priority " + p}
		}
	}
	if len(ent.Priorities) == 0 {
		ent.Priorities = []string{store.PriorityHigh, store.PriorityUrgent}
	}
	return ent.Priorities, nil
}
