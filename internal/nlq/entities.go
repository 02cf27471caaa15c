package nlq

import (
	"encoding/json"
	"fmt"
)

// ValidationError marks bad classifier output. Callers turn it into a
// clarification request rather than a failure.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid query: " + e.Msg
	}
	return fmt.Sprintf("invalid query: %s: %s", e.Field, e.Msg)
}

// TimeframeEntity is the structured time-range request the classifier emits.
// Either Relative+Unit+Value or literal Start/End strings.
type TimeframeEntity struct {
	Relative string `json:"relative,omitempty"` // "today", "yesterday", "past"
	Unit     string `json:"unit,omitempty"`     // "days", "weeks", "months"
	Value    int    `json:"value,omitempty"`
	Start    string `json:"start,omitempty"`
	End      string `json:"end,omitempty"`
}

// MessageQueryEntities is the payload for message_query and summary intents.
type MessageQueryEntities struct {
	Timeframe    *TimeframeEntity `json:"timeframe,omitempty"`
	Sender       string           `json:"sender,omitempty"`
	ContactName  string           `json:"contact_name,omitempty"`
	Keywords     []string         `json:"keywords,omitempty"`
	Exclude      []string         `json:"exclude,omitempty"`
	MessageTypes []string         `json:"message_types,omitempty"`
	Limit        int              `json:"limit,omitempty"`
}

// ContactQueryEntities is the payload for contact_query.
type ContactQueryEntities struct {
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// ConversationQueryEntities is the payload for conversation_query.
type ConversationQueryEntities struct {
	Priorities []string `json:"priorities,omitempty"`
	Status     string   `json:"status,omitempty"`
}

// decodeEntities parses raw classifier entities into dst. Unknown fields are
// tolerated; the classifier is untrusted and over-produces.
func decodeEntities(raw json.RawMessage, dst interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return &ValidationError{Msg: "malformed entities: " + err.Error()}
	}
	return nil
}
