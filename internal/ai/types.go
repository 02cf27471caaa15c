package ai

import (
	"encoding/json"
	"errors"
)

// Intent values the classifier may return.
const (
	IntentMessageQuery        = "message_query"
	IntentContactQuery        = "contact_query"
	IntentConversationQuery   = "conversation_query"
	IntentSummary             = "summary"
	IntentClarificationNeeded = "clarification_needed"
	IntentGeneral             = "general"
)

// ErrUnavailable reports that the model could not be reached or timed out.
// Callers decide whether to degrade or fall back to canned behaviour.
var ErrUnavailable = errors.New("ai: model unavailable")

// Classification is the structured result of classifying an owner query.
// Entities stays raw JSON; the query translator owns its shape per intent.
type Classification struct {
	Intent     string          `json:"intent"`
	Entities   json.RawMessage `json:"entities,omitempty"`
	Confidence float64         `json:"confidence"`
	Reasoning  string          `json:"reasoning,omitempty"`
	Response   string          `json:"response,omitempty"`
	TokensUsed int             `json:"-"`
}

// GateDecision is the model's verdict on whether to auto-reply to a contact.
type GateDecision struct {
	ShouldRespond bool   `json:"should_respond"`
	Reason        string `json:"reason,omitempty"`
}

// GateRequest carries the inbound message and its participants to the gate.
type GateRequest struct {
	OwnerName  string
	SenderName string
	Content    string
	History    []HistoryMessage
}

// ReplyRequest carries everything the generator needs to draft a reply.
type ReplyRequest struct {
	OwnerName     string
	AssistantName string
	ContactName   string
	Content       string
	History       []HistoryMessage
	SystemPrompt  string
}

// HistoryMessage is one turn of recent conversation context.
type HistoryMessage struct {
	Sender  string // "user" or "assistant"
	Content string
}
