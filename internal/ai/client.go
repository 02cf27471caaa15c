package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"

	"github.com/itzamna-labs/chasqui/internal/config"
	"github.com/itzamna-labs/chasqui/internal/telemetry"
)

const classifySystemPrompt = `You classify queries that a business owner sends to their messaging assistant.
Reply with a single JSON object:
{"intent": "...", "entities": {...}, "confidence": 0.0-1.0, "reasoning": "...", "response": "..."}

Intents:
- message_query: find messages ("what did Maria say yesterday", "mensajes de hoy")
- contact_query: find or inspect contacts
- conversation_query: list or inspect conversations, optionally by priority
- summary: summarize recent activity over a timeframe
- clarification_needed: the request is ambiguous; put a clarifying question in "response"
- general: anything else; put a direct answer in "response"

Entities for message_query and summary may include: timeframe {"start": "...", "end": "..."} or
{"relative": "today"|"yesterday"|"N days ago"}, sender, contact_name, keywords [..], exclude [..],
message_types [..], limit.
Entities for contact_query: name, phone. For conversation_query: priorities [..], status.
Dates are ISO 8601. Echo the user's own words in relative timeframes when present.`

const gateSystemPrompt = `You decide whether a business messaging assistant should auto-reply to an incoming
customer message. Reply with a single JSON object: {"should_respond": true|false, "reason": "..."}.
Respond true for greetings, questions about the business, scheduling, and anything a polite
human receptionist would answer. Respond false for spam, automated notifications, one-word
acknowledgements that need no answer, and messages clearly addressed to someone else.`

// Client wraps the OpenAI-compatible chat API for classification, gating,
// reply generation, and summarization.
type Client struct {
	api   *openai.Client
	model string
}

func New(cfg config.AIConfig) *Client {
	c := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		c.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &Client{api: openai.NewClientWithConfig(c), model: model}
}

// Classify maps an owner query to an intent with extracted entities.
func (c *Client) Classify(ctx context.Context, text string) (*Classification, error) {
	ctx, span := telemetry.Tracer("ai").Start(ctx, "ai.classify")
	defer span.End()

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: classifySystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.1,
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrUnavailable)
	}

	var out Classification
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &out); err != nil {
		return nil, fmt.Errorf("parse classification: %w", err)
	}
	out.TokensUsed = resp.Usage.TotalTokens
	if out.Intent == "" {
		out.Intent = IntentGeneral
	}
	span.SetAttributes(
		attribute.String("ai.intent", out.Intent),
		attribute.Int("ai.tokens", out.TokensUsed),
	)
	slog.Debug("classified query", "intent", out.Intent, "confidence", out.Confidence, "tokens", out.TokensUsed)
	return &out, nil
}

// DecideResponse asks the model whether an inbound customer message deserves
// an auto-reply.
func (c *Client) DecideResponse(ctx context.Context, req GateRequest) (*GateDecision, error) {
	ctx, span := telemetry.Tracer("ai").Start(ctx, "ai.decide_response")
	defer span.End()

	msgs := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: gateSystemPrompt},
	}
	if req.OwnerName != "" || req.SenderName != "" {
		var b strings.Builder
		if req.OwnerName != "" {
			fmt.Fprintf(&b, "The business owner is %s.\n", req.OwnerName)
		}
		if req.SenderName != "" {
			fmt.Fprintf(&b, "The message is from %s.\n", req.SenderName)
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: b.String()})
	}
	if len(req.History) > 0 {
		var b strings.Builder
		b.WriteString("Recent conversation:\n")
		for _, h := range req.History {
			fmt.Fprintf(&b, "[%s] %s\n", h.Sender, h.Content)
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: b.String()})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Content})

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: msgs,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0,
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrUnavailable)
	}

	var out GateDecision
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &out); err != nil {
		return nil, fmt.Errorf("parse gate decision: %w", err)
	}
	return &out, nil
}

// GenerateReply drafts a reply to a customer message.
func (c *Client) GenerateReply(ctx context.Context, req ReplyRequest) (string, error) {
	ctx, span := telemetry.Tracer("ai").Start(ctx, "ai.generate_reply")
	defer span.End()

	system := req.SystemPrompt
	if system == "" {
		system = "You are a friendly, concise assistant answering customer messages on behalf of a small business. Match the customer's language."
	}
	var b strings.Builder
	b.WriteString(system)
	if req.AssistantName != "" {
		fmt.Fprintf(&b, "\nYour name is %s.", req.AssistantName)
	}
	if req.OwnerName != "" {
		fmt.Fprintf(&b, "\nYou answer on behalf of %s.", req.OwnerName)
	}
	if req.ContactName != "" {
		fmt.Fprintf(&b, "\nYou are talking to %s.", req.ContactName)
	}
	msgs := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: b.String()},
	}
	for _, h := range req.History {
		role := openai.ChatMessageRoleUser
		if h.Sender == "assistant" {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: h.Content})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Content})

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    msgs,
		Temperature: 0.7,
	})
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty response", ErrUnavailable)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Summarize condenses retrieved messages into a short digest answering the
// owner's question.
func (c *Client) Summarize(ctx context.Context, question, corpus string) (string, error) {
	ctx, span := telemetry.Tracer("ai").Start(ctx, "ai.summarize")
	defer span.End()

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "Summarize the following messages to answer the owner's question. Be factual and brief. Mention senders by name and keep timestamps human-readable."},
			{Role: openai.ChatMessageRoleUser, Content: "Question: " + question + "\n\nMessages:\n" + corpus},
		},
		Temperature: 0.3,
	})
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty response", ErrUnavailable)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
