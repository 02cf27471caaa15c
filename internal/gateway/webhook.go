package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/itzamna-labs/chasqui/internal/bus"
)

// webhookPayload is the canonical inbound message body accepted on
// POST /v1/messages. External integrations that cannot run a channel
// adapter push messages here.
type webhookPayload struct {
	Channel        string            `json:"channel"`
	MessageID      string            `json:"message_id"`
	Phone          string            `json:"phone"`
	Content        string            `json:"content"`
	MessageType    string            `json:"message_type"`
	PushName       string            `json:"push_name"`
	Timestamp      *time.Time        `json:"timestamp"`
	IsGroupMessage bool              `json:"is_group_message"`
	GroupName      string            `json:"group_name"`
	ConversationID string            `json:"conversation_id"`
	Metadata       map[string]string `json:"metadata"`
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var p webhookPayload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"error":   "invalid JSON body",
		})
		return
	}

	if strings.TrimSpace(p.Phone) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"error":   "phone is required",
		})
		return
	}

	if !s.limiters.allow(p.Phone) {
		writeJSON(w, http.StatusTooManyRequests, map[string]interface{}{
			"success": false,
			"error":   "rate limit exceeded",
		})
		return
	}

	msg := bus.InboundMessage{
		Channel:        p.Channel,
		MessageID:      p.MessageID,
		Phone:          p.Phone,
		Content:        p.Content,
		MessageType:    p.MessageType,
		PushName:       p.PushName,
		IsGroupMessage: p.IsGroupMessage,
		GroupName:      p.GroupName,
		ConversationID: p.ConversationID,
		Metadata:       p.Metadata,
	}
	if msg.Channel == "" {
		msg.Channel = "webhook"
	}
	if msg.Content == "" {
		msg.Content = "[empty message]"
	}
	if msg.MessageType == "" {
		msg.MessageType = "text"
	}
	if p.Timestamp != nil {
		msg.Timestamp = *p.Timestamp
	} else {
		msg.Timestamp = time.Now()
	}

	s.bus.PublishInbound(msg)
	slog.Debug("webhook message accepted", "channel", msg.Channel, "phone", msg.Phone)

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"success": true,
		"status":  "queued",
	})
}
