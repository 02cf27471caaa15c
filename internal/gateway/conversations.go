package gateway

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/itzamna-labs/chasqui/internal/bus"
	"github.com/itzamna-labs/chasqui/internal/store"
)

// SummaryCanceller drops a conversation's pending deferred summary.
type SummaryCanceller interface {
	Cancel(conversationID uuid.UUID)
}

// SetConversations wires the conversation store for the close endpoint.
// Optional; without it the endpoint reports unavailable.
func (s *Server) SetConversations(conversations store.ConversationStore) {
	s.conversations = conversations
}

// SetSummaryCanceller wires the deferred-summary canceller. Optional.
func (s *Server) SetSummaryCanceller(c SummaryCanceller) { s.summaries = c }

func (s *Server) handleConversationClose(w http.ResponseWriter, r *http.Request) {
	if s.conversations == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"success": false,
			"error":   "conversations not available",
		})
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"error":   "invalid conversation id",
		})
		return
	}

	if err := s.conversations.SetStatus(r.Context(), id, store.StatusClosed); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeJSON(w, status, map[string]interface{}{
			"success": false,
			"error":   "conversation not closed",
		})
		return
	}

	// A closed conversation no longer needs its deferred summary.
	if s.summaries != nil {
		s.summaries.Cancel(id)
	}

	s.hub.Broadcast(bus.Event{Name: "conversation.closed", Payload: map[string]interface{}{
		"conversation_id": id.String(),
	}})
	slog.Info("conversation closed", "conversation_id", id)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"status":  store.StatusClosed,
	})
}
