package gateway

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/itzamna-labs/chasqui/internal/store"
)

// fakeConversations records status changes and rejects unknown ids.
type fakeConversations struct {
	known      map[uuid.UUID]bool
	lastID     uuid.UUID
	lastStatus string
}

func (f *fakeConversations) GetOrCreateForContact(context.Context, uuid.UUID) (*store.Conversation, bool, error) {
	return nil, false, nil
}
func (f *fakeConversations) Get(context.Context, uuid.UUID) (*store.Conversation, error) {
	return nil, store.ErrNotFound
}
func (f *fakeConversations) RecordMessage(context.Context, uuid.UUID, store.Message) error {
	return nil
}
func (f *fakeConversations) SetAssistantEnabled(context.Context, uuid.UUID, bool) error { return nil }
func (f *fakeConversations) SetPriority(context.Context, uuid.UUID, string) error       { return nil }
func (f *fakeConversations) SetStatus(_ context.Context, id uuid.UUID, status string) error {
	if !f.known[id] {
		return store.ErrNotFound
	}
	f.lastID = id
	f.lastStatus = status
	return nil
}
func (f *fakeConversations) ListByPriority(context.Context, []string, int) ([]store.Conversation, error) {
	return nil, nil
}

type fakeCanceller struct {
	cancelled []uuid.UUID
}

func (f *fakeCanceller) Cancel(id uuid.UUID) { f.cancelled = append(f.cancelled, id) }

func closeConversation(t *testing.T, s *Server, id string) int {
	t.Helper()
	req := httptest.NewRequest("POST", "/v1/conversations/"+id+"/close", nil)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec.Code
}

func TestConversationClose(t *testing.T) {
	id := uuid.Must(uuid.NewV7())
	convs := &fakeConversations{known: map[uuid.UUID]bool{id: true}}
	canceller := &fakeCanceller{}
	s := newTestServer(t, &fakeSearcher{})
	s.SetConversations(convs)
	s.SetSummaryCanceller(canceller)

	if code := closeConversation(t, s, id.String()); code != 200 {
		t.Fatalf("code = %d, want 200", code)
	}
	if convs.lastID != id || convs.lastStatus != store.StatusClosed {
		t.Errorf("SetStatus(%v, %q), want (%v, closed)", convs.lastID, convs.lastStatus, id)
	}
	if len(canceller.cancelled) != 1 || canceller.cancelled[0] != id {
		t.Errorf("cancelled = %v, want [%v]", canceller.cancelled, id)
	}
}

func TestConversationCloseErrors(t *testing.T) {
	s := newTestServer(t, &fakeSearcher{})
	s.SetConversations(&fakeConversations{})

	t.Run("malformed id", func(t *testing.T) {
		if code := closeConversation(t, s, "not-a-uuid"); code != 400 {
			t.Errorf("code = %d, want 400", code)
		}
	})

	t.Run("unknown conversation", func(t *testing.T) {
		if code := closeConversation(t, s, uuid.Must(uuid.NewV7()).String()); code != 404 {
			t.Errorf("code = %d, want 404", code)
		}
	})

	t.Run("store not wired", func(t *testing.T) {
		bare := newTestServer(t, &fakeSearcher{})
		if code := closeConversation(t, bare, uuid.Must(uuid.NewV7()).String()); code != 503 {
			t.Errorf("code = %d, want 503", code)
		}
	})
}
