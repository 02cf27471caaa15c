package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SummaryFunc produces and delivers a summary for one conversation.
type SummaryFunc func(ctx context.Context, conversationID uuid.UUID)

// Summaries defers per-conversation summary tasks. Re-scheduling an already
// pending conversation pushes its deadline out instead of stacking a second
// task; closing a conversation cancels its pending summary.
type Summaries struct {
	mu      sync.Mutex
	pending map[uuid.UUID]*time.Timer
	run     SummaryFunc
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewSummaries(run SummaryFunc) *Summaries {
	ctx, cancel := context.WithCancel(context.Background())
	return &Summaries{
		pending: make(map[uuid.UUID]*time.Timer),
		run:     run,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// ScheduleSummary arms or re-arms the timer for a conversation.
func (s *Summaries) ScheduleSummary(conversationID uuid.UUID, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.Err() != nil {
		return
	}
	if t, ok := s.pending[conversationID]; ok {
		t.Reset(delay)
		return
	}
	s.pending[conversationID] = time.AfterFunc(delay, func() {
		s.fire(conversationID)
	})
	slog.Debug("summary scheduled", "conversation_id", conversationID, "delay", delay)
}

// Cancel drops the pending summary, if any. Called when a conversation
// closes.
func (s *Summaries) Cancel(conversationID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.pending[conversationID]; ok {
		t.Stop()
		delete(s.pending, conversationID)
	}
}

func (s *Summaries) fire(conversationID uuid.UUID) {
	s.mu.Lock()
	delete(s.pending, conversationID)
	s.mu.Unlock()

	if s.ctx.Err() != nil {
		return
	}
	s.run(s.ctx, conversationID)
}

// Shutdown cancels every pending timer.
func (s *Summaries) Shutdown() {
	s.cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.pending {
		t.Stop()
		delete(s.pending, id)
	}
}
