package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestLanesOrderWithinKey(t *testing.T) {
	lanes := NewLanes()
	defer lanes.Shutdown()

	var mu sync.Mutex
	var got []int
	done := make(chan struct{})

	for i := 0; i < 5; i++ {
		i := i
		lanes.Submit("conv-1", func(context.Context) {
			mu.Lock()
			got = append(got, i)
			if len(got) == 5 {
				close(done)
			}
			mu.Unlock()
		})
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tasks did not complete")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, v := range got {
		if v != i {
			t.Fatalf("order = %v, want 0..4", got)
		}
	}
}

func TestLanesKeysRunIndependently(t *testing.T) {
	lanes := NewLanes()
	defer lanes.Shutdown()

	blockerStarted := make(chan struct{})
	release := make(chan struct{})
	otherDone := make(chan struct{})

	lanes.Submit("slow", func(context.Context) {
		close(blockerStarted)
		<-release
	})
	<-blockerStarted

	lanes.Submit("fast", func(context.Context) { close(otherDone) })

	select {
	case <-otherDone:
	case <-time.After(2 * time.Second):
		t.Fatal("independent lane blocked by another key")
	}
	close(release)
}

func TestLanesRejectAfterShutdown(t *testing.T) {
	lanes := NewLanes()
	lanes.Shutdown()
	if lanes.Submit("k", func(context.Context) {}) {
		t.Error("Submit after Shutdown must return false")
	}
}

func TestSummariesFireOnce(t *testing.T) {
	fired := make(chan uuid.UUID, 4)
	s := NewSummaries(func(_ context.Context, id uuid.UUID) { fired <- id })
	defer s.Shutdown()

	id := uuid.Must(uuid.NewV7())
	s.ScheduleSummary(id, 20*time.Millisecond)
	// Re-scheduling defers, it does not stack.
	s.ScheduleSummary(id, 20*time.Millisecond)

	select {
	case got := <-fired:
		if got != id {
			t.Errorf("fired for %v, want %v", got, id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("summary never fired")
	}

	select {
	case <-fired:
		t.Error("summary fired twice")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSummariesCancel(t *testing.T) {
	fired := make(chan uuid.UUID, 1)
	s := NewSummaries(func(_ context.Context, id uuid.UUID) { fired <- id })
	defer s.Shutdown()

	id := uuid.Must(uuid.NewV7())
	s.ScheduleSummary(id, 50*time.Millisecond)
	s.Cancel(id)

	select {
	case <-fired:
		t.Error("cancelled summary fired")
	case <-time.After(200 * time.Millisecond):
	}
}
