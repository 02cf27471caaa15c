package bus

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestPublishConsumeInbound(t *testing.T) {
	b := NewMessageBus()
	b.PublishInbound(InboundMessage{Channel: "telegram", MessageID: "1", Content: "hola"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, ok := b.ConsumeInbound(ctx)
	if !ok || msg.MessageID != "1" {
		t.Fatalf("got %+v ok=%v", msg, ok)
	}
}

func TestConsumeRespectsCancellation(t *testing.T) {
	b := NewMessageBus()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, ok := b.ConsumeInbound(ctx); ok {
		t.Fatal("expected ok=false on cancelled context")
	}
}

func TestFullQueueDropsInsteadOfBlocking(t *testing.T) {
	b := NewMessageBus()
	done := make(chan struct{})
	go func() {
		for i := 0; i < defaultQueueSize+10; i++ {
			b.PublishInbound(InboundMessage{MessageID: fmt.Sprint(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full queue")
	}
}

func TestBroadcastReachesAllSubscribers(t *testing.T) {
	b := NewMessageBus()
	got := make(map[string]string)
	b.Subscribe("a", func(e Event) { got["a"] = e.Name })
	b.Subscribe("b", func(e Event) { got["b"] = e.Name })

	b.Broadcast(Event{Name: "message.received"})

	if got["a"] != "message.received" || got["b"] != "message.received" {
		t.Errorf("got %v", got)
	}

	b.Unsubscribe("b")
	b.Broadcast(Event{Name: "message.sent"})
	if got["b"] != "message.received" {
		t.Errorf("unsubscribed handler still called: %v", got)
	}
}

func TestDedupeCache(t *testing.T) {
	c := NewDedupeCache(50*time.Millisecond, 100)

	if c.IsDuplicate("k1") {
		t.Fatal("first sight must not be a duplicate")
	}
	if !c.IsDuplicate("k1") {
		t.Fatal("second sight within TTL must be a duplicate")
	}

	time.Sleep(60 * time.Millisecond)
	if c.IsDuplicate("k1") {
		t.Fatal("expired entry must not count as duplicate")
	}
}

func TestDedupeCacheEvictsAtCap(t *testing.T) {
	c := NewDedupeCache(time.Hour, 10)
	for i := 0; i < 25; i++ {
		c.IsDuplicate(fmt.Sprint(i))
	}
	if c.Len() > 11 {
		t.Errorf("cache grew past cap: %d", c.Len())
	}
}
