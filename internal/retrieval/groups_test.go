package retrieval

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/itzamna-labs/chasqui/internal/store"
)

func mkMsg(contact uuid.UUID, sender, content string, ts time.Time) store.MessageWithContact {
	return store.MessageWithContact{
		Message: store.Message{
			ID:        uuid.Must(uuid.NewV7()),
			ContactID: contact,
			Sender:    sender,
			Content:   content,
			Timestamp: ts,
		},
		ContactPhone: "+521000" + contact.String()[:4],
	}
}

func TestGroupBursts(t *testing.T) {
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	alice := uuid.Must(uuid.NewV7())
	bob := uuid.Must(uuid.NewV7())

	t.Run("close messages merge", func(t *testing.T) {
		groups := GroupBursts([]store.MessageWithContact{
			mkMsg(alice, store.SenderUser, "hola", base),
			mkMsg(alice, store.SenderUser, "necesito una cita", base.Add(10*time.Minute)),
		})
		if len(groups) != 1 {
			t.Fatalf("got %d groups, want 1", len(groups))
		}
		if len(groups[0].Messages) != 2 {
			t.Errorf("group has %d messages, want 2", len(groups[0].Messages))
		}
		if groups[0].End.Sub(groups[0].Start) != 10*time.Minute {
			t.Errorf("group span = %v, want 10m", groups[0].End.Sub(groups[0].Start))
		}
	})

	t.Run("gap over window splits", func(t *testing.T) {
		groups := GroupBursts([]store.MessageWithContact{
			mkMsg(alice, store.SenderUser, "hola", base),
			mkMsg(alice, store.SenderUser, "sigues ahi?", base.Add(40*time.Minute)),
		})
		if len(groups) != 2 {
			t.Fatalf("got %d groups, want 2", len(groups))
		}
	})

	t.Run("exact window boundary merges", func(t *testing.T) {
		groups := GroupBursts([]store.MessageWithContact{
			mkMsg(alice, store.SenderUser, "a", base),
			mkMsg(alice, store.SenderUser, "b", base.Add(GroupWindow)),
		})
		if len(groups) != 1 {
			t.Fatalf("got %d groups, want 1", len(groups))
		}
	})

	t.Run("different senders never merge", func(t *testing.T) {
		groups := GroupBursts([]store.MessageWithContact{
			mkMsg(alice, store.SenderUser, "hola", base),
			mkMsg(bob, store.SenderUser, "buenas", base.Add(time.Minute)),
		})
		if len(groups) != 2 {
			t.Fatalf("got %d groups, want 2", len(groups))
		}
	})

	t.Run("user and assistant split within contact", func(t *testing.T) {
		groups := GroupBursts([]store.MessageWithContact{
			mkMsg(alice, store.SenderUser, "hola", base),
			mkMsg(alice, store.SenderAssistant, "buenos dias", base.Add(time.Minute)),
		})
		if len(groups) != 2 {
			t.Fatalf("got %d groups, want 2", len(groups))
		}
	})

	t.Run("feed order still merges", func(t *testing.T) {
		// Reverse-chronological input, as the feed ordering delivers it.
		rows := []store.MessageWithContact{
			mkMsg(alice, store.SenderUser, "necesito una cita", base.Add(10*time.Minute)),
			mkMsg(alice, store.SenderUser, "hola", base),
		}
		groups := GroupBursts(rows)
		if len(groups) != 1 {
			t.Fatalf("got %d groups, want 1", len(groups))
		}
		if len(groups[0].Messages) != 2 {
			t.Errorf("group has %d messages, want 2", len(groups[0].Messages))
		}
		if !groups[0].Start.Equal(base) || !groups[0].End.Equal(base.Add(10*time.Minute)) {
			t.Errorf("group span = %v..%v", groups[0].Start, groups[0].End)
		}
		// Caller's slice stays feed-ordered.
		if !rows[0].Timestamp.After(rows[1].Timestamp) {
			t.Error("input slice was reordered")
		}
	})

	t.Run("interleaved bursts reopen per sender", func(t *testing.T) {
		groups := GroupBursts([]store.MessageWithContact{
			mkMsg(alice, store.SenderUser, "uno", base),
			mkMsg(alice, store.SenderUser, "dos", base.Add(5*time.Minute)),
			mkMsg(alice, store.SenderUser, "tres", base.Add(50*time.Minute)),
		})
		if len(groups) != 2 {
			t.Fatalf("got %d groups, want 2", len(groups))
		}
		if len(groups[0].Messages) != 2 || len(groups[1].Messages) != 1 {
			t.Errorf("group sizes = %d, %d; want 2, 1", len(groups[0].Messages), len(groups[1].Messages))
		}
	})
}

func TestSummarize(t *testing.T) {
	t.Run("short text untouched", func(t *testing.T) {
		if got := summarize("hola que tal"); got != "hola que tal" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("word cap", func(t *testing.T) {
		long := strings.Repeat("uno ", 40)
		got := summarize(long)
		if !strings.HasSuffix(got, "...") {
			t.Errorf("truncated summary must end in ellipsis, got %q", got)
		}
		if n := len(strings.Fields(got)); n > summaryMaxWords {
			t.Errorf("summary has %d words, want <= %d", n, summaryMaxWords)
		}
	})

	t.Run("char cap", func(t *testing.T) {
		long := strings.Repeat("abcdefghij", 20)
		got := summarize(long)
		if len(got) > summaryMaxChars+3 {
			t.Errorf("summary length %d exceeds cap", len(got))
		}
		if !strings.HasSuffix(got, "...") {
			t.Errorf("got %q, want ellipsis suffix", got)
		}
	})

	t.Run("multi-byte runes not split", func(t *testing.T) {
		long := strings.Repeat("ááááááááá ", 16)
		got := summarize(long)
		if !utf8.ValidString(got) {
			t.Errorf("summary is not valid UTF-8: %q", got)
		}
		if !strings.HasSuffix(got, "...") {
			t.Errorf("got %q, want ellipsis suffix", got)
		}
	})

	t.Run("newlines flattened", func(t *testing.T) {
		if got := summarize("hola\nbuenas"); got != "hola buenas" {
			t.Errorf("got %q", got)
		}
	})
}

func TestComputeStats(t *testing.T) {
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	alice := uuid.Must(uuid.NewV7())
	bob := uuid.Must(uuid.NewV7())

	a := mkMsg(alice, store.SenderUser, "hola", base)
	a.MessageType = "text"
	a.ConversationPriority = store.PriorityHigh
	b := mkMsg(bob, store.SenderAssistant, "buenas", base.Add(time.Hour))
	b.MessageType = "text"
	b.ConversationPriority = store.PriorityMedium

	s := computeStats([]store.MessageWithContact{a, b})
	if s.Total != 2 {
		t.Errorf("Total = %d, want 2", s.Total)
	}
	if s.BySender[store.SenderUser] != 1 || s.BySender[store.SenderAssistant] != 1 {
		t.Errorf("BySender = %v", s.BySender)
	}
	if s.ByType["text"] != 2 {
		t.Errorf("ByType = %v", s.ByType)
	}
	if s.DistinctContacts != 2 {
		t.Errorf("DistinctContacts = %d, want 2", s.DistinctContacts)
	}
	if !s.Earliest.Equal(base) || !s.Latest.Equal(base.Add(time.Hour)) {
		t.Errorf("bounds = %v..%v", s.Earliest, s.Latest)
	}
}
