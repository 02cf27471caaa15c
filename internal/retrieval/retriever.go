package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/itzamna-labs/chasqui/internal/store"
	"github.com/itzamna-labs/chasqui/internal/telemetry"
)

// Result is everything a query execution produces: the raw rows, the burst
// groups, and a single-pass statistics summary.
type Result struct {
	Messages []store.MessageWithContact
	Groups   []Group
	Stats    Stats
	Applied  store.QuerySpec
}

// Stats summarizes a result set in one pass.
type Stats struct {
	Total            int
	BySender         map[string]int
	ByType           map[string]int
	ByContact        map[string]int
	ByPriority       map[string]int
	Earliest         time.Time
	Latest           time.Time
	DistinctContacts int
}

// Retriever executes validated query specs against the message store.
type Retriever struct {
	messages store.MessageStore
}

func New(messages store.MessageStore) *Retriever {
	return &Retriever{messages: messages}
}

// Search runs the spec, groups the rows into bursts, and computes stats.
func (r *Retriever) Search(ctx context.Context, spec store.QuerySpec) (*Result, error) {
	ctx, span := telemetry.Tracer("retrieval").Start(ctx, "retrieval.search")
	defer span.End()

	spec = spec.Normalize()
	if err := spec.Validate(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	rows, err := r.messages.Query(ctx, spec)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("retrieval query: %w", err)
	}

	res := &Result{
		Messages: rows,
		Groups:   GroupBursts(rows),
		Stats:    computeStats(rows),
		Applied:  spec,
	}
	span.SetAttributes(
		attribute.Int("retrieval.rows", len(rows)),
		attribute.Int("retrieval.groups", len(res.Groups)),
	)
	slog.Debug("retrieval complete", "rows", len(rows), "groups", len(res.Groups))
	return res, nil
}

// Corpus renders the result set as plain text for the summarizer.
func (r *Result) Corpus() string {
	var b strings.Builder
	for _, g := range r.Groups {
		name := g.ContactDisplayName
		if name == "" {
			name = g.ContactPhone
		}
		fmt.Fprintf(&b, "[%s] %s (%s): %s\n",
			g.Start.Format("2006-01-02 15:04"), name, g.Sender, g.Content)
	}
	return b.String()
}

func computeStats(rows []store.MessageWithContact) Stats {
	s := Stats{
		BySender:   make(map[string]int),
		ByType:     make(map[string]int),
		ByContact:  make(map[string]int),
		ByPriority: make(map[string]int),
	}
	for _, m := range rows {
		s.Total++
		s.BySender[m.Sender]++
		s.ByType[m.MessageType]++
		s.ByContact[m.ContactPhone]++
		s.ByPriority[m.ConversationPriority]++
		if s.Earliest.IsZero() || m.Timestamp.Before(s.Earliest) {
			s.Earliest = m.Timestamp
		}
		if m.Timestamp.After(s.Latest) {
			s.Latest = m.Timestamp
		}
	}
	s.DistinctContacts = len(s.ByContact)
	return s
}
