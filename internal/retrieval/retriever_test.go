package retrieval

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/itzamna-labs/chasqui/internal/store"
)

// fixedMessages returns the same rows for every query.
type fixedMessages struct {
	rows []store.MessageWithContact
}

func (f *fixedMessages) Insert(context.Context, *store.Message) (bool, error) { return false, nil }
func (f *fixedMessages) ReplyExists(context.Context, string) (bool, error)    { return false, nil }
func (f *fixedMessages) Count(context.Context, store.QuerySpec) (int, error)  { return len(f.rows), nil }
func (f *fixedMessages) Recent(context.Context, uuid.UUID, store.TimeRange, int) ([]store.Message, error) {
	return nil, nil
}
func (f *fixedMessages) Query(context.Context, store.QuerySpec) ([]store.MessageWithContact, error) {
	return f.rows, nil
}

func TestSearchRecordsSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	defer otel.SetTracerProvider(prev)

	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	rows := []store.MessageWithContact{
		mkMsg(uuid.Must(uuid.NewV7()), store.SenderUser, "hola", base),
	}
	r := New(&fixedMessages{rows: rows})
	if _, err := r.Search(context.Background(), store.QuerySpec{}); err != nil {
		t.Fatalf("Search: %v", err)
	}

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if got := spans[0].Name(); got != "retrieval.search" {
		t.Errorf("span name = %q", got)
	}
	attrs := spans[0].Attributes()
	found := false
	for _, a := range attrs {
		if string(a.Key) == "retrieval.rows" && a.Value.AsInt64() == 1 {
			found = true
		}
	}
	if !found {
		t.Errorf("span attributes = %v, want retrieval.rows=1", attrs)
	}
}
