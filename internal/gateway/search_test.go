package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/itzamna-labs/chasqui/internal/bus"
	"github.com/itzamna-labs/chasqui/internal/config"
	"github.com/itzamna-labs/chasqui/internal/pipeline"
	"github.com/itzamna-labs/chasqui/internal/retrieval"
	"github.com/itzamna-labs/chasqui/internal/store"
)

type fakeSearcher struct {
	lastSpec store.QuerySpec
	result   *retrieval.Result
	err      error
}

func (f *fakeSearcher) Search(_ context.Context, spec store.QuerySpec) (*retrieval.Result, error) {
	f.lastSpec = spec
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &retrieval.Result{Applied: spec.Normalize()}, nil
}

func newTestServer(t *testing.T, searcher Searcher) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Gateway.Token = ""
	return NewServer(cfg, bus.NewMessageBus(), searcher, pipeline.NewStats(), nil)
}

func jsonBody(s string) io.Reader { return strings.NewReader(s) }

type searchResponse struct {
	Success  bool              `json:"success"`
	Error    string            `json:"error"`
	Messages []json.RawMessage `json:"messages"`
	Metadata map[string]any    `json:"metadata"`
}

func doSearch(t *testing.T, s *Server, query string) (int, searchResponse) {
	t.Helper()
	req := httptest.NewRequest("GET", "/v1/search?"+query, nil)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)

	var body searchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
	}
	return rec.Code, body
}

func TestSearchDefaults(t *testing.T) {
	fs := &fakeSearcher{}
	s := newTestServer(t, fs)

	code, body := doSearch(t, s, "start_date=yesterday")
	if code != 200 || !body.Success {
		t.Fatalf("code=%d success=%v error=%q", code, body.Success, body.Error)
	}

	spec := fs.lastSpec
	if spec.Timeframe == nil {
		t.Fatal("expected a timeframe")
	}
	yesterday := time.Now().In(s.location).AddDate(0, 0, -1)
	if spec.Timeframe.Start.Day() != yesterday.Day() {
		t.Errorf("start day = %v, want %v", spec.Timeframe.Start, yesterday)
	}
	if h, m, _ := spec.Timeframe.Start.Clock(); h != 0 || m != 0 {
		t.Errorf("start clock = %02d:%02d, want 00:00", h, m)
	}
	// the 23:59 boundary is inclusive
	if h, m, _ := spec.Timeframe.End.Clock(); h != 23 || m != 59 {
		t.Errorf("end clock = %02d:%02d, want 23:59", h, m)
	}
	if spec.Sender != "" || spec.ContactName != "" {
		t.Errorf("default sender should match everyone, got role=%q name=%q", spec.Sender, spec.ContactName)
	}
}

func TestSearchInvalidDateRange(t *testing.T) {
	fs := &fakeSearcher{}
	s := newTestServer(t, fs)

	code, body := doSearch(t, s, "start_date=2026-08-20&end_date=2026-08-10")
	if code != 200 {
		t.Fatalf("code = %d, want 200", code)
	}
	if body.Success {
		t.Fatal("expected success=false")
	}
	if body.Error != "Invalid date range" {
		t.Errorf("error = %q, want %q", body.Error, "Invalid date range")
	}
	if len(body.Messages) != 0 {
		t.Errorf("expected empty messages, got %d", len(body.Messages))
	}
	if fs.lastSpec.Timeframe != nil {
		t.Error("searcher should not run for an inverted range")
	}
}

func TestSearchSenderRoleVsContact(t *testing.T) {
	fs := &fakeSearcher{}
	s := newTestServer(t, fs)

	if _, body := doSearch(t, s, "sender=assistant"); !body.Success {
		t.Fatalf("unexpected error: %q", body.Error)
	}
	if fs.lastSpec.Sender != store.SenderAssistant {
		t.Errorf("sender = %q, want role filter", fs.lastSpec.Sender)
	}

	if _, body := doSearch(t, s, "sender=Maria"); !body.Success {
		t.Fatalf("unexpected error: %q", body.Error)
	}
	if fs.lastSpec.Sender != "" || fs.lastSpec.ContactName != "Maria" {
		t.Errorf("got role=%q name=%q, want contact-name filter", fs.lastSpec.Sender, fs.lastSpec.ContactName)
	}
}

func TestSearchKeywordsAndLimit(t *testing.T) {
	fs := &fakeSearcher{}
	s := newTestServer(t, fs)

	if _, body := doSearch(t, s, "keywords=factura,%20pago&limit=500"); !body.Success {
		t.Fatalf("unexpected error: %q", body.Error)
	}
	if len(fs.lastSpec.Keywords) != 2 || fs.lastSpec.Keywords[0] != "factura" || fs.lastSpec.Keywords[1] != "pago" {
		t.Errorf("keywords = %v", fs.lastSpec.Keywords)
	}
	// the cap is applied during Normalize, not at the handler
	if fs.lastSpec.Limit != 500 {
		t.Errorf("limit = %d, want raw 500 passed through", fs.lastSpec.Limit)
	}
}

func TestSearchBadParams(t *testing.T) {
	s := newTestServer(t, &fakeSearcher{})

	for name, query := range map[string]string{
		"bad date":  "start_date=20-08-2026",
		"bad time":  "start_time=9am",
		"bad limit": "limit=ten",
	} {
		t.Run(name, func(t *testing.T) {
			code, body := doSearch(t, s, query)
			if code != 400 || body.Success {
				t.Errorf("code=%d success=%v, want 400 failure", code, body.Success)
			}
		})
	}
}

func TestSearchGroupSerialization(t *testing.T) {
	ts := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	fs := &fakeSearcher{result: &retrieval.Result{
		Groups: []retrieval.Group{{
			ContactPhone:       "+5215511111111",
			ContactDisplayName: "Maria",
			Sender:             store.SenderUser,
			Start:              ts,
			End:                ts.Add(5 * time.Minute),
			Summary:            "hola necesito la factura",
			Messages: []store.MessageWithContact{{
				Message: store.Message{ID: uuid.New(), Content: "hola", MessageType: "text", Timestamp: ts},
			}},
		}},
		Stats: retrieval.Stats{Total: 1},
	}}
	s := newTestServer(t, fs)

	code, body := doSearch(t, s, "start_date=2026-08-28&end_date=2026-08-28")
	if code != 200 || !body.Success {
		t.Fatalf("code=%d success=%v error=%q", code, body.Success, body.Error)
	}
	if len(body.Messages) != 1 {
		t.Fatalf("groups = %d, want 1", len(body.Messages))
	}

	var g groupDTO
	if err := json.Unmarshal(body.Messages[0], &g); err != nil {
		t.Fatalf("decode group: %v", err)
	}
	if g.ContactName != "Maria" || g.MessageCount != 1 || g.Summary == "" {
		t.Errorf("group = %+v", g)
	}
}

// fakeMessageStore serves canned rows through a real retrieval.Retriever so
// the endpoint test exercises grouping and ordering, not just param wiring.
type fakeMessageStore struct {
	rows     []store.MessageWithContact
	lastSpec store.QuerySpec
}

func (f *fakeMessageStore) Insert(context.Context, *store.Message) (bool, error) { return true, nil }
func (f *fakeMessageStore) ReplyExists(context.Context, string) (bool, error)    { return false, nil }
func (f *fakeMessageStore) Count(context.Context, store.QuerySpec) (int, error) {
	return len(f.rows), nil
}
func (f *fakeMessageStore) Recent(context.Context, uuid.UUID, store.TimeRange, int) ([]store.Message, error) {
	return nil, nil
}
func (f *fakeMessageStore) Query(_ context.Context, spec store.QuerySpec) ([]store.MessageWithContact, error) {
	f.lastSpec = spec
	return f.rows, nil
}

func TestSearchGroupsBursts(t *testing.T) {
	contactID := uuid.New()
	base := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	row := func(offset time.Duration, content string) store.MessageWithContact {
		return store.MessageWithContact{
			Message: store.Message{
				ID: uuid.New(), ContactID: contactID, Sender: store.SenderUser,
				Content: content, MessageType: "text", Timestamp: base.Add(offset),
			},
			ContactPhone: "+5215511111111", ContactDisplayName: "Maria",
		}
	}
	ms := &fakeMessageStore{rows: []store.MessageWithContact{
		row(0, "necesito la factura"),
		row(10*time.Minute, "de agosto por favor"),
		row(50*time.Minute, "sigues ahí?"),
	}}

	cfg := config.Default()
	cfg.Gateway.Token = ""
	s := NewServer(cfg, bus.NewMessageBus(), retrieval.New(ms), pipeline.NewStats(), nil)

	code, body := doSearch(t, s, "start_date=2026-08-28&end_date=2026-08-28&keywords=factura")
	if code != 200 || !body.Success {
		t.Fatalf("code=%d success=%v error=%q", code, body.Success, body.Error)
	}
	if len(body.Messages) != 2 {
		t.Fatalf("groups = %d, want 2 (10-min gap merges, 40-min gap splits)", len(body.Messages))
	}

	var first, second groupDTO
	if err := json.Unmarshal(body.Messages[0], &first); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(body.Messages[1], &second); err != nil {
		t.Fatal(err)
	}
	if first.MessageCount != 2 || second.MessageCount != 1 {
		t.Errorf("counts = %d,%d, want 2,1", first.MessageCount, second.MessageCount)
	}
	if !first.Start.Before(second.Start) {
		t.Error("groups must be chronological")
	}
	if len(ms.lastSpec.Keywords) != 1 || ms.lastSpec.Keywords[0] != "factura" {
		t.Errorf("keywords = %v", ms.lastSpec.Keywords)
	}
}

func TestAuthRequired(t *testing.T) {
	cfg := config.Default()
	cfg.Gateway.Token = "sekret"
	s := NewServer(cfg, bus.NewMessageBus(), &fakeSearcher{}, pipeline.NewStats(), nil)

	req := httptest.NewRequest("GET", "/v1/search", nil)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	if rec.Code != 401 {
		t.Fatalf("no token: code = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest("GET", "/v1/search", nil)
	req.Header.Set("Authorization", "Bearer sekret")
	rec = httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	if rec.Code != 200 {
		t.Fatalf("valid token: code = %d, want 200", rec.Code)
	}

	// health stays open
	req = httptest.NewRequest("GET", "/healthz", nil)
	rec = httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	if rec.Code != 200 {
		t.Fatalf("health: code = %d, want 200", rec.Code)
	}
}

func TestWebhookQueuesMessage(t *testing.T) {
	msgBus := bus.NewMessageBus()
	cfg := config.Default()
	cfg.Gateway.Token = ""
	s := NewServer(cfg, msgBus, &fakeSearcher{}, pipeline.NewStats(), nil)

	req := httptest.NewRequest("POST", "/v1/messages",
		jsonBody(`{"phone":"+5215511111111","content":"hola","message_id":"ext-1"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	if rec.Code != 202 {
		t.Fatalf("code = %d, want 202 (%s)", rec.Code, rec.Body.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, ok := msgBus.ConsumeInbound(ctx)
	if !ok {
		t.Fatal("message never reached the bus")
	}
	if msg.Phone != "+5215511111111" || msg.Channel != "webhook" || msg.MessageType != "text" {
		t.Errorf("msg = %+v", msg)
	}

	// missing phone rejected
	req = httptest.NewRequest("POST", "/v1/messages", jsonBody(`{"content":"hola"}`))
	rec = httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	if rec.Code != 400 {
		t.Fatalf("code = %d, want 400", rec.Code)
	}
}

func TestWebhookRateLimitPerPhone(t *testing.T) {
	cfg := config.Default()
	cfg.Gateway.Token = ""
	cfg.Gateway.RateLimitRPM = 4 // burst of 2
	s := NewServer(cfg, bus.NewMessageBus(), &fakeSearcher{}, pipeline.NewStats(), nil)

	post := func(phone string) int {
		req := httptest.NewRequest("POST", "/v1/messages",
			jsonBody(`{"phone":"`+phone+`","content":"hola"}`))
		rec := httptest.NewRecorder()
		s.mux.ServeHTTP(rec, req)
		return rec.Code
	}

	limited := 0
	for i := 0; i < 10; i++ {
		if post("+5215511111111") == 429 {
			limited++
		}
	}
	if limited == 0 {
		t.Fatal("hammering one phone never returned 429")
	}

	// A different phone has its own budget.
	if code := post("+5215522222222"); code != 202 {
		t.Errorf("other phone: code = %d, want 202", code)
	}
}
