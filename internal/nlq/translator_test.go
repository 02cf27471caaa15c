package nlq

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/itzamna-labs/chasqui/internal/store"
)

func TestTranslate(t *testing.T) {
	tr := NewTranslator(time.UTC, 2025)
	now := time.Date(2026, 8, 29, 14, 30, 0, 0, time.UTC)

	t.Run("defaults applied", func(t *testing.T) {
		spec, err := tr.Translate(nil, "", now)
		if err != nil {
			t.Fatal(err)
		}
		if spec.Limit != store.DefaultQueryLimit {
			t.Errorf("Limit = %d, want %d", spec.Limit, store.DefaultQueryLimit)
		}
		if spec.Timeframe != nil {
			t.Errorf("Timeframe = %v, want nil", spec.Timeframe)
		}
	})

	t.Run("limit capped", func(t *testing.T) {
		spec, err := tr.Translate(json.RawMessage(`{"limit": 5000}`), "", now)
		if err != nil {
			t.Fatal(err)
		}
		if spec.Limit != store.MaxQueryLimit {
			t.Errorf("Limit = %d, want %d", spec.Limit, store.MaxQueryLimit)
		}
	})

	t.Run("role sender", func(t *testing.T) {
		spec, err := tr.Translate(json.RawMessage(`{"sender": "assistant"}`), "", now)
		if err != nil {
			t.Fatal(err)
		}
		if spec.Sender != store.SenderAssistant || spec.ContactName != "" {
			t.Errorf("Sender = %q, ContactName = %q", spec.Sender, spec.ContactName)
		}
	})

	t.Run("name sender becomes contact filter", func(t *testing.T) {
		spec, err := tr.Translate(json.RawMessage(`{"sender": "Maria"}`), "", now)
		if err != nil {
			t.Fatal(err)
		}
		if spec.Sender != "" || spec.ContactName != "Maria" {
			t.Errorf("Sender = %q, ContactName = %q", spec.Sender, spec.ContactName)
		}
	})

	t.Run("all sender means no filter", func(t *testing.T) {
		spec, err := tr.Translate(json.RawMessage(`{"sender": "all"}`), "", now)
		if err != nil {
			t.Fatal(err)
		}
		if spec.Sender != "" || spec.ContactName != "" {
			t.Errorf("Sender = %q, ContactName = %q", spec.Sender, spec.ContactName)
		}
	})

	t.Run("unknown message type rejected", func(t *testing.T) {
		_, err := tr.Translate(json.RawMessage(`{"message_types": ["hologram"]}`), "", now)
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("got %v, want ValidationError", err)
		}
	})

	t.Run("timeframe correction flows through", func(t *testing.T) {
		raw := json.RawMessage(`{"timeframe": {"relative": "past", "unit": "days", "value": 1}}`)
		spec, err := tr.Translate(raw, "mensajes de hoy", now)
		if err != nil {
			t.Fatal(err)
		}
		if spec.Timeframe == nil || spec.Timeframe.Start.Day() != 29 {
			t.Errorf("Timeframe = %v, want today's bounds", spec.Timeframe)
		}
	})

	t.Run("pure for identical input", func(t *testing.T) {
		raw := json.RawMessage(`{"keywords": ["invoice"], "sender": "user", "timeframe": {"relative": "yesterday"}}`)
		a, err := tr.Translate(raw, "invoices yesterday", now)
		if err != nil {
			t.Fatal(err)
		}
		b, err := tr.Translate(raw, "invoices yesterday", now)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(a, b) {
			t.Errorf("same input produced different specs:\n%+v\n%+v", a, b)
		}
	})
}

func TestTranslateConversations(t *testing.T) {
	tr := NewTranslator(time.UTC, 2025)

	t.Run("defaults to high and urgent", func(t *testing.T) {
		got, err := tr.TranslateConversations(nil)
		if err != nil {
			t.Fatal(err)
		}
		want := []string{store.PriorityHigh, store.PriorityUrgent}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})

	t.Run("unknown priority rejected", func(t *testing.T) {
		_, err := tr.TranslateConversations(json.RawMessage(`{"priorities": ["mega"]}`))
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("got %v, want ValidationError", err)
		}
	})
}
