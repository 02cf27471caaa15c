package nlq

import (
	"errors"
	"testing"
	"time"

	"github.com/itzamna-labs/chasqui/internal/store"
)

var testNow = time.Date(2026, 8, 29, 14, 30, 0, 0, time.UTC)

func TestResolveTimeframe(t *testing.T) {
	t.Run("nil entity means unbounded", func(t *testing.T) {
		tr, err := ResolveTimeframe(nil, "", testNow, 2025)
		if err != nil || tr != nil {
			t.Fatalf("got %v, %v; want nil, nil", tr, err)
		}
	})

	t.Run("today", func(t *testing.T) {
		tr, err := ResolveTimeframe(&TimeframeEntity{Relative: "today"}, "messages today", testNow, 2025)
		if err != nil {
			t.Fatal(err)
		}
		wantStart := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)
		if !tr.Start.Equal(wantStart) {
			t.Errorf("Start = %v, want %v", tr.Start, wantStart)
		}
		if tr.End.Day() != 29 || tr.End.Hour() != 23 {
			t.Errorf("End = %v, want end of Aug 29", tr.End)
		}
	})

	t.Run("yesterday", func(t *testing.T) {
		tr, err := ResolveTimeframe(&TimeframeEntity{Relative: "yesterday"}, "", testNow, 2025)
		if err != nil {
			t.Fatal(err)
		}
		if tr.Start.Day() != 28 || tr.End.Day() != 28 {
			t.Errorf("range %v..%v, want all of Aug 28", tr.Start, tr.End)
		}
	})

	t.Run("past N days back-computes", func(t *testing.T) {
		tr, err := ResolveTimeframe(&TimeframeEntity{Relative: "past", Unit: "days", Value: 3}, "", testNow, 2025)
		if err != nil {
			t.Fatal(err)
		}
		if tr.Start.Day() != 26 {
			t.Errorf("Start = %v, want Aug 26", tr.Start)
		}
	})

	t.Run("past weeks", func(t *testing.T) {
		tr, err := ResolveTimeframe(&TimeframeEntity{Relative: "past", Unit: "weeks", Value: 1}, "", testNow, 2025)
		if err != nil {
			t.Fatal(err)
		}
		if tr.Start.Day() != 22 {
			t.Errorf("Start = %v, want Aug 22", tr.Start)
		}
	})

	t.Run("negative value rejected", func(t *testing.T) {
		_, err := ResolveTimeframe(&TimeframeEntity{Relative: "past", Unit: "days", Value: -1}, "", testNow, 2025)
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("got %v, want ValidationError", err)
		}
	})

	t.Run("literal range", func(t *testing.T) {
		tr, err := ResolveTimeframe(&TimeframeEntity{Start: "2026-08-01", End: "2026-08-15"}, "", testNow, 2025)
		if err != nil {
			t.Fatal(err)
		}
		if tr.Start.Day() != 1 || tr.End.Day() != 15 {
			t.Errorf("range %v..%v", tr.Start, tr.End)
		}
		if tr.End.Hour() != 23 {
			t.Errorf("End = %v, want end of day", tr.End)
		}
	})

	t.Run("start after end rejected not swapped", func(t *testing.T) {
		_, err := ResolveTimeframe(&TimeframeEntity{Start: "2026-08-20", End: "2026-08-10"}, "", testNow, 2025)
		if !errors.Is(err, store.ErrInvalidDateRange) {
			t.Fatalf("got %v, want ErrInvalidDateRange", err)
		}
	})

	t.Run("unparseable date rejected", func(t *testing.T) {
		_, err := ResolveTimeframe(&TimeframeEntity{Start: "not a date"}, "", testNow, 2025)
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("got %v, want ValidationError", err)
		}
	})
}

func TestYearSanityCorrection(t *testing.T) {
	tr, err := ResolveTimeframe(&TimeframeEntity{Start: "2019-03-15", End: "2019-03-15"}, "", testNow, 2025)
	if err != nil {
		t.Fatal(err)
	}
	if tr.Start.Year() != 2026 {
		t.Errorf("Start year = %d, want 2026", tr.Start.Year())
	}
	if tr.Start.Month() != time.March || tr.Start.Day() != 15 {
		t.Errorf("month/day = %v/%d, want March/15", tr.Start.Month(), tr.Start.Day())
	}
}

func TestCorrectMisinterpretation(t *testing.T) {
	past1 := &TimeframeEntity{Relative: "past", Unit: "days", Value: 1}

	tests := []struct {
		name    string
		ent     *TimeframeEntity
		rawText string
		want    string
	}{
		{"today english", past1, "show me messages from today", "today"},
		{"hoy spanish", past1, "mensajes de hoy", "today"},
		{"yesterday english", past1, "what came in yesterday", "yesterday"},
		{"ayer spanish", past1, "que llego ayer", "yesterday"},
		{"no keyword leaves entity alone", past1, "messages from last day", "past"},
		{"past 3 days untouched", &TimeframeEntity{Relative: "past", Unit: "days", Value: 3}, "messages from today", "past"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := correctMisinterpretation(tt.ent, tt.rawText)
			if got.Relative != tt.want {
				t.Errorf("Relative = %q, want %q", got.Relative, tt.want)
			}
			if tt.want != "past" && got.Value != 0 {
				t.Errorf("corrected Value = %d, want 0", got.Value)
			}
		})
	}
}
