package nlq

import (
	"log/slog"
	"strings"
	"time"

	"github.com/itzamna-labs/chasqui/internal/store"
)

var literalLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"02/01/2006",
	"January 2, 2006",
	"Jan 2, 2006",
}

// ResolveTimeframe turns a classifier timeframe entity into concrete bounds.
// rawText is the user's original message; it drives the misinterpretation
// corrections. A nil entity means no time bound. now must already be in the
// target location.
func ResolveTimeframe(ent *TimeframeEntity, rawText string, now time.Time, floorYear int) (*store.TimeRange, error) {
	if ent == nil {
		return nil, nil
	}
	if ent.Value < 0 {
		return nil, &ValidationError{Field: "timeframe", Msg: "negative value"}
	}

	ent = correctMisinterpretation(ent, rawText)

	loc := now.Location()

	switch ent.Relative {
	case "today":
		start := startOfDay(now)
		return &store.TimeRange{Start: start, End: start.AddDate(0, 0, 1).Add(-time.Nanosecond)}, nil
	case "yesterday":
		start := startOfDay(now).AddDate(0, 0, -1)
		return &store.TimeRange{Start: start, End: start.AddDate(0, 0, 1).Add(-time.Nanosecond)}, nil
	case "past":
		start := startOfDay(backCompute(now, ent.Unit, ent.Value))
		end := startOfDay(now).AddDate(0, 0, 1).Add(-time.Nanosecond)
		return &store.TimeRange{Start: start, End: end}, nil
	}

	if ent.Start == "" && ent.End == "" {
		return nil, nil
	}

	var tr store.TimeRange
	if ent.Start != "" {
		t, err := parseLiteral(ent.Start, loc, now, floorYear)
		if err != nil {
			return nil, err
		}
		tr.Start = t
	}
	if ent.End != "" {
		t, err := parseLiteral(ent.End, loc, now, floorYear)
		if err != nil {
			return nil, err
		}
		// A bare date as the end bound means end of that day.
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
			t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
		}
		tr.End = t
	} else {
		tr.End = startOfDay(now).AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	if tr.Start.IsZero() {
		tr.Start = startOfDay(tr.End)
	}

	if !tr.Valid() {
		return nil, store.ErrInvalidDateRange
	}
	return &tr, nil
}

// correctMisinterpretation patches a known classifier failure mode: the user
// says "today"/"hoy" but the model emits a generic past-1-day window. The
// symmetric rule applies for "yesterday"/"ayer". Keyed off raw-text substring
// matching because the raw text is the only trusted signal.
func correctMisinterpretation(ent *TimeframeEntity, rawText string) *TimeframeEntity {
	if ent.Relative != "past" || ent.Unit != "days" || ent.Value != 1 {
		return ent
	}
	lower := strings.ToLower(rawText)
	if strings.Contains(lower, "today") || strings.Contains(lower, "hoy") {
		slog.Debug("timeframe corrected", "from", "past 1 day", "to", "today")
		return &TimeframeEntity{Relative: "today"}
	}
	if strings.Contains(lower, "yesterday") || strings.Contains(lower, "ayer") {
		slog.Debug("timeframe corrected", "from", "past 1 day", "to", "yesterday")
		return &TimeframeEntity{Relative: "yesterday"}
	}
	return ent
}

// parseLiteral parses a literal date string, applying the year-sanity
// correction: a year before floorYear is treated as a model hallucination and
// replaced with the current year, month and day preserved.
func parseLiteral(s string, loc *time.Location, now time.Time, floorYear int) (time.Time, error) {
	s = strings.TrimSpace(s)
	var t time.Time
	var err error
	for _, layout := range literalLayouts {
		t, err = time.ParseInLocation(layout, s, loc)
		if err == nil {
			break
		}
	}
	if err != nil {
		return time.Time{}, &ValidationError{Field: "timeframe", Msg: "unparseable date " + s}
	}

	if floorYear > 0 && t.Year() < floorYear {
		corrected := time.Date(now.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc)
		slog.Warn("data integrity warning: corrected hallucinated year",
			"raw", s, "parsed_year", t.Year(), "corrected_year", now.Year())
		t = corrected
	}
	return t, nil
}

func backCompute(now time.Time, unit string, value int) time.Time {
	switch unit {
	case "weeks":
		return now.AddDate(0, 0, -7*value)
	case "months":
		return now.AddDate(0, -value, 0)
	default:
		return now.AddDate(0, 0, -value)
	}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
