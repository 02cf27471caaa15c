package gateway

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/itzamna-labs/chasqui/internal/store"
)

const (
	defaultStartTime = "00:00"
	defaultEndTime   = "23:59"
)

// groupDTO is one burst group in the search response.
type groupDTO struct {
	ContactPhone string       `json:"contact_phone"`
	ContactName  string       `json:"contact_name"`
	Sender       string       `json:"sender"`
	Start        time.Time    `json:"start"`
	End          time.Time    `json:"end"`
	MessageCount int          `json:"message_count"`
	Summary      string       `json:"summary"`
	Messages     []messageDTO `json:"messages"`
}

type messageDTO struct {
	ID          string    `json:"id"`
	Content     string    `json:"content"`
	MessageType string    `json:"message_type"`
	Timestamp   time.Time `json:"timestamp"`
}

// handleSearch implements GET /v1/search. Dates accept YYYY-MM-DD plus the
// keywords "today" and "yesterday"; times are HH:MM in the configured
// timezone. A start after end is a client error reported in-band, not a
// swapped range.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	now := time.Now().In(s.location)

	startDate, err := resolveDate(q.Get("start_date"), now)
	if err != nil {
		writeSearchError(w, http.StatusBadRequest, err.Error())
		return
	}
	endDate, err := resolveDate(q.Get("end_date"), now)
	if err != nil {
		writeSearchError(w, http.StatusBadRequest, err.Error())
		return
	}
	if endDate.IsZero() {
		endDate = now
	}
	if startDate.IsZero() {
		startDate = endDate
	}

	startTime := orDefault(q.Get("start_time"), defaultStartTime)
	endTime := orDefault(q.Get("end_time"), defaultEndTime)

	start, err := atClock(startDate, startTime, s.location)
	if err != nil {
		writeSearchError(w, http.StatusBadRequest, "invalid start_time, expected HH:MM")
		return
	}
	end, err := atClock(endDate, endTime, s.location)
	if err != nil {
		writeSearchError(w, http.StatusBadRequest, "invalid end_time, expected HH:MM")
		return
	}
	// the minute boundary is inclusive
	end = end.Add(time.Minute - time.Nanosecond)

	if start.After(end) {
		writeSearchError(w, http.StatusOK, "Invalid date range")
		return
	}

	spec := store.QuerySpec{
		Timeframe: &store.TimeRange{Start: start, End: end},
		Order:     store.OrderSearch,
	}

	switch sender := strings.ToLower(strings.TrimSpace(q.Get("sender"))); sender {
	case "", "all", "any":
	case store.SenderUser, store.SenderAssistant:
		spec.Sender = sender
	default:
		spec.ContactName = q.Get("sender")
	}

	if raw := q.Get("keywords"); raw != "" {
		for _, k := range strings.Split(raw, ",") {
			if k = strings.TrimSpace(k); k != "" {
				spec.Keywords = append(spec.Keywords, k)
			}
		}
	}
	if raw := q.Get("types"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				spec.MessageTypes = append(spec.MessageTypes, strings.ToLower(t))
			}
		}
	}
	if raw := q.Get("limit"); raw != "" {
		n, convErr := strconv.Atoi(raw)
		if convErr != nil || n < 0 {
			writeSearchError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		spec.Limit = n
	}

	res, err := s.searcher.Search(r.Context(), spec)
	if err != nil {
		if errors.Is(err, store.ErrInvalidDateRange) {
			writeSearchError(w, http.StatusOK, "Invalid date range")
			return
		}
		slog.Error("search failed", "error", err)
		writeSearchError(w, http.StatusInternalServerError, "search failed")
		return
	}

	groups := make([]groupDTO, 0, len(res.Groups))
	for _, g := range res.Groups {
		dto := groupDTO{
			ContactPhone: g.ContactPhone,
			ContactName:  g.ContactDisplayName,
			Sender:       g.Sender,
			Start:        g.Start,
			End:          g.End,
			MessageCount: len(g.Messages),
			Summary:      g.Summary,
		}
		for _, m := range g.Messages {
			dto.Messages = append(dto.Messages, messageDTO{
				ID:          m.ID.String(),
				Content:     m.Content,
				MessageType: m.MessageType,
				Timestamp:   m.Timestamp,
			})
		}
		groups = append(groups, dto)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"messages": groups,
		"metadata": map[string]interface{}{
			"total_messages": res.Stats.Total,
			"total_groups":   len(groups),
			"start":          start,
			"end":            end,
			"limit":          res.Applied.Limit,
			"by_sender":      res.Stats.BySender,
			"by_type":        res.Stats.ByType,
		},
	})
}

func writeSearchError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"success":  false,
		"error":    msg,
		"messages": []interface{}{},
	})
}

// resolveDate parses a date parameter. Empty returns zero time for the
// caller to default.
func resolveDate(raw string, now time.Time) (time.Time, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return time.Time{}, nil
	case "today":
		return now, nil
	case "yesterday":
		return now.AddDate(0, 0, -1), nil
	}
	t, err := time.ParseInLocation("2006-01-02", raw, now.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", raw)
	}
	return t, nil
}

func atClock(day time.Time, clock string, loc *time.Location) (time.Time, error) {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, loc), nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
