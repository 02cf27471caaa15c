package retrieval

import (
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/itzamna-labs/chasqui/internal/store"
)

// GroupWindow is the fixed burst-grouping gap.
const GroupWindow = 30 * time.Minute

const (
	summaryMaxWords = 30
	summaryMaxChars = 150
)

// Group is a burst of consecutive messages from one sender.
type Group struct {
	ContactPhone       string
	ContactDisplayName string
	Sender             string
	Messages           []store.MessageWithContact
	Start              time.Time
	End                time.Time
	Content            string
	Summary            string
}

// GroupBursts clusters rows into per-sender bursts. A message joins the
// sender's open group when the gap from the group's end is at most
// GroupWindow; otherwise it opens a new group. Open groups are keyed by
// sender id since a sender has at most one active burst at a time. The scan
// needs rows chronologically ascending, so feed-ordered (reverse-chron)
// input is re-sorted first; the caller's slice is left untouched.
func GroupBursts(rows []store.MessageWithContact) []Group {
	if len(rows) == 0 {
		return nil
	}

	if !sort.SliceIsSorted(rows, func(i, j int) bool {
		return rows[i].Timestamp.Before(rows[j].Timestamp)
	}) {
		sorted := make([]store.MessageWithContact, len(rows))
		copy(sorted, rows)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Timestamp.Before(sorted[j].Timestamp)
		})
		rows = sorted
	}

	open := make(map[string]int) // sender key -> index into groups
	groups := make([]Group, 0, len(rows)/2+1)

	for _, m := range rows {
		key := m.ContactID.String() + "/" + m.Sender
		if idx, ok := open[key]; ok {
			g := &groups[idx]
			if m.Timestamp.Sub(g.End) <= GroupWindow && !m.Timestamp.Before(g.End) {
				g.Messages = append(g.Messages, m)
				g.End = m.Timestamp
				g.Content += "\n" + m.Content
				continue
			}
		}
		groups = append(groups, Group{
			ContactPhone:       m.ContactPhone,
			ContactDisplayName: m.ContactDisplayName,
			Sender:             m.Sender,
			Messages:           []store.MessageWithContact{m},
			Start:              m.Timestamp,
			End:                m.Timestamp,
			Content:            m.Content,
		})
		open[key] = len(groups) - 1
	}

	for i := range groups {
		groups[i].Summary = summarize(groups[i].Content)
	}
	return groups
}

// summarize produces the one-line group summary: the first 30 words or 150
// characters, whichever cuts shorter, ellipsis-terminated when truncated.
func summarize(content string) string {
	flat := strings.Join(strings.Fields(content), " ")

	truncated := false
	words := strings.Fields(flat)
	if len(words) > summaryMaxWords {
		flat = strings.Join(words[:summaryMaxWords], " ")
		truncated = true
	}
	if len(flat) > summaryMaxChars {
		// The byte cap must not split a multi-byte rune.
		cut := summaryMaxChars
		for cut > 0 && !utf8.RuneStart(flat[cut]) {
			cut--
		}
		flat = strings.TrimSpace(flat[:cut])
		truncated = true
	}
	if truncated {
		flat += "..."
	}
	return flat
}
