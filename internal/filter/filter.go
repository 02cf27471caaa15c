package filter

import (
	"regexp"
	"strings"
)

var (
	urlPattern = regexp.MustCompile(`https?://\S+`)

	// Phrases common in promo blasts and phishing, in English and Spanish.
	spamPhrases = []string{
		"click here",
		"haz clic aqui",
		"haz clic aquí",
		"you have won",
		"has ganado",
		"free money",
		"dinero gratis",
		"limited offer",
		"oferta limitada",
		"crypto investment",
		"unsubscribe",
		"verify your account",
		"verifica tu cuenta",
	}
)

// Verdict explains why a message was rejected. Empty means it passed.
type Verdict struct {
	Spam   bool
	Reason string
}

// Check applies cheap heuristics to decide whether an inbound message looks
// like spam. It never calls out to a model; the response gate handles the
// judgement calls.
func Check(content string) Verdict {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return Verdict{}
	}

	lower := strings.ToLower(trimmed)

	if urls := urlPattern.FindAllString(trimmed, -1); len(urls) >= 3 {
		return Verdict{Spam: true, Reason: "too many links"}
	}

	for _, phrase := range spamPhrases {
		if strings.Contains(lower, phrase) {
			return Verdict{Spam: true, Reason: "spam phrase: " + phrase}
		}
	}

	if len(trimmed) > 200 && repeatRatio(trimmed) > 0.6 {
		return Verdict{Spam: true, Reason: "repetitive content"}
	}

	return Verdict{}
}

// repeatRatio returns the share of the text made of its single most common
// rune. Flood messages ("aaaaaa...") score near 1.
func repeatRatio(s string) float64 {
	counts := make(map[rune]int)
	total := 0
	for _, r := range s {
		counts[r]++
		total++
	}
	if total == 0 {
		return 0
	}
	max := 0
	for _, n := range counts {
		if n > max {
			max = n
		}
	}
	return float64(max) / float64(total)
}
