package filter

import (
	"strings"
	"testing"
)

func TestCheck(t *testing.T) {
	tests := []struct {
		name    string
		content string
		spam    bool
	}{
		{"plain greeting", "hola, quisiera una cita para mañana", false},
		{"empty", "", false},
		{"single link ok", "mira esto https://example.com", false},
		{"link flood", "https://a.com https://b.com https://c.com gana ya", true},
		{"spam phrase english", "Congratulations! You have won a prize, click here", true},
		{"spam phrase spanish", "Has ganado un premio increible", true},
		{"char flood", strings.Repeat("a", 300), true},
		{"long but normal", strings.Repeat("necesito informacion sobre precios. ", 10), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Check(tt.content)
			if v.Spam != tt.spam {
				t.Errorf("Check(%q).Spam = %v, want %v (reason %q)", tt.content, v.Spam, tt.spam, v.Reason)
			}
			if v.Spam && v.Reason == "" {
				t.Error("spam verdict must carry a reason")
			}
		})
	}
}
