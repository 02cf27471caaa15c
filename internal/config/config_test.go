package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPreferencesAllows(t *testing.T) {
	tests := []struct {
		name                          string
		prefs                         PreferencesConfig
		isGroup, isReaction, isBcast  bool
		want                          bool
	}{
		{"all messages wins", PreferencesConfig{AllMessages: true}, true, true, true, true},
		{"individual allowed", PreferencesConfig{IndividualMessages: true}, false, false, false, true},
		{"group denied by default", PreferencesConfig{IndividualMessages: true}, true, false, false, false},
		{"group allowed", PreferencesConfig{GroupMessages: true}, true, false, false, true},
		{"reaction denied first", PreferencesConfig{IndividualMessages: true, GroupMessages: true}, false, true, false, false},
		{"reaction allowed", PreferencesConfig{IndividualMessages: true, Reactions: true}, false, true, false, true},
		{"broadcast needs lists", PreferencesConfig{IndividualMessages: true}, false, false, true, false},
		{"broadcast allowed", PreferencesConfig{DistributionLists: true}, false, false, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.prefs.Allows(tt.isGroup, tt.isReaction, tt.isBcast); got != tt.want {
				t.Errorf("Allows(%v, %v, %v) = %v, want %v", tt.isGroup, tt.isReaction, tt.isBcast, got, tt.want)
			}
		})
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Assistant.Enabled || cfg.Gateway.Port != 18890 {
		t.Errorf("defaults not applied: %+v", cfg.Snapshot())
	}
}

func TestLoadParsesJSON5AndEnvWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{
		// comments are allowed
		assistant: { enabled: true, owner_name: "Ana", timezone: "America/Mexico_City" },
		ai: { model: "gpt-4o" },
	}`
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("CHASQUI_MODEL", "gpt-4o-mini")
	t.Setenv("CHASQUI_TELEGRAM_TOKEN", "tg-token")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Assistant.OwnerName != "Ana" {
		t.Errorf("owner = %q", cfg.Assistant.OwnerName)
	}
	if cfg.AI.Model != "gpt-4o-mini" {
		t.Errorf("env must win over file; model = %q", cfg.AI.Model)
	}
	if !cfg.Channels.Telegram.Enabled || cfg.Channels.Telegram.Token != "tg-token" {
		t.Errorf("telegram should auto-enable from env token; %+v", cfg.Channels.Telegram)
	}
}

func TestSaveNeverWritesSecrets(t *testing.T) {
	cfg := Default()
	cfg.AI.APIKey = "sk-secret"
	cfg.Gateway.Token = "gw-secret"
	cfg.Database.PostgresDSN = "postgres://user:pw@host/db"
	cfg.Channels.Telegram.Token = "tg-secret"

	path := filepath.Join(t.TempDir(), "config.json")
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, secret := range []string{"sk-secret", "gw-secret", "pw@host", "tg-secret"} {
		if strings.Contains(string(data), secret) {
			t.Errorf("secret %q leaked into the config file", secret)
		}
	}
}

func TestReplaceFromAndSnapshot(t *testing.T) {
	cfg := Default()
	next := Default()
	next.Assistant.Enabled = false
	next.Preferences.GroupMessages = true

	cfg.ReplaceFrom(next)

	snap := cfg.Snapshot()
	if snap.Assistant.Enabled || !snap.Preferences.GroupMessages {
		t.Errorf("snapshot = %+v", snap.Assistant)
	}
}
