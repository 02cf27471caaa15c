package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Assistant: AssistantConfig{
			Enabled:       true,
			AssistantName: "Chasqui",
			Timezone:      "UTC",
			FloorYear:     time.Now().Year() - 1,
		},
		Preferences: PreferencesConfig{
			IndividualMessages: true,
		},
		AI: AIConfig{
			Model:      "gpt-4o-mini",
			TimeoutSec: 30,
		},
		Gateway: GatewayConfig{
			Host:         "0.0.0.0",
			Port:         18890,
			RateLimitRPM: 60,
		},
		Database: DatabaseConfig{
			Mode:       "sqlite",
			SQLitePath: "chasqui.db",
		},
		Digest: DigestConfig{
			Schedule: "0 8 * * *",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file is not an error; defaults plus env apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	// Secrets are env-only.
	envStr("CHASQUI_OPENAI_API_KEY", &c.AI.APIKey)
	envStr("CHASQUI_GATEWAY_TOKEN", &c.Gateway.Token)
	envStr("CHASQUI_TELEGRAM_TOKEN", &c.Channels.Telegram.Token)
	envStr("CHASQUI_DISCORD_TOKEN", &c.Channels.Discord.Token)
	envStr("CHASQUI_WHATSAPP_TOKEN", &c.Channels.WhatsApp.Token)
	envStr("CHASQUI_POSTGRES_DSN", &c.Database.PostgresDSN)

	envStr("CHASQUI_OPENAI_BASE_URL", &c.AI.BaseURL)
	envStr("CHASQUI_MODEL", &c.AI.Model)
	envStr("CHASQUI_DB_MODE", &c.Database.Mode)
	envStr("CHASQUI_SQLITE_PATH", &c.Database.SQLitePath)
	envStr("CHASQUI_WHATSAPP_BRIDGE_URL", &c.Channels.WhatsApp.BridgeURL)
	envStr("CHASQUI_TELEGRAM_CONTROL_CHAT_ID", &c.Channels.Telegram.ControlChatID)
	envStr("CHASQUI_TIMEZONE", &c.Assistant.Timezone)

	envStr("CHASQUI_HOST", &c.Gateway.Host)
	if v := os.Getenv("CHASQUI_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Gateway.Port = port
		}
	}

	// Auto-enable channels when credentials arrive via env.
	if c.Channels.Telegram.Token != "" {
		c.Channels.Telegram.Enabled = true
	}
	if c.Channels.Discord.Token != "" {
		c.Channels.Discord.Enabled = true
	}
	if c.Channels.WhatsApp.BridgeURL != "" {
		c.Channels.WhatsApp.Enabled = true
	}

	// Telemetry
	envStr("CHASQUI_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("CHASQUI_TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	envStr("CHASQUI_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	if v := os.Getenv("CHASQUI_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("CHASQUI_TELEMETRY_INSECURE"); v != "" {
		c.Telemetry.Insecure = v == "true" || v == "1"
	}
}

// ApplyEnvOverrides re-applies environment variable overrides onto the config.
// Call after reloading from disk so runtime secrets survive.
func (c *Config) ApplyEnvOverrides() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applyEnvOverrides()
}

// Save writes the config to a JSON file. Secret fields carry `json:"-"` and
// never reach the file.
func Save(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	if v := os.Getenv("CHASQUI_CONFIG"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "chasqui.json"
	}
	return filepath.Join(home, ".chasqui", "config.json")
}
