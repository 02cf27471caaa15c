package config

import (
	"sync"
	"time"
)

// Config is the root configuration for the Chasqui gateway.
type Config struct {
	Assistant   AssistantConfig   `json:"assistant"`
	Preferences PreferencesConfig `json:"preferences"`
	AI          AIConfig          `json:"ai"`
	Channels    ChannelsConfig    `json:"channels"`
	Gateway     GatewayConfig     `json:"gateway"`
	Database    DatabaseConfig    `json:"database,omitempty"`
	Digest      DigestConfig      `json:"digest,omitempty"`
	Telemetry   TelemetryConfig   `json:"telemetry,omitempty"`
	mu          sync.RWMutex
}

// AssistantConfig defines the assistant identity and how it presents itself.
type AssistantConfig struct {
	Enabled       bool   `json:"enabled"`
	OwnerName     string `json:"owner_name,omitempty"`
	AssistantName string `json:"assistant_name,omitempty"`
	SystemPrompt  string `json:"system_prompt,omitempty"`
	Timezone      string `json:"timezone,omitempty"`   // IANA timezone for timeframe parsing
	FloorYear     int    `json:"floor_year,omitempty"` // timestamps dated before this year are corrected
}

// PreferencesConfig controls which inbound messages the assistant handles.
type PreferencesConfig struct {
	AllMessages        bool `json:"all_messages"`
	IndividualMessages bool `json:"individual_messages"`
	GroupMessages      bool `json:"group_messages"`
	Reactions          bool `json:"reactions"`
	DistributionLists  bool `json:"distribution_lists"`
}

// Allows reports whether the preferences permit handling a message of the
// given shape. AllMessages wins over the per-kind switches.
func (p PreferencesConfig) Allows(isGroup, isReaction, isBroadcast bool) bool {
	if p.AllMessages {
		return true
	}
	if isReaction && !p.Reactions {
		return false
	}
	if isBroadcast {
		return p.DistributionLists
	}
	if isGroup {
		return p.GroupMessages
	}
	return p.IndividualMessages
}

// AIConfig configures the OpenAI-compatible model client.
// APIKey is never read from the config file (secret); env CHASQUI_OPENAI_API_KEY only.
type AIConfig struct {
	APIKey     string `json:"-"` // from env CHASQUI_OPENAI_API_KEY only
	BaseURL    string `json:"base_url,omitempty"`
	Model      string `json:"model,omitempty"`
	TimeoutSec int    `json:"timeout_sec,omitempty"` // per-call deadline (default 30)
	FailOpen   bool   `json:"fail_open,omitempty"`   // respond with fallback text when the gate cannot run
}

func (a AIConfig) Timeout() time.Duration {
	if a.TimeoutSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(a.TimeoutSec) * time.Second
}

// ChannelsConfig holds per-channel settings.
type ChannelsConfig struct {
	WhatsApp WhatsAppConfig `json:"whatsapp"`
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord"`
}

// WhatsAppConfig configures the WebSocket bridge connection.
type WhatsAppConfig struct {
	Enabled   bool   `json:"enabled"`
	BridgeURL string `json:"bridge_url,omitempty"` // ws://host:port of the bridge
	Token     string `json:"-"`                    // from env CHASQUI_WHATSAPP_TOKEN only
}

// TelegramConfig configures the Telegram bot channel.
type TelegramConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"-"` // from env CHASQUI_TELEGRAM_TOKEN only
	// ControlChatID routes messages from this chat to the owner control
	// conversation instead of the customer pipeline.
	ControlChatID string `json:"control_chat_id,omitempty"`
}

// DiscordConfig configures the Discord bot channel.
type DiscordConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"-"` // from env CHASQUI_DISCORD_TOKEN only
}

// GatewayConfig configures the HTTP/WebSocket server.
type GatewayConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	Token        string `json:"-"` // from env CHASQUI_GATEWAY_TOKEN only
	RateLimitRPM int    `json:"rate_limit_rpm,omitempty"`
}

// DatabaseConfig selects the storage backend.
// PostgresDSN is never read from the config file (secret); env CHASQUI_POSTGRES_DSN only.
type DatabaseConfig struct {
	Mode        string `json:"mode,omitempty"` // "sqlite" (default) or "postgres"
	PostgresDSN string `json:"-"`              // from env CHASQUI_POSTGRES_DSN only
	SQLitePath  string `json:"sqlite_path,omitempty"`
}

// IsPostgres returns true when the gateway should use the Postgres backend.
func (c *Config) IsPostgres() bool {
	return c.Database.Mode == "postgres" && c.Database.PostgresDSN != ""
}

// DigestConfig configures the scheduled activity digest.
type DigestConfig struct {
	Enabled  bool   `json:"enabled,omitempty"`
	Schedule string `json:"schedule,omitempty"` // cron expression (default "0 8 * * *")
}

// TelemetryConfig configures OpenTelemetry export for traces.
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled,omitempty"`
	Endpoint    string            `json:"endpoint,omitempty"`     // OTLP endpoint, e.g. "localhost:4317"
	Protocol    string            `json:"protocol,omitempty"`     // "grpc" (default) or "http"
	Insecure    bool              `json:"insecure,omitempty"`
	ServiceName string            `json:"service_name,omitempty"` // default "chasqui-gateway"
	Headers     map[string]string `json:"headers,omitempty"`
}

// ReplaceFrom copies all data fields from src into c, preserving c's mutex.
func (c *Config) ReplaceFrom(src *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Assistant = src.Assistant
	c.Preferences = src.Preferences
	c.AI = src.AI
	c.Channels = src.Channels
	c.Gateway = src.Gateway
	c.Database = src.Database
	c.Digest = src.Digest
	c.Telemetry = src.Telemetry
}

// Snapshot returns a copy of the data fields, safe to read without locking.
func (c *Config) Snapshot() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Config{
		Assistant:   c.Assistant,
		Preferences: c.Preferences,
		AI:          c.AI,
		Channels:    c.Channels,
		Gateway:     c.Gateway,
		Database:    c.Database,
		Digest:      c.Digest,
		Telemetry:   c.Telemetry,
	}
}

// Location resolves the configured timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	c.mu.RLock()
	tz := c.Assistant.Timezone
	c.mu.RUnlock()
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}
