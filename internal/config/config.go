package config

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	SpeechModeHost   = "host"
	SpeechModeServer = "server"
)

type Config struct {
	Env                        string
	HTTPAddr                   string
	DatabaseURL                string
	DatabaseMaxConns           int32
	DatabaseMaxConnIdle        time.Duration
	DraftDBPath                string
	DraftMaxAge                time.Duration
	DraftGCSchedule            string
	AutoSaveDelay              time.Duration
	AlertThresholds            map[string]time.Duration
	VoiceGrammarPath           string
	VoiceLanguage              string
	VoiceWakeWord              string
	VoiceAwakeWindow           time.Duration
	SpeechMode                 string
	GoogleCloudProjectID       string
	GoogleCloudCredentialsJSON string
	GoogleCloudSpeechLocation  string
	GoogleCloudSpeechModel     string
	DiscordToken               string
	DiscordNotifyChannelID     string
	SessionWebhookURL          string
	Timezone                   string
}

func (c *Config) Validate() error {
	for _, req := range c.requiredFieldChecks() {
		if req.value == "" {
			return fmt.Errorf("%s is required", req.name)
		}
	}
	if err := c.validateDurations(); err != nil {
		return err
	}
	if _, err := cron.ParseStandard(c.DraftGCSchedule); err != nil {
		return fmt.Errorf("DRAFT_GC_SCHEDULE is invalid: %w", err)
	}
	switch c.SpeechMode {
	case SpeechModeHost:
	case SpeechModeServer:
		if c.GoogleCloudProjectID == "" || c.GoogleCloudCredentialsJSON == "" {
			return fmt.Errorf("GOOGLE_CLOUD_PROJECT_ID and GOOGLE_CLOUD_CREDENTIALS_JSON are required when SPEECH_MODE=server")
		}
	default:
		return fmt.Errorf("SPEECH_MODE must be %q or %q, got %q", SpeechModeHost, SpeechModeServer, c.SpeechMode)
	}
	if (c.DiscordToken == "") != (c.DiscordNotifyChannelID == "") {
		return fmt.Errorf("DISCORD_TOKEN and DISCORD_NOTIFY_CHANNEL_ID must be set together")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("TIMEZONE is invalid: %w", err)
	}
	return nil
}

func (c *Config) validateDurations() error {
	if c.AutoSaveDelay <= 0 {
		return fmt.Errorf("AUTOSAVE_DELAY must be positive, got %s", c.AutoSaveDelay)
	}
	if c.DraftMaxAge <= 0 {
		return fmt.Errorf("DRAFT_MAX_AGE must be positive, got %s", c.DraftMaxAge)
	}
	if c.DatabaseMaxConns <= 0 {
		return fmt.Errorf("DATABASE_MAX_CONNS must be positive, got %d", c.DatabaseMaxConns)
	}
	if c.DatabaseMaxConnIdle < 0 {
		return fmt.Errorf("DATABASE_MAX_CONN_IDLE must not be negative, got %s", c.DatabaseMaxConnIdle)
	}
	if c.VoiceAwakeWindow <= 0 {
		return fmt.Errorf("VOICE_AWAKE_WINDOW must be positive, got %s", c.VoiceAwakeWindow)
	}
	for id, d := range c.AlertThresholds {
		if d <= 0 {
			return fmt.Errorf("SESSION_ALERT_THRESHOLDS: %s must be positive, got %s", id, d)
		}
	}
	return nil
}

type requiredEnvField struct {
	name  string
	value string
}

func (c *Config) requiredFieldChecks() []requiredEnvField {
	return []requiredEnvField{
		{name: "HTTP_ADDR", value: c.HTTPAddr},
		{name: "DATABASE_URL", value: c.DatabaseURL},
		{name: "DRAFT_DB_PATH", value: c.DraftDBPath},
		{name: "VOICE_LANGUAGE", value: c.VoiceLanguage},
		{name: "TIMEZONE", value: c.Timezone},
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) NotificationsEnabled() bool {
	return c.DiscordToken != "" && c.DiscordNotifyChannelID != ""
}
