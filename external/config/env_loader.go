package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	internalconfig "github.com/foxseedlab/sessiondesk/internal/config"
)

type envConfig struct {
	Env                        string            `env:"ENV" envDefault:"production"`
	HTTPAddr                   string            `env:"HTTP_ADDR" envDefault:":8080"`
	DatabaseURL                string            `env:"DATABASE_URL,required"`
	DatabaseMaxConns           int32             `env:"DATABASE_MAX_CONNS" envDefault:"8"`
	DatabaseMaxConnIdle        time.Duration     `env:"DATABASE_MAX_CONN_IDLE" envDefault:"5m"`
	DraftDBPath                string            `env:"DRAFT_DB_PATH" envDefault:"./data/drafts"`
	DraftMaxAge                time.Duration     `env:"DRAFT_MAX_AGE" envDefault:"24h"`
	DraftGCSchedule            string            `env:"DRAFT_GC_SCHEDULE" envDefault:"@every 10m"`
	AutoSaveDelay              time.Duration     `env:"AUTOSAVE_DELAY" envDefault:"1s"`
	AlertThresholds            map[string]string `env:"SESSION_ALERT_THRESHOLDS"`
	VoiceGrammarPath           string            `env:"VOICE_GRAMMAR_PATH"`
	VoiceLanguage              string            `env:"VOICE_LANGUAGE" envDefault:"he-IL"`
	VoiceWakeWord              string            `env:"VOICE_WAKE_WORD"`
	VoiceAwakeWindow           time.Duration     `env:"VOICE_AWAKE_WINDOW" envDefault:"5s"`
	SpeechMode                 string            `env:"SPEECH_MODE" envDefault:"host"`
	GoogleCloudProjectID       string            `env:"GOOGLE_CLOUD_PROJECT_ID"`
	GoogleCloudCredentialsJSON string            `env:"GOOGLE_CLOUD_CREDENTIALS_JSON"`
	GoogleCloudSpeechLocation  string            `env:"GOOGLE_CLOUD_SPEECH_LOCATION" envDefault:"global"`
	GoogleCloudSpeechModel     string            `env:"GOOGLE_CLOUD_SPEECH_MODEL" envDefault:"latest_short"`
	DiscordToken               string            `env:"DISCORD_TOKEN"`
	DiscordNotifyChannelID     string            `env:"DISCORD_NOTIFY_CHANNEL_ID"`
	SessionWebhookURL          string            `env:"SESSION_WEBHOOK_URL"`
	Timezone                   string            `env:"TIMEZONE" envDefault:"Asia/Jerusalem"`
}

func Load() (*internalconfig.Config, error) {
	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("environment variables are invalid or missing: %w", err)
	}
	thresholds, err := parseThresholds(raw.AlertThresholds)
	if err != nil {
		return nil, err
	}

	cfg := &internalconfig.Config{
		Env:                        raw.Env,
		HTTPAddr:                   raw.HTTPAddr,
		DatabaseURL:                raw.DatabaseURL,
		DatabaseMaxConns:           raw.DatabaseMaxConns,
		DatabaseMaxConnIdle:        raw.DatabaseMaxConnIdle,
		DraftDBPath:                raw.DraftDBPath,
		DraftMaxAge:                raw.DraftMaxAge,
		DraftGCSchedule:            raw.DraftGCSchedule,
		AutoSaveDelay:              raw.AutoSaveDelay,
		AlertThresholds:            thresholds,
		VoiceGrammarPath:           raw.VoiceGrammarPath,
		VoiceLanguage:              raw.VoiceLanguage,
		VoiceWakeWord:              raw.VoiceWakeWord,
		VoiceAwakeWindow:           raw.VoiceAwakeWindow,
		SpeechMode:                 raw.SpeechMode,
		GoogleCloudProjectID:       raw.GoogleCloudProjectID,
		GoogleCloudCredentialsJSON: raw.GoogleCloudCredentialsJSON,
		GoogleCloudSpeechLocation:  raw.GoogleCloudSpeechLocation,
		GoogleCloudSpeechModel:     raw.GoogleCloudSpeechModel,
		DiscordToken:               raw.DiscordToken,
		DiscordNotifyChannelID:     raw.DiscordNotifyChannelID,
		SessionWebhookURL:          raw.SessionWebhookURL,
		Timezone:                   raw.Timezone,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseThresholds reads SESSION_ALERT_THRESHOLDS entries such as
// "wrap_up:30m,hard_limit:40m".
func parseThresholds(raw map[string]string) (map[string]time.Duration, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]time.Duration, len(raw))
	for id, value := range raw {
		d, err := time.ParseDuration(value)
		if err != nil {
			return nil, fmt.Errorf("SESSION_ALERT_THRESHOLDS: %s: %w", id, err)
		}
		out[id] = d
	}
	return out, nil
}
