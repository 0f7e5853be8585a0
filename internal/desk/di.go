package desk

import (
	"github.com/foxseedlab/sessiondesk/internal/audio"
	"github.com/foxseedlab/sessiondesk/internal/config"
	"github.com/foxseedlab/sessiondesk/internal/discord"
	"github.com/foxseedlab/sessiondesk/internal/draft"
	"github.com/foxseedlab/sessiondesk/internal/event"
	"github.com/foxseedlab/sessiondesk/internal/repository"
	"github.com/foxseedlab/sessiondesk/internal/session"
	"github.com/foxseedlab/sessiondesk/internal/transcriber"
	"github.com/foxseedlab/sessiondesk/internal/voice"
	"github.com/foxseedlab/sessiondesk/internal/webhook"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*event.Bus, error) {
		return event.NewBus(), nil
	})
	do.Provide(injector, func(i do.Injector) (*Manager, error) {
		cfg := do.MustInvoke[*config.Config](i)
		grammar, err := LoadGrammar(cfg.VoiceGrammarPath)
		if err != nil {
			return nil, err
		}
		deps := Deps{
			Records:    do.MustInvoke[repository.RecordStore](i),
			States:     do.MustInvoke[session.StateStore](i),
			Drafts:     do.MustInvoke[draft.Store](i),
			Bus:        do.MustInvoke[*event.Bus](i),
			NewDecoder: do.MustInvoke[audio.DecoderFactory](i),
			Grammar:    grammar,
		}
		if cfg.SessionWebhookURL != "" {
			deps.FinishHooks = append(deps.FinishHooks, newWebhookHook(do.MustInvoke[webhook.Sender](i)))
		}
		if cfg.NotificationsEnabled() {
			deps.FinishHooks = append(deps.FinishHooks, do.MustInvoke[*discord.Notifier](i))
		}
		if cfg.SpeechMode == config.SpeechModeServer {
			deps.Transcriber = do.MustInvoke[transcriber.Transcriber](i)
		}
		return NewManager(cfg, deps), nil
	})
}

// LoadGrammar reads the grammar file at path, or returns the built-in
// grammar when path is empty.
func LoadGrammar(path string) (*voice.Grammar, error) {
	if path == "" {
		return voice.DefaultGrammar(), nil
	}
	return voice.LoadGrammar(path)
}
