package grammar

import (
	"github.com/foxseedlab/sessiondesk/internal/config"
	"github.com/foxseedlab/sessiondesk/internal/desk"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Watcher, error) {
		cfg := do.MustInvoke[*config.Config](i)
		manager := do.MustInvoke[*desk.Manager](i)
		return NewWatcher(cfg.VoiceGrammarPath, manager), nil
	})
}
