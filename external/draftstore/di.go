package draftstore

import (
	"log/slog"

	"github.com/foxseedlab/sessiondesk/internal/config"
	"github.com/foxseedlab/sessiondesk/internal/draft"
	"github.com/foxseedlab/sessiondesk/internal/session"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Store, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return Open(Config{
			Path:       cfg.DraftDBPath,
			TTL:        cfg.DraftMaxAge,
			GCSchedule: cfg.DraftGCSchedule,
			Logger:     slog.Default().With("component", "badger"),
		})
	})
	do.Provide(injector, func(i do.Injector) (draft.Store, error) {
		return do.MustInvoke[*Store](i), nil
	})
	do.Provide(injector, func(i do.Injector) (session.StateStore, error) {
		return do.MustInvoke[*Store](i), nil
	})
}
