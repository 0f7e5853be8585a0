package server

import (
	"github.com/foxseedlab/sessiondesk/internal/config"
	"github.com/foxseedlab/sessiondesk/internal/desk"
	"github.com/foxseedlab/sessiondesk/internal/repository"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Server, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return New(Options{
			Addr:     cfg.HTTPAddr,
			Manager:  do.MustInvoke[*desk.Manager](i),
			Records:  do.MustInvoke[repository.RecordStore](i),
			Gatherer: do.MustInvoke[*prometheus.Registry](i),
			Debug:    cfg.IsDevelopment(),
		}), nil
	})
}
