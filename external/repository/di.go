package repository

import (
	"context"
	"time"

	"github.com/foxseedlab/sessiondesk/internal/config"
	"github.com/foxseedlab/sessiondesk/internal/repository"
	"github.com/samber/do/v2"
)

const databaseInitTimeout = 15 * time.Second

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (repository.RecordStore, error) {
		cfg := do.MustInvoke[*config.Config](i)
		ctx, cancel := context.WithTimeout(context.Background(), databaseInitTimeout)
		defer cancel()
		return OpenPostgres(ctx, PoolOptions{
			URL:         cfg.DatabaseURL,
			MaxConns:    cfg.DatabaseMaxConns,
			MaxConnIdle: cfg.DatabaseMaxConnIdle,
		})
	})
}
