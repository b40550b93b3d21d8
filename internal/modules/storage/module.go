package storage

import (
	"context"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"signal_bridge/internal/modules/config"
	"signal_bridge/internal/store"
	"signal_bridge/pkg/db"
)

// NewStore выбирает реализацию по store.driver.
func NewStore(ctx context.Context, cfg *config.Config, pg *db.PgTxManager, log *zap.Logger) (store.Store, error) {
	seed, global := cfg.Settings(), cfg.ProtectionDefaults()

	switch cfg.Store.Driver {
	case "file":
		f, err := store.NewFile(cfg.Store.Path, seed, global)
		if err != nil {
			return nil, err
		}
		log.Info("state store", zap.String("driver", "file"), zap.String("path", cfg.Store.Path))
		return f, nil
	case "postgres":
		if pg == nil {
			return nil, fmt.Errorf("postgres store: no connection")
		}
		p := store.NewPostgres(pg, seed, global)
		if err := p.Migrate(ctx); err != nil {
			return nil, err
		}
		log.Info("state store", zap.String("driver", "postgres"))
		return p, nil
	default:
		log.Info("state store", zap.String("driver", "memory"))
		return store.NewMemory(seed, global), nil
	}
}

func Module() fx.Option {
	return fx.Module("storage",
		fx.Provide(
			NewStore,
		),
	)
}
