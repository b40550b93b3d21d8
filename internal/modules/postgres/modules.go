package postgres

import (
	"context"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"signal_bridge/internal/modules/config"
	"signal_bridge/pkg/db"
)

// NewTxManager поднимает пул только для store.driver=postgres, иначе отдаёт nil.
func NewTxManager(ctx context.Context, lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (*db.PgTxManager, error) {
	if cfg.Store.Driver != "postgres" {
		return nil, nil
	}
	poolMaster, err := db.NewPool(ctx, db.PoolConfig{
		DSN: cfg.Store.DSN,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create poolMaster: %w", err)
	}

	tx := db.NewPgTxManager(poolMaster)
	if err := tx.Ping(ctx); err != nil {
		tx.Close()
		return nil, err
	}
	log.Info("postgres connected")

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			tx.Close()
			return nil
		},
	})
	return tx, nil
}

func Module() fx.Option {
	return fx.Module("postgres",
		fx.Provide(
			NewTxManager,
		),
	)
}
