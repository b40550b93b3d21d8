package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"signal_bridge/internal/modules/config"
	"signal_bridge/internal/store"
	"signal_bridge/pkg/db"
)

// Переносит состояние файлового стора (дефолты, TP/SL, позиции) в postgres.
// Источник и DSN берутся из .migrate.yaml / MIGRATE_*, иначе из основного конфига.

func copyState(ctx context.Context, src *store.File, dst *store.Postgres) (int, error) {
	s, err := src.Settings(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "read settings")
	}
	if err = dst.SaveSettings(ctx, s); err != nil {
		return 0, errors.Wrap(err, "save settings")
	}

	for _, c := range src.ProtectionConfigs() {
		if err = dst.SaveProtection(ctx, c); err != nil {
			return 0, errors.Wrap(err, fmt.Sprintf("save protection %q", c.Symbol))
		}
	}

	positions, err := src.Positions(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "read positions")
	}
	for _, p := range positions {
		if err = dst.SavePosition(ctx, p); err != nil {
			return 0, errors.Wrap(err, "save position "+p.Key())
		}
	}
	return len(positions), nil
}

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	viper.SetConfigName(".migrate")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.SetEnvPrefix("migrate")
	viper.AutomaticEnv()
	viper.SetDefault("source", cfg.Store.Path)
	viper.SetDefault("dsn", cfg.Store.DSN)
	viper.SetDefault("timeout", time.Minute)
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			panic(fmt.Errorf("read .migrate.yaml: %w", err))
		}
	}

	source, dsn := viper.GetString("source"), viper.GetString("dsn")
	if dsn == "" {
		panic("has no dsn: set store.dsn, MIGRATE_DSN or dsn in .migrate.yaml")
	}

	ctx, cancel := context.WithTimeout(context.Background(), viper.GetDuration("timeout"))
	defer cancel()

	src, err := store.NewFile(source, cfg.Settings(), cfg.ProtectionDefaults())
	if err != nil {
		panic(fmt.Errorf("open file store: %w", err))
	}

	pool, err := db.NewPool(ctx, db.PoolConfig{DSN: dsn})
	if err != nil {
		panic(fmt.Errorf("connect postgres: %w", err))
	}
	tx := db.NewPgTxManager(pool)
	defer tx.Close()

	dst := store.NewPostgres(tx, cfg.Settings(), cfg.ProtectionDefaults())
	if err := dst.Migrate(ctx); err != nil {
		panic(fmt.Errorf("migrate: %w", err))
	}

	n, err := copyState(ctx, src, dst)
	if err != nil {
		panic(fmt.Errorf("copy state: %w", err))
	}
	fmt.Printf("%s -> postgres: %d positions\n", source, n)
	fmt.Println("done")
}
