package main

import (
	"context"
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	bingx "signal_bridge/internal/modules/bingx_client"
	ws "signal_bridge/internal/modules/bingx_websocket"
	"signal_bridge/internal/modules/config"
	"signal_bridge/internal/modules/health"
	"signal_bridge/internal/modules/postgres"
	"signal_bridge/internal/modules/storage"
	telegram "signal_bridge/internal/modules/telegram_bot"
	"signal_bridge/internal/modules/webhook"
	"signal_bridge/internal/runner"
	"signal_bridge/pkg/logger"
	"signal_bridge/pkg/tracing"
)

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logger.New(cfg.Log.Level, cfg.Service.Name)
}

func initTracing(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) error {
	_, closer, err := tracing.InitTracer(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Service.Name,
		Host:        cfg.Tracing.Host,
		Port:        cfg.Tracing.Port,
	})
	if err != nil {
		return err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return closer()
		},
	})
	if cfg.Tracing.Enabled {
		log.Info("tracing enabled")
	}
	return nil
}

func main() {
	app := fx.New(
		fx.Provide(
			func() context.Context {
				return context.Background()
			},
			newLogger,
		),
		fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: l.Named("fx")}
		}),
		config.Module(),
		fx.Invoke(initTracing),
		postgres.Module(),
		storage.Module(),
		bingx.Module(),
		telegram.Module(),
		runner.Module(),
		ws.Module(),
		webhook.Module(),
		health.Module(),
	)
	if err := app.Err(); err != nil {
		log.Fatal(err)
	}
	app.Run()
}
