package telegram

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	bingx "signal_bridge/internal/modules/bingx_client/service"
	"signal_bridge/internal/modules/config"
	"signal_bridge/internal/modules/telegram_bot/service"
	"signal_bridge/internal/notify"
	"signal_bridge/internal/store"
)

// NewNotifier: без токена уведомления уходят только в лог.
func NewNotifier(cfg *config.Config, st store.Store, client *bingx.Client, log *zap.Logger) (notify.Notifier, *service.Telegram, error) {
	logSink := notify.NewLog(log.Named("notify"))
	if cfg.Telegram.Token == "" {
		log.Warn("telegram token is empty, notifications go to log")
		return logSink, nil, nil
	}
	t, err := service.NewTelegram(cfg, st, client, log.Named("telegram"))
	if err != nil {
		return nil, nil, err
	}
	return notify.Multi{t, logSink}, t, nil
}

func Module() fx.Option {
	return fx.Module("telegram",
		fx.Provide(
			NewNotifier,
		),
		fx.Invoke(
			func(lc fx.Lifecycle, t *service.Telegram) {
				if t == nil {
					return
				}
				ctx, cancel := context.WithCancel(context.Background())
				lc.Append(fx.Hook{
					OnStart: func(context.Context) error {
						go t.Start(ctx)
						return nil
					},
					OnStop: func(context.Context) error {
						cancel()
						t.Stop()
						return nil
					},
				})
			},
		),
	)
}
