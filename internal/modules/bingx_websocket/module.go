package bingx_websocket

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"signal_bridge/internal/modules/bingx_websocket/service"
	"signal_bridge/internal/modules/config"
	health "signal_bridge/internal/modules/health/service"
	"signal_bridge/internal/runner/protection"
)

func NewStream(cfg *config.Config, mon *protection.Monitor, state *health.State, log *zap.Logger) *service.Stream {
	return service.NewStream(cfg.BingX.WSURL, mon.Symbols, state, log.Named("ws"))
}

// Module поднимает стрим mark price. Запускается в runner вместе с циклом защиты.
func Module() fx.Option {
	return fx.Module("bingx_websocket",
		fx.Provide(
			NewStream,
			func() chan service.MarkTick {
				// общий буфер цен
				return make(chan service.MarkTick, 1024)
			},
		),
	)
}
