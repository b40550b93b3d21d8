package bingx_client

import (
	"net/http"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"signal_bridge/internal/contract"
	"signal_bridge/internal/models"
	"signal_bridge/internal/modules/bingx_client/service"
	"signal_bridge/internal/modules/config"
)

func NewClient(cfg *config.Config, log *zap.Logger) *service.Client {
	b := cfg.BingX
	return service.New(b.APIKey, b.APISecret,
		service.WithBaseURL(b.BaseURL),
		service.WithRecvWindow(b.RecvWindow),
		service.WithRetry(b.MaxAttempts, b.RetryBaseDelay),
		service.WithPositionMode(models.PositionMode(b.PositionMode)),
		service.WithHTTPClient(&http.Client{}),
		service.WithLogger(log.Named("bingx")),
	)
}

func NewFiltersCache(cfg *config.Config, c *service.Client, log *zap.Logger) *contract.Cache {
	return contract.NewCache(c, cfg.BingX.FiltersTTL, log.Named("filters"))
}

func Module() fx.Option {
	return fx.Module("bingx_client",
		fx.Provide(
			NewClient,
			NewFiltersCache,
		),
	)
}
