package webhook

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"signal_bridge/internal/modules/config"
	"signal_bridge/internal/modules/health"
	healthsvc "signal_bridge/internal/modules/health/service"
	"signal_bridge/internal/runner"
)

func NewRoute(cfg *config.Config, r *runner.Router, state *healthsvc.State, log *zap.Logger) health.Route {
	if cfg.Webhook.Secret == "" {
		log.Warn("webhook secret is empty, requests are not authenticated")
	}
	h := NewHandler(cfg.Webhook.Secret, r, log.Named("webhook"))
	h.OnAccepted = state.AlertSeen
	return health.Route{Pattern: cfg.Webhook.Path, Handler: h}
}

func Module() fx.Option {
	return fx.Module("webhook",
		fx.Provide(
			fx.Annotate(NewRoute, fx.ResultTags(`group:"http_routes"`)),
		),
	)
}
