package runner

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"signal_bridge/internal/contract"
	"signal_bridge/internal/dedup"
	bingx "signal_bridge/internal/modules/bingx_client/service"
	ws "signal_bridge/internal/modules/bingx_websocket/service"
	"signal_bridge/internal/modules/config"
	health "signal_bridge/internal/modules/health/service"
	"signal_bridge/internal/notify"
	"signal_bridge/internal/runner/protection"
	"signal_bridge/internal/sizing"
	"signal_bridge/internal/store"
)

func NewGuard(cfg *config.Config) *dedup.Guard {
	return dedup.NewGuard(cfg.Trading.DedupCapacity)
}

func NewSizer(cfg *config.Config) (*sizing.Sizer, error) {
	p, err := sizing.ParsePrecedence(cfg.Trading.Precedence)
	if err != nil {
		return nil, err
	}
	return sizing.New(p), nil
}

func NewMonitor(
	client *bingx.Client,
	filters *contract.Cache,
	st store.Store,
	n notify.Notifier,
	locks *SymbolLocks,
	log *zap.Logger,
) *protection.Monitor {
	return protection.NewMonitor(client, filters, st, n, locks, client.PositionMode(), log.Named("protection"))
}

func NewRouterFx(
	cfg *config.Config,
	client *bingx.Client,
	filters *contract.Cache,
	st store.Store,
	guard *dedup.Guard,
	sizer *sizing.Sizer,
	mon *protection.Monitor,
	n notify.Notifier,
	locks *SymbolLocks,
	log *zap.Logger,
) *Router {
	return NewRouter(client, filters, st, guard, sizer, mon, n, locks, cfg.Trading.DedupWindow, log.Named("router"))
}

type loopParams struct {
	fx.In

	Lc      fx.Lifecycle
	Cfg     *config.Config
	Client  *bingx.Client
	Monitor *protection.Monitor
	Guard   *dedup.Guard
	Stream  *ws.Stream
	Ticks   chan ws.MarkTick
	State   *health.State
	Log     *zap.Logger
}

// runLoops: цены из WS -> воркеры символов -> монитор, периодическая сверка позиций, чистка дедупа.
func runLoops(p loopParams) {
	ctx, cancel := context.WithCancel(context.Background())
	log := p.Log.Named("loops")

	p.Lc.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			if err := p.Monitor.Restore(startCtx); err != nil {
				log.Warn("restore positions", zap.Error(err))
			}

			if p.Cfg.Protection.Enabled {
				go p.Stream.Run(ctx, p.Ticks)
				go newTickFanout(p.Monitor.OnPrice).run(ctx, p.Ticks)
				go syncLoop(ctx, p.Cfg.Protection.PollInterval, p.Client, p.Monitor, p.State, log)
			}
			go sweepLoop(ctx, p.Cfg.Trading.DedupWindow, p.Guard)

			p.State.SetReady(true)
			log.Info("bridge started", zap.Bool("protection", p.Cfg.Protection.Enabled))
			return nil
		},
		OnStop: func(context.Context) error {
			p.State.SetReady(false)
			cancel()
			return nil
		},
	})
}

func syncLoop(ctx context.Context, every time.Duration, client *bingx.Client, mon *protection.Monitor, state *health.State, log *zap.Logger) {
	if every <= 0 {
		every = 30 * time.Second
	}
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		fetchedAt := time.Now()
		list, err := client.Positions(ctx, "")
		if err != nil {
			log.Warn("sync positions", zap.Error(err))
		} else if err := mon.Sync(ctx, list, fetchedAt); err != nil {
			log.Warn("sync monitor", zap.Error(err))
		}
		state.SetProtected(len(mon.Positions()))

		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func sweepLoop(ctx context.Context, window time.Duration, g *dedup.Guard) {
	if window <= 0 {
		window = dedup.DefaultWindow
	}
	t := time.NewTicker(window)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			g.Sweep()
		}
	}
}

func Module() fx.Option {
	return fx.Module("runner",
		fx.Provide(
			NewSymbolLocks,
			NewGuard,
			NewSizer,
			NewMonitor,
			NewRouterFx,
		),
		fx.Invoke(runLoops),
	)
}
