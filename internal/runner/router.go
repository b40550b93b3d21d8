package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"signal_bridge/internal/dedup"
	"signal_bridge/internal/helper"
	"signal_bridge/internal/metrics"
	"signal_bridge/internal/models"
	bingx "signal_bridge/internal/modules/bingx_client/service"
	"signal_bridge/internal/notify"
	"signal_bridge/internal/runner/protection"
	"signal_bridge/internal/signal"
	"signal_bridge/internal/sizing"
	"signal_bridge/internal/store"
)

// Exchange: то, что роутеру нужно от биржи.
type Exchange interface {
	PlaceOrder(ctx context.Context, req models.OrderRequest) (models.OrderResult, error)
	MarkPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	Positions(ctx context.Context, symbol string) ([]models.ExchangePosition, error)
	SetLeverage(ctx context.Context, symbol string, side models.PositionSide, leverage int) error
	SetMarginType(ctx context.Context, symbol, marginType string) error
	PositionMode() models.PositionMode
}

type Filters interface {
	Get(ctx context.Context, symbol string) (models.ContractFilters, error)
}

const (
	StatusDuplicate = "duplicate"
	StatusNotified  = "notified" // авто-торговля выключена
	StatusPlaced    = "placed"
	StatusRejected  = "rejected"
	StatusFailed    = "failed"
)

// Result: итог обработки одного сигнала.
type Result struct {
	Symbol   string           `json:"symbol"`
	Intent   models.Intent    `json:"intent"`
	Status   string           `json:"status"`
	OrderID  string           `json:"order_id,omitempty"`
	Quantity string           `json:"quantity,omitempty"`
	Kind     models.ErrorKind `json:"error_kind,omitempty"`
	Error    string           `json:"error,omitempty"`
}

type accountState struct {
	marginMode string
	leverage   int
}

// Router ведёт сигнал от payload до ордера.
type Router struct {
	ex       Exchange
	filters  Filters
	store    store.Store
	guard    *dedup.Guard
	sizer    *sizing.Sizer
	monitor  *protection.Monitor
	notifier notify.Notifier
	locks    *SymbolLocks
	window   time.Duration
	log      *zap.Logger
	now      func() time.Time

	syncMu sync.Mutex
	synced map[string]accountState // symbol:side -> что уже выставлено на бирже
}

func NewRouter(
	ex Exchange,
	filters Filters,
	st store.Store,
	guard *dedup.Guard,
	sizer *sizing.Sizer,
	monitor *protection.Monitor,
	n notify.Notifier,
	locks *SymbolLocks,
	window time.Duration,
	log *zap.Logger,
) *Router {
	if window <= 0 {
		window = dedup.DefaultWindow
	}
	return &Router{
		ex:       ex,
		filters:  filters,
		store:    st,
		guard:    guard,
		sizer:    sizer,
		monitor:  monitor,
		notifier: n,
		locks:    locks,
		window:   window,
		log:      log,
		now:      time.Now,
		synced:   make(map[string]accountState),
	}
}

// HandleAlert нормализует payload и обрабатывает каждый сигнал.
// Ошибка возвращается только если payload не удалось разобрать.
func (r *Router) HandleAlert(ctx context.Context, raw map[string]any) ([]Result, error) {
	sigs, err := signal.Normalize(raw)
	if err != nil {
		kind := models.KindOf(err)
		metrics.RejectedTotal.WithLabelValues(string(kind)).Inc()
		r.log.Warn("signal rejected", zap.String("kind", string(kind)), zap.Error(err))
		r.notifier.Send(notify.Rejected(kind, err.Error()))
		return nil, err
	}

	out := make([]Result, 0, len(sigs))
	for _, sig := range sigs {
		out = append(out, r.HandleSignal(ctx, sig))
	}
	return out, nil
}

func (r *Router) HandleSignal(ctx context.Context, sig models.Signal) Result {
	res := Result{Symbol: sig.Symbol, Intent: sig.Intent}
	metrics.SignalsTotal.WithLabelValues(string(sig.Intent)).Inc()

	key := dedup.KeyOf(sig)
	if !r.guard.ShouldProcess(key, r.window) {
		metrics.DuplicatesTotal.Inc()
		r.log.Info("duplicate signal", zap.String("key", key.String()))
		res.Status = StatusDuplicate
		return res
	}

	settings, err := r.store.Settings(ctx)
	if err != nil {
		return r.fail(res, sig, fmt.Errorf("load settings: %w", err))
	}

	r.notifier.Send(notify.BuildSignalMessage(r.notice(sig, settings)))

	if !settings.AutoTrade {
		res.Status = StatusNotified
		return res
	}

	unlock := r.locks.Lock(sig.Symbol)
	defer unlock()

	req, order, err := r.execute(ctx, sig, settings)
	if err != nil {
		return r.fail(res, sig, err)
	}

	metrics.OrdersTotal.WithLabelValues(string(req.Side), "ok").Inc()
	r.log.Info("order placed",
		zap.String("symbol", req.Symbol),
		zap.String("side", string(req.Side)),
		zap.String("position_side", string(req.PositionSide)),
		zap.Stringer("qty", req.Quantity),
		zap.String("order_id", order.OrderID),
	)
	r.notifier.Send(notify.OrderPlaced(req, order))

	res.Status = StatusPlaced
	res.OrderID = order.OrderID
	res.Quantity = req.Quantity.String()
	return res
}

// execute выполняется под локом символа.
func (r *Router) execute(ctx context.Context, sig models.Signal, settings models.Settings) (models.OrderRequest, models.OrderResult, error) {
	filters, err := r.filters.Get(ctx, sig.Symbol)
	if err != nil {
		return models.OrderRequest{}, models.OrderResult{}, err
	}

	mode := r.ex.PositionMode()
	mapping := bingx.MapIntent(sig.Intent, mode)
	side := sig.Intent.PositionSide()
	_, lev := r.sizer.Budget(sig, settings)

	var mark decimal.Decimal
	if sig.Intent.IsClose() {
		if !sig.Quantity.Valid {
			qty, err := r.openQuantity(ctx, sig.Symbol, side)
			if err != nil {
				return models.OrderRequest{}, models.OrderResult{}, err
			}
			sig.Quantity = decimal.NewNullDecimal(qty)
		}
	} else {
		r.syncAccount(ctx, sig.Symbol, mapping.PositionSide, settings.MarginMode, lev)
	}

	if sig.OrderType == models.OrderLimit && sig.Price.Valid {
		mark = sig.Price.Decimal
	} else {
		mark, err = r.ex.MarkPrice(ctx, sig.Symbol)
		if err != nil {
			return models.OrderRequest{}, models.OrderResult{}, err
		}
	}

	qty, err := r.sizer.Size(sig, filters, mark, settings)
	if err != nil {
		return models.OrderRequest{}, models.OrderResult{}, err
	}

	req := models.OrderRequest{
		Symbol:        sig.Symbol,
		Side:          mapping.Side,
		PositionSide:  mapping.PositionSide,
		Type:          sig.OrderType,
		Quantity:      qty,
		ReduceOnly:    mapping.ReduceOnly || sig.ReduceOnly,
		ClientOrderID: sig.ClientOrderID,
	}
	if req.Type == "" {
		req.Type = models.OrderMarket
	}
	if req.Type == models.OrderLimit {
		req.Price = decimal.NewNullDecimal(helper.RoundDownToTick(sig.Price.Decimal, filters.TickSize))
		req.TimeInForce = sig.TimeInForce
		if req.TimeInForce == "" {
			req.TimeInForce = settings.TimeInForce
		}
	}

	order, err := r.ex.PlaceOrder(ctx, req)
	if err != nil {
		return req, models.OrderResult{}, err
	}

	r.refreshPosition(ctx, sig.Symbol, side)
	return req, order, nil
}

// openQuantity: размер открытой позиции: из монитора, иначе с биржи.
func (r *Router) openQuantity(ctx context.Context, symbol string, side models.PositionSide) (decimal.Decimal, error) {
	if p, ok := r.monitor.Position(symbol, side); ok && p.Quantity.IsPositive() {
		return p.Quantity, nil
	}
	list, err := r.ex.Positions(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	for _, p := range list {
		if p.Symbol == symbol && p.Side == side {
			return p.Quantity, nil
		}
	}
	return decimal.Zero, &models.ValidationError{Symbol: symbol, Reason: fmt.Sprintf("no open %s position to close", side)}
}

// syncAccount выставляет режим маржи и плечо, если они ещё не совпадают. Ошибки не фатальны.
func (r *Router) syncAccount(ctx context.Context, symbol string, posSide models.PositionSide, marginMode string, lev int) {
	key := helper.PositionKey(symbol, string(posSide))
	want := accountState{marginMode: marginMode, leverage: lev}

	r.syncMu.Lock()
	have, ok := r.synced[key]
	r.syncMu.Unlock()
	if ok && have == want {
		return
	}

	synced := true
	if marginMode != "" {
		if err := r.ex.SetMarginType(ctx, symbol, marginMode); err != nil {
			synced = false
			r.log.Warn("sync margin type", zap.String("symbol", symbol), zap.Error(err))
		}
	}
	if lev > 0 {
		if err := r.ex.SetLeverage(ctx, symbol, posSide, lev); err != nil {
			synced = false
			r.log.Warn("sync leverage", zap.String("symbol", symbol), zap.Error(err))
		}
	}

	r.syncMu.Lock()
	if synced {
		r.synced[key] = want
	} else {
		delete(r.synced, key)
	}
	r.syncMu.Unlock()
}

// refreshPosition подтягивает позицию с биржи в монитор (средняя цена входа берётся оттуда).
func (r *Router) refreshPosition(ctx context.Context, symbol string, side models.PositionSide) {
	list, err := r.ex.Positions(ctx, symbol)
	if err != nil {
		r.log.Warn("refresh position", zap.String("symbol", symbol), zap.Error(err))
		return
	}
	fill := models.Fill{Symbol: symbol, Side: side, Quantity: decimal.Zero}
	for _, p := range list {
		if p.Symbol == symbol && p.Side == side {
			fill.EntryPrice = p.EntryPrice
			fill.Quantity = p.Quantity
			break
		}
	}
	if err := r.monitor.Track(ctx, fill); err != nil {
		r.log.Warn("track position", zap.String("symbol", symbol), zap.Error(err))
	}
}

func (r *Router) fail(res Result, sig models.Signal, err error) Result {
	kind := models.KindOf(err)
	res.Kind = kind
	res.Error = bingx.Describe(err)

	switch {
	case errors.Is(err, models.ErrExchangeBusiness), errors.Is(err, models.ErrExchangeTransport):
		res.Status = StatusFailed
		metrics.OrdersTotal.WithLabelValues(string(sig.Intent.OrderSide()), string(kind)).Inc()
	default:
		res.Status = StatusRejected
		metrics.RejectedTotal.WithLabelValues(string(kind)).Inc()
	}

	r.log.Warn("signal failed",
		zap.String("symbol", sig.Symbol),
		zap.String("intent", string(sig.Intent)),
		zap.String("kind", string(kind)),
		zap.Error(err),
	)
	r.notifier.Send(notify.OrderFailed(sig.Symbol, sig.Intent, kind, res.Error))
	return res
}

func (r *Router) notice(sig models.Signal, settings models.Settings) models.SignalNotice {
	n := models.SignalNotice{
		Symbol:       sig.Symbol,
		Intent:       sig.Intent,
		OrderType:    sig.OrderType,
		PositionSide: sig.Intent.PositionSide(),
		AutoTrade:    settings.AutoTrade,
		ReduceOnly:   sig.ReduceOnly || sig.Intent.IsClose(),
		Timestamp:    r.now(),
	}
	switch {
	case sig.Quantity.Valid:
		n.Quantity = sig.Quantity
	case !sig.Intent.IsClose():
		margin, lev := r.sizer.Budget(sig, settings)
		n.MarginUSDT = decimal.NewNullDecimal(margin)
		n.Leverage = lev
	}
	if n.Leverage == 0 && sig.Leverage > 0 {
		n.Leverage = sig.Leverage
	}
	return n
}
