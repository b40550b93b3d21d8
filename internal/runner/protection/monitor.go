package protection

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"signal_bridge/internal/helper"
	"signal_bridge/internal/metrics"
	"signal_bridge/internal/models"
	bingx "signal_bridge/internal/modules/bingx_client/service"
	"signal_bridge/internal/notify"
	"signal_bridge/internal/store"
)

type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req models.OrderRequest) (models.OrderResult, error)
}

type FiltersSource interface {
	Get(ctx context.Context, symbol string) (models.ContractFilters, error)
}

// Locker: сериализация по символу, общая с обработкой сигналов.
type Locker interface {
	Lock(symbol string) (unlock func())
}

// Monitor ведёт TP/SL по открытым позициям.
// Состояние позиции меняется только под локом её символа.
type Monitor struct {
	orders   OrderPlacer
	filters  FiltersSource
	store    store.Store
	notifier notify.Notifier
	locks    Locker
	mode     models.PositionMode
	log      *zap.Logger
	now      func() time.Time

	mu        sync.RWMutex
	positions map[string]models.Position // key = symbol:side
	touched   map[string]time.Time       // последнее изменение ключа, включая удаление
	syncedAt  time.Time                  // время выборки последнего принятого снимка биржи
}

func NewMonitor(
	orders OrderPlacer,
	filters FiltersSource,
	st store.Store,
	n notify.Notifier,
	locks Locker,
	mode models.PositionMode,
	log *zap.Logger,
) *Monitor {
	return &Monitor{
		orders:    orders,
		filters:   filters,
		store:     st,
		notifier:  n,
		locks:     locks,
		mode:      mode,
		log:       log,
		now:       time.Now,
		positions: make(map[string]models.Position),
		touched:   make(map[string]time.Time),
	}
}

// Restore поднимает позиции из стора. STOPPED тоже: стоп уже отправлялся,
// повторно он не сработает до новой эпохи.
func (m *Monitor) Restore(ctx context.Context) error {
	list, err := m.store.Positions(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range list {
		if p.State == models.PositionFlat {
			continue
		}
		m.positions[p.Key()] = p.Clone()
	}
	m.log.Info("protection restored", zap.Int("positions", len(m.positions)))
	return nil
}

// Positions: копия активных позиций, по ключу.
func (m *Monitor) Positions() []models.Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

func (m *Monitor) Position(symbol string, side models.PositionSide) (models.Position, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.positions[helper.PositionKey(symbol, string(side))]
	if !ok {
		return models.Position{}, false
	}
	return p.Clone(), true
}

// Symbols: символы, по которым нужны цены.
func (m *Monitor) Symbols() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]struct{}, len(m.positions))
	out := make([]string, 0, len(m.positions))
	for _, p := range m.positions {
		if _, ok := seen[p.Symbol]; ok {
			continue
		}
		seen[p.Symbol] = struct{}{}
		out = append(out, p.Symbol)
	}
	sort.Strings(out)
	return out
}

// Track применяет исполнение к позиции. Вызывать под локом символа.
// Новая позиция начинает с эпохи 1, смена цены входа увеличивает эпоху.
func (m *Monitor) Track(ctx context.Context, fill models.Fill) error {
	key := helper.PositionKey(fill.Symbol, string(fill.Side))

	if !fill.Quantity.IsPositive() {
		return m.drop(ctx, key, models.PositionFlat)
	}

	p, ok := m.get(key)
	switch {
	case !ok:
		cfg, err := m.store.Protection(ctx, fill.Symbol)
		if err != nil {
			return err
		}
		if cfg.Empty() {
			return nil
		}
		p = models.Position{
			Symbol:     fill.Symbol,
			Side:       fill.Side,
			EntryPrice: fill.EntryPrice,
			Epoch:      1,
			State:      models.PositionActive,
		}
		applyConfig(&p, cfg)
		m.log.Info("protection armed",
			zap.String("key", key),
			zap.Stringer("entry", fill.EntryPrice),
			zap.Int("stages", len(p.Stages)),
		)
	case !p.EntryPrice.Equal(fill.EntryPrice):
		cfg, err := m.store.Protection(ctx, fill.Symbol)
		if err != nil {
			return err
		}
		p.EntryPrice = fill.EntryPrice
		p.Epoch++
		p.State = models.PositionActive
		applyConfig(&p, cfg)
		m.log.Info("protection re-armed",
			zap.String("key", key),
			zap.Stringer("entry", fill.EntryPrice),
			zap.Uint64("epoch", p.Epoch),
		)
	}

	p.Quantity = fill.Quantity
	return m.put(ctx, p)
}

// Sync сверяет позиции с биржей: отсутствующие на бирже становятся FLAT.
// venue должен содержать все открытые позиции аккаунта, fetchedAt - момент
// запроса снимка. Ключи, изменённые после fetchedAt, снимок не трогает,
// снимок старше уже принятого отбрасывается целиком.
func (m *Monitor) Sync(ctx context.Context, venue []models.ExchangePosition, fetchedAt time.Time) error {
	m.mu.Lock()
	if fetchedAt.Before(m.syncedAt) {
		m.mu.Unlock()
		m.log.Info("stale venue snapshot skipped", zap.Time("fetched_at", fetchedAt))
		return nil
	}
	m.syncedAt = fetchedAt
	m.mu.Unlock()

	seen := make(map[string]struct{}, len(venue))
	var errs []error

	for _, ep := range venue {
		key := helper.PositionKey(ep.Symbol, string(ep.Side))
		seen[key] = struct{}{}

		unlock := m.locks.Lock(ep.Symbol)
		if m.changedSince(key, fetchedAt) {
			unlock()
			continue
		}
		err := m.Track(ctx, models.Fill{
			Symbol:     ep.Symbol,
			Side:       ep.Side,
			EntryPrice: ep.EntryPrice,
			Quantity:   ep.Quantity,
		})
		unlock()
		if err != nil {
			errs = append(errs, err)
		}
	}

	for _, p := range m.Positions() {
		if _, ok := seen[p.Key()]; ok {
			continue
		}
		unlock := m.locks.Lock(p.Symbol)
		if m.changedSince(p.Key(), fetchedAt) {
			unlock()
			continue
		}
		err := m.drop(ctx, p.Key(), models.PositionFlat)
		unlock()
		if err != nil {
			errs = append(errs, err)
		}
	}

	m.forgetBefore(fetchedAt)
	return errors.Join(errs...)
}

func (m *Monitor) changedSince(key string, t time.Time) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	at, ok := m.touched[key]
	return ok && !at.Before(t)
}

// forgetBefore чистит отметки старше t: более ранние снимки всё равно не принимаются.
func (m *Monitor) forgetBefore(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, at := range m.touched {
		if at.Before(t) {
			delete(m.touched, key)
		}
	}
}

// OnPrice прогоняет правило переходов для всех позиций символа.
func (m *Monitor) OnPrice(ctx context.Context, symbol string, mark decimal.Decimal) {
	if !mark.IsPositive() {
		return
	}
	unlock := m.locks.Lock(symbol)
	defer unlock()

	for _, side := range []models.PositionSide{models.SideLong, models.SideShort} {
		key := helper.PositionKey(symbol, string(side))
		if _, ok := m.get(key); !ok {
			continue
		}
		if err := m.evaluate(ctx, key, mark); err != nil {
			m.log.Warn("protection evaluate", zap.String("key", key), zap.Error(err))
		}
	}
}

func (m *Monitor) evaluate(ctx context.Context, key string, mark decimal.Decimal) error {
	p, ok := m.get(key)
	if !ok || p.State != models.PositionActive {
		return nil
	}

	move := helper.PercentMove(p.EntryPrice, mark, p.Side == models.SideShort)

	// стоп первым: терминален и отменяет TP на этом тике
	if p.SLPercent.Valid && p.SLPercent.Decimal.IsPositive() && move.Neg().GreaterThanOrEqual(p.SLPercent.Decimal) {
		return m.stopLoss(ctx, p, move)
	}

	f, err := m.filters.Get(ctx, p.Symbol)
	if err != nil {
		return err
	}

	for i := range p.Stages {
		stage := p.Stages[i]
		if !stage.Armed(p.Epoch) || move.LessThan(stage.MovePercent) {
			continue
		}

		qty := helper.FloorToStep(helper.Percent(p.Quantity, stage.SellPercent), f.StepSize)
		if qty.IsZero() || qty.LessThan(f.MinQty) {
			m.log.Info("tp stage below min qty",
				zap.String("key", key),
				zap.Int("stage", i+1),
				zap.Stringer("qty", qty),
			)
			continue
		}
		// пыль ниже minQty не оставляем
		if rest := p.Quantity.Sub(qty); rest.IsPositive() && rest.LessThan(f.MinQty) {
			qty = p.Quantity
		}

		// метка до отправки: повторный или запоздавший тик этот этап уже не увидит
		epoch := p.Epoch
		p.Stages[i].TriggeredAtEpoch = &epoch
		if err := m.put(ctx, p); err != nil {
			return err
		}

		// при ошибке метка остаётся: отклонённый ордер не повторяется,
		// этап снова армирует только новая эпоха
		res, err := m.submitClose(ctx, p, qty)
		if err != nil {
			metrics.ProtectionTriggersTotal.WithLabelValues("tp_failed").Inc()
			m.notifier.Send(notify.OrderFailed(p.Symbol, p.Side.CloseIntent(), models.KindOf(err), bingx.Describe(err)))
			return err
		}

		metrics.ProtectionTriggersTotal.WithLabelValues("tp").Inc()
		m.log.Info("tp stage fired",
			zap.String("key", key),
			zap.Int("stage", i+1),
			zap.Uint64("epoch", epoch),
			zap.Stringer("qty", qty),
			zap.String("order_id", res.OrderID),
		)
		m.notifier.Send(notify.TakeProfit(p, i, move, qty))

		p.Quantity = p.Quantity.Sub(qty)
		if !p.Quantity.IsPositive() {
			return m.drop(ctx, key, models.PositionFlat)
		}
		if err := m.put(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (m *Monitor) stopLoss(ctx context.Context, p models.Position, move decimal.Decimal) error {
	p.State = models.PositionStopped
	if err := m.put(ctx, p); err != nil {
		return err
	}

	// при ошибке позиция остаётся STOPPED до новой эпохи или сверки с биржей
	_, err := m.submitClose(ctx, p, p.Quantity)
	if err != nil {
		metrics.ProtectionTriggersTotal.WithLabelValues("sl_failed").Inc()
		m.notifier.Send(notify.OrderFailed(p.Symbol, p.Side.CloseIntent(), models.KindOf(err), bingx.Describe(err)))
		return err
	}

	metrics.ProtectionTriggersTotal.WithLabelValues("sl").Inc()
	m.log.Info("stop loss fired", zap.String("key", p.Key()), zap.Stringer("move", move))
	m.notifier.Send(notify.StopLoss(p, move, p.Quantity))
	return m.drop(ctx, p.Key(), models.PositionStopped)
}

func (m *Monitor) submitClose(ctx context.Context, p models.Position, qty decimal.Decimal) (models.OrderResult, error) {
	mp := bingx.CloseMapping(p.Side, m.mode)
	return m.orders.PlaceOrder(ctx, models.OrderRequest{
		Symbol:        p.Symbol,
		Side:          mp.Side,
		PositionSide:  mp.PositionSide,
		Type:          models.OrderMarket,
		Quantity:      qty,
		ReduceOnly:    true,
		ClientOrderID: uuid.NewString(),
	})
}

func (m *Monitor) get(key string) (models.Position, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.positions[key]
	if !ok {
		return models.Position{}, false
	}
	return p.Clone(), true
}

func (m *Monitor) put(ctx context.Context, p models.Position) error {
	p.UpdatedAt = m.now()
	m.mu.Lock()
	m.positions[p.Key()] = p.Clone()
	m.touched[p.Key()] = p.UpdatedAt
	m.mu.Unlock()
	return m.store.SavePosition(ctx, p)
}

// drop: терминальный переход, запись позиции удаляется.
func (m *Monitor) drop(ctx context.Context, key string, state models.PositionState) error {
	m.mu.Lock()
	_, ok := m.positions[key]
	if ok {
		delete(m.positions, key)
		m.touched[key] = m.now()
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}
	m.log.Info("position closed", zap.String("key", key), zap.String("state", string(state)))
	return m.store.DeletePosition(ctx, key)
}

// applyConfig переносит TP/SL из конфига; метки эпох сохраняются по индексу.
func applyConfig(p *models.Position, cfg models.ProtectionConfig) {
	stages := make([]models.TPStage, len(cfg.Stages))
	for i, s := range cfg.Stages {
		stages[i] = models.TPStage{MovePercent: s.MovePercent, SellPercent: s.SellPercent}
		if i < len(p.Stages) {
			stages[i].TriggeredAtEpoch = p.Stages[i].TriggeredAtEpoch
		}
	}
	p.Stages = stages
	p.SLPercent = cfg.SLPercent
}
