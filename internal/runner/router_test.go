package runner

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"signal_bridge/internal/dedup"
	"signal_bridge/internal/models"
	"signal_bridge/internal/notify"
	"signal_bridge/internal/runner/protection"
	"signal_bridge/internal/sizing"
	"signal_bridge/internal/store"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fakeExchange struct {
	mu        sync.Mutex
	mode      models.PositionMode
	mark      decimal.Decimal
	positions []models.ExchangePosition
	placeErr  error
	orders    []models.OrderRequest
	leverage  int
	margin    int
}

func (f *fakeExchange) PlaceOrder(_ context.Context, req models.OrderRequest) (models.OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, req)
	if f.placeErr != nil {
		return models.OrderResult{}, f.placeErr
	}
	return models.OrderResult{OrderID: "42", Symbol: req.Symbol}, nil
}

func (f *fakeExchange) MarkPrice(context.Context, string) (decimal.Decimal, error) { return f.mark, nil }

func (f *fakeExchange) Positions(_ context.Context, symbol string) ([]models.ExchangePosition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ExchangePosition
	for _, p := range f.positions {
		if symbol == "" || p.Symbol == symbol {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeExchange) SetLeverage(context.Context, string, models.PositionSide, int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leverage++
	return nil
}

func (f *fakeExchange) SetMarginType(context.Context, string, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.margin++
	return nil
}

func (f *fakeExchange) PositionMode() models.PositionMode { return f.mode }

func (f *fakeExchange) sent() []models.OrderRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.OrderRequest(nil), f.orders...)
}

type staticFilters struct{}

func (staticFilters) Get(_ context.Context, symbol string) (models.ContractFilters, error) {
	return models.ContractFilters{Symbol: symbol, StepSize: d("0.001"), MinQty: d("0.001"), TickSize: d("0.1")}, nil
}

type routerFixture struct {
	r     *Router
	ex    *fakeExchange
	notes *notify.Recorder
	mon   *protection.Monitor
}

func newRouter(t *testing.T, auto bool, mode models.PositionMode) routerFixture {
	t.Helper()
	settings := models.Settings{MarginUSDT: d("100"), Leverage: 10, MarginMode: "ISOLATED", TimeInForce: "GTC", AutoTrade: auto}
	prot := models.ProtectionConfig{Stages: []models.TPStageConfig{{MovePercent: d("5"), SellPercent: d("40")}}}
	st := store.NewMemory(settings, prot)
	ex := &fakeExchange{mode: mode, mark: d("50000")}
	notes := &notify.Recorder{}
	locks := NewSymbolLocks()
	mon := protection.NewMonitor(ex, staticFilters{}, st, notes, locks, mode, zap.NewNop())
	r := NewRouter(ex, staticFilters{}, st, dedup.NewGuard(0), sizing.New(sizing.PreferDefaults), mon, notes, locks, 0, zap.NewNop())
	return routerFixture{r: r, ex: ex, notes: notes, mon: mon}
}

func TestDuplicateAlertPlacesOneOrder(t *testing.T) {
	fx := newRouter(t, true, models.PositionModeHedge)
	alert := map[string]any{"symbol": "BTCUSDT", "action": "LONG_OPEN", "bar_time": "1700000000"}

	first, err := fx.r.HandleAlert(context.Background(), alert)
	require.NoError(t, err)
	second, err := fx.r.HandleAlert(context.Background(), alert)
	require.NoError(t, err)

	require.Len(t, first, 1)
	assert.Equal(t, StatusPlaced, first[0].Status)
	assert.Equal(t, "0.02", first[0].Quantity)
	require.Len(t, second, 1)
	assert.Equal(t, StatusDuplicate, second[0].Status)
	assert.Len(t, fx.ex.sent(), 1)

	// дубликат не уведомляет
	signals := 0
	for _, m := range fx.notes.Messages() {
		if strings.Contains(m, "SIGNAL - Buy") {
			signals++
		}
	}
	assert.Equal(t, 1, signals)
}

func TestConcurrentDuplicatesPlaceOneOrder(t *testing.T) {
	fx := newRouter(t, true, models.PositionModeHedge)
	alert := map[string]any{"symbol": "BTC-USDT", "action": "buy", "alert_id": "a-1"}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = fx.r.HandleAlert(context.Background(), alert)
		}()
	}
	wg.Wait()
	assert.Len(t, fx.ex.sent(), 1)
}

func TestOpenLongSizesAndArmsProtection(t *testing.T) {
	fx := newRouter(t, true, models.PositionModeHedge)
	fx.ex.positions = []models.ExchangePosition{
		{Symbol: "BTC-USDT", Side: models.SideLong, Quantity: d("0.02"), EntryPrice: d("50010")},
	}

	res, err := fx.r.HandleAlert(context.Background(), map[string]any{"symbol": "BTC-USDT", "action": "LONG_OPEN", "bar_time": "t1"})
	require.NoError(t, err)
	require.Equal(t, StatusPlaced, res[0].Status)
	assert.Equal(t, "42", res[0].OrderID)

	sent := fx.ex.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, models.OrderBuy, sent[0].Side)
	assert.Equal(t, models.SideLong, sent[0].PositionSide)
	assert.Equal(t, "0.02", sent[0].Quantity.String())
	assert.False(t, sent[0].ReduceOnly)

	p, ok := fx.mon.Position("BTC-USDT", models.SideLong)
	require.True(t, ok)
	assert.Equal(t, "50010", p.EntryPrice.String())
	assert.Equal(t, uint64(1), p.Epoch)

	// плечо и маржа выставляются один раз
	_, err = fx.r.HandleAlert(context.Background(), map[string]any{"symbol": "BTC-USDT", "action": "LONG_OPEN", "bar_time": "t2"})
	require.NoError(t, err)
	assert.Equal(t, 1, fx.ex.leverage)
	assert.Equal(t, 1, fx.ex.margin)

	_, ok = fx.notes.Last("Order placed")
	assert.True(t, ok)
}

func TestCloseWithoutQuantityClosesVenuePosition(t *testing.T) {
	fx := newRouter(t, true, models.PositionModeOneWay)
	fx.ex.positions = []models.ExchangePosition{
		{Symbol: "ETH-USDT", Side: models.SideShort, Quantity: d("1.5"), EntryPrice: d("2000")},
	}

	res, err := fx.r.HandleAlert(context.Background(), map[string]any{"symbol": "ETHUSDT", "action": "SHORT_CLOSE", "alert_id": "c1"})
	require.NoError(t, err)
	require.Equal(t, StatusPlaced, res[0].Status)

	sent := fx.ex.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, models.OrderBuy, sent[0].Side)
	assert.Equal(t, models.SideBoth, sent[0].PositionSide)
	assert.Equal(t, "1.5", sent[0].Quantity.String())
	assert.Equal(t, "true", sent[0].Params()["reduceOnly"])
	assert.Zero(t, fx.ex.leverage)
}

func TestCloseWithoutPositionIsRejected(t *testing.T) {
	fx := newRouter(t, true, models.PositionModeHedge)

	res, err := fx.r.HandleAlert(context.Background(), map[string]any{"symbol": "ETH-USDT", "action": "LONG_CLOSE", "alert_id": "c2"})
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, res[0].Status)
	assert.Equal(t, models.KindValid, res[0].Kind)
	assert.Empty(t, fx.ex.sent())
}

func TestBusinessErrorSurfacedVerbatim(t *testing.T) {
	fx := newRouter(t, true, models.PositionModeHedge)
	fx.ex.placeErr = &models.BusinessError{
		Method: "POST", URL: "https://open-api.bingx.com/openApi/swap/v2/trade/order",
		Path: "/openApi/swap/v2/trade/order", Code: "80001", Message: "insufficient margin",
	}

	res, err := fx.r.HandleAlert(context.Background(), map[string]any{"symbol": "BTC-USDT", "action": "LONG_OPEN", "alert_id": "b1"})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, res[0].Status)
	assert.Equal(t, models.KindBusiness, res[0].Kind)
	assert.Contains(t, res[0].Error, "80001 insufficient margin")
	assert.Len(t, fx.ex.sent(), 1)

	msg, ok := fx.notes.Last("failed")
	require.True(t, ok)
	assert.Contains(t, msg, "insufficient margin")
}

func TestSizingErrorMentionsBudget(t *testing.T) {
	fx := newRouter(t, true, models.PositionModeHedge)
	fx.ex.mark = d("10000000")

	res, err := fx.r.HandleAlert(context.Background(), map[string]any{"symbol": "BTC-USDT", "action": "LONG_OPEN", "alert_id": "s1"})
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, res[0].Status)
	assert.Equal(t, models.KindSizing, res[0].Kind)
	assert.Contains(t, res[0].Error, "increase margin")
	assert.Empty(t, fx.ex.sent())
}

func TestAutoTradeOffOnlyNotifies(t *testing.T) {
	fx := newRouter(t, false, models.PositionModeHedge)

	res, err := fx.r.HandleAlert(context.Background(), map[string]any{"symbol": "BTC-USDT", "action": "SHORT_OPEN", "alert_id": "n1"})
	require.NoError(t, err)
	assert.Equal(t, StatusNotified, res[0].Status)
	assert.Empty(t, fx.ex.sent())

	msg, ok := fx.notes.Last("SIGNAL - Sell")
	require.True(t, ok)
	assert.Contains(t, msg, "Auto-trade: Off")
	assert.Contains(t, msg, "Margin: 100 USDT")
	assert.Contains(t, msg, "Leverage: 10x")
}

func TestSchemaErrorRejectsAlert(t *testing.T) {
	fx := newRouter(t, true, models.PositionModeHedge)

	_, err := fx.r.HandleAlert(context.Background(), map[string]any{"action": "LONG_OPEN"})
	require.ErrorIs(t, err, models.ErrSchema)
	assert.Empty(t, fx.ex.sent())

	_, ok := fx.notes.Last("SchemaError")
	assert.True(t, ok)
}

func TestLimitOrderUsesTickAndTIF(t *testing.T) {
	fx := newRouter(t, true, models.PositionModeHedge)

	res, err := fx.r.HandleAlert(context.Background(), map[string]any{
		"symbol": "BTC-USDT", "action": "LONG_OPEN", "alert_id": "l1",
		"type": "limit", "price": "40000.17", "qty": "0.0105",
	})
	require.NoError(t, err)
	require.Equal(t, StatusPlaced, res[0].Status)

	sent := fx.ex.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, models.OrderLimit, sent[0].Type)
	assert.Equal(t, "40000.1", sent[0].Price.Decimal.String())
	assert.Equal(t, "GTC", sent[0].TimeInForce)
	assert.Equal(t, "0.01", sent[0].Quantity.String())
}
