package protection

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"signal_bridge/internal/models"
	"signal_bridge/internal/notify"
	"signal_bridge/internal/store"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fakeOrders struct {
	mu   sync.Mutex
	reqs []models.OrderRequest
	errs []error // по очереди на каждый вызов
}

func (f *fakeOrders) PlaceOrder(_ context.Context, req models.OrderRequest) (models.OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return models.OrderResult{}, err
		}
	}
	return models.OrderResult{OrderID: "1", Symbol: req.Symbol}, nil
}

func (f *fakeOrders) sent() []models.OrderRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.OrderRequest(nil), f.reqs...)
}

type fakeFilters struct{ f models.ContractFilters }

func (f fakeFilters) Get(_ context.Context, symbol string) (models.ContractFilters, error) {
	out := f.f
	out.Symbol = symbol
	return out, nil
}

type mutexLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (l *mutexLocks) Lock(symbol string) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*sync.Mutex)
	}
	m, ok := l.locks[symbol]
	if !ok {
		m = &sync.Mutex{}
		l.locks[symbol] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// stepClock: каждое чтение на секунду позже предыдущего.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type fixture struct {
	m      *Monitor
	orders *fakeOrders
	store  *store.Memory
	notes  *notify.Recorder
	clock  *stepClock
}

func newFixture(t *testing.T, prot models.ProtectionConfig, mode models.PositionMode) fixture {
	t.Helper()
	st := store.NewMemory(models.Settings{}, prot)
	orders := &fakeOrders{}
	notes := &notify.Recorder{}
	filters := fakeFilters{f: models.ContractFilters{StepSize: d("0.001"), MinQty: d("0.001"), TickSize: d("0.01")}}
	m := NewMonitor(orders, filters, st, notes, &mutexLocks{}, mode, zap.NewNop())
	clock := &stepClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	m.now = clock.Now
	return fixture{m: m, orders: orders, store: st, notes: notes, clock: clock}
}

func twoStages() models.ProtectionConfig {
	return models.ProtectionConfig{
		Stages: []models.TPStageConfig{
			{MovePercent: d("5"), SellPercent: d("40")},
			{MovePercent: d("9"), SellPercent: d("50")},
		},
	}
}

func track(t *testing.T, fx fixture, side models.PositionSide, entry, qty string) {
	t.Helper()
	require.NoError(t, fx.m.Track(context.Background(), models.Fill{
		Symbol: "BTC-USDT", Side: side, EntryPrice: d(entry), Quantity: d(qty),
	}))
}

func TestFirstStageOnlyAtSixPercent(t *testing.T) {
	fx := newFixture(t, twoStages(), models.PositionModeHedge)
	track(t, fx, models.SideLong, "100", "1")

	fx.m.OnPrice(context.Background(), "BTC-USDT", d("106"))

	sent := fx.orders.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "0.4", sent[0].Quantity.String())
	assert.Equal(t, models.OrderSell, sent[0].Side)
	assert.Equal(t, models.SideLong, sent[0].PositionSide)
	assert.Equal(t, models.OrderMarket, sent[0].Type)
	assert.True(t, sent[0].ReduceOnly)
	assert.NotEmpty(t, sent[0].ClientOrderID)

	p, ok := fx.m.Position("BTC-USDT", models.SideLong)
	require.True(t, ok)
	assert.Equal(t, "0.6", p.Quantity.String())
	assert.False(t, p.Stages[0].Armed(1))
	assert.True(t, p.Stages[1].Armed(1))

	_, ok = fx.notes.Last("TP1")
	assert.True(t, ok)
}

func TestStageFiresOncePerEpoch(t *testing.T) {
	fx := newFixture(t, twoStages(), models.PositionModeHedge)
	track(t, fx, models.SideLong, "100", "1")

	for _, px := range []string{"106", "106", "105.5", "107"} {
		fx.m.OnPrice(context.Background(), "BTC-USDT", d(px))
	}
	require.Len(t, fx.orders.sent(), 1)

	// второй этап считается от остатка
	fx.m.OnPrice(context.Background(), "BTC-USDT", d("110"))
	sent := fx.orders.sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "0.3", sent[1].Quantity.String())

	fx.m.OnPrice(context.Background(), "BTC-USDT", d("112"))
	assert.Len(t, fx.orders.sent(), 2)
}

func TestEntryChangeRearmsStages(t *testing.T) {
	fx := newFixture(t, twoStages(), models.PositionModeHedge)
	track(t, fx, models.SideLong, "100", "1")
	fx.m.OnPrice(context.Background(), "BTC-USDT", d("106"))
	require.Len(t, fx.orders.sent(), 1)

	// тот же вход: эпоха не меняется
	track(t, fx, models.SideLong, "100", "0.6")
	p, _ := fx.m.Position("BTC-USDT", models.SideLong)
	assert.Equal(t, uint64(1), p.Epoch)

	// усреднение
	track(t, fx, models.SideLong, "105", "1.6")
	p, _ = fx.m.Position("BTC-USDT", models.SideLong)
	assert.Equal(t, uint64(2), p.Epoch)
	assert.True(t, p.Stages[0].Armed(2))
	assert.True(t, p.Stages[1].Armed(2))

	fx.m.OnPrice(context.Background(), "BTC-USDT", d("111.3"))
	sent := fx.orders.sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "0.64", sent[1].Quantity.String())
}

func TestStopLossTakesPriority(t *testing.T) {
	prot := twoStages()
	prot.SLPercent = decimal.NewNullDecimal(d("3"))
	fx := newFixture(t, prot, models.PositionModeOneWay)
	track(t, fx, models.SideShort, "100", "2")

	fx.m.OnPrice(context.Background(), "BTC-USDT", d("103"))

	sent := fx.orders.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "2", sent[0].Quantity.String())
	assert.Equal(t, models.OrderBuy, sent[0].Side)
	assert.Equal(t, models.SideBoth, sent[0].PositionSide)
	assert.Equal(t, "true", sent[0].Params()["reduceOnly"])

	_, ok := fx.m.Position("BTC-USDT", models.SideShort)
	assert.False(t, ok)
	list, err := fx.store.Positions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)

	// терминально: больше ничего не отправляется
	fx.m.OnPrice(context.Background(), "BTC-USDT", d("90"))
	assert.Len(t, fx.orders.sent(), 1)
	_, ok = fx.notes.Last("SL")
	assert.True(t, ok)
}

func TestShortTakeProfit(t *testing.T) {
	fx := newFixture(t, twoStages(), models.PositionModeHedge)
	track(t, fx, models.SideShort, "100", "1")

	fx.m.OnPrice(context.Background(), "BTC-USDT", d("106"))
	assert.Empty(t, fx.orders.sent())

	fx.m.OnPrice(context.Background(), "BTC-USDT", d("94"))
	sent := fx.orders.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, models.OrderBuy, sent[0].Side)
	assert.Equal(t, models.SideShort, sent[0].PositionSide)
	assert.Empty(t, sent[0].Params()["reduceOnly"])
}

func rejected() error {
	return &models.BusinessError{Method: "POST", Path: "/openApi/swap/v2/trade/order", Code: "80001", Message: "insufficient margin"}
}

func TestRejectedStageIsNotRetried(t *testing.T) {
	fx := newFixture(t, twoStages(), models.PositionModeHedge)
	fx.orders.errs = []error{rejected(), rejected(), rejected(), rejected(), rejected()}
	track(t, fx, models.SideLong, "100", "1")

	for i := 0; i < 5; i++ {
		fx.m.OnPrice(context.Background(), "BTC-USDT", d("106"))
	}
	assert.Len(t, fx.orders.sent(), 1)

	p, _ := fx.m.Position("BTC-USDT", models.SideLong)
	assert.False(t, p.Stages[0].Armed(1))
	assert.Equal(t, "1", p.Quantity.String())

	failures := 0
	for _, msg := range fx.notes.Messages() {
		if strings.Contains(msg, "ExchangeBusinessError") {
			assert.Contains(t, msg, "80001 insufficient margin")
			failures++
		}
	}
	assert.Equal(t, 1, failures)

	// новая эпоха снова армирует этап
	fx.orders.errs = nil
	track(t, fx, models.SideLong, "100.5", "1")
	fx.m.OnPrice(context.Background(), "BTC-USDT", d("106"))
	sent := fx.orders.sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "0.4", sent[1].Quantity.String())
}

func TestRejectedStopLossIsNotRetried(t *testing.T) {
	prot := twoStages()
	prot.SLPercent = decimal.NewNullDecimal(d("3"))
	fx := newFixture(t, prot, models.PositionModeHedge)
	fx.orders.errs = []error{rejected(), rejected(), rejected()}
	track(t, fx, models.SideLong, "100", "1")

	for _, px := range []string{"96", "95", "106"} {
		fx.m.OnPrice(context.Background(), "BTC-USDT", d(px))
	}
	assert.Len(t, fx.orders.sent(), 1)

	p, ok := fx.m.Position("BTC-USDT", models.SideLong)
	require.True(t, ok)
	assert.Equal(t, models.PositionStopped, p.State)

	// стоп остаётся в силе после рестарта
	fresh := NewMonitor(fx.orders, fakeFilters{f: models.ContractFilters{StepSize: d("0.001"), MinQty: d("0.001")}},
		fx.store, fx.notes, &mutexLocks{}, models.PositionModeHedge, zap.NewNop())
	require.NoError(t, fresh.Restore(context.Background()))
	fresh.OnPrice(context.Background(), "BTC-USDT", d("96"))
	assert.Len(t, fx.orders.sent(), 1)
}

func TestTransportErrorKeepsStageMark(t *testing.T) {
	fx := newFixture(t, twoStages(), models.PositionModeHedge)
	fx.orders.errs = []error{&models.TransportError{Method: "POST", Path: "/openApi/swap/v2/trade/order", Err: context.DeadlineExceeded}}
	track(t, fx, models.SideLong, "100", "1")

	fx.m.OnPrice(context.Background(), "BTC-USDT", d("106"))
	fx.m.OnPrice(context.Background(), "BTC-USDT", d("106"))

	assert.Len(t, fx.orders.sent(), 1)
	p, _ := fx.m.Position("BTC-USDT", models.SideLong)
	assert.False(t, p.Stages[0].Armed(1))
}

func TestStageBelowMinQtyIsSkipped(t *testing.T) {
	fx := newFixture(t, twoStages(), models.PositionModeHedge)
	track(t, fx, models.SideLong, "100", "0.001")

	fx.m.OnPrice(context.Background(), "BTC-USDT", d("106"))
	assert.Empty(t, fx.orders.sent())
	p, _ := fx.m.Position("BTC-USDT", models.SideLong)
	assert.True(t, p.Stages[0].Armed(1))
}

func TestFullExitIsFlat(t *testing.T) {
	prot := models.ProtectionConfig{Stages: []models.TPStageConfig{{MovePercent: d("1"), SellPercent: d("100")}}}
	fx := newFixture(t, prot, models.PositionModeHedge)
	track(t, fx, models.SideLong, "100", "0.5")

	fx.m.OnPrice(context.Background(), "BTC-USDT", d("101"))
	require.Len(t, fx.orders.sent(), 1)
	assert.Equal(t, "0.5", fx.orders.sent()[0].Quantity.String())
	_, ok := fx.m.Position("BTC-USDT", models.SideLong)
	assert.False(t, ok)
}

func TestNoConfigNoTracking(t *testing.T) {
	fx := newFixture(t, models.ProtectionConfig{}, models.PositionModeHedge)
	track(t, fx, models.SideLong, "100", "1")
	assert.Empty(t, fx.m.Positions())
}

func TestSyncReconcilesWithVenue(t *testing.T) {
	fx := newFixture(t, twoStages(), models.PositionModeHedge)
	track(t, fx, models.SideLong, "100", "1")

	err := fx.m.Sync(context.Background(), []models.ExchangePosition{
		{Symbol: "ETH-USDT", Side: models.SideShort, Quantity: d("3"), EntryPrice: d("2000")},
	}, fx.clock.Now())
	require.NoError(t, err)

	list := fx.m.Positions()
	require.Len(t, list, 1)
	assert.Equal(t, "ETH-USDT:SHORT", list[0].Key())
	assert.Equal(t, []string{"ETH-USDT"}, fx.m.Symbols())
}

func TestRestoreFromStore(t *testing.T) {
	fx := newFixture(t, twoStages(), models.PositionModeHedge)
	track(t, fx, models.SideLong, "100", "1")
	fx.m.OnPrice(context.Background(), "BTC-USDT", d("106"))

	fresh := NewMonitor(fx.orders, fakeFilters{f: models.ContractFilters{StepSize: d("0.001"), MinQty: d("0.001")}},
		fx.store, fx.notes, &mutexLocks{}, models.PositionModeHedge, zap.NewNop())
	require.NoError(t, fresh.Restore(context.Background()))

	p, ok := fresh.Position("BTC-USDT", models.SideLong)
	require.True(t, ok)
	assert.Equal(t, "0.6", p.Quantity.String())
	assert.False(t, p.Stages[0].Armed(1))

	fresh.OnPrice(context.Background(), "BTC-USDT", d("107"))
	assert.Len(t, fx.orders.sent(), 1)
}

func TestConcurrentDuplicateTicksFireOnce(t *testing.T) {
	fx := newFixture(t, twoStages(), models.PositionModeHedge)
	track(t, fx, models.SideLong, "100", "1")

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fx.m.OnPrice(context.Background(), "BTC-USDT", d("106"))
		}()
	}
	wg.Wait()

	assert.Len(t, fx.orders.sent(), 1)
}

func venueLong(qty string) []models.ExchangePosition {
	return []models.ExchangePosition{{Symbol: "BTC-USDT", Side: models.SideLong, Quantity: d(qty), EntryPrice: d("100")}}
}

func TestStaleSnapshotAfterStopLossIsIgnored(t *testing.T) {
	prot := twoStages()
	prot.SLPercent = decimal.NewNullDecimal(d("3"))
	fx := newFixture(t, prot, models.PositionModeHedge)
	track(t, fx, models.SideLong, "100", "1")

	// снимок взят до срабатывания стопа
	fetchedAt := fx.clock.Now()
	fx.m.OnPrice(context.Background(), "BTC-USDT", d("96"))
	require.Len(t, fx.orders.sent(), 1)

	require.NoError(t, fx.m.Sync(context.Background(), venueLong("1"), fetchedAt))
	_, ok := fx.m.Position("BTC-USDT", models.SideLong)
	assert.False(t, ok)

	fx.m.OnPrice(context.Background(), "BTC-USDT", d("96"))
	assert.Len(t, fx.orders.sent(), 1)
}

func TestStaleSnapshotAfterTakeProfitKeepsRemainder(t *testing.T) {
	fx := newFixture(t, twoStages(), models.PositionModeHedge)
	track(t, fx, models.SideLong, "100", "1")

	fetchedAt := fx.clock.Now()
	fx.m.OnPrice(context.Background(), "BTC-USDT", d("106"))

	require.NoError(t, fx.m.Sync(context.Background(), venueLong("1"), fetchedAt))
	p, ok := fx.m.Position("BTC-USDT", models.SideLong)
	require.True(t, ok)
	assert.Equal(t, "0.6", p.Quantity.String())

	fx.m.OnPrice(context.Background(), "BTC-USDT", d("110"))
	sent := fx.orders.sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "0.3", sent[1].Quantity.String())
}

func TestOutOfOrderSnapshotsApplyOnce(t *testing.T) {
	fx := newFixture(t, twoStages(), models.PositionModeHedge)
	track(t, fx, models.SideLong, "100", "1")

	old := fx.clock.Now()
	fx.m.OnPrice(context.Background(), "BTC-USDT", d("106"))

	// свежий снимок уже видит остаток, повтор ничего не меняет
	fresh := fx.clock.Now()
	require.NoError(t, fx.m.Sync(context.Background(), venueLong("0.6"), fresh))
	require.NoError(t, fx.m.Sync(context.Background(), venueLong("0.6"), fresh))

	// запоздавший старый снимок отбрасывается целиком
	require.NoError(t, fx.m.Sync(context.Background(), venueLong("1"), old))
	p, ok := fx.m.Position("BTC-USDT", models.SideLong)
	require.True(t, ok)
	assert.Equal(t, "0.6", p.Quantity.String())
	assert.Equal(t, uint64(1), p.Epoch)

	// и не воскрешает закрытую позицию
	require.NoError(t, fx.m.Sync(context.Background(), nil, fx.clock.Now()))
	_, ok = fx.m.Position("BTC-USDT", models.SideLong)
	require.False(t, ok)
	require.NoError(t, fx.m.Sync(context.Background(), venueLong("1"), old))
	_, ok = fx.m.Position("BTC-USDT", models.SideLong)
	assert.False(t, ok)

	fx.m.OnPrice(context.Background(), "BTC-USDT", d("110"))
	assert.Len(t, fx.orders.sent(), 1)
}

func TestSnapshotDoesNotDropPositionOpenedAfterFetch(t *testing.T) {
	fx := newFixture(t, twoStages(), models.PositionModeHedge)

	fetchedAt := fx.clock.Now()
	track(t, fx, models.SideLong, "100", "1")

	require.NoError(t, fx.m.Sync(context.Background(), nil, fetchedAt))
	_, ok := fx.m.Position("BTC-USDT", models.SideLong)
	assert.True(t, ok)
}
