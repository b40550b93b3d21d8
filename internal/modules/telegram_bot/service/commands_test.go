package service

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal_bridge/internal/models"
	"signal_bridge/internal/store"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestParseCommand(t *testing.T) {
	tests := []struct {
		text string
		want Command
		ok   bool
	}{
		{"/margin 25", Command{Name: "margin", Args: []string{"25"}}, true},
		{"/Status@bridge_bot", Command{Name: "status", Args: []string{}}, true},
		{"/tp BTCUSDT 5:40,9:50", Command{Name: "tp", Symbol: "BTC-USDT", Args: []string{"5:40,9:50"}}, true},
		{"/sl off", Command{Name: "sl", Args: []string{"off"}}, true},
		{"hello", Command{}, false},
		{"", Command{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, ok := ParseCommand(tt.text)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want.Name, got.Name)
				assert.Equal(t, tt.want.Symbol, got.Symbol)
				assert.ElementsMatch(t, tt.want.Args, got.Args)
			}
		})
	}
}

func TestApplyCommand(t *testing.T) {
	base := models.Settings{MarginUSDT: d("10"), Leverage: 5, MarginMode: "ISOLATED", TimeInForce: "GTC"}

	tests := []struct {
		text    string
		wantErr bool
		check   func(t *testing.T, ch Change)
	}{
		{"/margin 25.5", false, func(t *testing.T, ch Change) {
			assert.True(t, ch.SettingsChanged)
			assert.Equal(t, "25.5", ch.Settings.MarginUSDT.String())
		}},
		{"/margin -1", true, nil},
		{"/leverage 20x", false, func(t *testing.T, ch Change) { assert.Equal(t, 20, ch.Settings.Leverage) }},
		{"/leverage 500", true, nil},
		{"/mode cross", false, func(t *testing.T, ch Change) { assert.Equal(t, "CROSSED", ch.Settings.MarginMode) }},
		{"/tif postonly", false, func(t *testing.T, ch Change) { assert.Equal(t, "PostOnly", ch.Settings.TimeInForce) }},
		{"/tif day", true, nil},
		{"/auto on", false, func(t *testing.T, ch Change) { assert.True(t, ch.Settings.AutoTrade) }},
		{"/tp 5:40,9:50", false, func(t *testing.T, ch Change) {
			assert.True(t, ch.ProtectionChanged)
			assert.False(t, ch.SettingsChanged)
			require.Len(t, ch.Protection.Stages, 2)
			assert.Equal(t, "9", ch.Protection.Stages[1].MovePercent.String())
			assert.Equal(t, "50", ch.Protection.Stages[1].SellPercent.String())
		}},
		{"/tp 5:140", true, nil},
		{"/tp off", false, func(t *testing.T, ch Change) { assert.Empty(t, ch.Protection.Stages) }},
		{"/sl 2.5%", false, func(t *testing.T, ch Change) { assert.Equal(t, "2.5", ch.Protection.SLPercent.Decimal.String()) }},
		{"/sl off", false, func(t *testing.T, ch Change) { assert.False(t, ch.Protection.SLPercent.Valid) }},
		{"/help", false, func(t *testing.T, ch Change) { assert.Contains(t, ch.Reply, "/margin") }},
		{"/unknown", true, nil},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			cmd, ok := ParseCommand(tt.text)
			require.True(t, ok)
			ch, err := ApplyCommand(cmd, base, models.ProtectionConfig{})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, ch)
		})
	}
}

func TestExecutePersistsToStore(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory(models.Settings{MarginUSDT: d("10"), Leverage: 5}, models.ProtectionConfig{})

	assert.Contains(t, Execute(ctx, st, nil, "/leverage 7"), "7x")
	assert.Contains(t, Execute(ctx, st, nil, "/tp ETHUSDT 3:100"), "ETH-USDT")
	assert.Contains(t, Execute(ctx, st, nil, "/leverage zero"), "usage")

	s, err := st.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, s.Leverage)

	eth, err := st.Protection(ctx, "ETH-USDT")
	require.NoError(t, err)
	require.Len(t, eth.Stages, 1)
	glb, err := st.Protection(ctx, "BTC-USDT")
	require.NoError(t, err)
	assert.Empty(t, glb.Stages)

	status := Execute(ctx, st, nil, "/status")
	assert.Contains(t, status, "Leverage: 7x")
	assert.Contains(t, status, "No protected positions")
}

type fakeAccount struct {
	orders []models.OpenOrder
	symbol string
	err    error
}

func (f *fakeAccount) Balance(context.Context) (models.Balance, error) {
	return models.Balance{Asset: "USDT", Balance: d("120.5"), Equity: d("118"), AvailableMargin: d("90")}, f.err
}

func (f *fakeAccount) OpenOrders(_ context.Context, symbol string) ([]models.OpenOrder, error) {
	f.symbol = symbol
	return f.orders, f.err
}

func TestExecuteAccountCommands(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory(models.Settings{}, models.ProtectionConfig{})

	assert.Contains(t, Execute(ctx, st, nil, "/balance"), "not configured")

	acct := &fakeAccount{}
	bal := Execute(ctx, st, acct, "/balance")
	assert.Contains(t, bal, "Balance USDT")
	assert.Contains(t, bal, "Equity: 118")

	assert.Equal(t, "No open orders", Execute(ctx, st, acct, "/orders"))
	assert.Empty(t, acct.symbol)

	acct.orders = []models.OpenOrder{{
		OrderID: "7", Symbol: "BTC-USDT", Side: models.OrderSell, PositionSide: models.SideLong,
		Type: "LIMIT", Price: d("70000"), Quantity: d("0.01"),
	}}
	out := Execute(ctx, st, acct, "/orders btcusdt")
	assert.Equal(t, "BTC-USDT", acct.symbol)
	assert.Contains(t, out, "BTC-USDT SELL/LONG LIMIT qty=0.01 price=70000 #7")

	acct.err = errors.New("bingx down")
	assert.Contains(t, Execute(ctx, st, acct, "/balance"), "bingx down")
}
