package notify

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"signal_bridge/internal/models"
)

func TestBuildSignalMessage(t *testing.T) {
	tests := []struct {
		name   string
		notice models.SignalNotice
		want   string
	}{
		{
			name: "long open",
			notice: models.SignalNotice{
				Symbol:       "BTC-USDT",
				Intent:       models.IntentLongOpen,
				OrderType:    models.OrderMarket,
				PositionSide: models.SideLong,
				AutoTrade:    true,
				Leverage:     20,
				MarginUSDT:   decimal.NewNullDecimal(decimal.NewFromInt(10)),
				Timestamp:    time.Date(2025, 10, 10, 22, 44, 11, 0, time.UTC),
			},
			want: "🟢 SIGNAL - Buy\n" +
				"------------------------\n" +
				"Asset: BTC-USDT\n" +
				"Margin: 10 USDT\n" +
				"Leverage: 20x\n" +
				"Auto-trade: On\n" +
				"Entry Type: Market\n" +
				"Position Side: LONG\n" +
				"Timestamp: 2025-10-10 22:44:11",
		},
		{
			name: "close short reduce only",
			notice: models.SignalNotice{
				Symbol:       "ETH-USDT",
				Intent:       models.IntentShortClose,
				OrderType:    models.OrderMarket,
				PositionSide: models.SideShort,
				Quantity:     decimal.NewNullDecimal(decimal.NewFromInt(25)),
				ReduceOnly:   true,
				Timestamp:    time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC),
			},
			want: "⚫ SIGNAL - Close Short\n" +
				"------------------------\n" +
				"Asset: ETH-USDT\n" +
				"Quantity: 25\n" +
				"Auto-trade: Off\n" +
				"Exit Type: Market (Reduce Only)\n" +
				"Position Side: SHORT\n" +
				"Timestamp: 2024-12-31 23:59:59",
		},
		{
			name: "unknown intent falls back",
			notice: models.SignalNotice{
				Symbol:    "SOL-USDT",
				OrderType: models.OrderLimit,
				Timestamp: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
			},
			want: "⚪ SIGNAL - Signal\n" +
				"------------------------\n" +
				"Asset: SOL-USDT\n" +
				"Auto-trade: Off\n" +
				"Entry Type: Limit\n" +
				"Position Side: LONG\n" +
				"Timestamp: 2024-01-02 03:04:05",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildSignalMessage(tt.notice))
		})
	}
}

func TestRecorderAndMulti(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	m := Multi{a, nil, b}
	m.Sendf("hello %s", "world")
	m.Send("second")

	assert.Equal(t, []string{"hello world", "second"}, a.Messages())
	assert.Equal(t, a.Messages(), b.Messages())

	got, ok := a.Last("hello")
	assert.True(t, ok)
	assert.Equal(t, "hello world", got)
	_, ok = a.Last("missing")
	assert.False(t, ok)
}
