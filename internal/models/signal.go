package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Signal: нормализованный входящий сигнал. Живёт в рамках одной обработки алерта.
type Signal struct {
	Symbol        string
	Intent        Intent
	Quantity      decimal.NullDecimal
	MarginUSDT    decimal.NullDecimal
	Leverage      int // 0 = не задано в payload
	OrderType     OrderType
	Price         decimal.NullDecimal
	TimeInForce   string
	ReduceOnly    bool
	PositionSide  PositionSide
	ClientOrderID string
	AlertID       string
	BarTime       string
}

// DedupToken: barTime важнее alertId.
func (s Signal) DedupToken() string {
	if s.BarTime != "" {
		return s.BarTime
	}
	return s.AlertID
}

// SignalNotice: запись для уведомления о сигнале.
type SignalNotice struct {
	Symbol       string
	Intent       Intent
	OrderType    OrderType
	PositionSide PositionSide
	AutoTrade    bool
	Leverage     int
	MarginUSDT   decimal.NullDecimal
	Quantity     decimal.NullDecimal
	ReduceOnly   bool
	Timestamp    time.Time
}
