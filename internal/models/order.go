package models

import "github.com/shopspring/decimal"

type OrderRequest struct {
	Symbol        string
	Side          OrderSide
	PositionSide  PositionSide
	Type          OrderType
	Quantity      decimal.Decimal
	Price         decimal.NullDecimal
	TimeInForce   string
	ReduceOnly    bool
	ClientOrderID string
}

// Params: параметры запроса /trade/order до подписи.
func (o OrderRequest) Params() map[string]string {
	p := map[string]string{
		"symbol":   o.Symbol,
		"side":     string(o.Side),
		"type":     string(o.Type),
		"quantity": o.Quantity.String(),
	}
	if o.PositionSide != "" {
		p["positionSide"] = string(o.PositionSide)
	}
	if o.Type == OrderLimit {
		if o.Price.Valid {
			p["price"] = o.Price.Decimal.String()
		}
		if o.TimeInForce != "" {
			p["timeInForce"] = o.TimeInForce
		}
	}
	// в hedge режиме BingX отклоняет reduceOnly, сторона позиции уже задаёт смысл
	if o.ReduceOnly && (o.PositionSide == "" || o.PositionSide == SideBoth) {
		p["reduceOnly"] = "true"
	}
	if o.ClientOrderID != "" {
		p["clientOrderId"] = o.ClientOrderID
	}
	return p
}

type OrderResult struct {
	OrderID       string
	ClientOrderID string
	Symbol        string
	Status        string
	AvgPrice      decimal.Decimal
	ExecutedQty   decimal.Decimal
}

type ExchangePosition struct {
	Symbol     string
	Side       PositionSide
	Quantity   decimal.Decimal
	EntryPrice decimal.Decimal
	MarkPrice  decimal.Decimal
	Leverage   int
}

type Balance struct {
	Asset            string
	Balance          decimal.Decimal
	Equity           decimal.Decimal
	AvailableMargin  decimal.Decimal
	UnrealizedProfit decimal.Decimal
}

type OpenOrder struct {
	OrderID      string
	Symbol       string
	Side         OrderSide
	PositionSide PositionSide
	Type         string
	Price        decimal.Decimal
	Quantity     decimal.Decimal
	Status       string
}
