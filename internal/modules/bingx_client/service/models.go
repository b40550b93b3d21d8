package service

import (
	"strings"

	"github.com/shopspring/decimal"
)

// flexString принимает и строку, и число (orderId приходит числом).
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*f = ""
		return nil
	}
	*f = flexString(strings.Trim(s, `"`))
	return nil
}

func (f flexString) Decimal() decimal.Decimal {
	d, err := decimal.NewFromString(string(f))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (f flexString) Int() int {
	return int(f.Decimal().IntPart())
}

type orderResponse struct {
	Order struct {
		OrderID       flexString `json:"orderId"`
		Symbol        string     `json:"symbol"`
		Side          string     `json:"side"`
		PositionSide  string     `json:"positionSide"`
		Type          string     `json:"type"`
		ClientOrderID flexString `json:"clientOrderId"`
		Status        string     `json:"status"`
		AvgPrice      flexString `json:"avgPrice"`
		ExecutedQty   flexString `json:"executedQty"`
	} `json:"order"`
}

type balanceResponse struct {
	Balance struct {
		Asset            string     `json:"asset"`
		Balance          flexString `json:"balance"`
		Equity           flexString `json:"equity"`
		UnrealizedProfit flexString `json:"unrealizedProfit"`
		AvailableMargin  flexString `json:"availableMargin"`
	} `json:"balance"`
}

type positionEntry struct {
	Symbol       string     `json:"symbol"`
	PositionSide string     `json:"positionSide"`
	PositionAmt  flexString `json:"positionAmt"`
	AvgPrice     flexString `json:"avgPrice"`
	MarkPrice    flexString `json:"markPrice"`
	Leverage     flexString `json:"leverage"`
}

type openOrdersResponse struct {
	Orders []struct {
		OrderID      flexString `json:"orderId"`
		Symbol       string     `json:"symbol"`
		Side         string     `json:"side"`
		PositionSide string     `json:"positionSide"`
		Type         string     `json:"type"`
		Price        flexString `json:"price"`
		OrigQty      flexString `json:"origQty"`
		Status       string     `json:"status"`
	} `json:"orders"`
}

type premiumIndex struct {
	Symbol    string     `json:"symbol"`
	MarkPrice flexString `json:"markPrice"`
}
