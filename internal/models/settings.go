package models

import "github.com/shopspring/decimal"

// Settings: глобальные дефолты торговли (правятся оператором).
type Settings struct {
	MarginUSDT  decimal.Decimal `json:"margin_usdt"`
	Leverage    int             `json:"leverage"`
	MarginMode  string          `json:"margin_mode"`   // ISOLATED | CROSSED
	TimeInForce string          `json:"time_in_force"` // GTC | IOC | FOK | PostOnly
	AutoTrade   bool            `json:"auto_trade"`
}

type TPStageConfig struct {
	MovePercent decimal.Decimal `json:"move_percent"`
	SellPercent decimal.Decimal `json:"sell_percent"`
}

// ProtectionConfig: TP/SL для символа (или глобальная, если символ пустой).
type ProtectionConfig struct {
	Symbol    string              `json:"symbol,omitempty"`
	Stages    []TPStageConfig     `json:"stages"`
	SLPercent decimal.NullDecimal `json:"sl_percent"`
}

func (c ProtectionConfig) Empty() bool {
	return len(c.Stages) == 0 && !c.SLPercent.Valid
}
