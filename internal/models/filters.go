package models

import "github.com/shopspring/decimal"

// ContractFilters: ограничения инструмента. Не мутируется, при обновлении заменяется целиком.
type ContractFilters struct {
	Symbol            string
	StepSize          decimal.Decimal
	MinQty            decimal.Decimal
	TickSize          decimal.Decimal
	PricePrecision    *int
	QuantityPrecision *int
}

// Raw: каноническая форма, которую нормализатор принимает обратно без изменений.
func (f ContractFilters) Raw() map[string]any {
	out := map[string]any{
		"symbol":   f.Symbol,
		"stepSize": f.StepSize.String(),
		"minQty":   f.MinQty.String(),
		"tickSize": f.TickSize.String(),
	}
	if f.PricePrecision != nil {
		out["pricePrecision"] = *f.PricePrecision
	}
	if f.QuantityPrecision != nil {
		out["quantityPrecision"] = *f.QuantityPrecision
	}
	return out
}
