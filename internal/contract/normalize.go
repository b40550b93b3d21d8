package contract

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"signal_bridge/internal/models"
)

// максимальная точность, которую принимаем из метаданных
const maxPrecision = 18

var defaultTickSize = decimal.New(1, -2)

// Normalize приводит сырые метаданные контракта к ContractFilters.
//
// stepSize: stepSize > 10^-quantityPrecision > size.
// minQty: tradeMinQuantity (или minQty) если > 0, иначе stepSize.
// tickSize: tickSize > 10^-pricePrecision > 0.01.
func Normalize(raw map[string]any) (models.ContractFilters, error) {
	symbol := firstString(raw, "symbol", "symbolName")

	pricePrec, hasPricePrec := precision(raw["pricePrecision"])
	qtyPrec, hasQtyPrec := precision(raw["quantityPrecision"])

	step, ok := positive(raw["stepSize"])
	if !ok && hasQtyPrec {
		step, ok = decimal.New(1, -int32(qtyPrec)), true
	}
	if !ok {
		step, ok = positive(raw["size"])
	}
	if !ok {
		name := symbol
		if name == "" {
			name = "<unknown>"
		}
		return models.ContractFilters{}, &models.ValidationError{
			Symbol: name,
			Reason: "no usable size information (stepSize, quantityPrecision, size)",
		}
	}

	minQty, ok := positive(raw["tradeMinQuantity"])
	if !ok {
		minQty, ok = positive(raw["minQty"])
	}
	if !ok {
		minQty = step
	}

	tick, ok := positive(raw["tickSize"])
	if !ok && hasPricePrec {
		tick, ok = decimal.New(1, -int32(pricePrec)), true
	}
	if !ok {
		tick = defaultTickSize
	}

	f := models.ContractFilters{
		Symbol:   symbol,
		StepSize: step,
		MinQty:   minQty,
		TickSize: tick,
	}
	if hasPricePrec {
		f.PricePrecision = &pricePrec
	}
	if hasQtyPrec {
		f.QuantityPrecision = &qtyPrec
	}
	return f, nil
}

func firstString(raw map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := raw[k].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return ""
}

func positive(v any) (decimal.Decimal, bool) {
	d, ok := toDecimal(v)
	if !ok || !d.IsPositive() {
		return decimal.Zero, false
	}
	return d, true
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch x := v.(type) {
	case nil:
		return decimal.Zero, false
	case decimal.Decimal:
		return x, true
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(x))
		return d, err == nil
	case json.Number:
		d, err := decimal.NewFromString(x.String())
		return d, err == nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(x), true
	case float32:
		return toDecimal(float64(x))
	case int:
		return decimal.NewFromInt(int64(x)), true
	case int64:
		return decimal.NewFromInt(x), true
	case int32:
		return decimal.NewFromInt(int64(x)), true
	}
	return decimal.Zero, false
}

// precision: усечение к нулю, отрицательные и нечисловые значения игнорируются.
func precision(v any) (int, bool) {
	var f float64
	switch x := v.(type) {
	case nil:
		return 0, false
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case int32:
		f = float64(x)
	case float64:
		f = x
	case float32:
		f = float64(x)
	case json.Number:
		p, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = p
	case string:
		p, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = p
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0, false
	}
	n := int(math.Trunc(f))
	if n > maxPrecision {
		return 0, false
	}
	return n, true
}
