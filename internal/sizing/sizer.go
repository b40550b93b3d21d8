package sizing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"signal_bridge/internal/helper"
	"signal_bridge/internal/models"
)

// Precedence: что важнее: сохранённые дефолты или значения из payload.
type Precedence string

const (
	PreferDefaults Precedence = "defaults"
	PreferPayload  Precedence = "payload"
)

func ParsePrecedence(s string) (Precedence, error) {
	switch Precedence(s) {
	case "", PreferDefaults:
		return PreferDefaults, nil
	case PreferPayload:
		return PreferPayload, nil
	}
	return "", fmt.Errorf("unknown precedence %q (want defaults|payload)", s)
}

type Sizer struct {
	precedence Precedence
}

func New(p Precedence) *Sizer {
	if p == "" {
		p = PreferDefaults
	}
	return &Sizer{precedence: p}
}

// Budget: маржа и плечо после применения политики приоритета.
func (s *Sizer) Budget(sig models.Signal, def models.Settings) (decimal.Decimal, int) {
	margin := pickDecimal(sig.MarginUSDT, def.MarginUSDT, s.precedence)
	lev := pickInt(sig.Leverage, def.Leverage, s.precedence)
	return margin, lev
}

// Size считает количество контрактов. Результат всегда кратен stepSize и не больше
// теоретического (округление только вниз).
func (s *Sizer) Size(sig models.Signal, f models.ContractFilters, mark decimal.Decimal, def models.Settings) (decimal.Decimal, error) {
	margin, lev := s.Budget(sig, def)

	if sig.Quantity.Valid {
		qty := helper.FloorToStep(sig.Quantity.Decimal, f.StepSize)
		if err := checkMin(sig.Symbol, qty, f, mark, lev); err != nil {
			return decimal.Zero, err
		}
		return qty, nil
	}

	if !margin.IsPositive() {
		return decimal.Zero, &models.SizingError{Symbol: sig.Symbol, Reason: "no margin budget configured"}
	}
	if lev <= 0 {
		return decimal.Zero, &models.SizingError{Symbol: sig.Symbol, Reason: "no leverage configured"}
	}
	if !mark.IsPositive() {
		return decimal.Zero, &models.SizingError{Symbol: sig.Symbol, Reason: "mark price unavailable"}
	}

	// floor(margin*lev / (mark*step)) * step, одно целочисленное деление
	notional := margin.Mul(decimal.NewFromInt(int64(lev)))
	steps, _ := notional.QuoRem(mark.Mul(f.StepSize), 0)
	qty := steps.Mul(f.StepSize)

	if err := checkMin(sig.Symbol, qty, f, mark, lev); err != nil {
		return decimal.Zero, err
	}
	return qty, nil
}

func checkMin(symbol string, qty decimal.Decimal, f models.ContractFilters, mark decimal.Decimal, lev int) error {
	var reason string
	switch {
	case !qty.IsPositive():
		reason = "quantity rounded to zero"
	case qty.LessThan(f.MinQty):
		reason = fmt.Sprintf("quantity %s below minimum %s", qty, f.MinQty)
	default:
		return nil
	}

	e := &models.SizingError{Symbol: symbol, Reason: reason, Leverage: lev}
	if mark.IsPositive() && lev > 0 {
		e.RequiredMargin = decimal.NewNullDecimal(
			f.MinQty.Mul(mark).Div(decimal.NewFromInt(int64(lev))),
		)
	}
	return e
}

func pickDecimal(payload decimal.NullDecimal, def decimal.Decimal, p Precedence) decimal.Decimal {
	if p == PreferPayload && payload.Valid {
		return payload.Decimal
	}
	if def.IsPositive() {
		return def
	}
	if payload.Valid {
		return payload.Decimal
	}
	return decimal.Zero
}

func pickInt(payload, def int, p Precedence) int {
	if p == PreferPayload && payload > 0 {
		return payload
	}
	if def > 0 {
		return def
	}
	return payload
}
