package helper

import (
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

func PositionKey(symbol, posSide string) string { return symbol + ":" + posSide }

func SplitPositionKey(key string) (symbol string, posSide string, ok bool) {
	// ожидаем формат "BTC-USDT:LONG"
	i := strings.LastIndexByte(key, ':')
	if i <= 0 || i >= len(key)-1 {
		return "", "", false
	}

	symbol = key[:i]
	posSide = key[i+1:]

	switch posSide {
	case "LONG", "SHORT", "BOTH":
		// ok
	default:
		return "", "", false
	}

	return symbol, posSide, true
}

// FloorToStep: наибольшее кратное step, не превышающее v. Целочисленное деление, без округлений.
func FloorToStep(v, step decimal.Decimal) decimal.Decimal {
	if !step.IsPositive() || !v.IsPositive() {
		return decimal.Zero
	}
	q, _ := v.QuoRem(step, 0)
	return q.Mul(step)
}

// RoundDownToTick: цена вниз к тику (для LIMIT ордеров).
func RoundDownToTick(px, tick decimal.Decimal) decimal.Decimal {
	if !tick.IsPositive() {
		return px
	}
	q, _ := px.QuoRem(tick, 0)
	return q.Mul(tick)
}

// PercentMove: изменение цены от входа в процентах, положительное = в пользу позиции.
func PercentMove(entry, mark decimal.Decimal, short bool) decimal.Decimal {
	if entry.IsZero() {
		return decimal.Zero
	}
	diff := mark.Sub(entry)
	if short {
		diff = diff.Neg()
	}
	return diff.Mul(hundred).Div(entry)
}

// Percent: p% от v.
func Percent(v, p decimal.Decimal) decimal.Decimal {
	return v.Mul(p).Div(hundred)
}
