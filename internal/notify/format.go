package notify

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"signal_bridge/internal/models"
)

const (
	timestampLayout = "2006-01-02 15:04:05"
	separator       = "------------------------"
)

func emojiTitle(intent models.Intent) (string, string) {
	switch intent {
	case models.IntentLongOpen:
		return "🟢", "Buy"
	case models.IntentShortOpen:
		return "🔴", "Sell"
	case models.IntentLongClose:
		return "⚪", "Close Long"
	case models.IntentShortClose:
		return "⚫", "Close Short"
	}
	return "⚪", "Signal"
}

func onOff(v bool) string {
	if v {
		return "On"
	}
	return "Off"
}

// orderTypeTitle: MARKET -> Market.
func orderTypeTitle(t models.OrderType) string {
	s := strings.ToLower(string(t))
	if s == "" {
		return "Market"
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// BuildSignalMessage рендерит сигнал фиксированным многострочным шаблоном.
func BuildSignalMessage(n models.SignalNotice) string {
	emoji, title := emojiTitle(n.Intent)

	lines := []string{
		fmt.Sprintf("%s SIGNAL - %s", emoji, title),
		separator,
		"Asset: " + n.Symbol,
	}

	switch {
	case n.MarginUSDT.Valid:
		lines = append(lines, fmt.Sprintf("Margin: %s USDT", n.MarginUSDT.Decimal.String()))
	case n.Quantity.Valid:
		lines = append(lines, "Quantity: "+n.Quantity.Decimal.String())
	}
	if n.Leverage > 0 {
		lines = append(lines, fmt.Sprintf("Leverage: %dx", n.Leverage))
	}
	lines = append(lines, "Auto-trade: "+onOff(n.AutoTrade))

	kind := orderTypeTitle(n.OrderType)
	if n.Intent.IsClose() {
		if n.ReduceOnly {
			kind += " (Reduce Only)"
		}
		lines = append(lines, "Exit Type: "+kind)
	} else {
		lines = append(lines, "Entry Type: "+kind)
	}

	side := n.PositionSide
	if side == "" {
		side = n.Intent.PositionSide()
	}
	lines = append(lines,
		"Position Side: "+strings.ToUpper(string(side)),
		"Timestamp: "+n.Timestamp.Format(timestampLayout),
	)
	return strings.Join(lines, "\n")
}

func OrderPlaced(req models.OrderRequest, res models.OrderResult) string {
	return fmt.Sprintf("✅ Order placed: %s %s %s qty=%s id=%s",
		req.Symbol, req.Side, req.PositionSide, req.Quantity.String(), res.OrderID)
}

// OrderFailed: класс ошибки и текст биржи как есть.
func OrderFailed(symbol string, intent models.Intent, kind models.ErrorKind, detail string) string {
	return fmt.Sprintf("❌ %s %s failed [%s]\n%s", symbol, intent, kind, detail)
}

func Rejected(kind models.ErrorKind, detail string) string {
	return fmt.Sprintf("⚠️ Signal rejected [%s]: %s", kind, detail)
}

func TakeProfit(p models.Position, stage int, move, qty decimal.Decimal) string {
	s := p.Stages[stage]
	return fmt.Sprintf("🎯 TP%d %s %s: move %s%% ≥ %s%%, sold %s (%s%% of remaining)",
		stage+1, p.Symbol, p.Side, move.StringFixed(2), s.MovePercent.String(), qty.String(), s.SellPercent.String())
}

func StopLoss(p models.Position, move, qty decimal.Decimal) string {
	return fmt.Sprintf("🛑 SL %s %s: move %s%% ≤ -%s%%, closed %s",
		p.Symbol, p.Side, move.StringFixed(2), p.SLPercent.Decimal.String(), qty.String())
}
