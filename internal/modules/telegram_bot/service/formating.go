package service

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"signal_bridge/internal/models"
)

func onOff(v bool) string {
	if v {
		return "On"
	}
	return "Off"
}

func formatStages(stages []models.TPStageConfig) string {
	if len(stages) == 0 {
		return "off"
	}
	parts := make([]string, 0, len(stages))
	for i, s := range stages {
		parts = append(parts, fmt.Sprintf("TP%d +%s%% → %s%%", i+1, s.MovePercent, s.SellPercent))
	}
	return strings.Join(parts, ", ")
}

func formatSL(v decimal.NullDecimal) string {
	if !v.Valid {
		return "off"
	}
	return "-" + v.Decimal.String() + "%"
}

func formatStatus(s models.Settings, p models.ProtectionConfig, positions []models.Position) string {
	var b strings.Builder
	b.WriteString("⚙️ Settings\n")
	fmt.Fprintf(&b, "Margin: %s USDT | Leverage: %dx\n", s.MarginUSDT, s.Leverage)
	fmt.Fprintf(&b, "Mode: %s | TIF: %s\n", s.MarginMode, s.TimeInForce)
	fmt.Fprintf(&b, "Auto-trade: %s\n", onOff(s.AutoTrade))
	fmt.Fprintf(&b, "TP: %s\n", formatStages(p.Stages))
	fmt.Fprintf(&b, "SL: %s\n", formatSL(p.SLPercent))

	if len(positions) == 0 {
		b.WriteString("\nNo protected positions")
		return b.String()
	}
	b.WriteString("\n🛡 Positions\n")
	for _, pos := range positions {
		fired := 0
		for _, st := range pos.Stages {
			if !st.Armed(pos.Epoch) {
				fired++
			}
		}
		fmt.Fprintf(&b, "%s %s qty=%s entry=%s epoch=%d TP %d/%d\n",
			pos.Symbol, pos.Side, pos.Quantity, pos.EntryPrice, pos.Epoch, fired, len(pos.Stages))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatBalance(b models.Balance) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "💰 Balance %s\n", b.Asset)
	fmt.Fprintf(&sb, "Balance: %s\n", b.Balance)
	fmt.Fprintf(&sb, "Equity: %s\n", b.Equity)
	fmt.Fprintf(&sb, "Available: %s\n", b.AvailableMargin)
	fmt.Fprintf(&sb, "Unrealized PnL: %s", b.UnrealizedProfit)
	return sb.String()
}

func formatOrders(orders []models.OpenOrder) string {
	if len(orders) == 0 {
		return "No open orders"
	}
	var sb strings.Builder
	sb.WriteString("📋 Open orders\n")
	for _, o := range orders {
		fmt.Fprintf(&sb, "%s %s/%s %s qty=%s price=%s #%s\n",
			o.Symbol, o.Side, o.PositionSide, o.Type, o.Quantity, o.Price, o.OrderID)
	}
	return strings.TrimRight(sb.String(), "\n")
}
