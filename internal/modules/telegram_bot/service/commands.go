package service

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"signal_bridge/internal/models"
	"signal_bridge/internal/signal"
)

const maxLeverage = 125

var hundred = decimal.NewFromInt(100)

// Command - разобранная команда оператора.
type Command struct {
	Name   string
	Symbol string // для /tp, /sl и /orders: пусто = глобальный конфиг / все символы
	Args   []string
}

// ParseCommand: "/tp BTCUSDT 5:40,9:50" -> {tp, BTC-USDT, [5:40,9:50]}.
func ParseCommand(text string) (Command, bool) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return Command{}, false
	}
	name := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i] // /status@my_bot
	}
	cmd := Command{Name: name, Args: fields[1:]}

	switch {
	case (name == "tp" || name == "sl") && len(cmd.Args) == 2,
		name == "orders" && len(cmd.Args) == 1:
		if sym, ok := signal.NormalizeSymbol(cmd.Args[0]); ok {
			cmd.Symbol = sym
			cmd.Args = cmd.Args[1:]
		}
	}
	return cmd, true
}

// Change - результат применения команды.
type Change struct {
	Settings          models.Settings
	Protection        models.ProtectionConfig
	SettingsChanged   bool
	ProtectionChanged bool
	Reply             string
}

// ApplyCommand меняет копии настроек, ничего не сохраняет.
func ApplyCommand(cmd Command, s models.Settings, p models.ProtectionConfig) (Change, error) {
	ch := Change{Settings: s, Protection: p}
	arg := ""
	if len(cmd.Args) > 0 {
		arg = cmd.Args[0]
	}

	switch cmd.Name {
	case "margin":
		v, err := positiveDecimal(arg)
		if err != nil {
			return ch, fmt.Errorf("usage: /margin <usdt>: %w", err)
		}
		ch.Settings.MarginUSDT = v
		ch.SettingsChanged = true
		ch.Reply = fmt.Sprintf("Margin set to %s USDT", v)

	case "leverage":
		v, err := strconv.Atoi(strings.TrimSuffix(strings.ToLower(arg), "x"))
		if err != nil || v < 1 || v > maxLeverage {
			return ch, fmt.Errorf("usage: /leverage <1..%d>", maxLeverage)
		}
		ch.Settings.Leverage = v
		ch.SettingsChanged = true
		ch.Reply = fmt.Sprintf("Leverage set to %dx", v)

	case "mode":
		switch strings.ToLower(arg) {
		case "isolated":
			ch.Settings.MarginMode = "ISOLATED"
		case "cross", "crossed":
			ch.Settings.MarginMode = "CROSSED"
		default:
			return ch, fmt.Errorf("usage: /mode isolated|cross")
		}
		ch.SettingsChanged = true
		ch.Reply = "Margin mode set to " + ch.Settings.MarginMode

	case "tif":
		switch strings.ToUpper(arg) {
		case "GTC", "IOC", "FOK":
			ch.Settings.TimeInForce = strings.ToUpper(arg)
		case "POSTONLY":
			ch.Settings.TimeInForce = "PostOnly"
		default:
			return ch, fmt.Errorf("usage: /tif GTC|IOC|FOK|PostOnly")
		}
		ch.SettingsChanged = true
		ch.Reply = "Time in force set to " + ch.Settings.TimeInForce

	case "auto":
		switch strings.ToLower(arg) {
		case "on":
			ch.Settings.AutoTrade = true
		case "off":
			ch.Settings.AutoTrade = false
		default:
			return ch, fmt.Errorf("usage: /auto on|off")
		}
		ch.SettingsChanged = true
		ch.Reply = "Auto-trade " + onOff(ch.Settings.AutoTrade)

	case "tp":
		stages, err := parseStages(arg)
		if err != nil {
			return ch, fmt.Errorf("usage: /tp [SYMBOL] <move>:<sell>[,...] | off: %w", err)
		}
		ch.Protection.Symbol = cmd.Symbol
		ch.Protection.Stages = stages
		ch.ProtectionChanged = true
		ch.Reply = scope(cmd.Symbol) + " take-profit: " + formatStages(stages)

	case "sl":
		ch.Protection.Symbol = cmd.Symbol
		if strings.EqualFold(arg, "off") {
			ch.Protection.SLPercent = decimal.NullDecimal{}
		} else {
			v, err := positiveDecimal(strings.TrimSuffix(arg, "%"))
			if err != nil || v.GreaterThanOrEqual(hundred) {
				return ch, fmt.Errorf("usage: /sl [SYMBOL] <percent>|off")
			}
			ch.Protection.SLPercent = decimal.NewNullDecimal(v)
		}
		ch.ProtectionChanged = true
		ch.Reply = scope(cmd.Symbol) + " stop-loss: " + formatSL(ch.Protection.SLPercent)

	case "help", "start":
		ch.Reply = helpText

	default:
		return ch, fmt.Errorf("unknown command /%s, see /help", cmd.Name)
	}
	return ch, nil
}

func parseStages(arg string) ([]models.TPStageConfig, error) {
	if arg == "" {
		return nil, fmt.Errorf("no stages")
	}
	if strings.EqualFold(arg, "off") {
		return nil, nil
	}
	var out []models.TPStageConfig
	for _, part := range strings.Split(arg, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), ":", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("stage %q: want move:sell", part)
		}
		move, err := positiveDecimal(kv[0])
		if err != nil {
			return nil, fmt.Errorf("stage %q: move: %w", part, err)
		}
		sell, err := positiveDecimal(kv[1])
		if err != nil || sell.GreaterThan(hundred) {
			return nil, fmt.Errorf("stage %q: sell must be in (0,100]", part)
		}
		out = append(out, models.TPStageConfig{MovePercent: move, SellPercent: sell})
	}
	return out, nil
}

func positiveDecimal(s string) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("not a number: %q", s)
	}
	if !v.IsPositive() {
		return decimal.Zero, fmt.Errorf("must be > 0")
	}
	return v, nil
}

func scope(symbol string) string {
	if symbol == "" {
		return "Global"
	}
	return symbol
}

const helpText = `Commands:
/margin <usdt> - margin per trade
/leverage <n> - leverage
/mode isolated|cross - margin mode
/tif GTC|IOC|FOK|PostOnly - time in force for limit orders
/tp [SYMBOL] 5:40,9:50 | off - take-profit stages (move%:sell%)
/sl [SYMBOL] <percent> | off - stop-loss
/auto on|off - auto-trade
/status - settings and protected positions
/balance - futures account balance
/orders [SYMBOL] - open orders on the exchange`
