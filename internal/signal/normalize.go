package signal

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"signal_bridge/internal/models"
)

type fieldSet struct {
	top      map[string]any
	strategy map[string]any
}

// Normalize превращает сырой payload в один или несколько сигналов
// (список действий или "A,B" исполняется последовательно).
func Normalize(raw map[string]any) ([]models.Signal, error) {
	fs := fieldSet{top: lowerKeys(raw)}
	if nested, ok := fs.top["strategy"].(map[string]any); ok {
		fs.strategy = lowerKeys(nested)
	}

	symRaw := fs.lookup(fieldSymbol)
	if symRaw == nil {
		return nil, &models.SchemaError{Field: fieldSymbol, Reason: "missing"}
	}
	symbol, ok := NormalizeSymbol(stringify(symRaw))
	if !ok {
		return nil, &models.SchemaError{Field: fieldSymbol, Reason: fmt.Sprintf("cannot normalize %q", stringify(symRaw))}
	}

	intents, err := fs.intents()
	if err != nil {
		return nil, err
	}

	base := models.Signal{
		Symbol:        symbol,
		OrderType:     models.OrderMarket,
		ClientOrderID: stringify(fs.lookup(fieldClientOrderID)),
		AlertID:       stringify(fs.lookup(fieldAlertID)),
		BarTime:       stringify(fs.lookup(fieldBarTime)),
		ReduceOnly:    truthy[strings.ToLower(stringify(fs.lookup(fieldReduceOnly)))],
	}

	if base.Quantity, err = fs.decimal(fieldQuantity); err != nil {
		return nil, err
	}
	if base.MarginUSDT, err = fs.decimal(fieldMarginUSDT); err != nil {
		return nil, err
	}
	if base.Price, err = fs.decimal(fieldPrice); err != nil {
		return nil, err
	}
	if base.Leverage, err = fs.leverage(); err != nil {
		return nil, err
	}

	if v := stringify(fs.lookup(fieldOrderType)); v != "" {
		switch strings.ToUpper(v) {
		case "MARKET":
			base.OrderType = models.OrderMarket
		case "LIMIT":
			base.OrderType = models.OrderLimit
		default:
			return nil, &models.SchemaError{Field: fieldOrderType, Reason: fmt.Sprintf("unsupported %q", v)}
		}
	}
	if base.OrderType == models.OrderLimit && !base.Price.Valid {
		return nil, &models.SchemaError{Field: fieldPrice, Reason: "required for LIMIT orders"}
	}
	base.TimeInForce = normalizeTIF(stringify(fs.lookup(fieldTimeInForce)))

	out := make([]models.Signal, 0, len(intents))
	for i, intent := range intents {
		s := base
		s.Intent = intent
		s.PositionSide = intent.PositionSide()
		if len(intents) > 1 && s.ClientOrderID != "" {
			s.ClientOrderID = fmt.Sprintf("%s-%d", base.ClientOrderID, i+1)
		}
		out = append(out, s)
	}
	return out, nil
}

func (fs fieldSet) lookup(field string) any {
	if v := firstPresent(fs.top, aliasTable[field]); v != nil {
		return v
	}
	if fs.strategy != nil {
		return firstPresent(fs.strategy, strategyAliases[field])
	}
	return nil
}

func (fs fieldSet) intents() ([]models.Intent, error) {
	posSide := strings.ToUpper(stringify(fs.lookup(fieldPositionSide)))

	var tokens []string
	switch v := fs.lookup(fieldAction).(type) {
	case nil:
	case []any:
		for _, item := range v {
			if s := stringify(item); s != "" {
				tokens = append(tokens, s)
			}
		}
	default:
		for _, s := range strings.Split(stringify(v), ",") {
			if s = strings.TrimSpace(s); s != "" {
				tokens = append(tokens, s)
			}
		}
	}

	if len(tokens) == 0 {
		side := stringify(fs.lookup(fieldSide))
		if side == "" {
			return nil, &models.SchemaError{Field: fieldAction, Reason: "missing action/side"}
		}
		tokens = []string{side}
	}

	out := make([]models.Intent, 0, len(tokens))
	for _, tok := range tokens {
		intent, ok := resolveAction(tok, posSide)
		if !ok {
			return nil, &models.SchemaError{Field: fieldAction, Reason: fmt.Sprintf("unrecognized %q", tok)}
		}
		out = append(out, intent)
	}
	return out, nil
}

func resolveAction(token, posSide string) (models.Intent, bool) {
	t := strings.NewReplacer(" ", "_", "-", "_").Replace(strings.ToUpper(strings.TrimSpace(token)))
	if posSide != "" {
		if intent, ok := legacyTable[[2]string{t, posSide}]; ok {
			return intent, true
		}
	}
	intent, ok := actionTable[t]
	return intent, ok
}

func (fs fieldSet) decimal(field string) (decimal.NullDecimal, error) {
	v := fs.lookup(field)
	if v == nil {
		return decimal.NullDecimal{}, nil
	}
	s := stringify(v)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, &models.SchemaError{Field: field, Reason: fmt.Sprintf("not a number %q", s)}
	}
	if !d.IsPositive() {
		return decimal.NullDecimal{}, nil
	}
	return decimal.NewNullDecimal(d), nil
}

func (fs fieldSet) leverage() (int, error) {
	v := fs.lookup(fieldLeverage)
	if v == nil {
		return 0, nil
	}
	s := strings.TrimSuffix(strings.ToLower(stringify(v)), "x")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &models.SchemaError{Field: fieldLeverage, Reason: fmt.Sprintf("not a number %q", stringify(v))}
	}
	if f < 1 {
		return 0, nil
	}
	return int(f), nil
}

func normalizeTIF(v string) string {
	switch strings.ToUpper(v) {
	case "":
		return ""
	case "POSTONLY", "POST_ONLY":
		return "PostOnly"
	default:
		return strings.ToUpper(v)
	}
}

func lowerKeys(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		lk := strings.ToLower(strings.TrimSpace(k))
		// точное совпадение в нижнем регистре приоритетнее
		if _, exists := out[lk]; exists && k != lk {
			continue
		}
		out[lk] = v
	}
	return out
}

func firstPresent(m map[string]any, keys []string) any {
	for _, k := range keys {
		v, ok := m[strings.ToLower(k)]
		if !ok || isEmpty(v) {
			continue
		}
		return v
	}
	return nil
}

func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case []any:
		return len(x) == 0
	}
	return false
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case map[string]any:
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}
