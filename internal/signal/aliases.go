package signal

import "signal_bridge/internal/models"

// Канонические поля и допустимые ключи источника, в порядке приоритета.
// Сравнение ключей без учёта регистра. Новые алиасы добавляются только сюда.
const (
	fieldSymbol        = "symbol"
	fieldAction        = "action"
	fieldSide          = "side"
	fieldPositionSide  = "positionSide"
	fieldQuantity      = "quantity"
	fieldMarginUSDT    = "marginUsdt"
	fieldLeverage      = "leverage"
	fieldOrderType     = "orderType"
	fieldPrice         = "price"
	fieldTimeInForce   = "timeInForce"
	fieldReduceOnly    = "reduceOnly"
	fieldClientOrderID = "clientOrderId"
	fieldAlertID       = "alertId"
	fieldBarTime       = "barTime"
)

var aliasTable = map[string][]string{
	fieldSymbol:        {"symbol", "ticker", "pair", "market", "instrument"},
	fieldAction:        {"action", "intent", "signal", "order_action", "actions"},
	fieldSide:          {"side", "direction"},
	fieldPositionSide:  {"positionSide", "position_side", "posSide"},
	fieldQuantity:      {"quantity", "qty", "size", "positionSize", "amount", "orderSize"},
	fieldMarginUSDT:    {"margin_usdt", "marginUsdt", "margin", "marginAmount", "marginValue"},
	fieldLeverage:      {"leverage", "lev", "lev_value", "levValue"},
	fieldOrderType:     {"orderType", "order_type", "type"},
	fieldPrice:         {"price", "limitPrice", "limit_price"},
	fieldTimeInForce:   {"timeInForce", "tif", "time_in_force"},
	fieldReduceOnly:    {"reduceOnly", "reduce_only"},
	fieldClientOrderID: {"clientOrderId", "client_order_id", "clientId"},
	fieldAlertID:       {"alert_id", "alertId", "id"},
	fieldBarTime:       {"bar_time", "barTime", "time", "timestamp", "ts"},
}

// ключи вложенного объекта strategy (TradingView), используются после верхнего уровня
var strategyAliases = map[string][]string{
	fieldSymbol: {"market", "symbol"},
	fieldAction: {"order_action", "action"},
}

var actionTable = map[string]models.Intent{
	"LONG_OPEN":   models.IntentLongOpen,
	"OPEN_LONG":   models.IntentLongOpen,
	"LONG_BUY":    models.IntentLongOpen,
	"ENTER_LONG":  models.IntentLongOpen,
	"BUY":         models.IntentLongOpen,
	"LONG":        models.IntentLongOpen,
	"LONG_CLOSE":  models.IntentLongClose,
	"CLOSE_LONG":  models.IntentLongClose,
	"LONG_SELL":   models.IntentLongClose,
	"EXIT_LONG":   models.IntentLongClose,
	"SHORT_OPEN":  models.IntentShortOpen,
	"OPEN_SHORT":  models.IntentShortOpen,
	"SHORT_SELL":  models.IntentShortOpen,
	"ENTER_SHORT": models.IntentShortOpen,
	"SELL":        models.IntentShortOpen,
	"SHORT":       models.IntentShortOpen,
	"SHORT_CLOSE": models.IntentShortClose,
	"CLOSE_SHORT": models.IntentShortClose,
	"SHORT_BUY":   models.IntentShortClose,
	"EXIT_SHORT":  models.IntentShortClose,
}

// legacy: side + positionSide
var legacyTable = map[[2]string]models.Intent{
	{"BUY", "LONG"}:   models.IntentLongOpen,
	{"SELL", "LONG"}:  models.IntentLongClose,
	{"SELL", "SHORT"}: models.IntentShortOpen,
	{"BUY", "SHORT"}:  models.IntentShortClose,
}

var truthy = map[string]bool{"true": true, "1": true, "yes": true, "on": true}
