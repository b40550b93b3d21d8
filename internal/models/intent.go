package models

// Intent: каноническое торговое намерение сигнала.
type Intent string

const (
	IntentLongOpen   Intent = "LONG_OPEN"
	IntentLongClose  Intent = "LONG_CLOSE"
	IntentShortOpen  Intent = "SHORT_OPEN"
	IntentShortClose Intent = "SHORT_CLOSE"
)

func (i Intent) Valid() bool {
	switch i {
	case IntentLongOpen, IntentLongClose, IntentShortOpen, IntentShortClose:
		return true
	}
	return false
}

func (i Intent) IsClose() bool { return i == IntentLongClose || i == IntentShortClose }

func (i Intent) PositionSide() PositionSide {
	if i == IntentShortOpen || i == IntentShortClose {
		return SideShort
	}
	return SideLong
}

// OrderSide: LONG_OPEN/SHORT_CLOSE покупают, остальные продают.
func (i Intent) OrderSide() OrderSide {
	if i == IntentLongOpen || i == IntentShortClose {
		return OrderBuy
	}
	return OrderSell
}

type PositionSide string

const (
	SideLong  PositionSide = "LONG"
	SideShort PositionSide = "SHORT"
	SideBoth  PositionSide = "BOTH" // one-way режим аккаунта
)

// CloseSide: сторона ордера, который уменьшает позицию.
func (p PositionSide) CloseSide() OrderSide {
	if p == SideShort {
		return OrderBuy
	}
	return OrderSell
}

// CloseIntent: намерение, закрывающее позицию этой стороны.
func (p PositionSide) CloseIntent() Intent {
	if p == SideShort {
		return IntentShortClose
	}
	return IntentLongClose
}

type OrderSide string

const (
	OrderBuy  OrderSide = "BUY"
	OrderSell OrderSide = "SELL"
)

type OrderType string

const (
	OrderMarket OrderType = "MARKET"
	OrderLimit  OrderType = "LIMIT"
)

type PositionMode string

const (
	PositionModeHedge  PositionMode = "hedge"
	PositionModeOneWay PositionMode = "oneway"
)
