package service

import "signal_bridge/internal/models"

// OrderMapping: сторона ордера и позиции для намерения.
type OrderMapping struct {
	Side         models.OrderSide
	PositionSide models.PositionSide
	ReduceOnly   bool
}

// MapIntent: в hedge LONG/SHORT, в one-way BOTH.
func MapIntent(intent models.Intent, mode models.PositionMode) OrderMapping {
	m := OrderMapping{
		Side:         intent.OrderSide(),
		PositionSide: intent.PositionSide(),
		ReduceOnly:   intent.IsClose(),
	}
	if mode == models.PositionModeOneWay {
		m.PositionSide = models.SideBoth
	}
	return m
}

// CloseMapping: reduce-only ордер против позиции (TP/SL).
func CloseMapping(side models.PositionSide, mode models.PositionMode) OrderMapping {
	return MapIntent(side.CloseIntent(), mode)
}
