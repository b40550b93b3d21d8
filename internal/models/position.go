package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PositionState string

const (
	PositionActive  PositionState = "ACTIVE"
	PositionStopped PositionState = "STOPPED"
	PositionFlat    PositionState = "FLAT"
)

// TPStage армирован для эпохи, если TriggeredAtEpoch != epoch.
type TPStage struct {
	MovePercent      decimal.Decimal `json:"move_percent"`
	SellPercent      decimal.Decimal `json:"sell_percent"`
	TriggeredAtEpoch *uint64         `json:"triggered_at_epoch,omitempty"`
}

func (s TPStage) Armed(epoch uint64) bool {
	return s.TriggeredAtEpoch == nil || *s.TriggeredAtEpoch != epoch
}

type Position struct {
	Symbol     string              `json:"symbol"`
	Side       PositionSide        `json:"side"`
	EntryPrice decimal.Decimal     `json:"entry_price"`
	Quantity   decimal.Decimal     `json:"quantity"`
	Stages     []TPStage           `json:"stages"`
	SLPercent  decimal.NullDecimal `json:"sl_percent"`
	Epoch      uint64              `json:"epoch"`
	State      PositionState       `json:"state"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

func (p Position) Key() string { return p.Symbol + ":" + string(p.Side) }

// Clone копирует стадии вместе с указателями эпох.
func (p Position) Clone() Position {
	out := p
	out.Stages = make([]TPStage, len(p.Stages))
	for i, s := range p.Stages {
		out.Stages[i] = s
		if s.TriggeredAtEpoch != nil {
			e := *s.TriggeredAtEpoch
			out.Stages[i].TriggeredAtEpoch = &e
		}
	}
	return out
}

// Fill: исполнение, которое открывает/усредняет/уменьшает позицию.
type Fill struct {
	Symbol     string
	Side       PositionSide
	EntryPrice decimal.Decimal // средняя цена позиции после исполнения
	Quantity   decimal.Decimal // остаток позиции после исполнения
}
