package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"

	"signal_bridge/internal/models"
)

func (c *Client) Balance(ctx context.Context) (models.Balance, error) {
	data, err := c.SignedGet(ctx, PathBalance, nil)
	if err != nil {
		return models.Balance{}, err
	}

	var r balanceResponse
	if err := sonic.Unmarshal(data, &r); err != nil {
		return models.Balance{}, fmt.Errorf("Balance decode: %w", err)
	}
	return models.Balance{
		Asset:            r.Balance.Asset,
		Balance:          r.Balance.Balance.Decimal(),
		Equity:           r.Balance.Equity.Decimal(),
		AvailableMargin:  r.Balance.AvailableMargin.Decimal(),
		UnrealizedProfit: r.Balance.UnrealizedProfit.Decimal(),
	}, nil
}

// Positions: открытые позиции (пустой symbol = все). Нулевые отбрасываются.
func (c *Client) Positions(ctx context.Context, symbol string) ([]models.ExchangePosition, error) {
	params := map[string]string{}
	if symbol != "" {
		params["symbol"] = symbol
	}
	data, err := c.SignedGet(ctx, PathPositions, params)
	if err != nil {
		return nil, err
	}

	var list []positionEntry
	if err := sonic.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("Positions decode: %w", err)
	}

	out := make([]models.ExchangePosition, 0, len(list))
	for _, p := range list {
		qty := p.PositionAmt.Decimal().Abs()
		if qty.IsZero() {
			continue
		}
		side := models.PositionSide(strings.ToUpper(p.PositionSide))
		if side == models.SideBoth || side == "" {
			// one-way: знак количества задаёт сторону
			side = models.SideLong
			if p.PositionAmt.Decimal().IsNegative() {
				side = models.SideShort
			}
		}
		out = append(out, models.ExchangePosition{
			Symbol:     p.Symbol,
			Side:       side,
			Quantity:   qty,
			EntryPrice: p.AvgPrice.Decimal(),
			MarkPrice:  p.MarkPrice.Decimal(),
			Leverage:   p.Leverage.Int(),
		})
	}
	return out, nil
}
