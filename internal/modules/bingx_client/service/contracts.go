package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"

	"signal_bridge/internal/models"
)

// ContractInfo: сырые метаданные контракта (для contract.Normalize).
func (c *Client) ContractInfo(ctx context.Context, symbol string) (map[string]any, error) {
	data, err := c.PublicGet(ctx, PathContracts, map[string]string{"symbol": symbol})
	if err != nil {
		return nil, err
	}

	var list []map[string]any
	if err := sonic.Unmarshal(data, &list); err != nil {
		// некоторые ответы приходят одним объектом
		var one map[string]any
		if err2 := sonic.Unmarshal(data, &one); err2 != nil {
			return nil, fmt.Errorf("ContractInfo decode: %w", err)
		}
		list = []map[string]any{one}
	}

	for _, item := range list {
		if s, _ := item["symbol"].(string); strings.EqualFold(s, symbol) {
			return item, nil
		}
	}
	return nil, &models.ValidationError{Symbol: symbol, Reason: "contract not found"}
}

func (c *Client) MarkPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	data, err := c.PublicGet(ctx, PathPremiumIndex, map[string]string{"symbol": symbol})
	if err != nil {
		return decimal.Zero, err
	}

	var idx premiumIndex
	if err := sonic.Unmarshal(data, &idx); err != nil {
		var list []premiumIndex
		if err2 := sonic.Unmarshal(data, &list); err2 != nil || len(list) == 0 {
			return decimal.Zero, fmt.Errorf("MarkPrice decode: %w", err)
		}
		idx = list[0]
	}

	px := idx.MarkPrice.Decimal()
	if !px.IsPositive() {
		return decimal.Zero, fmt.Errorf("MarkPrice %s: markPrice <= 0 (%q)", symbol, string(idx.MarkPrice))
	}
	return px, nil
}
