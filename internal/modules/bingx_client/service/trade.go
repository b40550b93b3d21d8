package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"signal_bridge/internal/models"
)

func (c *Client) PlaceOrder(ctx context.Context, req models.OrderRequest) (models.OrderResult, error) {
	if !req.Quantity.IsPositive() {
		return models.OrderResult{}, fmt.Errorf("PlaceOrder: quantity <= 0")
	}

	data, err := c.SignedPost(ctx, PathOrder, req.Params())
	if err != nil {
		var be *models.BusinessError
		if req.ClientOrderID != "" && errors.As(err, &be) && isDuplicateClientID(be.Message) {
			// повторная отправка уже принятого ордера
			c.log.Info("duplicate clientOrderId treated as success",
				zap.String("symbol", req.Symbol),
				zap.String("client_order_id", req.ClientOrderID),
			)
			return models.OrderResult{ClientOrderID: req.ClientOrderID, Symbol: req.Symbol, Status: "DUPLICATE"}, nil
		}
		return models.OrderResult{}, err
	}

	var r orderResponse
	if err := sonic.Unmarshal(data, &r); err != nil {
		return models.OrderResult{}, fmt.Errorf("PlaceOrder decode: %w", err)
	}

	res := models.OrderResult{
		OrderID:       string(r.Order.OrderID),
		ClientOrderID: string(r.Order.ClientOrderID),
		Symbol:        r.Order.Symbol,
		Status:        r.Order.Status,
		AvgPrice:      r.Order.AvgPrice.Decimal(),
		ExecutedQty:   r.Order.ExecutedQty.Decimal(),
	}
	if res.Symbol == "" {
		res.Symbol = req.Symbol
	}
	if res.ClientOrderID == "" {
		res.ClientOrderID = req.ClientOrderID
	}
	return res, nil
}

func (c *Client) OpenOrders(ctx context.Context, symbol string) ([]models.OpenOrder, error) {
	params := map[string]string{}
	if symbol != "" {
		params["symbol"] = symbol
	}
	data, err := c.SignedGet(ctx, PathOpenOrders, params)
	if err != nil {
		return nil, err
	}

	var r openOrdersResponse
	if err := sonic.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("OpenOrders decode: %w", err)
	}

	out := make([]models.OpenOrder, 0, len(r.Orders))
	for _, o := range r.Orders {
		out = append(out, models.OpenOrder{
			OrderID:      string(o.OrderID),
			Symbol:       o.Symbol,
			Side:         models.OrderSide(strings.ToUpper(o.Side)),
			PositionSide: models.PositionSide(strings.ToUpper(o.PositionSide)),
			Type:         o.Type,
			Price:        o.Price.Decimal(),
			Quantity:     o.OrigQty.Decimal(),
			Status:       o.Status,
		})
	}
	return out, nil
}

func (c *Client) SetLeverage(ctx context.Context, symbol string, side models.PositionSide, leverage int) error {
	if leverage < 1 {
		return fmt.Errorf("SetLeverage: leverage < 1")
	}
	_, err := c.SignedPost(ctx, PathLeverage, map[string]string{
		"symbol":   symbol,
		"side":     string(side),
		"leverage": strconv.Itoa(leverage),
	})
	return err
}

// SetMarginType: ISOLATED | CROSSED.
func (c *Client) SetMarginType(ctx context.Context, symbol, marginType string) error {
	mt := strings.ToUpper(strings.TrimSpace(marginType))
	if mt == "CROSS" {
		mt = "CROSSED"
	}
	if mt != "ISOLATED" && mt != "CROSSED" {
		return fmt.Errorf("SetMarginType: unsupported %q", marginType)
	}
	_, err := c.SignedPost(ctx, PathMarginType, map[string]string{
		"symbol":     symbol,
		"marginType": mt,
	})
	return err
}

func isDuplicateClientID(msg string) bool {
	m := strings.ToLower(msg)
	return strings.Contains(m, "duplicate") && strings.Contains(m, "client")
}
