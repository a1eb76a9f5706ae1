package bybit

import (
	"context"
	"fmt"
	"strconv"
)

type orderResult struct {
	OrderID     string `json:"orderId"`
	OrderLinkID string `json:"orderLinkId"`
}

func formatQty(q float64) string {
	return strconv.FormatFloat(q, 'f', -1, 64)
}

// PlaceOrder submits an order on the linear category. Stop loss and take
// profit, when set, are attached to the position as full-mode market
// triggers so the exchange enforces them even if this process dies.
func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	body := map[string]any{
		"category":  "linear",
		"symbol":    req.Symbol,
		"side":      req.Side,
		"orderType": req.Type,
		"qty":       formatQty(req.Qty),
	}
	if req.Type == "Limit" {
		body["price"] = formatQty(req.Price)
		body["timeInForce"] = "GTC"
	}
	if req.ReduceOnly {
		body["reduceOnly"] = true
		body["timeInForce"] = "IOC"
	}
	if req.StopLoss > 0 {
		body["stopLoss"] = formatQty(req.StopLoss)
		body["slTriggerBy"] = "LastPrice"
		body["slOrderType"] = "Market"
	}
	if req.TakeProfit > 0 {
		body["takeProfit"] = formatQty(req.TakeProfit)
		body["tpTriggerBy"] = "LastPrice"
		body["tpOrderType"] = "Market"
	}
	if req.StopLoss > 0 || req.TakeProfit > 0 {
		body["tpslMode"] = "Full"
	}
	if req.LinkID != "" {
		body["orderLinkId"] = req.LinkID
	}

	var result orderResult
	if err := c.doPost(ctx, "/v5/order/create", body, &result); err != nil {
		return OrderResult{}, fmt.Errorf("place order %s %s: %w", req.Side, req.Symbol, err)
	}
	return OrderResult{OrderID: result.OrderID, LinkID: result.OrderLinkID}, nil
}

// ClosePosition flattens whatever position is currently open on symbol
// with a reduce-only market order sized to the exchange-reported net
// size. Returns false without error when there is nothing to close.
func (c *Client) ClosePosition(ctx context.Context, symbol string) (bool, error) {
	positions, err := c.GetPositions(ctx, symbol)
	if err != nil {
		return false, err
	}
	var open *Position
	for i := range positions {
		if positions[i].Symbol == symbol {
			open = &positions[i]
			break
		}
	}
	if open == nil {
		return false, nil
	}

	side := "Buy"
	if open.Side == "Buy" {
		side = "Sell"
	}
	_, err = c.PlaceOrder(ctx, OrderRequest{
		Symbol:     symbol,
		Side:       side,
		Type:       "Market",
		Qty:        open.Size,
		ReduceOnly: true,
	})
	if err != nil {
		return false, fmt.Errorf("close position %s: %w", symbol, err)
	}
	return true, nil
}
