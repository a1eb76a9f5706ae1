package bybit

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
)

type walletResult struct {
	List []struct {
		Coin []struct {
			Coin                string `json:"coin"`
			WalletBalance       string `json:"walletBalance"`
			AvailableToWithdraw string `json:"availableToWithdraw"`
		} `json:"coin"`
	} `json:"list"`
}

// GetBalance returns the unified-account balance for one coin.
func (c *Client) GetBalance(ctx context.Context, coin string) (Balance, error) {
	params := url.Values{}
	params.Set("accountType", "UNIFIED")
	params.Set("coin", coin)

	var result walletResult
	if err := c.doGet(ctx, "/v5/account/wallet-balance", params, &result); err != nil {
		return Balance{}, fmt.Errorf("wallet balance: %w", err)
	}
	for _, acct := range result.List {
		for _, row := range acct.Coin {
			if row.Coin == coin {
				return Balance{
					Coin:      row.Coin,
					Wallet:    parseFloat(row.WalletBalance),
					Available: parseFloat(row.AvailableToWithdraw),
				}, nil
			}
		}
	}
	return Balance{}, fmt.Errorf("wallet balance: coin %s not found", coin)
}

type positionsResult struct {
	List []struct {
		Symbol        string `json:"symbol"`
		Side          string `json:"side"`
		Size          string `json:"size"`
		AvgPrice      string `json:"avgPrice"`
		PositionValue string `json:"positionValue"`
		Leverage      string `json:"leverage"`
	} `json:"list"`
}

// GetPositions returns the open linear positions, optionally filtered to
// one symbol. Rows with zero size are dropped.
func (c *Client) GetPositions(ctx context.Context, symbol string) ([]Position, error) {
	params := url.Values{}
	params.Set("category", "linear")
	if symbol != "" {
		params.Set("symbol", symbol)
	} else {
		params.Set("settleCoin", "USDT")
	}

	var result positionsResult
	if err := c.doGet(ctx, "/v5/position/list", params, &result); err != nil {
		return nil, fmt.Errorf("position list: %w", err)
	}

	positions := make([]Position, 0, len(result.List))
	for _, row := range result.List {
		size := parseFloat(row.Size)
		if size == 0 {
			continue
		}
		positions = append(positions, Position{
			Symbol:        row.Symbol,
			Side:          row.Side,
			Size:          size,
			AvgPrice:      parseFloat(row.AvgPrice),
			PositionValue: parseFloat(row.PositionValue),
			Leverage:      parseFloat(row.Leverage),
		})
	}
	return positions, nil
}

// SetLeverage sets both buy and sell leverage for a symbol. retCode
// 110043 means the leverage is already at the requested value; that is
// treated as success.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage float64) error {
	lv := strconv.FormatFloat(leverage, 'f', -1, 64)
	body := map[string]any{
		"category":     "linear",
		"symbol":       symbol,
		"buyLeverage":  lv,
		"sellLeverage": lv,
	}
	err := c.doPost(ctx, "/v5/position/set-leverage", body, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code == 110043 {
		return nil
	}
	if err != nil {
		return fmt.Errorf("set leverage %s: %w", symbol, err)
	}
	return nil
}
