package bybit

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

type klineResult struct {
	Symbol string     `json:"symbol"`
	List   [][]string `json:"list"`
}

// GetKlines fetches up to limit bars of the given interval (in minutes)
// for a linear-perpetual symbol. The exchange returns bars newest-first;
// the result here is always chronological regardless of wire order.
func (c *Client) GetKlines(ctx context.Context, symbol string, interval int, limit int) ([]Kline, error) {
	params := url.Values{}
	params.Set("category", "linear")
	params.Set("symbol", symbol)
	params.Set("interval", strconv.Itoa(interval))
	params.Set("limit", strconv.Itoa(limit))

	var result klineResult
	if err := c.doGet(ctx, "/v5/market/kline", params, &result); err != nil {
		return nil, fmt.Errorf("get klines %s: %w", symbol, err)
	}

	bars := make([]Kline, 0, len(result.List))
	for _, row := range result.List {
		if len(row) < 7 {
			return nil, fmt.Errorf("get klines %s: malformed row with %d fields", symbol, len(row))
		}
		ms, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("get klines %s: bad start time %q", symbol, row[0])
		}
		bars = append(bars, Kline{
			StartTime: time.UnixMilli(ms).UTC(),
			Open:      parseFloat(row[1]),
			High:      parseFloat(row[2]),
			Low:       parseFloat(row[3]),
			Close:     parseFloat(row[4]),
			Volume:    parseFloat(row[5]),
			Turnover:  parseFloat(row[6]),
		})
	}
	return NormalizeKlines(bars), nil
}

// NormalizeKlines returns bars in ascending start-time order. The V5
// kline endpoint documents newest-first but this accepts either order.
func NormalizeKlines(bars []Kline) []Kline {
	if len(bars) >= 2 && bars[0].StartTime.After(bars[len(bars)-1].StartTime) {
		for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
			bars[i], bars[j] = bars[j], bars[i]
		}
	}
	return bars
}

type tickerResult struct {
	List []struct {
		Symbol    string `json:"symbol"`
		LastPrice string `json:"lastPrice"`
		Bid1Price string `json:"bid1Price"`
		Ask1Price string `json:"ask1Price"`
	} `json:"list"`
}

// GetTicker returns the current quote for one symbol.
func (c *Client) GetTicker(ctx context.Context, symbol string) (Ticker, error) {
	params := url.Values{}
	params.Set("category", "linear")
	params.Set("symbol", symbol)

	var result tickerResult
	if err := c.doGet(ctx, "/v5/market/tickers", params, &result); err != nil {
		return Ticker{}, fmt.Errorf("get ticker %s: %w", symbol, err)
	}
	if len(result.List) == 0 {
		return Ticker{}, fmt.Errorf("get ticker %s: empty result", symbol)
	}
	t := result.List[0]
	return Ticker{
		Symbol:    t.Symbol,
		LastPrice: parseFloat(t.LastPrice),
		Bid:       parseFloat(t.Bid1Price),
		Ask:       parseFloat(t.Ask1Price),
	}, nil
}
