package bybit

import (
	"context"
	"fmt"
	"net/url"
)

type instrumentsResult struct {
	List []struct {
		Symbol        string `json:"symbol"`
		Status        string `json:"status"`
		LotSizeFilter struct {
			MinOrderQty      string `json:"minOrderQty"`
			MaxOrderQty      string `json:"maxOrderQty"`
			QtyStep          string `json:"qtyStep"`
			MinNotionalValue string `json:"minNotionalValue"`
		} `json:"lotSizeFilter"`
		PriceFilter struct {
			TickSize string `json:"tickSize"`
		} `json:"priceFilter"`
	} `json:"list"`
}

// InstrumentSpec returns the trading constraints for a symbol. Specs are
// cached after the first fetch; pass refresh to bypass the cache, which
// matters between order retries because the exchange can change filters
// intraday.
func (c *Client) InstrumentSpec(ctx context.Context, symbol string, refresh bool) (InstrumentSpec, error) {
	if !refresh {
		c.specMu.RLock()
		spec, ok := c.specs[symbol]
		c.specMu.RUnlock()
		if ok {
			return spec, nil
		}
	}

	params := url.Values{}
	params.Set("category", "linear")
	params.Set("symbol", symbol)

	var result instrumentsResult
	if err := c.doGet(ctx, "/v5/market/instruments-info", params, &result); err != nil {
		return InstrumentSpec{}, fmt.Errorf("instrument info %s: %w", symbol, err)
	}
	if len(result.List) == 0 {
		return InstrumentSpec{}, fmt.Errorf("instrument info %s: unknown symbol", symbol)
	}

	row := result.List[0]
	spec := InstrumentSpec{
		Symbol:      row.Symbol,
		MinQty:      parseFloat(row.LotSizeFilter.MinOrderQty),
		MaxQty:      parseFloat(row.LotSizeFilter.MaxOrderQty),
		QtyStep:     parseFloat(row.LotSizeFilter.QtyStep),
		MinNotional: parseFloat(row.LotSizeFilter.MinNotionalValue),
		PriceTick:   parseFloat(row.PriceFilter.TickSize),
		Status:      row.Status,
	}

	c.specMu.Lock()
	c.specs[symbol] = spec
	c.specMu.Unlock()
	return spec, nil
}
