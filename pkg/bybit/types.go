package bybit

import "time"

// Kline is one OHLCV bar, normalized to chronological order by GetKlines.
type Kline struct {
	StartTime time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	Turnover  float64
}

// InstrumentSpec holds the exchange-imposed constraints for one symbol.
type InstrumentSpec struct {
	Symbol      string
	MinQty      float64
	MaxQty      float64
	QtyStep     float64
	MinNotional float64
	PriceTick   float64
	Status      string
}

// Trading reports whether the instrument currently accepts orders.
func (s InstrumentSpec) Trading() bool {
	return s.Status == "Trading"
}

// Balance is the USDT view of the unified account.
type Balance struct {
	Coin      string
	Wallet    float64
	Available float64
}

// Position is one exchange-side position row.
type Position struct {
	Symbol        string
	Side          string // "Buy", "Sell" or "None"
	Size          float64
	AvgPrice      float64
	PositionValue float64
	Leverage      float64
}

// Ticker is the last-price view of one symbol.
type Ticker struct {
	Symbol    string
	LastPrice float64
	Bid       float64
	Ask       float64
}

// OrderRequest describes one order submission.
type OrderRequest struct {
	Symbol     string
	Side       string // "Buy" or "Sell"
	Type       string // "Market" or "Limit"
	Qty        float64
	Price      float64 // limit orders only
	StopLoss   float64
	TakeProfit float64
	ReduceOnly bool
	LinkID     string // client order id (orderLinkId)
}

// OrderResult is the exchange acknowledgement of a submission.
type OrderResult struct {
	OrderID string
	LinkID  string
}
