package state

import (
	"sync"
	"time"
)

// Position is the authoritative record of one open short.
type Position struct {
	Asset      string
	Symbol     string
	InPosition bool
	EntryPrice float64
	Quantity   float64
	Notional   float64
	EntryTime  time.Time
}

// Ledger keeps the per-asset open-position records. At most one open position
// exists per asset; entries are created on a successful entry order and
// cleared on a successful exit order. The scheduler is the only mutator; the
// lock exists for the read-only status API.
type Ledger struct {
	mu        sync.RWMutex
	positions map[string]Position
}

// NewLedger builds an empty ledger for the given assets.
func NewLedger(assets []string) *Ledger {
	positions := make(map[string]Position, len(assets))
	for _, a := range assets {
		positions[a] = Position{Asset: a}
	}
	return &Ledger{positions: positions}
}

// Open records a freshly opened short position.
func (l *Ledger) Open(asset, symbol string, entryPrice, quantity, notional float64, entryTime time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.positions[asset] = Position{
		Asset:      asset,
		Symbol:     symbol,
		InPosition: true,
		EntryPrice: entryPrice,
		Quantity:   quantity,
		Notional:   notional,
		EntryTime:  entryTime,
	}
}

// Close clears the record for an asset and returns the position that was open.
func (l *Ledger) Close(asset string) Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	p := l.positions[asset]
	l.positions[asset] = Position{Asset: asset}
	return p
}

// Position returns the record for one asset.
func (l *Ledger) Position(asset string) Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.positions[asset]
}

// InPosition reports whether the asset currently holds an open short.
func (l *Ledger) InPosition(asset string) bool {
	return l.Position(asset).InPosition
}

// Open positions in no particular order.
func (l *Ledger) OpenPositions() []Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Position
	for _, p := range l.positions {
		if p.InPosition {
			out = append(out, p)
		}
	}
	return out
}

// ActiveCount reports how many assets hold an open position.
func (l *Ledger) ActiveCount() int {
	return len(l.OpenPositions())
}

// TotalExposure sums the notional value of all open positions.
func (l *Ledger) TotalExposure() float64 {
	total := 0.0
	for _, p := range l.OpenPositions() {
		total += p.Notional
	}
	return total
}
