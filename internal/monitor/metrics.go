package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics carries the Prometheus instruments for the engine. One
// instance is shared by the scheduler and the HTTP server.
type Metrics struct {
	TicksTotal    *prometheus.CounterVec
	TickErrors    *prometheus.CounterVec
	SignalsTotal  *prometheus.CounterVec
	OrdersTotal   *prometheus.CounterVec
	OrderRetries  prometheus.Counter
	ExitsTotal    *prometheus.CounterVec
	CrossesTotal  *prometheus.CounterVec
	Equity        prometheus.Gauge
	OpenPositions prometheus.Gauge
	RegimeActive  *prometheus.GaugeVec
}

// New registers the metric set on reg. Pass prometheus.DefaultRegisterer
// in production; tests hand in their own registry for isolation.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TicksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shortseller_ticks_total",
			Help: "Bar-close evaluation ticks processed, per asset.",
		}, []string{"asset"}),
		TickErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shortseller_tick_errors_total",
			Help: "Per-asset tick failures (market data, gateway, persistence).",
		}, []string{"asset"}),
		SignalsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shortseller_signals_total",
			Help: "Signals generated, per asset and kind.",
		}, []string{"asset", "kind"}),
		OrdersTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shortseller_orders_total",
			Help: "Order submissions by result.",
		}, []string{"asset", "result"}),
		OrderRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "shortseller_order_retries_total",
			Help: "Order attempts beyond the first.",
		}),
		ExitsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shortseller_exits_total",
			Help: "Position exits by reason.",
		}, []string{"asset", "reason"}),
		CrossesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shortseller_crosses_total",
			Help: "Downward EMA crosses detected, per asset and type.",
		}, []string{"asset", "type"}),
		Equity: factory.NewGauge(prometheus.GaugeOpts{
			Name: "shortseller_equity_usdt",
			Help: "Last observed wallet equity in USDT.",
		}),
		OpenPositions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "shortseller_open_positions",
			Help: "Number of currently open short positions.",
		}),
		RegimeActive: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "shortseller_regime_active",
			Help: "1 when the asset regime is ACTIVE, 0 otherwise.",
		}, []string{"asset"}),
	}
}
