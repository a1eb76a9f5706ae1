package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"shortseller/internal/persistence"
	"shortseller/internal/state"
	"shortseller/internal/strategy"
)

// Server exposes a read-only view of the engine: health, positions,
// regimes, and recent fills. There is no mutating endpoint; control
// stays with the process environment.
type Server struct {
	Router *gin.Engine
	Ledger *state.Ledger
	Strat  *strategy.Engine
	Store  *persistence.Store
	Meta   SystemMeta

	started time.Time
}

// SystemMeta describes runtime status exposed to operators.
type SystemMeta struct {
	Assets           []string
	ExecutionEnabled bool
	Environment      string // "mainnet", "testnet" or "demo"
	Version          string
}

// NewServer wires routes and middleware.
func NewServer(ledger *state.Ledger, strat *strategy.Engine, store *persistence.Store, meta SystemMeta) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RateLimitMiddleware())

	s := &Server{
		Router:  r,
		Ledger:  ledger,
		Strat:   strat,
		Store:   store,
		Meta:    meta,
		started: time.Now(),
	}
	s.routes()
	return s
}

// Start serves until the listener fails.
func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiGroup := s.Router.Group("/api")
	apiGroup.GET("/status", s.status)
	apiGroup.GET("/positions", s.positions)
	apiGroup.GET("/fills", s.fills)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"assets":            s.Meta.Assets,
		"execution_enabled": s.Meta.ExecutionEnabled,
		"environment":       s.Meta.Environment,
		"version":           s.Meta.Version,
		"open_positions":    s.Ledger.ActiveCount(),
		"total_exposure":    s.Ledger.TotalExposure(),
		"regimes":           s.Strat.Regimes(),
	})
}

func (s *Server) positions(c *gin.Context) {
	open := s.Ledger.OpenPositions()
	out := make([]gin.H, 0, len(open))
	for _, p := range open {
		out = append(out, gin.H{
			"asset":       p.Asset,
			"symbol":      p.Symbol,
			"entry_price": p.EntryPrice,
			"qty":         p.Quantity,
			"notional":    p.Notional,
			"entry_time":  p.EntryTime.UTC(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"positions": out})
}

func (s *Server) fills(c *gin.Context) {
	fills, err := s.Store.RecentFills(50)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]gin.H, 0, len(fills))
	for _, f := range fills {
		out = append(out, gin.H{
			"asset":       f.Asset,
			"symbol":      f.Symbol,
			"side":        f.Side,
			"price":       f.Price,
			"qty":         f.Qty,
			"notional":    f.Notional,
			"pnl":         f.PnL,
			"pnl_pct":     f.PnLPct,
			"exit_reason": f.ExitReason,
			"created_at":  f.CreatedAt.UTC(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"fills": out})
}
