package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the short-selling engine.
type Config struct {
	Port string

	// Bybit
	BybitAPIKey    string
	BybitAPISecret string
	BybitTestnet   bool
	BybitDemo      bool

	// Strategy
	EMAShortPeriod   int
	EMALongPeriod    int
	KlineIntervalMin int
	DailyCrossLimit  int

	// Risk
	StopLossPct           float64
	TakeProfitPct         float64
	MaxHoldHours          int
	QuickExitThresholdMin int
	QuickExitCooldownMin  int
	ExitOnRegimeFlip      bool

	// Sizing
	AllocationPct float64
	Leverage      float64

	// Execution toggle
	ExecutionEnabled bool

	// Assets
	AssetsPath string

	// Persistence
	DBPath    string
	DBEnabled bool

	// Notifications
	TelegramToken  string
	TelegramChatID string

	// Single instance
	LockPath string
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	cfg := &Config{
		Port:                  getEnv("PORT", "8080"),
		BybitAPIKey:           os.Getenv("BYBIT_API_KEY"),
		BybitAPISecret:        os.Getenv("BYBIT_API_SECRET"),
		BybitTestnet:          getEnv("BYBIT_TESTNET", "false") == "true",
		BybitDemo:             getEnv("BYBIT_DEMO", "false") == "true",
		EMAShortPeriod:        getEnvInt("EMA_SHORT_PERIOD", 240),
		EMALongPeriod:         getEnvInt("EMA_LONG_PERIOD", 600),
		KlineIntervalMin:      getEnvInt("KLINE_INTERVAL_MIN", 5),
		DailyCrossLimit:       getEnvInt("DAILY_CROSS_LIMIT", 12),
		StopLossPct:           getEnvFloat("STOP_LOSS_PCT", 0.015),
		TakeProfitPct:         getEnvFloat("TAKE_PROFIT_PCT", 0.06),
		MaxHoldHours:          getEnvInt("MAX_HOLD_HOURS", 24),
		QuickExitThresholdMin: getEnvInt("QUICK_EXIT_THRESHOLD_MIN", 60),
		QuickExitCooldownMin:  getEnvInt("QUICK_EXIT_COOLDOWN_MIN", 120),
		ExitOnRegimeFlip:      getEnv("EXIT_ON_REGIME_FLIP", "false") == "true",
		AllocationPct:         getEnvFloat("ALLOCATION_PCT", 0.07),
		Leverage:              getEnvFloat("LEVERAGE", 10),
		ExecutionEnabled:      getEnv("EXECUTION_ENABLED", "true") == "true",
		AssetsPath:            getEnv("ASSETS_PATH", "./assets.yaml"),
		DBPath:                getEnv("DB_PATH", "./data/shortseller.db"),
		DBEnabled:             getEnv("DB_ENABLED", "true") == "true",
		TelegramToken:         os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:        os.Getenv("TELEGRAM_CHAT_ID"),
		LockPath:              getEnv("LOCK_PATH", "/tmp/shortseller.lock"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate rejects configurations the engine cannot run with. A bad
// value here is fatal at startup rather than a surprise mid-session.
func (c *Config) validate() error {
	if c.BybitAPIKey == "" || c.BybitAPISecret == "" {
		return fmt.Errorf("config: BYBIT_API_KEY and BYBIT_API_SECRET are required")
	}
	if c.EMAShortPeriod <= 0 || c.EMALongPeriod <= 0 {
		return fmt.Errorf("config: EMA periods must be positive")
	}
	if c.EMAShortPeriod >= c.EMALongPeriod {
		return fmt.Errorf("config: EMA_SHORT_PERIOD (%d) must be below EMA_LONG_PERIOD (%d)",
			c.EMAShortPeriod, c.EMALongPeriod)
	}
	if c.KlineIntervalMin <= 0 {
		return fmt.Errorf("config: KLINE_INTERVAL_MIN must be positive")
	}
	if c.StopLossPct <= 0 || c.StopLossPct >= 1 {
		return fmt.Errorf("config: STOP_LOSS_PCT %v out of (0,1)", c.StopLossPct)
	}
	if c.TakeProfitPct <= 0 || c.TakeProfitPct >= 1 {
		return fmt.Errorf("config: TAKE_PROFIT_PCT %v out of (0,1)", c.TakeProfitPct)
	}
	if c.AllocationPct <= 0 || c.AllocationPct > 1 {
		return fmt.Errorf("config: ALLOCATION_PCT %v out of (0,1]", c.AllocationPct)
	}
	if c.Leverage < 1 || c.Leverage > 100 {
		return fmt.Errorf("config: LEVERAGE %v out of [1,100]", c.Leverage)
	}
	return nil
}

// BaseURL picks the REST endpoint for the configured environment. Demo
// takes precedence over testnet since it needs dedicated credentials.
func (c *Config) BaseURL() string {
	switch {
	case c.BybitDemo:
		return "https://api-demo.bybit.com"
	case c.BybitTestnet:
		return "https://api-testnet.bybit.com"
	default:
		return "https://api.bybit.com"
	}
}

// MaxHold returns the position time limit as a duration.
func (c *Config) MaxHold() time.Duration {
	return time.Duration(c.MaxHoldHours) * time.Hour
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
