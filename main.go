package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"shortseller/internal/api"
	"shortseller/internal/engine"
	"shortseller/internal/events"
	"shortseller/internal/monitor"
	"shortseller/internal/notify"
	"shortseller/internal/order"
	"shortseller/internal/persistence"
	"shortseller/internal/risk"
	"shortseller/internal/state"
	"shortseller/internal/strategy"
	"shortseller/pkg/bybit"
	"shortseller/pkg/config"
	"shortseller/pkg/lockfile"
)

var buildVersion = "dev"

func main() {
	log.SetFlags(log.LstdFlags | log.LUTC)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("startup: %v", err)
	}

	lock, err := lockfile.Acquire(cfg.LockPath)
	if err != nil {
		log.Fatalf("startup: %v", err)
	}
	defer lock.Release()

	assets, err := config.LoadAssets(cfg.AssetsPath, cfg)
	if err != nil {
		log.Fatalf("startup: %v", err)
	}
	names := make([]string, len(assets))
	for i, a := range assets {
		names[i] = a.Name
	}
	log.Printf("startup: trading %v on %s", names, cfg.BaseURL())

	var store *persistence.Store
	if cfg.DBEnabled {
		store, err = persistence.Open(cfg.DBPath)
		if err != nil {
			// Trading continues without history rather than not at all.
			log.Printf("startup: persistence disabled: %v", err)
			store = nil
		} else {
			defer store.Close()
		}
	}

	client := bybit.NewClient(bybit.Config{
		APIKey:    cfg.BybitAPIKey,
		APISecret: cfg.BybitAPISecret,
		BaseURL:   cfg.BaseURL(),
	})

	bus := events.NewBus()
	metrics := monitor.New(prometheus.DefaultRegisterer)
	ledger := state.NewLedger(names)

	stratParams := strategy.DefaultParams()
	stratParams.DailyCrossLimit = cfg.DailyCrossLimit
	strat := strategy.NewEngine(names, stratParams)

	exits := risk.NewEvaluator(risk.Params{
		StopLossPct:      cfg.StopLossPct,
		TakeProfitPct:    cfg.TakeProfitPct,
		MaxHold:          cfg.MaxHold(),
		ExitOnRegimeFlip: cfg.ExitOnRegimeFlip,
	})
	for _, a := range assets {
		exits.SetAssetParams(a.Name, risk.Params{
			StopLossPct:      a.StopLossPct,
			TakeProfitPct:    a.TakeProfitPct,
			MaxHold:          cfg.MaxHold(),
			ExitOnRegimeFlip: cfg.ExitOnRegimeFlip,
		})
	}
	quick := risk.QuickExitPolicy{
		Threshold: time.Duration(cfg.QuickExitThresholdMin) * time.Minute,
		Cooldown:  time.Duration(cfg.QuickExitCooldownMin) * time.Minute,
	}

	exec := order.NewExecutor(client)
	exec.OnRetry = metrics.OrderRetries.Inc

	sched := engine.New(engine.ParamsFromConfig(cfg), assets, client,
		exec, strat, ledger, exits, quick, bus, store, metrics)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	syncCtx, syncCancel := context.WithTimeout(ctx, time.Minute)
	if err := sched.Sync(syncCtx); err != nil {
		syncCancel()
		log.Fatalf("startup: %v", err)
	}
	syncCancel()

	notifier := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID)
	go notifier.Run(ctx, bus)

	env := "mainnet"
	switch {
	case cfg.BybitDemo:
		env = "demo"
	case cfg.BybitTestnet:
		env = "testnet"
	}
	server := api.NewServer(ledger, strat, store, api.SystemMeta{
		Assets:           names,
		ExecutionEnabled: cfg.ExecutionEnabled,
		Environment:      env,
		Version:          buildVersion,
	})
	go func() {
		if err := server.Start(":" + cfg.Port); err != nil {
			log.Fatalf("api server: %v", err)
		}
	}()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		log.Println("shutting down")
		cancel()
	}()

	if err := sched.Run(ctx); err != nil {
		log.Fatalf("engine: %v", err)
	}
}
