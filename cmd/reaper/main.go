package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-core.git/internal/bridge"
	"github.com/ariefcatur/go-order-core.git/internal/clock"
	"github.com/ariefcatur/go-order-core.git/internal/config"
	"github.com/ariefcatur/go-order-core.git/internal/coupon"
	"github.com/ariefcatur/go-order-core.git/internal/integration"
	"github.com/ariefcatur/go-order-core.git/internal/locker"
	"github.com/ariefcatur/go-order-core.git/internal/orders"
	"github.com/ariefcatur/go-order-core.git/internal/postgres"
	"github.com/ariefcatur/go-order-core.git/internal/reaper"
	"github.com/ariefcatur/go-order-core.git/internal/redisx"
	"github.com/ariefcatur/go-order-core.git/internal/saga"
	"github.com/ariefcatur/go-order-core.git/internal/stock"
)

func main() {
	_ = godotenv.Load()

	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	prod := bridge.NewProducer(cfg.KafkaBrokers, 1024, log)
	prod.Start(ctx)
	facts := bridge.New(prod, cfg.ServiceName, log)

	clk := clock.NewSystem()
	stockRepo := &stock.Repo{DB: db}
	orderRepo := &orders.Repo{DB: db}
	stockLedger := stock.NewLedger(stockRepo, clk, cfg.HoldWindow, log)
	couponLedger := coupon.NewLedger(&coupon.Repo{DB: db}, clk, coupon.Config{}, log)

	notifier := integration.NewNotifier(
		integration.NewHTTPClient(cfg.ERPBaseURL, cfg.LogisticsBaseURL),
		&integration.LogRepo{DB: db},
		clk, log,
	)

	orch := saga.NewOrchestrator(
		locker.NewRedis(rdb, cfg.LockRetry),
		postgres.NewTxRunner(db),
		stockLedger,
		couponLedger,
		orderRepo,
		notifier,
		facts,
		clk,
		saga.Config{LockWait: cfg.LockWait, LockLease: cfg.LockLease, HoldWindow: cfg.HoldWindow},
		log,
	)

	r := reaper.New(orderRepo, stockLedger, orch, clk, cfg.ReaperInterval, cfg.ReaperBatch, log)

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Info("shutting down")
		cancel()
	}()

	r.Run(ctx)

	prod.Close()
	prod.WaitClosed()
}
