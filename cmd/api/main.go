package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zenithcart/checkout/internal/config"
	"github.com/zenithcart/checkout/internal/coupon"
	"github.com/zenithcart/checkout/internal/httpx"
	"github.com/zenithcart/checkout/internal/inventory"
	kafkax "github.com/zenithcart/checkout/internal/kafka"
	"github.com/zenithcart/checkout/internal/logging"
	"github.com/zenithcart/checkout/internal/orders"
	"github.com/zenithcart/checkout/internal/payments"
	"github.com/zenithcart/checkout/internal/postgres"
	"github.com/zenithcart/checkout/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logging.New(cfg.ServiceName)
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, log)
	// The producer runs on its own context: shutdown happens through
	// Close/WaitClosed so queued events still flush.
	prod.Start(context.Background())

	ledger := &inventory.Ledger{DB: db}
	cart := &inventory.PGCartReader{DB: db}
	couponStore := &coupon.PGStore{DB: db}
	couponEngine := coupon.NewEngine(couponStore)

	repo := &orders.Repo{
		DB:           db,
		Ledger:       ledger,
		Coupons:      couponStore,
		CouponEngine: couponEngine,
		NumberPrefix: cfg.OrderNumberPrefix,
	}

	engine := &payments.Engine{
		Store:         payments.NewPGStore(db, ledger),
		Gateway:       payments.NewHTTPGateway(cfg.GatewayBaseURL, cfg.GatewayKeyID, cfg.GatewayKeySecret, cfg.GatewayTimeout),
		Orders:        repo,
		Producer:      prod,
		Log:           log,
		Name:          cfg.ServiceName,
		KeyID:         cfg.GatewayKeyID,
		KeySecret:     cfg.GatewayKeySecret,
		WebhookSecret: cfg.GatewayWebhookSecret,
		Currency:      cfg.Currency,
		Timeout:       cfg.GatewayTimeout,
	}

	svc := &orders.Service{
		Repo:     repo,
		Ledger:   ledger,
		Cart:     cart,
		Redis:    rdb,
		Producer: prod,
		Refunder: engine,
		Log:      log,
		Name:     cfg.ServiceName,
	}

	router := httpx.NewRouter()
	(&httpx.StockHandler{Checker: &inventory.Checker{Reader: ledger, Cart: cart}, Log: log}).Register(router)
	(&httpx.OrdersHandler{Service: svc, Payments: engine, Log: log}).Register(router)
	(&httpx.PaymentsHandler{Engine: engine, Log: log}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	// Periodic sweep for abandoned pending_payment orders.
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := svc.ExpirePending(ctx, 30*time.Minute)
				if err != nil {
					log.Warn("expire sweep failed", zap.Error(err))
					continue
				}
				if n > 0 {
					log.Info("expired pending orders", zap.Int("count", n))
				}
			}
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutCancel()
	_ = srv.Shutdown(shutCtx)
	cancel()
	prod.Close()
	prod.WaitClosed()
}
