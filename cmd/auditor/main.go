package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zenithcart/checkout/internal/audit"
	"github.com/zenithcart/checkout/internal/config"
	kafkax "github.com/zenithcart/checkout/internal/kafka"
	"github.com/zenithcart/checkout/internal/logging"
	"github.com/zenithcart/checkout/internal/orders"
	"github.com/zenithcart/checkout/internal/postgres"
	"github.com/zenithcart/checkout/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logging.New(cfg.ServiceName + "-auditor")
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

	svc := &audit.Service{DB: db, Redis: rdb, Log: log}

	group := getenv("AUDITOR_GROUP", "checkout-auditor")
	workers := mustAtoi(getenv("AUDITOR_WORKERS", "4"))
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, orders.AllTopics(), workers, log)

	done := make(chan struct{})
	go func() {
		defer close(done)
		log.Info("auditor consumer started",
			zap.String("group", group),
			zap.Int("workers", workers),
			zap.Strings("topics", orders.AllTopics()))
		if err := cons.Start(ctx, svc.HandleEvent); err != nil {
			log.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
		log.Info("shutting down")
		cancel()
		<-done
	case <-done:
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustAtoi(s string) int {
	i, err := strconv.Atoi(s)
	if err != nil || i <= 0 {
		return 1
	}
	return i
}
