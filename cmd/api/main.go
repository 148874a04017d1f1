package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-realtime-checkout/internal/checkout"
	"github.com/ariefcatur/go-realtime-checkout/internal/config"
	"github.com/ariefcatur/go-realtime-checkout/internal/httpx"
	kafkax "github.com/ariefcatur/go-realtime-checkout/internal/kafka"
	"github.com/ariefcatur/go-realtime-checkout/internal/logger"
	"github.com/ariefcatur/go-realtime-checkout/internal/metrics"
	"github.com/ariefcatur/go-realtime-checkout/internal/orders"
	"github.com/ariefcatur/go-realtime-checkout/internal/redisx"
	"github.com/ariefcatur/go-realtime-checkout/internal/store"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	zl, err := logger.New(cfg.Env, cfg.ServiceName)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	decimal.MarshalJSONWithoutQuotes = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Store
	st, closeStore, err := store.Open(ctx, cfg, zl)
	if err != nil {
		zl.Fatal("store", zap.Error(err))
	}
	defer closeStore()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers
	bus := kafkax.NewBus(cfg.KafkaBrokers, []string{
		orders.TopicOrderCreated,
		orders.TopicOrderUpdated,
		orders.TopicReconciliationRequired,
	}, 1024, zl)
	bus.Start(ctx)

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	cm := metrics.NewCheckout(reg)

	// Checkout
	strategy, err := checkout.SelectStrategy(ctx, st, checkout.Mode(cfg.CheckoutStrategy), checkout.Options{
		Publisher: bus,
		Producer:  cfg.ServiceName,
		Metrics:   cm,
		Log:       zl,
	})
	if err != nil {
		zl.Fatal("checkout strategy", zap.Error(err))
	}
	zl.Info("checkout strategy selected", zap.String("strategy", strategy.Name()))

	repos := st.Repos()
	oh := &httpx.OrdersHandler{
		Checkout: &checkout.Service{
			Strategy:  strategy,
			Guard:     &checkout.Guard{Orders: repos.Orders, Cache: &redisx.IdempotencyCache{RDB: rdb}, Log: zl},
			Publisher: bus,
			Producer:  cfg.ServiceName,
			Metrics:   cm,
			Log:       zl,
		},
		Orders:  &orders.Service{Store: repos.Orders, Publisher: bus, Producer: cfg.ServiceName, Log: zl},
		Auth:    &httpx.Auth{Secret: []byte(cfg.JWTSecret)},
		Log:     zl,
		Timeout: cfg.CheckoutTimeout,
	}
	router := httpx.NewRouter(zl, metrics.NewServerMetrics(reg, "api"))
	router.Handle("/metrics", metrics.Handler(reg))
	oh.Register(router)

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	// graceful shutdown
	go func() {
		zl.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zl.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	zl.Info("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	cancel()         // stop producer loops
	bus.WaitClosed() // flush
}
