package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shopcheckout/internal/cache"
	"shopcheckout/internal/config"
	"shopcheckout/internal/db"
	"shopcheckout/internal/gateway"
	internalhttp "shopcheckout/internal/http"
	"shopcheckout/internal/services"
	"shopcheckout/internal/store"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DB.DSN)
	if err != nil {
		logger.Fatal("db connect failed", zap.Error(err))
	}
	defer pool.Close()

	var items *cache.ItemCache
	if cfg.Redis.Addr != "" {
		rdb, err := cache.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password)
		if err != nil {
			logger.Fatal("redis connect failed", zap.Error(err))
		}
		defer rdb.Close()
		items = cache.NewItemCache(rdb, cfg.ItemCacheTTL())
		logger.Info("item cache enabled", zap.String("addr", cfg.Redis.Addr))
	}

	st := store.New(pool)
	gw := gateway.New(gateway.Config{
		APIKey:       cfg.Gateway.APIKey,
		APISecret:    cfg.Gateway.APISecret,
		EndpointBase: cfg.Gateway.EndpointBase,
		Timeout:      cfg.GatewayTimeout(),
	})

	orderSvc := &services.OrderService{Store: st, Items: items, Logger: logger}
	reconcileSvc := &services.ReconcileService{Store: st, Gateway: gw, Logger: logger}

	h := internalhttp.NewHandler(orderSvc, reconcileSvc, logger)
	srv := internalhttp.NewServer(h, logger)

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Router,
	}

	go func() {
		logger.Info("api listening", zap.String("addr", cfg.Server.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctxShutdown)
}
