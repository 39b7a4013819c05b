package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pricelens/gateway/config"
	httpDelivery "github.com/pricelens/gateway/internal/delivery/http"
	"github.com/pricelens/gateway/internal/domain"
	"github.com/pricelens/gateway/internal/infrastructure/cache"
	"github.com/pricelens/gateway/internal/infrastructure/dealsapi"
	"github.com/pricelens/gateway/internal/infrastructure/retailers"
	"github.com/pricelens/gateway/internal/logger"
	"github.com/pricelens/gateway/internal/usecase"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zapLog, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zapLog.Sync()

	zapLog.Info("Starting PriceLens gateway v1.0.0",
		zap.String("environment", cfg.Server.Environment),
		zap.String("port", cfg.Server.Port),
		zap.String("cache", cfg.Cache.Type),
		zap.Duration("cache_ttl", cfg.Cache.TTL))

	// Initialize infrastructure dependencies
	dealCache, closeCache, err := buildCache(ctx, cfg.Cache)
	if err != nil {
		zapLog.Fatal("Failed to initialize cache", zap.Error(err))
	}
	defer closeCache()

	registry, err := retailers.Load(cfg.Retailers.File)
	if err != nil {
		zapLog.Fatal("Failed to load retailer table", zap.String("file", cfg.Retailers.File), zap.Error(err))
	}
	zapLog.Info("Retailer table loaded", zap.Int("retailers", registry.Len()))

	client := dealsapi.NewClient(
		cfg.Backend.BaseURL,
		dealsapi.ClientConfig{
			Timeout:       cfg.Backend.Timeout,
			RatePerSecond: cfg.Backend.RatePerSecond,
			Burst:         cfg.Backend.Burst,
		},
		dealsapi.ForwardedToken{Default: cfg.Backend.Token},
		zapLog,
	)
	zapLog.Info("Price backend configured",
		zap.String("base_url", cfg.Backend.BaseURL),
		zap.Duration("timeout", cfg.Backend.Timeout),
		zap.Bool("service_token", cfg.Backend.Token != ""))

	// Initialize usecase layer
	comparisonService := usecase.NewComparisonService(
		dealCache,
		client,
		usecase.NewNormalizer(registry),
		zapLog,
		usecase.ComparisonServiceConfig{CacheTTL: cfg.Cache.TTL},
	)

	handler := httpDelivery.NewHandler(comparisonService, usecase.NewLatestResults(), zapLog)
	router := httpDelivery.SetupRouter(cfg, handler, zapLog)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Fatal("Server error", zap.Error(err))
		}
	}()
	zapLog.Info("Server listening", zap.String("addr", server.Addr))

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Server shutdown error", zap.Error(err))
	}
	zapLog.Info("Server exited")
}

// buildCache selects the deal cache backend. A nil repository disables caching.
func buildCache(ctx context.Context, cfg config.CacheConfig) (domain.CacheRepository, func() error, error) {
	switch cfg.Type {
	case "redis":
		redisCache, err := cache.NewRedisCache(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return redisCache, redisCache.Close, nil
	case "none":
		return nil, func() error { return nil }, nil
	default:
		memoryCache := cache.NewMemoryCache()
		return memoryCache, memoryCache.Close, nil
	}
}
