package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-backend/api/routes"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}

	defer func() {
		if err := multierr.Combine(dbClient.Close(), redisClient.Close()); err != nil {
			logg.Error(context.Background(), "error closing resources", err)
		}
	}()

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	httpMetrics := metrics.NewHTTPMetrics(promRegistry)
	orderMetrics := metrics.NewOrderMetrics(promRegistry)
	cartMetrics := metrics.NewCartMetrics(promRegistry)

	handler, err := buildHandler(cfg, logg, dbClient, redisClient, promRegistry, httpMetrics, orderMetrics, cartMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to wire services", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		logg.Info(logg.WithField(ctx, "port", port), "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			logg.Error(ctx, "api server stopped unexpectedly", err)
		}
	case <-ctx.Done():
		logg.Info(context.Background(), "shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(shutdownCtx, "api server shutdown failed", err)
	}
	logg.Info(shutdownCtx, "api server stopped")
}

func buildHandler(
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	redisClient *redis.Client,
	gatherer prometheus.Gatherer,
	httpMetrics *metrics.HTTPMetrics,
	orderMetrics *metrics.OrderMetrics,
	cartMetrics *metrics.CartMetrics,
) (http.Handler, error) {
	conn := dbClient.DB()

	catalog, err := products.NewProvider(products.NewRepository(conn), cfg.Catalog, logg)
	if err != nil {
		return nil, err
	}

	var locker cart.Locker
	if cfg.FeatureFlags.UseLocalLocks {
		logg.Warn(context.Background(), "cart locks are process-local")
		locker = cart.NewLocalLocker()
	} else {
		locker, err = cart.NewRedisLocker(redisClient, cfg.Cart.LockTTL, cfg.Cart.LockWait, logg)
		if err != nil {
			return nil, err
		}
	}

	cartRepo := cart.NewRepository(conn)
	cartService, err := cart.NewService(cartRepo, dbClient, catalog, locker, cart.ServiceConfig{
		MaxQty:  cfg.Cart.MaxQty,
		Metrics: cartMetrics,
		Logger:  logg,
	})
	if err != nil {
		return nil, err
	}

	ordersRepo := orders.NewRepository(conn)
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)

	checkoutService, err := checkout.NewService(dbClient, cartRepo, ordersRepo, catalog, emitter, checkout.ServiceConfig{
		MaxQty:  cfg.Cart.MaxQty,
		Metrics: orderMetrics,
		Logger:  logg,
	})
	if err != nil {
		return nil, err
	}

	lifecycle, err := orders.NewLifecycle(ordersRepo, dbClient, emitter, orderMetrics, logg)
	if err != nil {
		return nil, err
	}
	queries, err := orders.NewQueryService(ordersRepo, cfg.Orders.DefaultPageLimit, cfg.Orders.MaxPageLimit)
	if err != nil {
		return nil, err
	}

	return routes.NewRouter(cfg, logg, routes.Dependencies{
		DB:          dbClient,
		Redis:       redisClient,
		Idempotency: redisClient,
		RateLimiter: redisClient,
		Gatherer:    gatherer,
		HTTPMetrics: httpMetrics,
		Cart:        cartService,
		Checkout:    checkoutService,
		Orders:      queries,
		Lifecycle:   lifecycle,
	}), nil
}
