package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/storefrontcore/cart-service/internal/api/handlers"
	"github.com/storefrontcore/cart-service/internal/api/middleware"
	"github.com/storefrontcore/cart-service/internal/cache"
	"github.com/storefrontcore/cart-service/internal/config"
	"github.com/storefrontcore/cart-service/internal/health"
	"github.com/storefrontcore/cart-service/internal/metrics"
	repository "github.com/storefrontcore/cart-service/internal/repositories"
	service "github.com/storefrontcore/cart-service/internal/services"
	"github.com/storefrontcore/cart-service/internal/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {

	// Logger setup
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load config
	cfg := config.MustLoad()

	// Tracing
	shutdownTracing, err := telemetry.Setup(context.Background(), &cfg.Telemetry)
	if err != nil {
		slog.Error("❌ Error setting up tracing", "error", err.Error())
		os.Exit(1)
	}

	// Database setup
	repos, err := repository.New(cfg)
	if err != nil {
		slog.Error("❌ Error accessing the database", "error", err.Error())
		os.Exit(1)
	}

	defer func() {
		if err := repos.Close(); err != nil {
			slog.Error("⚠️ Error closing database connection", slog.String("error", err.Error()))
		} else {
			slog.Info("✅ Database connection closed")
		}
	}()

	// Redis setup
	redisClient, err := repository.NewRedisClient(cfg)
	if err != nil {
		slog.Error("❌ Error accessing the redis instance", "error", err.Error())
		os.Exit(1)
	}

	cartCache := cache.NewRedisCache(redisClient, &cfg.Cache)

	cartRepo := repository.NewCartRepo(repos.DB)
	reservationRepo := repository.NewReservationRepo(repos.DB)
	catalogRepo := repository.NewCatalogRepo(repos.DB)
	counterRepo := repository.NewCounterRepo(repos.DB)
	orderRepo := repository.NewOrderRepo(repos.DB)

	reservationService := service.NewReservationService(reservationRepo, &cfg.Reservation)
	cartService := service.NewCartService(cartRepo, catalogRepo, reservationService, cartCache, cfg.Currency, cfg.Cache.DefaultTTL)
	mergeService := service.NewMergeService(cartRepo, reservationService, cartCache, cfg.Currency, cfg.Cache.DefaultTTL)
	sequenceService := service.NewSequenceService(counterRepo, &cfg.Sequence)
	checkoutService := service.NewCheckoutService(repos.DB, cartRepo, orderRepo, reservationService, sequenceService, cartCache)

	cartHandler := handlers.NewCartHandler(cartService, mergeService)
	inventoryHandler := handlers.NewInventoryHandler(reservationService)
	checkoutHandler := handlers.NewCheckoutHandler(checkoutService)

	healthHandler, err := health.NewHealthHandler(cfg)
	if err != nil {
		slog.Error("❌ Error creating health handler", "error", err.Error())
		os.Exit(1)
	}

	slog.Info("storage initialized", slog.String("env", cfg.Env), slog.String("version", "1.0.0"))

	// Background sweep of expired reservations
	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	sweeper := service.NewSweeper(reservationService, cfg.Reservation.SweepInterval)

	go sweeper.Run(sweepCtx)

	// Setup router
	routerMux := http.NewServeMux()
	routerMux.HandleFunc("GET /api/v1/cart", cartHandler.GetCart())
	routerMux.HandleFunc("PUT /api/v1/cart", cartHandler.PutCart())
	routerMux.HandleFunc("POST /api/v1/cart/merge", cartHandler.MergeCarts())
	routerMux.HandleFunc("GET /api/v1/variants/{id}/availability", inventoryHandler.Availability())
	routerMux.HandleFunc("POST /api/v1/checkout", checkoutHandler.Checkout())
	routerMux.Handle("GET /metrics", metrics.Handler())
	routerMux.Handle("GET /health", healthHandler.Handler())

	// Middleware chaining
	var handler http.Handler = routerMux
	handler = metrics.Middleware(handler)
	handler = middleware.Logging(handler)
	handler = otelhttp.NewHandler(handler, "cart-service")

	// Setup http server
	server := http.Server{
		Addr:    cfg.Addr,
		Handler: handler,
	}

	slog.Info("🚀 Server is starting...", slog.String("address", cfg.Addr))

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("❌ Failed to start server", slog.Any("error", err.Error()))
		}
	}()

	<-done

	slog.Warn("🛑 Shutdown signal received. Preparing to stop the server...")

	stopSweeper()

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("⚠️ Server shutdown encountered an issue", slog.String("error", err.Error()))
	} else {
		slog.Info("✅ Server shut down gracefully. All connections closed.")
	}

	if err := shutdownTracing(shutdownCtx); err != nil {
		slog.Error("⚠️ Tracing shutdown encountered an issue", slog.String("error", err.Error()))
	}
}
