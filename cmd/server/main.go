package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/agromart/trading-api/internal/auth"
	"github.com/agromart/trading-api/internal/cache"
	"github.com/agromart/trading-api/internal/config"
	"github.com/agromart/trading-api/internal/database"
	"github.com/agromart/trading-api/internal/metrics"
	"github.com/agromart/trading-api/internal/pricing"
	"github.com/agromart/trading-api/internal/settlement"
	"github.com/agromart/trading-api/internal/trading"
	"github.com/agromart/trading-api/pkg/middleware"
)

// main initializes and runs the commodity trading API server with
// graceful shutdown support. It sets up all required services,
// database connections, background processors, and API routes.
func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	setupLogging(cfg)

	// Initialize database
	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Initialize cache backend
	appCache, closeCache, err := newCache(cfg)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize cache")
	}
	defer closeCache()

	m := metrics.New()

	// Initialize router
	router := gin.Default()

	// Initialize services and handlers
	authService := auth.NewService(cfg.Auth.JWTSecret, cfg.TokenTTL())
	authHandlers := auth.NewGinHandlers(authService)
	// Register test credentials
	authService.RegisterAPICredentials(auth.TestAPIKey, auth.TestAPISecret)

	pricingService := pricing.NewService(appCache, pricing.NewSimulatedSource(), cfg.PriceTTL(), m)
	subscriptions := pricing.NewSubscriptionManager(pricingService, cfg.SubscriptionInterval(), m)
	pricingHandlers := pricing.NewGinHandlers(pricingService, subscriptions)

	tradingService := trading.NewService(db, appCache, cfg.MatchTTL(), m)
	tradingHandlers := trading.NewGinHandlers(tradingService)

	settlementService := settlement.NewService(db)
	settlementHandlers := settlement.NewGinHandlers(settlementService)

	// Start background processors
	processorCtx, processorCancel := context.WithCancel(context.Background())
	defer processorCancel()

	expiryProcessor := trading.NewExpiryProcessor(tradingService, cfg.ExpiryInterval())
	go expiryProcessor.Start(processorCtx)

	settlementProcessor := settlement.NewProcessor(settlementService.Database(), cfg.SettlementInterval())
	go settlementProcessor.Start(processorCtx)

	// Setup middleware
	router.Use(middleware.RateLimit())

	// Setup API routes
	setupRoutes(router, cfg, m, authHandlers, tradingHandlers, pricingHandlers, settlementHandlers)

	// Create server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	processorCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	// Price streams cancel their subscriptions as clients disconnect;
	// give them the remainder of the shutdown window.
	subsDone := make(chan struct{})
	go func() {
		subscriptions.Wait()
		close(subsDone)
	}()
	select {
	case <-subsDone:
	case <-shutdownCtx.Done():
		zlog.Warn().Msg("price subscriptions still active at shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// setupLogging configures global logging from the loaded config. In
// development mode it enables pretty printing; a configured log file
// adds a rotating sink.
func setupLogging(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if cfg.Logging.File != "" {
		zlog.Logger = zerolog.New(&lumberjack.Logger{
			Filename:   cfg.Logging.File,
			MaxSize:    100, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}).With().Timestamp().Logger()
		return
	}

	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}
}

// newCache selects the cache backend from config. The in-memory cache
// is the default; Redis is used when configured for multi-instance
// deployments.
func newCache(cfg *config.Config) (cache.Cache, func(), error) {
	switch cfg.Cache.Backend {
	case "redis":
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		rc, err := cache.NewRedisCache(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		return rc, func() { rc.Close() }, nil
	default:
		mc := cache.NewMemoryCache(cfg.CacheCleanupInterval())
		return mc, func() { mc.Close() }, nil
	}
}

// setupRoutes configures all API endpoints and their handlers.
// Routes are grouped by functionality with appropriate middleware:
// auth routes are public, order/trade/price routes require a JWT, and
// the matching trigger is restricted to internal callers.
func setupRoutes(
	router *gin.Engine,
	cfg *config.Config,
	m *metrics.Metrics,
	authHandlers *auth.GinHandlers,
	tradingHandlers *trading.GinHandlers,
	pricingHandlers *pricing.GinHandlers,
	settlementHandlers *settlement.GinHandlers,
) {
	router.GET("/metrics", gin.WrapH(m.Handler()))

	v1 := router.Group("/api/v1")
	{
		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		// Order routes
		orders := v1.Group("/orders")
		orders.Use(middleware.JWTAuth(cfg.Auth.JWTSecret))
		{
			orders.POST("", tradingHandlers.CreateOrderHandler())
			orders.GET("/:order_id", tradingHandlers.GetOrderStatusHandler())
			orders.DELETE("/:order_id", tradingHandlers.CancelOrderHandler())
		}

		// Trade routes
		trades := v1.Group("/trades")
		trades.Use(middleware.JWTAuth(cfg.Auth.JWTSecret))
		{
			trades.GET("", tradingHandlers.GetUserTradesHandler())
			trades.GET("/:trade_id", settlementHandlers.GetTradeStatusHandler())
			trades.POST("/:trade_id/cancel", settlementHandlers.CancelTradeHandler())
		}

		// Price routes
		prices := v1.Group("/prices")
		prices.Use(middleware.JWTAuth(cfg.Auth.JWTSecret))
		{
			prices.GET("/:commodity_id", pricingHandlers.GetPriceHandler())
			prices.GET("/:commodity_id/stream", pricingHandlers.StreamPriceHandler())
		}

		// Internal routes (should be protected by internal network)
		internal := v1.Group("/internal")
		internal.Use(middleware.InternalAuth(cfg.Auth.JWTSecret))
		{
			internal.POST("/matching/:commodity_id", tradingHandlers.MatchOrdersHandler())
		}
	}
}
