package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/agromart/trading-api/internal/auth"
	"github.com/agromart/trading-api/internal/cache"
	"github.com/agromart/trading-api/internal/config"
	"github.com/agromart/trading-api/internal/database"
	"github.com/agromart/trading-api/internal/metrics"
	"github.com/agromart/trading-api/internal/pricing"
	"github.com/agromart/trading-api/internal/settlement"
	"github.com/agromart/trading-api/internal/trading"
	"github.com/agromart/trading-api/internal/types"
	"github.com/agromart/trading-api/pkg/middleware"
)

const (
	minOrders     = 15
	maxOrders     = 150
	numWorkers    = 5
	serverAddress = "http://localhost:8080"
	jwtSecret     = "agromart-secret-key"
)

var (
	commodities = []string{"WHEAT", "MAIZE", "SOYBEAN", "RICE", "COTTON"}
	sides       = []string{types.SideBuy, types.SideSell}
)

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	// Configure pretty logging
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint.
// Safe for use from concurrent workers.
type routeStats struct {
	mu         sync.Mutex
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
}

// addDuration records a new duration measurement for the route
func (rs *routeStats) addDuration(d time.Duration) {
	rs.mu.Lock()
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
	rs.mu.Unlock()
}

// addFailure records a failed call
func (rs *routeStats) addFailure() {
	rs.mu.Lock()
	rs.failures++
	rs.mu.Unlock()
}

// calculate computes performance statistics from recorded durations
// Returns min, max, mean, median, 95th percentile, and 99th percentile durations
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	// Sort durations for percentile calculations
	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	// Calculate mean
	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))

	// Calculate median
	median = rs.durations[len(rs.durations)/2]

	// Calculate percentiles
	p95idx := int(math.Ceil(float64(len(rs.durations))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(rs.durations))*0.99)) - 1
	p95 = rs.durations[p95idx]
	p99 = rs.durations[p99idx]

	return
}

// simulationClient handles HTTP communication with the trading API
// on behalf of a single marketplace user.
type simulationClient struct {
	baseURL   string
	userID    string
	authToken string
	client    *http.Client
	stats     map[string]*routeStats
}

// newSimulationClient creates and initializes a new simulation client
// It authenticates with the API and prepares performance tracking
func newSimulationClient(apiKey, apiSecret string, stats map[string]*routeStats) (*simulationClient, error) {
	// Create HTTP client with timeout
	client := &http.Client{
		Timeout: 10 * time.Second,
	}

	sc := &simulationClient{
		baseURL: serverAddress,
		userID:  apiKey,
		client:  client,
		stats:   stats,
	}

	// Get auth token
	token, err := sc.authenticate(apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate: %w", err)
	}
	sc.authToken = token

	return sc, nil
}

// newRouteStats builds the shared performance tracking map.
func newRouteStats() map[string]*routeStats {
	return map[string]*routeStats{
		"auth":   {name: "Authentication"},
		"create": {name: "Create Order"},
		"cancel": {name: "Cancel Order"},
		"match":  {name: "Match Orders"},
		"price":  {name: "Get Price"},
		"trades": {name: "Get Trades"},
	}
}

// authenticate performs API authentication and returns a JWT token
func (sc *simulationClient) authenticate(apiKey, apiSecret string) (string, error) {
	start := time.Now()
	defer func() {
		sc.stats["auth"].addDuration(time.Since(start))
	}()

	credentials := map[string]string{
		"api_key":    apiKey,
		"api_secret": apiSecret,
	}

	body, err := json.Marshal(credentials)
	if err != nil {
		return "", err
	}

	resp, err := sc.client.Post(
		fmt.Sprintf("%s/api/v1/auth/token", sc.baseURL),
		"application/json",
		bytes.NewBuffer(body),
	)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("authentication failed with status: %d", resp.StatusCode)
	}

	var result struct {
		Success bool `json:"success"`
		Data    struct {
			Token string `json:"jwt_token"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}

	return result.Data.Token, nil
}

// createOrder submits a new market order to the API
// Returns the order ID on success
func (sc *simulationClient) createOrder(order *types.MarketOrder) (string, error) {
	start := time.Now()
	defer func() {
		sc.stats["create"].addDuration(time.Since(start))
	}()

	body, err := json.Marshal(order)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequest(
		"POST",
		fmt.Sprintf("%s/api/v1/orders", sc.baseURL),
		bytes.NewBuffer(body),
	)
	if err != nil {
		return "", err
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", sc.authToken))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", uuid.New().String())

	resp, err := sc.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	log.Debug().Str("response", string(respBody)).Msg("Create order response")

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		sc.stats["create"].addFailure()
		return "", fmt.Errorf("create order failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Success bool `json:"success"`
		Data    struct {
			OrderID string `json:"order_id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}

	if result.Data.OrderID == "" {
		return "", fmt.Errorf("no order ID in response: %s", string(respBody))
	}

	return result.Data.OrderID, nil
}

// cancelOrder withdraws an active order
func (sc *simulationClient) cancelOrder(orderID string) error {
	start := time.Now()
	defer func() {
		sc.stats["cancel"].addDuration(time.Since(start))
	}()

	req, err := http.NewRequest(
		"DELETE",
		fmt.Sprintf("%s/api/v1/orders/%s", sc.baseURL, orderID),
		nil,
	)
	if err != nil {
		return err
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", sc.authToken))

	resp, err := sc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		sc.stats["cancel"].addFailure()
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("cancel order failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// matchOrders triggers a matching pass for a commodity
// Returns the trades produced by the pass
func (sc *simulationClient) matchOrders(commodityID string) ([]types.Trade, error) {
	start := time.Now()
	defer func() {
		sc.stats["match"].addDuration(time.Since(start))
	}()

	req, err := http.NewRequest(
		"POST",
		fmt.Sprintf("%s/api/v1/internal/matching/%s", sc.baseURL, commodityID),
		nil,
	)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", sc.authToken))

	resp, err := sc.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	log.Debug().Str("response", string(respBody)).Msg("Match orders response")

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		sc.stats["match"].addFailure()
		return nil, fmt.Errorf("match orders failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Success bool          `json:"success"`
		Data    []types.Trade `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}

	return result.Data, nil
}

// getPrice fetches the current price data for a commodity
func (sc *simulationClient) getPrice(commodityID string) (*types.PriceData, error) {
	start := time.Now()
	defer func() {
		sc.stats["price"].addDuration(time.Since(start))
	}()

	req, err := http.NewRequest(
		"GET",
		fmt.Sprintf("%s/api/v1/prices/%s", sc.baseURL, commodityID),
		nil,
	)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", sc.authToken))

	resp, err := sc.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		sc.stats["price"].addFailure()
		return nil, fmt.Errorf("get price failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Success bool            `json:"success"`
		Data    types.PriceData `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}

	return &result.Data, nil
}

// getTrades fetches the caller's trade history
func (sc *simulationClient) getTrades() ([]types.Trade, error) {
	start := time.Now()
	defer func() {
		sc.stats["trades"].addDuration(time.Since(start))
	}()

	req, err := http.NewRequest(
		"GET",
		fmt.Sprintf("%s/api/v1/trades", sc.baseURL),
		nil,
	)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", sc.authToken))

	resp, err := sc.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		sc.stats["trades"].addFailure()
		return nil, fmt.Errorf("get trades failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Success bool          `json:"success"`
		Data    []types.Trade `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}

	return result.Data, nil
}

// printPerformanceStats outputs formatted performance statistics for all API endpoints
func printPerformanceStats(stats map[string]*routeStats) {
	fmt.Println("\nAPI Performance Statistics")
	fmt.Println(strings.Repeat("-", 100))
	fmt.Printf("%-20s %10s %10s %10s %10s %10s %10s %10s %10s\n",
		"Endpoint", "Calls", "Errors", "Min", "Max", "Mean", "Median", "P95", "P99")
	fmt.Println(strings.Repeat("-", 100))

	for _, rs := range stats {
		min, max, mean, median, p95, p99 := rs.calculate()
		fmt.Printf("%-20s %10d %10d %10s %10s %10s %10s %10s %10s\n",
			rs.name,
			rs.totalCalls,
			rs.failures,
			min.Round(time.Millisecond),
			max.Round(time.Millisecond),
			mean.Round(time.Millisecond),
			median.Round(time.Millisecond),
			p95.Round(time.Millisecond),
			p99.Round(time.Millisecond))
	}
	fmt.Println(strings.Repeat("-", 100))
}

// main runs the marketplace simulation
// It starts a local API server and simulates multiple concurrent trading users
func main() {
	// Start the server in a goroutine
	go func() {
		if err := startServer(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for server to start
	time.Sleep(2 * time.Second)

	stats := newRouteStats()

	// One client per worker so the matcher sees distinct buyers and
	// sellers.
	clients := make([]*simulationClient, numWorkers)
	for i := range clients {
		sc, err := newSimulationClient(
			fmt.Sprintf("farmer-%d", i),
			fmt.Sprintf("farmer-%d-secret", i),
			stats,
		)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize simulation client")
		}
		clients[i] = sc
	}

	// Generate random number of orders to process
	targetOrders := rand.Intn(maxOrders-minOrders) + minOrders
	log.Info().Int("target_orders", targetOrders).Msg("Starting simulation")

	type createdOrder struct {
		orderID string
		client  *simulationClient
	}

	ordersChan := make(chan createdOrder, targetOrders)
	var wg sync.WaitGroup

	// Start worker goroutines
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			sc := clients[workerID]
			for j := 0; j < targetOrders/numWorkers; j++ {
				commodity := commodities[rand.Intn(len(commodities))]

				// Anchor order prices near the live quote so the
				// matcher has compatible pairs to work with.
				basePrice := 2000.0
				price, err := sc.getPrice(commodity)
				if err == nil {
					basePrice = price.CurrentPrice
				}

				order := &types.MarketOrder{
					Side:         sides[rand.Intn(len(sides))],
					CommodityID:  commodity,
					Quantity:     float64(rand.Intn(100) + 1),
					PricePerUnit: basePrice * (0.95 + rand.Float64()*0.1),
					Location:     fmt.Sprintf("region-%d", workerID),
				}

				orderID, err := sc.createOrder(order)
				if err != nil {
					log.Error().Err(err).
						Str("user_id", sc.userID).
						Str("commodity_id", order.CommodityID).
						Msg("Failed to create order")
					continue
				}

				ordersChan <- createdOrder{orderID: orderID, client: sc}
				log.Info().
					Str("user_id", sc.userID).
					Str("order_id", orderID).
					Str("commodity_id", order.CommodityID).
					Str("side", order.Side).
					Float64("quantity", order.Quantity).
					Float64("price_per_unit", order.PricePerUnit).
					Msg("Order created")

				// Random sleep between orders
				time.Sleep(time.Duration(rand.Intn(200)) * time.Millisecond)
			}
		}(i)
	}

	// Wait for all orders to be created
	wg.Wait()
	close(ordersChan)

	// Collect all created orders
	var created []createdOrder
	for co := range ordersChan {
		created = append(created, co)
	}

	log.Info().Int("orders_created", len(created)).Msg("All orders created")

	// Cancel a small fraction of orders before matching
	cancelled := 0
	for _, co := range created {
		if rand.Float64() > 0.1 {
			continue
		}
		err := co.client.cancelOrder(co.orderID)
		if err != nil {
			log.Error().Err(err).Str("order_id", co.orderID).Msg("Failed to cancel order")
			continue
		}
		cancelled++
	}

	// Run a matching pass per commodity
	totalTrades := 0
	totalValue := 0.0
	tradesByCommodity := make(map[string]int)
	matcher := clients[0]
	for _, commodity := range commodities {
		trades, err := matcher.matchOrders(commodity)
		if err != nil {
			log.Error().Err(err).Str("commodity_id", commodity).Msg("Failed to match orders")
			continue
		}
		for _, trade := range trades {
			totalTrades++
			totalValue += trade.TotalAmount
			tradesByCommodity[commodity]++
			log.Info().
				Str("trade_id", trade.TradeID).
				Str("commodity_id", trade.CommodityID).
				Float64("quantity", trade.Quantity).
				Float64("price_per_unit", trade.PricePerUnit).
				Msg("Trade matched")
		}
	}

	// Each user pulls their trade history
	tradeRows := 0
	for _, sc := range clients {
		trades, err := sc.getTrades()
		if err != nil {
			log.Error().Err(err).Str("user_id", sc.userID).Msg("Failed to fetch trades")
			continue
		}
		tradeRows += len(trades)
	}

	// Print summary
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("MARKETPLACE SIMULATION SUMMARY")
	fmt.Println(strings.Repeat("=", 80))

	fmt.Printf(`
Order Statistics
----------------
Total Orders:     %d
Cancelled:        %d
Trades Matched:   %d
Trade Rows Seen:  %d
Total Value:      %.2f

Trades by Commodity
-------------------
`, len(created), cancelled, totalTrades, tradeRows, totalValue)

	maxCount := 0
	for _, count := range tradesByCommodity {
		if count > maxCount {
			maxCount = count
		}
	}
	for commodity, count := range tradesByCommodity {
		barLength := 1
		if maxCount > 0 {
			barLength = int(float64(count) / float64(maxCount) * 20)
		}
		bar := strings.Repeat("#", barLength)
		fmt.Printf("%-10s: %s (%d)\n", commodity, bar, count)
	}

	fmt.Println("\n" + strings.Repeat("=", 80))

	log.Info().
		Int("total_orders", len(created)).
		Int("trades_matched", totalTrades).
		Float64("total_value", totalValue).
		Msg("Simulation completed")

	printPerformanceStats(stats)
}

// startServer initializes and starts the trading API server
// Sets up all required services, handlers and routes
func startServer() error {
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg.Auth.JWTSecret = jwtSecret

	// Initialize database
	db, err := database.NewDatabase("simulation.db")
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	appCache := cache.NewMemoryCache(cfg.CacheCleanupInterval())
	m := metrics.New()

	// Initialize services
	authService := auth.NewService(cfg.Auth.JWTSecret, cfg.TokenTTL())
	pricingService := pricing.NewService(appCache, pricing.NewSimulatedSource(), cfg.PriceTTL(), m)
	subscriptions := pricing.NewSubscriptionManager(pricingService, cfg.SubscriptionInterval(), m)
	tradingService := trading.NewService(db, appCache, cfg.MatchTTL(), m)
	settlementService := settlement.NewService(db)

	// Register per-worker credentials
	for i := 0; i < numWorkers; i++ {
		authService.RegisterAPICredentials(
			fmt.Sprintf("farmer-%d", i),
			fmt.Sprintf("farmer-%d-secret", i),
		)
	}

	// Start the trade lifecycle processor so matched trades advance
	// while the simulation runs
	processor := settlement.NewProcessor(settlementService.Database(), 2*time.Second)
	go processor.Start(context.Background())

	// Initialize router
	gin.SetMode(gin.ReleaseMode)
	router := gin.Default()
	authHandlers := auth.NewGinHandlers(authService)
	tradingHandlers := trading.NewGinHandlers(tradingService)
	pricingHandlers := pricing.NewGinHandlers(pricingService, subscriptions)
	settlementHandlers := settlement.NewGinHandlers(settlementService)

	// Setup routes
	setupRoutes(router, cfg, m, authHandlers, tradingHandlers, pricingHandlers, settlementHandlers)

	// Start the server
	return router.Run(":8080")
}

// setupRoutes configures all API endpoints and their handlers
// Groups routes by functionality and applies appropriate middleware
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

		// Internal routes
		internal := v1.Group("/internal")
		internal.Use(middleware.InternalAuth(cfg.Auth.JWTSecret))
		{
			internal.POST("/matching/:commodity_id", tradingHandlers.MatchOrdersHandler())
		}
	}
}
