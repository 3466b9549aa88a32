package trading

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/agromart/trading-api/internal/cache"
	"github.com/agromart/trading-api/internal/metrics"
	"github.com/agromart/trading-api/internal/types"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.AutoMigrate(&types.MarketOrder{}, &types.Trade{}, &IdempotencyRecord{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	c := cache.NewMemoryCache(time.Minute)
	t.Cleanup(func() { c.Close() })

	return NewService(db, c, 10*time.Second, metrics.New())
}

func submitOrder(t *testing.T, s *Service, userID, side string, quantity, price float64) *types.MarketOrder {
	t.Helper()
	order := &types.MarketOrder{
		UserID:       userID,
		Side:         side,
		CommodityID:  "WHEAT",
		Quantity:     quantity,
		PricePerUnit: price,
	}
	if err := s.CreateMarketOrder(context.Background(), order, uuid.New().String()); err != nil {
		t.Fatalf("failed to create order: %v", err)
	}
	return order
}

func TestCreateMarketOrder(t *testing.T) {
	s := newTestService(t)

	order := &types.MarketOrder{
		UserID:       "farmer-1",
		Side:         types.SideBuy,
		CommodityID:  "WHEAT",
		Quantity:     50,
		PricePerUnit: 42,
	}
	if err := s.CreateMarketOrder(context.Background(), order, "key-1"); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if order.OrderID == "" {
		t.Error("order ID not assigned")
	}
	if order.Status != types.OrderStatusActive {
		t.Errorf("status = %q, want %q", order.Status, types.OrderStatusActive)
	}
	if order.TotalAmount != 2100 {
		t.Errorf("total = %v, want 2100", order.TotalAmount)
	}
	if order.ValidUntil.IsZero() {
		t.Error("default validity not applied")
	}

	stored, err := s.db.GetOrder(order.OrderID)
	if err != nil || stored == nil {
		t.Fatalf("order not persisted: %v", err)
	}
	if got := s.books.GetOrCreate("WHEAT").BuyCount(); got != 1 {
		t.Errorf("buy side has %d orders, want 1", got)
	}
}

func TestCreateMarketOrderValidation(t *testing.T) {
	s := newTestService(t)

	base := func() *types.MarketOrder {
		return &types.MarketOrder{
			UserID:       "farmer-1",
			Side:         types.SideBuy,
			CommodityID:  "WHEAT",
			Quantity:     10,
			PricePerUnit: 40,
		}
	}

	tests := []struct {
		name   string
		mutate func(*types.MarketOrder)
		want   error
	}{
		{"bad side", func(o *types.MarketOrder) { o.Side = "HOLD" }, types.ErrInvalidSide},
		{"missing commodity", func(o *types.MarketOrder) { o.CommodityID = "" }, types.ErrMissingCommodity},
		{"zero quantity", func(o *types.MarketOrder) { o.Quantity = 0 }, types.ErrInvalidQuantity},
		{"negative quantity", func(o *types.MarketOrder) { o.Quantity = -5 }, types.ErrInvalidQuantity},
		{"zero price", func(o *types.MarketOrder) { o.PricePerUnit = 0 }, types.ErrInvalidPrice},
		{"past validity", func(o *types.MarketOrder) { o.ValidUntil = time.Now().Add(-time.Hour) }, types.ErrExpiredValidity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := base()
			tt.mutate(order)
			err := s.CreateMarketOrder(context.Background(), order, "key-"+tt.name)
			if err == nil {
				t.Fatal("expected a validation error")
			}
			if !types.IsValidation(err) {
				t.Errorf("error %v is not a validation error", err)
			}
		})
	}

	// Nothing reached the book.
	if got := s.books.GetOrCreate("WHEAT").BuyCount(); got != 0 {
		t.Errorf("buy side has %d orders after rejected submissions", got)
	}
}

func TestCreateMarketOrderIdempotent(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	first := &types.MarketOrder{
		UserID:       "farmer-1",
		Side:         types.SideSell,
		CommodityID:  "WHEAT",
		Quantity:     20,
		PricePerUnit: 30,
	}
	if err := s.CreateMarketOrder(ctx, first, "same-key"); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	second := &types.MarketOrder{
		UserID:       "farmer-1",
		Side:         types.SideSell,
		CommodityID:  "WHEAT",
		Quantity:     999,
		PricePerUnit: 1,
	}
	if err := s.CreateMarketOrder(ctx, second, "same-key"); err != nil {
		t.Fatalf("replay failed: %v", err)
	}

	if second.OrderID != first.OrderID {
		t.Errorf("replay created order %q, want original %q", second.OrderID, first.OrderID)
	}
	if second.Quantity != 20 {
		t.Errorf("replay quantity = %v, want the original 20", second.Quantity)
	}
	if got := s.books.GetOrCreate("WHEAT").SellCount(); got != 1 {
		t.Errorf("sell side has %d orders, want 1", got)
	}
}

func TestCancelOrder(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	order := submitOrder(t, s, "farmer-1", types.SideBuy, 10, 40)

	cancelled, err := s.CancelOrder(ctx, order.OrderID, "farmer-1")
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if !cancelled {
		t.Fatal("expected cancellation to succeed")
	}

	stored, err := s.db.GetOrder(order.OrderID)
	if err != nil || stored == nil {
		t.Fatalf("order missing after cancel: %v", err)
	}
	if stored.Status != types.OrderStatusCancelled {
		t.Errorf("stored status = %q, want %q", stored.Status, types.OrderStatusCancelled)
	}
	if got := s.books.GetOrCreate("WHEAT").BuyCount(); got != 0 {
		t.Errorf("buy side has %d orders after cancel", got)
	}
}

func TestCancelOrderIsIdempotent(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	order := submitOrder(t, s, "farmer-1", types.SideBuy, 10, 40)

	if cancelled, err := s.CancelOrder(ctx, order.OrderID, "farmer-1"); err != nil || !cancelled {
		t.Fatalf("first cancel = (%v, %v), want (true, nil)", cancelled, err)
	}
	if cancelled, err := s.CancelOrder(ctx, order.OrderID, "farmer-1"); err != nil || cancelled {
		t.Fatalf("second cancel = (%v, %v), want (false, nil)", cancelled, err)
	}
}

func TestCancelOrderForeignAndUnknown(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	order := submitOrder(t, s, "farmer-1", types.SideSell, 10, 40)

	if cancelled, err := s.CancelOrder(ctx, order.OrderID, "someone-else"); err != nil || cancelled {
		t.Fatalf("foreign cancel = (%v, %v), want (false, nil)", cancelled, err)
	}
	stored, _ := s.db.GetOrder(order.OrderID)
	if stored.Status != types.OrderStatusActive {
		t.Errorf("foreign cancel changed status to %q", stored.Status)
	}

	if cancelled, err := s.CancelOrder(ctx, "no-such-order", "farmer-1"); err != nil || cancelled {
		t.Fatalf("unknown cancel = (%v, %v), want (false, nil)", cancelled, err)
	}
}

func TestMatchOrdersPersistsTrades(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	buy := submitOrder(t, s, "buyer", types.SideBuy, 100, 55)
	sell := submitOrder(t, s, "seller", types.SideSell, 100, 50)

	trades, err := s.MatchOrders(ctx, "WHEAT")
	if err != nil {
		t.Fatalf("match failed: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	if trades[0].PricePerUnit != 50 || trades[0].Quantity != 100 {
		t.Errorf("trade = %v @ %v, want 100 @ 50", trades[0].Quantity, trades[0].PricePerUnit)
	}

	stored, err := s.db.GetTrade(trades[0].TradeID)
	if err != nil || stored == nil {
		t.Fatalf("trade not persisted: %v", err)
	}

	for _, orderID := range []string{buy.OrderID, sell.OrderID} {
		order, err := s.db.GetOrder(orderID)
		if err != nil || order == nil {
			t.Fatalf("order %q missing after match: %v", orderID, err)
		}
		if order.Status != types.OrderStatusFilled {
			t.Errorf("order %q status = %q, want %q", orderID, order.Status, types.OrderStatusFilled)
		}
	}

	book := s.books.GetOrCreate("WHEAT")
	if book.BuyCount() != 0 || book.SellCount() != 0 {
		t.Errorf("book still holds %d buys, %d sells", book.BuyCount(), book.SellCount())
	}
}

func TestMatchOrdersEmptyBook(t *testing.T) {
	s := newTestService(t)

	trades, err := s.MatchOrders(context.Background(), "UNKNOWN")
	if err != nil {
		t.Fatalf("match on empty book errored: %v", err)
	}
	if len(trades) != 0 {
		t.Fatalf("empty book produced %d trades", len(trades))
	}
}

func TestMatchOrdersResidualStaysOnBook(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	submitOrder(t, s, "buyer", types.SideBuy, 40, 55)
	sell := submitOrder(t, s, "seller", types.SideSell, 100, 50)

	trades, err := s.MatchOrders(ctx, "WHEAT")
	if err != nil {
		t.Fatalf("match failed: %v", err)
	}
	if len(trades) != 1 || trades[0].Quantity != 40 {
		t.Fatalf("trades = %+v, want one 40-unit trade", trades)
	}

	stored, _ := s.db.GetOrder(sell.OrderID)
	if stored.Status != types.OrderStatusActive {
		t.Errorf("residual sell status = %q, want %q", stored.Status, types.OrderStatusActive)
	}
	if stored.Quantity != 60 {
		t.Errorf("residual sell quantity = %v, want 60", stored.Quantity)
	}
	if got := s.books.GetOrCreate("WHEAT").SellCount(); got != 1 {
		t.Errorf("sell side has %d orders, want the residual to remain", got)
	}
}

func TestMatchOrdersCachedResult(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	submitOrder(t, s, "buyer", types.SideBuy, 10, 55)
	submitOrder(t, s, "seller", types.SideSell, 10, 50)

	first, err := s.MatchOrders(ctx, "WHEAT")
	if err != nil {
		t.Fatalf("match failed: %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(first))
	}

	// A repeat inside the TTL serves the same result without running
	// another pass.
	second, err := s.MatchOrders(ctx, "WHEAT")
	if err != nil {
		t.Fatalf("repeat match failed: %v", err)
	}
	if len(second) != 1 || second[0].TradeID != first[0].TradeID {
		t.Errorf("repeat returned %+v, want the cached trade %q", second, first[0].TradeID)
	}

	trades, err := s.db.GetUserTrades("buyer")
	if err != nil {
		t.Fatalf("trade lookup failed: %v", err)
	}
	if len(trades) != 1 {
		t.Errorf("database holds %d trades, want 1", len(trades))
	}
}

func TestMatchOrdersCacheInvalidatedByNewOrder(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	// Prime an empty cached result.
	if trades, err := s.MatchOrders(ctx, "WHEAT"); err != nil || len(trades) != 0 {
		t.Fatalf("first pass = (%v, %v), want empty", trades, err)
	}

	submitOrder(t, s, "buyer", types.SideBuy, 10, 55)
	submitOrder(t, s, "seller", types.SideSell, 10, 50)

	trades, err := s.MatchOrders(ctx, "WHEAT")
	if err != nil {
		t.Fatalf("match failed: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("expected the new pair to match, got %d trades", len(trades))
	}
}

func TestMatchOrdersCacheInvalidatedByCancel(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	buy := submitOrder(t, s, "buyer", types.SideBuy, 10, 40)

	if trades, err := s.MatchOrders(ctx, "WHEAT"); err != nil || len(trades) != 0 {
		t.Fatalf("first pass = (%v, %v), want empty", trades, err)
	}

	if cancelled, err := s.CancelOrder(ctx, buy.OrderID, "buyer"); err != nil || !cancelled {
		t.Fatalf("cancel = (%v, %v), want (true, nil)", cancelled, err)
	}

	// The cached entry is gone; the pass recomputes against the now
	// empty book.
	trades, err := s.MatchOrders(ctx, "WHEAT")
	if err != nil {
		t.Fatalf("match failed: %v", err)
	}
	if len(trades) != 0 {
		t.Fatalf("cancelled order produced %d trades", len(trades))
	}
}

func TestCancelledOrderNeverMatches(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	buy := submitOrder(t, s, "buyer", types.SideBuy, 10, 55)
	submitOrder(t, s, "seller", types.SideSell, 10, 50)

	if cancelled, err := s.CancelOrder(ctx, buy.OrderID, "buyer"); err != nil || !cancelled {
		t.Fatalf("cancel = (%v, %v), want (true, nil)", cancelled, err)
	}

	trades, err := s.MatchOrders(ctx, "WHEAT")
	if err != nil {
		t.Fatalf("match failed: %v", err)
	}
	if len(trades) != 0 {
		t.Fatalf("cancelled buy still matched: %+v", trades)
	}
}

func TestGetUserTradesScoped(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	submitOrder(t, s, "buyer", types.SideBuy, 10, 55)
	submitOrder(t, s, "seller", types.SideSell, 10, 50)
	if _, err := s.MatchOrders(ctx, "WHEAT"); err != nil {
		t.Fatalf("match failed: %v", err)
	}

	for _, userID := range []string{"buyer", "seller"} {
		trades, err := s.GetUserTrades(userID)
		if err != nil {
			t.Fatalf("trades for %q failed: %v", userID, err)
		}
		if len(trades) != 1 {
			t.Errorf("%q sees %d trades, want 1", userID, len(trades))
		}
	}

	trades, err := s.GetUserTrades("bystander")
	if err != nil {
		t.Fatalf("trades for bystander failed: %v", err)
	}
	if len(trades) != 0 {
		t.Errorf("bystander sees %d trades, want 0", len(trades))
	}
}
