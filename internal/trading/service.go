package trading

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/agromart/trading-api/internal/cache"
	"github.com/agromart/trading-api/internal/metrics"
	"github.com/agromart/trading-api/internal/types"
)

// defaultOrderValidity is applied when an order is submitted without
// an explicit valid_until.
const defaultOrderValidity = 24 * time.Hour

// Service owns the order books and the order/trade lifecycle. Live
// orders rest in memory; the gorm database is the durable copy. The
// book is volatile: it is not rebuilt after a restart.
type Service struct {
	db       *Database
	books    *BookManager
	cache    cache.Cache
	matchTTL time.Duration
	metrics  *metrics.Metrics
}

// NewService creates a trading service with the given database
// connection, cache, and match-result TTL.
func NewService(gormDB *gorm.DB, c cache.Cache, matchTTL time.Duration, m *metrics.Metrics) *Service {
	return &Service{
		db:       NewDatabase(gormDB),
		books:    NewBookManager(),
		cache:    c,
		matchTTL: matchTTL,
		metrics:  m,
	}
}

// CreateMarketOrder validates, persists, and books a new order, with
// idempotency support: a repeated submission under the same key
// returns the originally created order. Invalid orders are rejected
// before they reach the book.
func (s *Service) CreateMarketOrder(ctx context.Context, order *types.MarketOrder, idempotencyKey string) error {
	record, err := s.db.GetIdempotencyRecord(idempotencyKey)
	if err == nil && record != nil && record.ExpiresAt.After(time.Now()) {
		existing, err := s.db.GetOrder(record.ResourceID)
		if err != nil {
			return err
		}
		if existing == nil {
			return types.ErrOrderNotFound
		}
		*order = *existing
		return nil
	}

	if err := validateOrder(order); err != nil {
		return err
	}

	now := time.Now()
	order.OrderID = uuid.New().String()
	order.Status = types.OrderStatusActive
	order.CreatedAt = now
	order.UpdatedAt = now
	if order.ValidUntil.IsZero() {
		order.ValidUntil = now.Add(defaultOrderValidity)
	}
	order.RecalculateTotal()

	if err := s.db.CreateOrderWithIdempotency(order, idempotencyKey); err != nil {
		return err
	}

	book := s.books.GetOrCreate(order.CommodityID)
	book.mu.Lock()
	book.Insert(order)
	book.mu.Unlock()

	// The book changed: a cached match result for this commodity is
	// stale.
	s.invalidateMatches(ctx, order.CommodityID)

	s.metrics.OrdersCreated.WithLabelValues(order.Side).Inc()
	log.Info().
		Str("component", "trading").
		Str("order_id", order.OrderID).
		Str("commodity_id", order.CommodityID).
		Str("side", order.Side).
		Float64("quantity", order.Quantity).
		Float64("price_per_unit", order.PricePerUnit).
		Msg("market order created")

	return nil
}

// validateOrder rejects orders that must never enter the book.
func validateOrder(order *types.MarketOrder) error {
	switch order.Side {
	case types.SideBuy, types.SideSell:
	default:
		return &types.ValidationError{Err: types.ErrInvalidSide}
	}
	if order.CommodityID == "" {
		return &types.ValidationError{Err: types.ErrMissingCommodity}
	}
	if order.Quantity <= 0 {
		return &types.ValidationError{Err: types.ErrInvalidQuantity}
	}
	if order.PricePerUnit <= 0 {
		return &types.ValidationError{Err: types.ErrInvalidPrice}
	}
	if !order.ValidUntil.IsZero() && order.ValidUntil.Before(time.Now()) {
		return &types.ValidationError{Err: types.ErrExpiredValidity}
	}
	return nil
}

// CancelOrder cancels an active order on behalf of its owner. It
// returns false, with no side effects, when the order does not
// exist, belongs to someone else, or is no longer active; these are
// expected outcomes, not faults. The error reports storage problems
// only.
//
// Cancellation serializes with match passes on the per-commodity lock,
// so whichever acquires the lock first wins: a cancelled order can
// never be consumed by a later pass.
func (s *Service) CancelOrder(ctx context.Context, orderID, userID string) (bool, error) {
	stored, err := s.db.GetOrder(orderID)
	if err != nil {
		return false, err
	}
	if stored == nil {
		return false, nil
	}

	book := s.books.GetOrCreate(stored.CommodityID)
	book.mu.Lock()
	defer book.mu.Unlock()

	// Prefer the live in-book order: its status reflects match passes
	// that ran after the stored copy was read. An order absent from the
	// book may have been filled or expired between the read above and
	// acquiring the lock, so re-read the durable copy under the lock.
	target := stored
	if entry, ok := book.Get(orderID); ok {
		target = entry.Order
	} else {
		target, err = s.db.GetOrder(orderID)
		if err != nil {
			return false, err
		}
		if target == nil {
			return false, nil
		}
	}

	if target.UserID != userID {
		return false, nil
	}
	if target.Status != types.OrderStatusActive {
		return false, nil
	}

	// Persist first; only mutate the book once the durable copy holds.
	cancelled := *target
	cancelled.Status = types.OrderStatusCancelled
	cancelled.UpdatedAt = time.Now()
	if err := s.db.UpdateOrder(&cancelled); err != nil {
		return false, err
	}

	target.Status = types.OrderStatusCancelled
	target.UpdatedAt = cancelled.UpdatedAt
	book.Remove(orderID)

	s.invalidateMatches(ctx, target.CommodityID)

	s.metrics.OrdersCancelled.Inc()
	log.Info().
		Str("component", "trading").
		Str("order_id", orderID).
		Str("user_id", userID).
		Msg("order cancelled")

	return true, nil
}

// GetOrder retrieves an order scoped to its owner.
func (s *Service) GetOrder(orderID, userID string) (*types.MarketOrder, error) {
	return s.db.GetOrderByOrderIDAndUserID(orderID, userID)
}

// GetUserTrades returns the trades in which the user is buyer or
// seller, newest first.
func (s *Service) GetUserTrades(userID string) ([]types.Trade, error) {
	return s.db.GetUserTrades(userID)
}
