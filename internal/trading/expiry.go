package trading

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/agromart/trading-api/internal/types"
)

// ExpiryProcessor sweeps the order books on an interval and expires
// active orders whose valid_until has passed. Expiry happens under the
// per-commodity lock, so it never races a match pass into producing a
// trade against an expired order.
type ExpiryProcessor struct {
	service  *Service
	interval time.Duration
}

// NewExpiryProcessor creates a processor sweeping at the given
// interval.
func NewExpiryProcessor(service *Service, interval time.Duration) *ExpiryProcessor {
	return &ExpiryProcessor{
		service:  service,
		interval: interval,
	}
}

// Start begins the expiry loop. It stops when ctx is cancelled.
func (p *ExpiryProcessor) Start(ctx context.Context) {
	logger := log.With().Str("component", "expiry_processor").Logger()
	logger.Info().Dur("interval", p.interval).Msg("starting expiry processor")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down expiry processor")
			return
		case now := <-ticker.C:
			p.sweep(ctx, now)
		}
	}
}

// sweep expires overdue orders across every book.
func (p *ExpiryProcessor) sweep(ctx context.Context, now time.Time) {
	logger := log.With().Str("component", "expiry_processor").Logger()

	for _, commodity := range p.service.books.Commodities() {
		expired := p.expireCommodity(commodity, now)
		if expired == 0 {
			continue
		}
		// The book changed shape: cached match results are stale.
		p.service.invalidateMatches(ctx, commodity)
		logger.Info().
			Str("commodity_id", commodity).
			Int("expired", expired).
			Msg("expired overdue orders")
	}
}

// expireCommodity transitions every overdue order in one book and
// returns how many it expired.
func (p *ExpiryProcessor) expireCommodity(commodity string, now time.Time) int {
	logger := log.With().Str("component", "expiry_processor").Logger()

	book := p.service.books.GetOrCreate(commodity)
	book.mu.Lock()
	defer book.mu.Unlock()

	var overdue []*types.MarketOrder
	for _, order := range book.Entries() {
		if order.Status == types.OrderStatusActive && order.ValidUntil.Before(now) {
			overdue = append(overdue, order)
		}
	}

	expired := 0
	for _, order := range overdue {
		// Persist first: the book keeps the order until the durable
		// copy records the expiry.
		updated := *order
		updated.Status = types.OrderStatusExpired
		updated.UpdatedAt = now
		if err := p.service.db.UpdateOrder(&updated); err != nil {
			logger.Error().Err(err).
				Str("order_id", order.OrderID).
				Msg("failed to persist order expiry")
			continue
		}

		order.Status = types.OrderStatusExpired
		order.UpdatedAt = now
		book.Remove(order.OrderID)
		p.service.metrics.OrdersExpired.Inc()
		expired++
	}
	return expired
}
