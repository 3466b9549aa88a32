package pricing

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/agromart/trading-api/internal/metrics"
	"github.com/agromart/trading-api/internal/types"
)

// PriceUpdateFunc receives price snapshots for a subscribed commodity.
type PriceUpdateFunc func(*types.PriceData)

// CancelFunc stops a subscription. It is idempotent: calling it twice
// is a no-op. A tick already in flight may complete after cancellation,
// but no new tick starts.
type CancelFunc func()

// SubscriptionManager runs one goroutine per subscription, polling the
// pricing service at a fixed interval and pushing results to the
// callback. Subscriptions to the same commodity are independent and
// share nothing beyond the price cache.
type SubscriptionManager struct {
	pricing  *Service
	interval time.Duration
	metrics  *metrics.Metrics
	wg       sync.WaitGroup
}

// NewSubscriptionManager creates a manager delivering updates every
// interval.
func NewSubscriptionManager(pricing *Service, interval time.Duration, m *metrics.Metrics) *SubscriptionManager {
	return &SubscriptionManager{
		pricing:  pricing,
		interval: interval,
		metrics:  m,
	}
}

// Subscribe registers fn to receive price updates for commodityID
// until the returned CancelFunc is called. Callbacks for a single
// subscription are invoked in timer order; ticks with no available
// price data are skipped.
func (m *SubscriptionManager) Subscribe(commodityID string, fn PriceUpdateFunc) CancelFunc {
	ctx, cancel := context.WithCancel(context.Background())
	subID := uuid.New().String()

	logger := log.With().
		Str("component", "subscriptions").
		Str("subscription_id", subID).
		Str("commodity_id", commodityID).
		Logger()

	m.metrics.ActiveSubscriptions.Inc()
	logger.Debug().Msg("subscription registered")

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				logger.Debug().Msg("subscription stopped")
				return
			case <-ticker.C:
				// Re-check before delivering: the ticker may fire in the
				// same instant the subscription is cancelled.
				if ctx.Err() != nil {
					return
				}
				if data, ok := m.pricing.GetPriceData(ctx, commodityID); ok {
					fn(data)
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			m.metrics.ActiveSubscriptions.Dec()
		})
	}
}

// Wait blocks until all subscription goroutines have exited. Intended
// for shutdown after every CancelFunc has been called.
func (m *SubscriptionManager) Wait() {
	m.wg.Wait()
}
