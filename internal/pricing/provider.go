// Package pricing serves commodity price snapshots through a TTL cache
// and fans them out to subscribers on a fixed interval.
package pricing

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/agromart/trading-api/internal/cache"
	"github.com/agromart/trading-api/internal/metrics"
	"github.com/agromart/trading-api/internal/types"
)

const priceKeyPrefix = "price_data_"

// Service is the price feed provider. Reads go through the cache;
// misses fetch from the quote source and repopulate it.
type Service struct {
	cache   cache.Cache
	source  QuoteSource
	ttl     time.Duration
	metrics *metrics.Metrics
}

// NewService creates a pricing service. ttl bounds how stale a served
// quote may be.
func NewService(c cache.Cache, source QuoteSource, ttl time.Duration, m *metrics.Metrics) *Service {
	return &Service{
		cache:   c,
		source:  source,
		ttl:     ttl,
		metrics: m,
	}
}

// GetPriceData returns the current price snapshot for a commodity, or
// (nil, false) when no data is available right now. Unavailability is
// a steady-state outcome, not an error: the caller owns any retry
// policy, the provider performs none.
func (s *Service) GetPriceData(ctx context.Context, commodityID string) (*types.PriceData, bool) {
	logger := log.With().
		Str("component", "pricing").
		Str("commodity_id", commodityID).
		Logger()

	key := priceKey(commodityID)

	var cached types.PriceData
	hit, err := s.cache.Get(ctx, key, &cached)
	if err != nil {
		logger.Error().Err(err).Msg("price cache read failed")
	}
	if hit {
		s.metrics.PriceCacheHits.Inc()
		return &cached, true
	}
	s.metrics.PriceCacheMisses.Inc()

	quote, err := s.source.Quote(ctx, commodityID)
	if err != nil {
		s.metrics.QuoteFailures.Inc()
		logger.Warn().Err(err).Msg("quote source returned no data")
		return nil, false
	}

	if quote.CurrentPrice != 0 {
		quote.DayChangePercent = quote.DayChange / quote.CurrentPrice * 100
	}

	if err := s.cache.Set(ctx, key, quote, s.ttl); err != nil {
		// Serving the fresh quote matters more than caching it.
		logger.Error().Err(err).Msg("price cache write failed")
	}

	logger.Debug().
		Float64("current_price", quote.CurrentPrice).
		Float64("day_change_percent", quote.DayChangePercent).
		Msg("refreshed price data from quote source")

	return quote, true
}

// InvalidatePrice drops the cached snapshot for a commodity so the
// next read refetches.
func (s *Service) InvalidatePrice(ctx context.Context, commodityID string) {
	if err := s.cache.Delete(ctx, priceKey(commodityID)); err != nil {
		log.Error().Err(err).
			Str("commodity_id", commodityID).
			Msg("price cache invalidation failed")
	}
}

func priceKey(commodityID string) string {
	return fmt.Sprintf("%s%s", priceKeyPrefix, commodityID)
}
