package pricing

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/agromart/trading-api/internal/types"
)

// QuoteSource produces a fresh quote for a commodity. Implementations
// stand in front of a market-data vendor; a failed fetch is an error
// and the provider reports it to callers as absent data.
type QuoteSource interface {
	Quote(ctx context.Context, commodityID string) (*types.PriceData, error)
}

// SimulatedSource is a stand-in quote generator used until a real
// market-data feed is connected. Each commodity gets a stable base
// price on first request; subsequent quotes drift around it so cached
// and fresh values stay plausible across calls.
type SimulatedSource struct {
	mu          sync.Mutex
	basePrices  map[string]float64
	rng         *rand.Rand
	minLatency  time.Duration
	maxLatency  time.Duration
	failureRate float64 // 0-1, probability a fetch reports unavailable
}

// Reference prices per tonne for the commodities the marketplace
// trades most. Unlisted commodities get a generated base.
var seedPrices = map[string]float64{
	"WHEAT":     2150,
	"MAIZE":     1830,
	"SOYBEAN":   4320,
	"RICE":      3910,
	"BARLEY":    1640,
	"SORGHUM":   1520,
	"COFFEE":    8750,
	"TEA":       5400,
	"COTTON":    6200,
	"SUGARCANE": 480,
}

// NewSimulatedSource creates a SimulatedSource seeded from the clock.
func NewSimulatedSource() *SimulatedSource {
	s := &SimulatedSource{
		basePrices: make(map[string]float64),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		minLatency: 5 * time.Millisecond,
		maxLatency: 30 * time.Millisecond,
	}
	for commodity, price := range seedPrices {
		s.basePrices[commodity] = price
	}
	return s
}

// SetFailureRate makes a fraction of fetches report unavailability, to
// exercise the caller's absent-data path.
func (s *SimulatedSource) SetFailureRate(rate float64) {
	s.mu.Lock()
	s.failureRate = rate
	s.mu.Unlock()
}

// Quote synthesizes a current quote for the commodity. It sleeps for a
// simulated network latency and honors context cancellation.
func (s *SimulatedSource) Quote(ctx context.Context, commodityID string) (*types.PriceData, error) {
	s.mu.Lock()
	base, ok := s.basePrices[commodityID]
	if !ok {
		// Deterministic-ish base for unknown commodities: somewhere in
		// the range the seeded ones occupy.
		base = 500 + s.rng.Float64()*5000
		s.basePrices[commodityID] = base
	}
	latency := s.minLatency + time.Duration(s.rng.Int63n(int64(s.maxLatency-s.minLatency)+1))
	failed := s.rng.Float64() < s.failureRate
	drift := s.rng.Float64()*0.04 - 0.02  // ±2%
	change := s.rng.Float64()*0.06 - 0.03 // ±3% day-over-day
	volume := 10000 + s.rng.Float64()*90000
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(latency):
	}

	if failed {
		log.Warn().
			Str("commodity_id", commodityID).
			Msg("simulated quote source unavailable")
		return nil, fmt.Errorf("quote source unavailable for %s", commodityID)
	}

	current := base * (1 + drift)
	dayChange := current * change
	high := current * (1 + s.spread())
	low := current * (1 - s.spread())

	return &types.PriceData{
		CommodityID:  commodityID,
		CurrentPrice: current,
		DayChange:    dayChange,
		Volume:       volume,
		High24h:      high,
		Low24h:       low,
		LastUpdated:  time.Now(),
	}, nil
}

func (s *SimulatedSource) spread() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return 0.005 + s.rng.Float64()*0.015
}
