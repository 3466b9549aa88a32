package settlement

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/agromart/trading-api/internal/types"
)

// Processor advances open trades through the delivery lifecycle on a
// fixed interval. A PENDING trade becomes CONFIRMED once both parties
// are notified; a CONFIRMED trade becomes COMPLETED when its delivery
// date is reached. Cancelled trades are never touched.
type Processor struct {
	db           *Database
	processDelay time.Duration
}

func NewProcessor(db *Database, processDelay time.Duration) *Processor {
	return &Processor{
		db:           db,
		processDelay: processDelay,
	}
}

// Start begins the trade lifecycle processing loop.
func (p *Processor) Start(ctx context.Context) {
	logger := log.With().Str("component", "settlement_processor").Logger()
	logger.Info().Msg("starting trade lifecycle processor")

	ticker := time.NewTicker(p.processDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down trade lifecycle processor")
			return
		case <-ticker.C:
			if err := p.ProcessOpenTrades(); err != nil {
				logger.Error().Err(err).Msg("failed to process open trades")
			}
		}
	}
}

// ProcessOpenTrades makes one pass over open trades, advancing each by
// at most one lifecycle step.
func (p *Processor) ProcessOpenTrades() error {
	logger := log.With().Str("component", "settlement_processor").Logger()

	trades, err := p.db.GetOpenTrades()
	if err != nil {
		return err
	}

	if len(trades) > 0 {
		logger.Info().Int("open_count", len(trades)).Msg("processing open trades")
	}

	now := time.Now()
	for _, trade := range trades {
		var next string
		switch trade.Status {
		case types.TradeStatusPending:
			if !p.confirmWithParties(&trade) {
				continue
			}
			next = types.TradeStatusConfirmed

		case types.TradeStatusConfirmed:
			if now.Before(trade.DeliveryDate) {
				continue
			}
			next = types.TradeStatusCompleted

		default:
			continue
		}

		// Guarded update so a cancel that landed between the read
		// and this write wins.
		advanced, err := p.db.UpdateTradeStatus(trade.TradeID, next, []string{trade.Status})
		if err != nil {
			logger.Error().
				Err(err).
				Str("trade_id", trade.TradeID).
				Msg("failed to update trade status")
			continue
		}
		if advanced {
			logger.Info().
				Str("trade_id", trade.TradeID).
				Str("status", next).
				Msg("trade advanced")
		}
	}

	return nil
}

// confirmWithParties simulates buyer and seller acknowledgement. The
// marketplace's notification service is out of process, so this stands
// in for its callback.
func (p *Processor) confirmWithParties(trade *types.Trade) bool {
	// Succeed on nearly every pass; sporadic failures are retried on
	// the next tick.
	return time.Now().UnixNano()%100 < 95
}
