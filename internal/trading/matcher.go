package trading

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/agromart/trading-api/internal/types"
)

const (
	// DefaultPaymentTerms is applied to every trade at creation;
	// renegotiation happens outside the engine.
	DefaultPaymentTerms = "CASH_ON_DELIVERY"

	// DefaultQualityGrade is used when the sell order carries no
	// quality requirements.
	DefaultQualityGrade = "STANDARD"

	// deliveryLeadTime is added to the match time to set the trade's
	// delivery date.
	deliveryLeadTime = 7 * 24 * time.Hour

	matchKeyPrefix = "matched_trades_"
)

// orderFill is a pending mutation computed by a match pass: the order,
// its quantity after the pass, and its resulting status. Fills are
// applied to the book only after the trades have been persisted, so a
// failed write never leaves the book decremented without its trades.
type orderFill struct {
	order     *types.MarketOrder
	remaining float64
	status    string
}

// matchSnapshot runs one match pass over sorted side snapshots and is
// pure: it reads the orders, produces trades and fills, and mutates
// nothing. buys must be sorted highest price first and sells lowest
// price first, FIFO within a price, exactly what the book snapshots
// provide.
//
// A buy order matches the first sell order priced at or below it whose
// unconsumed quantity covers the buy in full; the trade executes at
// the sell order's price. A buy that no single sell can cover is
// skipped; quantities are never split across multiple counterparties.
func matchSnapshot(buys, sells []*types.MarketOrder, now time.Time) ([]*types.Trade, []orderFill) {
	remaining := make(map[string]float64, len(sells))
	for _, sell := range sells {
		remaining[sell.OrderID] = sell.Quantity
	}

	var trades []*types.Trade
	var fills []orderFill

	for _, buy := range buys {
		for _, sell := range sells {
			// Sells are sorted by price ascending: past this point no
			// offer can satisfy the bid.
			if sell.PricePerUnit > buy.PricePerUnit {
				break
			}
			if remaining[sell.OrderID] < buy.Quantity {
				continue
			}

			trades = append(trades, newTrade(buy, sell, now))
			remaining[sell.OrderID] -= buy.Quantity
			fills = append(fills, orderFill{
				order:     buy,
				remaining: buy.Quantity,
				status:    types.OrderStatusFilled,
			})
			break
		}
	}

	for _, sell := range sells {
		rem := remaining[sell.OrderID]
		if rem == sell.Quantity {
			continue
		}
		status := types.OrderStatusActive
		if rem == 0 {
			status = types.OrderStatusFilled
		}
		fills = append(fills, orderFill{
			order:     sell,
			remaining: rem,
			status:    status,
		})
	}

	return trades, fills
}

// newTrade builds the trade record for a matched pair. The clearing
// price is always the resting sell order's price.
func newTrade(buy, sell *types.MarketOrder, now time.Time) *types.Trade {
	quantity := buy.Quantity
	price := sell.PricePerUnit

	grade := DefaultQualityGrade
	if len(sell.QualityRequirements) > 0 {
		grade = sell.QualityRequirements[0]
	}

	return &types.Trade{
		TradeID:      uuid.New().String(),
		BuyOrderID:   buy.OrderID,
		SellOrderID:  sell.OrderID,
		BuyerID:      buy.UserID,
		SellerID:     sell.UserID,
		CommodityID:  buy.CommodityID,
		Quantity:     quantity,
		PricePerUnit: price,
		TotalAmount:  quantity * price,
		Status:       types.TradeStatusPending,
		Location:     sell.Location,
		QualityGrade: grade,
		DeliveryDate: now.Add(deliveryLeadTime),
		PaymentTerms: DefaultPaymentTerms,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// MatchOrders runs a match pass for one commodity and returns the
// trades it produced. Repeated calls inside the match-cache TTL return
// the previous result without recomputing; any order creation or
// cancellation for the commodity invalidates that entry. A commodity
// with an empty side yields an empty slice, which is a normal outcome.
func (s *Service) MatchOrders(ctx context.Context, commodityID string) ([]types.Trade, error) {
	logger := log.With().
		Str("component", "matching").
		Str("commodity_id", commodityID).
		Logger()

	var cached []types.Trade
	hit, err := s.cache.Get(ctx, matchKey(commodityID), &cached)
	if err != nil {
		logger.Error().Err(err).Msg("match cache read failed")
	}
	if hit {
		s.metrics.MatchCacheHits.Inc()
		logger.Debug().Int("trades", len(cached)).Msg("match result served from cache")
		return cached, nil
	}

	book := s.books.GetOrCreate(commodityID)
	book.mu.Lock()
	defer book.mu.Unlock()

	started := time.Now()
	buys := book.BuySnapshot()
	sells := book.SellSnapshot()

	trades, fills := matchSnapshot(buys, sells, started)

	if len(trades) > 0 {
		// Persist before touching the book: trade creation is atomic
		// with the order updates it implies.
		updated := make([]*types.MarketOrder, 0, len(fills))
		for _, f := range fills {
			order := *f.order
			order.Quantity = f.remaining
			order.Status = f.status
			order.UpdatedAt = started
			order.RecalculateTotal()
			updated = append(updated, &order)
		}
		if err := s.db.SaveMatchResult(trades, updated); err != nil {
			logger.Error().Err(err).Msg("failed to persist match result")
			return nil, err
		}

		for _, f := range fills {
			f.order.Quantity = f.remaining
			f.order.RecalculateTotal()
			f.order.Status = f.status
			f.order.UpdatedAt = started
			if f.status != types.OrderStatusActive {
				book.Remove(f.order.OrderID)
			}
		}
	}

	result := make([]types.Trade, len(trades))
	for i, t := range trades {
		result[i] = *t
	}

	if err := s.cache.Set(ctx, matchKey(commodityID), result, s.matchTTL); err != nil {
		logger.Error().Err(err).Msg("match cache write failed")
	}

	s.metrics.TradesMatched.Add(float64(len(result)))
	s.metrics.MatchPassDuration.Observe(time.Since(started).Seconds())

	logger.Info().
		Int("buy_orders", len(buys)).
		Int("sell_orders", len(sells)).
		Int("trades", len(result)).
		Msg("match pass completed")

	return result, nil
}

// invalidateMatches drops the cached match result for a commodity so
// the next pass recomputes against the current book.
func (s *Service) invalidateMatches(ctx context.Context, commodityID string) {
	if err := s.cache.Delete(ctx, matchKey(commodityID)); err != nil {
		log.Error().Err(err).
			Str("commodity_id", commodityID).
			Msg("match cache invalidation failed")
	}
}

func matchKey(commodityID string) string {
	return fmt.Sprintf("%s%s", matchKeyPrefix, commodityID)
}
