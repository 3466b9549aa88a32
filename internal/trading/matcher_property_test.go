package trading

import (
	"fmt"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/agromart/trading-api/internal/types"
)

func drawOrders(t *rapid.T) ([]*types.MarketOrder, []*types.MarketOrder) {
	now := time.Now()
	book := NewOrderBook("WHEAT")

	numBuys := rapid.IntRange(0, 12).Draw(t, "numBuys")
	numSells := rapid.IntRange(0, 12).Draw(t, "numSells")

	for i := 0; i < numBuys; i++ {
		order := bookOrder(
			fmt.Sprintf("buyer-%d", i),
			types.SideBuy,
			float64(rapid.IntRange(1, 100).Draw(t, fmt.Sprintf("buyQty%d", i))),
			float64(rapid.IntRange(1, 200).Draw(t, fmt.Sprintf("buyPrice%d", i))),
			now.Add(time.Duration(i)*time.Millisecond),
		)
		book.Insert(order)
	}
	for i := 0; i < numSells; i++ {
		order := bookOrder(
			fmt.Sprintf("seller-%d", i),
			types.SideSell,
			float64(rapid.IntRange(1, 100).Draw(t, fmt.Sprintf("sellQty%d", i))),
			float64(rapid.IntRange(1, 200).Draw(t, fmt.Sprintf("sellPrice%d", i))),
			now.Add(time.Duration(i)*time.Millisecond),
		)
		book.Insert(order)
	}

	return book.BuySnapshot(), book.SellSnapshot()
}

func TestPropertyPriceCompatibilityDeterminesMatching(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		now := time.Now()
		bidPrice := float64(rapid.IntRange(1, 200).Draw(t, "bidPrice"))
		askPrice := float64(rapid.IntRange(1, 200).Draw(t, "askPrice"))
		qty := float64(rapid.IntRange(1, 100).Draw(t, "qty"))
		surplus := float64(rapid.IntRange(0, 50).Draw(t, "surplus"))

		buys, sells := snapshotsFor(
			bookOrder("buyer", types.SideBuy, qty, bidPrice, now),
			bookOrder("seller", types.SideSell, qty+surplus, askPrice, now),
		)

		trades, _ := matchSnapshot(buys, sells, now)
		shouldMatch := bidPrice >= askPrice

		if shouldMatch && len(trades) != 1 {
			t.Fatalf("bid %v >= ask %v with covering quantity produced %d trades, want 1",
				bidPrice, askPrice, len(trades))
		}
		if !shouldMatch && len(trades) != 0 {
			t.Fatalf("bid %v < ask %v produced %d trades, want 0",
				bidPrice, askPrice, len(trades))
		}
		if shouldMatch {
			if trades[0].PricePerUnit != askPrice || trades[0].Quantity != qty {
				t.Fatalf("trade = %v @ %v, want %v @ the ask %v",
					trades[0].Quantity, trades[0].PricePerUnit, qty, askPrice)
			}
		}
	})
}

func TestPropertyTradePrices(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		buys, sells := drawOrders(t)
		ordersByID := make(map[string]*types.MarketOrder)
		for _, o := range append(buys[:len(buys):len(buys)], sells...) {
			ordersByID[o.OrderID] = o
		}

		trades, _ := matchSnapshot(buys, sells, time.Now())

		for _, trade := range trades {
			buy := ordersByID[trade.BuyOrderID]
			sell := ordersByID[trade.SellOrderID]
			if buy == nil || sell == nil {
				t.Fatalf("trade references unknown orders %q/%q", trade.BuyOrderID, trade.SellOrderID)
			}
			if sell.PricePerUnit > buy.PricePerUnit {
				t.Fatalf("incompatible match: sell %v > buy %v", sell.PricePerUnit, buy.PricePerUnit)
			}
			if trade.PricePerUnit != sell.PricePerUnit {
				t.Fatalf("clearing price %v, want the sell's %v", trade.PricePerUnit, sell.PricePerUnit)
			}
			if trade.Quantity != buy.Quantity {
				t.Fatalf("trade quantity %v, want the buy's %v", trade.Quantity, buy.Quantity)
			}
			if trade.TotalAmount != trade.Quantity*trade.PricePerUnit {
				t.Fatalf("total %v, want %v", trade.TotalAmount, trade.Quantity*trade.PricePerUnit)
			}
			if trade.Status != types.TradeStatusPending {
				t.Fatalf("trade status %q, want %q", trade.Status, types.TradeStatusPending)
			}
		}
	})
}

func TestPropertyQuantityConservation(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		buys, sells := drawOrders(t)
		trades, fills := matchSnapshot(buys, sells, time.Now())

		// No buy order is consumed twice, and no sell order gives up
		// more quantity than it had.
		buySeen := make(map[string]bool)
		soldBySell := make(map[string]float64)
		for _, trade := range trades {
			if buySeen[trade.BuyOrderID] {
				t.Fatalf("buy order %q matched twice", trade.BuyOrderID)
			}
			buySeen[trade.BuyOrderID] = true
			soldBySell[trade.SellOrderID] += trade.Quantity
		}
		for _, sell := range sells {
			if soldBySell[sell.OrderID] > sell.Quantity {
				t.Fatalf("sell order %q oversold: %v of %v",
					sell.OrderID, soldBySell[sell.OrderID], sell.Quantity)
			}
		}

		// Fills agree with the trades.
		for _, f := range fills {
			if f.order.Side == types.SideSell {
				want := f.order.Quantity - soldBySell[f.order.OrderID]
				if f.remaining != want {
					t.Fatalf("sell fill remaining %v, want %v", f.remaining, want)
				}
				wantStatus := types.OrderStatusActive
				if want == 0 {
					wantStatus = types.OrderStatusFilled
				}
				if f.status != wantStatus {
					t.Fatalf("sell fill status %q, want %q", f.status, wantStatus)
				}
			} else {
				if !buySeen[f.order.OrderID] {
					t.Fatalf("fill for unmatched buy %q", f.order.OrderID)
				}
				if f.status != types.OrderStatusFilled {
					t.Fatalf("buy fill status %q, want %q", f.status, types.OrderStatusFilled)
				}
			}
		}
	})
}

func TestPropertyMatchingIsPure(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		buys, sells := drawOrders(t)

		type frozen struct {
			quantity float64
			status   string
		}
		before := make(map[string]frozen)
		for _, o := range append(buys[:len(buys):len(buys)], sells...) {
			before[o.OrderID] = frozen{quantity: o.Quantity, status: o.Status}
		}

		matchSnapshot(buys, sells, time.Now())

		for _, o := range append(buys[:len(buys):len(buys)], sells...) {
			if b := before[o.OrderID]; o.Quantity != b.quantity || o.Status != b.status {
				t.Fatalf("order %q mutated by the match pass", o.OrderID)
			}
		}
	})
}
