package trading

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/agromart/trading-api/internal/types"
)

func TestBuySnapshotPriceDescendingFIFO(t *testing.T) {
	now := time.Now()
	book := NewOrderBook("WHEAT")

	cheapOld := bookOrder("u1", types.SideBuy, 10, 40, now)
	richOld := bookOrder("u2", types.SideBuy, 10, 60, now)
	richNew := bookOrder("u3", types.SideBuy, 10, 60, now.Add(time.Second))

	book.Insert(richNew)
	book.Insert(cheapOld)
	book.Insert(richOld)

	snapshot := book.BuySnapshot()
	want := []string{richOld.OrderID, richNew.OrderID, cheapOld.OrderID}
	if len(snapshot) != len(want) {
		t.Fatalf("snapshot has %d orders, want %d", len(snapshot), len(want))
	}
	for i, order := range snapshot {
		if order.OrderID != want[i] {
			t.Errorf("position %d = %q, want %q", i, order.OrderID, want[i])
		}
	}
}

func TestSellSnapshotPriceAscendingFIFO(t *testing.T) {
	now := time.Now()
	book := NewOrderBook("WHEAT")

	cheapNew := bookOrder("u1", types.SideSell, 10, 40, now.Add(time.Second))
	cheapOld := bookOrder("u2", types.SideSell, 10, 40, now)
	expensive := bookOrder("u3", types.SideSell, 10, 60, now)

	book.Insert(expensive)
	book.Insert(cheapNew)
	book.Insert(cheapOld)

	snapshot := book.SellSnapshot()
	want := []string{cheapOld.OrderID, cheapNew.OrderID, expensive.OrderID}
	if len(snapshot) != len(want) {
		t.Fatalf("snapshot has %d orders, want %d", len(snapshot), len(want))
	}
	for i, order := range snapshot {
		if order.OrderID != want[i] {
			t.Errorf("position %d = %q, want %q", i, order.OrderID, want[i])
		}
	}
}

func TestOrderBookRemove(t *testing.T) {
	now := time.Now()
	book := NewOrderBook("WHEAT")
	buy := bookOrder("u1", types.SideBuy, 10, 50, now)
	sell := bookOrder("u2", types.SideSell, 10, 55, now)
	book.Insert(buy)
	book.Insert(sell)

	book.Remove(buy.OrderID)
	if _, ok := book.Get(buy.OrderID); ok {
		t.Error("removed buy still indexed")
	}
	if got := len(book.BuySnapshot()); got != 0 {
		t.Errorf("buy side has %d orders after removal", got)
	}
	if got := len(book.SellSnapshot()); got != 1 {
		t.Errorf("sell side has %d orders, want 1", got)
	}

	// Removing an unknown ID is a no-op.
	book.Remove("no-such-order")
	if got := len(book.SellSnapshot()); got != 1 {
		t.Errorf("sell side has %d orders after no-op removal, want 1", got)
	}
}

func TestBookManagerReturnsSameBook(t *testing.T) {
	bm := NewBookManager()
	if bm.GetOrCreate("WHEAT") != bm.GetOrCreate("WHEAT") {
		t.Error("same commodity returned different books")
	}
	if bm.GetOrCreate("WHEAT") == bm.GetOrCreate("MAIZE") {
		t.Error("different commodities share a book")
	}
}

func TestBookManagerConcurrentGetOrCreate(t *testing.T) {
	bm := NewBookManager()

	const goroutines = 32
	books := make([]*OrderBook, goroutines)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			books[i] = bm.GetOrCreate(fmt.Sprintf("COMMODITY_%d", i%4))
		}(i)
	}
	wg.Wait()

	for i := 0; i < goroutines; i++ {
		if books[i] != books[i%4] {
			t.Fatalf("goroutine %d got a different book than the first for its commodity", i)
		}
	}

	if got := len(bm.Commodities()); got != 4 {
		t.Errorf("manager tracks %d commodities, want 4", got)
	}
}
