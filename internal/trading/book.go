package trading

import (
	"sync"
	"time"

	"github.com/google/btree"

	"github.com/agromart/trading-api/internal/types"
)

// BookEntry is a single active order resting on one side of a book.
type BookEntry struct {
	Price     float64
	CreatedAt time.Time
	OrderID   string
	Order     *types.MarketOrder
}

// buyLess orders the buy side: price descending, then created_at
// ascending, then order_id ascending. Ascending the tree therefore
// visits the highest bidder first, with first-registered-first-matched
// as the explicit tie-break.
func buyLess(a, b BookEntry) bool {
	if a.Price != b.Price {
		return a.Price > b.Price
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.OrderID < b.OrderID
}

// sellLess orders the sell side: price ascending, then created_at
// ascending, then order_id ascending. Ascending the tree visits the
// cheapest offer first under the same tie-break.
func sellLess(a, b BookEntry) bool {
	if a.Price != b.Price {
		return a.Price < b.Price
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.OrderID < b.OrderID
}

// OrderBook holds the active buy and sell orders for one commodity in
// B-trees, with a secondary index for removal by order ID. The mutex
// is the per-commodity exclusion region: match passes, order creation,
// cancellation, and expiry for a commodity all serialize on it, while
// unrelated commodities never contend.
type OrderBook struct {
	commodity string
	mu        sync.RWMutex
	buys      *btree.BTreeG[BookEntry]
	sells     *btree.BTreeG[BookEntry]
	index     map[string]BookEntry // order_id → entry
}

// NewOrderBook creates an order book for the given commodity.
func NewOrderBook(commodity string) *OrderBook {
	const degree = 32
	return &OrderBook{
		commodity: commodity,
		buys:      btree.NewG[BookEntry](degree, buyLess),
		sells:     btree.NewG[BookEntry](degree, sellLess),
		index:     make(map[string]BookEntry),
	}
}

// Insert adds an active order to the side matching its Side field.
// Caller must hold the write lock.
func (ob *OrderBook) Insert(order *types.MarketOrder) {
	entry := BookEntry{
		Price:     order.PricePerUnit,
		CreatedAt: order.CreatedAt,
		OrderID:   order.OrderID,
		Order:     order,
	}
	if order.Side == types.SideBuy {
		ob.buys.ReplaceOrInsert(entry)
	} else {
		ob.sells.ReplaceOrInsert(entry)
	}
	ob.index[entry.OrderID] = entry
}

// Remove deletes an order from the book by ID. A no-op for unknown
// IDs. Caller must hold the write lock.
func (ob *OrderBook) Remove(orderID string) {
	entry, ok := ob.index[orderID]
	if !ok {
		return
	}
	delete(ob.index, orderID)
	if entry.Order.Side == types.SideBuy {
		ob.buys.Delete(entry)
	} else {
		ob.sells.Delete(entry)
	}
}

// Get returns the resting entry for an order ID. Caller must hold at
// least the read lock.
func (ob *OrderBook) Get(orderID string) (BookEntry, bool) {
	entry, ok := ob.index[orderID]
	return entry, ok
}

// BuySnapshot returns the buy-side orders in matching priority order:
// highest price first, FIFO within a price. Caller must hold at least
// the read lock.
func (ob *OrderBook) BuySnapshot() []*types.MarketOrder {
	return snapshot(ob.buys)
}

// SellSnapshot returns the sell-side orders in matching priority
// order: lowest price first, FIFO within a price. Caller must hold at
// least the read lock.
func (ob *OrderBook) SellSnapshot() []*types.MarketOrder {
	return snapshot(ob.sells)
}

func snapshot(tree *btree.BTreeG[BookEntry]) []*types.MarketOrder {
	orders := make([]*types.MarketOrder, 0, tree.Len())
	tree.Ascend(func(entry BookEntry) bool {
		orders = append(orders, entry.Order)
		return true
	})
	return orders
}

// Entries returns every resting order regardless of side, in no
// particular order. Caller must hold at least the read lock.
func (ob *OrderBook) Entries() []*types.MarketOrder {
	orders := make([]*types.MarketOrder, 0, len(ob.index))
	for _, entry := range ob.index {
		orders = append(orders, entry.Order)
	}
	return orders
}

// BuyCount returns the number of resting buy orders.
func (ob *OrderBook) BuyCount() int {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.buys.Len()
}

// SellCount returns the number of resting sell orders.
func (ob *OrderBook) SellCount() int {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.sells.Len()
}

// BookManager is a thread-safe map of commodity → OrderBook.
type BookManager struct {
	mu    sync.RWMutex
	books map[string]*OrderBook
}

// NewBookManager creates a new BookManager.
func NewBookManager() *BookManager {
	return &BookManager{
		books: make(map[string]*OrderBook),
	}
}

// GetOrCreate returns the order book for the commodity, creating one
// if it doesn't already exist.
func (bm *BookManager) GetOrCreate(commodity string) *OrderBook {
	bm.mu.RLock()
	book, ok := bm.books[commodity]
	bm.mu.RUnlock()
	if ok {
		return book
	}

	bm.mu.Lock()
	defer bm.mu.Unlock()
	// Double-check after acquiring the write lock.
	if book, ok = bm.books[commodity]; ok {
		return book
	}
	book = NewOrderBook(commodity)
	bm.books[commodity] = book
	return book
}

// Commodities returns the commodities with a book, for processors that
// sweep every book.
func (bm *BookManager) Commodities() []string {
	bm.mu.RLock()
	defer bm.mu.RUnlock()
	commodities := make([]string, 0, len(bm.books))
	for commodity := range bm.books {
		commodities = append(commodities, commodity)
	}
	return commodities
}
