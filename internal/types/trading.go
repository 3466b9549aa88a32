package types

import (
	"time"

	"gorm.io/gorm"
)

// Order sides
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Order statuses. Transitions are monotonic: once an order leaves
// ACTIVE it never returns.
const (
	OrderStatusActive    = "ACTIVE"
	OrderStatusFilled    = "FILLED"
	OrderStatusCancelled = "CANCELLED"
	OrderStatusExpired   = "EXPIRED"
)

// Trade statuses. COMPLETED and CANCELLED are terminal.
const (
	TradeStatusPending   = "PENDING"
	TradeStatusConfirmed = "CONFIRMED"
	TradeStatusCompleted = "COMPLETED"
	TradeStatusCancelled = "CANCELLED"
)

// MarketOrder is a resting buy or sell intent for a commodity. The
// matching engine keeps live orders in memory; this record is the
// durable copy.
type MarketOrder struct {
	gorm.Model          `json:"-"`
	OrderID             string    `gorm:"uniqueIndex" json:"order_id"`
	UserID              string    `gorm:"index" json:"user_id"`
	Side                string    `json:"side"` // BUY or SELL
	CommodityID         string    `gorm:"index" json:"commodity_id"`
	Quantity            float64   `json:"quantity"`
	PricePerUnit        float64   `json:"price_per_unit"`
	TotalAmount         float64   `json:"total_amount"`
	Status              string    `json:"status"` // ACTIVE, FILLED, CANCELLED, EXPIRED
	ValidUntil          time.Time `json:"valid_until"`
	Location            string    `json:"location"`
	QualityRequirements []string  `gorm:"serializer:json" json:"quality_requirements"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// RecalculateTotal keeps TotalAmount consistent with the current
// quantity and price. Must be called after any quantity change.
func (o *MarketOrder) RecalculateTotal() {
	o.TotalAmount = o.Quantity * o.PricePerUnit
}

// Trade is the record produced when a buy order is matched against a
// sell order. The price is fixed to the resting sell order's price at
// the moment of match and is never renegotiated.
type Trade struct {
	gorm.Model   `json:"-"`
	TradeID      string    `gorm:"uniqueIndex" json:"trade_id"`
	BuyOrderID   string    `json:"buy_order_id"`
	SellOrderID  string    `json:"sell_order_id"`
	BuyerID      string    `gorm:"index" json:"buyer_id"`
	SellerID     string    `gorm:"index" json:"seller_id"`
	CommodityID  string    `gorm:"index" json:"commodity_id"`
	Quantity     float64   `json:"quantity"`
	PricePerUnit float64   `json:"price_per_unit"`
	TotalAmount  float64   `json:"total_amount"`
	Status       string    `json:"status"` // PENDING, CONFIRMED, COMPLETED, CANCELLED
	Location     string    `json:"location"`
	QualityGrade string    `json:"quality_grade"`
	DeliveryDate time.Time `json:"delivery_date"`
	PaymentTerms string    `json:"payment_terms"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// PriceData is a cached snapshot of a commodity quote. It is derived
// state: always reconstructible from the quote source, never a source
// of truth.
type PriceData struct {
	CommodityID      string    `json:"commodity_id"`
	CurrentPrice     float64   `json:"current_price"`
	DayChange        float64   `json:"day_change"`
	DayChangePercent float64   `json:"day_change_percent"`
	Volume           float64   `json:"volume"`
	High24h          float64   `json:"high_24h"`
	Low24h           float64   `json:"low_24h"`
	LastUpdated      time.Time `json:"last_updated"`
}
