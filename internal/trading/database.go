package trading

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/agromart/trading-api/internal/types"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) GetOrder(orderID string) (*types.MarketOrder, error) {
	var order types.MarketOrder
	if err := d.db.Where("order_id = ?", orderID).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

func (d *Database) GetOrderByOrderIDAndUserID(orderID, userID string) (*types.MarketOrder, error) {
	var order types.MarketOrder
	if err := d.db.Where("order_id = ? AND user_id = ?", orderID, userID).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

func (d *Database) UpdateOrder(order *types.MarketOrder) error {
	return d.db.Save(order).Error
}

// GetUserTrades returns every trade where the user is either side.
func (d *Database) GetUserTrades(userID string) ([]types.Trade, error) {
	var trades []types.Trade
	err := d.db.
		Where("buyer_id = ? OR seller_id = ?", userID, userID).
		Order("created_at DESC").
		Find(&trades).Error
	return trades, err
}

func (d *Database) GetTrade(tradeID string) (*types.Trade, error) {
	var trade types.Trade
	if err := d.db.Where("trade_id = ?", tradeID).First(&trade).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &trade, nil
}

// CreateOrderWithIdempotency creates a new order and idempotency
// record in a transaction.
func (d *Database) CreateOrderWithIdempotency(order *types.MarketOrder, idempotencyKey string) error {
	tx := d.db.Begin()
	if err := tx.Error; err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if err := tx.Create(order).Error; err != nil {
		tx.Rollback()
		return err
	}

	record := IdempotencyRecord{
		IdempotencyKey: idempotencyKey,
		ResourceID:     order.OrderID,
		ResourceType:   "order",
		ExpiresAt:      time.Now().Add(24 * time.Hour),
	}
	if err := tx.Create(&record).Error; err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}

// GetIdempotencyRecord retrieves an idempotency record by key.
func (d *Database) GetIdempotencyRecord(key string) (*IdempotencyRecord, error) {
	var record IdempotencyRecord
	if err := d.db.Where("idempotency_key = ?", key).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &record, nil
		}
		return nil, err
	}
	return &record, nil
}

// SaveMatchResult persists the trades from one match pass together
// with the order updates they imply, in a single transaction. Either
// every trade exists with its orders decremented, or nothing does.
func (d *Database) SaveMatchResult(trades []*types.Trade, orders []*types.MarketOrder) error {
	tx := d.db.Begin()
	if err := tx.Error; err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	for _, trade := range trades {
		if err := tx.Create(trade).Error; err != nil {
			tx.Rollback()
			return err
		}
	}
	for _, order := range orders {
		if err := tx.Save(order).Error; err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit().Error
}
