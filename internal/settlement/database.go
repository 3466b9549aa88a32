package settlement

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

// GetTrade retrieves a trade by its trade ID. Returns (nil, nil) when
// no such trade exists.
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

// GetOpenTrades returns trades still moving through the delivery
// lifecycle, oldest first.
func (d *Database) GetOpenTrades() ([]types.Trade, error) {
	var trades []types.Trade
	if err := d.db.
		Where("status IN ?", []string{types.TradeStatusPending, types.TradeStatusConfirmed}).
		Order("created_at ASC").
		Find(&trades).Error; err != nil {
		return nil, err
	}
	return trades, nil
}

func (d *Database) UpdateTrade(trade *types.Trade) error {
	return d.db.Save(trade).Error
}

// UpdateTradeStatus transitions a trade to the given status only if it
// currently holds one of the allowed statuses. Returns false when the
// guard did not match any row.
func (d *Database) UpdateTradeStatus(tradeID, status string, allowedFrom []string) (bool, error) {
	result := d.db.Model(&types.Trade{}).
		Where("trade_id = ? AND status IN ?", tradeID, allowedFrom).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		})

	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
