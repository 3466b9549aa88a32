package migrations

import (
	"gorm.io/gorm"
)

// AddTradingIndexes creates the indexes backing the hot query paths:
// book reloads by commodity, trade history by party, and the open
// trade sweep.
func AddTradingIndexes(db *gorm.DB) error {
	// Using raw SQL for index creation to have more control over index types
	indexes := []string{
		// Composite index for active order lookups per commodity
		`CREATE INDEX IF NOT EXISTS idx_market_orders_commodity_status
		 ON market_orders(commodity_id, status)`,

		// Index for the expiry sweep
		`CREATE INDEX IF NOT EXISTS idx_market_orders_valid_until
		 ON market_orders(valid_until)`,

		// Indexes for trade history by either party
		`CREATE INDEX IF NOT EXISTS idx_trades_buyer_id
		 ON trades(buyer_id)`,

		`CREATE INDEX IF NOT EXISTS idx_trades_seller_id
		 ON trades(seller_id)`,

		// Index for status filtering by the lifecycle processor
		`CREATE INDEX IF NOT EXISTS idx_trades_status
		 ON trades(status)`,

		// Index for created_at timestamp (useful for time-based queries)
		`CREATE INDEX IF NOT EXISTS idx_trades_created_at
		 ON trades(created_at)`,
	}

	// Execute each index creation
	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			return err
		}
	}

	return nil
}
