package settlement

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/agromart/trading-api/internal/types"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.AutoMigrate(&types.Trade{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func seedTrade(t *testing.T, db *gorm.DB, status string, deliveryDate time.Time) *types.Trade {
	t.Helper()
	trade := &types.Trade{
		TradeID:      uuid.New().String(),
		BuyOrderID:   uuid.New().String(),
		SellOrderID:  uuid.New().String(),
		BuyerID:      "buyer-1",
		SellerID:     "seller-1",
		CommodityID:  "WHEAT",
		Quantity:     50,
		PricePerUnit: 42,
		TotalAmount:  2100,
		Status:       status,
		DeliveryDate: deliveryDate,
		PaymentTerms: "CASH_ON_DELIVERY",
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if err := db.Create(trade).Error; err != nil {
		t.Fatalf("failed to seed trade: %v", err)
	}
	return trade
}

func TestGetTrade(t *testing.T) {
	db := newTestDB(t)
	service := NewService(db)
	trade := seedTrade(t, db, types.TradeStatusPending, time.Now().Add(24*time.Hour))

	got, err := service.GetTrade(trade.TradeID)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if got.TradeID != trade.TradeID {
		t.Errorf("trade ID = %q, want %q", got.TradeID, trade.TradeID)
	}

	if _, err := service.GetTrade("no-such-trade"); err != types.ErrTradeNotFound {
		t.Errorf("unknown trade error = %v, want ErrTradeNotFound", err)
	}
}

func TestCancelTradeByEitherParty(t *testing.T) {
	db := newTestDB(t)
	service := NewService(db)

	for _, userID := range []string{"buyer-1", "seller-1"} {
		trade := seedTrade(t, db, types.TradeStatusPending, time.Now().Add(24*time.Hour))

		cancelled, err := service.CancelTrade(trade.TradeID, userID)
		if err != nil {
			t.Fatalf("cancel by %q failed: %v", userID, err)
		}
		if !cancelled {
			t.Fatalf("cancel by %q returned false", userID)
		}

		stored, _ := service.db.GetTrade(trade.TradeID)
		if stored.Status != types.TradeStatusCancelled {
			t.Errorf("status = %q, want %q", stored.Status, types.TradeStatusCancelled)
		}
	}
}

func TestCancelTradeRejectsOutsiders(t *testing.T) {
	db := newTestDB(t)
	service := NewService(db)
	trade := seedTrade(t, db, types.TradeStatusPending, time.Now().Add(24*time.Hour))

	cancelled, err := service.CancelTrade(trade.TradeID, "bystander")
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if cancelled {
		t.Fatal("an outsider cancelled the trade")
	}

	stored, _ := service.db.GetTrade(trade.TradeID)
	if stored.Status != types.TradeStatusPending {
		t.Errorf("status = %q, want it untouched", stored.Status)
	}
}

func TestCancelTradeTerminalStates(t *testing.T) {
	db := newTestDB(t)
	service := NewService(db)

	tests := []struct {
		status string
		want   bool
	}{
		{types.TradeStatusPending, true},
		{types.TradeStatusConfirmed, true},
		{types.TradeStatusCompleted, false},
		{types.TradeStatusCancelled, false},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			trade := seedTrade(t, db, tt.status, time.Now().Add(24*time.Hour))
			cancelled, err := service.CancelTrade(trade.TradeID, "buyer-1")
			if err != nil {
				t.Fatalf("cancel failed: %v", err)
			}
			if cancelled != tt.want {
				t.Errorf("cancel from %q = %v, want %v", tt.status, cancelled, tt.want)
			}
		})
	}
}

func TestCancelTradeIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	service := NewService(db)
	trade := seedTrade(t, db, types.TradeStatusPending, time.Now().Add(24*time.Hour))

	if cancelled, err := service.CancelTrade(trade.TradeID, "buyer-1"); err != nil || !cancelled {
		t.Fatalf("first cancel = (%v, %v), want (true, nil)", cancelled, err)
	}
	if cancelled, err := service.CancelTrade(trade.TradeID, "buyer-1"); err != nil || cancelled {
		t.Fatalf("second cancel = (%v, %v), want (false, nil)", cancelled, err)
	}

	if cancelled, err := service.CancelTrade("no-such-trade", "buyer-1"); err != nil || cancelled {
		t.Fatalf("unknown cancel = (%v, %v), want (false, nil)", cancelled, err)
	}
}
