package settlement

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/agromart/trading-api/internal/auth"
	"github.com/agromart/trading-api/internal/types"
	"github.com/agromart/trading-api/pkg/response"
)

// Service manages the trade delivery lifecycle after matching: trades
// move PENDING -> CONFIRMED -> COMPLETED, and either party can cancel
// before completion.
type Service struct {
	db *Database
}

func NewService(gormDB *gorm.DB) *Service {
	return &Service{db: NewDatabase(gormDB)}
}

// Database exposes the settlement data layer for the background
// processor.
func (s *Service) Database() *Database {
	return s.db
}

// GetTrade returns a trade by ID, or types.ErrTradeNotFound.
func (s *Service) GetTrade(tradeID string) (*types.Trade, error) {
	trade, err := s.db.GetTrade(tradeID)
	if err != nil {
		return nil, err
	}
	if trade == nil {
		return nil, types.ErrTradeNotFound
	}
	return trade, nil
}

// CancelTrade cancels a trade on behalf of one of its parties. Only
// the buyer or seller may cancel, and only while the trade is PENDING
// or CONFIRMED. Returns true when the trade was cancelled by this
// call; false when there was nothing to cancel, with no side effects.
func (s *Service) CancelTrade(tradeID, userID string) (bool, error) {
	trade, err := s.db.GetTrade(tradeID)
	if err != nil {
		return false, err
	}
	if trade == nil {
		return false, nil
	}
	if trade.BuyerID != userID && trade.SellerID != userID {
		return false, nil
	}

	// The status guard makes concurrent cancels and a racing
	// completion resolve to a single winner.
	cancelled, err := s.db.UpdateTradeStatus(tradeID, types.TradeStatusCancelled,
		[]string{types.TradeStatusPending, types.TradeStatusConfirmed})
	if err != nil {
		return false, err
	}

	if cancelled {
		log.Info().
			Str("component", "settlement").
			Str("trade_id", tradeID).
			Str("user_id", userID).
			Msg("trade cancelled")
	}
	return cancelled, nil
}

// GinHandlers contains HTTP handlers for trade lifecycle endpoints.
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

// GetTradeStatusHandler handles GET requests for a single trade.
func (h *GinHandlers) GetTradeStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tradeID := c.Param("trade_id")
		trade, err := h.service.GetTrade(tradeID)
		response.Handle(c, trade, err)
	}
}

// CancelTradeHandler handles POST requests to cancel a trade. The
// caller must be a party to the trade.
func (h *GinHandlers) CancelTradeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, _ := c.Get("claims")
		userID := auth.GetUserID(claims)
		if userID == "" {
			response.Unauthorized(c, "Missing user identity")
			return
		}

		tradeID := c.Param("trade_id")
		cancelled, err := h.service.CancelTrade(tradeID, userID)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		if !cancelled {
			response.NotFound(c, "No cancellable trade found")
			return
		}

		response.Success(c, gin.H{
			"trade_id": tradeID,
			"status":   types.TradeStatusCancelled,
		})
	}
}
