package trading

import (
	"github.com/gin-gonic/gin"

	"github.com/agromart/trading-api/internal/auth"
	"github.com/agromart/trading-api/internal/types"
	"github.com/agromart/trading-api/pkg/response"
)

// GinHandlers contains HTTP handlers for order and trade endpoints.
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for order and
// trade endpoints.
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// userIDFromClaims pulls the authenticated user out of the request
// context, or writes a 401 and reports false.
func userIDFromClaims(c *gin.Context) (string, bool) {
	claims, exists := c.Get("claims")
	if !exists {
		response.Unauthorized(c, "Missing authentication claims")
		return "", false
	}
	userID := auth.GetUserID(claims)
	if userID == "" {
		response.Unauthorized(c, "Invalid user ID in token")
		return "", false
	}
	return userID, true
}

// CreateOrderHandler handles POST requests to create market orders.
// Requires a valid JWT token and idempotency key in headers; the
// authenticated user owns the order regardless of the request body.
func (h *GinHandlers) CreateOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		idempotencyKey := c.GetHeader("Idempotency-Key")
		if idempotencyKey == "" {
			response.BadRequest(c, "Idempotency-Key header is required")
			return
		}

		userID, ok := userIDFromClaims(c)
		if !ok {
			return
		}

		var order types.MarketOrder
		if err := c.ShouldBindJSON(&order); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		order.UserID = userID

		if err := h.service.CreateMarketOrder(c.Request.Context(), &order, idempotencyKey); err != nil {
			if types.IsValidation(err) {
				response.BadRequest(c, err.Error())
				return
			}
			response.InternalError(c, err.Error())
			return
		}

		response.Success(c, order)
	}
}

// GetOrderStatusHandler handles GET requests to retrieve an order.
// Requires a valid JWT token; only the owner sees the order.
// URL parameter: order_id.
func (h *GinHandlers) GetOrderStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := userIDFromClaims(c)
		if !ok {
			return
		}

		orderID := c.Param("order_id")
		if orderID == "" {
			response.BadRequest(c, "Order ID is required")
			return
		}

		order, err := h.service.GetOrder(orderID, userID)
		if err != nil || order == nil {
			response.NotFound(c, "Order not found")
			return
		}

		response.Success(c, order)
	}
}

// CancelOrderHandler handles DELETE requests to cancel an order.
// Requires a valid JWT token. A cancellation that cannot proceed (the
// order is unknown, foreign, or no longer active) is a 404 with no
// side effects. URL parameter: order_id.
func (h *GinHandlers) CancelOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := userIDFromClaims(c)
		if !ok {
			return
		}

		orderID := c.Param("order_id")
		if orderID == "" {
			response.BadRequest(c, "Order ID is required")
			return
		}

		cancelled, err := h.service.CancelOrder(c.Request.Context(), orderID, userID)
		if err != nil {
			response.InternalError(c, err.Error())
			return
		}
		if !cancelled {
			response.NotFound(c, "No cancellable order found")
			return
		}

		response.Success(c, gin.H{"order_id": orderID, "status": types.OrderStatusCancelled})
	}
}

// GetUserTradesHandler handles GET requests for the caller's trades,
// as buyer or seller. Requires a valid JWT token.
func (h *GinHandlers) GetUserTradesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := userIDFromClaims(c)
		if !ok {
			return
		}

		trades, err := h.service.GetUserTrades(userID)
		if err != nil {
			response.InternalError(c, err.Error())
			return
		}

		response.Success(c, trades)
	}
}

// MatchOrdersHandler handles POST requests to run a match pass for a
// commodity. Internal endpoint. URL parameter: commodity_id.
func (h *GinHandlers) MatchOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		commodityID := c.Param("commodity_id")
		if commodityID == "" {
			response.BadRequest(c, "Commodity ID is required")
			return
		}

		trades, err := h.service.MatchOrders(c.Request.Context(), commodityID)
		if err != nil {
			response.InternalError(c, err.Error())
			return
		}

		response.Success(c, trades)
	}
}
