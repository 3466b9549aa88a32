package pricing

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/agromart/trading-api/internal/types"
	"github.com/agromart/trading-api/pkg/response"
)

// GinHandlers contains HTTP handlers for price endpoints.
type GinHandlers struct {
	service       *Service
	subscriptions *SubscriptionManager
	upgrader      websocket.Upgrader
}

// NewGinHandlers creates a new set of HTTP handlers for price
// endpoints.
func NewGinHandlers(service *Service, subscriptions *SubscriptionManager) *GinHandlers {
	return &GinHandlers{
		service:       service,
		subscriptions: subscriptions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// GetPriceHandler handles GET requests for the current price snapshot.
// URL parameter: commodity_id. Absent data is a 404, not a server
// fault.
func (h *GinHandlers) GetPriceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		commodityID := c.Param("commodity_id")
		if commodityID == "" {
			response.BadRequest(c, "Commodity ID is required")
			return
		}

		data, ok := h.service.GetPriceData(c.Request.Context(), commodityID)
		if !ok {
			response.NotFound(c, "No price data available")
			return
		}

		response.Success(c, data)
	}
}

// StreamPriceHandler upgrades the connection to a WebSocket and pushes
// price updates for the commodity until the client disconnects. Each
// connection owns one subscription; slow clients drop updates rather
// than stalling the subscription tick.
func (h *GinHandlers) StreamPriceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		commodityID := c.Param("commodity_id")
		if commodityID == "" {
			response.BadRequest(c, "Commodity ID is required")
			return
		}

		conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}

		logger := log.With().
			Str("component", "price_stream").
			Str("commodity_id", commodityID).
			Str("remote_addr", conn.RemoteAddr().String()).
			Logger()
		logger.Info().Msg("price stream opened")

		updates := make(chan *types.PriceData, 16)
		cancel := h.subscriptions.Subscribe(commodityID, func(data *types.PriceData) {
			select {
			case updates <- data:
			default:
				logger.Debug().Msg("client buffer full, dropping price update")
			}
		})

		done := make(chan struct{})
		var once sync.Once
		closeStream := func() {
			once.Do(func() {
				cancel()
				close(done)
				_ = conn.Close()
				logger.Info().Msg("price stream closed")
			})
		}

		// Reader: only used to detect the client going away.
		go func() {
			defer closeStream()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		// Writer: single goroutine owns all writes to the connection.
		go func() {
			defer closeStream()
			for {
				select {
				case <-done:
					return
				case data := <-updates:
					if err := conn.WriteJSON(data); err != nil {
						return
					}
				}
			}
		}()
	}
}
