package router

import (
	"github.com/labstack/echo/v4"

	"marketchat/internal/adapter/api/handler"
)

// SetupWebSocketRouter sets up the WebSocket endpoint. Auth happens inside
// the handler because the token arrives as a query parameter.
func SetupWebSocketRouter(e *echo.Echo, wsHandler *handler.WebSocketHandler) {
	e.GET("/ws", wsHandler.HandleWebSocket)
}
