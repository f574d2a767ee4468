package router

import (
	"github.com/labstack/echo/v4"

	"marketchat/internal/adapter/api/handler"
	"marketchat/internal/adapter/api/middleware"
)

func Setup(
	e *echo.Echo,
	authMiddleware *middleware.AuthMiddleware,
	roomHandler *handler.RoomHandler,
	chatHandler *handler.ChatHandler,
	wsHandler *handler.WebSocketHandler,
	healthHandler *handler.HealthHandler,
) {
	SetupChatRouter(e, authMiddleware, roomHandler, chatHandler)
	SetupWebSocketRouter(e, wsHandler)
	SetupHealthRouter(e, healthHandler)
}
