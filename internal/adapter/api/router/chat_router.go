package router

import (
	"github.com/labstack/echo/v4"

	"marketchat/internal/adapter/api/handler"
	"marketchat/internal/adapter/api/middleware"
)

// SetupChatRouter sets up all room and message routes (excluding WebSocket).
func SetupChatRouter(e *echo.Echo, authMiddleware *middleware.AuthMiddleware, roomHandler *handler.RoomHandler, chatHandler *handler.ChatHandler) {
	roomGroup := e.Group("/v1/rooms")
	roomGroup.Use(authMiddleware.Authenticate)

	// Room management
	roomGroup.POST("", roomHandler.CreateRoom)  // POST /v1/rooms - create or get room for a product
	roomGroup.GET("", roomHandler.ListRooms)    // GET /v1/rooms - caller's room list
	roomGroup.GET("/:id", roomHandler.GetRoom)  // GET /v1/rooms/:id

	// Messages and read state
	roomGroup.POST("/:id/messages", chatHandler.SendMessage)    // POST /v1/rooms/:id/messages
	roomGroup.GET("/:id/messages", chatHandler.GetMessages)     // GET /v1/rooms/:id/messages?page&size
	roomGroup.POST("/:id/messages/read", chatHandler.MarkRead)  // POST /v1/rooms/:id/messages/read
	roomGroup.GET("/:id/unread", chatHandler.GetUnreadCount)    // GET /v1/rooms/:id/unread

	userGroup := e.Group("/v1/users")
	userGroup.Use(authMiddleware.Authenticate)
	userGroup.GET("/me/unread-summary", chatHandler.GetUnreadSummary) // GET /v1/users/me/unread-summary
}
