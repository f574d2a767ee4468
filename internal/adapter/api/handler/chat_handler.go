package handler

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"marketchat/internal/usecase"
	"marketchat/pkg/response"
)

type ChatHandler struct {
	chatUseCase *usecase.ChatUseCase
}

func NewChatHandler(chatUseCase *usecase.ChatUseCase) *ChatHandler {
	return &ChatHandler{chatUseCase: chatUseCase}
}

type sendMessageRequest struct {
	Body       string `json:"body" validate:"required,max=2000"`
	SenderName string `json:"sender_name"`
}

type markReadRequest struct {
	UpTo string `json:"up_to"`
}

// SendMessage appends a message to the room and fans it out.
func (h *ChatHandler) SendMessage(c echo.Context) error {
	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get("uid").(uint64)
	roomID, err := parseRoomID(c)
	if err != nil {
		return response.Error(c, err)
	}

	message, err := h.chatUseCase.SendMessage(c.Request().Context(), userID, usecase.SendMessageInput{
		RoomID:     roomID,
		Body:       req.Body,
		SenderName: req.SenderName,
	})
	if err != nil {
		return response.Error(c, err)
	}
	return response.Created(c, message)
}

// GetMessages returns one page of room history, newest first.
func (h *ChatHandler) GetMessages(c echo.Context) error {
	userID := c.Get("uid").(uint64)
	roomID, err := parseRoomID(c)
	if err != nil {
		return response.Error(c, err)
	}

	page := 0
	size := 20
	if pageStr := c.QueryParam("page"); pageStr != "" {
		if parsed, err := strconv.Atoi(pageStr); err == nil && parsed >= 0 {
			page = parsed
		}
	}
	if sizeStr := c.QueryParam("size"); sizeStr != "" {
		if parsed, err := strconv.Atoi(sizeStr); err == nil && parsed > 0 {
			size = parsed
		}
	}

	messages, total, err := h.chatUseCase.ListMessages(c.Request().Context(), userID, roomID, page, size)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Paginated(c, messages, total, page+1, size)
}

// MarkRead clears the caller's unread state in the room up to the supplied
// timestamp, defaulting to now.
func (h *ChatHandler) MarkRead(c echo.Context) error {
	var req markReadRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get("uid").(uint64)
	roomID, err := parseRoomID(c)
	if err != nil {
		return response.Error(c, err)
	}

	upTo, err := h.chatUseCase.ParseUpTo(req.UpTo)
	if err != nil {
		return response.Error(c, err)
	}

	if err := h.chatUseCase.MarkRead(c.Request().Context(), userID, roomID, upTo); err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, map[string]interface{}{"room_id": roomID})
}

// GetUnreadCount returns the caller's unread count for one room.
func (h *ChatHandler) GetUnreadCount(c echo.Context) error {
	userID := c.Get("uid").(uint64)
	roomID, err := parseRoomID(c)
	if err != nil {
		return response.Error(c, err)
	}

	count, err := h.chatUseCase.GetUnreadCount(c.Request().Context(), userID, roomID)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, map[string]interface{}{
		"room_id":      roomID,
		"user_id":      userID,
		"unread_count": count,
	})
}

// GetUnreadSummary aggregates the caller's unread counts across all rooms.
func (h *ChatHandler) GetUnreadSummary(c echo.Context) error {
	userID := c.Get("uid").(uint64)

	summary, err := h.chatUseCase.GetUnreadSummary(c.Request().Context(), userID)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, summary)
}
