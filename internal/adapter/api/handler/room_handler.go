package handler

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"marketchat/internal/usecase"
	"marketchat/pkg/errors"
	"marketchat/pkg/response"
)

type RoomHandler struct {
	roomUseCase *usecase.RoomUseCase
}

func NewRoomHandler(roomUseCase *usecase.RoomUseCase) *RoomHandler {
	return &RoomHandler{roomUseCase: roomUseCase}
}

type createRoomRequest struct {
	ProductID uint64 `json:"product_id" validate:"required"`
	SellerID  uint64 `json:"seller_id"`
}

// CreateRoom creates the buyer/seller room for a product, or returns the
// existing one.
func (h *RoomHandler) CreateRoom(c echo.Context) error {
	var req createRoomRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	buyerID := c.Get("uid").(uint64)

	room, err := h.roomUseCase.CreateOrGetRoom(c.Request().Context(), buyerID, usecase.CreateRoomInput{
		ProductID: req.ProductID,
		SellerID:  req.SellerID,
	})
	if err != nil {
		return response.Error(c, err)
	}

	if room.Created {
		return response.Created(c, room)
	}
	return response.Success(c, room)
}

// ListRooms returns the caller's rooms sorted by latest activity.
func (h *RoomHandler) ListRooms(c echo.Context) error {
	userID := c.Get("uid").(uint64)

	rooms, err := h.roomUseCase.ListRooms(c.Request().Context(), userID)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, rooms)
}

// GetRoom returns one room the caller participates in.
func (h *RoomHandler) GetRoom(c echo.Context) error {
	userID := c.Get("uid").(uint64)

	roomID, err := parseRoomID(c)
	if err != nil {
		return response.Error(c, err)
	}

	room, err := h.roomUseCase.GetRoom(c.Request().Context(), userID, roomID)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, room)
}

func parseRoomID(c echo.Context) (uint64, error) {
	roomID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || roomID == 0 {
		return 0, errors.BadRequest("Invalid room id", err)
	}
	return roomID, nil
}
