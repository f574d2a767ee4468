package usecase

import (
	"context"
	"sort"
	"time"

	"marketchat/internal/domain/entity"
	"marketchat/internal/domain/repository"
	"marketchat/internal/infrastructure/client"
	"marketchat/internal/infrastructure/ratelimit"
	"marketchat/pkg/errors"
	"marketchat/pkg/logger"
)

type RoomUseCase struct {
	roomRepo        repository.RoomRepository
	participantRepo repository.ParticipantRepository
	messageRepo     repository.MessageRepository
	productClient   *client.ProductClient
	userClient      *client.UserClient
	rateLimiter     *ratelimit.RateLimiter
}

func NewRoomUseCase(
	roomRepo repository.RoomRepository,
	participantRepo repository.ParticipantRepository,
	messageRepo repository.MessageRepository,
	productClient *client.ProductClient,
	userClient *client.UserClient,
	rateLimiter *ratelimit.RateLimiter,
) *RoomUseCase {
	return &RoomUseCase{
		roomRepo:        roomRepo,
		participantRepo: participantRepo,
		messageRepo:     messageRepo,
		productClient:   productClient,
		userClient:      userClient,
		rateLimiter:     rateLimiter,
	}
}

type CreateRoomInput struct {
	ProductID uint64
	// SellerID may be supplied directly; when zero it is resolved through the
	// product service.
	SellerID uint64
}

type RoomResponse struct {
	*entity.Room
	Created bool `json:"created"`
}

// RoomSummary is one entry of a user's room list, enriched with product and
// counterpart info where the lookup services answer.
type RoomSummary struct {
	RoomID              uint64     `json:"room_id"`
	ProductID           uint64     `json:"product_id"`
	ProductName         string     `json:"product_name"`
	ProductPrice        int64      `json:"product_price"`
	ProductThumbnailURL string     `json:"product_thumbnail_url,omitempty"`
	TradeStatus         string     `json:"trade_status"`
	BuyerID             uint64     `json:"buyer_id"`
	SellerID            uint64     `json:"seller_id"`
	OtherUserID         uint64     `json:"other_user_id"`
	OtherUserNickname   string     `json:"other_user_nickname"`
	LastMessage         string     `json:"last_message,omitempty"`
	LastMessageAt       *time.Time `json:"last_message_at,omitempty"`
	UnreadCount         int        `json:"unread_count"`
	CreatedAt           time.Time  `json:"created_at"`
}

// CreateOrGetRoom returns the room for (product, buyer, seller), creating it
// and both participant rows when absent. Concurrent calls with the same
// triple race on the unique index; the loser re-fetches and returns the
// winner's room.
func (uc *RoomUseCase) CreateOrGetRoom(ctx context.Context, buyerID uint64, input CreateRoomInput) (*RoomResponse, error) {
	if allowed, wait := uc.rateLimiter.Allow(buyerID, "create_room"); !allowed {
		logger.Warn("CreateOrGetRoom rate limited: user %d must wait %v", buyerID, wait)
		return nil, errors.TooManyRequests("Rate limit exceeded. Please wait before creating another room")
	}

	sellerID := input.SellerID
	if sellerID == 0 {
		product, err := uc.productClient.GetProduct(ctx, input.ProductID)
		if err != nil {
			logger.Error("CreateOrGetRoom: product %d lookup failed: %v", input.ProductID, err)
			return nil, errors.BadRequest("Product not found", err)
		}
		sellerID = product.SellerID
	}

	if buyerID == sellerID {
		return nil, errors.BadRequest("You cannot open a chat about your own product", nil)
	}

	if existing, err := uc.roomRepo.GetByTriple(ctx, input.ProductID, buyerID, sellerID); err == nil {
		return &RoomResponse{Room: existing, Created: false}, nil
	} else if !errors.Is(err, "NOT_FOUND") {
		return nil, err
	}

	now := time.Now().UTC()
	room := &entity.Room{
		ProductID: input.ProductID,
		BuyerID:   buyerID,
		SellerID:  sellerID,
		CreatedAt: now,
	}
	participants := []*entity.Participant{
		{UserID: buyerID, UnreadCount: 0, LastReadAt: now},
		{UserID: sellerID, UnreadCount: 0, LastReadAt: now},
	}

	err := uc.roomRepo.Create(ctx, room, participants)
	if err == nil {
		return &RoomResponse{Room: room, Created: true}, nil
	}
	if !errors.Is(err, "CONFLICT") {
		return nil, err
	}

	// Lost the creation race; the other call's room is the room.
	existing, err := uc.roomRepo.GetByTriple(ctx, input.ProductID, buyerID, sellerID)
	if err != nil {
		return nil, err
	}
	return &RoomResponse{Room: existing, Created: false}, nil
}

func (uc *RoomUseCase) GetRoom(ctx context.Context, userID, roomID uint64) (*entity.Room, error) {
	room, err := uc.roomRepo.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.HasParty(userID) {
		return nil, errors.Forbidden("You are not a participant of this room", nil)
	}
	return room, nil
}

// ListRooms returns the user's rooms sorted by latest activity, enriched via
// the product and user services. Lookup failures degrade to placeholders so
// the list never fails because a collaborator is down.
func (uc *RoomUseCase) ListRooms(ctx context.Context, userID uint64) ([]*RoomSummary, error) {
	parts, err := uc.participantRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	summaries := make([]*RoomSummary, 0, len(parts))
	for _, p := range parts {
		room, err := uc.roomRepo.GetByID(ctx, p.RoomID)
		if err != nil {
			logger.Warn("ListRooms: skipping room %d: %v", p.RoomID, err)
			continue
		}

		summary := &RoomSummary{
			RoomID:            room.ID,
			ProductID:         room.ProductID,
			ProductName:       "Unknown product",
			TradeStatus:       "UNKNOWN",
			BuyerID:           room.BuyerID,
			SellerID:          room.SellerID,
			OtherUserID:       room.OtherParty(userID),
			OtherUserNickname: "Unknown user",
			UnreadCount:       p.UnreadCount,
			CreatedAt:         room.CreatedAt,
		}

		if product, err := uc.productClient.GetProduct(ctx, room.ProductID); err == nil {
			summary.ProductName = product.Name
			summary.ProductPrice = product.Price
			summary.ProductThumbnailURL = product.ThumbnailURL
			summary.TradeStatus = product.TradeStatus
		} else {
			logger.Debug("ListRooms: product %d lookup failed: %v", room.ProductID, err)
		}

		if user, err := uc.userClient.GetUser(ctx, summary.OtherUserID); err == nil {
			summary.OtherUserNickname = user.Nickname
		} else {
			logger.Debug("ListRooms: user %d lookup failed: %v", summary.OtherUserID, err)
		}

		if last, err := uc.messageRepo.LatestByRoom(ctx, room.ID); err == nil && last != nil {
			summary.LastMessage = last.Body
			sentAt := last.SentAt
			summary.LastMessageAt = &sentAt
		}

		summaries = append(summaries, summary)
	}

	sort.Slice(summaries, func(i, j int) bool {
		ti, tj := summaries[i].CreatedAt, summaries[j].CreatedAt
		if summaries[i].LastMessageAt != nil {
			ti = *summaries[i].LastMessageAt
		}
		if summaries[j].LastMessageAt != nil {
			tj = *summaries[j].LastMessageAt
		}
		return ti.After(tj)
	})

	return summaries, nil
}
