package repository

import (
	"context"

	"marketchat/internal/domain/entity"
)

type RoomRepository interface {
	// Create persists the room together with its two participant rows in a
	// single transaction. Returns a CONFLICT error on a duplicate
	// (product, buyer, seller) triple.
	Create(ctx context.Context, room *entity.Room, participants []*entity.Participant) error
	GetByID(ctx context.Context, id uint64) (*entity.Room, error)
	GetByTriple(ctx context.Context, productID, buyerID, sellerID uint64) (*entity.Room, error)
}
