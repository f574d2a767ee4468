package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"marketchat/internal/domain/entity"
	"marketchat/internal/domain/repository"
	apperrors "marketchat/pkg/errors"
)

type gormRoomRepository struct {
	db *gorm.DB
}

func NewGormRoomRepository(db *gorm.DB) repository.RoomRepository {
	return &gormRoomRepository{db: db}
}

// Create inserts the room and both participant rows in one transaction. A
// duplicate (product, buyer, seller) triple trips the unique index and is
// reported as CONFLICT so the caller can re-fetch the existing room.
func (r *gormRoomRepository) Create(ctx context.Context, room *entity.Room, participants []*entity.Participant) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(room).Error; err != nil {
			return err
		}
		for _, p := range participants {
			p.RoomID = room.ID
			if err := tx.Create(p).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperrors.Conflict("Room already exists for this product and parties", err)
		}
		return apperrors.Internal("Failed to create room", err)
	}
	return nil
}

func (r *gormRoomRepository) GetByID(ctx context.Context, id uint64) (*entity.Room, error) {
	var room entity.Room
	if err := r.db.WithContext(ctx).First(&room, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("Room", err)
		}
		return nil, apperrors.Internal("Failed to get room", err)
	}
	return &room, nil
}

func (r *gormRoomRepository) GetByTriple(ctx context.Context, productID, buyerID, sellerID uint64) (*entity.Room, error) {
	var room entity.Room
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND buyer_id = ? AND seller_id = ?", productID, buyerID, sellerID).
		First(&room).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("Room", err)
		}
		return nil, apperrors.Internal("Failed to get room", err)
	}
	return &room, nil
}
