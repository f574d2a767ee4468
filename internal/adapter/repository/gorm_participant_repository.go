package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"marketchat/internal/domain/entity"
	"marketchat/internal/domain/repository"
	apperrors "marketchat/pkg/errors"
)

type gormParticipantRepository struct {
	db *gorm.DB
}

func NewGormParticipantRepository(db *gorm.DB) repository.ParticipantRepository {
	return &gormParticipantRepository{db: db}
}

func (r *gormParticipantRepository) Get(ctx context.Context, roomID, userID uint64) (*entity.Participant, error) {
	var p entity.Participant
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("Participant", err)
		}
		return nil, apperrors.Internal("Failed to get participant", err)
	}
	return &p, nil
}

func (r *gormParticipantRepository) ListByRoom(ctx context.Context, roomID uint64) ([]*entity.Participant, error) {
	var parts []*entity.Participant
	if err := r.db.WithContext(ctx).Where("room_id = ?", roomID).Find(&parts).Error; err != nil {
		return nil, apperrors.Internal("Failed to list room participants", err)
	}
	return parts, nil
}

func (r *gormParticipantRepository) ListByUser(ctx context.Context, userID uint64) ([]*entity.Participant, error) {
	var parts []*entity.Participant
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Find(&parts).Error; err != nil {
		return nil, apperrors.Internal("Failed to list user participants", err)
	}
	return parts, nil
}

// IncrementUnread is a single atomic UPDATE so concurrent sends into the same
// room never lose increments.
func (r *gormParticipantRepository) IncrementUnread(ctx context.Context, roomID, userID uint64) error {
	result := r.db.WithContext(ctx).
		Model(&entity.Participant{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		UpdateColumn("unread_count", gorm.Expr("unread_count + ?", 1))
	if result.Error != nil {
		return apperrors.Internal("Failed to increment unread count", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NotFound("Participant", nil)
	}
	return nil
}

// MarkRead clears the unread count and advances last_read_at, never moving it
// backward. Two statements, each atomic: the first handles the normal
// forward case, the second covers a replayed or out-of-order upTo where only
// the count should reset.
func (r *gormParticipantRepository) MarkRead(ctx context.Context, roomID, userID uint64, upTo time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&entity.Participant{}).
		Where("room_id = ? AND user_id = ? AND last_read_at <= ?", roomID, userID, upTo).
		UpdateColumns(map[string]interface{}{
			"unread_count": 0,
			"last_read_at": upTo,
		})
	if result.Error != nil {
		return apperrors.Internal("Failed to mark participant as read", result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}

	// Replayed or out-of-order upTo, or a repeat of the same call: only the
	// count resets, the timestamp stays where it is. Rows-affected is not
	// checked because a no-op update of an already-zero count reports zero.
	result = r.db.WithContext(ctx).
		Model(&entity.Participant{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		UpdateColumn("unread_count", 0)
	if result.Error != nil {
		return apperrors.Internal("Failed to reset unread count", result.Error)
	}
	return nil
}
