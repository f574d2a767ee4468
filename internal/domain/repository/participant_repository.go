package repository

import (
	"context"
	"time"

	"marketchat/internal/domain/entity"
)

type ParticipantRepository interface {
	Get(ctx context.Context, roomID, userID uint64) (*entity.Participant, error)
	ListByRoom(ctx context.Context, roomID uint64) ([]*entity.Participant, error)
	ListByUser(ctx context.Context, userID uint64) ([]*entity.Participant, error)

	// IncrementUnread bumps unread_count for one (room, user) row with an
	// atomic single-row UPDATE, never a read-modify-write.
	IncrementUnread(ctx context.Context, roomID, userID uint64) error

	// MarkRead zeroes unread_count and advances last_read_at to upTo. The
	// timestamp only ever moves forward; a stale upTo still clears the count.
	MarkRead(ctx context.Context, roomID, userID uint64, upTo time.Time) error
}
