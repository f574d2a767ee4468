package repository

import (
	"context"
	"time"

	"marketchat/internal/domain/entity"
)

type MessageRepository interface {
	// Append durably stores a new message. This is the durability boundary of
	// a send: if it fails the whole operation fails.
	Append(ctx context.Context, message *entity.Message) error

	// ListByRoom returns messages ordered by sentAt descending (ties broken
	// by seq descending) with offset pagination, plus the total count.
	ListByRoom(ctx context.Context, roomID uint64, limit, offset int) ([]*entity.Message, int64, error)

	// LatestByRoom returns the newest message of a room, or nil when the room
	// has no messages yet.
	LatestByRoom(ctx context.Context, roomID uint64) (*entity.Message, error)

	// MarkReadUpTo flips read=true on every unread message in the room not
	// sent by readerID with sentAt <= upTo. Idempotent; returns the number of
	// messages flipped.
	MarkReadUpTo(ctx context.Context, roomID, readerID uint64, upTo time.Time) (int64, error)
}
