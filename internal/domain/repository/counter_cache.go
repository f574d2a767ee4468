package repository

import "context"

// CounterCache mirrors per-(room,user) unread counts and holds the per-room
// message sequence. It is a best-effort accelerator: values may lag the
// participant table and are always safe to discard and rebuild from it. The
// pipeline works identically against the Redis implementation and the
// disabled one.
type CounterCache interface {
	// NextSeq atomically increments and returns the room's sequence counter.
	NextSeq(ctx context.Context, roomID uint64) (int64, error)

	IncrUnread(ctx context.Context, roomID, userID uint64) (int64, error)
	SetUnread(ctx context.Context, roomID, userID uint64, count int64) error

	// GetUnread returns (count, true) on a cache hit and (0, false) when the
	// key is absent or the cache is disabled.
	GetUnread(ctx context.Context, roomID, userID uint64) (int64, bool, error)
}
