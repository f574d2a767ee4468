package repository

import (
	"context"

	"marketchat/internal/domain/entity"
)

// EventPublisher fans events out on the pub/sub broker. All publishes are
// fire-and-forget relative to the durable write path: a failure is logged by
// the caller, never surfaced to the user.
type EventPublisher interface {
	PublishMessageAppended(ctx context.Context, evt *entity.MessageAppended) error
	PublishReadReceipt(ctx context.Context, evt *entity.ReadReceipt) error
	PublishUnreadDelta(ctx context.Context, evt *entity.UnreadDelta) error
}
