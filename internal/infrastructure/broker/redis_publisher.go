package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"marketchat/internal/domain/entity"
	"marketchat/internal/domain/repository"
	"marketchat/pkg/errors"
)

// Channel layout: one topic per room plus one private queue per user, so a
// subscriber can follow a room conversation or a user's unread badge stream.
func RoomChannel(roomID uint64) string {
	return fmt.Sprintf("chat:room:%d", roomID)
}

func UserChannel(userID uint64) string {
	return fmt.Sprintf("chat:user:%d", userID)
}

type redisPublisher struct {
	rdb *redis.Client
}

func NewRedisPublisher(rdb *redis.Client) repository.EventPublisher {
	return &redisPublisher{rdb: rdb}
}

func (p *redisPublisher) publish(ctx context.Context, channel string, evt interface{}) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return errors.Internal("Failed to encode event", err)
	}
	if err := p.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return errors.Internal("Failed to publish event", err)
	}
	return nil
}

func (p *redisPublisher) PublishMessageAppended(ctx context.Context, evt *entity.MessageAppended) error {
	evt.Type = entity.EventMessageAppended
	return p.publish(ctx, RoomChannel(evt.RoomID), evt)
}

func (p *redisPublisher) PublishReadReceipt(ctx context.Context, evt *entity.ReadReceipt) error {
	evt.Type = entity.EventReadReceipt
	return p.publish(ctx, RoomChannel(evt.RoomID), evt)
}

func (p *redisPublisher) PublishUnreadDelta(ctx context.Context, evt *entity.UnreadDelta) error {
	evt.Type = entity.EventUnreadDelta
	return p.publish(ctx, UserChannel(evt.UserID), evt)
}
