package broker

import (
	"context"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"marketchat/pkg/logger"
)

// Pusher is the outbound side of the fan-out: the websocket manager
// implements it. Pushes must never block; a slow subscriber is the manager's
// problem, not the broker's.
type Pusher interface {
	BroadcastToRoom(roomID uint64, payload []byte)
	SendToUser(userID uint64, payload []byte)
}

// Subscriber bridges the Redis channels to connected websocket clients. Every
// instance of the service runs one, so a message published by any instance
// reaches clients connected to all of them.
type Subscriber struct {
	rdb    *redis.Client
	pusher Pusher
}

func NewSubscriber(rdb *redis.Client, pusher Pusher) *Subscriber {
	return &Subscriber{rdb: rdb, pusher: pusher}
}

// Start consumes room and user channels until ctx is cancelled. go-redis
// re-subscribes after connection loss on its own; dropped events during the
// gap are acceptable, clients catch up via the message list and sequence
// numbers.
func (s *Subscriber) Start(ctx context.Context) {
	pubsub := s.rdb.PSubscribe(ctx, "chat:room:*", "chat:user:*")

	go func() {
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				s.dispatch(msg.Channel, []byte(msg.Payload))
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (s *Subscriber) dispatch(channel string, payload []byte) {
	switch {
	case strings.HasPrefix(channel, "chat:room:"):
		roomID, err := strconv.ParseUint(strings.TrimPrefix(channel, "chat:room:"), 10, 64)
		if err != nil {
			logger.Warn("Ignoring event on malformed channel %s", channel)
			return
		}
		s.pusher.BroadcastToRoom(roomID, payload)
	case strings.HasPrefix(channel, "chat:user:"):
		userID, err := strconv.ParseUint(strings.TrimPrefix(channel, "chat:user:"), 10, 64)
		if err != nil {
			logger.Warn("Ignoring event on malformed channel %s", channel)
			return
		}
		s.pusher.SendToUser(userID, payload)
	default:
		logger.Warn("Ignoring event on unexpected channel %s", channel)
	}
}
