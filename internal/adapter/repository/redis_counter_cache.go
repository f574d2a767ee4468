package repository

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	domainrepo "marketchat/internal/domain/repository"
	"marketchat/pkg/errors"
)

// redisCounterCache keeps the per-room sequence and per-(room,user) unread
// mirrors in Redis. The sequence must live here and not in process memory so
// every service instance draws from the same counter.
type redisCounterCache struct {
	rdb *redis.Client
}

func NewRedisCounterCache(rdb *redis.Client) domainrepo.CounterCache {
	return &redisCounterCache{rdb: rdb}
}

func seqKey(roomID uint64) string {
	return fmt.Sprintf("chat:room:%d:seq", roomID)
}

func unreadKey(roomID, userID uint64) string {
	return fmt.Sprintf("chat:room:%d:unread:%d", roomID, userID)
}

func (c *redisCounterCache) NextSeq(ctx context.Context, roomID uint64) (int64, error) {
	seq, err := c.rdb.Incr(ctx, seqKey(roomID)).Result()
	if err != nil {
		return 0, errors.Internal("Failed to increment room sequence", err)
	}
	return seq, nil
}

func (c *redisCounterCache) IncrUnread(ctx context.Context, roomID, userID uint64) (int64, error) {
	count, err := c.rdb.Incr(ctx, unreadKey(roomID, userID)).Result()
	if err != nil {
		return 0, errors.Internal("Failed to increment unread counter", err)
	}
	return count, nil
}

func (c *redisCounterCache) SetUnread(ctx context.Context, roomID, userID uint64, count int64) error {
	if err := c.rdb.Set(ctx, unreadKey(roomID, userID), count, 0).Err(); err != nil {
		return errors.Internal("Failed to set unread counter", err)
	}
	return nil
}

func (c *redisCounterCache) GetUnread(ctx context.Context, roomID, userID uint64) (int64, bool, error) {
	count, err := c.rdb.Get(ctx, unreadKey(roomID, userID)).Int64()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Internal("Failed to read unread counter", err)
	}
	return count, true, nil
}
