package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"mixfm/model"
)

const queueTTL = 24 * time.Hour

// queueKey builds the Redis key holding a listener's queue projection.
func queueKey(listenerID int64) string {
	return fmt.Sprintf("queue:%d", listenerID)
}

// RedisQueueCache projects the unplayed queue into a Redis sorted set, one
// JSON-encoded track per member scored by playback position. It is a pure
// cache: the MySQL queue store stays authoritative and the projection is
// rebuilt on any miss.
type RedisQueueCache struct {
	client *redis.Client
}

// NewRedisQueueCache creates a queue cache over the given client.
func NewRedisQueueCache(client *redis.Client) *RedisQueueCache {
	return &RedisQueueCache{client: client}
}

// Get reads the cached projection in playback order. A missing key returns
// (nil, nil) so callers fall through to the store.
func (c *RedisQueueCache) Get(ctx context.Context, listenerID int64) ([]*model.Track, error) {
	members, err := c.client.ZRange(ctx, queueKey(listenerID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read queue cache for listener %d: %w", listenerID, err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	tracks := make([]*model.Track, 0, len(members))
	for _, member := range members {
		track := &model.Track{}
		if err := json.Unmarshal([]byte(member), track); err != nil {
			// A corrupt member poisons the whole projection; drop it and
			// report a miss.
			if delErr := c.Invalidate(ctx, listenerID); delErr != nil {
				return nil, fmt.Errorf("failed to drop corrupt queue cache for listener %d: %w", listenerID, delErr)
			}
			return nil, nil
		}
		tracks = append(tracks, track)
	}
	return tracks, nil
}

// Set replaces the listener's projection with the given tracks in order.
func (c *RedisQueueCache) Set(ctx context.Context, listenerID int64, tracks []*model.Track) error {
	key := queueKey(listenerID)

	members := make([]*redis.Z, 0, len(tracks))
	for i, track := range tracks {
		data, err := json.Marshal(track)
		if err != nil {
			return fmt.Errorf("failed to marshal track %d for queue cache: %w", track.ID, err)
		}
		members = append(members, &redis.Z{Score: float64(i), Member: data})
	}

	pipe := c.client.TxPipeline()
	pipe.Del(ctx, key)
	if len(members) > 0 {
		pipe.ZAdd(ctx, key, members...)
		pipe.Expire(ctx, key, queueTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write queue cache for listener %d: %w", listenerID, err)
	}
	return nil
}

// Invalidate drops the listener's projection.
func (c *RedisQueueCache) Invalidate(ctx context.Context, listenerID int64) error {
	if err := c.client.Del(ctx, queueKey(listenerID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate queue cache for listener %d: %w", listenerID, err)
	}
	return nil
}
