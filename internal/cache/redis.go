package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/emilythestrangee/terakoya-timeline/backend/internal/models"
)

// generationTTL bounds how long an invalidation is remembered. A fetch that
// takes longer than this could refill a stale entry.
const generationTTL = 24 * time.Hour

// fillScript stores the entry only while the post's generation still equals
// the one observed before the store read.
var fillScript = redis.NewScript(`
local gen = redis.call('GET', KEYS[2])
if (gen or '0') ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// RedisPostCache caches posts fetched by key. Every write to a post bumps
// the post's generation and drops the entry, so a fetch that read the store
// before the write cannot put its copy back.
type RedisPostCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisPostCache(addr string, ttl time.Duration) (*RedisPostCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("error connecting to Redis: %w", err)
	}

	return &RedisPostCache{
		client: client,
		ttl:    ttl,
	}, nil
}

// Keys share a hash tag so the fill script stays in one cluster slot.
func postKey(postID string) string {
	return fmt.Sprintf("timeline:post:{%s}", postID)
}

func generationKey(postID string) string {
	return postKey(postID) + ":gen"
}

// Get returns the cached post, or nil on a miss, together with the post's
// current generation.
func (c *RedisPostCache) Get(ctx context.Context, postID string) (*models.PostItem, int64, error) {
	values, err := c.client.MGet(ctx, postKey(postID), generationKey(postID)).Result()
	if err != nil {
		return nil, 0, err
	}

	var generation int64
	if raw, ok := values[1].(string); ok {
		generation, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, 0, fmt.Errorf("error parsing generation of post %s: %w", postID, err)
		}
	}

	raw, ok := values[0].(string)
	if !ok {
		return nil, generation, nil
	}
	var post models.PostItem
	if err := json.Unmarshal([]byte(raw), &post); err != nil {
		return nil, generation, err
	}
	return &post, generation, nil
}

// Fill caches post if nothing invalidated it since Get reported generation.
// It reports whether the entry was stored.
func (c *RedisPostCache) Fill(ctx context.Context, post *models.PostItem, generation int64) (bool, error) {
	value, err := json.Marshal(post)
	if err != nil {
		return false, err
	}
	stored, err := fillScript.Run(ctx, c.client,
		[]string{postKey(post.PostID), generationKey(post.PostID)},
		strconv.FormatInt(generation, 10), value, c.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, err
	}
	return stored == 1, nil
}

// Invalidate drops the entries and bumps the generations of postIDs.
func (c *RedisPostCache) Invalidate(ctx context.Context, postIDs ...string) error {
	if len(postIDs) == 0 {
		return nil
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range postIDs {
			pipe.Incr(ctx, generationKey(id))
			pipe.Expire(ctx, generationKey(id), generationTTL)
			pipe.Del(ctx, postKey(id))
		}
		return nil
	})
	return err
}

func (c *RedisPostCache) Close() error {
	return c.client.Close()
}
