package cache

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pressroom/approvals-backend/internal/model"
)

var ctx = context.Background()

const shareKeyPrefix = "approval:share:"

// ShareCache is a read-through cache for workflow-by-share-token
// lookups. A nil *ShareCache is a no-op, so the engine runs unchanged
// without Redis.
type ShareCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func Connect(addr, pass string, db int) (*ShareCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: pass,
		DB:       db,
	})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		return nil, err
	}
	return &ShareCache{rdb: rdb, ttl: 5 * time.Minute}, nil
}

func (c *ShareCache) Get(shareID string) (*model.Approval, bool) {
	if c == nil {
		return nil, false
	}
	raw, err := c.rdb.Get(ctx, shareKeyPrefix+shareID).Result()
	if err != nil {
		if err != redis.Nil {
			log.Println("⚠️ share cache read failed:", err)
		}
		return nil, false
	}
	var a model.Approval
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return nil, false
	}
	return &a, true
}

func (c *ShareCache) Put(a *model.Approval) {
	if c == nil || a == nil {
		return
	}
	raw, err := json.Marshal(a)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, shareKeyPrefix+a.ShareID, raw, c.ttl).Err(); err != nil {
		log.Println("⚠️ share cache write failed:", err)
	}
}

func (c *ShareCache) Invalidate(shareID string) {
	if c == nil {
		return
	}
	if err := c.rdb.Del(ctx, shareKeyPrefix+shareID).Err(); err != nil {
		log.Println("⚠️ share cache invalidate failed:", err)
	}
}
