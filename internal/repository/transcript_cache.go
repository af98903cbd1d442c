package repository

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"chat-backend/internal/models"
)

type transcriptBackend interface {
	Load(ctx context.Context, userID uuid.UUID) (*models.Transcript, error)
	Append(ctx context.Context, userID uuid.UUID, turns []models.Turn) (*models.Transcript, error)
	Clear(ctx context.Context, userID uuid.UUID) (*models.Transcript, error)
}

// setIfNewer stores a snapshot unless the cache already holds a newer
// version. KEYS[1] = cache key, ARGV = version, json, ttl in ms.
var setIfNewer = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'version')
if current and tonumber(current) > tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'version', ARGV[1], 'data', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// CachedTranscriptRepo is a read-through Redis cache in front of another
// transcript store. Snapshots are versioned so a slow reader can never
// replace a newer write. Redis errors fall back to the backing store.
type CachedTranscriptRepo struct {
	next  transcriptBackend
	redis *redis.Client
	ttl   time.Duration
}

func NewCachedTranscriptRepo(next transcriptBackend, redisClient *redis.Client, ttl time.Duration) *CachedTranscriptRepo {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CachedTranscriptRepo{next: next, redis: redisClient, ttl: ttl}
}

func transcriptCacheKey(userID uuid.UUID) string {
	return "transcript:" + userID.String()
}

func (c *CachedTranscriptRepo) Load(ctx context.Context, userID uuid.UUID) (*models.Transcript, error) {
	data, err := c.redis.HGet(ctx, transcriptCacheKey(userID), "data").Result()
	if err == nil {
		t := &models.Transcript{}
		if jsonErr := json.Unmarshal([]byte(data), t); jsonErr == nil && t.UserID == userID {
			if t.Turns == nil {
				t.Turns = []models.Turn{}
			}
			return t, nil
		}
		log.Printf("transcript cache: dropping undecodable entry for %s", userID)
		c.redis.Del(ctx, transcriptCacheKey(userID))
	} else if !errors.Is(err, redis.Nil) {
		log.Printf("transcript cache: read failed for %s: %v", userID, err)
	}

	t, err := c.next.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, t)
	return t, nil
}

func (c *CachedTranscriptRepo) Append(ctx context.Context, userID uuid.UUID, turns []models.Turn) (*models.Transcript, error) {
	t, err := c.next.Append(ctx, userID, turns)
	if err != nil {
		return nil, err
	}
	c.store(ctx, t)
	return t, nil
}

func (c *CachedTranscriptRepo) Clear(ctx context.Context, userID uuid.UUID) (*models.Transcript, error) {
	t, err := c.next.Clear(ctx, userID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, t)
	return t, nil
}

func (c *CachedTranscriptRepo) store(ctx context.Context, t *models.Transcript) {
	key := transcriptCacheKey(t.UserID)

	data, err := json.Marshal(t)
	if err != nil {
		log.Printf("transcript cache: encode failed for %s: %v", t.UserID, err)
		return
	}

	err = setIfNewer.Run(ctx, c.redis, []string{key}, t.Version, string(data), c.ttl.Milliseconds()).Err()
	if err != nil {
		log.Printf("transcript cache: write failed for %s: %v", t.UserID, err)
		c.redis.Del(ctx, key)
	}
}
