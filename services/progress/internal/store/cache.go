package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/example/course-platform/internal/platform/metrics"
	"github.com/example/course-platform/internal/progress"
)

// CachedRepository is a Redis read-through cache in front of another
// Repository. Writes go to the backing repository and then replace the
// cached record; concurrent misses for the same key share one backend read.
// Every cache write is conditional on UpdatedAt, so a slow miss can never
// put back a record older than the one already cached.
type CachedRepository struct {
	next   Repository
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
	group  singleflight.Group
}

func NewCachedRepository(next Repository, client *redis.Client, ttl time.Duration, log *zap.Logger) *CachedRepository {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CachedRepository{next: next, client: client, ttl: ttl, log: log}
}

// NewRedisClient parses a redis:// URL, falling back to a bare address.
func NewRedisClient(url string) *redis.Client {
	opts, err := redis.ParseURL(url)
	if err != nil {
		opts = &redis.Options{Addr: url}
	}
	return redis.NewClient(opts)
}

func cacheKey(userID, courseID string) string {
	return "progress:" + userID + ":" + courseID
}

func (c *CachedRepository) GetOrCreate(ctx context.Context, userID, courseID string) (progress.Record, error) {
	if err := validKey(userID, courseID); err != nil {
		return progress.Record{}, err
	}
	key := cacheKey(userID, courseID)

	val, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var rec progress.Record
		if jerr := json.Unmarshal(val, &rec); jerr == nil {
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			return rec, nil
		}
		metrics.CacheLookups.WithLabelValues("error").Inc()
	case errors.Is(err, redis.Nil):
		metrics.CacheLookups.WithLabelValues("miss").Inc()
	default:
		metrics.CacheLookups.WithLabelValues("error").Inc()
		c.log.Warn("progress cache get failed", zap.String("key", key), zap.Error(err))
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		rec, err := c.next.GetOrCreate(ctx, userID, courseID)
		if err != nil {
			return progress.Record{}, err
		}
		c.storeIfNewer(ctx, key, rec)
		return rec, nil
	})
	if err != nil {
		return progress.Record{}, err
	}
	return v.(progress.Record).Clone(), nil
}

func (c *CachedRepository) Merge(ctx context.Context, userID, courseID string, in progress.Record) (Change, error) {
	ch, err := c.next.Merge(ctx, userID, courseID, in)
	if err != nil {
		return Change{}, err
	}
	key := cacheKey(userID, courseID)
	if !c.storeIfNewer(ctx, key, ch.After) {
		if err := c.client.Del(ctx, key).Err(); err != nil {
			c.log.Warn("progress cache invalidate failed", zap.String("key", key), zap.Error(err))
		}
	}
	return ch, nil
}

func (c *CachedRepository) List(ctx context.Context, userID string, limit int) ([]progress.Record, error) {
	return c.next.List(ctx, userID, limit)
}

func (c *CachedRepository) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return err
	}
	return c.next.Ping(ctx)
}

const maxCacheSetAttempts = 3

// storeIfNewer caches rec unless the key already holds a record with a later
// UpdatedAt. It reports false when Redis could not be updated.
func (c *CachedRepository) storeIfNewer(ctx context.Context, key string, rec progress.Record) bool {
	b, err := json.Marshal(rec)
	if err != nil {
		return false
	}
	txf := func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			var cached progress.Record
			if json.Unmarshal(cur, &cached) == nil && cached.UpdatedAt.After(rec.UpdatedAt) {
				return nil
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, b, c.ttl)
			return nil
		})
		return err
	}
	for range maxCacheSetAttempts {
		err = c.client.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		c.log.Warn("progress cache set failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}
