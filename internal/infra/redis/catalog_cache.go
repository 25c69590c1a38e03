package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"skillbridge-quiz-service/internal/domain"
	"skillbridge-quiz-service/internal/infra/memory"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// CatalogCache caches full assessment JSON in Redis and falls back to a
// loader on cache miss. Stored as: SET assessment:{key} {json} EX ttl.
// The whole document is cached (not just the answer keys) because the
// transport serves prompts and options from the same read.
type CatalogCache struct {
	client *redis.Client
	loader memory.CatalogLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewCatalogCache(client *redis.Client, loader memory.CatalogLoader, ttl time.Duration) *CatalogCache {
	return &CatalogCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *CatalogCache) GetAssessment(ctx context.Context, kind domain.AssessmentKind, courseID string) (domain.Assessment, error) {
	key := c.key(kind, courseID)

	if raw, err := c.client.Get(ctx, key).Bytes(); err == nil && len(raw) > 0 {
		var assessment domain.Assessment
		if err := json.Unmarshal(raw, &assessment); err == nil {
			return assessment, nil
		}
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if raw, err := c.client.Get(ctx, key).Bytes(); err == nil && len(raw) > 0 {
			var assessment domain.Assessment
			if err := json.Unmarshal(raw, &assessment); err == nil {
				return assessment, nil
			}
		}

		assessment, err := c.loader.LoadAssessment(ctx, kind, courseID)
		if err != nil {
			return domain.Assessment{}, err
		}

		if raw, err := json.Marshal(assessment); err == nil {
			_ = c.client.Set(ctx, key, raw, c.ttlWithJitter()).Err()
		}
		return assessment, nil
	})
	if err != nil {
		return domain.Assessment{}, err
	}
	return result.(domain.Assessment), nil
}

func (c *CatalogCache) key(kind domain.AssessmentKind, courseID string) string {
	return "assessment:" + memory.CatalogKey(kind, courseID)
}

func (c *CatalogCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
