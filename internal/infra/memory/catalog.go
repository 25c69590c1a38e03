package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"skillbridge-quiz-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// CatalogLoader fetches assessment content from a backing store.
type CatalogLoader interface {
	LoadAssessment(ctx context.Context, kind domain.AssessmentKind, courseID string) (domain.Assessment, error)
}

// CatalogCache caches assessments with TTL to avoid repeated backing-store hits.
type CatalogCache struct {
	loader CatalogLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedAssessment
}

type cachedAssessment struct {
	assessment domain.Assessment
	expiresAt  time.Time
}

func NewCatalogCache(loader CatalogLoader, ttl time.Duration) *CatalogCache {
	return &CatalogCache{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedAssessment),
	}
}

func (c *CatalogCache) GetAssessment(ctx context.Context, kind domain.AssessmentKind, courseID string) (domain.Assessment, error) {
	key := CatalogKey(kind, courseID)
	now := c.clock()

	c.mu.RLock()
	if entry, ok := c.cache[key]; ok && entry.expiresAt.After(now) {
		c.mu.RUnlock()
		return entry.assessment, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		now := c.clock()
		c.mu.RLock()
		if entry, ok := c.cache[key]; ok && entry.expiresAt.After(now) {
			c.mu.RUnlock()
			return entry.assessment, nil
		}
		c.mu.RUnlock()

		assessment, err := c.loader.LoadAssessment(ctx, kind, courseID)
		if err != nil {
			return domain.Assessment{}, err
		}

		c.mu.Lock()
		c.cache[key] = cachedAssessment{
			assessment: assessment,
			expiresAt:  now.Add(c.ttlWithJitter()),
		}
		c.mu.Unlock()
		return assessment, nil
	})
	if err != nil {
		return domain.Assessment{}, err
	}
	return result.(domain.Assessment), nil
}

func (c *CatalogCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

// CatalogKey is the cache key for one assessment ("entry" or "course:<id>").
func CatalogKey(kind domain.AssessmentKind, courseID string) string {
	if kind == domain.KindCourse {
		return "course:" + courseID
	}
	return "entry"
}

// StaticCatalogLoader is a simple loader backed by an in-memory map (useful for tests/demos).
type StaticCatalogLoader struct {
	assessments map[string]domain.Assessment
}

func NewStaticCatalogLoader(assessments map[string]domain.Assessment) *StaticCatalogLoader {
	return &StaticCatalogLoader{assessments: assessments}
}

func (l *StaticCatalogLoader) LoadAssessment(_ context.Context, kind domain.AssessmentKind, courseID string) (domain.Assessment, error) {
	if assessment, ok := l.assessments[CatalogKey(kind, courseID)]; ok {
		return assessment, nil
	}
	return domain.Assessment{}, domain.ErrCatalogUnavailable
}
