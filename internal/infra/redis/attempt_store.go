package redis

import (
	"context"
	"sync"
	"time"

	"skillbridge-quiz-service/internal/app"
	"skillbridge-quiz-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// AttemptStore is a Redis-aware implementation of app.AttemptRepository.
// Notes:
//   - It still keeps a local in-memory map of attempts because the aggregate
//     holds live timers and subscriber channels, which cannot cross processes.
//   - Redis marks attempt liveness so operators can see active sessions (and
//     it could be extended to share snapshots across instances).
type AttemptStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	attempts map[string]*app.Attempt
}

func NewAttemptStore(client *redis.Client, ttl time.Duration) *AttemptStore {
	return &AttemptStore{
		client:   client,
		ttl:      ttl,
		attempts: make(map[string]*app.Attempt),
	}
}

func (s *AttemptStore) GetOrCreate(key, user string, kind domain.AssessmentKind, courseID string) *app.Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	if attempt, ok := s.attempts[key]; ok {
		return attempt
	}
	attempt := app.NewAttempt(key, user, kind, courseID)
	s.attempts[key] = attempt
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), s.redisKey(key), attempt.ID(), s.ttl).Err()
	return attempt
}

func (s *AttemptStore) Get(key string) (*app.Attempt, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attempt, ok := s.attempts[key]
	return attempt, ok
}

func (s *AttemptStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.attempts[key]; !ok {
		return
	}
	delete(s.attempts, key)
	_ = s.client.Del(context.Background(), s.redisKey(key)).Err()
}

func (s *AttemptStore) redisKey(key string) string {
	return "attempt:live:" + key
}
