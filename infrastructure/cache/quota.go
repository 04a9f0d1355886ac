package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"socialops/domain/model"
	"socialops/domain/repository"
)

const quotaKeyPrefix = "socialops:quota:"

// quotaCounter is the slice of redis.Cmdable the quota needs.
type quotaCounter interface {
	IncrBy(ctx context.Context, key string, value int64) *redis.IntCmd
	DecrBy(ctx context.Context, key string, decrement int64) *redis.IntCmd
	ExpireAt(ctx context.Context, key string, tm time.Time) *redis.BoolCmd
}

// RedisQuota is a per-UTC-day call budget shared by every process.
type RedisQuota struct {
	client quotaCounter
	now    func() time.Time
}

var _ repository.IQuota = (*RedisQuota)(nil)

func NewRedisQuota(client *redis.Client) *RedisQuota {
	return &RedisQuota{client: client, now: time.Now}
}

// Reserve books n calls against scope for today. A reservation that would
// overshoot limit is rolled back and reported as QuotaExceededError. A
// non-positive limit means unlimited.
func (q *RedisQuota) Reserve(ctx context.Context, scope string, n, limit int64) error {
	if limit <= 0 || n <= 0 {
		return nil
	}
	now := q.now().UTC()
	key := dailyKey(scope, now)

	used, err := q.client.IncrBy(ctx, key, n).Result()
	if err != nil {
		return fmt.Errorf("quota reserve %s: %w", scope, err)
	}
	if used == n {
		if err := q.client.ExpireAt(ctx, key, endOfDay(now)).Err(); err != nil {
			return fmt.Errorf("quota expiry %s: %w", scope, err)
		}
	}
	if used > limit {
		if err := q.client.DecrBy(ctx, key, n).Err(); err != nil {
			return fmt.Errorf("quota rollback %s: %w", scope, err)
		}
		return exceeded(scope, n, limit, used-n)
	}
	return nil
}

// Release returns n unused calls to today's budget for scope.
func (q *RedisQuota) Release(ctx context.Context, scope string, n int64) error {
	if n <= 0 {
		return nil
	}
	if err := q.client.DecrBy(ctx, dailyKey(scope, q.now().UTC()), n).Err(); err != nil {
		return fmt.Errorf("quota release %s: %w", scope, err)
	}
	return nil
}

// MemoryQuota is the single-process fallback when Redis is not configured.
type MemoryQuota struct {
	mu   sync.Mutex
	used map[string]int64
	now  func() time.Time
}

var _ repository.IQuota = (*MemoryQuota)(nil)

func NewMemoryQuota() *MemoryQuota {
	return &MemoryQuota{used: map[string]int64{}, now: time.Now}
}

func (q *MemoryQuota) Reserve(_ context.Context, scope string, n, limit int64) error {
	if limit <= 0 || n <= 0 {
		return nil
	}
	key := dailyKey(scope, q.now().UTC())
	q.mu.Lock()
	defer q.mu.Unlock()
	for k := range q.used {
		if k != key && sameScope(k, scope) {
			delete(q.used, k)
		}
	}
	if q.used[key]+n > limit {
		return exceeded(scope, n, limit, q.used[key])
	}
	q.used[key] += n
	return nil
}

func (q *MemoryQuota) Release(_ context.Context, scope string, n int64) error {
	if n <= 0 {
		return nil
	}
	key := dailyKey(scope, q.now().UTC())
	q.mu.Lock()
	defer q.mu.Unlock()
	q.used[key] -= n
	if q.used[key] <= 0 {
		delete(q.used, key)
	}
	return nil
}

func exceeded(scope string, n, limit, used int64) error {
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	return &model.QuotaExceededError{Scope: scope, Requested: n, Remaining: remaining}
}

func dailyKey(scope string, day time.Time) string {
	return quotaKeyPrefix + scope + ":" + day.Format("20060102")
}

func sameScope(key, scope string) bool {
	prefix := quotaKeyPrefix + scope + ":"
	return len(key) == len(prefix)+8 && key[:len(prefix)] == prefix
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC)
}
