package retry

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"socialops/domain/model"
)

// Limit is a client-side request budget for one platform.
type Limit struct {
	PerSecond float64
	Burst     int
}

// Limiters hands out one token bucket per platform so fan-out stays inside a
// platform's rate envelope. Platforms without a configured limit are unthrottled.
type Limiters struct {
	mu       sync.Mutex
	limits   map[model.Platform]Limit
	limiters map[model.Platform]*rate.Limiter
}

func NewLimiters(limits map[model.Platform]Limit) *Limiters {
	l := &Limiters{limits: map[model.Platform]Limit{}, limiters: map[model.Platform]*rate.Limiter{}}
	for p, lim := range limits {
		l.limits[p] = lim
	}
	return l
}

func (l *Limiters) get(p model.Platform) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.limiters[p]; ok {
		return lim
	}
	cfg, ok := l.limits[p]
	if !ok || cfg.PerSecond <= 0 {
		l.limiters[p] = rate.NewLimiter(rate.Inf, 0)
		return l.limiters[p]
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	l.limiters[p] = rate.NewLimiter(rate.Limit(cfg.PerSecond), burst)
	return l.limiters[p]
}

// Wait blocks until platform p may make one call or ctx is done. A nil
// receiver never waits.
func (l *Limiters) Wait(ctx context.Context, p model.Platform) error {
	if l == nil {
		return nil
	}
	return l.get(p).Wait(ctx)
}
