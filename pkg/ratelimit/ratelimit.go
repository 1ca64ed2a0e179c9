// Package ratelimit bounds outbound request rate to the Places API.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Limiter combines a QPS token bucket with a minimum inter-call delay.
// Wait returns only after both constraints are satisfied. Callers arriving
// concurrently are served in FIFO order by the underlying bucket; no other
// fairness is guaranteed.
type Limiter struct {
	bucket   *rate.Limiter
	minDelay time.Duration

	mu       sync.Mutex
	lastCall time.Time
}

// New creates a Limiter allowing qps requests per second with at least
// minDelay between consecutive calls. qps must be positive.
func New(qps float64, minDelay time.Duration) (*Limiter, error) {
	if qps <= 0 {
		return nil, eris.Errorf("ratelimit: qps must be positive, got %v", qps)
	}
	burst := int(qps)
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		bucket:   rate.NewLimiter(rate.Limit(qps), burst),
		minDelay: minDelay,
	}, nil
}

// Wait blocks until issuing another request would not exceed the configured
// QPS and the minimum inter-call delay has elapsed. It errors only on
// context cancellation.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.bucket.Wait(ctx); err != nil {
		return eris.Wrap(err, "ratelimit: wait")
	}

	if l.minDelay <= 0 {
		l.touch()
		return nil
	}

	l.mu.Lock()
	gap := l.minDelay - time.Since(l.lastCall)
	l.mu.Unlock()

	if gap > 0 {
		timer := time.NewTimer(gap)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return eris.Wrap(ctx.Err(), "ratelimit: wait")
		case <-timer.C:
		}
	}
	l.touch()
	return nil
}

func (l *Limiter) touch() {
	l.mu.Lock()
	l.lastCall = time.Now()
	l.mu.Unlock()
}
