package ratelimit

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter paces requests per host.
type RateLimiter interface {
	Wait(ctx context.Context, host string) error
}

// JitterLimiter keeps a randomized delay between two requests to the same
// host.
type JitterLimiter struct {
	minDelay   time.Duration
	maxDelay   time.Duration
	lastAction map[string]time.Time
	mu         sync.Mutex
}

func NewJitterLimiter(minDelay, maxDelay time.Duration) *JitterLimiter {
	return &JitterLimiter{
		minDelay:   minDelay,
		maxDelay:   maxDelay,
		lastAction: make(map[string]time.Time),
	}
}

func (r *JitterLimiter) Wait(ctx context.Context, host string) error {
	host = strings.ToLower(host)

	r.mu.Lock()
	last := r.lastAction[host]
	delay := r.calculateDelay()
	waitTime := delay - time.Since(last)
	// Reserve the slot before sleeping so concurrent callers queue up behind it.
	if waitTime > 0 {
		r.lastAction[host] = time.Now().Add(waitTime)
	} else {
		r.lastAction[host] = time.Now()
	}
	r.mu.Unlock()

	if waitTime <= 0 {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(waitTime):
		return nil
	}
}

func (r *JitterLimiter) SetDelay(min, max time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.minDelay = min
	r.maxDelay = max
}

func (r *JitterLimiter) calculateDelay() time.Duration {
	if r.maxDelay <= r.minDelay {
		return r.minDelay
	}

	delta := r.maxDelay - r.minDelay
	return r.minDelay + time.Duration(rand.Int63n(int64(delta)))
}

// HostLimiter is a token bucket per host.
type HostLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHostLimiter allows perSecond requests per host with the given burst. A
// non-positive rate disables limiting.
func NewHostLimiter(perSecond float64, burst int) *HostLimiter {
	if burst < 1 {
		burst = 1
	}
	return &HostLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (h *HostLimiter) Wait(ctx context.Context, host string) error {
	if h == nil || h.limit <= 0 {
		return nil
	}
	return h.limiter(host).Wait(ctx)
}

func (h *HostLimiter) limiter(host string) *rate.Limiter {
	host = strings.ToLower(host)

	h.mu.Lock()
	defer h.mu.Unlock()

	l, ok := h.limiters[host]
	if !ok {
		l = rate.NewLimiter(h.limit, h.burst)
		h.limiters[host] = l
	}
	return l
}

// Chain waits on every limiter in order.
type Chain []RateLimiter

func (c Chain) Wait(ctx context.Context, host string) error {
	for _, l := range c {
		if l == nil {
			continue
		}
		if err := l.Wait(ctx, host); err != nil {
			return err
		}
	}
	return nil
}
