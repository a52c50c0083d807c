package http

import (
	"sync"
	"time"
)

// rateLimiter is a per-key token bucket.
type rateLimiter struct {
	rate  float64
	burst float64
	now   func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	tokens float64
	last   time.Time
}

func newRateLimiter(perSecond float64, burst int) *rateLimiter {
	if perSecond <= 0 {
		return &rateLimiter{}
	}
	if burst < 1 {
		burst = 1
	}
	return &rateLimiter{
		rate:    perSecond,
		burst:   float64(burst),
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

func (r *rateLimiter) allow(key string) bool {
	if r == nil || r.rate <= 0 {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	b, ok := r.buckets[key]
	if !ok {
		b = &bucket{tokens: r.burst, last: now}
		r.buckets[key] = b
	}
	b.tokens = min(r.burst, b.tokens+now.Sub(b.last).Seconds()*r.rate)
	b.last = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// prune drops buckets that have refilled completely; they behave like new ones.
func (r *rateLimiter) prune() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for key, b := range r.buckets {
		if b.tokens+now.Sub(b.last).Seconds()*r.rate >= r.burst {
			delete(r.buckets, key)
		}
	}
}

func (r *rateLimiter) startPrune(stop <-chan struct{}) {
	if r == nil || r.rate <= 0 {
		return
	}
	ticker := time.NewTicker(time.Minute)
	go func() {
		for {
			select {
			case <-ticker.C:
				r.prune()
			case <-stop:
				ticker.Stop()
				return
			}
		}
	}()
}
