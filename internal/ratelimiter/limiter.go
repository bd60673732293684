package ratelimiter

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// KeyedLimiters holds one token bucket per key, created on first use.
// The dispatcher keys by recipient mail domain so one slow receiving
// server does not throttle deliveries to the others.
type KeyedLimiters struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New creates KeyedLimiters allowing ratePerSec tokens per second per key.
// A non-positive rate disables limiting.
func New(ratePerSec float64, burst int) *KeyedLimiters {
	limit := rate.Limit(ratePerSec)
	if ratePerSec <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &KeyedLimiters{
		limit:    limit,
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Wait blocks until key's limiter grants a token.
// Returns a non-nil error only if ctx is cancelled while waiting.
func (kl *KeyedLimiters) Wait(ctx context.Context, key string) error {
	return kl.get(key).Wait(ctx)
}

func (kl *KeyedLimiters) get(key string) *rate.Limiter {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	l, ok := kl.limiters[key]
	if !ok {
		l = rate.NewLimiter(kl.limit, kl.burst)
		kl.limiters[key] = l
	}
	return l
}
