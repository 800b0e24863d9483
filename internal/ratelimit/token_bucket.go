// Package ratelimit provides the token buckets used to throttle inbound
// signaling traffic per WebSocket.
package ratelimit

import (
	"golang.org/x/time/rate"
)

// TokenBucket holds up to capacity tokens and refills at a fixed rate read
// from a Clock.
type TokenBucket struct {
	clock Clock
	lim   *rate.Limiter
}

// NewTokenBucket returns a full bucket. A nil clock uses RealClock.
func NewTokenBucket(clock Clock, capacity, ratePerSecond int64) *TokenBucket {
	if clock == nil {
		clock = RealClock{}
	}
	capacity = max(capacity, 0)
	ratePerSecond = max(ratePerSecond, 0)
	return &TokenBucket{
		clock: clock,
		lim:   rate.NewLimiter(rate.Limit(ratePerSecond), int(capacity)),
	}
}

// Allow consumes n tokens if the bucket holds them. n <= 0 always succeeds
// and a failed Allow consumes nothing.
func (b *TokenBucket) Allow(n int64) bool {
	if n <= 0 {
		return true
	}
	if n > int64(b.lim.Burst()) {
		return false
	}
	return b.lim.AllowN(b.clock.Now(), int(n))
}
