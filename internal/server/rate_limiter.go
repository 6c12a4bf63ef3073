package server

import (
	"golang.org/x/time/rate"

	"github.com/Tyrowin/taktrelay/internal/config"
)

// rateLimiter throttles inbound frames on one connection. A nil limiter allows
// everything.
type rateLimiter struct {
	limiter *rate.Limiter
}

func newRateLimiter(cfg config.RateLimitConfig) *rateLimiter {
	if !cfg.Enabled {
		return nil
	}

	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Limit(cfg.MessagesPerSecond)
	if limit <= 0 {
		limit = rate.Limit(burst)
	}

	return &rateLimiter{limiter: rate.NewLimiter(limit, burst)}
}

func (rl *rateLimiter) allow() bool {
	if rl == nil {
		return true
	}
	return rl.limiter.Allow()
}
