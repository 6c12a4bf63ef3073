package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/taktrelay/internal/config"
)

func TestRateLimiterDisabled(t *testing.T) {
	rl := newRateLimiter(config.RateLimitConfig{Enabled: false, MessagesPerSecond: 1, Burst: 1})
	require.Nil(t, rl)

	for i := 0; i < 100; i++ {
		assert.True(t, rl.allow())
	}
}

func TestRateLimiterBurst(t *testing.T) {
	rl := newRateLimiter(config.RateLimitConfig{Enabled: true, MessagesPerSecond: 0.001, Burst: 3})
	require.NotNil(t, rl)

	assert.True(t, rl.allow())
	assert.True(t, rl.allow())
	assert.True(t, rl.allow())
	assert.False(t, rl.allow())
}

func TestRateLimiterNonPositiveSettings(t *testing.T) {
	rl := newRateLimiter(config.RateLimitConfig{Enabled: true})
	require.NotNil(t, rl)

	assert.True(t, rl.allow())
	assert.Equal(t, 1, rl.limiter.Burst())
}
