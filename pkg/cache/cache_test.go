package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTLCacheSetGet(t *testing.T) {
	c := NewTTLCache()
	defer c.Stop()

	c.Set("k", 42, time.Minute)
	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, 42, v)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestTTLCacheExpiry(t *testing.T) {
	c := NewTTLCache()
	defer c.Stop()

	c.Set("k", "v", 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestTTLCacheZeroTTLNeverExpires(t *testing.T) {
	c := NewTTLCache()
	defer c.Stop()

	c.Set("k", "v", 0)
	time.Sleep(10 * time.Millisecond)

	_, ok := c.Get("k")
	assert.True(t, ok)
}

func TestTTLCacheDelete(t *testing.T) {
	c := NewTTLCache()
	defer c.Stop()

	c.Set("k", "v", time.Minute)
	c.Delete("k")

	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestRateLimiterWindow(t *testing.T) {
	rl := NewRateLimiter(2, time.Hour)

	assert.True(t, rl.Allow("op"))
	assert.True(t, rl.Allow("op"))
	assert.False(t, rl.Allow("op"))

	// Separate keys have separate windows.
	assert.True(t, rl.Allow("other"))
}

func TestRateLimiterResets(t *testing.T) {
	rl := NewRateLimiter(1, 10*time.Millisecond)

	assert.True(t, rl.Allow("op"))
	assert.False(t, rl.Allow("op"))

	time.Sleep(15 * time.Millisecond)
	assert.True(t, rl.Allow("op"))
}
