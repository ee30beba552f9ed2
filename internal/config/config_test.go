package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDefaults(t *testing.T) {
	t.Run("fills every zero-valued field with its spec default", func(t *testing.T) {
		// Arrange
		c := &Config{}

		// Act
		c.ApplyDefaults()

		// Assert
		assert.Equal(t, "v1", c.Cache.Version)
		assert.Equal(t, 500, c.Cache.MinTokens)
		assert.Equal(t, int64(10*1024*1024), c.Cache.MaxSizeBytes)
		assert.Equal(t, 1.0, c.Cache.EvictionAlpha)
		assert.Equal(t, 0.5, c.Cache.EvictionBeta)
		assert.Equal(t, 5, c.Breaker.FailureThreshold)
		assert.Equal(t, 50, c.Executor.MaxConcurrency)
		assert.Equal(t, 60, c.RateLimit.MaxCallsPerMinute)
		assert.Equal(t, 10, c.Warmer.Concurrency)
	})

	t.Run("leaves explicitly-set fields untouched", func(t *testing.T) {
		c := &Config{Cache: CacheConfig{MinTokens: 10}}

		c.ApplyDefaults()

		assert.Equal(t, 10, c.Cache.MinTokens)
	})
}

func TestValidate(t *testing.T) {
	t.Run("a defaulted config is valid", func(t *testing.T) {
		require.NoError(t, Default().Validate())
	})

	t.Run("rejects a non-positive maxSizeBytes", func(t *testing.T) {
		c := Default()
		c.Cache.MaxSizeBytes = 0

		assert.Error(t, c.Validate())
	})

	t.Run("rejects an out-of-range pressureThreshold", func(t *testing.T) {
		c := Default()
		c.Cache.PressureThreshold = 1.5

		assert.Error(t, c.Validate())
	})

	t.Run("rejects a non-positive executor maxConcurrency", func(t *testing.T) {
		c := Default()
		c.Executor.MaxConcurrency = 0

		assert.Error(t, c.Validate())
	})
}

func TestLoadFromEnv(t *testing.T) {
	t.Run("overlays set environment variables", func(t *testing.T) {
		c := Default()
		t.Setenv("CORTEXCACHE_CACHE_MIN_TOKENS", "250")
		t.Setenv("CORTEXCACHE_BREAKER_FAILURE_THRESHOLD", "7")

		LoadFromEnv(c)

		assert.Equal(t, 250, c.Cache.MinTokens)
		assert.Equal(t, 7, c.Breaker.FailureThreshold)
	})

	t.Run("leaves the value untouched when unset", func(t *testing.T) {
		c := Default()

		LoadFromEnv(c)

		assert.Equal(t, 500, c.Cache.MinTokens)
	})

	t.Run("leaves the value untouched when unparsable", func(t *testing.T) {
		c := Default()
		t.Setenv("CORTEXCACHE_CACHE_MIN_TOKENS", "not-a-number")

		LoadFromEnv(c)

		assert.Equal(t, 500, c.Cache.MinTokens)
	})
}
