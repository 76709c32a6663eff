package redis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casbot/internal/platform/config"
)

func TestOptions(t *testing.T) {
	t.Run("environment settings override the url", func(t *testing.T) {
		opts, err := Options(config.RedisConfig{
			URL:          "redis://:secret@cache.internal:6380/2?pool_size=3",
			PoolSize:     10,
			MinIdleConns: 1,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		})
		require.NoError(t, err)
		assert.Equal(t, "cache.internal:6380", opts.Addr)
		assert.Equal(t, 2, opts.DB)
		assert.Equal(t, "secret", opts.Password)
		assert.Equal(t, 10, opts.PoolSize)
		assert.Equal(t, 3*time.Second, opts.ReadTimeout)
		assert.Equal(t, "casbot", opts.ClientName)
	})

	t.Run("zero settings keep the url values", func(t *testing.T) {
		opts, err := Options(config.RedisConfig{URL: "redis://localhost:6379/0?pool_size=3"})
		require.NoError(t, err)
		assert.Equal(t, 3, opts.PoolSize)
	})

	t.Run("missing url", func(t *testing.T) {
		_, err := Options(config.RedisConfig{})
		assert.ErrorContains(t, err, "REDIS_URL")
	})

	t.Run("malformed url", func(t *testing.T) {
		_, err := Options(config.RedisConfig{URL: "http://localhost"})
		assert.Error(t, err)
	})
}
