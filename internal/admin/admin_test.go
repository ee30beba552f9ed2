package admin

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortexlabs/cortexcache/internal/breaker"
	"github.com/cortexlabs/cortexcache/internal/cache"
	"github.com/cortexlabs/cortexcache/internal/clock"
	"github.com/cortexlabs/cortexcache/internal/config"
	"github.com/cortexlabs/cortexcache/internal/toolregistry"
)

func newTestHandler() *Handler {
	brk := breaker.New(config.BreakerConfig{FailureThreshold: 3, SuccessThreshold: 2, TimeoutSeconds: 10, RollingWindowSeconds: 60, RecoveryFactor: 0.5, RateThreshold: 0.9}, clock.NewFake(time.Now()), nil)
	store := cache.NewStore(config.CacheConfig{Version: "v1", MinTokens: 1, MaxSizeBytes: 1000, TTLSeconds: 3600}, clock.NewFake(time.Now()), nil)
	registry := toolregistry.New()
	return New(brk, store, registry, nil)
}

func TestAdmin_BreakerOverrides(t *testing.T) {
	t.Run("force-open sets the breaker to OPEN", func(t *testing.T) {
		// Arrange
		h := newTestHandler()
		srv := httptest.NewServer(h.Routes())
		defer srv.Close()

		// Act
		resp, err := http.Post(srv.URL+"/breaker/force-open", "application/json", nil)
		require.NoError(t, err)
		defer resp.Body.Close()

		// Assert
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		assert.Equal(t, breaker.Open, h.breaker.CurrentState())
	})

	t.Run("reset clears a forced override", func(t *testing.T) {
		h := newTestHandler()
		h.breaker.ForceOpen()
		srv := httptest.NewServer(h.Routes())
		defer srv.Close()

		resp, err := http.Post(srv.URL+"/breaker/reset", "application/json", nil)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		assert.Equal(t, breaker.Closed, h.breaker.CurrentState())
	})

	t.Run("status returns a 200 with breaker metrics", func(t *testing.T) {
		h := newTestHandler()
		srv := httptest.NewServer(h.Routes())
		defer srv.Close()

		resp, err := http.Get(srv.URL + "/breaker/")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestAdmin_CacheInvalidate(t *testing.T) {
	t.Run("invalidate with no prefix clears the whole cache", func(t *testing.T) {
		h := newTestHandler()
		_, err := h.cache.Store("k1", []byte("first cached content"), "v1")
		require.NoError(t, err)
		_, err = h.cache.Store("k2", []byte("second cached content"), "v1")
		require.NoError(t, err)
		srv := httptest.NewServer(h.Routes())
		defer srv.Close()

		resp, err := http.Post(srv.URL+"/cache/invalidate", "application/json", nil)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, 0, h.cache.Metrics().CurrentEntries)
	})
}

func TestAdmin_Tools(t *testing.T) {
	t.Run("lists registered tool names", func(t *testing.T) {
		h := newTestHandler()
		require.NoError(t, h.registry.Register(&toolregistry.ToolSchema{Name: "run_query"}))
		srv := httptest.NewServer(h.Routes())
		defer srv.Close()

		resp, err := http.Get(srv.URL + "/tools")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}
