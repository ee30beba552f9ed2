package executor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortexlabs/cortexcache/internal/authz"
	"github.com/cortexlabs/cortexcache/internal/config"
	"github.com/cortexlabs/cortexcache/internal/cortexerr"
	"github.com/cortexlabs/cortexcache/internal/ratelimit"
	"github.com/cortexlabs/cortexcache/internal/toolregistry"
)

func echoSchema() *toolregistry.ToolSchema {
	return &toolregistry.ToolSchema{
		Name:       "echo",
		Parameters: map[string]*toolregistry.ParamSchema{"msg": {Type: toolregistry.TypeString}},
	}
}

func newTestExecutor(t *testing.T, maxConcurrency int) *Executor {
	t.Helper()
	registry := toolregistry.New()
	require.NoError(t, registry.Register(echoSchema()))
	limiter := ratelimit.New(config.RateLimitConfig{Enabled: true, MaxCallsPerMinute: 1000})
	authorizer := authz.New(nil)
	cfg := config.ExecutorConfig{MaxConcurrency: maxConcurrency, DefaultTimeoutMs: 1000}
	return New(cfg, registry, limiter, authorizer, nil)
}

func TestExecutor_Execute(t *testing.T) {
	t.Run("successful call returns data", func(t *testing.T) {
		// Arrange
		e := newTestExecutor(t, 10)
		e.RegisterHandler("echo", func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			return args["msg"], nil
		})

		// Act
		result := e.Execute(context.Background(), Call{Name: "echo", Args: map[string]interface{}{"msg": "hi"}})

		// Assert
		assert.True(t, result.Success)
		assert.Equal(t, "hi", result.Data)
		assert.NotEmpty(t, result.CallID)
	})

	t.Run("unknown tool fails with ToolNotFound", func(t *testing.T) {
		e := newTestExecutor(t, 10)

		result := e.Execute(context.Background(), Call{Name: "missing"})

		assert.False(t, result.Success)
		assert.Equal(t, cortexerr.KindToolNotFound, result.Status)
	})

	t.Run("invalid args fail with ValidationError", func(t *testing.T) {
		e := newTestExecutor(t, 10)
		e.RegisterHandler("echo", func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			return nil, nil
		})

		result := e.Execute(context.Background(), Call{Name: "echo", Args: map[string]interface{}{"msg": 123}})

		assert.False(t, result.Success)
		assert.Equal(t, cortexerr.KindValidation, result.Status)
	})

	t.Run("handler error is classified as ExecutionError", func(t *testing.T) {
		e := newTestExecutor(t, 10)
		e.RegisterHandler("echo", func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			return nil, errors.New("boom")
		})

		result := e.Execute(context.Background(), Call{Name: "echo", Args: map[string]interface{}{"msg": "hi"}})

		assert.False(t, result.Success)
		assert.Equal(t, cortexerr.KindExecution, result.Status)
	})

	t.Run("handler timeout is classified as Timeout", func(t *testing.T) {
		registry := toolregistry.New()
		require.NoError(t, registry.Register(echoSchema()))
		limiter := ratelimit.New(config.RateLimitConfig{Enabled: false})
		cfg := config.ExecutorConfig{MaxConcurrency: 10, DefaultTimeoutMs: 10}
		e := New(cfg, registry, limiter, authz.New(nil), nil)
		e.RegisterHandler("echo", func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})

		result := e.Execute(context.Background(), Call{Name: "echo", Args: map[string]interface{}{"msg": "hi"}})

		assert.False(t, result.Success)
		assert.Equal(t, cortexerr.KindTimeout, result.Status)
	})

	t.Run("a per-tool timeout overrides the executor's default (spec scenario 6)", func(t *testing.T) {
		registry := toolregistry.New()
		require.NoError(t, registry.Register(&toolregistry.ToolSchema{
			Name:       "slow",
			Parameters: map[string]*toolregistry.ParamSchema{},
			Timeout:    100 * time.Millisecond,
		}))
		limiter := ratelimit.New(config.RateLimitConfig{Enabled: false})
		cfg := config.ExecutorConfig{MaxConcurrency: 10, DefaultTimeoutMs: 30000}
		e := New(cfg, registry, limiter, authz.New(nil), nil)
		e.RegisterHandler("slow", func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			select {
			case <-time.After(500 * time.Millisecond):
				return "too slow", nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		})

		result := e.Execute(context.Background(), Call{Name: "slow", Args: map[string]interface{}{}})

		assert.False(t, result.Success)
		assert.Equal(t, cortexerr.KindTimeout, result.Status)
		assert.InDelta(t, 100, result.DurationMs, 60)
	})

	t.Run("a panicking handler fails in isolation without affecting the executor", func(t *testing.T) {
		e := newTestExecutor(t, 10)
		e.RegisterHandler("echo", func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			panic("boom")
		})

		result := e.Execute(context.Background(), Call{Name: "echo", Args: map[string]interface{}{"msg": "hi"}})

		assert.False(t, result.Success)
		assert.Equal(t, cortexerr.KindExecution, result.Status)

		// Assert the executor keeps serving subsequent calls after the panic.
		e.RegisterHandler("echo", func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			return "ok", nil
		})
		second := e.Execute(context.Background(), Call{Name: "echo", Args: map[string]interface{}{"msg": "hi"}})
		assert.True(t, second.Success)
	})

	t.Run("rejects new work once maxConcurrency in-flight calls are outstanding", func(t *testing.T) {
		e := newTestExecutor(t, 1)
		release := make(chan struct{})
		e.RegisterHandler("echo", func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			<-release
			return "done", nil
		})

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.Execute(context.Background(), Call{Name: "echo", Args: map[string]interface{}{"msg": "a"}})
		}()
		time.Sleep(20 * time.Millisecond) // let the first call take the only slot

		result := e.Execute(context.Background(), Call{Name: "echo", Args: map[string]interface{}{"msg": "b"}})

		assert.False(t, result.Success)
		assert.Equal(t, cortexerr.KindBusy, result.Status)

		close(release)
		wg.Wait()
	})
}

func TestExecutor_ExecuteBatch(t *testing.T) {
	t.Run("every call gets a correlated result", func(t *testing.T) {
		e := newTestExecutor(t, 10)
		e.RegisterHandler("echo", func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			return args["msg"], nil
		})

		calls := []Call{
			{Name: "echo", Args: map[string]interface{}{"msg": "a"}},
			{Name: "echo", Args: map[string]interface{}{"msg": "b"}},
			{Name: "echo", Args: map[string]interface{}{"msg": "c"}},
		}

		results := e.ExecuteBatch(context.Background(), calls)

		require.Len(t, results, 3)
		ids := map[string]bool{}
		for _, r := range results {
			assert.True(t, r.Success)
			ids[r.CallID] = true
		}
		assert.Len(t, ids, 3, "call IDs must be unique per call")
	})
}
