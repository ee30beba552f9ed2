// Package executor runs the per-call tool-dispatch pipeline of §4.7:
// lookup, validate, rate-limit, authorize, timeout-bounded invoke, then
// classify and record the outcome. Grounded on the teacher's
// resilience.Executor composition sketch (rate limiter → bulkhead →
// circuit breaker → retry → timeout, outermost first) and its
// goroutine-per-call + buffered-channel-semaphore concurrency cap, the
// same bounded-worker pattern the teacher's internal/pipeline workers use.
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cortexlabs/cortexcache/internal/authz"
	"github.com/cortexlabs/cortexcache/internal/config"
	"github.com/cortexlabs/cortexcache/internal/cortexerr"
	"github.com/cortexlabs/cortexcache/internal/ratelimit"
	"github.com/cortexlabs/cortexcache/internal/toolregistry"
)

// Handler invokes a tool's underlying implementation, per §6's ToolHandler
// collaborator interface. ctx carries the call deadline; implementations
// must return promptly once ctx is done.
type Handler func(ctx context.Context, args map[string]interface{}) (interface{}, error)

// Call is one tool invocation request.
type Call struct {
	Name string
	Args map[string]interface{}
}

// Result is the outcome of one tool invocation, per §4.7.
type Result struct {
	CallID     string
	Success    bool
	Data       interface{}
	Error      string
	Status     cortexerr.Kind
	DurationMs int64
}

// Metrics tracks aggregate counters across calls, read concurrently.
type Metrics struct {
	mu        sync.Mutex
	successes int64
	failures  int64
}

func (m *Metrics) recordSuccess() {
	m.mu.Lock()
	m.successes++
	m.mu.Unlock()
}

func (m *Metrics) recordFailure() {
	m.mu.Lock()
	m.failures++
	m.mu.Unlock()
}

// Snapshot returns the current success/failure counts.
func (m *Metrics) Snapshot() (successes, failures int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.successes, m.failures
}

// Executor dispatches tool calls through the §4.7 pipeline, bounding
// in-flight concurrency to cfg.MaxConcurrency via a buffered-channel
// semaphore.
type Executor struct {
	cfg        config.ExecutorConfig
	registry   *toolregistry.Registry
	limiter    *ratelimit.Limiter
	authorizer *authz.Authorizer
	handlers   map[string]Handler
	handlersMu sync.RWMutex
	sem        chan struct{}
	log        *zap.Logger
	metrics    *Metrics
}

// New constructs an Executor bounded by cfg.MaxConcurrency.
func New(cfg config.ExecutorConfig, registry *toolregistry.Registry, limiter *ratelimit.Limiter, authorizer *authz.Authorizer, log *zap.Logger) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{
		cfg:        cfg,
		registry:   registry,
		limiter:    limiter,
		authorizer: authorizer,
		handlers:   make(map[string]Handler),
		sem:        make(chan struct{}, cfg.MaxConcurrency),
		log:        log.Named("executor"),
		metrics:    &Metrics{},
	}
}

// RegisterHandler binds a tool name to its Handler implementation.
func (e *Executor) RegisterHandler(name string, h Handler) {
	e.handlersMu.Lock()
	defer e.handlersMu.Unlock()
	e.handlers[name] = h
}

// Metrics returns the executor's aggregate counters.
func (e *Executor) Metrics() *Metrics { return e.metrics }

// Execute runs the §4.7 pipeline for call, scoped to ctx (which may carry
// a bearer token via authz.WithToken and a userID via WithUserID).
func (e *Executor) Execute(ctx context.Context, call Call) Result {
	callID := uuid.NewString()

	select {
	case e.sem <- struct{}{}:
		defer func() { <-e.sem }()
	default:
		e.metrics.recordFailure()
		return Result{CallID: callID, Success: false, Error: "executor at capacity", Status: cortexerr.KindBusy}
	}

	return e.runPipeline(ctx, callID, call)
}

func (e *Executor) runPipeline(ctx context.Context, callID string, call Call) (result Result) {
	result.CallID = callID

	// 1. Lookup
	schema, ok := e.registry.Get(call.Name)
	if !ok {
		return e.fail(callID, cortexerr.KindToolNotFound, "tool not found")
	}

	e.handlersMu.RLock()
	handler, ok := e.handlers[call.Name]
	e.handlersMu.RUnlock()
	if !ok {
		return e.fail(callID, cortexerr.KindToolNotFound, "tool has no handler")
	}

	// 2. Validate
	if err := e.registry.Validate(call.Name, call.Args); err != nil {
		return e.fail(callID, cortexerr.KindValidation, err.Error())
	}

	// 3. Rate limit
	userID, _ := UserIDFromContext(ctx)
	if e.limiter != nil {
		if err := e.limiter.TryAcquire(userID, 1); err != nil {
			return e.fail(callID, cortexerr.KindRateLimited, err.Error())
		}
	}

	// 4. Authorization
	if e.authorizer != nil {
		if _, err := e.authorizer.Authorize(ctx, schema.RequiresAuth, schema.RequiredScopes); err != nil {
			return e.fail(callID, cortexerr.KindOf(err), err.Error())
		}
	}

	// 5 & 6. Timeout-bounded invoke, with panic isolation per call.
	timeout := schema.Timeout
	if timeout <= 0 {
		timeout = time.Duration(e.cfg.DefaultTimeoutMs) * time.Millisecond
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	data, err := e.invokeIsolated(callCtx, handler, call.Args)
	duration := time.Since(start)

	if err != nil {
		kind := cortexerr.KindExecution
		if callCtx.Err() == context.DeadlineExceeded {
			kind = cortexerr.KindTimeout
		}
		e.metrics.recordFailure()
		return Result{CallID: callID, Success: false, Error: err.Error(), Status: kind, DurationMs: duration.Milliseconds()}
	}

	e.metrics.recordSuccess()
	return Result{CallID: callID, Success: true, Data: data, DurationMs: duration.Milliseconds()}
}

// invokeIsolated runs handler in its own goroutine and converts a panic
// into an error, so one misbehaving tool never takes down the executor or
// any concurrently executing call (§4.7).
func (e *Executor) invokeIsolated(ctx context.Context, handler Handler, args map[string]interface{}) (result interface{}, err error) {
	type outcome struct {
		data interface{}
		err  error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("tool handler panicked: %v", r)}
			}
		}()
		data, herr := handler(ctx, args)
		done <- outcome{data: data, err: herr}
	}()

	select {
	case o := <-done:
		return o.data, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *Executor) fail(callID string, kind cortexerr.Kind, msg string) Result {
	e.metrics.recordFailure()
	return Result{CallID: callID, Success: false, Error: msg, Status: kind}
}

// ExecuteBatch runs every call concurrently. The calls may complete in any
// order, but results[i] is always the result of calls[i], and each result
// carries its own CallID.
func (e *Executor) ExecuteBatch(ctx context.Context, calls []Call) []Result {
	results := make([]Result, len(calls))
	var wg sync.WaitGroup
	wg.Add(len(calls))
	for i, call := range calls {
		go func(i int, call Call) {
			defer wg.Done()
			results[i] = e.Execute(ctx, call)
		}(i, call)
	}
	wg.Wait()
	return results
}

type userIDCtxKey struct{}

// WithUserID attaches a user identifier to ctx for per-user rate limiting.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDCtxKey{}, userID)
}

// UserIDFromContext extracts the user identifier attached by WithUserID.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDCtxKey{}).(string)
	return id, ok && id != ""
}
