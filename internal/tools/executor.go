package tools

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lalosystems/lalocore/internal/lalerrors"
)

// Result is the structured outcome of a successful tool call.
type Result struct {
	Output string
	Data   map[string]any
}

// Func implements one tool's behaviour. It must be deterministic in its
// declared side-effect domain and idempotent where the orchestrator may
// retry it.
type Func func(ctx context.Context, args map[string]any) (Result, error)

// Registration pairs a tool id with its implementation and default
// per-call timeout.
type Registration struct {
	ID      string
	Fn      Func
	Timeout time.Duration
}

// Executor is the concrete implementation of the interface the
// Orchestrator consumes: execute(tool_id, arguments, policy) -> Result |
// Error.
type Executor struct {
	resolver *Resolver

	mu    sync.RWMutex
	tools map[string]Registration

	defaultTimeout time.Duration
}

// NewExecutor creates an Executor with no tools registered; callers
// register concrete tools via Register.
func NewExecutor(resolver *Resolver, defaultTimeout time.Duration) *Executor {
	if defaultTimeout <= 0 {
		defaultTimeout = 30 * time.Second
	}
	return &Executor{
		resolver:       resolver,
		tools:          make(map[string]Registration),
		defaultTimeout: defaultTimeout,
	}
}

// Register adds or replaces a tool implementation.
func (e *Executor) Register(reg Registration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tools[normalizeTool(reg.ID)] = reg
}

// Execute runs toolID with args under policy. It enforces the sandbox
// decision before dispatch and a per-call timeout (the registration's, or
// the executor default) around the call itself.
func (e *Executor) Execute(ctx context.Context, toolID string, args map[string]any, policy Policy) (Result, error) {
	normalized := normalizeTool(toolID)

	if !e.resolver.IsAllowed(policy, normalized) {
		return Result{}, lalerrors.New(lalerrors.KindToolDenied, fmt.Sprintf("tool %q denied by policy", normalized))
	}

	e.mu.RLock()
	reg, ok := e.tools[normalized]
	e.mu.RUnlock()
	if !ok {
		return Result{}, lalerrors.New(lalerrors.KindInternal, fmt.Sprintf("tool %q not found", normalized))
	}

	timeout := reg.Timeout
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result Result
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := reg.Fn(callCtx, args)
		done <- outcome{result: result, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			if typed, ok := lalerrors.As(o.err); ok {
				return Result{}, typed
			}
			return Result{}, lalerrors.Wrap(lalerrors.KindInternal, o.err, fmt.Sprintf("tool %q failed", normalized))
		}
		return o.result, nil
	case <-callCtx.Done():
		return Result{}, lalerrors.New(lalerrors.KindToolTimeout, fmt.Sprintf("tool %q timed out", normalized))
	}
}
