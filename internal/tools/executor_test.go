package tools

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lalosystems/lalocore/internal/lalerrors"
)

func TestExecuteDeniedByPolicy(t *testing.T) {
	e := NewExecutor(NewResolver(), time.Second)
	RegisterBuiltins(e)

	_, err := e.Execute(context.Background(), "web_search", map[string]any{"query": "go"}, Policy{Profile: "minimal"})
	typed, ok := lalerrors.As(err)
	require.True(t, ok)
	require.Equal(t, lalerrors.KindToolDenied, typed.Kind)
}

func TestExecuteAllowedByGroup(t *testing.T) {
	e := NewExecutor(NewResolver(), time.Second)
	RegisterBuiltins(e)

	result, err := e.Execute(context.Background(), "web_search", map[string]any{"query": "go"}, Policy{Allow: []string{"group:web"}})
	require.NoError(t, err)
	require.Contains(t, result.Output, "go")
}

func TestExecuteDenyWinsOverAllow(t *testing.T) {
	e := NewExecutor(NewResolver(), time.Second)
	RegisterBuiltins(e)

	_, err := e.Execute(context.Background(), "web_search", map[string]any{"query": "go"}, Policy{Allow: []string{"group:web"}, Deny: []string{"web_search"}})
	typed, ok := lalerrors.As(err)
	require.True(t, ok)
	require.Equal(t, lalerrors.KindToolDenied, typed.Kind)
}

func TestExecuteFullProfileAllowsUnlisted(t *testing.T) {
	e := NewExecutor(NewResolver(), time.Second)
	RegisterBuiltins(e)

	_, err := e.Execute(context.Background(), "code_exec", map[string]any{"code": "print(1)"}, Policy{Profile: "full"})
	require.NoError(t, err)
}

func TestExecuteUnknownToolIsInternal(t *testing.T) {
	e := NewExecutor(NewResolver(), time.Second)
	_, err := e.Execute(context.Background(), "no_such_tool", nil, Policy{Profile: "full"})
	typed, ok := lalerrors.As(err)
	require.True(t, ok)
	require.Equal(t, lalerrors.KindInternal, typed.Kind)
}

func TestExecuteTimesOut(t *testing.T) {
	e := NewExecutor(NewResolver(), 0)
	e.Register(Registration{
		ID:      "slow",
		Timeout: time.Millisecond,
		Fn: func(ctx context.Context, args map[string]any) (Result, error) {
			<-ctx.Done()
			time.Sleep(50 * time.Millisecond)
			return Result{}, ctx.Err()
		},
	})

	_, err := e.Execute(context.Background(), "slow", nil, Policy{Profile: "full"})
	typed, ok := lalerrors.As(err)
	require.True(t, ok)
	require.Equal(t, lalerrors.KindToolTimeout, typed.Kind)
}

func TestExecuteWrapsArbitraryToolError(t *testing.T) {
	e := NewExecutor(NewResolver(), time.Second)
	RegisterBuiltins(e)

	_, err := e.Execute(context.Background(), "file_read", map[string]any{}, Policy{Profile: "full"})
	typed, ok := lalerrors.As(err)
	require.True(t, ok)
	require.Equal(t, lalerrors.KindInternal, typed.Kind)
}
