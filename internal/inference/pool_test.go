package inference

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lalosystems/lalocore/internal/lalerrors"
	lalocore "github.com/lalosystems/lalocore/pkg/lalocore"
)

type fakeRegistry struct {
	descriptors map[string]lalocore.ModelDescriptor
	unavailable map[string]bool
}

func (f *fakeRegistry) Lookup(id string) (lalocore.ModelDescriptor, bool) {
	d, ok := f.descriptors[id]
	return d, ok
}

func (f *fakeRegistry) Available(id string) bool {
	_, ok := f.descriptors[id]
	return ok && !f.unavailable[id]
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		descriptors: map[string]lalocore.ModelDescriptor{
			"demo-model": {ID: "demo-model", Backend: lalocore.BackendLocalGGUF, ContextWindow: 1000},
		},
		unavailable: map[string]bool{},
	}
}

func TestGenerateDemoModeDeterministic(t *testing.T) {
	reg := newFakeRegistry()
	pool := New(reg, Config{DemoMode: true})

	out1, err := pool.Generate(context.Background(), GenerateRequest{ModelID: "demo-model", Prompt: "What is 2+2?"})
	require.NoError(t, err)

	out2, err := pool.Generate(context.Background(), GenerateRequest{ModelID: "demo-model", Prompt: "What is 2+2?"})
	require.NoError(t, err)

	require.Equal(t, out1, out2)
	require.Contains(t, out1, "4")
}

func TestGenerateUnavailableModel(t *testing.T) {
	reg := newFakeRegistry()
	reg.unavailable["demo-model"] = true
	pool := New(reg, Config{DemoMode: true})

	_, err := pool.Generate(context.Background(), GenerateRequest{ModelID: "demo-model", Prompt: "hi"})
	require.Error(t, err)
	typed, ok := lalerrors.As(err)
	require.True(t, ok)
	require.Equal(t, lalerrors.KindModelUnavailable, typed.Kind)
}

func TestGenerateContextOverflow(t *testing.T) {
	reg := &fakeRegistry{
		descriptors: map[string]lalocore.ModelDescriptor{
			"tiny": {ID: "tiny", Backend: lalocore.BackendLocalGGUF, ContextWindow: 2},
		},
		unavailable: map[string]bool{},
	}
	pool := New(reg, Config{DemoMode: true})

	_, err := pool.Generate(context.Background(), GenerateRequest{ModelID: "tiny", Prompt: "a long prompt with many words", MaxOutputTokens: 100})
	require.Error(t, err)
	typed, ok := lalerrors.As(err)
	require.True(t, ok)
	require.Equal(t, lalerrors.KindContextOverflow, typed.Kind)
}

func TestGenerateStreamCancellationEmitsError(t *testing.T) {
	reg := newFakeRegistry()
	pool := New(reg, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stream, err := pool.GenerateStream(ctx, GenerateRequest{ModelID: "demo-model", Prompt: "slow thing"})
	require.NoError(t, err)

	var sawError bool
	for chunk := range stream {
		if chunk.Error != nil {
			sawError = true
		}
	}
	require.True(t, sawError)
}

func TestGenerateLoadTimeout(t *testing.T) {
	reg := newFakeRegistry()
	pool := New(reg, Config{LoadTimeout: time.Nanosecond})

	// A near-zero load timeout should make the very first load race lose,
	// surfacing model_load_timeout rather than hanging.
	_, err := pool.Generate(context.Background(), GenerateRequest{ModelID: "demo-model", Prompt: "hi"})
	if err == nil {
		t.Skip("load completed before the timeout fired on this machine")
	}
	typed, ok := lalerrors.As(err)
	require.True(t, ok)
	require.Equal(t, lalerrors.KindModelLoadTimeout, typed.Kind)
}
