package cloud

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lalosystems/lalocore/internal/inference"
	"github.com/lalosystems/lalocore/internal/lalerrors"
	lalocore "github.com/lalosystems/lalocore/pkg/lalocore"
)

type fakeRegistry struct {
	descriptors map[string]lalocore.ModelDescriptor
}

func (f *fakeRegistry) Lookup(id string) (lalocore.ModelDescriptor, bool) {
	d, ok := f.descriptors[id]
	return d, ok
}

type fakeBackend struct {
	text string
	err  error
}

func (f *fakeBackend) Generate(ctx context.Context, creds Credentials, req inference.GenerateRequest) (string, error) {
	return f.text, f.err
}

func (f *fakeBackend) GenerateStream(ctx context.Context, creds Credentials, req inference.GenerateRequest) (<-chan *inference.TokenChunk, error) {
	out := make(chan *inference.TokenChunk, 1)
	if f.err != nil {
		out <- &inference.TokenChunk{Error: f.err}
		close(out)
		return out, nil
	}
	out <- &inference.TokenChunk{Text: f.text, Done: true}
	close(out)
	return out, nil
}

func TestAdapterGenerateDispatchesByBackend(t *testing.T) {
	registry := &fakeRegistry{descriptors: map[string]lalocore.ModelDescriptor{
		"gpt": {ID: "gpt", Backend: lalocore.BackendCloudOpenAI},
	}}
	adapter := New(registry, map[lalocore.Backend]Backend{
		lalocore.BackendCloudOpenAI: &fakeBackend{text: "hello"},
	})

	text, err := adapter.Generate(context.Background(), Credentials{}, inference.GenerateRequest{ModelID: "gpt"})
	require.NoError(t, err)
	require.Equal(t, "hello", text)
}

func TestAdapterUnknownModelIsModelUnavailable(t *testing.T) {
	registry := &fakeRegistry{descriptors: map[string]lalocore.ModelDescriptor{}}
	adapter := New(registry, nil)

	_, err := adapter.Generate(context.Background(), Credentials{}, inference.GenerateRequest{ModelID: "missing"})
	typed, ok := lalerrors.As(err)
	require.True(t, ok)
	require.Equal(t, lalerrors.KindModelUnavailable, typed.Kind)
}

func TestAdapterMissingBackendIsProviderError(t *testing.T) {
	registry := &fakeRegistry{descriptors: map[string]lalocore.ModelDescriptor{
		"claude": {ID: "claude", Backend: lalocore.BackendCloudAnthropic},
	}}
	adapter := New(registry, map[lalocore.Backend]Backend{})

	_, err := adapter.Generate(context.Background(), Credentials{}, inference.GenerateRequest{ModelID: "claude"})
	typed, ok := lalerrors.As(err)
	require.True(t, ok)
	require.Equal(t, lalerrors.KindProviderError, typed.Kind)
}

func TestAdapterNormalizesBackendErrors(t *testing.T) {
	registry := &fakeRegistry{descriptors: map[string]lalocore.ModelDescriptor{
		"gpt": {ID: "gpt", Backend: lalocore.BackendCloudOpenAI},
	}}
	adapter := New(registry, map[lalocore.Backend]Backend{
		lalocore.BackendCloudOpenAI: &fakeBackend{err: errors.New("rate limit exceeded: 429")},
	})

	_, err := adapter.Generate(context.Background(), Credentials{}, inference.GenerateRequest{ModelID: "gpt"})
	typed, ok := lalerrors.As(err)
	require.True(t, ok)
	require.Equal(t, lalerrors.KindRateLimited, typed.Kind)
}

func TestAdapterGenerateStream(t *testing.T) {
	registry := &fakeRegistry{descriptors: map[string]lalocore.ModelDescriptor{
		"gpt": {ID: "gpt", Backend: lalocore.BackendCloudOpenAI},
	}}
	adapter := New(registry, map[lalocore.Backend]Backend{
		lalocore.BackendCloudOpenAI: &fakeBackend{text: "partial"},
	})

	stream, err := adapter.GenerateStream(context.Background(), Credentials{}, inference.GenerateRequest{ModelID: "gpt"})
	require.NoError(t, err)
	var got string
	for chunk := range stream {
		got += chunk.Text
	}
	require.Equal(t, "partial", got)
}
