// Package cloud implements the Cloud Adapter: a unified generate /
// generate_stream contract over external providers, keyed by Model
// Descriptor id, normalising provider errors into the shared taxonomy.
// Credentials are received per call from the Handler and never cached,
// mirroring the teacher's per-user credential scoping for its provider
// clients. Retries are NOT performed here — the Orchestrator decides.
package cloud

import (
	"context"
	"fmt"

	"github.com/lalosystems/lalocore/internal/inference"
	"github.com/lalosystems/lalocore/internal/lalerrors"
	lalocore "github.com/lalosystems/lalocore/pkg/lalocore"
)

// Credentials carries a per-call, ephemeral API key/region. The adapter
// holds these only for the duration of one call and never logs them.
type Credentials struct {
	APIKey string
	Region string // used by the Bedrock backend
}

// Backend is implemented once per cloud provider family (OpenAI,
// Anthropic, Bedrock/other). Each wraps a specific SDK client but exposes
// the same generate/generate_stream shape the Pool exposes for local
// models, so the Orchestrator can treat both uniformly.
type Backend interface {
	Generate(ctx context.Context, creds Credentials, req inference.GenerateRequest) (string, error)
	GenerateStream(ctx context.Context, creds Credentials, req inference.GenerateRequest) (<-chan *inference.TokenChunk, error)
}

// Adapter dispatches to the Backend registered for a Model Descriptor's
// Backend field.
type Adapter struct {
	registry Registry
	backends map[lalocore.Backend]Backend
}

// Registry is the subset of the Model Registry the adapter depends on.
type Registry interface {
	Lookup(id string) (lalocore.ModelDescriptor, bool)
}

// New creates an Adapter with the given per-backend implementations. A nil
// entry for a Backend key means that family is not configured; calling it
// yields provider_error.
func New(registry Registry, backends map[lalocore.Backend]Backend) *Adapter {
	return &Adapter{registry: registry, backends: backends}
}

func (a *Adapter) resolve(modelID string) (lalocore.ModelDescriptor, Backend, error) {
	descriptor, ok := a.registry.Lookup(modelID)
	if !ok || descriptor.Unavailable {
		return descriptor, nil, lalerrors.New(lalerrors.KindModelUnavailable, "model not registered or unavailable").WithModel(modelID)
	}
	backend, ok := a.backends[descriptor.Backend]
	if !ok || backend == nil {
		return descriptor, nil, lalerrors.New(lalerrors.KindProviderError, fmt.Sprintf("no cloud backend configured for %s", descriptor.Backend)).WithModel(modelID)
	}
	return descriptor, backend, nil
}

// Generate runs one blocking generation against the backend owning
// req.ModelID.
func (a *Adapter) Generate(ctx context.Context, creds Credentials, req inference.GenerateRequest) (string, error) {
	_, backend, err := a.resolve(req.ModelID)
	if err != nil {
		return "", err
	}
	text, err := backend.Generate(ctx, creds, req)
	if err != nil {
		return "", normalizeErr(err, req.ModelID)
	}
	return text, nil
}

// GenerateStream streams tokens from the backend owning req.ModelID.
func (a *Adapter) GenerateStream(ctx context.Context, creds Credentials, req inference.GenerateRequest) (<-chan *inference.TokenChunk, error) {
	_, backend, err := a.resolve(req.ModelID)
	if err != nil {
		return nil, err
	}
	stream, err := backend.GenerateStream(ctx, creds, req)
	if err != nil {
		return nil, normalizeErr(err, req.ModelID)
	}
	return stream, nil
}

// normalizeErr coerces an arbitrary backend error into the shared
// taxonomy, the way the teacher's CoerceToFailoverError keeps every
// provider error shaped the same regardless of origin.
func normalizeErr(err error, modelID string) error {
	if err == nil {
		return nil
	}
	if _, ok := lalerrors.As(err); ok {
		return err
	}
	return lalerrors.Wrap(lalerrors.KindOf(err), err, "cloud provider call failed").WithModel(modelID)
}
