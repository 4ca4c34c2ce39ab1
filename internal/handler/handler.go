// Package handler implements the Request Handler façade: the single
// entry point that validates a Request, resolves the models visible to
// the caller, calls the Router, dispatches to the Orchestrator, relays
// events to the caller, and records a Usage Record on completion.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lalosystems/lalocore/internal/cloud"
	"github.com/lalosystems/lalocore/internal/inference"
	"github.com/lalosystems/lalocore/internal/lalerrors"
	"github.com/lalosystems/lalocore/internal/orchestrator"
	"github.com/lalosystems/lalocore/internal/registry"
	"github.com/lalosystems/lalocore/internal/tools"
	lalocore "github.com/lalosystems/lalocore/pkg/lalocore"
)

// Registry is the subset of the Model Registry the Handler depends on
// directly (beyond what it hands to the Router).
type Registry interface {
	Lookup(id string) (lalocore.ModelDescriptor, bool)
	Available(id string) bool
	ListAvailable(specialty *lalocore.Specialty) []lalocore.ModelDescriptor
}

// Router produces a Routing Decision for a Request.
type Router interface {
	Route(ctx context.Context, req lalocore.Request) (lalocore.RoutingDecision, error)
}

// Orchestrator executes a Routing Decision and returns a request's event
// stream.
type Orchestrator interface {
	Run(ctx context.Context, req lalocore.Request, decision lalocore.RoutingDecision) <-chan lalocore.Event
}

// UsageSink is the narrow repository interface the core depends on
// without owning: it records a Usage Record and, on a retry/escalation
// path, attaches a Fallback Trace.
type UsageSink interface {
	RecordUsage(ctx context.Context, record lalocore.UsageRecord)
}

// FallbackSink is implemented by a UsageSink that also wants the Fallback
// Trace attached to a Done event; the telemetry Sink satisfies this but the
// interface stays optional so minimal UsageSink stand-ins in tests don't
// need to implement it.
type FallbackSink interface {
	RecordFallback(ctx context.Context, trace lalocore.FallbackTrace)
}

// Config bounds per-request timeouts.
type Config struct {
	RequestTimeout time.Duration
}

// Handler is the façade other transports (HTTP/SSE) sit behind.
type Handler struct {
	registry     Registry
	router       Router
	orchestrator Orchestrator
	usage        UsageSink
	cfg          Config
}

// New creates a Handler.
func New(reg Registry, router Router, orch Orchestrator, usage UsageSink, cfg Config) *Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 300 * time.Second
	}
	return &Handler{registry: reg, router: router, orchestrator: orch, usage: usage, cfg: cfg}
}

// validate enforces the Request invariants: non-empty prompt, and (when
// the caller pinned a model) that the model is known.
func (h *Handler) validate(req lalocore.Request) error {
	if strings.TrimSpace(req.Prompt) == "" {
		return lalerrors.New(lalerrors.KindInvalidRequest, "prompt must not be empty")
	}
	if req.Model != "" {
		if _, ok := h.registry.Lookup(req.Model); !ok {
			return lalerrors.New(lalerrors.KindInvalidRequest, fmt.Sprintf("unknown model %q", req.Model))
		}
	}
	return nil
}

// Stream runs req end-to-end and returns its event stream, relaying
// Orchestrator events unchanged except for injecting the Usage Record
// write on Done/Error.
func (h *Handler) Stream(ctx context.Context, req lalocore.Request) (<-chan lalocore.Event, error) {
	if err := h.validate(req); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, h.cfg.RequestTimeout)
	ctx = context.WithValue(ctx, userIDContextKey{}, req.UserID)

	decision, err := h.router.Route(ctx, req)
	if err != nil {
		cancel()
		return nil, err
	}

	upstream := h.orchestrator.Run(ctx, req, decision)
	out := make(chan lalocore.Event, 16)
	go func() {
		defer cancel()
		defer close(out)
		for event := range upstream {
			out <- event
			if event.Type == lalocore.EventDone || event.Type == lalocore.EventError {
				h.recordUsage(ctx, req, decision, event)
			}
		}
	}()
	return out, nil
}

func (h *Handler) recordUsage(ctx context.Context, req lalocore.Request, decision lalocore.RoutingDecision, terminal lalocore.Event) {
	if h.usage == nil {
		return
	}
	record := lalocore.UsageRecord{
		RequestID: req.ID,
		UserID:    req.UserID,
		Path:      decision.Path,
		Timestamp: time.Now(),
	}
	switch terminal.Type {
	case lalocore.EventDone:
		var content lalocore.DoneEventContent
		if decodeContent(terminal.Content, &content) {
			record = content.Usage
			record.Timestamp = time.Now()
			if content.Fallback != nil {
				if sink, ok := h.usage.(FallbackSink); ok {
					sink.RecordFallback(ctx, *content.Fallback)
				}
			}
		}
		record.Succeeded = true
	case lalocore.EventError:
		record.Succeeded = false
	}
	h.usage.RecordUsage(ctx, record)
}

// Complete runs req to completion and returns a single non-streaming
// Response, buffering the event stream internally per the façade's
// non-streaming mode.
func (h *Handler) Complete(ctx context.Context, req lalocore.Request) (lalocore.Response, error) {
	events, err := h.Stream(ctx, req)
	if err != nil {
		return lalocore.Response{}, err
	}

	var (
		finalText  string
		usage      lalocore.UsageRecord
		decision   lalocore.RoutingDecision
		confidence lalocore.ConfidenceReport
		modelsUsed = map[string]struct{}{}
	)

	for event := range events {
		switch event.Type {
		case lalocore.EventRouting:
			var content lalocore.RoutingEventContent
			if decodeContent(event.Content, &content) {
				decision = content.Decision
			}
		case lalocore.EventToken:
			var content lalocore.TokenEventContent
			if decodeContent(event.Content, &content) {
				finalText += content.Text
			}
		case lalocore.EventConfidence:
			var content lalocore.ConfidenceEventContent
			if decodeContent(event.Content, &content) {
				confidence = content.Scores
			}
		case lalocore.EventDone:
			var content lalocore.DoneEventContent
			if decodeContent(event.Content, &content) {
				finalText = content.FinalText
				usage = content.Usage
			}
		case lalocore.EventError:
			var content lalocore.ErrorEventContent
			decodeContent(event.Content, &content)
			return lalocore.Response{}, lalerrors.New(lalerrors.Kind(content.Kind), content.Message)
		}
	}

	if usage.ModelID != "" {
		modelsUsed[usage.ModelID] = struct{}{}
	}
	models := make([]string, 0, len(modelsUsed))
	for m := range modelsUsed {
		models = append(models, m)
	}

	return lalocore.Response{
		ID:       req.ID,
		Response: finalText,
		Model:    usage.ModelID,
		Usage:    usage,
		Summary: lalocore.ResponseSummary{
			Routing:    decision,
			Confidence: confidence,
			ModelsUsed: models,
		},
	}, nil
}

// userIDContextKey threads the requesting user's id from Stream down to
// the Generator so per-call cloud credentials can be scoped per user
// without widening the orchestrator.Generator interface.
type userIDContextKey struct{}

// Generator adapts the Inference Pool and the Cloud Adapter behind a
// single Generator the Orchestrator can call without knowing which
// backend owns a model id.
type Generator struct {
	registry *registry.Registry
	pool     *inference.Pool
	cloudAdapter *cloud.Adapter
	credentials func(userID string) cloud.Credentials
}

// NewGenerator creates a Generator. credentials may be nil; cloud calls
// then use zero-value (unauthenticated) Credentials.
func NewGenerator(reg *registry.Registry, pool *inference.Pool, cloudAdapter *cloud.Adapter, credentials func(userID string) cloud.Credentials) *Generator {
	return &Generator{registry: reg, pool: pool, cloudAdapter: cloudAdapter, credentials: credentials}
}

// GenerateStream implements orchestrator.Generator.
func (g *Generator) GenerateStream(ctx context.Context, modelID, prompt string, maxOutputTokens int, temperature float64) (<-chan orchestrator.Token, error) {
	descriptor, ok := g.registry.Lookup(modelID)
	if !ok || descriptor.Unavailable {
		return nil, lalerrors.New(lalerrors.KindModelUnavailable, "model not registered or unavailable").WithModel(modelID)
	}

	req := inference.GenerateRequest{ModelID: modelID, Prompt: prompt, MaxOutputTokens: maxOutputTokens, Temperature: temperature}

	var (
		upstream <-chan *inference.TokenChunk
		err      error
	)
	if descriptor.Backend == lalocore.BackendLocalGGUF {
		upstream, err = g.pool.GenerateStream(ctx, req)
	} else {
		creds := cloud.Credentials{}
		if g.credentials != nil {
			userID, _ := ctx.Value(userIDContextKey{}).(string)
			creds = g.credentials(userID)
		}
		upstream, err = g.cloudAdapter.GenerateStream(ctx, creds, req)
	}
	if err != nil {
		return nil, err
	}

	out := make(chan orchestrator.Token, 8)
	go func() {
		defer close(out)
		for chunk := range upstream {
			out <- orchestrator.Token{Text: chunk.Text, Done: chunk.Done, Error: chunk.Error}
		}
	}()
	return out, nil
}

// ToolExecutor adapts tools.Executor behind orchestrator.ToolExecutor.
type ToolExecutor struct {
	executor *tools.Executor
}

// NewToolExecutor wraps a concrete tools.Executor.
func NewToolExecutor(executor *tools.Executor) *ToolExecutor {
	return &ToolExecutor{executor: executor}
}

// Execute implements orchestrator.ToolExecutor.
func (t *ToolExecutor) Execute(ctx context.Context, toolID string, args map[string]any, policy lalocore.ToolPolicy) (orchestrator.ToolResult, error) {
	result, err := t.executor.Execute(ctx, toolID, args, policy)
	if err != nil {
		return orchestrator.ToolResult{}, err
	}
	return orchestrator.ToolResult{Output: result.Output, Data: result.Data}, nil
}

func decodeContent(raw []byte, target any) bool {
	return json.Unmarshal(raw, target) == nil
}
