package orchestrator

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lalosystems/lalocore/internal/lalerrors"
	lalocore "github.com/lalosystems/lalocore/pkg/lalocore"
)

type fakeGenerator struct {
	responses map[string]string
	err       error
}

func (f *fakeGenerator) GenerateStream(ctx context.Context, modelID, prompt string, maxOutputTokens int, temperature float64) (<-chan Token, error) {
	if f.err != nil {
		return nil, f.err
	}
	text := f.responses[modelID]
	if text == "" {
		text = "default response"
	}
	out := make(chan Token, 4)
	go func() {
		defer close(out)
		for _, word := range splitWords(text) {
			out <- Token{Text: word + " "}
		}
		out <- Token{Done: true}
	}()
	return out, nil
}

func splitWords(s string) []string {
	var words []string
	var current []rune
	for _, r := range s {
		if r == ' ' {
			if len(current) > 0 {
				words = append(words, string(current))
				current = nil
			}
			continue
		}
		current = append(current, r)
	}
	if len(current) > 0 {
		words = append(words, string(current))
	}
	return words
}

type fakeToolExecutor struct {
	result ToolResult
	err    error
}

func (f *fakeToolExecutor) Execute(ctx context.Context, toolID string, args map[string]any, policy lalocore.ToolPolicy) (ToolResult, error) {
	return f.result, f.err
}

type fakeValidator struct {
	report lalocore.ConfidenceReport
}

func (f *fakeValidator) Score(ctx context.Context, output string, req lalocore.Request, sources []string) lalocore.ConfidenceReport {
	return f.report
}

func acceptReport() lalocore.ConfidenceReport {
	return lalocore.ConfidenceReport{Overall: 0.9, Recommendation: lalocore.RecommendAccept}
}

func collectEvents(t *testing.T, events <-chan lalocore.Event) []lalocore.Event {
	t.Helper()
	var all []lalocore.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case e, ok := <-events:
			if !ok {
				return all
			}
			all = append(all, e)
		case <-timeout:
			t.Fatal("timed out waiting for events")
		}
	}
}

func TestRunSimplePathEndsInDone(t *testing.T) {
	o := New(&fakeGenerator{responses: map[string]string{"m1": "hello world"}}, &fakeToolExecutor{}, &fakeValidator{report: acceptReport()}, Config{})
	decision := lalocore.RoutingDecision{Path: lalocore.PathSimple, Recommended: []string{"m1"}}
	req := lalocore.Request{ID: "req-1", Prompt: "hi"}

	events := collectEvents(t, o.Run(context.Background(), req, decision))
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	require.Equal(t, lalocore.EventDone, last.Type)

	var sawRouting, sawToken, sawConfidence bool
	for _, e := range events {
		switch e.Type {
		case lalocore.EventRouting:
			sawRouting = true
		case lalocore.EventToken:
			sawToken = true
		case lalocore.EventConfidence:
			sawConfidence = true
		}
	}
	require.True(t, sawRouting)
	require.True(t, sawToken)
	require.True(t, sawConfidence)

	var done lalocore.DoneEventContent
	require.NoError(t, json.Unmarshal(last.Content, &done))
	require.Equal(t, "m1", done.Usage.ModelID)
	require.Greater(t, done.Usage.CompletionTokens, 0)
	require.Equal(t, done.Usage.PromptTokens+done.Usage.CompletionTokens, done.Usage.TotalTokens)
}

func TestRunSimplePathRetriesOnLowConfidence(t *testing.T) {
	gen := &fakeGenerator{responses: map[string]string{"m1": "weak answer", "m2": "strong answer"}}
	validator := &retryThenAcceptValidator{}
	o := New(gen, &fakeToolExecutor{}, validator, Config{})
	decision := lalocore.RoutingDecision{Path: lalocore.PathSimple, Recommended: []string{"m1", "m2"}}
	req := lalocore.Request{ID: "req-2", Prompt: "hi"}

	events := collectEvents(t, o.Run(context.Background(), req, decision))
	last := events[len(events)-1]
	require.Equal(t, lalocore.EventDone, last.Type)

	confidenceCount := 0
	for _, e := range events {
		if e.Type == lalocore.EventConfidence {
			confidenceCount++
		}
	}
	require.Equal(t, 2, confidenceCount)
}

type retryThenAcceptValidator struct {
	calls int
}

func (v *retryThenAcceptValidator) Score(ctx context.Context, output string, req lalocore.Request, sources []string) lalocore.ConfidenceReport {
	v.calls++
	if v.calls == 1 {
		return lalocore.ConfidenceReport{Overall: 0.65, Recommendation: lalocore.RecommendRetry}
	}
	return acceptReport()
}

func TestRunPlanWithToolCallAndGenerate(t *testing.T) {
	gen := &fakeGenerator{responses: map[string]string{"m1": "final output"}}
	tools := &fakeToolExecutor{result: ToolResult{Output: "search hits"}}
	o := New(gen, tools, &fakeValidator{report: acceptReport()}, Config{})

	decision := lalocore.RoutingDecision{
		Path: lalocore.PathComplex,
		ActionPlan: []lalocore.PlanStep{
			{ID: 0, Kind: lalocore.StepToolCall, Tool: "web_search"},
			{ID: 1, Kind: lalocore.StepModelGenerate, Model: "m1", DependsOn: []int{0}},
		},
	}
	req := lalocore.Request{ID: "req-3", Prompt: "search and answer"}

	events := collectEvents(t, o.Run(context.Background(), req, decision))
	last := events[len(events)-1]
	require.Equal(t, lalocore.EventDone, last.Type)

	toolCallIdx, toolResultIdx, stepCompleteIdx := -1, -1, -1
	for i, e := range events {
		switch e.Type {
		case lalocore.EventToolCall:
			toolCallIdx = i
		case lalocore.EventToolResult:
			toolResultIdx = i
		case lalocore.EventStepComplete:
			if stepCompleteIdx == -1 {
				stepCompleteIdx = i
			}
		}
	}
	require.Greater(t, toolResultIdx, toolCallIdx)
	require.Greater(t, stepCompleteIdx, toolCallIdx)
}

func TestRunRejectsCyclicActionPlanBeforeDispatch(t *testing.T) {
	gen := &fakeGenerator{responses: map[string]string{"m1": "final output"}}
	o := New(gen, &fakeToolExecutor{}, &fakeValidator{report: acceptReport()}, Config{})

	decision := lalocore.RoutingDecision{
		Path: lalocore.PathComplex,
		ActionPlan: []lalocore.PlanStep{
			{ID: 0, Kind: lalocore.StepModelGenerate, Model: "m1", DependsOn: []int{1}},
			{ID: 1, Kind: lalocore.StepModelGenerate, Model: "m1", DependsOn: []int{0}},
		},
	}
	req := lalocore.Request{ID: "req-cycle", Prompt: "do step a then b then a"}

	events := collectEvents(t, o.Run(context.Background(), req, decision))
	require.Len(t, events, 1, "a cyclic plan must be rejected before any routing or dispatch event is emitted")

	var content lalocore.ErrorEventContent
	require.NoError(t, json.Unmarshal(events[0].Content, &content))
	require.Equal(t, lalocore.EventError, events[0].Type)
	require.Equal(t, string(lalerrors.KindInvalidRequest), content.Kind)
}

func TestRunSynthesizesPlanWhenNoneProvided(t *testing.T) {
	gen := &fakeGenerator{responses: map[string]string{"m1": "synthesized answer"}}
	o := New(gen, &fakeToolExecutor{}, &fakeValidator{report: acceptReport()}, Config{})

	decision := lalocore.RoutingDecision{Path: lalocore.PathComplex, Recommended: []string{"m1"}}
	req := lalocore.Request{ID: "req-4", Prompt: "design a system"}

	events := collectEvents(t, o.Run(context.Background(), req, decision))
	last := events[len(events)-1]
	require.Equal(t, lalocore.EventDone, last.Type)
}

func TestRunCancellationEmitsSingleTerminalError(t *testing.T) {
	gen := &fakeGenerator{responses: map[string]string{"m1": "hello"}}
	o := New(gen, &fakeToolExecutor{}, &fakeValidator{report: acceptReport()}, Config{})
	decision := lalocore.RoutingDecision{Path: lalocore.PathSimple, Recommended: []string{"m1"}}
	req := lalocore.Request{ID: "req-5", Prompt: "hi"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	events := collectEvents(t, o.Run(ctx, req, decision))
	last := events[len(events)-1]
	require.Equal(t, lalocore.EventError, last.Type)

	errorCount := 0
	for _, e := range events {
		if e.Type == lalocore.EventError {
			errorCount++
		}
	}
	require.Equal(t, 1, errorCount)
}

// flakyOnceGenerator fails its first call against failModel with a
// rate_limited error, then succeeds on every subsequent call.
type flakyOnceGenerator struct {
	mu        sync.Mutex
	failModel string
	failed    bool
	response  string
}

func (f *flakyOnceGenerator) GenerateStream(ctx context.Context, modelID, prompt string, maxOutputTokens int, temperature float64) (<-chan Token, error) {
	f.mu.Lock()
	shouldFail := modelID == f.failModel && !f.failed
	if shouldFail {
		f.failed = true
	}
	f.mu.Unlock()

	if shouldFail {
		return nil, lalerrors.New(lalerrors.KindRateLimited, "rate limited")
	}
	out := make(chan Token, 4)
	go func() {
		defer close(out)
		for _, word := range splitWords(f.response) {
			out <- Token{Text: word + " "}
		}
		out <- Token{Done: true}
	}()
	return out, nil
}

func TestRunSimplePathRetriesOnGenerationError(t *testing.T) {
	gen := &flakyOnceGenerator{failModel: "m1", response: "recovered answer"}
	o := New(gen, &fakeToolExecutor{}, &fakeValidator{report: acceptReport()}, Config{})
	decision := lalocore.RoutingDecision{Path: lalocore.PathSimple, Recommended: []string{"m1", "m2"}}
	req := lalocore.Request{ID: "req-7", Prompt: "hi"}

	events := collectEvents(t, o.Run(context.Background(), req, decision))
	last := events[len(events)-1]
	require.Equal(t, lalocore.EventDone, last.Type, "a retryable generation error on the simple path should recover, not terminate in error")

	var done lalocore.DoneEventContent
	require.NoError(t, json.Unmarshal(last.Content, &done))
	require.NotNil(t, done.Fallback, "a recovered generation error should leave a fallback trace")
	require.NotEmpty(t, done.Fallback.Attempts)
}

func TestRunRetriesSameModelOnRateLimitBeforeRotating(t *testing.T) {
	gen := &flakyOnceGenerator{failModel: "m1", response: "recovered answer"}
	o := New(gen, &fakeToolExecutor{}, &fakeValidator{report: acceptReport()}, Config{})
	decision := lalocore.RoutingDecision{
		Path:        lalocore.PathComplex,
		Recommended: []string{"m1", "m2"},
		ActionPlan: []lalocore.PlanStep{
			{ID: 0, Kind: lalocore.StepModelGenerate, Model: "m1"},
		},
	}
	req := lalocore.Request{ID: "req-6", Prompt: "hi"}

	events := collectEvents(t, o.Run(context.Background(), req, decision))
	last := events[len(events)-1]
	require.Equal(t, lalocore.EventDone, last.Type)

	var done lalocore.DoneEventContent
	require.NoError(t, json.Unmarshal(last.Content, &done))
	require.Equal(t, "m1", done.Usage.ModelID, "rate-limited retry should stay on the same model rather than rotating")
	require.NotNil(t, done.Fallback)
	require.Equal(t, "req-6", done.Fallback.RequestID)
	last1 := done.Fallback.Attempts[len(done.Fallback.Attempts)-1]
	require.Equal(t, lalocore.OutcomeUsed, last1.Outcome)

	errorCount := 0
	for _, e := range events {
		if e.Type == lalocore.EventError {
			errorCount++
		}
	}
	require.Zero(t, errorCount, "one automatic retry should be invisible to the caller")
}
