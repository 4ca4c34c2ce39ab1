// Package orchestrator executes a Routing Decision against a Request,
// producing the request's totally-ordered Event stream. It selects one of
// three execution shapes by path (simple, complex-with-plan,
// complex-without-plan), dispatches generation to the Inference Pool or
// Cloud Adapter, delegates tool_call steps to the Tool Executor, runs the
// Confidence Validator after generation, and handles retry/escalation and
// cooperative cancellation.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/lalosystems/lalocore/internal/lalerrors"
	"github.com/lalosystems/lalocore/internal/usage"
	lalocore "github.com/lalosystems/lalocore/pkg/lalocore"
)

func marshal(v any) (json.RawMessage, error) {
	return json.Marshal(v)
}

// Generator is satisfied by both the Inference Pool and the Cloud Adapter;
// the Orchestrator dispatches to whichever owns a given model id without
// caring which.
type Generator interface {
	GenerateStream(ctx context.Context, modelID, prompt string, maxOutputTokens int, temperature float64) (<-chan Token, error)
}

// Token is the common token-chunk shape both backends are adapted to.
type Token struct {
	Text  string
	Done  bool
	Error error
}

// ToolExecutor is the interface consumed from the tools package.
type ToolExecutor interface {
	Execute(ctx context.Context, toolID string, args map[string]any, policy lalocore.ToolPolicy) (ToolResult, error)
}

// ToolResult mirrors tools.Result without importing the tools package,
// keeping the orchestrator decoupled from a concrete tool implementation.
type ToolResult struct {
	Output string
	Data   map[string]any
}

// Validator scores generated output and returns a Confidence Report.
type Validator interface {
	Score(ctx context.Context, output string, req lalocore.Request, sources []string) lalocore.ConfidenceReport
}

// Config bounds the orchestrator's retry and parallelism behaviour; zero
// values fall back to the spec-documented defaults.
type Config struct {
	MaxParallelSteps  int
	MaxRetriesPerStep int
	// Prices prices completed generations into UsageRecord.CostMicroUSD;
	// a nil/empty table leaves cost at zero, which is a valid choice for
	// demo mode or unpriced local models.
	Prices usage.PriceTable
}

// Orchestrator executes Routing Decisions.
type Orchestrator struct {
	generator Generator
	tools     ToolExecutor
	validator Validator
	cfg       Config

	// rateLimitBackoff paces the single automatic retry scenario 6 of the
	// spec describes (a 429 followed by one retry after a short backoff):
	// a token-bucket limiter of 1 event per 2s, burst 1, so repeated
	// rate-limited steps back off instead of hammering the provider.
	rateLimitBackoff *rate.Limiter
}

// New creates an Orchestrator.
func New(generator Generator, tools ToolExecutor, validator Validator, cfg Config) *Orchestrator {
	if cfg.MaxParallelSteps <= 0 {
		cfg.MaxParallelSteps = 2
	}
	if cfg.MaxRetriesPerStep <= 0 {
		cfg.MaxRetriesPerStep = 2
	}
	return &Orchestrator{
		generator:        generator,
		tools:            tools,
		validator:        validator,
		cfg:              cfg,
		rateLimitBackoff: rate.NewLimiter(rate.Every(2*time.Second), 1),
	}
}

// Run executes decision against req and returns a channel of Events ending
// in exactly one Done or Error event. The channel is closed after the
// terminal event is sent. Run never panics on a nil/cancelled ctx; it
// observes ctx at every suspension point.
func (o *Orchestrator) Run(ctx context.Context, req lalocore.Request, decision lalocore.RoutingDecision) <-chan lalocore.Event {
	out := make(chan lalocore.Event, 16)
	go func() {
		defer close(out)
		run := &execution{
			orch:     o,
			ctx:      ctx,
			req:      req,
			decision: decision,
			out:      out,
			stepOutputs: make(map[int]string),
			toolsUsed: make(map[string]struct{}),
			modelsUsed: make(map[string]struct{}),
		}
		run.execute()
	}()
	return out
}

// execution carries the mutable state of one Run call.
type execution struct {
	orch     *Orchestrator
	ctx      context.Context
	req      lalocore.Request
	decision lalocore.RoutingDecision
	out      chan<- lalocore.Event

	mu          sync.Mutex
	stepOutputs map[int]string
	toolsUsed   map[string]struct{}
	modelsUsed  map[string]struct{}
	fallback    []lalocore.FallbackAttempt
}

// recordFallback appends one attempt to the request's Fallback Trace,
// produced whenever a step is retried or escalated.
func (e *execution) recordFallback(model string, outcome lalocore.FallbackOutcome, note string) {
	e.mu.Lock()
	e.fallback = append(e.fallback, lalocore.FallbackAttempt{
		AttemptNo:      len(e.fallback) + 1,
		AttemptedModel: model,
		Outcome:        outcome,
		Note:           note,
	})
	e.mu.Unlock()
}

func (e *execution) execute() {
	if len(e.decision.ActionPlan) > 0 {
		if _, err := topoSort(e.decision.ActionPlan); err != nil {
			e.emitError(lalerrors.KindInvalidRequest, err.Error())
			return
		}
	}

	e.emit(lalocore.EventRouting, lalocore.RoutingEventContent{Decision: e.decision})

	if e.ctx.Err() != nil {
		e.emitError(lalerrors.KindCancelled, "request cancelled before dispatch")
		return
	}

	switch {
	case e.decision.Path == lalocore.PathSimple:
		e.runSimple()
	case len(e.decision.ActionPlan) > 0:
		e.runPlan(e.decision.ActionPlan)
	default:
		e.runSynthesizedComplex()
	}
}

// runSimple implements the single model_generate + confidence_check
// shape, including the one-shot retry-with-different-model and
// escalate-to-plan behaviour described for the simple path.
func (e *execution) runSimple() {
	model := e.primaryModel()
	step := lalocore.PlanStep{ID: 0, Kind: lalocore.StepModelGenerate, Model: model}
	text, err := e.generateStep(0, model, e.req.Prompt, nil)
	if err != nil {
		if retried := e.retryStep(step, err); retried {
			e.mu.Lock()
			text = e.stepOutputs[0]
			e.mu.Unlock()
		} else {
			e.emitError(lalerrors.KindOf(err), err.Error())
			return
		}
	}

	report := e.orch.validator.Score(e.ctx, text, e.req, nil)
	e.emit(lalocore.EventConfidence, lalocore.ConfidenceEventContent{Scores: report, Recommendation: string(report.Recommendation)})

	switch report.Recommendation {
	case lalocore.RecommendRetry:
		next := e.nextModel(model)
		if next == "" {
			e.finish(text, report)
			return
		}
		retryText, err := e.generateStep(1, next, e.req.Prompt, nil)
		if err != nil {
			e.recordFallback(next, outcomeForErr(err), err.Error())
			e.finish(text, report)
			return
		}
		retryReport := e.orch.validator.Score(e.ctx, retryText, e.req, nil)
		e.emit(lalocore.EventConfidence, lalocore.ConfidenceEventContent{Scores: retryReport, Recommendation: string(retryReport.Recommendation)})
		if retryReport.Recommendation == lalocore.RecommendAccept {
			e.recordFallback(next, lalocore.OutcomeUsed, "")
		} else {
			e.recordFallback(next, lalocore.OutcomeRejectedByConfidence, string(retryReport.Recommendation))
		}
		e.finish(retryText, retryReport)
	case lalocore.RecommendEscalate:
		plan := e.synthesizePlan()
		e.runPlan(plan)
	default:
		e.finish(text, report)
	}
}

// runSynthesizedComplex builds and runs the minimal forward-progress plan
// for a complex decision that carries no explicit action_plan.
func (e *execution) runSynthesizedComplex() {
	e.runPlan(e.synthesizePlan())
}

func (e *execution) synthesizePlan() []lalocore.PlanStep {
	steps := []lalocore.PlanStep{}
	nextID := 0
	var toolStepID *int
	if len(e.decision.RequiredTools) > 0 {
		id := nextID
		nextID++
		steps = append(steps, lalocore.PlanStep{
			ID:   id,
			Kind: lalocore.StepToolCall,
			Tool: e.decision.RequiredTools[0],
		})
		toolStepID = &id
	}
	genStep := lalocore.PlanStep{
		ID:     nextID,
		Kind:   lalocore.StepModelGenerate,
		Model:  e.primaryModel(),
		Inputs: map[string]any{"prompt": e.req.Prompt},
	}
	if toolStepID != nil {
		genStep.DependsOn = []int{*toolStepID}
	}
	steps = append(steps, genStep)
	return steps
}

// runPlan topologically sorts the DAG, dispatches ready steps with a
// bounded parallelism cap, and enforces the cross-step ordering
// invariants: StepComplete for every dependency precedes any event for a
// dependent step; ToolCall precedes its ToolResult. A cyclic or
// dangling-reference action_plan from the classifier is rejected in
// execute before this ever runs; the check here guards the plans this
// package synthesizes itself, where a cycle would mean a bug in
// synthesizePlan rather than a bad request.
func (e *execution) runPlan(steps []lalocore.PlanStep) {
	if _, err := topoSort(steps); err != nil {
		e.emitError(lalerrors.KindInternal, err.Error())
		return
	}
	byID := make(map[int]lalocore.PlanStep, len(steps))
	for _, s := range steps {
		byID[s.ID] = s
	}

	completed := make(map[int]bool, len(steps))
	failed := false

	sem := make(chan struct{}, e.orch.cfg.MaxParallelSteps)
	var wg sync.WaitGroup
	var mu sync.Mutex

	ready := make([]int, 0)
	remaining := make(map[int]lalocore.PlanStep, len(byID))
	for id, s := range byID {
		remaining[id] = s
	}

	isReady := func(s lalocore.PlanStep) bool {
		for _, dep := range s.DependsOn {
			if !completed[dep] {
				return false
			}
		}
		return true
	}

	for {
		if e.ctx.Err() != nil {
			wg.Wait()
			e.emitError(lalerrors.KindCancelled, "request cancelled")
			return
		}

		mu.Lock()
		ready = ready[:0]
		for id, s := range remaining {
			if isReady(s) {
				ready = append(ready, id)
			}
		}
		sort.Ints(ready)
		for _, id := range ready {
			delete(remaining, id)
		}
		done := len(remaining) == 0 && len(ready) == 0
		mu.Unlock()

		if done {
			break
		}
		if failed {
			wg.Wait()
			break
		}

		for _, id := range ready {
			step := byID[id]
			wg.Add(1)
			sem <- struct{}{}
			go func(step lalocore.PlanStep) {
				defer wg.Done()
				defer func() { <-sem }()
				ok := e.runStep(step)
				mu.Lock()
				completed[step.ID] = true
				if !ok {
					failed = true
				}
				mu.Unlock()
			}(step)
		}
		wg.Wait()

		mu.Lock()
		stillFailed := failed
		mu.Unlock()
		if stillFailed {
			break
		}
	}

	if failed {
		return // runStep already emitted the terminal Error event.
	}
	if e.ctx.Err() != nil {
		e.emitError(lalerrors.KindCancelled, "request cancelled")
		return
	}

	finalText := e.resolveFinalText(steps)
	report := e.orch.validator.Score(e.ctx, finalText, e.req, nil)
	e.emit(lalocore.EventConfidence, lalocore.ConfidenceEventContent{Scores: report, Recommendation: string(report.Recommendation)})
	e.finish(finalText, report)
}

// runStep executes one plan step, emitting its events, and returns false
// (having already emitted a terminal Error) on unrecoverable failure.
func (e *execution) runStep(step lalocore.PlanStep) bool {
	switch step.Kind {
	case lalocore.StepToolCall:
		return e.runToolStep(step)
	case lalocore.StepModelGenerate:
		return e.runGenerateStep(step)
	case lalocore.StepConfidenceCheck:
		return e.runConfidenceStep(step)
	case lalocore.StepAggregate:
		return e.runAggregateStep(step)
	default:
		e.emitError(lalerrors.KindInternal, fmt.Sprintf("unknown plan step kind %q", step.Kind))
		return false
	}
}

func (e *execution) runToolStep(step lalocore.PlanStep) bool {
	args := e.resolveInputs(step.Inputs)
	e.emit(lalocore.EventToolCall, lalocore.ToolCallEventContent{Tool: step.Tool, Args: args, StepID: step.ID})

	result, err := e.orch.tools.Execute(e.ctx, step.Tool, args, lalocore.ToolPolicy{Profile: "coding"})
	if err != nil {
		e.emit(lalocore.EventToolResult, lalocore.ToolResultEventContent{StepID: step.ID, Error: err.Error()})
		if retried := e.retryStep(step, err); retried {
			return true
		}
		e.emitError(lalerrors.KindOf(err), err.Error())
		return false
	}

	e.mu.Lock()
	e.toolsUsed[step.Tool] = struct{}{}
	e.stepOutputs[step.ID] = result.Output
	e.mu.Unlock()

	e.emit(lalocore.EventToolResult, lalocore.ToolResultEventContent{StepID: step.ID, Result: result.Output})
	e.emit(lalocore.EventStepComplete, lalocore.StepCompleteEventContent{StepID: step.ID, Summary: result.Output})
	return true
}

func (e *execution) runGenerateStep(step lalocore.PlanStep) bool {
	prompt := e.req.Prompt
	if v, ok := step.Inputs["prompt"].(string); ok && v != "" {
		prompt = e.resolvePromptRef(v)
	}
	model := step.Model
	if model == "" {
		model = e.primaryModel()
	}

	text, err := e.generateStep(step.ID, model, prompt, nil)
	if err != nil {
		if retried := e.retryStep(step, err); retried {
			return true
		}
		e.emitError(lalerrors.KindOf(err), err.Error())
		return false
	}

	e.mu.Lock()
	e.stepOutputs[step.ID] = text
	e.mu.Unlock()
	e.emit(lalocore.EventStepComplete, lalocore.StepCompleteEventContent{StepID: step.ID, Summary: text})
	return true
}

func (e *execution) runConfidenceStep(step lalocore.PlanStep) bool {
	var target string
	for _, dep := range step.DependsOn {
		e.mu.Lock()
		text := e.stepOutputs[dep]
		e.mu.Unlock()
		target += text
	}
	report := e.orch.validator.Score(e.ctx, target, e.req, nil)
	e.emit(lalocore.EventConfidence, lalocore.ConfidenceEventContent{Scores: report, Recommendation: string(report.Recommendation)})

	if report.Recommendation != lalocore.RecommendAccept {
		if retried := e.retryDependency(step); retried {
			e.emit(lalocore.EventStepComplete, lalocore.StepCompleteEventContent{StepID: step.ID, Summary: "confidence check retried dependency"})
			return true
		}
		e.emitError(lalerrors.KindInternal, "confidence check failed and retry budget exhausted")
		return false
	}

	e.mu.Lock()
	e.stepOutputs[step.ID] = target
	e.mu.Unlock()
	e.emit(lalocore.EventStepComplete, lalocore.StepCompleteEventContent{StepID: step.ID, Summary: target})
	return true
}

func (e *execution) runAggregateStep(step lalocore.PlanStep) bool {
	var builder strings.Builder
	for _, dep := range step.DependsOn {
		e.mu.Lock()
		text := e.stepOutputs[dep]
		e.mu.Unlock()
		builder.WriteString(text)
	}
	aggregated := builder.String()
	e.mu.Lock()
	e.stepOutputs[step.ID] = aggregated
	e.mu.Unlock()
	e.emit(lalocore.EventStepComplete, lalocore.StepCompleteEventContent{StepID: step.ID, Summary: aggregated})
	return true
}

// outcomeForErr maps an error's taxonomy Kind onto the Fallback Trace's
// narrower outcome vocabulary.
func outcomeForErr(err error) lalocore.FallbackOutcome {
	switch lalerrors.KindOf(err) {
	case lalerrors.KindModelUnavailable:
		return lalocore.OutcomeUnavailable
	case lalerrors.KindModelLoadTimeout, lalerrors.KindGenerationTimeout, lalerrors.KindToolTimeout:
		return lalocore.OutcomeTimedOut
	default:
		return lalocore.OutcomeErrored
	}
}

// retryStep re-runs a failed model_generate or tool_call step once,
// against the next-best recommended model where applicable, up to the
// configured per-step retry budget. Returns true if a retry succeeded.
func (e *execution) retryStep(step lalocore.PlanStep, cause error) bool {
	if !lalerrors.Retryable(cause) {
		return false
	}
	if step.Kind == lalocore.StepModelGenerate && lalerrors.KindOf(cause) == lalerrors.KindRateLimited {
		e.recordFallback(step.Model, lalocore.OutcomeErrored, "rate_limited")
		if e.retrySameModelAfterBackoff(step) {
			e.recordFallback(step.Model, lalocore.OutcomeUsed, "retried after backoff")
			return true
		}
	}
	for attempt := 1; attempt <= e.orch.cfg.MaxRetriesPerStep; attempt++ {
		if step.Kind == lalocore.StepModelGenerate {
			next := e.nextModel(step.Model)
			if next == "" {
				return false
			}
			text, err := e.generateStep(step.ID, next, e.req.Prompt, nil)
			if err == nil {
				e.mu.Lock()
				e.stepOutputs[step.ID] = text
				e.mu.Unlock()
				e.recordFallback(next, lalocore.OutcomeUsed, "")
				e.emit(lalocore.EventStepComplete, lalocore.StepCompleteEventContent{StepID: step.ID, Summary: text})
				return true
			}
			e.recordFallback(next, outcomeForErr(err), err.Error())
			cause = err
			continue
		}
		if step.Kind == lalocore.StepToolCall {
			result, err := e.orch.tools.Execute(e.ctx, step.Tool, e.resolveInputs(step.Inputs), lalocore.ToolPolicy{Profile: "coding"})
			if err == nil {
				e.mu.Lock()
				e.stepOutputs[step.ID] = result.Output
				e.mu.Unlock()
				e.emit(lalocore.EventToolResult, lalocore.ToolResultEventContent{StepID: step.ID, Result: result.Output})
				e.emit(lalocore.EventStepComplete, lalocore.StepCompleteEventContent{StepID: step.ID, Summary: result.Output})
				return true
			}
			cause = err
			continue
		}
	}
	return false
}

// retrySameModelAfterBackoff re-issues step against the same model after
// waiting out the reserved backoff delay, the one-automatic-retry path a
// rate_limited cloud error takes before the generic next-model retry loop
// would otherwise rotate away from a perfectly good model.
func (e *execution) retrySameModelAfterBackoff(step lalocore.PlanStep) bool {
	reservation := e.orch.rateLimitBackoff.Reserve()
	if !reservation.OK() {
		return false
	}
	delay := reservation.Delay()
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-e.ctx.Done():
			return false
		}
	}
	text, err := e.generateStep(step.ID, step.Model, e.req.Prompt, nil)
	if err != nil {
		return false
	}
	e.mu.Lock()
	e.stepOutputs[step.ID] = text
	e.mu.Unlock()
	e.emit(lalocore.EventStepComplete, lalocore.StepCompleteEventContent{StepID: step.ID, Summary: text})
	return true
}

// retryDependency re-runs the dependency a failed confidence_check step
// validates, honouring the step's retry policy.
func (e *execution) retryDependency(step lalocore.PlanStep) bool {
	maxRetries := e.orch.cfg.MaxRetriesPerStep
	if step.OnLowConfidence != nil && step.OnLowConfidence.MaxRetries > 0 {
		maxRetries = step.OnLowConfidence.MaxRetries
	}
	if len(step.DependsOn) == 0 {
		return false
	}
	depID := step.DependsOn[0]
	for attempt := 1; attempt <= maxRetries; attempt++ {
		model := e.primaryModel()
		text, err := e.generateStep(depID, model, e.req.Prompt, nil)
		if err != nil {
			e.recordFallback(model, outcomeForErr(err), err.Error())
			continue
		}
		report := e.orch.validator.Score(e.ctx, text, e.req, nil)
		if report.Recommendation == lalocore.RecommendAccept {
			e.mu.Lock()
			e.stepOutputs[depID] = text
			e.stepOutputs[step.ID] = text
			e.mu.Unlock()
			e.recordFallback(model, lalocore.OutcomeUsed, "")
			return true
		}
		e.recordFallback(model, lalocore.OutcomeRejectedByConfidence, string(report.Recommendation))
	}
	return false
}

func (e *execution) resolveInputs(inputs map[string]any) map[string]any {
	resolved := make(map[string]any, len(inputs))
	for k, v := range inputs {
		if s, ok := v.(string); ok {
			resolved[k] = e.resolvePromptRef(s)
			continue
		}
		resolved[k] = v
	}
	return resolved
}

// resolvePromptRef resolves a "step:<id>" reference against a completed
// step's output, or returns the literal value unchanged.
func (e *execution) resolvePromptRef(value string) string {
	const prefix = "step:"
	if !strings.HasPrefix(value, prefix) {
		return value
	}
	var id int
	if _, err := fmt.Sscanf(strings.TrimPrefix(value, prefix), "%d", &id); err != nil {
		return value
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stepOutputs[id]
}

func (e *execution) resolveFinalText(steps []lalocore.PlanStep) string {
	for _, s := range steps {
		if s.Kind == lalocore.StepAggregate {
			e.mu.Lock()
			text := e.stepOutputs[s.ID]
			e.mu.Unlock()
			return text
		}
	}
	if order, err := topoSort(steps); err == nil && len(order) > 0 {
		last := order[len(order)-1]
		e.mu.Lock()
		text := e.stepOutputs[last]
		e.mu.Unlock()
		return text
	}
	return ""
}

// generateStep streams tokens for one generation, emitting Token events as
// they arrive, and returns the concatenated final text.
func (e *execution) generateStep(stepID int, model, prompt string, _ []string) (string, error) {
	e.mu.Lock()
	e.modelsUsed[model] = struct{}{}
	e.mu.Unlock()

	stream, err := e.orch.generator.GenerateStream(e.ctx, model, prompt, 0, 0)
	if err != nil {
		return "", err
	}

	var builder strings.Builder
	id := stepID
	for {
		select {
		case <-e.ctx.Done():
			return "", lalerrors.New(lalerrors.KindCancelled, "generation cancelled")
		case chunk, ok := <-stream:
			if !ok {
				return builder.String(), nil
			}
			if chunk.Error != nil {
				return "", chunk.Error
			}
			if chunk.Text != "" {
				builder.WriteString(chunk.Text)
				e.emit(lalocore.EventToken, lalocore.TokenEventContent{Text: chunk.Text, StepID: &id})
			}
			if chunk.Done {
				return builder.String(), nil
			}
		}
	}
}

func (e *execution) primaryModel() string {
	if e.req.Model != "" {
		return e.req.Model
	}
	if len(e.decision.Recommended) > 0 {
		return e.decision.Recommended[0]
	}
	return ""
}

func (e *execution) nextModel(current string) string {
	for i, id := range e.decision.Recommended {
		if id == current && i+1 < len(e.decision.Recommended) {
			return e.decision.Recommended[i+1]
		}
	}
	return ""
}

func (e *execution) finish(text string, report lalocore.ConfidenceReport) {
	e.mu.Lock()
	models := make([]string, 0, len(e.modelsUsed))
	for m := range e.modelsUsed {
		models = append(models, m)
	}
	e.mu.Unlock()
	sort.Strings(models)

	promptTokens := usage.EstimateTokens(e.req.Prompt)
	completionTokens := usage.EstimateTokens(text)
	record := lalocore.UsageRecord{
		RequestID:        e.req.ID,
		UserID:           e.req.UserID,
		Path:             e.decision.Path,
		Succeeded:        true,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
	}
	if len(models) > 0 {
		record.ModelID = models[0]
		record.CostMicroUSD = e.orch.cfg.Prices.CostMicroUSD(record.ModelID, promptTokens, completionTokens)
	}

	var trace *lalocore.FallbackTrace
	e.mu.Lock()
	if len(e.fallback) > 0 {
		trace = &lalocore.FallbackTrace{RequestID: e.req.ID, Attempts: e.fallback}
	}
	e.mu.Unlock()

	e.emit(lalocore.EventDone, lalocore.DoneEventContent{FinalText: text, Usage: record, Fallback: trace})
	_ = report
}

func (e *execution) emit(t lalocore.EventType, content any) {
	raw, err := marshal(content)
	if err != nil {
		return
	}
	select {
	case e.out <- lalocore.Event{Type: t, Content: raw}:
	case <-e.ctx.Done():
	}
}

func (e *execution) emitError(kind lalerrors.Kind, message string) {
	raw, _ := marshal(lalocore.ErrorEventContent{Kind: string(kind), Message: message})
	e.out <- lalocore.Event{Type: lalocore.EventError, Content: raw}
}

// topoSort returns a valid topological order of steps, or an error if the
// DAG contains a cycle or an unresolved dependency.
func topoSort(steps []lalocore.PlanStep) ([]int, error) {
	byID := make(map[int]lalocore.PlanStep, len(steps))
	for _, s := range steps {
		byID[s.ID] = s
	}
	visited := make(map[int]int) // 0=unvisited,1=visiting,2=done
	var order []int

	var visit func(id int) error
	visit = func(id int) error {
		switch visited[id] {
		case 2:
			return nil
		case 1:
			return fmt.Errorf("plan contains a cycle at step %d", id)
		}
		visited[id] = 1
		step, ok := byID[id]
		if !ok {
			return fmt.Errorf("plan references unknown step %d", id)
		}
		for _, dep := range step.DependsOn {
			if err := visit(dep); err != nil {
				return err
			}
		}
		visited[id] = 2
		order = append(order, id)
		return nil
	}

	ids := make([]int, 0, len(steps))
	for _, s := range steps {
		ids = append(ids, s.ID)
	}
	sort.Ints(ids)
	for _, id := range ids {
		if err := visit(id); err != nil {
			return nil, err
		}
	}
	return order, nil
}
