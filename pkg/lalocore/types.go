// Package lalocore defines the data model shared across every LALO core
// component: requests, routing decisions, plan steps, model descriptors,
// the streamed event envelope, confidence reports, and usage accounting.
package lalocore

import (
	"encoding/json"
	"time"
)

// Backend identifies which generation backend a Model Descriptor targets.
type Backend string

const (
	BackendLocalGGUF      Backend = "local_gguf"
	BackendCloudOpenAI    Backend = "cloud_openai"
	BackendCloudAnthropic Backend = "cloud_anthropic"
	BackendCloudOther     Backend = "cloud_other"
)

// Specialty describes what a model is best suited for.
type Specialty string

const (
	SpecialtyGeneral    Specialty = "general"
	SpecialtyRouting    Specialty = "routing"
	SpecialtyMath       Specialty = "math"
	SpecialtyCode       Specialty = "code"
	SpecialtyResearch   Specialty = "research"
	SpecialtyValidation Specialty = "validation"
	SpecialtyEmbedding  Specialty = "embedding"
	SpecialtyVision     Specialty = "vision"
)

// ModelDescriptor is the static, declarative description of one model. The
// registry loads a set of these once at startup; they never change at
// runtime (a reload requires a controlled restart).
type ModelDescriptor struct {
	ID                 string    `json:"id" yaml:"id"`
	Backend            Backend   `json:"backend" yaml:"backend"`
	FilePathOrRemote   string    `json:"file_path_or_remote_name" yaml:"file_path_or_remote_name"`
	ContextWindow      int       `json:"context_window" yaml:"context_window"`
	RecommendedThreads int       `json:"recommended_threads" yaml:"recommended_threads"`
	Specialty          Specialty `json:"specialty" yaml:"specialty"`
	WeightBytes        int64     `json:"weight_bytes" yaml:"weight_bytes"`
	QuantisationTag    string    `json:"quantisation_tag,omitempty" yaml:"quantisation_tag,omitempty"`

	// Unavailable is set by the registry at startup validation time when a
	// local file is missing/unreadable or an unknown backend is named. An
	// unavailable descriptor stays in the catalogue (never deleted) but is
	// excluded from candidate lists.
	Unavailable bool `json:"unavailable,omitempty" yaml:"-"`
}

// Path is the routing category assigned to a request.
type Path string

const (
	PathSimple      Path = "simple"
	PathComplex     Path = "complex"
	PathSpecialized Path = "specialized"
)

// PlanStepKind enumerates the kinds of step a Plan DAG can contain.
type PlanStepKind string

const (
	StepModelGenerate  PlanStepKind = "model_generate"
	StepToolCall       PlanStepKind = "tool_call"
	StepConfidenceCheck PlanStepKind = "confidence_check"
	StepAggregate      PlanStepKind = "aggregate"
)

// RetryPolicy governs what happens when a confidence_check step fails.
type RetryPolicy struct {
	MaxRetries int `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
}

// PlanStep is one node of a plan DAG. Inputs map a parameter name either to
// a literal value or to a reference of the form "step:<id>" resolved at
// execution time against a prior step's output.
type PlanStep struct {
	ID              int            `json:"id"`
	Kind            PlanStepKind   `json:"kind"`
	Model           string         `json:"model,omitempty"`
	Tool            string         `json:"tool,omitempty"`
	Inputs          map[string]any `json:"inputs,omitempty"`
	DependsOn       []int          `json:"depends_on,omitempty"`
	OnLowConfidence *RetryPolicy   `json:"on_low_confidence,omitempty"`
}

// RoutingDecision is the immutable output of the Router.
type RoutingDecision struct {
	Path          Path       `json:"path"`
	Complexity    float64    `json:"complexity"`
	Confidence    float64    `json:"confidence"`
	Reason        string     `json:"reason"`
	Recommended   []string   `json:"recommended"`
	RequiredTools []string   `json:"required_tools,omitempty"`
	ActionPlan    []PlanStep `json:"action_plan,omitempty"`

	// DemoMode records whether this decision was produced (or will be
	// executed) under the Pool's heuristic demo-mode generator. Surfaced
	// per spec so higher layers never silently run in demo mode.
	DemoMode bool `json:"demo_mode,omitempty"`
}

// GenerationParams bounds the sampling behaviour of one generate call.
type GenerationParams struct {
	MaxOutputTokens int     `json:"max_output_tokens,omitempty"`
	Temperature     float64 `json:"temperature,omitempty"`
	TopP            float64 `json:"top_p,omitempty"`
}

// Request is a single inbound prompt. It is validated as non-empty and its
// generation parameters are clamped to per-model bounds by the Handler
// before routing. Requests are constructed per call and are never persisted
// verbatim unless telemetry capture is explicitly configured.
type Request struct {
	ID            string            `json:"id"`
	Prompt        string            `json:"prompt"`
	UserID        string            `json:"user_id,omitempty"`
	Model         string            `json:"model,omitempty"`
	Params        GenerationParams  `json:"params,omitempty"`
	ToolsEnabled  []string          `json:"tools_enabled,omitempty"`
	DemoMode      bool              `json:"demo_mode,omitempty"`
	PriorContext  []string          `json:"prior_context,omitempty"`
	CreatedAt     time.Time         `json:"-"`
}

// EventType tags the payload carried by an Event.
type EventType string

const (
	EventRouting      EventType = "routing"
	EventToken        EventType = "token"
	EventToolCall     EventType = "tool_call"
	EventToolResult   EventType = "tool_result"
	EventStepComplete EventType = "step_complete"
	EventConfidence   EventType = "confidence"
	EventDone         EventType = "done"
	EventError        EventType = "error"
)

// Event is one entry in a request's strictly-ordered stream. Exactly one of
// the payload fields is populated, matching Type. The last Event for a
// request is always exactly one of EventDone or EventError.
type Event struct {
	Type    EventType        `json:"type"`
	Content json.RawMessage  `json:"content"`
}

// RoutingEventContent is the payload of an EventRouting event.
type RoutingEventContent struct {
	Decision RoutingDecision `json:"decision"`
}

// TokenEventContent is the payload of an EventToken event.
type TokenEventContent struct {
	Text   string `json:"text"`
	StepID *int   `json:"step_id,omitempty"`
}

// ToolCallEventContent is the payload of an EventToolCall event.
type ToolCallEventContent struct {
	Tool   string         `json:"tool"`
	Args   map[string]any `json:"args"`
	StepID int            `json:"step_id"`
}

// ToolResultEventContent is the payload of an EventToolResult event.
type ToolResultEventContent struct {
	StepID int    `json:"step_id"`
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// StepCompleteEventContent is the payload of an EventStepComplete event.
type StepCompleteEventContent struct {
	StepID  int    `json:"step_id"`
	Summary string `json:"summary,omitempty"`
}

// ConfidenceEventContent is the payload of an EventConfidence event.
type ConfidenceEventContent struct {
	Scores         ConfidenceReport `json:"scores"`
	Recommendation string           `json:"recommendation"`
}

// DoneEventContent is the payload of the terminal EventDone event.
type DoneEventContent struct {
	FinalText string         `json:"final_text"`
	Usage     UsageRecord    `json:"usage"`
	Fallback  *FallbackTrace `json:"fallback,omitempty"`
}

// ErrorEventContent is the payload of the terminal EventError event.
type ErrorEventContent struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ConfidenceComponents scores an output along four independent axes.
type ConfidenceComponents struct {
	Factual    float64 `json:"factual"`
	Consistent float64 `json:"consistent"`
	Complete   float64 `json:"complete"`
	Grounded   float64 `json:"grounded"`
}

// Recommendation is the Confidence Validator's disposition for an output.
type Recommendation string

const (
	RecommendAccept   Recommendation = "accept"
	RecommendRetry    Recommendation = "retry"
	RecommendEscalate Recommendation = "escalate"
)

// ConfidenceReport is the Validator's scored judgement on an output.
type ConfidenceReport struct {
	Overall        float64              `json:"overall"`
	Components     ConfidenceComponents `json:"components"`
	Evasive        bool                 `json:"evasive"`
	Recommendation Recommendation       `json:"recommendation"`
	Notes          []string             `json:"notes,omitempty"`
}

// UsageRecord is the per-request accounting entry handed to the Telemetry
// Sink. Tokens are estimated (heuristic: ~1.3 tokens per whitespace token)
// when the backend does not report them.
type UsageRecord struct {
	RequestID        string    `json:"request_id"`
	UserID           string    `json:"user_id,omitempty"`
	ModelID          string    `json:"model_id"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	CostMicroUSD     int64     `json:"cost_micro_usd"`
	Timestamp        time.Time `json:"timestamp"`
	Path             Path      `json:"path"`
	Succeeded        bool      `json:"succeeded"`
}

// FallbackOutcome classifies one attempt recorded in a Fallback Trace.
type FallbackOutcome string

const (
	OutcomeUsed                  FallbackOutcome = "used"
	OutcomeUnavailable           FallbackOutcome = "unavailable"
	OutcomeTimedOut              FallbackOutcome = "timed_out"
	OutcomeErrored               FallbackOutcome = "errored"
	OutcomeRejectedByConfidence  FallbackOutcome = "rejected_by_confidence"
)

// FallbackAttempt is one entry of a Fallback Trace.
type FallbackAttempt struct {
	AttemptNo      int             `json:"attempt_no"`
	AttemptedModel string          `json:"attempted_model"`
	Outcome        FallbackOutcome `json:"outcome"`
	Note           string          `json:"note,omitempty"`
}

// FallbackTrace is the ordered audit record attached to the Usage Record of
// the request that produced it.
type FallbackTrace struct {
	RequestID string            `json:"request_id"`
	Attempts  []FallbackAttempt `json:"attempts"`
}

// ToolPolicy is the sandbox policy consulted by the Tool Executor; the
// orchestrator passes this unchanged to execute().
type ToolPolicy struct {
	Profile string   `json:"profile,omitempty"`
	Allow   []string `json:"allow,omitempty"`
	Deny    []string `json:"deny,omitempty"`
}

// ResponseSummary is the summary block returned by the Handler alongside
// the final text on a successful non-streaming call.
type ResponseSummary struct {
	Routing    RoutingDecision  `json:"routing"`
	Confidence ConfidenceReport `json:"confidence"`
	ModelsUsed []string         `json:"models_used"`
}

// Response is the Handler's non-streaming return value.
type Response struct {
	ID       string          `json:"id"`
	Response string          `json:"response"`
	Model    string          `json:"model"`
	Usage    UsageRecord     `json:"usage"`
	Summary  ResponseSummary `json:"summary"`
}
