// Package routing implements the Router: given a Request and the models
// currently visible to the caller, it produces a Routing Decision. The
// primary method defers to a routing-specialty classifier model; when that
// model is unavailable, times out, or returns unparsable output, a
// deterministic heuristic pipeline takes over, grounded in the teacher's
// HeuristicClassifier keyword-bucket tagging.
package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/lalosystems/lalocore/internal/registry"
	"github.com/lalosystems/lalocore/internal/usage"
	lalocore "github.com/lalosystems/lalocore/pkg/lalocore"
)

// Registry is the subset of the Model Registry the Router depends on.
type Registry interface {
	ListAvailable(specialty *lalocore.Specialty) []lalocore.ModelDescriptor
	Lookup(id string) (lalocore.ModelDescriptor, bool)
}

// Classifier invokes a routing-specialty model and returns a parsed Routing
// Decision, or an error if the model is unavailable, times out, or the
// response cannot be parsed/validated.
type Classifier interface {
	Classify(ctx context.Context, req lalocore.Request, candidates []lalocore.ModelDescriptor) (lalocore.RoutingDecision, error)
}

// Config configures a Router.
type Config struct {
	FailureCooldown time.Duration
	DefaultMaxOutputTokens int
}

// Router selects a path, recommended models, and required tools for a
// request, preferring a classifier model and falling back to a
// deterministic heuristic when the classifier cannot be used.
type Router struct {
	registry   Registry
	classifier Classifier
	cfg        Config

	healthMu  sync.Mutex
	unhealthy map[string]time.Time
}

// New creates a Router. classifier may be nil, in which case every
// decision uses the heuristic pipeline.
func New(registry Registry, classifier Classifier, cfg Config) *Router {
	if cfg.DefaultMaxOutputTokens <= 0 {
		cfg.DefaultMaxOutputTokens = 1024
	}
	return &Router{
		registry:   registry,
		classifier: classifier,
		cfg:        cfg,
		unhealthy:  make(map[string]time.Time),
	}
}

// Route produces a Routing Decision for req. It first tries the
// classifier (if configured and healthy); on any failure it falls back to
// the heuristic pipeline so the caller always gets a usable decision.
func (r *Router) Route(ctx context.Context, req lalocore.Request) (lalocore.RoutingDecision, error) {
	promptTokens := estimateTokens(req.Prompt)
	maxOutput := r.cfg.DefaultMaxOutputTokens
	if req.Params.MaxOutputTokens > 0 {
		maxOutput = req.Params.MaxOutputTokens
	}

	candidates := r.availableCandidates(promptTokens, maxOutput)
	if len(candidates) == 0 {
		return lalocore.RoutingDecision{}, fmt.Errorf("routing: no candidate models fit the request context window")
	}

	if r.classifier != nil && r.isHealthy("classifier") {
		decision, err := r.classifier.Classify(ctx, req, candidates)
		if err == nil && r.validDecision(decision, candidates) {
			return decision, nil
		}
		r.markUnhealthy("classifier")
	}

	return r.heuristicRoute(req, candidates, promptTokens, maxOutput), nil
}

func (r *Router) validDecision(d lalocore.RoutingDecision, candidates []lalocore.ModelDescriptor) bool {
	if len(d.Recommended) == 0 {
		return false
	}
	byID := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		byID[c.ID] = struct{}{}
	}
	for _, id := range d.Recommended {
		if _, ok := byID[id]; !ok {
			return false
		}
	}
	return true
}

func (r *Router) availableCandidates(promptTokens, maxOutput int) []lalocore.ModelDescriptor {
	all := r.registry.ListAvailable(nil)
	fit := make([]lalocore.ModelDescriptor, 0, len(all))
	for _, d := range all {
		if registry.FitsContext(d, promptTokens, maxOutput) {
			fit = append(fit, d)
		}
	}
	return fit
}

// isHealthy/markUnhealthy implement the same failure-cooldown pattern the
// teacher's Router uses for providers, applied here to the classifier: a
// classifier that keeps failing is skipped for a cooldown window instead
// of being retried on every request.
func (r *Router) isHealthy(name string) bool {
	if r.cfg.FailureCooldown <= 0 {
		return true
	}
	r.healthMu.Lock()
	defer r.healthMu.Unlock()
	until, ok := r.unhealthy[name]
	if !ok {
		return true
	}
	if time.Now().After(until) {
		delete(r.unhealthy, name)
		return true
	}
	return false
}

func (r *Router) markUnhealthy(name string) {
	if r.cfg.FailureCooldown <= 0 {
		return
	}
	r.healthMu.Lock()
	r.unhealthy[name] = time.Now().Add(r.cfg.FailureCooldown)
	r.healthMu.Unlock()
}

func (r *Router) heuristicRoute(req lalocore.Request, candidates []lalocore.ModelDescriptor, promptTokens, maxOutput int) lalocore.RoutingDecision {
	complexity := complexityScore(req.Prompt)
	path := pathForComplexity(complexity, hasToolKeyword(req.Prompt))
	specialty := detectSpecialty(req.Prompt)
	requiredTools := detectRequiredTools(req.Prompt)

	recommended := recommendModels(path, specialty, candidates, promptTokens, maxOutput)

	reason := fmt.Sprintf("heuristic: complexity=%.2f path=%s specialty=%s", complexity, path, specialty)

	return lalocore.RoutingDecision{
		Path:          path,
		Complexity:    complexity,
		Confidence:    0.5,
		Reason:        reason,
		Recommended:   recommended,
		RequiredTools: requiredTools,
		DemoMode:      req.DemoMode,
	}
}

var (
	simpleKeywords  = []string{"what is", "define", "who", "when"}
	mediumKeywords  = []string{"how to", "compare", "explain", "summarise", "summarize"}
	complexKeywords = []string{"design", "analyse", "analyze", "research", "plan", "optimise", "optimize"}

	codeKeywords     = []string{"func", "class", "def ", "package ", "import ", "select ", "insert ", "update ", "delete ", "```", "code"}
	mathKeywords     = []string{"calculate", "equation", "solve", "integral", "derivative", "sum of", "+", "-", "*", "/"}
	researchKeywords = []string{"research", "cite", "sources", "literature", "evidence"}

	toolKeywords = []string{"search", "browse", "run code", "read file", "fetch url", "look up"}
)

func complexityScore(prompt string) float64 {
	lower := strings.ToLower(prompt)
	base := 0.4
	switch {
	case containsAny(lower, complexKeywords):
		base = 0.8
	case containsAny(lower, mediumKeywords):
		base = 0.5
	case containsAny(lower, simpleKeywords):
		base = 0.2
	}
	words := len(strings.Fields(prompt))
	lengthBonus := float64(words) / 100.0
	if lengthBonus > 0.3 {
		lengthBonus = 0.3
	}
	score := base + lengthBonus
	if score > 1.0 {
		score = 1.0
	}
	return score
}

func hasToolKeyword(prompt string) bool {
	return containsAny(strings.ToLower(prompt), toolKeywords)
}

func pathForComplexity(complexity float64, toolKeyword bool) lalocore.Path {
	switch {
	case complexity < 0.3 && !toolKeyword:
		return lalocore.PathSimple
	case complexity >= 0.6 || toolKeyword:
		return lalocore.PathComplex
	default:
		return lalocore.PathSpecialized
	}
}

func detectSpecialty(prompt string) lalocore.Specialty {
	lower := strings.ToLower(prompt)
	switch {
	case containsAny(lower, codeKeywords):
		return lalocore.SpecialtyCode
	case containsAny(lower, mathKeywords):
		return lalocore.SpecialtyMath
	case containsAny(lower, researchKeywords):
		return lalocore.SpecialtyResearch
	default:
		return lalocore.SpecialtyGeneral
	}
}

func detectRequiredTools(prompt string) []string {
	lower := strings.ToLower(prompt)
	var tools []string
	if strings.Contains(lower, "search") || strings.Contains(lower, "look up") {
		tools = append(tools, "web_search")
	}
	if strings.Contains(lower, "browse") || strings.Contains(lower, "fetch url") {
		tools = append(tools, "browser")
	}
	if strings.Contains(lower, "run code") {
		tools = append(tools, "code_exec")
	}
	if strings.Contains(lower, "read file") {
		tools = append(tools, "file_read")
	}
	return tools
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// recommendModels picks candidate model ids for the decision: for simple
// paths the fastest general model; for specialized paths the best match
// by detected specialty; for complex paths a routing/tool-capable model.
// Ties between equally good candidates are broken toward the smaller
// context window that still fits, as a latency heuristic.
func recommendModels(path lalocore.Path, specialty lalocore.Specialty, candidates []lalocore.ModelDescriptor, promptTokens, maxOutput int) []string {
	wanted := specialty
	if path == lalocore.PathSimple {
		wanted = lalocore.SpecialtyGeneral
	}
	if path == lalocore.PathComplex {
		wanted = lalocore.SpecialtyRouting
	}

	primary := filterBySpecialty(candidates, wanted)
	if len(primary) == 0 {
		primary = filterBySpecialty(candidates, lalocore.SpecialtyGeneral)
	}
	if len(primary) == 0 {
		primary = candidates
	}

	sort.Slice(primary, func(i, j int) bool {
		return primary[i].ContextWindow < primary[j].ContextWindow
	})

	ids := make([]string, 0, len(primary))
	seen := make(map[string]struct{}, len(primary))
	for _, d := range primary {
		if _, ok := seen[d.ID]; ok {
			continue
		}
		seen[d.ID] = struct{}{}
		ids = append(ids, d.ID)
	}
	for _, d := range candidates {
		if _, ok := seen[d.ID]; ok {
			continue
		}
		seen[d.ID] = struct{}{}
		ids = append(ids, d.ID)
	}
	return ids
}

func filterBySpecialty(candidates []lalocore.ModelDescriptor, specialty lalocore.Specialty) []lalocore.ModelDescriptor {
	var out []lalocore.ModelDescriptor
	for _, d := range candidates {
		if d.Specialty == specialty {
			out = append(out, d)
		}
	}
	return out
}

func estimateTokens(text string) int {
	return usage.EstimateTokens(text)
}

// DecisionJSON is the structured shape a classifier model is prompted to
// return; Router.validDecision cross-checks it against live candidates
// before trusting it.
type DecisionJSON struct {
	Path          string   `json:"path"`
	Complexity    float64  `json:"complexity"`
	Confidence    float64  `json:"confidence"`
	Reason        string   `json:"reason"`
	Recommended   []string `json:"recommended"`
	RequiredTools []string `json:"required_tools"`
}

// decisionSchemaSrc is the Routing Decision JSON Schema a classifier's raw
// response is validated against before being trusted, the same
// compile-once-validate-many pattern the teacher uses for its websocket
// request frames.
const decisionSchemaSrc = `{
  "type": "object",
  "required": ["path", "recommended"],
  "properties": {
    "path": { "type": "string", "enum": ["simple", "complex", "specialized"] },
    "complexity": { "type": "number", "minimum": 0, "maximum": 1 },
    "confidence": { "type": "number", "minimum": 0, "maximum": 1 },
    "reason": { "type": "string" },
    "recommended": { "type": "array", "items": { "type": "string" }, "minItems": 1 },
    "required_tools": { "type": "array", "items": { "type": "string" } }
  }
}`

var (
	decisionSchemaOnce sync.Once
	decisionSchema     *jsonschema.Schema
	decisionSchemaErr  error
)

func compiledDecisionSchema() (*jsonschema.Schema, error) {
	decisionSchemaOnce.Do(func() {
		decisionSchema, decisionSchemaErr = jsonschema.CompileString("routing_decision.json", decisionSchemaSrc)
	})
	return decisionSchema, decisionSchemaErr
}

// ParseDecisionJSON decodes a classifier's structured JSON output into a
// RoutingDecision, validating the raw bytes against the Routing Decision
// schema first; schema-invalid or unparsable output is the "unparsable
// output" fallback trigger the spec's Router section documents.
func ParseDecisionJSON(raw []byte, demoMode bool) (lalocore.RoutingDecision, error) {
	schema, err := compiledDecisionSchema()
	if err != nil {
		return lalocore.RoutingDecision{}, fmt.Errorf("routing decision schema: %w", err)
	}
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return lalocore.RoutingDecision{}, err
	}
	if err := schema.Validate(payload); err != nil {
		return lalocore.RoutingDecision{}, fmt.Errorf("routing decision failed schema validation: %w", err)
	}

	var parsed DecisionJSON
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return lalocore.RoutingDecision{}, err
	}
	return lalocore.RoutingDecision{
		Path:          lalocore.Path(parsed.Path),
		Complexity:    parsed.Complexity,
		Confidence:    parsed.Confidence,
		Reason:        parsed.Reason,
		Recommended:   parsed.Recommended,
		RequiredTools: parsed.RequiredTools,
		DemoMode:      demoMode,
	}, nil
}
