// Package confidence implements the Confidence Validator: it scores an
// (output, request, optional sources) triple along four axes using a
// validation-specialty model, flags evasive text with a deterministic
// regex pass independent of the model's own scores, and maps the result
// to an accept/retry/escalate recommendation.
package confidence

import (
	"context"
	"regexp"
	"strings"

	lalocore "github.com/lalosystems/lalocore/pkg/lalocore"
)

const (
	acceptThresholdDefault   = 0.8
	escalateThresholdDefault = 0.6
)

// Scorer invokes a validation-specialty model and returns its raw
// four-axis scores for an output. Implementations are expected to use a
// low sampling temperature for stability, mirroring the Router's
// classifier call.
type Scorer interface {
	Score(ctx context.Context, output string, req lalocore.Request, sources []string) (lalocore.ConfidenceComponents, error)
}

// Config tunes the accept/escalate thresholds; zero values fall back to
// the spec-documented defaults (0.8 / 0.6).
type Config struct {
	AcceptThreshold   float64
	EscalateThreshold float64

	// Patterns are additional regex patterns (Go regexp syntax) matched
	// against the first and last sentence of an output to flag evasive
	// hedging/refusal language. They're appended to DefaultEvasivePatterns,
	// so an operator can extend detection for a deployment's own house
	// style of refusal without a code change.
	Patterns []string
}

// DefaultEvasivePatterns matches hedging/refusal language at the start or
// end of an output that carries no substantive content alongside it. This
// is a short, tunable set, not an exhaustive classifier.
var DefaultEvasivePatterns = []string{
	`(?i)^i('m| am) (not able|unable) to`,
	`(?i)^i cannot (help|assist|answer)`,
	`(?i)^as an ai`,
	`(?i)i don't have (enough|sufficient) information`,
	`(?i)i('m| am) not (sure|certain) (about|how)`,
	`(?i)please consult (a|an) (professional|expert)`,
}

// Validator scores model output and produces a Confidence Report.
type Validator struct {
	scorer  Scorer
	cfg     Config
	evasive []*regexp.Regexp
}

// New creates a Validator. scorer may be nil, in which case every report
// degrades to the conservative neutral report described in Score's doc
// comment.
func New(scorer Scorer, cfg Config) *Validator {
	if cfg.AcceptThreshold <= 0 {
		cfg.AcceptThreshold = acceptThresholdDefault
	}
	if cfg.EscalateThreshold <= 0 {
		cfg.EscalateThreshold = escalateThresholdDefault
	}

	patterns := make([]*regexp.Regexp, 0, len(DefaultEvasivePatterns)+len(cfg.Patterns))
	for _, pattern := range append(append([]string{}, DefaultEvasivePatterns...), cfg.Patterns...) {
		if re, err := regexp.Compile(pattern); err == nil {
			patterns = append(patterns, re)
		}
	}

	return &Validator{scorer: scorer, cfg: cfg, evasive: patterns}
}

// Score scores output against req and optional sources. When the
// validator model is unavailable or its output cannot be parsed, Score
// returns a neutral report (overall=0.6, evasive=false,
// recommendation=accept) carrying a note that the confidence signal is
// degraded — the conservative choice of surfacing delivery rather than
// blocking it on validator failure.
func (v *Validator) Score(ctx context.Context, output string, req lalocore.Request, sources []string) lalocore.ConfidenceReport {
	evasive := v.isEvasive(output)

	if v.scorer == nil {
		return v.degradedReport()
	}

	components, err := v.scorer.Score(ctx, output, req, sources)
	if err != nil {
		return v.degradedReport()
	}
	components = clampComponents(components)

	overall := (components.Factual + components.Consistent + components.Complete + components.Grounded) / 4.0

	return lalocore.ConfidenceReport{
		Overall:        overall,
		Components:     components,
		Evasive:        evasive,
		Recommendation: v.recommend(overall, evasive),
	}
}

func (v *Validator) degradedReport() lalocore.ConfidenceReport {
	return lalocore.ConfidenceReport{
		Overall:        escalateThresholdDefault,
		Evasive:        false,
		Recommendation: lalocore.RecommendAccept,
		Notes:          []string{"confidence signal degraded: validator unavailable or unparsable output"},
	}
}

func (v *Validator) recommend(overall float64, evasive bool) lalocore.Recommendation {
	switch {
	case overall >= v.cfg.AcceptThreshold && evasive:
		return lalocore.RecommendRetry
	case overall >= v.cfg.AcceptThreshold:
		return lalocore.RecommendAccept
	case overall >= v.cfg.EscalateThreshold:
		return lalocore.RecommendRetry
	default:
		return lalocore.RecommendEscalate
	}
}

func clampComponents(c lalocore.ConfidenceComponents) lalocore.ConfidenceComponents {
	return lalocore.ConfidenceComponents{
		Factual:    clamp01(c.Factual),
		Consistent: clamp01(c.Consistent),
		Complete:   clamp01(c.Complete),
		Grounded:   clamp01(c.Grounded),
	}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func (v *Validator) isEvasive(output string) bool {
	sentences := splitSentences(output)
	if len(sentences) == 0 {
		return false
	}
	first := sentences[0]
	last := sentences[len(sentences)-1]
	for _, pattern := range v.evasive {
		if pattern.MatchString(first) || pattern.MatchString(last) {
			return true
		}
	}
	return false
}

func splitSentences(text string) []string {
	raw := regexp.MustCompile(`[.!?]+\s*`).Split(strings.TrimSpace(text), -1)
	var out []string
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
