package confidence

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	lalocore "github.com/lalosystems/lalocore/pkg/lalocore"
)

type fakeScorer struct {
	components lalocore.ConfidenceComponents
	err        error
}

func (f *fakeScorer) Score(ctx context.Context, output string, req lalocore.Request, sources []string) (lalocore.ConfidenceComponents, error) {
	return f.components, f.err
}

func highScore() lalocore.ConfidenceComponents {
	return lalocore.ConfidenceComponents{Factual: 0.9, Consistent: 0.9, Complete: 0.9, Grounded: 0.9}
}

func TestScoreAcceptsHighConfidenceNonEvasive(t *testing.T) {
	v := New(&fakeScorer{components: highScore()}, Config{})
	report := v.Score(context.Background(), "Paris is the capital of France.", lalocore.Request{}, nil)
	require.Equal(t, lalocore.RecommendAccept, report.Recommendation)
	require.False(t, report.Evasive)
}

func TestScoreRetriesHighConfidenceButEvasive(t *testing.T) {
	v := New(&fakeScorer{components: highScore()}, Config{})
	report := v.Score(context.Background(), "I'm not able to help with that specific request.", lalocore.Request{}, nil)
	require.True(t, report.Evasive)
	require.Equal(t, lalocore.RecommendRetry, report.Recommendation)
}

func TestScoreMidRangeRetries(t *testing.T) {
	mid := lalocore.ConfidenceComponents{Factual: 0.7, Consistent: 0.7, Complete: 0.7, Grounded: 0.7}
	v := New(&fakeScorer{components: mid}, Config{})
	report := v.Score(context.Background(), "It might be around 40 degrees.", lalocore.Request{}, nil)
	require.Equal(t, lalocore.RecommendRetry, report.Recommendation)
}

func TestScoreLowConfidenceEscalates(t *testing.T) {
	low := lalocore.ConfidenceComponents{Factual: 0.2, Consistent: 0.2, Complete: 0.2, Grounded: 0.2}
	v := New(&fakeScorer{components: low}, Config{})
	report := v.Score(context.Background(), "Something vague.", lalocore.Request{}, nil)
	require.Equal(t, lalocore.RecommendEscalate, report.Recommendation)
}

func TestScoreDegradesGracefullyWhenScorerFails(t *testing.T) {
	v := New(&fakeScorer{err: errors.New("model unavailable")}, Config{})
	report := v.Score(context.Background(), "anything", lalocore.Request{}, nil)
	require.Equal(t, 0.6, report.Overall)
	require.False(t, report.Evasive)
	require.Equal(t, lalocore.RecommendAccept, report.Recommendation)
	require.NotEmpty(t, report.Notes)
}

func TestScoreDegradesGracefullyWhenNoScorerConfigured(t *testing.T) {
	v := New(nil, Config{})
	report := v.Score(context.Background(), "anything", lalocore.Request{}, nil)
	require.Equal(t, lalocore.RecommendAccept, report.Recommendation)
}

func TestScoreHonorsCustomEvasivePatterns(t *testing.T) {
	v := New(&fakeScorer{components: highScore()}, Config{Patterns: []string{`(?i)^per (our|the) house style`}})
	report := v.Score(context.Background(), "Per our house style, no further detail is provided.", lalocore.Request{}, nil)
	require.True(t, report.Evasive, "a pattern supplied through Config.Patterns should flag evasive text alongside the defaults")
}

func TestScoreIgnoresInvalidCustomPattern(t *testing.T) {
	v := New(&fakeScorer{components: highScore()}, Config{Patterns: []string{"(unclosed"}})
	report := v.Score(context.Background(), "I'm not able to help with that specific request.", lalocore.Request{}, nil)
	require.True(t, report.Evasive, "an unparsable custom pattern should be skipped, not break the default set")
}

func TestScoreClampsOutOfRangeComponents(t *testing.T) {
	wild := lalocore.ConfidenceComponents{Factual: 1.5, Consistent: -0.5, Complete: 0.5, Grounded: 0.5}
	v := New(&fakeScorer{components: wild}, Config{})
	report := v.Score(context.Background(), "stable text here.", lalocore.Request{}, nil)
	require.Equal(t, 1.0, report.Components.Factual)
	require.Equal(t, 0.0, report.Components.Consistent)
}
