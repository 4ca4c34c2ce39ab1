package routing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	lalocore "github.com/lalosystems/lalocore/pkg/lalocore"
)

func descriptor(id string, specialty lalocore.Specialty, contextWindow int) lalocore.ModelDescriptor {
	return lalocore.ModelDescriptor{
		ID:            id,
		Backend:       lalocore.BackendLocalGGUF,
		Specialty:     specialty,
		ContextWindow: contextWindow,
	}
}

type fakeRegistry struct {
	all []lalocore.ModelDescriptor
}

func (f *fakeRegistry) ListAvailable(specialty *lalocore.Specialty) []lalocore.ModelDescriptor {
	if specialty == nil {
		return f.all
	}
	var out []lalocore.ModelDescriptor
	for _, d := range f.all {
		if d.Specialty == *specialty {
			out = append(out, d)
		}
	}
	return out
}

func (f *fakeRegistry) Lookup(id string) (lalocore.ModelDescriptor, bool) {
	for _, d := range f.all {
		if d.ID == id {
			return d, true
		}
	}
	return lalocore.ModelDescriptor{}, false
}

func newTestRegistry() *fakeRegistry {
	return &fakeRegistry{all: []lalocore.ModelDescriptor{
		descriptor("general-small", lalocore.SpecialtyGeneral, 4096),
		descriptor("general-big", lalocore.SpecialtyGeneral, 32000),
		descriptor("code-model", lalocore.SpecialtyCode, 8192),
		descriptor("routing-model", lalocore.SpecialtyRouting, 4096),
	}}
}

func TestRouteSimplePrompt(t *testing.T) {
	r := New(newTestRegistry(), nil, Config{})
	decision, err := r.Route(context.Background(), lalocore.Request{Prompt: "What is the capital of France?"})
	require.NoError(t, err)
	require.Equal(t, lalocore.PathSimple, decision.Path)
	require.NotEmpty(t, decision.Recommended)
}

func TestRouteComplexPromptByKeyword(t *testing.T) {
	r := New(newTestRegistry(), nil, Config{})
	decision, err := r.Route(context.Background(), lalocore.Request{Prompt: "Design and analyse a research plan to optimise throughput"})
	require.NoError(t, err)
	require.Equal(t, lalocore.PathComplex, decision.Path)
}

func TestRouteToolKeywordForcesComplex(t *testing.T) {
	r := New(newTestRegistry(), nil, Config{})
	decision, err := r.Route(context.Background(), lalocore.Request{Prompt: "please search for recent news on this"})
	require.NoError(t, err)
	require.Equal(t, lalocore.PathComplex, decision.Path)
	require.Contains(t, decision.RequiredTools, "web_search")
}

func TestRouteCodeSpecialty(t *testing.T) {
	r := New(newTestRegistry(), nil, Config{})
	decision, err := r.Route(context.Background(), lalocore.Request{Prompt: "explain how to write a func in go with a package import"})
	require.NoError(t, err)
	require.Contains(t, decision.Recommended, "code-model")
}

func TestRouteNoCandidatesFitContext(t *testing.T) {
	tiny := &fakeRegistry{all: []lalocore.ModelDescriptor{descriptor("tiny", lalocore.SpecialtyGeneral, 1)}}
	r := New(tiny, nil, Config{})
	_, err := r.Route(context.Background(), lalocore.Request{Prompt: "a prompt with several words in it"})
	require.Error(t, err)
}

type fakeClassifier struct {
	decision lalocore.RoutingDecision
	err      error
}

func (f *fakeClassifier) Classify(ctx context.Context, req lalocore.Request, candidates []lalocore.ModelDescriptor) (lalocore.RoutingDecision, error) {
	return f.decision, f.err
}

func TestRoutePrefersClassifierWhenValid(t *testing.T) {
	classifier := &fakeClassifier{decision: lalocore.RoutingDecision{
		Path:        lalocore.PathSimple,
		Recommended: []string{"general-small"},
	}}
	r := New(newTestRegistry(), classifier, Config{})
	decision, err := r.Route(context.Background(), lalocore.Request{Prompt: "hi"})
	require.NoError(t, err)
	require.Equal(t, []string{"general-small"}, decision.Recommended)
}

func TestRouteFallsBackWhenClassifierRecommendsUnknownModel(t *testing.T) {
	classifier := &fakeClassifier{decision: lalocore.RoutingDecision{
		Path:        lalocore.PathSimple,
		Recommended: []string{"nonexistent-model"},
	}}
	r := New(newTestRegistry(), classifier, Config{})
	decision, err := r.Route(context.Background(), lalocore.Request{Prompt: "hi"})
	require.NoError(t, err)
	require.NotContains(t, decision.Recommended, "nonexistent-model")
}

func TestParseDecisionJSONRoundTrip(t *testing.T) {
	raw := []byte(`{"path":"simple","complexity":0.1,"confidence":0.9,"reason":"short prompt","recommended":["general-small"],"required_tools":[]}`)
	decision, err := ParseDecisionJSON(raw, false)
	require.NoError(t, err)
	require.Equal(t, lalocore.PathSimple, decision.Path)
	require.Equal(t, 0.9, decision.Confidence)
}

func TestParseDecisionJSONRejectsSchemaViolations(t *testing.T) {
	cases := [][]byte{
		[]byte(`{"path":"not-a-real-path","recommended":["m1"]}`),
		[]byte(`{"path":"simple","recommended":[]}`),
		[]byte(`{"path":"simple","confidence":1.5,"recommended":["m1"]}`),
	}
	for _, raw := range cases {
		_, err := ParseDecisionJSON(raw, false)
		require.Error(t, err)
	}
}
