// Package registry implements the Model Registry: a process-wide,
// immutable-after-init catalogue of Model Descriptors, adapted from the
// teacher's models.Catalog (provider/tier/capability filtering) but keyed
// to spec.md's Backend/Specialty vocabulary instead of provider/tier.
package registry

import (
	"fmt"
	"os"
	"sort"
	"sync"

	lalocore "github.com/lalosystems/lalocore/pkg/lalocore"
)

// Registry enumerates a declarative catalogue of Model Descriptors. It is
// built once at startup via New and never mutated afterward; Lookup/List
// only read. A controlled restart is required to pick up catalogue
// changes.
type Registry struct {
	mu          sync.RWMutex
	descriptors map[string]*lalocore.ModelDescriptor
	order       []string
}

// New validates and loads a set of descriptors into an immutable registry.
// Validation marks entries unavailable rather than erroring: a local_gguf
// descriptor whose file is missing/unreadable, or a descriptor naming an
// unrecognised backend, is kept in the catalogue with Unavailable=true.
func New(descriptors []lalocore.ModelDescriptor) (*Registry, error) {
	r := &Registry{
		descriptors: make(map[string]*lalocore.ModelDescriptor, len(descriptors)),
	}
	for i := range descriptors {
		d := descriptors[i]
		if d.ID == "" {
			return nil, fmt.Errorf("registry: descriptor at index %d has empty id", i)
		}
		if _, exists := r.descriptors[d.ID]; exists {
			return nil, fmt.Errorf("registry: duplicate model id %q", d.ID)
		}
		validateDescriptor(&d)
		r.descriptors[d.ID] = &d
		r.order = append(r.order, d.ID)
	}
	return r, nil
}

func validateDescriptor(d *lalocore.ModelDescriptor) {
	switch d.Backend {
	case lalocore.BackendLocalGGUF:
		if d.FilePathOrRemote == "" {
			d.Unavailable = true
			return
		}
		info, err := os.Stat(d.FilePathOrRemote)
		if err != nil || info.IsDir() {
			d.Unavailable = true
		}
	case lalocore.BackendCloudOpenAI, lalocore.BackendCloudAnthropic, lalocore.BackendCloudOther:
		// Cloud entries only need a known backend, already the case here.
	default:
		d.Unavailable = true
	}
}

// Lookup returns the descriptor for id, or false if no such model exists
// (regardless of availability — unavailable models remain looked-up-able
// so callers can report why a request was rejected).
func (r *Registry) Lookup(id string) (lalocore.ModelDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descriptors[id]
	if !ok {
		return lalocore.ModelDescriptor{}, false
	}
	return *d, true
}

// Exists reports whether id names a known model, available or not.
func (r *Registry) Exists(id string) bool {
	_, ok := r.Lookup(id)
	return ok
}

// Available reports whether id names a known, available model.
func (r *Registry) Available(id string) bool {
	d, ok := r.Lookup(id)
	return ok && !d.Unavailable
}

// List returns descriptors, optionally filtered by specialty, in
// registration order. Unavailable descriptors are included so operators
// can audit them; callers that need candidate models should filter on
// Available() too.
func (r *Registry) List(specialty *lalocore.Specialty) []lalocore.ModelDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]lalocore.ModelDescriptor, 0, len(r.order))
	for _, id := range r.order {
		d := r.descriptors[id]
		if specialty != nil && d.Specialty != *specialty {
			continue
		}
		result = append(result, *d)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// ListAvailable is List filtered to Unavailable==false descriptors.
func (r *Registry) ListAvailable(specialty *lalocore.Specialty) []lalocore.ModelDescriptor {
	all := r.List(specialty)
	result := make([]lalocore.ModelDescriptor, 0, len(all))
	for _, d := range all {
		if !d.Unavailable {
			result = append(result, d)
		}
	}
	return result
}

// FitsContext reports whether a prompt of the given estimated token length
// plus the requested output tokens fits within the descriptor's context
// window — used by the Router's tie-break rule and the Handler's
// pre-flight context_overflow check.
func FitsContext(d lalocore.ModelDescriptor, promptTokens, maxOutputTokens int) bool {
	return promptTokens+maxOutputTokens <= d.ContextWindow
}
