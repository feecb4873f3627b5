package tools

import (
	"sort"
	"sync"

	"backoffice/internal/workflow"
	"backoffice/pkg/errors"
)

// Registry stores tool descriptors by (name, hosting location) for
// resolution and read-only discovery. Resolution is pure: an unknown pair
// is reported as an error, never defaulted to a no-op tool.
type Registry struct {
	mu          sync.RWMutex
	descriptors map[string]Descriptor
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		descriptors: make(map[string]Descriptor),
	}
}

// Register adds or replaces a descriptor.
func (r *Registry) Register(d Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.descriptors[d.Key()] = d
}

// Resolve returns the descriptor registered for the (name, hostedBy) pair.
func (r *Registry) Resolve(name string, hostedBy workflow.HostedBy) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.descriptors[Descriptor{Name: name, HostedBy: hostedBy}.Key()]
	if !ok {
		return Descriptor{}, errors.Wrapf(errors.ErrToolNotFound, "%s hosted by %s", name, hostedBy)
	}
	return d, nil
}

// List returns all registered descriptors sorted by name then hosting
// location, for the discovery endpoint.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.descriptors))
	for _, d := range r.descriptors {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].HostedBy < out[j].HostedBy
	})
	return out
}
