package backend

import (
	"fmt"
	"sort"
	"sync"
)

// Info describes a registered backend for listing.
type Info struct {
	Name string `json:"name"`

	// Kind is "cli" for capability-set backends and "pid" for process-signal backends.
	Kind string `json:"kind"`

	// Probe reports whether the backend can check liveness cheaply.
	Probe bool `json:"probe"`
}

// Backend kinds reported by Info.
const (
	KindCLI = "cli"
	KindPID = "pid"
)

// Registry maps backend tags to capability-set implementations.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Backend
}

// NewRegistry creates an empty backend registry.
func NewRegistry() *Registry {
	return &Registry{
		backends: make(map[string]Backend),
	}
}

// Register adds a backend to the registry under the given tag, replacing
// any previous registration.
func (r *Registry) Register(name string, b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[name] = b
}

// Resolve returns the backend registered under name.
func (r *Registry) Resolve(name string) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.backends[name]
	if !ok {
		return nil, fmt.Errorf("backend %q is not registered", name)
	}
	return b, nil
}

// List returns information about all registered backends, sorted by name
// for a stable API response.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.backends))
	for name, b := range r.backends {
		infos = append(infos, Info{
			Name:  name,
			Kind:  KindCLI,
			Probe: b.BuildProbe(TargetRef{ID: name}, 0) != nil,
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}
