package agent

import (
	"sort"
	"sync"

	"github.com/tears-mysthrala/agents-orchestration-system/internal/workflow"
)

// Registry maps agent ids to adapters. It is populated once at startup by the
// process entry point and injected into the coordinator; new agent kinds
// implement workflow.Adapter rather than being special-cased by name.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]workflow.Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]workflow.Adapter)}
}

// Register binds an adapter to an agent id, replacing any previous binding.
func (r *Registry) Register(id string, adapter workflow.Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[id] = adapter
}

// Lookup implements workflow.AdapterRegistry.
func (r *Registry) Lookup(agentID string) (workflow.Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[agentID]
	return adapter, ok
}

// IDs returns the registered agent ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
