package engine

import (
	"errors"
	"fmt"
	"sync"

	"github.com/petrijr/durable/pkg/api"
)

// registry holds the orchestrators and activities known to an engine.
type registry struct {
	mu            sync.RWMutex
	orchestrators map[string]api.Orchestrator
	activities    map[string]api.Activity
}

func newRegistry() *registry {
	return &registry{
		orchestrators: make(map[string]api.Orchestrator),
		activities:    make(map[string]api.Activity),
	}
}

func (r *registry) RegisterOrchestrator(name string, fn api.Orchestrator) error {
	if name == "" {
		return errors.New("orchestrator name is required")
	}
	if fn == nil {
		return fmt.Errorf("orchestrator %q has no function", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orchestrators[name]; exists {
		return fmt.Errorf("orchestrator %q already registered", name)
	}
	r.orchestrators[name] = fn
	return nil
}

func (r *registry) RegisterActivity(name string, fn api.Activity) error {
	if name == "" {
		return errors.New("activity name is required")
	}
	if fn == nil {
		return fmt.Errorf("activity %q has no function", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.activities[name]; exists {
		return fmt.Errorf("activity %q already registered", name)
	}
	r.activities[name] = fn
	return nil
}

func (r *registry) Orchestrator(name string) (api.Orchestrator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.orchestrators[name]
	return fn, ok
}

func (r *registry) Activity(name string) (api.Activity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.activities[name]
	return fn, ok
}
