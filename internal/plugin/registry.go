package plugin

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// InputFactory builds an input plugin from its configuration block.
type InputFactory func(cfg Config, log zerolog.Logger) (Input, error)

// ActionFactory builds an action plugin from its configuration block.
type ActionFactory func(cfg Config, log zerolog.Logger) (Action, error)

// Registry maps type tags to plugin constructors. It is populated at start-up
// and read when orchestrators build their plugin sets.
type Registry struct {
	mu      sync.RWMutex
	inputs  map[string]InputFactory
	actions map[string]ActionFactory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		inputs:  make(map[string]InputFactory),
		actions: make(map[string]ActionFactory),
	}
}

// RegisterInput binds an input factory to a tag. The tag is matched against
// Config.Driver first and Config.Type second.
func (r *Registry) RegisterInput(tag string, f InputFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inputs[tag] = f
}

// RegisterAction binds an action factory to a tag.
func (r *Registry) RegisterAction(tag string, f ActionFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions[tag] = f
}

// NewInput builds the input plugin for cfg. Tags without a factory resolve to
// a NoopInput, never an error; the returned bool reports whether a real
// factory was used.
func (r *Registry) NewInput(cfg Config, log zerolog.Logger) (Input, bool, error) {
	r.mu.RLock()
	f, ok := r.inputs[cfg.Driver]
	if !ok {
		f, ok = r.inputs[cfg.Type]
	}
	r.mu.RUnlock()

	if !ok {
		return NewNoopInput(cfg), false, nil
	}
	in, err := f(cfg, log)
	return in, true, err
}

// NewAction builds the action plugin for cfg, falling back to a NoopAction.
func (r *Registry) NewAction(cfg Config, log zerolog.Logger) (Action, bool, error) {
	r.mu.RLock()
	f, ok := r.actions[cfg.Driver]
	if !ok {
		f, ok = r.actions[cfg.Type]
	}
	r.mu.RUnlock()

	if !ok {
		return NewNoopAction(cfg), false, nil
	}
	act, err := f(cfg, log)
	return act, true, err
}

// InputTags returns the registered input tags, sorted.
func (r *Registry) InputTags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]string, 0, len(r.inputs))
	for t := range r.inputs {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

// ActionTags returns the registered action tags, sorted.
func (r *Registry) ActionTags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]string, 0, len(r.actions))
	for t := range r.actions {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}
