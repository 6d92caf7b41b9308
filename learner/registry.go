package learner

import (
	"sort"
	"sync"

	"github.com/wippyai/model-runtime/errors"
	"github.com/wippyai/model-runtime/model"
)

// Built-in learner names.
const (
	NameSGD = "sgd"
	NameOLS = "ols"
)

// Registry maps learner names to factories.
type Registry struct {
	factories map[string]model.Factory
	mu        sync.RWMutex
}

// NewRegistry returns a registry holding the built-in learners.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]model.Factory)}
	r.Register(NameSGD, func(h model.Hyperparams) (model.Learner, error) { return NewSGD(h), nil })
	r.Register(NameOLS, func(h model.Hyperparams) (model.Learner, error) { return NewOLS(h), nil })
	return r
}

// Register adds or replaces a factory.
func (r *Registry) Register(name string, f model.Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New validates h and builds the learner it names.
func (r *Registry) New(h model.Hyperparams) (model.Learner, error) {
	if err := h.Validate(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	f, ok := r.factories[h.Learner]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.NotFound(errors.PhaseFit, "learner", h.Learner)
	}
	return f(h)
}
