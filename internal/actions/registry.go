package actions

import (
	"sort"
	"sync"

	"github.com/fabriqa/takt/pkg/schema"
)

// Registry maps execution types to their handlers. Safe for concurrent use;
// registration happens at wiring time, lookups on every dispatched action.
type Registry struct {
	mu       sync.RWMutex
	handlers map[schema.ExecutionType]Handler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[schema.ExecutionType]Handler),
	}
}

// Register adds a handler for its execution type. Returns an error on a
// duplicate type.
func (r *Registry) Register(h Handler) error {
	if h == nil {
		return schema.NewError(schema.ErrCodeValidation, "handler is nil")
	}
	t := h.Type()
	if t == "" {
		return schema.NewError(schema.ErrCodeValidation, "handler declares no execution type")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[t]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "execution type %q already registered", t)
	}

	r.handlers[t] = h
	return nil
}

// Get retrieves the handler for an execution type. A missing handler is a
// wiring defect, not a plan error: plans are validated against known types
// before dispatch.
func (r *Registry) Get(t schema.ExecutionType) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[t]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeInternal, "no handler registered for execution type %q", t)
	}
	return h, nil
}

// Has checks whether an execution type has a handler.
func (r *Registry) Has(t schema.ExecutionType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[t]
	return ok
}

// Types returns the registered execution types, sorted.
func (r *Registry) Types() []schema.ExecutionType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]schema.ExecutionType, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
