package agent

import (
	"sort"
	"sync"

	"github.com/fabriqa/takt/pkg/schema"
)

// ExecutionContext is the variable store for one plan run: a bind-once
// mapping from output variable name to the value the producing action
// returned. Values are frozen (deep-copied) on insert and copied again on
// read, so no action can mutate another action's binding in place.
//
// A plan runs sequentially, but the context is still locked: the event hub
// and tests may inspect a run while it executes.
type ExecutionContext struct {
	runID    string
	mu       sync.RWMutex
	bindings map[string]any
	producer map[string]string // variable -> action id that bound it
}

// NewExecutionContext creates an empty context for one run.
func NewExecutionContext() *ExecutionContext {
	return &ExecutionContext{
		bindings: make(map[string]any),
		producer: make(map[string]string),
	}
}

// RunID returns the id of the run this context belongs to. Empty for
// contexts created outside Agent.Run.
func (ec *ExecutionContext) RunID() string { return ec.runID }

// Bind registers an action's output under a variable name. Rebinding an
// existing variable is a fatal plan error: two producers for one name make
// every later read ambiguous.
func (ec *ExecutionContext) Bind(variable, actionID string, value any) error {
	if variable == "" {
		return schema.NewErrorf(schema.ErrCodeValidation,
			"action %q binds an empty variable name", actionID)
	}

	ec.mu.Lock()
	defer ec.mu.Unlock()

	if prev, exists := ec.producer[variable]; exists {
		return schema.NewErrorf(schema.ErrCodeRebind,
			"variable %q already bound by action %q", variable, prev).
			WithDetails(map[string]any{"variable": variable, "bound_by": prev})
	}

	ec.bindings[variable] = deepCopyAny(value)
	ec.producer[variable] = actionID
	return nil
}

// Get returns a copy of a bound value.
func (ec *ExecutionContext) Get(variable string) (any, bool) {
	ec.mu.RLock()
	defer ec.mu.RUnlock()

	v, ok := ec.bindings[variable]
	if !ok {
		return nil, false
	}
	return deepCopyAny(v), true
}

// Has reports whether a variable is bound.
func (ec *ExecutionContext) Has(variable string) bool {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	_, ok := ec.bindings[variable]
	return ok
}

// Variables returns a copy of all bindings, suitable as the context
// namespace of an interpolation scope.
func (ec *ExecutionContext) Variables() map[string]any {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	return deepCopyMap(ec.bindings)
}

// Names lists the bound variable names, sorted.
func (ec *ExecutionContext) Names() []string {
	ec.mu.RLock()
	defer ec.mu.RUnlock()

	names := make([]string, 0, len(ec.bindings))
	for n := range ec.bindings {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Producer returns the id of the action that bound a variable.
func (ec *ExecutionContext) Producer(variable string) (string, bool) {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	id, ok := ec.producer[variable]
	return id, ok
}

// deepCopyMap creates a deep copy of a map[string]any.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = deepCopyAny(v)
	}
	return cp
}

// deepCopyAny recursively deep-copies a value. Maps and slices are copied;
// primitives are immutable and pass through.
func deepCopyAny(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cp := make([]any, len(val))
		for i, item := range val {
			cp[i] = deepCopyAny(item)
		}
		return cp
	default:
		return val
	}
}
