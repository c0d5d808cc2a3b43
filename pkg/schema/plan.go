package schema

import (
	"encoding/json"
	"fmt"
)

// ExecutionType identifies which backend an action dispatches to.
type ExecutionType string

const (
	// ExecutionQuery evaluates a parameterized query against the active
	// factory snapshot. The wire value keeps the ontology's historical name.
	ExecutionQuery ExecutionType = "sparql_query"
	// ExecutionSubmodelFetch retrieves an asset submodel document from the
	// external registry by target id.
	ExecutionSubmodelFetch ExecutionType = "submodel_fetch"
	// ExecutionContainerExec hands a job batch to an external containerized
	// processor and binds its structured result.
	ExecutionContainerExec ExecutionType = "container_exec"
	// ExecutionSimulate runs the production simulation backend over a job
	// batch assembled from prior bindings and master data.
	ExecutionSimulate ExecutionType = "simulate"
)

// KnownExecutionType reports whether t is a dispatchable execution type.
func KnownExecutionType(t ExecutionType) bool {
	switch t {
	case ExecutionQuery, ExecutionSubmodelFetch, ExecutionContainerExec, ExecutionSimulate:
		return true
	}
	return false
}

// Action is one step of a resolved plan. Params carries the opaque
// annotation payload from the knowledge base (query text, engine choice,
// backend hints); the resolver passes it through untouched.
type Action struct {
	ID             string          `json:"id"`
	Type           ExecutionType   `json:"execution_type"`
	TargetID       string          `json:"target_id,omitempty"`
	OutputVariable string          `json:"output_variable,omitempty"`
	Order          int             `json:"order"`
	Params         json.RawMessage `json:"params,omitempty"`
	Final          bool            `json:"final,omitempty"`
}

// ActionPlan is the ordered action sequence resolved for one goal.
type ActionPlan struct {
	Goal    string   `json:"goal"`
	Actions []Action `json:"actions"`
}

// Len returns the number of actions in the plan.
func (p *ActionPlan) Len() int {
	return len(p.Actions)
}

// FinalAction returns the action whose binding becomes the goal result:
// the first action marked final, else the last action declaring an output
// variable. ok is false when no action produces output.
func (p *ActionPlan) FinalAction() (Action, bool) {
	for _, a := range p.Actions {
		if a.Final && a.OutputVariable != "" {
			return a, true
		}
	}
	for i := len(p.Actions) - 1; i >= 0; i-- {
		if p.Actions[i].OutputVariable != "" {
			return p.Actions[i], true
		}
	}
	return Action{}, false
}

// Validate checks the plan invariants: non-empty, order values contiguous
// ascending from 1, known execution types, unique action ids, and unique
// output variables (two actions binding the same variable would collide at
// runtime).
func (p *ActionPlan) Validate() *ValidationResult {
	result := &ValidationResult{}

	if len(p.Actions) == 0 {
		result.AddError("actions", ErrCodeMalformedPlan, "plan has no actions")
		return result
	}

	seenIDs := make(map[string]bool, len(p.Actions))
	seenVars := make(map[string]string, len(p.Actions))

	for i, a := range p.Actions {
		path := fmt.Sprintf("actions[%d]", i)

		if a.ID == "" {
			result.AddError(path+".id", ErrCodeMalformedPlan, "action id is empty")
		} else if seenIDs[a.ID] {
			result.AddError(path+".id", ErrCodeMalformedPlan,
				fmt.Sprintf("duplicate action id %q", a.ID))
		}
		seenIDs[a.ID] = true

		if !KnownExecutionType(a.Type) {
			result.AddError(path+".execution_type", ErrCodeMalformedPlan,
				fmt.Sprintf("unknown execution type %q", a.Type))
		}

		if a.Order != i+1 {
			result.AddError(path+".order", ErrCodeMalformedPlan,
				fmt.Sprintf("order %d at position %d; orders must ascend contiguously from 1", a.Order, i))
		}

		if a.OutputVariable != "" {
			if prev, dup := seenVars[a.OutputVariable]; dup {
				result.AddError(path+".output_variable", ErrCodeRebind,
					fmt.Sprintf("output variable %q already bound by action %q", a.OutputVariable, prev))
			}
			seenVars[a.OutputVariable] = a.ID
		}

		if a.Final && a.OutputVariable == "" {
			result.AddError(path+".final", ErrCodeMalformedPlan,
				fmt.Sprintf("action %q marked final but declares no output variable", a.ID))
		}
	}

	return result
}
