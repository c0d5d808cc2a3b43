// Package actions implements the execution backends plan actions dispatch
// to: snapshot queries, asset registry submodel fetches, containerized job
// processing, and production simulation. Each backend is a Handler keyed by
// its execution type; the agent interpolates action params before dispatch,
// so handlers receive fully resolved values.
package actions

import (
	"context"
	"encoding/json"

	"github.com/fabriqa/takt/internal/expressions"
	"github.com/fabriqa/takt/pkg/schema"
)

// Handler executes actions of one execution type.
type Handler interface {
	Type() schema.ExecutionType
	Execute(ctx context.Context, req Request) (*Response, error)
}

// Request carries one interpolated action to its handler. Params is the
// decoded annotation payload; Scope exposes the run's request parameters and
// prior bindings for handlers that accept top-level fallbacks (a simulate
// action may take product_id from the goal request instead of its params).
type Request struct {
	Action schema.Action
	Params map[string]any
	Scope  *expressions.Scope
}

// Response is the value a completed action binds under its output variable.
type Response struct {
	Value any
}

// Lookup returns the value for key from the action's params, falling back
// to the run's request parameters when the action does not set it.
func (r Request) Lookup(key string) (any, bool) {
	if v, ok := r.Params[key]; ok {
		return v, true
	}
	if r.Scope != nil && r.Scope.Params != nil {
		v, ok := r.Scope.Params[key]
		return v, ok
	}
	return nil, false
}

// LookupString is Lookup constrained to non-empty strings.
func (r Request) LookupString(key string) (string, bool) {
	v, ok := r.Lookup(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// LookupInt is Lookup for integer values. Params decoded from JSON carry
// numbers as float64; values threaded from Go code may be int or int64.
func (r Request) LookupInt(key string) (int, bool) {
	v, ok := r.Lookup(key)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	}
	return 0, false
}

// DecodeParams unmarshals an interpolated params payload into the map
// handlers consume. Nil or empty payloads decode to an empty map so
// handlers never see a nil Params.
func DecodeParams(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var params map[string]any
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeMalformedPlan,
			"action params are not a JSON object: %s", err.Error()).WithCause(err)
	}
	if params == nil {
		params = map[string]any{}
	}
	return params, nil
}
