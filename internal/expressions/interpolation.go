package expressions

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fabriqa/takt/pkg/schema"
)

// Scope holds the data available for ${{...}} resolution in action params.
type Scope struct {
	Params  map[string]any // goal request parameters (date, product_id, quantity, ...)
	Context map[string]any // output variables bound by earlier actions in the plan
	Run     map[string]any // run metadata (id, goal, started_at)
}

// Interpolator resolves ${{...}} references in action params before dispatch.
// Supported namespaces: params.*, context.*, run.*.
type Interpolator struct{}

// NewInterpolator creates a new Interpolator.
func NewInterpolator() *Interpolator {
	return &Interpolator{}
}

// Resolve interpolates raw JSON params against the scope and returns the
// resolved JSON bytes. Empty input passes through unchanged.
func (interp *Interpolator) Resolve(raw json.RawMessage, scope *Scope) (json.RawMessage, error) {
	if len(raw) == 0 {
		return raw, nil
	}

	input := string(raw)

	var result strings.Builder
	result.Grow(len(input))

	i := 0
	for i < len(input) {
		// Look for ${{ marker.
		idx := strings.Index(input[i:], "${{")
		if idx == -1 {
			result.WriteString(input[i:])
			break
		}

		// Write everything before the marker.
		result.WriteString(input[i : i+idx])
		start := i + idx + 3 // skip "${{".

		// Find the closing }}.
		end := strings.Index(input[start:], "}}")
		if end == -1 {
			return nil, schema.NewError(schema.ErrCodeInterpolation, "unclosed ${{ expression")
		}
		end += start

		expr := strings.TrimSpace(input[start:end])

		// Reject recursive interpolation: no nested ${{ inside the expression.
		if strings.Contains(expr, "${{") {
			return nil, schema.NewError(schema.ErrCodeInterpolation,
				"nested interpolation not allowed: ${{...}} cannot contain ${{")
		}

		if expr == "" {
			return nil, schema.NewError(schema.ErrCodeInterpolation, "empty variable reference: ${{  }}")
		}

		val, err := interp.resolveExpr(expr, scope)
		if err != nil {
			return nil, err
		}

		// Embed the resolved value into the JSON string.
		result.WriteString(marshalInline(val))

		i = end + 2 // skip "}}".
	}

	return json.RawMessage(result.String()), nil
}

// ResolveString interpolates ${{...}} references in a bare string, such as an
// action's target id. Strings resolve unquoted, so references compose with
// surrounding text.
func (interp *Interpolator) ResolveString(s string, scope *Scope) (string, error) {
	if !strings.Contains(s, "${{") {
		return s, nil
	}
	resolved, err := interp.Resolve(json.RawMessage(s), scope)
	if err != nil {
		return "", err
	}
	return string(resolved), nil
}

// resolveExpr resolves a single expression path like "context.open_jobs.count".
func (interp *Interpolator) resolveExpr(expr string, scope *Scope) (any, error) {
	parts := strings.SplitN(expr, ".", 2)
	namespace := parts[0]

	if len(parts) < 2 || parts[1] == "" {
		return nil, schema.NewErrorf(schema.ErrCodeInterpolation,
			"invalid reference %q: expected %s.<field>", expr, namespace).
			WithDetails(map[string]any{"expression": expr})
	}

	fieldPath := parts[1]

	switch namespace {
	case "params":
		return interp.resolveFromMap(scope.Params, fieldPath, expr, "params")
	case "context":
		return interp.resolveContext(fieldPath, expr, scope)
	case "run":
		return interp.resolveFromMap(scope.Run, fieldPath, expr, "run")
	default:
		available := []string{"params", "context", "run"}
		return nil, schema.NewErrorf(schema.ErrCodeInterpolation,
			"unknown namespace %q in ${{%s}}; available: %s", namespace, expr, strings.Join(available, ", ")).
			WithDetails(map[string]any{"expression": expr, "available_namespaces": available})
	}
}

// resolveContext resolves context.<variable>[.<field>...] against the bound
// output variables. A missing variable lists what has been bound so far,
// which makes out-of-order plan references easy to diagnose.
func (interp *Interpolator) resolveContext(fieldPath, expr string, scope *Scope) (any, error) {
	if scope.Context == nil {
		return nil, interp.missingVarErr(expr, firstSegment(fieldPath), scope)
	}

	// Try direct key lookup first (supports variable names with dots).
	if val, ok := scope.Context[fieldPath]; ok {
		return val, nil
	}

	variable := firstSegment(fieldPath)
	root, ok := scope.Context[variable]
	if !ok {
		return nil, interp.missingVarErr(expr, variable, scope)
	}

	if variable == fieldPath {
		return root, nil
	}

	return interp.traversePath(root, strings.TrimPrefix(fieldPath, variable+"."), expr)
}

// resolveFromMap resolves a dot-delimited field path from a map.
func (interp *Interpolator) resolveFromMap(data map[string]any, fieldPath, expr, namespace string) (any, error) {
	if data == nil {
		return nil, schema.NewErrorf(schema.ErrCodeInterpolation,
			"cannot resolve %q: %s scope is empty", expr, namespace).
			WithDetails(map[string]any{"expression": expr})
	}

	// Try direct key lookup first (supports keys with dots).
	if val, ok := data[fieldPath]; ok {
		return val, nil
	}

	// Traverse by splitting on dots.
	return interp.traversePath(data, fieldPath, expr)
}

// traversePath navigates into nested maps using a dot-delimited path.
func (interp *Interpolator) traversePath(root any, path, expr string) (any, error) {
	segments := strings.Split(path, ".")
	current := root

	for i, seg := range segments {
		if seg == "" {
			return nil, schema.NewErrorf(schema.ErrCodeInterpolation,
				"empty segment in path %q at position %d", expr, i).
				WithDetails(map[string]any{"expression": expr})
		}

		switch v := current.(type) {
		case map[string]any:
			val, ok := v[seg]
			if !ok {
				availableKeys := mapKeys(v)
				return nil, schema.NewErrorf(schema.ErrCodeInterpolation,
					"field %q not found in %q; available: [%s]", seg, expr, strings.Join(availableKeys, ", ")).
					WithDetails(map[string]any{"expression": expr, "available_fields": availableKeys})
			}
			current = val
		default:
			return nil, schema.NewErrorf(schema.ErrCodeInterpolation,
				"cannot traverse into non-object at %q in %q (type: %T)", seg, expr, current).
				WithDetails(map[string]any{"expression": expr})
		}
	}

	return current, nil
}

// missingVarErr builds an error for unbound context variables with the bound set listed.
func (interp *Interpolator) missingVarErr(expr, variable string, scope *Scope) *schema.TaktError {
	available := mapKeys(scope.Context)
	return schema.NewErrorf(schema.ErrCodeInterpolation,
		"variable %q not bound in ${{%s}}; bound variables: [%s]", variable, expr, strings.Join(available, ", ")).
		WithDetails(map[string]any{"expression": expr, "bound_variables": available})
}

// marshalInline converts a resolved value into its inline JSON representation.
// Strings are embedded without extra quotes so references inside quoted JSON
// string values compose naturally. For complex types (maps, slices), the value
// is JSON-encoded inline.
func marshalInline(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case nil:
		return "null"
	case bool:
		if v {
			return "true"
		}
		return "false"
	case float64:
		return fmt.Sprintf("%v", v)
	case int:
		return fmt.Sprintf("%d", v)
	case int64:
		return fmt.Sprintf("%d", v)
	case json.RawMessage:
		return string(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

// firstSegment returns the path up to the first dot.
func firstSegment(path string) string {
	if idx := strings.IndexByte(path, '.'); idx != -1 {
		return path[:idx]
	}
	return path
}

// mapKeys returns sorted keys from a map[string]any.
func mapKeys(m map[string]any) []string {
	if m == nil {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// Simple insertion sort for small slices.
	for i := 1; i < len(keys); i++ {
		key := keys[i]
		j := i - 1
		for j >= 0 && keys[j] > key {
			keys[j+1] = keys[j]
			j--
		}
		keys[j+1] = key
	}
	return keys
}

// HasInterpolation checks if a JSON blob contains any ${{...}} references.
func HasInterpolation(raw json.RawMessage) bool {
	return strings.Contains(string(raw), "${{")
}

// CheckContextRefs verifies that every ${{context.<var>}} reference in a
// plan's action params names an output variable bound by an EARLIER action.
// Plans execute strictly in order, so a forward or self reference can never
// resolve and the plan is rejected before any action runs.
func CheckContextRefs(plan *schema.ActionPlan) error {
	bound := make(map[string]bool, len(plan.Actions))

	for _, action := range plan.Actions {
		for _, ref := range extractContextRefs(string(action.Params)) {
			if !bound[ref] {
				return schema.NewErrorf(schema.ErrCodeMalformedPlan,
					"action %q references context variable %q before any action binds it", action.ID, ref).
					WithDetails(map[string]any{"action": action.ID, "variable": ref})
			}
		}
		if action.OutputVariable != "" {
			bound[action.OutputVariable] = true
		}
	}

	return nil
}

// extractContextRefs finds all variable names referenced via ${{context.<var>...}}.
func extractContextRefs(s string) []string {
	var refs []string
	for {
		idx := strings.Index(s, "${{")
		if idx == -1 {
			break
		}
		rest := s[idx+3:]
		closeIdx := strings.Index(rest, "}}")
		if closeIdx == -1 {
			break
		}
		expr := strings.TrimSpace(rest[:closeIdx])
		if name, ok := strings.CutPrefix(expr, "context."); ok {
			if dotIdx := strings.IndexByte(name, '.'); dotIdx != -1 {
				name = name[:dotIdx]
			}
			if name = strings.TrimSpace(name); name != "" {
				refs = append(refs, name)
			}
		}
		s = rest[closeIdx+2:]
	}
	return refs
}
