// Package expressions hosts the query engines actions evaluate against
// knowledge-base snapshots. Three dialects are supported: jq for filtering
// and reshaping snapshot records, CEL for predicates, and Expr for
// deterministic logic. All engines cache compiled programs and are safe
// for concurrent use.
package expressions

import (
	"context"
	"strings"

	"github.com/fabriqa/takt/pkg/schema"
)

// Engine evaluates a single expression against a data document.
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}

// DefaultEngine is the dialect used when a query action does not name one.
const DefaultEngine = "jq"

// Engines bundles the available query dialects so actions can pick one
// by name at execution time.
type Engines struct {
	jq   *GoJQEngine
	cel  *CELEngine
	expr *ExprEngine
}

// NewEngines constructs all query dialects. CEL environment setup can fail,
// so construction returns an error rather than panicking at first use.
func NewEngines() (*Engines, error) {
	celEngine, err := NewCELEngine()
	if err != nil {
		return nil, err
	}
	return &Engines{
		jq:   NewGoJQEngine(),
		cel:  celEngine,
		expr: NewExprEngine(),
	}, nil
}

// Select returns the engine for the given dialect name. An empty name
// selects the default (jq). Unknown names are validation errors listing
// the supported dialects.
func (es *Engines) Select(name string) (Engine, error) {
	switch name {
	case "", DefaultEngine:
		return es.jq, nil
	case es.cel.Name():
		return es.cel, nil
	case es.expr.Name():
		return es.expr, nil
	default:
		available := []string{es.jq.Name(), es.cel.Name(), es.expr.Name()}
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"unknown query engine %q; available: %s", name, strings.Join(available, ", ")).
			WithDetails(map[string]any{"engine": name, "available_engines": available})
	}
}
