package ontology

import (
	"context"
	"log/slog"

	"github.com/fabriqa/takt/pkg/schema"
)

// Resolver maps goal names to ordered action plans by walking the knowledge
// base's list cells. Resolution is read-only and stable: repeated calls
// against an unmodified knowledge base return identical plans.
type Resolver struct {
	kb     KnowledgeBase
	logger *slog.Logger
}

// NewResolver creates a Resolver over the given knowledge base.
func NewResolver(kb KnowledgeBase, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{kb: kb, logger: logger}
}

// Resolve returns the ordered action plan for a goal. Unknown goals fail
// with GOAL_NOT_FOUND; structural defects in the list (dangling links,
// cycles, missing annotations, unknown execution types) fail with
// MALFORMED_PLAN. Neither ever degrades to an empty-but-valid plan.
func (r *Resolver) Resolve(ctx context.Context, goal string) (*schema.ActionPlan, error) {
	entry, err := r.kb.Goal(ctx, goal)
	if err != nil {
		if schema.IsCode(err, schema.ErrCodeNotFound) {
			return nil, schema.NewErrorf(schema.ErrCodeGoalNotFound,
				"goal %q not declared in the knowledge base", goal).WithCause(err)
		}
		return nil, err
	}
	if entry.Head == "" || entry.Head == TerminalRest {
		return nil, schema.NewErrorf(schema.ErrCodeMalformedPlan,
			"goal %q declares no action list", goal)
	}

	visited := make(map[string]bool)
	var actions []schema.Action

	cellID := entry.Head
	for {
		if visited[cellID] {
			return nil, schema.NewErrorf(schema.ErrCodeMalformedPlan,
				"goal %q: action list cycles back to cell %q", goal, cellID).
				WithDetails(map[string]any{"goal": goal, "cell": cellID})
		}
		visited[cellID] = true

		cell, err := r.kb.Cell(ctx, cellID)
		if err != nil {
			if schema.IsCode(err, schema.ErrCodeNotFound) {
				return nil, schema.NewErrorf(schema.ErrCodeMalformedPlan,
					"goal %q: dangling rest link to missing cell %q", goal, cellID).
					WithDetails(map[string]any{"goal": goal, "cell": cellID}).WithCause(err)
			}
			return nil, err
		}
		if cell.First == "" {
			return nil, schema.NewErrorf(schema.ErrCodeMalformedPlan,
				"goal %q: cell %q has no first link", goal, cellID).
				WithDetails(map[string]any{"goal": goal, "cell": cellID})
		}

		act, err := r.kb.Action(ctx, cell.First)
		if err != nil {
			if schema.IsCode(err, schema.ErrCodeNotFound) {
				return nil, schema.NewErrorf(schema.ErrCodeMalformedPlan,
					"goal %q: cell %q references missing action %q", goal, cellID, cell.First).
					WithDetails(map[string]any{"goal": goal, "cell": cellID, "action": cell.First}).WithCause(err)
			}
			return nil, err
		}
		if !schema.KnownExecutionType(act.ExecutionType) {
			return nil, schema.NewErrorf(schema.ErrCodeMalformedPlan,
				"goal %q: action %q has unknown execution type %q", goal, act.ID, act.ExecutionType).
				WithDetails(map[string]any{"goal": goal, "action": act.ID, "execution_type": string(act.ExecutionType)})
		}

		actions = append(actions, schema.Action{
			ID:             act.ID,
			Type:           act.ExecutionType,
			TargetID:       act.TargetID,
			OutputVariable: act.OutputVariable,
			Order:          len(actions) + 1,
			Params:         act.Params,
			Final:          act.Final,
		})

		if cell.Terminal() {
			break
		}
		cellID = cell.Rest
	}

	plan := &schema.ActionPlan{Goal: goal, Actions: actions}
	if err := plan.Validate().ToError(); err != nil {
		return nil, err
	}

	r.logger.DebugContext(ctx, "plan resolved", "goal", goal, "actions", len(actions))
	return plan, nil
}
