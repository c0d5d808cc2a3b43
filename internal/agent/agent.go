// Package agent executes resolved action plans. Execution is strictly
// sequential within one run: each action may read every earlier binding, so
// there is no reordering and no parallel speculation. Concurrency lives one
// level up, where independent goal runs share nothing but read-only data.
package agent

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fabriqa/takt/internal/actions"
	"github.com/fabriqa/takt/internal/expressions"
	"github.com/fabriqa/takt/internal/logging"
	"github.com/fabriqa/takt/internal/metrics"
	"github.com/fabriqa/takt/internal/streaming"
	"github.com/fabriqa/takt/pkg/schema"
)

// Deps holds the agent's collaborators.
type Deps struct {
	Registry *actions.Registry
	// Fallback serves degraded simulate results; nil disables the fallback
	// policy and lets simulate failures propagate like any other.
	Fallback *FallbackEstimator
	Breakers *BreakerRegistry
	Hub      streaming.EventHub
	Metrics  metrics.Sink
	Logger   *slog.Logger
}

// Agent dispatches the actions of a resolved plan against their backends,
// threading an ExecutionContext between steps.
type Agent struct {
	registry *actions.Registry
	interp   *expressions.Interpolator
	fallback *FallbackEstimator
	breakers *BreakerRegistry
	hub      streaming.EventHub
	sink     metrics.Sink
	logger   *slog.Logger
}

// New creates an Agent. Registry is required; everything else defaults to
// a no-op collaborator.
func New(deps Deps) (*Agent, error) {
	if deps.Registry == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "action registry is nil")
	}
	sink := deps.Metrics
	if sink == nil {
		sink = metrics.NewNoopSink()
	}
	breakers := deps.Breakers
	if breakers == nil {
		breakers = NewBreakerRegistry(DefaultBreakerConfig(), sink)
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		registry: deps.Registry,
		interp:   expressions.NewInterpolator(),
		fallback: deps.Fallback,
		breakers: breakers,
		hub:      deps.Hub,
		sink:     sink,
		logger:   logger,
	}, nil
}

// Run executes the plan's actions in ascending order with the given request
// parameters as the initial scope. It returns the final ExecutionContext;
// on failure or cancellation the partial context (every binding made before
// the break) is returned alongside the error, so callers can inspect how
// far the run got.
func (a *Agent) Run(ctx context.Context, plan *schema.ActionPlan, params map[string]any) (*ExecutionContext, error) {
	if err := plan.Validate().ToError(); err != nil {
		return nil, err
	}
	if err := expressions.CheckContextRefs(plan); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	startedAt := time.Now().UTC()
	ctx = logging.WithRun(ctx, runID, plan.Goal)
	logger := logging.LogWith(ctx, a.logger)

	execCtx := NewExecutionContext()
	execCtx.runID = runID
	runMeta := map[string]any{
		"id":         runID,
		"goal":       plan.Goal,
		"started_at": startedAt.Format(time.RFC3339),
	}
	frozenParams := deepCopyMap(params)

	a.sink.RunStarted(plan.Goal)
	a.publish(ctx, runID, plan.Goal, "", schema.EventRunStarted, map[string]any{"actions": plan.Len()})
	logger.InfoContext(ctx, "run started", "actions", plan.Len())

	for _, action := range plan.Actions {
		if err := ctx.Err(); err != nil {
			a.sink.RunCompleted(plan.Goal, string(schema.RunStatusCancelled), time.Since(startedAt))
			a.publish(ctx, runID, plan.Goal, action.ID, schema.EventRunCancelled, nil)
			return execCtx, schema.NewError(schema.ErrCodeCancelled, "run cancelled").
				WithAction(action.ID, action.Type).WithCause(err)
		}

		value, err := a.dispatch(ctx, runID, plan.Goal, action, frozenParams, runMeta, execCtx)
		if err != nil {
			a.sink.RunCompleted(plan.Goal, string(schema.RunStatusFailed), time.Since(startedAt))
			a.publish(ctx, runID, plan.Goal, action.ID, schema.EventRunFailed,
				map[string]any{"error": err.Error()})
			logger.ErrorContext(ctx, "run failed", "action_id", action.ID, "error", err.Error())
			return execCtx, err
		}

		if action.OutputVariable != "" {
			if err := execCtx.Bind(action.OutputVariable, action.ID, value); err != nil {
				te, _ := schema.AsTaktError(err)
				failed := te.WithAction(action.ID, action.Type)
				a.sink.RunCompleted(plan.Goal, string(schema.RunStatusFailed), time.Since(startedAt))
				a.publish(ctx, runID, plan.Goal, action.ID, schema.EventRunFailed,
					map[string]any{"error": failed.Error()})
				return execCtx, failed
			}
			a.publish(ctx, runID, plan.Goal, action.ID, schema.EventVariableBound,
				map[string]any{"variable": action.OutputVariable})
		}
	}

	a.sink.RunCompleted(plan.Goal, string(schema.RunStatusCompleted), time.Since(startedAt))
	a.publish(ctx, runID, plan.Goal, "", schema.EventRunCompleted,
		map[string]any{"variables": execCtx.Names()})
	logger.InfoContext(ctx, "run completed",
		"variables", len(execCtx.Names()), "duration", time.Since(startedAt).String())

	return execCtx, nil
}

// dispatch interpolates and executes one action, applying the breaker and
// fallback policies. The returned value is what the action binds.
func (a *Agent) dispatch(ctx context.Context, runID, goal string, action schema.Action, params, runMeta map[string]any, execCtx *ExecutionContext) (any, error) {
	actionCtx := logging.WithActionID(ctx, action.ID)
	started := time.Now()

	a.publish(actionCtx, runID, goal, action.ID, schema.EventActionStarted,
		map[string]any{"execution_type": string(action.Type), "order": action.Order})

	scope := &expressions.Scope{
		Params:  params,
		Context: execCtx.Variables(),
		Run:     runMeta,
	}

	req, err := a.buildRequest(action, scope)
	if err != nil {
		a.recordFailure(actionCtx, runID, goal, action, started, err)
		return nil, err
	}

	value, err := a.execute(actionCtx, req)
	if err != nil {
		if a.fallback != nil && action.Type == schema.ExecutionSimulate && IsUnavailability(err) {
			return a.serveFallback(actionCtx, runID, goal, action, req, started, err)
		}
		a.recordFailure(actionCtx, runID, goal, action, started, err)
		return nil, withAction(err, action)
	}

	a.sink.ActionCompleted(string(action.Type), string(schema.ActionStatusCompleted), time.Since(started))
	a.publish(actionCtx, runID, goal, action.ID, schema.EventActionCompleted,
		map[string]any{"duration_ms": time.Since(started).Milliseconds()})

	return value, nil
}

// buildRequest interpolates the action's params and target id against the
// current scope and decodes the params payload.
func (a *Agent) buildRequest(action schema.Action, scope *expressions.Scope) (actions.Request, error) {
	resolved, err := a.interp.Resolve(action.Params, scope)
	if err != nil {
		return actions.Request{}, err
	}
	params, err := actions.DecodeParams(resolved)
	if err != nil {
		return actions.Request{}, err
	}

	interpolated := action
	interpolated.Params = resolved
	if action.TargetID != "" {
		target, err := a.interp.ResolveString(action.TargetID, scope)
		if err != nil {
			return actions.Request{}, err
		}
		interpolated.TargetID = target
	}

	return actions.Request{Action: interpolated, Params: params, Scope: scope}, nil
}

// execute runs the handler for one interpolated action, threading the
// result through the backend's circuit breaker.
func (a *Agent) execute(ctx context.Context, req actions.Request) (any, error) {
	handler, err := a.registry.Get(req.Action.Type)
	if err != nil {
		return nil, err
	}

	backend := backendFor(req.Action.Type)
	if backend != "" {
		if err := a.breakers.Allow(backend); err != nil {
			return nil, err
		}
	}

	resp, err := handler.Execute(ctx, req)
	if backend != "" {
		if err != nil && IsUnavailability(err) {
			a.breakers.RecordFailure(backend)
		} else if err == nil {
			a.breakers.RecordSuccess(backend)
		}
	}
	if err != nil {
		return nil, err
	}
	return resp.Value, nil
}

// serveFallback substitutes the degraded estimator for an unreachable
// simulation backend. This is the one place where a backend failure is
// absorbed instead of surfaced: production estimates must always return
// some answer, tagged so callers can tell it apart.
func (a *Agent) serveFallback(ctx context.Context, runID, goal string, action schema.Action, req actions.Request, started time.Time, cause error) (any, error) {
	pred, err := a.fallback.Estimate(ctx, req, cause)
	if err != nil {
		a.recordFailure(ctx, runID, goal, action, started, err)
		return nil, withAction(err, action)
	}

	a.sink.FallbackUsed(BackendSimulator)
	a.sink.ActionCompleted(string(action.Type), string(schema.ActionStatusFallback), time.Since(started))
	a.publish(ctx, runID, goal, action.ID, schema.EventActionFallback, map[string]any{
		"source": pred.Source,
		"cause":  pred.FallbackReason,
	})

	return pred.Document(), nil
}

func (a *Agent) recordFailure(ctx context.Context, runID, goal string, action schema.Action, started time.Time, err error) {
	a.sink.ActionCompleted(string(action.Type), string(schema.ActionStatusFailed), time.Since(started))
	a.publish(ctx, runID, goal, action.ID, schema.EventActionFailed,
		map[string]any{"error": err.Error(), "code": schema.CodeOf(err)})
}

// publish emits a run event, best-effort. A full subscriber buffer or
// missing hub never affects the run.
func (a *Agent) publish(ctx context.Context, runID, goal, actionID, eventType string, payload map[string]any) {
	if a.hub == nil {
		return
	}
	_ = a.hub.Publish(ctx, streaming.RunEvent{
		RunID:     runID,
		Goal:      goal,
		ActionID:  actionID,
		EventType: eventType,
		Payload:   payload,
	})
}

// withAction stamps the failing action's id and type onto an error so every
// failure pinpoints the plan step that broke.
func withAction(err error, action schema.Action) error {
	if te, ok := schema.AsTaktError(err); ok {
		if te.ActionID == "" {
			te.ActionID = action.ID
			te.ActionType = action.Type
		}
		return te
	}
	return schema.NewError(schema.ErrCodeExecution, err.Error()).
		WithAction(action.ID, action.Type).WithCause(err)
}

// MarshalBindings renders a context's bindings as JSON, mainly for CLI and
// tool output.
func MarshalBindings(execCtx *ExecutionContext) (json.RawMessage, error) {
	b, err := json.Marshal(execCtx.Variables())
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeInternal, "marshal bindings").WithCause(err)
	}
	return b, nil
}
