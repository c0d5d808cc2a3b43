// Package service is the goal execution facade: it validates requests,
// resolves plans, and runs them through the bounded run pool. The MCP
// server, scheduler, and CLI all sit on this package.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/fabriqa/takt/internal/agent"
	"github.com/fabriqa/takt/internal/factory"
	"github.com/fabriqa/takt/internal/ontology"
	"github.com/fabriqa/takt/internal/sim"
	"github.com/fabriqa/takt/internal/validation"
	"github.com/fabriqa/takt/pkg/schema"
)

// Deps wires the service collaborators.
type Deps struct {
	Validator *validation.Validator
	Resolver  *ontology.Resolver
	KB        ontology.KnowledgeBase
	Agent     *agent.Agent
	Pool      *agent.RunPool
	Provider  *factory.Provider
	Logger    *slog.Logger
}

// Service executes goals end to end.
type Service struct {
	validator *validation.Validator
	resolver  *ontology.Resolver
	kb        ontology.KnowledgeBase
	agent     *agent.Agent
	pool      *agent.RunPool
	provider  *factory.Provider
	logger    *slog.Logger
}

// New creates a Service. Validator, resolver, knowledge base, agent, and
// pool are required.
func New(deps Deps) (*Service, error) {
	if deps.Validator == nil || deps.Resolver == nil || deps.KB == nil || deps.Agent == nil || deps.Pool == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "service requires validator, resolver, kb, agent, and pool")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		validator: deps.Validator,
		resolver:  deps.Resolver,
		kb:        deps.KB,
		agent:     deps.Agent,
		pool:      deps.Pool,
		provider:  deps.Provider,
		logger:    logger,
	}, nil
}

// Execute validates the request, resolves the goal into a plan, and runs it
// on the pool. The call blocks until the run finishes; the pool only bounds
// how many runs execute concurrently.
func (s *Service) Execute(ctx context.Context, req *schema.GoalRequest) (*schema.GoalResult, error) {
	if err := s.validator.ValidateGoalRequest(req); err != nil {
		return nil, err
	}

	plan, err := s.resolver.Resolve(ctx, req.Goal)
	if err != nil {
		return nil, err
	}

	params := req.Params()
	var execCtx *agent.ExecutionContext
	var runErr error
	done := make(chan struct{})
	if err := s.pool.Submit(ctx, func(ctx context.Context) error {
		defer close(done)
		execCtx, runErr = s.agent.Run(ctx, plan, params)
		return runErr
	}); err != nil {
		return nil, err
	}
	<-done
	if runErr != nil {
		return nil, runErr
	}

	return &schema.GoalResult{
		Goal:   req.Goal,
		Params: params,
		Result: extractResult(plan, execCtx),
		RunID:  execCtx.RunID(),
	}, nil
}

// Plan resolves a goal without executing it.
func (s *Service) Plan(ctx context.Context, goal string) (*schema.ActionPlan, error) {
	return s.resolver.Resolve(ctx, goal)
}

// Goals lists the goals the knowledge base declares.
func (s *Service) Goals(ctx context.Context) ([]ontology.GoalEntry, error) {
	return s.kb.Goals(ctx)
}

// extractResult picks the run's outcome: the final action's bound output
// when the plan declares one, otherwise every binding the run produced.
func extractResult(plan *schema.ActionPlan, execCtx *agent.ExecutionContext) any {
	if final, ok := plan.FinalAction(); ok {
		if value, bound := execCtx.Get(final.OutputVariable); bound {
			return value
		}
	}
	return execCtx.Variables()
}

// SimulateRequest drives a direct run of the embedded simulator, outside
// any plan.
type SimulateRequest struct {
	ProductID     string
	Quantity      int
	TargetMachine string
	Start         time.Time
	Seed          int64
}

// SimulateResult pairs the raw simulation result with its prediction
// document.
type SimulateResult struct {
	Prediction schema.Prediction
	Result     *sim.Result
}

// Simulate runs the embedded discrete-event simulator against the current
// master data. It requires a configured master data provider.
func (s *Service) Simulate(ctx context.Context, req SimulateRequest) (*SimulateResult, error) {
	if s.provider == nil {
		return nil, schema.NewError(schema.ErrCodeBackendUnavailable, "no master data provider configured")
	}
	if req.ProductID == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "product_id is required")
	}
	if req.Quantity <= 0 {
		req.Quantity = 1
	}

	md := s.provider.Current()
	jobs, err := md.BuildBatch(req.ProductID, req.Quantity, factory.BatchOptions{TargetMachine: req.TargetMachine})
	if err != nil {
		return nil, err
	}

	start := req.Start
	if start.IsZero() {
		start = time.Now().UTC()
	}
	result, err := sim.NewEngine(s.logger).Run(ctx, jobs, sim.Config{
		Machines: md.MachineIDs(),
		Start:    start,
		Transit:  md.TransitBetween,
		Seed:     req.Seed,
	})
	if err != nil {
		return nil, err
	}

	return &SimulateResult{
		Prediction: schema.Prediction{
			Source:                  schema.SourceSimulator,
			PredictedCompletionTime: result.FirstCompletion,
			MakespanMinutes:         result.Makespan.Minutes(),
			Confidence:              schema.SimulationConfidence,
			JobsSimulated:           len(jobs),
		},
		Result: result,
	}, nil
}
