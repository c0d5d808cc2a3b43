package factory

import (
	"fmt"

	"github.com/fabriqa/takt/internal/sim"
	"github.com/fabriqa/takt/pkg/schema"
)

// BatchOptions tunes how a production order expands into jobs.
type BatchOptions struct {
	// TargetMachine re-routes any routing step that lists it as a candidate.
	// Steps that do not name it as a candidate keep their declared machine.
	TargetMachine string
}

// BuildBatch expands a production order (product, quantity) into simulator
// jobs, one job per unit, each following the product's declared routing.
// Job and part ids are deterministic so seeded simulation runs reproduce.
func (md *MasterData) BuildBatch(productID string, quantity int, opts BatchOptions) ([]*sim.Job, error) {
	if quantity <= 0 {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"quantity must be positive, got %d", quantity)
	}
	product, ok := md.Product(productID)
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound,
			"product %q not in master data", productID)
	}

	if opts.TargetMachine != "" {
		if _, known := md.Machine(opts.TargetMachine); !known {
			return nil, schema.NewErrorf(schema.ErrCodeRouting,
				"target machine %q not in the machine park", opts.TargetMachine)
		}
	}

	jobs := make([]*sim.Job, 0, quantity)
	for i := 1; i <= quantity; i++ {
		ops := make([]sim.Operation, 0, len(product.Routing))
		for _, step := range product.Routing {
			machine := step.Machine
			if opts.TargetMachine != "" && containsString(step.Candidates, opts.TargetMachine) {
				machine = opts.TargetMachine
			}
			ops = append(ops, sim.Operation{
				ID:         step.Operation,
				Machine:    machine,
				Candidates: step.Candidates,
				Duration:   step.Duration,
			})
		}

		jobID := fmt.Sprintf("%s-J%04d", product.ID, i)
		part := sim.Part{
			ID:      fmt.Sprintf("%s-P%04d", product.ID, i),
			Product: product.ID,
		}
		jobs = append(jobs, sim.NewJob(jobID, part, ops))
	}

	return jobs, nil
}

// NominalLeadTime sums the routing's mean processing minutes plus transit
// between machine changes: the deterministic per-unit lead time used by the
// fallback estimator when the simulation backend is down.
func (md *MasterData) NominalLeadTime(productID string) (float64, error) {
	product, ok := md.Product(productID)
	if !ok {
		return 0, schema.NewErrorf(schema.ErrCodeNotFound,
			"product %q not in master data", productID)
	}

	var minutes float64
	for i, step := range product.Routing {
		mean, err := step.Duration.MeanMinutes()
		if err != nil {
			return 0, err
		}
		minutes += mean
		if i > 0 && product.Routing[i-1].Machine != step.Machine {
			minutes += md.TransitBetween(product.Routing[i-1].Machine, step.Machine).Minutes()
		}
	}
	return minutes, nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
