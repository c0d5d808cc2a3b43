package sim

import (
	"container/heap"
	"context"
	"log/slog"
	"time"

	"github.com/fabriqa/takt/pkg/schema"
)

// TimelineEntry is one machine-operation interval. Immutable once emitted;
// the union of entries for a run feeds visualization and completion queries.
type TimelineEntry struct {
	Job       string    `json:"job"`
	Part      string    `json:"part"`
	Operation string    `json:"operation"`
	Machine   string    `json:"machine"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
}

// TransitFunc returns the transfer delay between two machines.
type TransitFunc func(from, to string) time.Duration

// Config bounds one simulation run.
type Config struct {
	// Machines is the active machine set. Operations routed outside it fail
	// the run with ROUTING_ERROR.
	Machines []string
	// Start is the simulated clock origin.
	Start time.Time
	// Transit yields the delay between machine changes; nil means none.
	Transit TransitFunc
	// Seed fixes the sampler for reproducible runs; 0 seeds from the wall
	// clock.
	Seed int64
}

// Result is the outcome of one simulation run.
type Result struct {
	Timeline        []TimelineEntry      `json:"timeline"`
	Completions     map[string]time.Time `json:"completions"`
	FirstCompletion time.Time            `json:"first_completion"`
	Makespan        time.Duration        `json:"makespan"`
}

// Engine runs discrete-event production simulations. One run is strictly
// single-threaded: events are processed in (ready time, job id) order, which
// is what makes a seeded run reproducible. Run may be called concurrently
// with distinct job batches.
type Engine struct {
	logger *slog.Logger
}

// NewEngine creates a simulation engine.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger}
}

// Run schedules every operation of every job onto the machine set and
// returns the resulting timeline. Operation durations are drawn at the
// moment the operation is scheduled, not pre-computed. Each machine
// processes at most one operation at a time; a job's next operation cannot
// start before its previous operation ended plus any transit delay.
func (e *Engine) Run(ctx context.Context, jobs []*Job, cfg Config) (*Result, error) {
	machineFree := make(map[string]time.Time, len(cfg.Machines))
	for _, m := range cfg.Machines {
		machineFree[m] = cfg.Start
	}

	sampler := NewSeededSampler(cfg.Seed)
	if cfg.Seed == 0 {
		sampler = NewSampler()
	}

	queue := &eventQueue{}
	heap.Init(queue)
	for _, job := range jobs {
		if job.Done() {
			continue
		}
		heap.Push(queue, readyEvent{at: cfg.Start, job: job})
	}

	result := &Result{
		Completions: make(map[string]time.Time, len(jobs)),
	}

	for queue.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return nil, schema.NewError(schema.ErrCodeCancelled, "simulation cancelled").WithCause(err)
		}

		ev := heap.Pop(queue).(readyEvent)
		job := ev.job

		op, ok := job.CurrentOperation()
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeInternal,
				"job %q scheduled with no pending operation", job.ID())
		}

		free, known := machineFree[op.Machine]
		if !known {
			return nil, schema.NewErrorf(schema.ErrCodeRouting,
				"operation %q of job %q routed to machine %q outside the active set",
				op.ID, job.ID(), op.Machine).
				WithDetails(map[string]any{
					"job":       job.ID(),
					"operation": op.ID,
					"machine":   op.Machine,
					"active":    cfg.Machines,
				})
		}

		start := ev.at
		if free.After(start) {
			start = free
		}

		if err := job.Start(); err != nil {
			return nil, err
		}

		minutes, err := sampler.Sample(op.Duration)
		if err != nil {
			if te, isTakt := schema.AsTaktError(err); isTakt {
				te.Details = mergeDetails(te.Details, map[string]any{
					"job": job.ID(), "operation": op.ID,
				})
			}
			return nil, err
		}

		end := start.Add(time.Duration(minutes * float64(time.Minute)))
		machineFree[op.Machine] = end

		result.Timeline = append(result.Timeline, TimelineEntry{
			Job:       job.ID(),
			Part:      job.Part().ID,
			Operation: op.ID,
			Machine:   op.Machine,
			Start:     start,
			End:       end,
		})

		if err := job.Advance(); err != nil {
			return nil, err
		}

		if job.Done() {
			result.Completions[job.ID()] = end
			if result.FirstCompletion.IsZero() || end.Before(result.FirstCompletion) {
				result.FirstCompletion = end
			}
			if span := end.Sub(cfg.Start); span > result.Makespan {
				result.Makespan = span
			}
			continue
		}

		ready := end
		if next, _ := job.CurrentOperation(); next.Machine != op.Machine && cfg.Transit != nil {
			ready = ready.Add(cfg.Transit(op.Machine, next.Machine))
		}
		heap.Push(queue, readyEvent{at: ready, job: job})
	}

	e.logger.DebugContext(ctx, "simulation finished",
		"jobs", len(jobs),
		"entries", len(result.Timeline),
		"makespan", result.Makespan.String(),
	)

	return result, nil
}

// readyEvent marks a job ready to schedule its current operation.
type readyEvent struct {
	at  time.Time
	job *Job
}

// eventQueue is a min-heap ordered by (ready time, job id); the job-id
// tie-break keeps event processing deterministic.
type eventQueue []readyEvent

func (q eventQueue) Len() int { return len(q) }

func (q eventQueue) Less(i, j int) bool {
	if q[i].at.Equal(q[j].at) {
		return q[i].job.ID() < q[j].job.ID()
	}
	return q[i].at.Before(q[j].at)
}

func (q eventQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *eventQueue) Push(x any) {
	*q = append(*q, x.(readyEvent))
}

func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	ev := old[n-1]
	*q = old[:n-1]
	return ev
}

func mergeDetails(base, extra map[string]any) map[string]any {
	if base == nil {
		base = make(map[string]any, len(extra))
	}
	for k, v := range extra {
		base[k] = v
	}
	return base
}
