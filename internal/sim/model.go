package sim

import (
	"github.com/fabriqa/takt/pkg/schema"
)

// JobStatus is the lifecycle state of a job on the factory floor.
type JobStatus string

const (
	JobQueued   JobStatus = "QUEUED"
	JobRunning  JobStatus = "RUNNING"
	JobTransfer JobStatus = "TRANSFER"
	JobDone     JobStatus = "DONE"
)

// ValidJobTransitions defines the allowed status transitions for jobs.
// RUNNING -> RUNNING covers consecutive operations on the same machine.
var ValidJobTransitions = map[JobStatus][]JobStatus{
	JobQueued:   {JobRunning},
	JobRunning:  {JobRunning, JobTransfer, JobDone},
	JobTransfer: {JobRunning, JobDone},
	JobDone:     {},
}

func isValidJobTransition(from, to JobStatus) bool {
	allowed, ok := ValidJobTransitions[from]
	if !ok {
		return false
	}
	for _, a := range allowed {
		if a == to {
			return true
		}
	}
	return false
}

// Part is the manufactured item identity; owned for its lifetime by exactly
// one job.
type Part struct {
	ID      string `json:"id"`
	Product string `json:"product"`
}

// Operation is one manufacturing step of a job. The routed machine is fixed
// at creation; Candidates records which machines could have performed it,
// for reporting only.
type Operation struct {
	ID         string       `json:"id"`
	Machine    string       `json:"machine"`
	Candidates []string     `json:"candidates,omitempty"`
	Duration   Distribution `json:"duration"`
}

// Job is a unit of work: one part moving through an ordered operation
// sequence. Status and cursor mutate only through Start and Advance, so the
// cursor and completed-operation count can never diverge. Jobs are retained
// for the whole run for trace and reporting.
type Job struct {
	id        string
	part      Part
	ops       []Operation
	cursor    int
	completed int
	status    JobStatus
}

// NewJob creates a queued job. A job with no operations is born DONE.
func NewJob(id string, part Part, ops []Operation) *Job {
	j := &Job{id: id, part: part, ops: ops, status: JobQueued}
	if len(ops) == 0 {
		j.status = JobDone
	}
	return j
}

func (j *Job) ID() string        { return j.id }
func (j *Job) Part() Part        { return j.part }
func (j *Job) Status() JobStatus { return j.status }
func (j *Job) Cursor() int       { return j.cursor }

// CompletedOperations always equals the cursor; both advance together.
func (j *Job) CompletedOperations() int { return j.completed }
func (j *Job) TotalOperations() int     { return len(j.ops) }

// Operations returns a copy of the operation sequence.
func (j *Job) Operations() []Operation {
	out := make([]Operation, len(j.ops))
	copy(out, j.ops)
	return out
}

// Done reports whether the cursor has reached the end of the sequence.
func (j *Job) Done() bool {
	return j.status == JobDone
}

// CurrentOperation returns the operation at the cursor. ok is false once the
// job is done; that is the completion predicate.
func (j *Job) CurrentOperation() (Operation, bool) {
	if j.cursor >= len(j.ops) {
		return Operation{}, false
	}
	return j.ops[j.cursor], true
}

// Start marks the current operation as started on its routed machine.
func (j *Job) Start() error {
	if _, ok := j.CurrentOperation(); !ok {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"job %q has no operation to start", j.id).
			WithDetails(map[string]any{"job": j.id, "status": string(j.status)})
	}
	return j.transition(JobRunning)
}

// Advance records completion of the current operation. It is the single
// mutation point: the cursor and completed count increment together, and the
// resulting status is validated against the transition table. The next status
// is DONE at the end of the sequence, TRANSFER when the next operation is
// routed to a different machine, RUNNING otherwise.
func (j *Job) Advance() error {
	op, ok := j.CurrentOperation()
	if !ok {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"job %q already done; cannot advance", j.id).
			WithDetails(map[string]any{"job": j.id, "cursor": j.cursor})
	}
	if j.status != JobRunning {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"job %q is %s; only a running job can advance", j.id, j.status).
			WithDetails(map[string]any{"job": j.id, "status": string(j.status)})
	}

	next := JobDone
	if j.cursor+1 < len(j.ops) {
		if j.ops[j.cursor+1].Machine != op.Machine {
			next = JobTransfer
		} else {
			next = JobRunning
		}
	}

	if err := j.transition(next); err != nil {
		return err
	}

	j.cursor++
	j.completed++
	return nil
}

// transition validates and applies a status change.
func (j *Job) transition(to JobStatus) error {
	if !isValidJobTransition(j.status, to) {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"invalid job transition: %s -> %s", j.status, to).
			WithDetails(map[string]any{"job": j.id, "from": string(j.status), "to": string(to)})
	}
	j.status = to
	return nil
}
