package metrics

import "time"

// NoopSink is a no-op implementation of Sink.
// Used when metrics are disabled to avoid nil checks at call sites.
type NoopSink struct{}

// NewNoopSink returns a no-op metrics sink.
func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (n *NoopSink) RunStarted(goal string)                                        {}
func (n *NoopSink) RunCompleted(goal, status string, duration time.Duration)      {}
func (n *NoopSink) ActionCompleted(actionType, status string, d time.Duration)    {}
func (n *NoopSink) FallbackUsed(backend string)                                   {}
func (n *NoopSink) BackendFailure(backend, statusClass string)                    {}
func (n *NoopSink) BreakerStateUpdate(backend string, open bool)                  {}
func (n *NoopSink) JobsSimulated(count int)                                       {}
func (n *NoopSink) ScheduleTick(goal string, err error)                           {}
