package agent

import (
	"sync"
	"time"

	"github.com/fabriqa/takt/internal/metrics"
	"github.com/fabriqa/takt/pkg/schema"
)

// BreakerState is the state of one backend's circuit breaker.
type BreakerState int

const (
	BreakerClosed   BreakerState = iota // normal operation
	BreakerOpen                         // failing, rejecting calls
	BreakerHalfOpen                     // probing recovery
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes the per-backend circuit breakers.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before the
	// circuit opens.
	FailureThreshold int
	// Cooldown is how long an open circuit rejects calls before allowing
	// a probe.
	Cooldown time.Duration
	// HalfOpenMax is the number of probe calls allowed while half-open.
	HalfOpenMax int
}

// DefaultBreakerConfig returns the default breaker tuning.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
		HalfOpenMax:      1,
	}
}

// breaker tracks failure state for a single backend.
type breaker struct {
	mu                  sync.Mutex
	state               BreakerState
	consecutiveFailures int
	lastFailureTime     time.Time
	halfOpenAttempts    int
	config              BreakerConfig
}

// BreakerRegistry manages per-backend circuit breakers so a dead registry
// or container endpoint fails fast instead of eating its timeout on every
// action. An open simulator breaker surfaces as BACKEND_UNAVAILABLE, which
// routes the action into the agent's fallback policy.
type BreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*breaker
	config   BreakerConfig
	sink     metrics.Sink
}

// NewBreakerRegistry creates a registry with the given config.
func NewBreakerRegistry(config BreakerConfig, sink metrics.Sink) *BreakerRegistry {
	if sink == nil {
		sink = metrics.NewNoopSink()
	}
	return &BreakerRegistry{
		breakers: make(map[string]*breaker),
		config:   config,
		sink:     sink,
	}
}

// Allow checks whether a call to the backend may proceed. Returns nil when
// allowed, or a BACKEND_UNAVAILABLE error while the circuit is open.
func (r *BreakerRegistry) Allow(backend string) error {
	cb := r.getOrCreate(backend)
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerClosed:
		return nil

	case BreakerOpen:
		if time.Since(cb.lastFailureTime) >= cb.config.Cooldown {
			cb.state = BreakerHalfOpen
			cb.halfOpenAttempts = 1 // this call is the first probe
			return nil
		}
		return schema.NewErrorf(schema.ErrCodeBackendUnavailable,
			"circuit breaker open for backend %q: %d consecutive failures",
			backend, cb.consecutiveFailures).
			WithDetails(map[string]any{
				"backend":              backend,
				"consecutive_failures": cb.consecutiveFailures,
				"state":                cb.state.String(),
				"cooldown_remaining":   (cb.config.Cooldown - time.Since(cb.lastFailureTime)).String(),
			})

	case BreakerHalfOpen:
		if cb.halfOpenAttempts >= cb.config.HalfOpenMax {
			return schema.NewErrorf(schema.ErrCodeBackendUnavailable,
				"circuit breaker half-open for backend %q: probe limit reached", backend).
				WithDetails(map[string]any{"backend": backend, "state": cb.state.String()})
		}
		cb.halfOpenAttempts++
		return nil
	}

	return nil
}

// RecordSuccess closes the circuit for a backend.
func (r *BreakerRegistry) RecordSuccess(backend string) {
	cb := r.getOrCreate(backend)
	cb.mu.Lock()
	wasOpen := cb.state != BreakerClosed
	cb.consecutiveFailures = 0
	cb.halfOpenAttempts = 0
	cb.state = BreakerClosed
	cb.mu.Unlock()

	if wasOpen {
		r.sink.BreakerStateUpdate(backend, false)
	}
}

// RecordFailure counts a backend failure and returns the resulting state.
func (r *BreakerRegistry) RecordFailure(backend string) BreakerState {
	cb := r.getOrCreate(backend)
	cb.mu.Lock()

	cb.consecutiveFailures++
	cb.lastFailureTime = time.Now()

	// Any failure while half-open reopens the circuit.
	if cb.state == BreakerHalfOpen || cb.consecutiveFailures >= cb.config.FailureThreshold {
		cb.state = BreakerOpen
	}
	state := cb.state
	cb.mu.Unlock()

	if state == BreakerOpen {
		r.sink.BreakerStateUpdate(backend, true)
	}
	return state
}

// State returns the current circuit state for a backend, applying the
// open-to-half-open transition when the cooldown has elapsed.
func (r *BreakerRegistry) State(backend string) BreakerState {
	cb := r.getOrCreate(backend)
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == BreakerOpen && time.Since(cb.lastFailureTime) >= cb.config.Cooldown {
		cb.state = BreakerHalfOpen
		cb.halfOpenAttempts = 0
	}
	return cb.state
}

// Stats returns diagnostic information about a backend's breaker.
func (r *BreakerRegistry) Stats(backend string) map[string]any {
	cb := r.getOrCreate(backend)
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return map[string]any{
		"backend":              backend,
		"state":                cb.state.String(),
		"consecutive_failures": cb.consecutiveFailures,
		"failure_threshold":    cb.config.FailureThreshold,
		"cooldown":             cb.config.Cooldown.String(),
	}
}

func (r *BreakerRegistry) getOrCreate(backend string) *breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	cb, ok := r.breakers[backend]
	if !ok {
		cb = &breaker{state: BreakerClosed, config: r.config}
		r.breakers[backend] = cb
	}
	return cb
}
