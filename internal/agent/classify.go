package agent

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/fabriqa/takt/pkg/schema"
)

// Backend names used for circuit breakers, metrics labels, and fallback
// provenance. The query action is local snapshot evaluation and carries no
// breaker.
const (
	BackendRegistry  = "registry"
	BackendContainer = "container"
	BackendSimulator = "simulator"
)

// backendFor maps an execution type to the external backend it calls, or
// "" for local actions.
func backendFor(t schema.ExecutionType) string {
	switch t {
	case schema.ExecutionSubmodelFetch:
		return BackendRegistry
	case schema.ExecutionContainerExec:
		return BackendContainer
	case schema.ExecutionSimulate:
		return BackendSimulator
	default:
		return ""
	}
}

// IsUnavailability classifies whether an error means the backend could not
// be reached at all, as opposed to rejecting a well-formed call. The
// classification feeds two consumers: circuit breakers count only
// unavailability, and the simulate fallback policy absorbs only
// unavailability. Validation and plan errors must never trip either.
func IsUnavailability(err error) bool {
	if err == nil {
		return false
	}

	// A deadline is an unreachable backend as far as the caller is
	// concerned; a caller-initiated cancel is not.
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	if te, ok := schema.AsTaktError(err); ok {
		switch te.Code {
		case schema.ErrCodeBackendUnavailable, schema.ErrCodeTimeout:
			return true
		case schema.ErrCodeValidation, schema.ErrCodeMalformedPlan,
			schema.ErrCodeRouting, schema.ErrCodeUnknownDistribution,
			schema.ErrCodeRebind, schema.ErrCodeCancelled:
			return false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	unavailablePatterns := []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"no such host",
		"i/o timeout",
		"service unavailable",
		"bad gateway",
		"gateway timeout",
	}
	for _, p := range unavailablePatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}
