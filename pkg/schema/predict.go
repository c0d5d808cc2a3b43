package schema

import (
	"encoding/json"
	"time"
)

// Sources tagged onto completion predictions so consumers can tell simulation
// output from degraded estimates.
const (
	SourceSimulator         = "takt.simulator"
	SourceRemoteSimulator   = "takt.remote-simulator"
	SourceFallbackEstimator = "takt.fallback-estimator"
)

// Confidence levels attached to completion predictions. Fallback results must
// stay at or below ConfidenceCeiling.
const (
	SimulationConfidence = 0.9
	FallbackConfidence   = 0.5
	ConfidenceCeiling    = 0.85
)

// Prediction is the completion estimate bound by a simulate action.
type Prediction struct {
	Source                  string    `json:"source"`
	Fallback                bool      `json:"fallback"`
	PredictedCompletionTime time.Time `json:"predicted_completion_time"`
	MakespanMinutes         float64   `json:"makespan_minutes"`
	Confidence              float64   `json:"confidence"`
	JobsSimulated           int       `json:"jobs_simulated,omitempty"`
	FallbackReason          string    `json:"fallback_reason,omitempty"`
}

// Document renders the prediction as the plain map shape bound into
// execution contexts, so later actions can traverse its fields.
func (p *Prediction) Document() map[string]any {
	b, _ := json.Marshal(p)
	var doc map[string]any
	_ = json.Unmarshal(b, &doc)
	return doc
}
