package schema

// Event type constants published on the run event hub.
const (
	EventRunStarted   = "run_started"
	EventRunCompleted = "run_completed"
	EventRunFailed    = "run_failed"
	EventRunCancelled = "run_cancelled"

	EventActionStarted   = "action_started"
	EventActionCompleted = "action_completed"
	EventActionFailed    = "action_failed"
	EventActionFallback  = "action_fallback"

	EventVariableBound = "variable_bound"

	EventScheduleTriggered = "schedule_triggered"
	EventScheduleCompleted = "schedule_completed"
	EventScheduleFailed    = "schedule_failed"

	EventBreakerOpen     = "breaker_open"
	EventBreakerHalfOpen = "breaker_half_open"
	EventBreakerClosed   = "breaker_closed"

	EventMasterDataReloaded = "master_data_reloaded"
)

// RunStatus represents the lifecycle state of one goal run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusActive    RunStatus = "active"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// ActionStatus represents the lifecycle state of one action within a run.
type ActionStatus string

const (
	ActionStatusPending   ActionStatus = "pending"
	ActionStatusRunning   ActionStatus = "running"
	ActionStatusCompleted ActionStatus = "completed"
	ActionStatusFailed    ActionStatus = "failed"
	ActionStatusFallback  ActionStatus = "fallback"
)
