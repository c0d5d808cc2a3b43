package store

import (
	"encoding/json"
	"time"
)

// Schedule is a recurring goal execution registered with the scheduler.
type Schedule struct {
	ID             string          `json:"id"`
	Goal           string          `json:"goal"`
	CronExpression string          `json:"cron_expression"`
	Params         json.RawMessage `json:"params,omitempty"`
	Enabled        bool            `json:"enabled"`
	LastRunAt      *time.Time      `json:"last_run_at,omitempty"`
	NextRunAt      *time.Time      `json:"next_run_at,omitempty"`
	LastRunStatus  string          `json:"last_run_status,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// ScheduleUpdate carries the mutable schedule fields. Nil pointers leave the
// stored value untouched.
type ScheduleUpdate struct {
	LastRunAt     *time.Time
	NextRunAt     *time.Time
	LastRunStatus *string
	Enabled       *bool
}

// ScheduleFilter narrows ListSchedules results.
type ScheduleFilter struct {
	Goal    string
	Enabled *bool
	Limit   int
}
