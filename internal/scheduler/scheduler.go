package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/fabriqa/takt/internal/metrics"
	"github.com/fabriqa/takt/internal/store"
	"github.com/fabriqa/takt/internal/streaming"
	"github.com/fabriqa/takt/pkg/schema"
)

// GoalRunner is the interface the scheduler uses to execute goals.
// Satisfied by the goal service (avoids import cycle).
type GoalRunner interface {
	Execute(ctx context.Context, req *schema.GoalRequest) (*schema.GoalResult, error)
}

// Scheduler polls the store for due goal schedules and runs them.
type Scheduler struct {
	store  store.Store
	runner GoalRunner
	parser cron.Parser
	hub    streaming.EventHub
	sink   metrics.Sink
	logger *slog.Logger
	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex

	inflightMu sync.Mutex
	inflight   map[string]struct{} // schedule IDs currently executing (dedup)
}

// NewScheduler creates a new Scheduler.
func NewScheduler(s store.Store, runner GoalRunner, hub streaming.EventHub, sink metrics.Sink, logger *slog.Logger) *Scheduler {
	if sink == nil {
		sink = metrics.NewNoopSink()
	}
	return &Scheduler{
		store:    s,
		runner:   runner,
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		hub:      hub,
		sink:     sink,
		logger:   logger,
		inflight: make(map[string]struct{}),
	}
}

// Start launches the background scheduling loop with a 60s ticker.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}

	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(schedCtx)
	s.logger.Info("scheduler started")
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	// Run an initial tick immediately.
	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick checks all enabled schedules and runs those that are due.
func (s *Scheduler) tick(ctx context.Context) {
	enabled := true
	scheds, err := s.store.ListSchedules(ctx, store.ScheduleFilter{Enabled: &enabled})
	if err != nil {
		s.logger.Error("failed to list schedules", slog.String("error", err.Error()))
		return
	}

	now := time.Now().UTC()
	for _, sched := range scheds {
		if sched.NextRunAt == nil || !sched.NextRunAt.After(now) {
			if !s.tryAcquire(sched.ID) {
				continue // already running (dedup)
			}
			if err := s.runSchedule(ctx, sched, now); err != nil {
				s.logger.Error("failed to run schedule",
					slog.String("schedule_id", sched.ID),
					slog.String("error", err.Error()),
				)
			}
			s.release(sched.ID)
		}
	}
}

// runSchedule executes a due schedule and updates its timestamps.
func (s *Scheduler) runSchedule(ctx context.Context, sched *store.Schedule, now time.Time) error {
	s.logger.Info("running schedule",
		slog.String("schedule_id", sched.ID),
		slog.String("goal", sched.Goal),
	)
	s.publish(ctx, sched, schema.EventScheduleTriggered, nil)

	req, err := s.buildRequest(sched, now)
	status := "completed"
	if err == nil {
		var result *schema.GoalResult
		result, err = s.runner.Execute(ctx, req)
		if err == nil {
			s.publish(ctx, sched, schema.EventScheduleCompleted, map[string]any{"run_id": result.RunID})
		}
	}
	if err != nil {
		status = "failed"
		s.logger.Error("schedule execution failed",
			slog.String("schedule_id", sched.ID),
			slog.String("goal", sched.Goal),
			slog.String("error", err.Error()),
		)
		s.publish(ctx, sched, schema.EventScheduleFailed, map[string]any{"error": err.Error()})
	}
	s.sink.ScheduleTick(sched.Goal, err)

	return s.updateStatus(ctx, sched, now, status)
}

// buildRequest decodes the schedule's stored params into a goal request. The
// date sentinel "today" resolves to the tick's date, so recurring queries
// always target the current snapshot.
func (s *Scheduler) buildRequest(sched *store.Schedule, now time.Time) (*schema.GoalRequest, error) {
	req := &schema.GoalRequest{}
	if len(sched.Params) > 0 {
		if err := json.Unmarshal(sched.Params, req); err != nil {
			return nil, fmt.Errorf("decode params for schedule %q: %w", sched.ID, err)
		}
	}
	req.Goal = sched.Goal
	if req.Date == "today" {
		req.Date = now.Format("2006-01-02")
	}
	return req, nil
}

func (s *Scheduler) updateStatus(ctx context.Context, sched *store.Schedule, now time.Time, status string) error {
	nextRun, err := s.CalculateNextRun(sched.CronExpression, now)
	if err != nil {
		return fmt.Errorf("calculate next run for schedule %q: %w", sched.ID, err)
	}

	return s.store.UpdateSchedule(ctx, sched.ID, store.ScheduleUpdate{
		LastRunAt:     &now,
		NextRunAt:     &nextRun,
		LastRunStatus: &status,
	})
}

func (s *Scheduler) publish(ctx context.Context, sched *store.Schedule, eventType string, payload map[string]any) {
	if s.hub == nil {
		return
	}
	body := map[string]any{"schedule_id": sched.ID}
	for k, v := range payload {
		body[k] = v
	}
	_ = s.hub.Publish(ctx, streaming.RunEvent{
		Goal:      sched.Goal,
		EventType: eventType,
		Payload:   body,
	})
}

// tryAcquire returns true and marks the schedule as in-flight if it is not already running.
func (s *Scheduler) tryAcquire(id string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, ok := s.inflight[id]; ok {
		return false
	}
	s.inflight[id] = struct{}{}
	return true
}

// release removes the schedule from the in-flight set.
func (s *Scheduler) release(id string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, id)
}

// CalculateNextRun computes the next run time for a cron expression.
func (s *Scheduler) CalculateNextRun(cronExpr string, from time.Time) (time.Time, error) {
	schedule, err := s.parser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	return schedule.Next(from), nil
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil

	s.logger.Info("scheduler stopped")
	return nil
}

// RecoverMissed checks for schedules that missed their next_run_at and runs them once.
func (s *Scheduler) RecoverMissed(ctx context.Context) error {
	enabled := true
	scheds, err := s.store.ListSchedules(ctx, store.ScheduleFilter{Enabled: &enabled})
	if err != nil {
		return fmt.Errorf("list missed schedules: %w", err)
	}

	now := time.Now().UTC()
	recovered := 0
	for _, sched := range scheds {
		if sched.NextRunAt != nil && sched.NextRunAt.Before(now) {
			if !s.tryAcquire(sched.ID) {
				continue
			}
			if err := s.runSchedule(ctx, sched, now); err != nil {
				s.logger.Error("failed to recover missed schedule",
					slog.String("schedule_id", sched.ID),
					slog.String("error", err.Error()),
				)
				s.release(sched.ID)
				continue
			}
			s.release(sched.ID)
			recovered++
		}
	}

	if recovered > 0 {
		s.logger.Info("recovered missed schedules", slog.Int("count", recovered))
	}
	return nil
}
