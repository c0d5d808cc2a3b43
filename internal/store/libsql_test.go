package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabriqa/takt/internal/ontology"
	"github.com/fabriqa/takt/pkg/schema"
)

func newTestStore(t *testing.T) *LibSQLStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	s, err := NewLibSQLStore("file:" + dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() {
		_ = s.Close()
		_ = os.RemoveAll(dir)
	})
	return s
}

func testKBDoc() *ontology.Document {
	return &ontology.Document{
		Goals: []ontology.GoalEntry{
			{Name: "query_failed_jobs", Description: "failed jobs for a date", Head: "cell-1"},
		},
		Cells: []ontology.ListCell{
			{ID: "cell-1", First: "act-query", Rest: "cell-2"},
			{ID: "cell-2", First: "act-fetch", Rest: ontology.TerminalRest},
		},
		Actions: []ontology.ActionEntry{
			{
				ID:             "act-query",
				ExecutionType:  schema.ExecutionQuery,
				TargetID:       "snapshot",
				OutputVariable: "failed_jobs",
				Params:         json.RawMessage(`{"query": ".jobs[] | select(.status == \"FAILED\")"}`),
			},
			{
				ID:             "act-fetch",
				ExecutionType:  schema.ExecutionSubmodelFetch,
				TargetID:       "urn:fabriqa:sm:technical-data",
				OutputVariable: "technical_data",
				Final:          true,
			},
		},
	}
}

// --- Knowledge base ---

func TestSeedKnowledgeBase_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SeedKnowledgeBase(ctx, testKBDoc()))

	goal, err := s.Goal(ctx, "query_failed_jobs")
	require.NoError(t, err)
	assert.Equal(t, "cell-1", goal.Head)
	assert.Equal(t, "failed jobs for a date", goal.Description)

	cell, err := s.Cell(ctx, "cell-2")
	require.NoError(t, err)
	assert.Equal(t, "act-fetch", cell.First)
	assert.True(t, cell.Terminal())

	action, err := s.Action(ctx, "act-query")
	require.NoError(t, err)
	assert.Equal(t, schema.ExecutionQuery, action.ExecutionType)
	assert.Equal(t, "failed_jobs", action.OutputVariable)
	assert.JSONEq(t, `{"query": ".jobs[] | select(.status == \"FAILED\")"}`, string(action.Params))
	assert.False(t, action.Final)

	final, err := s.Action(ctx, "act-fetch")
	require.NoError(t, err)
	assert.True(t, final.Final)
	assert.Empty(t, final.OutputVariable)
}

func TestSeedKnowledgeBase_ReplacesPrevious(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SeedKnowledgeBase(ctx, testKBDoc()))

	replacement := &ontology.Document{
		Goals:   []ontology.GoalEntry{{Name: "other_goal", Head: "c1"}},
		Cells:   []ontology.ListCell{{ID: "c1", First: "a1"}},
		Actions: []ontology.ActionEntry{{ID: "a1", ExecutionType: schema.ExecutionSimulate, Final: true}},
	}
	require.NoError(t, s.SeedKnowledgeBase(ctx, replacement))

	_, err := s.Goal(ctx, "query_failed_jobs")
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))

	goals, err := s.Goals(ctx)
	require.NoError(t, err)
	require.Len(t, goals, 1)
	assert.Equal(t, "other_goal", goals[0].Name)
}

func TestStore_ResolvesThroughResolver(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SeedKnowledgeBase(ctx, testKBDoc()))

	resolver := ontology.NewResolver(s, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	plan, err := resolver.Resolve(ctx, "query_failed_jobs")
	require.NoError(t, err)
	require.Len(t, plan.Actions, 2)
	assert.Equal(t, "act-query", plan.Actions[0].ID)
	assert.Equal(t, 1, plan.Actions[0].Order)
	assert.Equal(t, "act-fetch", plan.Actions[1].ID)
	assert.True(t, plan.Actions[1].Final)

	_, err = resolver.Resolve(ctx, "no_such_goal")
	assert.True(t, schema.IsCode(err, schema.ErrCodeGoalNotFound))
}

func TestKnowledgeBase_NotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Goal(ctx, "missing")
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
	_, err = s.Cell(ctx, "missing")
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
	_, err = s.Action(ctx, "missing")
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}

// --- Snapshots ---

func TestSnapshots_PutGetDates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := map[string]any{
		"jobs": []any{
			map[string]any{"job_id": "J-100", "status": "FAILED", "machine": "M7"},
		},
	}
	require.NoError(t, s.PutSnapshot(ctx, "2025-07-17", doc))
	require.NoError(t, s.PutSnapshot(ctx, "2025-07-16", map[string]any{"jobs": []any{}}))

	got, err := s.Snapshot(ctx, "2025-07-17")
	require.NoError(t, err)
	jobs, ok := got["jobs"].([]any)
	require.True(t, ok)
	require.Len(t, jobs, 1)

	dates, err := s.Dates(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-07-16", "2025-07-17"}, dates)
}

func TestSnapshots_UpsertReplacesDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutSnapshot(ctx, "2025-07-17", map[string]any{"rev": float64(1)}))
	require.NoError(t, s.PutSnapshot(ctx, "2025-07-17", map[string]any{"rev": float64(2)}))

	got, err := s.Snapshot(ctx, "2025-07-17")
	require.NoError(t, err)
	assert.Equal(t, float64(2), got["rev"])

	dates, err := s.Dates(ctx)
	require.NoError(t, err)
	assert.Len(t, dates, 1)
}

func TestSnapshot_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Snapshot(context.Background(), "1999-01-01")
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}

func TestSnapshot_EmptyDateSelectsLatest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutSnapshot(ctx, "2025-07-15", map[string]any{"captured": "old"}))
	require.NoError(t, s.PutSnapshot(ctx, "2025-07-17", map[string]any{"captured": "new"}))
	require.NoError(t, s.PutSnapshot(ctx, "2025-07-16", map[string]any{"captured": "mid"}))

	got, err := s.Snapshot(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "new", got["captured"])
}

func TestSnapshot_EmptyDateOnEmptyStore(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Snapshot(context.Background(), "")
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}

// --- Schedules ---

func seedSchedule(t *testing.T, s *LibSQLStore, goal string) *Schedule {
	t.Helper()
	sched := &Schedule{
		ID:             uuid.New().String(),
		Goal:           goal,
		CronExpression: "0 6 * * *",
		Params:         json.RawMessage(`{"date": "today"}`),
		Enabled:        true,
	}
	require.NoError(t, s.CreateSchedule(context.Background(), sched))
	return sched
}

func TestSchedule_CreateGet(t *testing.T) {
	s := newTestStore(t)
	sched := seedSchedule(t, s, "query_failed_jobs")

	got, err := s.GetSchedule(context.Background(), sched.ID)
	require.NoError(t, err)
	assert.Equal(t, sched.Goal, got.Goal)
	assert.Equal(t, "0 6 * * *", got.CronExpression)
	assert.JSONEq(t, `{"date": "today"}`, string(got.Params))
	assert.True(t, got.Enabled)
	assert.Nil(t, got.LastRunAt)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestSchedule_Update(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sched := seedSchedule(t, s, "query_failed_jobs")

	ranAt := time.Date(2025, 7, 17, 6, 0, 0, 0, time.UTC)
	nextAt := ranAt.Add(24 * time.Hour)
	status := "completed"
	err := s.UpdateSchedule(ctx, sched.ID, ScheduleUpdate{
		LastRunAt:     &ranAt,
		NextRunAt:     &nextAt,
		LastRunStatus: &status,
	})
	require.NoError(t, err)

	got, err := s.GetSchedule(ctx, sched.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastRunAt)
	assert.True(t, got.LastRunAt.Equal(ranAt))
	require.NotNil(t, got.NextRunAt)
	assert.True(t, got.NextRunAt.Equal(nextAt))
	assert.Equal(t, "completed", got.LastRunStatus)

	disabled := false
	require.NoError(t, s.UpdateSchedule(ctx, sched.ID, ScheduleUpdate{Enabled: &disabled}))
	got, err = s.GetSchedule(ctx, sched.ID)
	require.NoError(t, err)
	assert.False(t, got.Enabled)
	// Partial update leaves other fields alone.
	assert.Equal(t, "completed", got.LastRunStatus)
}

func TestSchedule_ListFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedSchedule(t, s, "query_failed_jobs")
	other := seedSchedule(t, s, "predict_first_completion_time")

	disabled := false
	require.NoError(t, s.UpdateSchedule(ctx, other.ID, ScheduleUpdate{Enabled: &disabled}))

	all, err := s.ListSchedules(ctx, ScheduleFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	enabled := true
	active, err := s.ListSchedules(ctx, ScheduleFilter{Enabled: &enabled})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "query_failed_jobs", active[0].Goal)

	byGoal, err := s.ListSchedules(ctx, ScheduleFilter{Goal: "predict_first_completion_time"})
	require.NoError(t, err)
	require.Len(t, byGoal, 1)
	assert.Equal(t, other.ID, byGoal[0].ID)
}

func TestSchedule_DeleteAndNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sched := seedSchedule(t, s, "query_failed_jobs")

	require.NoError(t, s.DeleteSchedule(ctx, sched.ID))
	_, err := s.GetSchedule(ctx, sched.ID)
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))

	err = s.DeleteSchedule(ctx, sched.ID)
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))

	err = s.UpdateSchedule(ctx, sched.ID, ScheduleUpdate{Enabled: &sched.Enabled})
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}
