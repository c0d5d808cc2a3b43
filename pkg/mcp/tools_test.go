package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabriqa/takt/internal/ontology"
	"github.com/fabriqa/takt/internal/service"
	"github.com/fabriqa/takt/internal/sim"
	"github.com/fabriqa/takt/internal/store"
	"github.com/fabriqa/takt/pkg/schema"
)

// --- Mock service ---

type mockService struct {
	executeResult *schema.GoalResult
	executeErr    error
	lastRequest   *schema.GoalRequest

	planResult *schema.ActionPlan
	planErr    error

	goals []ontology.GoalEntry

	simResult  *service.SimulateResult
	simErr     error
	lastSimReq service.SimulateRequest
}

func (m *mockService) Execute(_ context.Context, req *schema.GoalRequest) (*schema.GoalResult, error) {
	m.lastRequest = req
	return m.executeResult, m.executeErr
}

func (m *mockService) Plan(_ context.Context, _ string) (*schema.ActionPlan, error) {
	return m.planResult, m.planErr
}

func (m *mockService) Goals(_ context.Context) ([]ontology.GoalEntry, error) {
	return m.goals, nil
}

func (m *mockService) Simulate(_ context.Context, req service.SimulateRequest) (*service.SimulateResult, error) {
	m.lastSimReq = req
	return m.simResult, m.simErr
}

// --- Mock store ---

type mockScheduleStore struct {
	store.Store // embed for unimplemented methods

	scheds    []*store.Schedule
	createErr error
	deleted   []string
}

func (m *mockScheduleStore) CreateSchedule(_ context.Context, sched *store.Schedule) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.scheds = append(m.scheds, sched)
	return nil
}

func (m *mockScheduleStore) ListSchedules(_ context.Context, filter store.ScheduleFilter) ([]*store.Schedule, error) {
	result := make([]*store.Schedule, 0)
	for _, s := range m.scheds {
		if filter.Goal != "" && s.Goal != filter.Goal {
			continue
		}
		result = append(result, s)
	}
	return result, nil
}

func (m *mockScheduleStore) DeleteSchedule(_ context.Context, id string) error {
	for i, s := range m.scheds {
		if s.ID == id {
			m.scheds = append(m.scheds[:i], m.scheds[i+1:]...)
			m.deleted = append(m.deleted, id)
			return nil
		}
	}
	return schema.NewErrorf(schema.ErrCodeNotFound, "schedule %q not found", id)
}

// --- Helpers ---

func buildRequest(toolName string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      toolName,
			Arguments: args,
		},
	}
}

func resultDocument(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text, ok := mcp.AsTextContent(result.Content[0])
	require.True(t, ok)
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(text.Text), &doc))
	return doc
}

// --- Run ---

func TestRunTool(t *testing.T) {
	svc := &mockService{
		executeResult: &schema.GoalResult{
			Goal:   "query_failed_jobs_with_cooling",
			Params: map[string]any{"date": "2025-07-17"},
			Result: []any{map[string]any{"job_id": "J-100"}},
			RunID:  "run-abc",
		},
	}
	s := NewTaktServer(TaktServerDeps{Service: svc})

	req := buildRequest("takt.run", map[string]any{
		"goal": "query_failed_jobs_with_cooling",
		"date": "2025-07-17",
	})
	result, err := s.handleRun(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.IsError)

	require.NotNil(t, svc.lastRequest)
	assert.Equal(t, "query_failed_jobs_with_cooling", svc.lastRequest.Goal)
	assert.Equal(t, "2025-07-17", svc.lastRequest.Date)

	doc := resultDocument(t, result)
	assert.Equal(t, "run-abc", doc["run_id"])
}

func TestRunToolForwardsPredictionFields(t *testing.T) {
	svc := &mockService{executeResult: &schema.GoalResult{Goal: "predict_first_completion_time", RunID: "run-1"}}
	s := NewTaktServer(TaktServerDeps{Service: svc})

	req := buildRequest("takt.run", map[string]any{
		"goal":       "predict_first_completion_time",
		"product_id": "P1",
		"quantity":   100,
	})
	result, err := s.handleRun(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.IsError)

	assert.Equal(t, "P1", svc.lastRequest.ProductID)
	assert.Equal(t, 100, svc.lastRequest.Quantity)
}

func TestRunToolDateRange(t *testing.T) {
	svc := &mockService{executeResult: &schema.GoalResult{RunID: "run-1"}}
	s := NewTaktServer(TaktServerDeps{Service: svc})

	req := buildRequest("takt.run", map[string]any{
		"goal":       "query_failed_jobs_with_cooling",
		"date_range": map[string]any{"start": "2025-07-01", "end": "2025-07-17"},
	})
	_, err := s.handleRun(context.Background(), req)
	require.NoError(t, err)

	require.NotNil(t, svc.lastRequest.DateRange)
	assert.Equal(t, "2025-07-01", svc.lastRequest.DateRange.Start)
	assert.Equal(t, "2025-07-17", svc.lastRequest.DateRange.End)
}

func TestRunToolMissingGoal(t *testing.T) {
	s := NewTaktServer(TaktServerDeps{Service: &mockService{}})

	result, err := s.handleRun(context.Background(), buildRequest("takt.run", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestRunToolExecutionFailure(t *testing.T) {
	svc := &mockService{executeErr: schema.NewError(schema.ErrCodeGoalNotFound, "goal \"nope\" not declared")}
	s := NewTaktServer(TaktServerDeps{Service: svc})

	result, err := s.handleRun(context.Background(), buildRequest("takt.run", map[string]any{"goal": "nope"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

// --- Plan / Goals ---

func TestPlanTool(t *testing.T) {
	svc := &mockService{
		planResult: &schema.ActionPlan{
			Goal: "query_failed_jobs_with_cooling",
			Actions: []schema.Action{
				{ID: "a1", Type: schema.ExecutionQuery, Order: 1, OutputVariable: "jobs"},
				{ID: "a2", Type: schema.ExecutionSubmodelFetch, Order: 2, OutputVariable: "report", Final: true},
			},
		},
	}
	s := NewTaktServer(TaktServerDeps{Service: svc})

	result, err := s.handlePlan(context.Background(), buildRequest("takt.plan", map[string]any{
		"goal": "query_failed_jobs_with_cooling",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	doc := resultDocument(t, result)
	actions, ok := doc["actions"].([]any)
	require.True(t, ok)
	assert.Len(t, actions, 2)
}

func TestGoalsTool(t *testing.T) {
	svc := &mockService{goals: []ontology.GoalEntry{
		{Name: "query_failed_jobs_with_cooling", Head: "c1"},
		{Name: "predict_first_completion_time", Head: "c9"},
	}}
	s := NewTaktServer(TaktServerDeps{Service: svc})

	result, err := s.handleGoals(context.Background(), buildRequest("takt.goals", nil))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	doc := resultDocument(t, result)
	assert.Equal(t, float64(2), doc["count"])
}

// --- Simulate ---

func simFixtureResult() *service.SimulateResult {
	start := time.Date(2025, 7, 17, 6, 0, 0, 0, time.UTC)
	return &service.SimulateResult{
		Prediction: schema.Prediction{
			Source:                  schema.SourceSimulator,
			PredictedCompletionTime: start.Add(45 * time.Minute),
			MakespanMinutes:         45,
			Confidence:              schema.SimulationConfidence,
			JobsSimulated:           1,
		},
		Result: &sim.Result{
			Timeline: []sim.TimelineEntry{
				{Job: "P1-J0001", Part: "P1-P0001", Operation: "saw_cut", Machine: "M1",
					Start: start, End: start.Add(10 * time.Minute)},
			},
		},
	}
}

func TestSimulateTool(t *testing.T) {
	svc := &mockService{simResult: simFixtureResult()}
	s := NewTaktServer(TaktServerDeps{Service: svc})

	result, err := s.handleSimulate(context.Background(), buildRequest("takt.simulate", map[string]any{
		"product_id": "P1",
		"quantity":   5,
		"seed":       42,
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	assert.Equal(t, "P1", svc.lastSimReq.ProductID)
	assert.Equal(t, 5, svc.lastSimReq.Quantity)
	assert.Equal(t, int64(42), svc.lastSimReq.Seed)

	doc := resultDocument(t, result)
	assert.Equal(t, schema.SourceSimulator, doc["source"])
	assert.NotContains(t, doc, "timeline")
}

func TestSimulateToolMermaidTimeline(t *testing.T) {
	svc := &mockService{simResult: simFixtureResult()}
	s := NewTaktServer(TaktServerDeps{Service: svc})

	result, err := s.handleSimulate(context.Background(), buildRequest("takt.simulate", map[string]any{
		"product_id": "P1",
		"timeline":   "mermaid",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	doc := resultDocument(t, result)
	rendered, ok := doc["timeline"].(string)
	require.True(t, ok)
	assert.Contains(t, rendered, "gantt")
	assert.Contains(t, rendered, "section M1")
}

func TestSimulateToolBadStart(t *testing.T) {
	s := NewTaktServer(TaktServerDeps{Service: &mockService{simResult: simFixtureResult()}})

	result, err := s.handleSimulate(context.Background(), buildRequest("takt.simulate", map[string]any{
		"product_id": "P1",
		"start":      "yesterday",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

// --- Schedule ---

func TestScheduleToolCreate(t *testing.T) {
	ms := &mockScheduleStore{}
	s := NewTaktServer(TaktServerDeps{Service: &mockService{}, Store: ms})

	result, err := s.handleSchedule(context.Background(), buildRequest("takt.schedule", map[string]any{
		"op":     "create",
		"goal":   "query_failed_jobs_with_cooling",
		"cron":   "0 6 * * *",
		"params": map[string]any{"date": "today"},
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	require.Len(t, ms.scheds, 1)
	sched := ms.scheds[0]
	assert.NotEmpty(t, sched.ID)
	assert.Equal(t, "0 6 * * *", sched.CronExpression)
	assert.True(t, sched.Enabled)
	require.NotNil(t, sched.NextRunAt)
	assert.True(t, sched.NextRunAt.After(time.Now().UTC()))
	assert.JSONEq(t, `{"date": "today"}`, string(sched.Params))
}

func TestScheduleToolCreateBadCron(t *testing.T) {
	ms := &mockScheduleStore{}
	s := NewTaktServer(TaktServerDeps{Service: &mockService{}, Store: ms})

	result, err := s.handleSchedule(context.Background(), buildRequest("takt.schedule", map[string]any{
		"op":   "create",
		"goal": "query_failed_jobs_with_cooling",
		"cron": "not a cron",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Empty(t, ms.scheds)
}

func TestScheduleToolListAndDelete(t *testing.T) {
	ms := &mockScheduleStore{scheds: []*store.Schedule{
		{ID: "sched-1", Goal: "query_failed_jobs_with_cooling", CronExpression: "0 6 * * *"},
		{ID: "sched-2", Goal: "predict_first_completion_time", CronExpression: "30 6 * * *"},
	}}
	s := NewTaktServer(TaktServerDeps{Service: &mockService{}, Store: ms})

	result, err := s.handleSchedule(context.Background(), buildRequest("takt.schedule", map[string]any{
		"op": "list", "goal": "predict_first_completion_time",
	}))
	require.NoError(t, err)
	doc := resultDocument(t, result)
	assert.Equal(t, float64(1), doc["count"])

	result, err = s.handleSchedule(context.Background(), buildRequest("takt.schedule", map[string]any{
		"op": "delete", "id": "sched-1",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, []string{"sched-1"}, ms.deleted)
}

func TestScheduleToolUnknownOp(t *testing.T) {
	s := NewTaktServer(TaktServerDeps{Service: &mockService{}, Store: &mockScheduleStore{}})

	result, err := s.handleSchedule(context.Background(), buildRequest("takt.schedule", map[string]any{"op": "pause"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}
