package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/robfig/cron/v3"

	"github.com/fabriqa/takt/internal/service"
	"github.com/fabriqa/takt/internal/store"
	"github.com/fabriqa/takt/internal/timeline"
	"github.com/fabriqa/takt/pkg/schema"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// handleRun resolves and executes a goal.
func (s *TaktServer) handleRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	goal, err := req.RequireString("goal")
	if err != nil {
		return mcp.NewToolResultError("goal is required"), nil
	}

	goalReq := &schema.GoalRequest{
		Goal:          goal,
		Date:          req.GetString("date", ""),
		ProductID:     req.GetString("product_id", ""),
		TargetMachine: req.GetString("target_machine", ""),
		Quantity:      req.GetInt("quantity", 0),
	}
	if dr := mcp.ParseStringMap(req, "date_range", nil); dr != nil {
		start, _ := dr["start"].(string)
		end, _ := dr["end"].(string)
		goalReq.DateRange = &schema.DateRange{Start: start, End: end}
	}

	// Remember which session asked for this goal so the notifier can push
	// its run events back.
	s.captureSession(ctx, goal)

	result, runErr := s.service.Execute(ctx, goalReq)
	if runErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("goal execution failed: %v", runErr)), nil
	}
	return marshalResult(result)
}

// handlePlan resolves a goal without executing it.
func (s *TaktServer) handlePlan(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	goal, err := req.RequireString("goal")
	if err != nil {
		return mcp.NewToolResultError("goal is required"), nil
	}

	plan, planErr := s.service.Plan(ctx, goal)
	if planErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("plan resolution failed: %v", planErr)), nil
	}
	return marshalResult(plan)
}

// handleGoals lists the knowledge base's goals.
func (s *TaktServer) handleGoals(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	goals, err := s.service.Goals(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("goal listing failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"goals": goals, "count": len(goals)})
}

// handleSimulate runs the embedded simulator directly.
func (s *TaktServer) handleSimulate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	productID, err := req.RequireString("product_id")
	if err != nil {
		return mcp.NewToolResultError("product_id is required"), nil
	}

	simReq := service.SimulateRequest{
		ProductID:     productID,
		Quantity:      req.GetInt("quantity", 1),
		TargetMachine: req.GetString("target_machine", ""),
		Seed:          int64(req.GetInt("seed", 0)),
	}
	if raw := req.GetString("start", ""); raw != "" {
		start, parseErr := time.Parse(time.RFC3339, raw)
		if parseErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid start time: %v", parseErr)), nil
		}
		simReq.Start = start
	}

	res, simErr := s.service.Simulate(ctx, simReq)
	if simErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("simulation failed: %v", simErr)), nil
	}

	doc := res.Prediction.Document()
	switch format := req.GetString("timeline", "none"); format {
	case "none", "":
	case "mermaid", "text":
		chart, chartErr := timeline.Build(fmt.Sprintf("Batch of %s", productID), res.Result.Timeline)
		if chartErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("timeline build failed: %v", chartErr)), nil
		}
		if format == "mermaid" {
			doc["timeline"] = timeline.RenderMermaidGantt(chart)
		} else {
			doc["timeline"] = timeline.RenderText(chart, timeline.DefaultTextWidth)
		}
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown timeline format %q", format)), nil
	}
	return marshalResult(doc)
}

// handleSchedule manages recurring goal runs.
func (s *TaktServer) handleSchedule(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.store == nil {
		return mcp.NewToolResultError("no schedule store configured"), nil
	}
	op, err := req.RequireString("op")
	if err != nil {
		return mcp.NewToolResultError("op is required"), nil
	}

	switch op {
	case "create":
		return s.createSchedule(ctx, req)
	case "list":
		filter := store.ScheduleFilter{Goal: req.GetString("goal", "")}
		scheds, listErr := s.store.ListSchedules(ctx, filter)
		if listErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("schedule listing failed: %v", listErr)), nil
		}
		return marshalResult(map[string]any{"schedules": scheds, "count": len(scheds)})
	case "delete":
		id := req.GetString("id", "")
		if id == "" {
			return mcp.NewToolResultError("id is required for delete"), nil
		}
		if delErr := s.store.DeleteSchedule(ctx, id); delErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("schedule delete failed: %v", delErr)), nil
		}
		return marshalResult(map[string]any{"deleted": id})
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown op %q", op)), nil
	}
}

func (s *TaktServer) createSchedule(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	goal := req.GetString("goal", "")
	if goal == "" {
		return mcp.NewToolResultError("goal is required for create"), nil
	}
	cronExpr := req.GetString("cron", "")
	if cronExpr == "" {
		return mcp.NewToolResultError("cron is required for create"), nil
	}
	cronSched, parseErr := cronParser.Parse(cronExpr)
	if parseErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid cron expression: %v", parseErr)), nil
	}

	var params json.RawMessage
	if m := mcp.ParseStringMap(req, "params", nil); m != nil {
		data, marshalErr := json.Marshal(m)
		if marshalErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid params: %v", marshalErr)), nil
		}
		params = data
	}

	next := cronSched.Next(time.Now().UTC())
	sched := &store.Schedule{
		ID:             uuid.New().String(),
		Goal:           goal,
		CronExpression: cronExpr,
		Params:         params,
		Enabled:        true,
		NextRunAt:      &next,
	}
	if createErr := s.store.CreateSchedule(ctx, sched); createErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("schedule create failed: %v", createErr)), nil
	}
	return marshalResult(sched)
}

// captureSession maps the calling MCP session to the goal it launched, for
// run event push.
func (s *TaktServer) captureSession(ctx context.Context, goal string) {
	if session := server.ClientSessionFromContext(ctx); session != nil {
		s.sessions.Register(goal, session.SessionID())
	}
}

func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
