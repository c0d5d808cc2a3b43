package actions

import (
	"context"
	"log/slog"

	"github.com/fabriqa/takt/internal/expressions"
	"github.com/fabriqa/takt/internal/snapshot"
	"github.com/fabriqa/takt/pkg/schema"
)

// QueryHandler evaluates query actions against a factory snapshot. The
// query text comes from the action's params, already interpolated; the
// dialect defaults to jq and may be overridden per action via the "engine"
// param.
type QueryHandler struct {
	engines *expressions.Engines
	source  snapshot.Source
	logger  *slog.Logger
}

// NewQueryHandler wires the query dialects to a snapshot source.
func NewQueryHandler(engines *expressions.Engines, source snapshot.Source, logger *slog.Logger) *QueryHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryHandler{engines: engines, source: source, logger: logger}
}

// Type implements Handler.
func (h *QueryHandler) Type() schema.ExecutionType { return schema.ExecutionQuery }

// Execute loads the snapshot for the requested date (the run's date param
// when the action names none, the most recent capture when neither does)
// and evaluates the query over it. The data root exposes the snapshot plus
// the run's params, context bindings, and metadata.
func (h *QueryHandler) Execute(ctx context.Context, req Request) (*Response, error) {
	query, ok := req.Params["query"].(string)
	if !ok || query == "" {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"query action %q carries no query text", req.Action.ID)
	}

	engineName, _ := req.Params["engine"].(string)
	engine, err := h.engines.Select(engineName)
	if err != nil {
		return nil, err
	}

	date, _ := req.LookupString("date")
	doc, err := h.source.Snapshot(ctx, date)
	if err != nil {
		return nil, err
	}

	scope := req.Scope
	if scope == nil {
		scope = &expressions.Scope{}
	}
	data := expressions.NormalizeMap(map[string]any{
		"snapshot": doc,
		"params":   scope.Params,
		"context":  scope.Context,
		"run":      scope.Run,
	})

	h.logger.DebugContext(ctx, "evaluating snapshot query",
		"action", req.Action.ID, "engine", engine.Name(), "date", date)

	value, err := engine.Evaluate(ctx, query, data)
	if err != nil {
		return nil, err
	}
	return &Response{Value: value}, nil
}

var _ Handler = (*QueryHandler)(nil)
