package actions

import (
	"context"
	"log/slog"

	"github.com/fabriqa/takt/internal/registry"
	"github.com/fabriqa/takt/pkg/schema"
)

// SubmodelHandler fetches asset submodel documents from the external
// registry. The submodel id is the action's target id unless the params
// override it; both arrive interpolated.
type SubmodelHandler struct {
	client *registry.Client
	logger *slog.Logger
}

// NewSubmodelHandler wires the registry client.
func NewSubmodelHandler(client *registry.Client, logger *slog.Logger) *SubmodelHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubmodelHandler{client: client, logger: logger}
}

// Type implements Handler.
func (h *SubmodelHandler) Type() schema.ExecutionType { return schema.ExecutionSubmodelFetch }

// Execute fetches the submodel. An absent submodel binds an empty document:
// downstream queries treat a missing asset description as an empty result,
// not a failed run.
func (h *SubmodelHandler) Execute(ctx context.Context, req Request) (*Response, error) {
	id, _ := req.Params["submodel_id"].(string)
	if id == "" {
		id = req.Action.TargetID
	}
	if id == "" {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"submodel action %q names no target id", req.Action.ID)
	}

	doc, err := h.client.FetchSubmodel(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		h.logger.DebugContext(ctx, "submodel absent, binding empty document",
			"action", req.Action.ID, "submodel_id", id)
		doc = map[string]any{}
	}
	return &Response{Value: doc}, nil
}

var _ Handler = (*SubmodelHandler)(nil)
