package actions

import (
	"context"
	"log/slog"

	"github.com/fabriqa/takt/internal/container"
	"github.com/fabriqa/takt/pkg/schema"
)

// ContainerHandler hands job batches to the external containerized
// processor and binds its validated statistics document.
type ContainerHandler struct {
	client *container.Client
	logger *slog.Logger
}

// NewContainerHandler wires the container client.
func NewContainerHandler(client *container.Client, logger *slog.Logger) *ContainerHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ContainerHandler{client: client, logger: logger}
}

// Type implements Handler.
func (h *ContainerHandler) Type() schema.ExecutionType { return schema.ExecutionContainerExec }

// Execute submits the batch named by the jobs param. The param is required
// and typically interpolated from a prior binding, so a missing or
// non-array value means the plan wired the wrong variable into this action.
func (h *ContainerHandler) Execute(ctx context.Context, req Request) (*Response, error) {
	raw, ok := req.Params["jobs"]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"container action %q carries no jobs param", req.Action.ID)
	}
	jobs, ok := raw.([]any)
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"container action %q jobs param must be an array, got %T", req.Action.ID, raw)
	}

	h.logger.DebugContext(ctx, "submitting job batch to container",
		"action", req.Action.ID, "jobs", len(jobs))

	result, err := h.client.Process(ctx, jobs)
	if err != nil {
		return nil, err
	}
	return &Response{Value: result.Document()}, nil
}

var _ Handler = (*ContainerHandler)(nil)
