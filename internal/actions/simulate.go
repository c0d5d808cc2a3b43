package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fabriqa/takt/internal/factory"
	"github.com/fabriqa/takt/internal/metrics"
	"github.com/fabriqa/takt/internal/sim"
	"github.com/fabriqa/takt/pkg/schema"
)

// Simulation backend selectors, chosen per action via the "backend" param.
const (
	SimBackendEmbedded = "embedded"
	SimBackendRemote   = "remote"
)

const (
	simBackendName        = "simulator"
	defaultSimTimeout     = 30 * time.Second
	defaultSimMaxRespBody = 10 << 20
)

// SimulateConfig configures the simulation dispatch backend.
type SimulateConfig struct {
	// RemoteURL is the optional remote simulation service. When empty,
	// actions selecting the remote backend fail as unreachable, which
	// routes them into the agent's fallback policy.
	RemoteURL string
	// Timeout bounds each remote call. Defaults to 30s.
	Timeout time.Duration
	// MaxResponseBody caps remote response reads. Defaults to 10 MiB.
	MaxResponseBody int64
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
	// Metrics receives backend failure and job counts. Defaults to noop.
	Metrics metrics.Sink
}

// SimulateHandler runs production simulations. The embedded discrete-event
// engine is the default backend; plans may route an action to a remote
// simulation service instead, accepting that it can be down.
type SimulateHandler struct {
	provider *factory.Provider
	remote   *remoteSimClient
	sink     metrics.Sink
	logger   *slog.Logger
}

// NewSimulateHandler wires the master data provider and, when configured,
// the remote simulation client.
func NewSimulateHandler(provider *factory.Provider, cfg SimulateConfig, logger *slog.Logger) (*SimulateHandler, error) {
	if provider == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "master data provider is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	sink := cfg.Metrics
	if sink == nil {
		sink = metrics.NewNoopSink()
	}

	h := &SimulateHandler{provider: provider, sink: sink, logger: logger}
	if cfg.RemoteURL != "" {
		remote, err := newRemoteSimClient(cfg, sink, logger)
		if err != nil {
			return nil, err
		}
		h.remote = remote
	}
	return h, nil
}

// Type implements Handler.
func (h *SimulateHandler) Type() schema.ExecutionType { return schema.ExecutionSimulate }

// Execute assembles a job batch for the requested product and runs it
// through the selected backend. product_id and quantity may come from the
// action's params or fall back to the goal request.
func (h *SimulateHandler) Execute(ctx context.Context, req Request) (*Response, error) {
	productID, ok := req.LookupString("product_id")
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"simulate action %q names no product_id", req.Action.ID)
	}
	quantity, ok := req.LookupInt("quantity")
	if !ok {
		quantity = 1
	}
	if quantity < 1 {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"simulate action %q quantity must be positive, got %d", req.Action.ID, quantity)
	}
	targetMachine, _ := req.LookupString("target_machine")

	backend, _ := req.Params["backend"].(string)
	if backend == "" {
		backend = SimBackendEmbedded
	}

	switch backend {
	case SimBackendEmbedded:
		return h.runEmbedded(ctx, req, productID, quantity, targetMachine)
	case SimBackendRemote:
		return h.runRemote(ctx, req, productID, quantity, targetMachine)
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"unknown simulation backend %q; available: %s, %s",
			backend, SimBackendEmbedded, SimBackendRemote)
	}
}

func (h *SimulateHandler) runEmbedded(ctx context.Context, req Request, productID string, quantity int, targetMachine string) (*Response, error) {
	md := h.provider.Current()

	jobs, err := md.BuildBatch(productID, quantity, factory.BatchOptions{TargetMachine: targetMachine})
	if err != nil {
		return nil, err
	}

	start, err := h.startTime(req)
	if err != nil {
		return nil, err
	}

	cfg := sim.Config{
		Machines: md.MachineIDs(),
		Start:    start,
		Transit:  md.TransitBetween,
	}
	if seed, ok := req.LookupInt("seed"); ok {
		cfg.Seed = int64(seed)
	}

	h.logger.DebugContext(ctx, "running embedded simulation",
		"action", req.Action.ID, "product_id", productID, "quantity", quantity, "machines", len(cfg.Machines))

	result, err := sim.NewEngine(h.logger).Run(ctx, jobs, cfg)
	if err != nil {
		return nil, err
	}
	h.sink.JobsSimulated(len(jobs))

	pred := schema.Prediction{
		Source:                  schema.SourceSimulator,
		PredictedCompletionTime: result.FirstCompletion,
		MakespanMinutes:         result.Makespan.Minutes(),
		Confidence:              schema.SimulationConfidence,
		JobsSimulated:           len(jobs),
	}
	doc := pred.Document()
	doc["timeline"] = timelineDocument(result.Timeline)
	return &Response{Value: doc}, nil
}

func (h *SimulateHandler) runRemote(ctx context.Context, req Request, productID string, quantity int, targetMachine string) (*Response, error) {
	if h.remote == nil {
		return nil, schema.NewError(schema.ErrCodeBackendUnavailable,
			"remote simulation backend is not configured").
			WithDetails(map[string]any{"backend": SimBackendRemote})
	}

	doc, err := h.remote.Predict(ctx, remoteSimRequest{
		ProductID:     productID,
		Quantity:      quantity,
		TargetMachine: targetMachine,
	})
	if err != nil {
		return nil, err
	}
	if _, ok := doc["source"]; !ok {
		doc["source"] = schema.SourceRemoteSimulator
	}
	return &Response{Value: doc}, nil
}

// startTime reads the optional RFC 3339 "start" param; simulations default
// to starting now.
func (h *SimulateHandler) startTime(req Request) (time.Time, error) {
	raw, ok := req.LookupString("start")
	if !ok {
		return time.Now().UTC(), nil
	}
	start, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, schema.NewErrorf(schema.ErrCodeValidation,
			"simulate action %q start %q is not RFC 3339", req.Action.ID, raw).WithCause(err)
	}
	return start.UTC(), nil
}

// timelineDocument renders timeline entries as the exported event-row shape
// bound into execution contexts.
func timelineDocument(entries []sim.TimelineEntry) []any {
	rows := sim.ExportRows(entries)
	b, _ := json.Marshal(rows)
	var doc []any
	_ = json.Unmarshal(b, &doc)
	return doc
}

// remoteSimRequest is the payload posted to the remote simulation service.
type remoteSimRequest struct {
	ProductID     string `json:"product_id"`
	Quantity      int    `json:"quantity"`
	TargetMachine string `json:"target_machine,omitempty"`
}

// remoteSimClient calls the remote simulation service. It mirrors the
// registry and container clients: bounded timeout, capped response reads,
// unreachability and 5xx mapped to backend-unavailable errors.
type remoteSimClient struct {
	baseURL    string
	httpClient *http.Client
	maxBody    int64
	sink       metrics.Sink
	logger     *slog.Logger
}

func newRemoteSimClient(cfg SimulateConfig, sink metrics.Sink, logger *slog.Logger) (*remoteSimClient, error) {
	if _, err := url.ParseRequestURI(cfg.RemoteURL); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"invalid remote simulation URL %q", cfg.RemoteURL).WithCause(err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultSimTimeout
	}
	maxBody := cfg.MaxResponseBody
	if maxBody <= 0 {
		maxBody = defaultSimMaxRespBody
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &remoteSimClient{
		baseURL:    strings.TrimRight(cfg.RemoteURL, "/"),
		httpClient: httpClient,
		maxBody:    maxBody,
		sink:       sink,
		logger:     logger,
	}, nil
}

// Predict posts the simulation request and decodes the prediction document
// the service returns.
func (c *remoteSimClient) Predict(ctx context.Context, simReq remoteSimRequest) (map[string]any, error) {
	body, err := json.Marshal(simReq)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeInternal, "encode simulation request").WithCause(err)
	}

	endpoint := c.baseURL + "/simulations"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeInternal, "build simulation request").WithCause(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.sink.BackendFailure(simBackendName, metrics.ClassifyStatus(0, err))
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, schema.NewErrorf(schema.ErrCodeTimeout,
				"simulation service timed out: %s", endpoint).WithCause(err)
		}
		return nil, schema.NewErrorf(schema.ErrCodeBackendUnavailable,
			"simulation service unreachable: %s", endpoint).WithCause(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeBackendUnavailable, "read simulation response").WithCause(err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		c.sink.BackendFailure(simBackendName, metrics.ClassifyStatus(resp.StatusCode, nil))
		return nil, schema.NewErrorf(schema.ErrCodeBackendUnavailable,
			"simulation service returned %d", resp.StatusCode).
			WithDetails(map[string]any{"status_code": resp.StatusCode, "body": truncateBody(data, 512)})
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		c.sink.BackendFailure(simBackendName, metrics.ClassifyStatus(resp.StatusCode, nil))
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"simulation service returned %d", resp.StatusCode).
			WithDetails(map[string]any{"status_code": resp.StatusCode, "body": truncateBody(data, 512)})
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, schema.NewError(schema.ErrCodeExecution,
			"simulation service returned malformed JSON").WithCause(err)
	}
	return doc, nil
}

func truncateBody(b []byte, n int) string {
	s := string(b)
	if len(s) > n {
		return s[:n] + fmt.Sprintf("... (%d bytes)", len(s))
	}
	return s
}

var _ Handler = (*SimulateHandler)(nil)
