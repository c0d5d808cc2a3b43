// Package container implements the client for container execution backends:
// external job processors invoked by container_exec actions. The wire
// contract is fixed: the backend receives `{jobs, request_id, timestamp}` and
// answers either a success document `{service, total_jobs, processed_jobs,
// statistics}` or an error document `{error, suggestion?}`.
package container

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/fabriqa/takt/internal/metrics"
	"github.com/fabriqa/takt/internal/validation"
	"github.com/fabriqa/takt/pkg/schema"
)

const (
	defaultTimeout         = 30 * time.Second
	defaultMaxResponseBody = 10 * 1024 * 1024 // 10MB

	backendName = "container"
)

// Statistics is the per-run aggregate a container backend reports.
type Statistics struct {
	FailedCount     int `json:"failed_count"`
	CompletedCount  int `json:"completed_count"`
	CoolingRequired int `json:"cooling_required"`
	HeatingRequired int `json:"heating_required"`
}

// Result is the success document of the container contract.
type Result struct {
	Service       string     `json:"service"`
	TotalJobs     int        `json:"total_jobs"`
	ProcessedJobs int        `json:"processed_jobs"`
	Statistics    Statistics `json:"statistics"`
}

// Document renders the result as a plain map, the shape execution contexts
// bind so later query actions can traverse it.
func (r *Result) Document() map[string]any {
	b, _ := json.Marshal(r)
	var doc map[string]any
	_ = json.Unmarshal(b, &doc)
	return doc
}

// Config configures the container client.
type Config struct {
	// Endpoint is the full processing URL, e.g. "http://analyzer:9000/process".
	Endpoint string
	// Timeout bounds one processing call. Zero means the 30s default.
	Timeout time.Duration
	// MaxResponseBody caps how much of a response is read. Zero means 10MB.
	MaxResponseBody int64
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
	// Metrics records backend failures. Nil means no-op.
	Metrics metrics.Sink
}

// Client invokes a container backend.
type Client struct {
	endpoint  string
	timeout   time.Duration
	maxBody   int64
	httpc     *http.Client
	sink      metrics.Sink
	validator *validation.Validator
	logger    *slog.Logger
}

// NewClient creates a container client, normalizing config defaults.
func NewClient(cfg Config, validator *validation.Validator, logger *slog.Logger) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "container endpoint must not be empty")
	}
	if _, err := url.ParseRequestURI(cfg.Endpoint); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"invalid container endpoint %q", cfg.Endpoint).WithCause(err)
	}
	if validator == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "container client needs a validator")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxResponseBody <= 0 {
		cfg.MaxResponseBody = defaultMaxResponseBody
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoopSink()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		endpoint:  cfg.Endpoint,
		timeout:   cfg.Timeout,
		maxBody:   cfg.MaxResponseBody,
		httpc:     cfg.HTTPClient,
		sink:      cfg.Metrics,
		validator: validator,
		logger:    logger,
	}, nil
}

// Process submits a batch of job records and returns the validated success
// document. An error document from the backend surfaces as an EXECUTION_ERROR
// carrying the backend's suggestion; unavailability surfaces as
// BACKEND_UNAVAILABLE or TIMEOUT_ERROR.
func (c *Client) Process(ctx context.Context, jobs []any) (*Result, error) {
	requestID := uuid.NewString()
	payload := map[string]any{
		"jobs":       jobs,
		"request_id": requestID,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeInternal, "marshal container payload").WithCause(err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeInternal, "build container request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	c.logger.DebugContext(ctx, "dispatching container batch",
		slog.String("request_id", requestID),
		slog.Int("jobs", len(jobs)))

	resp, err := c.httpc.Do(req)
	if err != nil {
		c.sink.BackendFailure(backendName, metrics.ClassifyStatus(0, err))
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, schema.NewErrorf(schema.ErrCodeTimeout,
				"container did not answer within %s (request %s)", c.timeout, requestID).WithCause(err)
		}
		return nil, schema.NewErrorf(schema.ErrCodeBackendUnavailable,
			"container unreachable (request %s): %v", requestID, err).WithCause(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	if err != nil {
		c.sink.BackendFailure(backendName, metrics.ClassifyStatus(resp.StatusCode, err))
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"read container response (request %s)", requestID).WithCause(err)
	}

	// The error document may arrive under any status code; it wins over
	// status-based classification because it names the actual problem.
	var envelope struct {
		Error      string `json:"error"`
		Suggestion string `json:"suggestion"`
	}
	if len(respBody) > 0 && json.Unmarshal(respBody, &envelope) == nil && envelope.Error != "" {
		details := map[string]any{"request_id": requestID}
		if envelope.Suggestion != "" {
			details["suggestion"] = envelope.Suggestion
		}
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"container reported: %s", envelope.Error).WithDetails(details)
	}

	if resp.StatusCode >= 500 {
		c.sink.BackendFailure(backendName, metrics.ClassifyStatus(resp.StatusCode, nil))
		return nil, schema.NewErrorf(schema.ErrCodeBackendUnavailable,
			"container returned %d (request %s)", resp.StatusCode, requestID).
			WithDetails(map[string]any{"status_code": resp.StatusCode})
	}
	if resp.StatusCode >= 300 {
		c.sink.BackendFailure(backendName, metrics.ClassifyStatus(resp.StatusCode, nil))
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"container returned %d (request %s)", resp.StatusCode, requestID).
			WithDetails(map[string]any{"status_code": resp.StatusCode})
	}

	var doc map[string]any
	if err := json.Unmarshal(respBody, &doc); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"decode container response (request %s)", requestID).WithCause(err)
	}
	if err := c.validator.ValidateContainerResult(doc); err != nil {
		if te, ok := schema.AsTaktError(err); ok {
			if te.Details == nil {
				te.Details = map[string]any{}
			}
			te.Details["request_id"] = requestID
			return nil, te
		}
		return nil, err
	}

	var result Result
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"decode container result (request %s)", requestID).WithCause(err)
	}
	return &result, nil
}
