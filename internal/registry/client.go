// Package registry implements the asset registry client behind
// submodel_fetch actions. The registry serves submodel documents over plain
// HTTP; ids that are URNs must be transport-encoded before they can appear in
// a URL path.
package registry

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fabriqa/takt/internal/metrics"
	"github.com/fabriqa/takt/pkg/schema"
)

const (
	defaultTimeout         = 10 * time.Second
	defaultMaxResponseBody = 10 * 1024 * 1024 // 10MB

	backendName = "registry"
)

// Config configures the registry client.
type Config struct {
	// BaseURL is the registry root, e.g. "http://registry:8081".
	BaseURL string
	// Timeout bounds each fetch. Zero means the 10s default.
	Timeout time.Duration
	// MaxResponseBody caps how much of a response is read. Zero means 10MB.
	MaxResponseBody int64
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
	// Metrics records backend failures. Nil means no-op.
	Metrics metrics.Sink
}

// Client fetches submodel documents from an asset registry.
type Client struct {
	baseURL string
	timeout time.Duration
	maxBody int64
	httpc   *http.Client
	sink    metrics.Sink
	logger  *slog.Logger
}

// NewClient creates a registry client, normalizing config defaults.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "registry base URL must not be empty")
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"invalid registry base URL %q", cfg.BaseURL).WithCause(err)
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
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.Timeout,
		maxBody: cfg.MaxResponseBody,
		httpc:   cfg.HTTPClient,
		sink:    cfg.Metrics,
		logger:  logger,
	}, nil
}

// EncodeID prepares a submodel id for path insertion. URN ids are base64url
// encoded (unpadded); anything else is percent-escaped.
func EncodeID(id string) string {
	if strings.HasPrefix(id, "urn:") {
		return base64.RawURLEncoding.EncodeToString([]byte(id))
	}
	return url.PathEscape(id)
}

// FetchSubmodel retrieves one submodel document by id.
//
// A 404 means the submodel does not exist and yields (nil, nil): callers bind
// an explicit empty document rather than failing the plan. All other failures
// return an error tagged with the backend's availability.
func (c *Client) FetchSubmodel(ctx context.Context, id string) (map[string]any, error) {
	if id == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "submodel id must not be empty")
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	target := fmt.Sprintf("%s/submodels/%s", c.baseURL, EncodeID(id))
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeInternal,
			"build registry request for %q", id).WithCause(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		c.sink.BackendFailure(backendName, metrics.ClassifyStatus(0, err))
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, schema.NewErrorf(schema.ErrCodeTimeout,
				"registry did not answer within %s for submodel %q", c.timeout, id).WithCause(err)
		}
		return nil, schema.NewErrorf(schema.ErrCodeBackendUnavailable,
			"registry unreachable fetching submodel %q: %v", id, err).WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		c.logger.DebugContext(ctx, "submodel not in registry",
			slog.String("submodel_id", id))
		return nil, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	if err != nil {
		c.sink.BackendFailure(backendName, metrics.ClassifyStatus(resp.StatusCode, err))
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"read registry response for submodel %q", id).WithCause(err)
	}

	if resp.StatusCode >= 500 {
		c.sink.BackendFailure(backendName, metrics.ClassifyStatus(resp.StatusCode, nil))
		return nil, schema.NewErrorf(schema.ErrCodeBackendUnavailable,
			"registry returned %d for submodel %q", resp.StatusCode, id).
			WithDetails(map[string]any{"status_code": resp.StatusCode, "body": truncate(string(body), 512)})
	}
	if resp.StatusCode >= 300 {
		c.sink.BackendFailure(backendName, metrics.ClassifyStatus(resp.StatusCode, nil))
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"registry returned %d for submodel %q", resp.StatusCode, id).
			WithDetails(map[string]any{"status_code": resp.StatusCode, "body": truncate(string(body), 512)})
	}

	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"decode registry response for submodel %q", id).WithCause(err)
	}
	return doc, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
