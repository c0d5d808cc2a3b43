package actions

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabriqa/takt/internal/registry"
	"github.com/fabriqa/takt/pkg/schema"
)

// --- helpers ---

func newSubmodelHandler(t *testing.T, baseURL string) *SubmodelHandler {
	t.Helper()
	client, err := registry.NewClient(registry.Config{BaseURL: baseURL}, nil)
	require.NoError(t, err)
	return NewSubmodelHandler(client, nil)
}

func submodelRequest(targetID string, params map[string]any) Request {
	if params == nil {
		params = map[string]any{}
	}
	return Request{
		Action: schema.Action{
			ID:             "fetch-routing",
			Type:           schema.ExecutionSubmodelFetch,
			TargetID:       targetID,
			OutputVariable: "routing",
			Order:          1,
		},
		Params: params,
	}
}

// --- Execute ---

func TestSubmodelHandler_FetchByTargetID(t *testing.T) {
	const urn = "urn:factory:submodel:routing:P1"
	encoded := base64.RawURLEncoding.EncodeToString([]byte(urn))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/submodels/"+encoded, r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"idShort": "routing",
			"steps":   []any{map[string]any{"operation": "saw_cut", "machine": "M1"}},
		})
	}))
	defer server.Close()

	h := newSubmodelHandler(t, server.URL)
	resp, err := h.Execute(context.Background(), submodelRequest(urn, nil))
	require.NoError(t, err)

	doc, ok := resp.Value.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "routing", doc["idShort"])
}

func TestSubmodelHandler_ParamsOverrideTargetID(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	h := newSubmodelHandler(t, server.URL)
	_, err := h.Execute(context.Background(), submodelRequest(
		"urn:factory:submodel:routing:P1",
		map[string]any{"submodel_id": "plain-id"}))
	require.NoError(t, err)
	assert.Equal(t, "/submodels/plain-id", gotPath)
}

func TestSubmodelHandler_AbsentSubmodelBindsEmptyDocument(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	h := newSubmodelHandler(t, server.URL)
	resp, err := h.Execute(context.Background(), submodelRequest("urn:factory:submodel:routing:P9", nil))
	require.NoError(t, err)

	doc, ok := resp.Value.(map[string]any)
	require.True(t, ok)
	assert.Empty(t, doc)
}

func TestSubmodelHandler_NoTargetID(t *testing.T) {
	h := newSubmodelHandler(t, "http://registry.invalid")

	_, err := h.Execute(context.Background(), submodelRequest("", nil))
	require.Error(t, err)

	taktErr, ok := schema.AsTaktError(err)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeValidation, taktErr.Code)
	assert.Contains(t, taktErr.Message, "fetch-routing")
}

func TestSubmodelHandler_BackendErrorPropagates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	h := newSubmodelHandler(t, server.URL)
	_, err := h.Execute(context.Background(), submodelRequest("urn:factory:submodel:routing:P1", nil))
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeBackendUnavailable, schema.CodeOf(err))
}
