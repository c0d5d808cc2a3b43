package actions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabriqa/takt/pkg/schema"
)

// --- helpers ---

type stubHandler struct {
	execType schema.ExecutionType
	value    any
	err      error
}

func (s *stubHandler) Type() schema.ExecutionType { return s.execType }

func (s *stubHandler) Execute(_ context.Context, _ Request) (*Response, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &Response{Value: s.value}, nil
}

// --- Register / Get ---

func TestRegistry_RegisterAndGet(t *testing.T) {
	reg := NewRegistry()
	h := &stubHandler{execType: schema.ExecutionQuery, value: "ok"}

	require.NoError(t, reg.Register(h))

	got, err := reg.Get(schema.ExecutionQuery)
	require.NoError(t, err)
	assert.Same(t, Handler(h), got)
}

func TestRegistry_DuplicateType(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&stubHandler{execType: schema.ExecutionSimulate}))

	err := reg.Register(&stubHandler{execType: schema.ExecutionSimulate})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeConflict, schema.CodeOf(err))
}

func TestRegistry_NilHandler(t *testing.T) {
	reg := NewRegistry()

	err := reg.Register(nil)
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))
}

func TestRegistry_EmptyType(t *testing.T) {
	reg := NewRegistry()

	err := reg.Register(&stubHandler{execType: ""})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))
}

func TestRegistry_GetMissing(t *testing.T) {
	reg := NewRegistry()

	_, err := reg.Get(schema.ExecutionContainerExec)
	require.Error(t, err)

	taktErr, ok := schema.AsTaktError(err)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeInternal, taktErr.Code)
	assert.Contains(t, taktErr.Message, "container_exec")
}

// --- Has / Types ---

func TestRegistry_Has(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&stubHandler{execType: schema.ExecutionSubmodelFetch}))

	assert.True(t, reg.Has(schema.ExecutionSubmodelFetch))
	assert.False(t, reg.Has(schema.ExecutionSimulate))
}

func TestRegistry_TypesSorted(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&stubHandler{execType: schema.ExecutionSubmodelFetch}))
	require.NoError(t, reg.Register(&stubHandler{execType: schema.ExecutionContainerExec}))
	require.NoError(t, reg.Register(&stubHandler{execType: schema.ExecutionSimulate}))

	assert.Equal(t, []schema.ExecutionType{
		schema.ExecutionContainerExec,
		schema.ExecutionSimulate,
		schema.ExecutionSubmodelFetch,
	}, reg.Types())
}

// --- Request helpers ---

func TestRequest_LookupFallsBackToScope(t *testing.T) {
	req := Request{
		Params: map[string]any{"quantity": float64(5)},
		Scope:  scopeWithParams(map[string]any{"product_id": "P1", "quantity": 100}),
	}

	product, ok := req.LookupString("product_id")
	require.True(t, ok)
	assert.Equal(t, "P1", product)

	// Action params win over request params.
	quantity, ok := req.LookupInt("quantity")
	require.True(t, ok)
	assert.Equal(t, 5, quantity)
}

func TestRequest_LookupMissing(t *testing.T) {
	req := Request{Params: map[string]any{}}

	_, ok := req.LookupString("product_id")
	assert.False(t, ok)

	_, ok = req.LookupInt("quantity")
	assert.False(t, ok)
}

func TestRequest_LookupStringRejectsEmptyAndNonString(t *testing.T) {
	req := Request{Params: map[string]any{"a": "", "b": 7}}

	_, ok := req.LookupString("a")
	assert.False(t, ok)
	_, ok = req.LookupString("b")
	assert.False(t, ok)
}

func TestDecodeParams(t *testing.T) {
	params, err := DecodeParams([]byte(`{"query":".jobs","date":"2025-07-17"}`))
	require.NoError(t, err)
	assert.Equal(t, ".jobs", params["query"])

	params, err = DecodeParams(nil)
	require.NoError(t, err)
	assert.NotNil(t, params)
	assert.Empty(t, params)

	_, err = DecodeParams([]byte(`["not","an","object"]`))
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeMalformedPlan, schema.CodeOf(err))
}
