package expressions

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabriqa/takt/pkg/schema"
)

func TestNewCELEngine(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)
	assert.NotNil(t, e)
	assert.Equal(t, "cel", e.Name())
}

// --- Interface compliance ---

func TestCELEngine_ImplementsEngine(t *testing.T) {
	var _ Engine = (*CELEngine)(nil)
}

// --- Predicates over snapshot data ---

func TestCEL_ParamsComparison(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	out, err := e.Evaluate(context.Background(), `params.quantity >= 10`, map[string]any{
		"params": map[string]any{"quantity": 100},
	})
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

func TestCEL_SnapshotFieldAccess(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	out, err := e.Evaluate(context.Background(), `snapshot.captured_at`, querySnapshotWithMeta())
	require.NoError(t, err)
	assert.Equal(t, "2025-07-17T06:00:00Z", out)
}

func TestCEL_ContextVariableGuard(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	data := map[string]any{
		"context": map[string]any{
			"open_jobs": []any{
				map[string]any{"id": "J2", "status": "FAILED"},
			},
		},
	}

	out, err := e.Evaluate(context.Background(), `size(context.open_jobs) > 0`, data)
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

func TestCEL_TernaryRouting(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	data := map[string]any{
		"params": map[string]any{"quantity": 5},
	}

	out, err := e.Evaluate(context.Background(), `params.quantity > 50 ? "bulk" : "standard"`, data)
	require.NoError(t, err)
	assert.Equal(t, "standard", out)
}

func TestCEL_RunMetadata(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	data := map[string]any{
		"run": map[string]any{"goal": "predict_first_completion_time"},
	}

	out, err := e.Evaluate(context.Background(), `run.goal.startsWith("predict")`, data)
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

// --- Missing keys default to empty maps ---

func TestCEL_MissingScopesDefaultEmpty(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	out, err := e.Evaluate(context.Background(), `size(context) == 0 && size(params) == 0`, nil)
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

func TestBuildActivation(t *testing.T) {
	activation := buildActivation(map[string]any{
		"snapshot": map[string]any{"jobs": []any{}},
		"params":   nil,
	})

	assert.Contains(t, activation, "snapshot")
	assert.Contains(t, activation, "params")
	assert.Contains(t, activation, "context")
	assert.Contains(t, activation, "run")
	assert.Equal(t, map[string]any{}, activation["params"])
	assert.Equal(t, map[string]any{}, activation["run"])
}

// --- Error handling ---

func TestCEL_EmptyExpression(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	_, err = e.Evaluate(context.Background(), "", nil)
	require.Error(t, err)

	taktErr, ok := schema.AsTaktError(err)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeValidation, taktErr.Code)
}

func TestCEL_CompileError(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	_, err = e.Evaluate(context.Background(), `params.quantity >`, nil)
	require.Error(t, err)

	taktErr, ok := schema.AsTaktError(err)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeValidation, taktErr.Code)
	assert.Contains(t, taktErr.Message, "compile")
}

func TestCEL_UnknownVariable(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	// Only snapshot/params/context/run are declared.
	_, err = e.Evaluate(context.Background(), `inputs.quantity`, nil)
	require.Error(t, err)

	taktErr, ok := schema.AsTaktError(err)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeValidation, taktErr.Code)
}

func TestCEL_RuntimeError(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	// Missing map key is a runtime error in CEL.
	_, err = e.Evaluate(context.Background(), `params.quantity > 10`, map[string]any{
		"params": map[string]any{"date": "2025-07-17"},
	})
	require.Error(t, err)

	taktErr, ok := schema.AsTaktError(err)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeExecution, taktErr.Code)
}

// --- Program caching ---

func TestCEL_Caching(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	data := map[string]any{"params": map[string]any{"quantity": 1}}

	_, err = e.Evaluate(context.Background(), `params.quantity == 1`, data)
	require.NoError(t, err)

	e.mu.RLock()
	cacheLen := len(e.cache)
	e.mu.RUnlock()
	assert.Equal(t, 1, cacheLen)

	_, err = e.Evaluate(context.Background(), `params.quantity == 1`, data)
	require.NoError(t, err)

	e.mu.RLock()
	cacheLen2 := len(e.cache)
	e.mu.RUnlock()
	assert.Equal(t, 1, cacheLen2)
}

// --- Thread safety ---

func TestCEL_Concurrent(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			data := map[string]any{"params": map[string]any{"quantity": idx}}
			out, evalErr := e.Evaluate(context.Background(), `params.quantity >= 0`, data)
			assert.NoError(t, evalErr, "goroutine %d", idx)
			assert.Equal(t, true, out, "goroutine %d", idx)
		}(i)
	}
	wg.Wait()
}

// querySnapshotWithMeta extends the plant snapshot with capture metadata.
func querySnapshotWithMeta() map[string]any {
	data := querySnapshot()
	snapshot := data["snapshot"].(map[string]any)
	snapshot["captured_at"] = "2025-07-17T06:00:00Z"
	return data
}
