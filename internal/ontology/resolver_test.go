package ontology

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabriqa/takt/pkg/schema"
)

// --- fixtures ---

// threeStepDoc models a fetch -> query -> simulate goal.
func threeStepDoc() *Document {
	return &Document{
		Goals: []GoalEntry{
			{Name: "predict_first_completion_time", Head: "cell-1"},
		},
		Cells: []ListCell{
			{ID: "cell-1", First: "fetch-routing", Rest: "cell-2"},
			{ID: "cell-2", First: "query-open-jobs", Rest: "cell-3"},
			{ID: "cell-3", First: "simulate-batch", Rest: TerminalRest},
		},
		Actions: []ActionEntry{
			{ID: "fetch-routing", ExecutionType: schema.ExecutionSubmodelFetch, TargetID: "urn:takt:sm:routing", OutputVariable: "routing"},
			{ID: "query-open-jobs", ExecutionType: schema.ExecutionQuery, OutputVariable: "open_jobs", Params: json.RawMessage(`{"query":".jobs"}`)},
			{ID: "simulate-batch", ExecutionType: schema.ExecutionSimulate, OutputVariable: "prediction", Final: true},
		},
	}
}

func resolverFor(t *testing.T, doc *Document) *Resolver {
	t.Helper()
	kb, err := NewMemoryKB(doc)
	require.NoError(t, err)
	return NewResolver(kb, nil)
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	te, ok := schema.AsTaktError(err)
	require.True(t, ok, "expected TaktError, got %T: %v", err, err)
	assert.Equal(t, code, te.Code, "message: %s", te.Message)
}

// --- happy path ---

func TestResolver_TraversalOrder(t *testing.T) {
	r := resolverFor(t, threeStepDoc())

	plan, err := r.Resolve(context.Background(), "predict_first_completion_time")
	require.NoError(t, err)

	require.Len(t, plan.Actions, 3)
	assert.Equal(t, "fetch-routing", plan.Actions[0].ID)
	assert.Equal(t, "query-open-jobs", plan.Actions[1].ID)
	assert.Equal(t, "simulate-batch", plan.Actions[2].ID)
}

func TestResolver_OrdersContiguousFromOne(t *testing.T) {
	r := resolverFor(t, threeStepDoc())

	plan, err := r.Resolve(context.Background(), "predict_first_completion_time")
	require.NoError(t, err)

	for i, a := range plan.Actions {
		assert.Equal(t, i+1, a.Order)
	}
}

func TestResolver_CarriesAnnotations(t *testing.T) {
	r := resolverFor(t, threeStepDoc())

	plan, err := r.Resolve(context.Background(), "predict_first_completion_time")
	require.NoError(t, err)

	fetch := plan.Actions[0]
	assert.Equal(t, schema.ExecutionSubmodelFetch, fetch.Type)
	assert.Equal(t, "urn:takt:sm:routing", fetch.TargetID)
	assert.Equal(t, "routing", fetch.OutputVariable)

	query := plan.Actions[1]
	assert.JSONEq(t, `{"query":".jobs"}`, string(query.Params))

	final, ok := plan.FinalAction()
	require.True(t, ok)
	assert.Equal(t, "simulate-batch", final.ID)
}

func TestResolver_StableAcrossCalls(t *testing.T) {
	r := resolverFor(t, threeStepDoc())

	p1, err := r.Resolve(context.Background(), "predict_first_completion_time")
	require.NoError(t, err)
	p2, err := r.Resolve(context.Background(), "predict_first_completion_time")
	require.NoError(t, err)

	assert.Equal(t, p1, p2)
}

func TestResolver_EmptyRestEndsList(t *testing.T) {
	doc := threeStepDoc()
	doc.Cells[2].Rest = "" // omitted terminator instead of "nil"
	r := resolverFor(t, doc)

	plan, err := r.Resolve(context.Background(), "predict_first_completion_time")
	require.NoError(t, err)
	assert.Len(t, plan.Actions, 3)
}

// --- failure modes ---

func TestResolver_GoalNotFound(t *testing.T) {
	r := resolverFor(t, threeStepDoc())

	_, err := r.Resolve(context.Background(), "optimize_everything")
	assertCode(t, err, schema.ErrCodeGoalNotFound)
}

func TestResolver_GoalWithoutList(t *testing.T) {
	doc := threeStepDoc()
	doc.Goals[0].Head = ""
	r := resolverFor(t, doc)

	_, err := r.Resolve(context.Background(), "predict_first_completion_time")
	assertCode(t, err, schema.ErrCodeMalformedPlan)
}

func TestResolver_DanglingRestLink(t *testing.T) {
	doc := threeStepDoc()
	doc.Cells[1].Rest = "cell-99"
	r := resolverFor(t, doc)

	_, err := r.Resolve(context.Background(), "predict_first_completion_time")
	assertCode(t, err, schema.ErrCodeMalformedPlan)

	te, _ := schema.AsTaktError(err)
	assert.Equal(t, "cell-99", te.Details["cell"])
}

func TestResolver_CellWithoutFirst(t *testing.T) {
	doc := threeStepDoc()
	doc.Cells[1].First = ""
	r := resolverFor(t, doc)

	_, err := r.Resolve(context.Background(), "predict_first_completion_time")
	assertCode(t, err, schema.ErrCodeMalformedPlan)
}

func TestResolver_MissingActionAnnotation(t *testing.T) {
	doc := threeStepDoc()
	doc.Cells[0].First = "ghost-action"
	r := resolverFor(t, doc)

	_, err := r.Resolve(context.Background(), "predict_first_completion_time")
	assertCode(t, err, schema.ErrCodeMalformedPlan)
	assert.Contains(t, err.Error(), "ghost-action")
}

func TestResolver_CycleDetected(t *testing.T) {
	doc := threeStepDoc()
	doc.Cells[2].Rest = "cell-1"
	r := resolverFor(t, doc)

	_, err := r.Resolve(context.Background(), "predict_first_completion_time")
	assertCode(t, err, schema.ErrCodeMalformedPlan)
	assert.Contains(t, err.Error(), "cycle")
}

func TestResolver_SelfLoopCell(t *testing.T) {
	doc := threeStepDoc()
	doc.Cells[0].Rest = "cell-1"
	r := resolverFor(t, doc)

	_, err := r.Resolve(context.Background(), "predict_first_completion_time")
	assertCode(t, err, schema.ErrCodeMalformedPlan)
}

func TestResolver_UnknownExecutionType(t *testing.T) {
	doc := threeStepDoc()
	doc.Actions[1].ExecutionType = "grpc_call"
	r := resolverFor(t, doc)

	_, err := r.Resolve(context.Background(), "predict_first_completion_time")
	assertCode(t, err, schema.ErrCodeMalformedPlan)
	assert.Contains(t, err.Error(), "grpc_call")
}

func TestResolver_DuplicateOutputVariableRejected(t *testing.T) {
	doc := threeStepDoc()
	doc.Actions[2].OutputVariable = "routing" // collides with fetch-routing
	r := resolverFor(t, doc)

	_, err := r.Resolve(context.Background(), "predict_first_completion_time")
	assertCode(t, err, schema.ErrCodeRebind)
}

// --- document loading ---

func TestLoadDocument_RejectsUnknownFields(t *testing.T) {
	_, err := LoadDocument(strings.NewReader(`{"goals": [], "celz": []}`))
	assertCode(t, err, schema.ErrCodeValidation)
}

func TestNewMemoryKB_DuplicateIDs(t *testing.T) {
	doc := threeStepDoc()
	doc.Actions = append(doc.Actions, doc.Actions[0])

	_, err := NewMemoryKB(doc)
	assertCode(t, err, schema.ErrCodeConflict)
}

func TestMemoryKB_GoalsSorted(t *testing.T) {
	doc := threeStepDoc()
	doc.Goals = append(doc.Goals, GoalEntry{Name: "a_first_goal", Head: "cell-1"})
	kb, err := NewMemoryKB(doc)
	require.NoError(t, err)

	goals, err := kb.Goals(context.Background())
	require.NoError(t, err)
	require.Len(t, goals, 2)
	assert.Equal(t, "a_first_goal", goals[0].Name)
	assert.Equal(t, "predict_first_completion_time", goals[1].Name)
}
