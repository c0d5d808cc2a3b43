package schema

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validPlan() *ActionPlan {
	return &ActionPlan{
		Goal: "predict_first_completion_time",
		Actions: []Action{
			{ID: "fetch-routing", Type: ExecutionSubmodelFetch, TargetID: "urn:takt:sm:routing", OutputVariable: "routing", Order: 1},
			{ID: "simulate-batch", Type: ExecutionSimulate, OutputVariable: "prediction", Order: 2, Final: true},
		},
	}
}

func TestActionPlan_Validate_OK(t *testing.T) {
	result := validPlan().Validate()
	assert.True(t, result.Valid(), "errors: %v", result.Errors)
}

func TestActionPlan_Validate_Empty(t *testing.T) {
	p := &ActionPlan{Goal: "g"}
	result := p.Validate()
	require.False(t, result.Valid())
	assert.Equal(t, ErrCodeMalformedPlan, result.Errors[0].Code)
}

func TestActionPlan_Validate_OrderGap(t *testing.T) {
	p := validPlan()
	p.Actions[1].Order = 3

	result := p.Validate()
	require.False(t, result.Valid())
	assert.Contains(t, result.Errors[0].Message, "contiguously")
}

func TestActionPlan_Validate_DuplicateOrder(t *testing.T) {
	p := validPlan()
	p.Actions[1].Order = 1

	result := p.Validate()
	assert.False(t, result.Valid())
}

func TestActionPlan_Validate_OrdersContiguousFromOne(t *testing.T) {
	p := &ActionPlan{Goal: "g"}
	for i := 0; i < 5; i++ {
		p.Actions = append(p.Actions, Action{
			ID:    fmt.Sprintf("a%d", i),
			Type:  ExecutionQuery,
			Order: i + 1,
		})
	}

	assert.True(t, p.Validate().Valid())

	// Shifting the whole sequence up by one must fail: orders start at 1.
	for i := range p.Actions {
		p.Actions[i].Order++
	}
	assert.False(t, p.Validate().Valid())
}

func TestActionPlan_Validate_UnknownExecutionType(t *testing.T) {
	p := validPlan()
	p.Actions[0].Type = "teleport"

	result := p.Validate()
	require.False(t, result.Valid())
	assert.Contains(t, result.Errors[0].Message, "teleport")
}

func TestActionPlan_Validate_DuplicateOutputVariable(t *testing.T) {
	p := validPlan()
	p.Actions[1].OutputVariable = "routing"

	result := p.Validate()
	require.False(t, result.Valid())
	assert.Equal(t, ErrCodeRebind, result.Errors[0].Code)
}

func TestActionPlan_Validate_FinalWithoutOutput(t *testing.T) {
	p := validPlan()
	p.Actions[1].OutputVariable = ""

	result := p.Validate()
	assert.False(t, result.Valid())
}

func TestActionPlan_FinalAction_Marked(t *testing.T) {
	p := validPlan()
	a, ok := p.FinalAction()
	require.True(t, ok)
	assert.Equal(t, "simulate-batch", a.ID)
}

func TestActionPlan_FinalAction_DefaultsToLastOutput(t *testing.T) {
	p := validPlan()
	p.Actions[1].Final = false

	a, ok := p.FinalAction()
	require.True(t, ok)
	assert.Equal(t, "simulate-batch", a.ID, "last output-producing action wins")
}

func TestActionPlan_FinalAction_NoOutputs(t *testing.T) {
	p := &ActionPlan{
		Goal:    "g",
		Actions: []Action{{ID: "a", Type: ExecutionContainerExec, Order: 1}},
	}
	_, ok := p.FinalAction()
	assert.False(t, ok)
}

func TestKnownExecutionType(t *testing.T) {
	for _, et := range []ExecutionType{ExecutionQuery, ExecutionSubmodelFetch, ExecutionContainerExec, ExecutionSimulate} {
		assert.True(t, KnownExecutionType(et), string(et))
	}
	assert.False(t, KnownExecutionType("SPARQL_QUERY"), "enum names are not wire values")
	assert.False(t, KnownExecutionType(""))
}
