// Package ontology resolves declarative goals into ordered action plans.
//
// The knowledge base models each goal as a linked list of cells: every cell
// names an action (first) and the next cell (rest). The authoring format is
// deliberately opaque; implementations may sit on a triple store, a JSON
// document, or SQL. The contract is "ordered action list per goal".
package ontology

import (
	"context"
	"encoding/json"

	"github.com/fabriqa/takt/pkg/schema"
)

// TerminalRest marks the end of an action list in documents that spell the
// terminator out instead of omitting the rest link.
const TerminalRest = "nil"

// GoalEntry names a goal and the head cell of its action list.
type GoalEntry struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Head        string `json:"head"`
}

// ListCell is one cell of a goal's linked action list.
type ListCell struct {
	ID    string `json:"id"`
	First string `json:"first"`
	Rest  string `json:"rest,omitempty"`
}

// Terminal reports whether this cell ends its list.
func (c *ListCell) Terminal() bool {
	return c.Rest == "" || c.Rest == TerminalRest
}

// ActionEntry is the knowledge base's annotation set for one action node.
type ActionEntry struct {
	ID             string               `json:"id"`
	ExecutionType  schema.ExecutionType `json:"execution_type"`
	TargetID       string               `json:"target_id,omitempty"`
	OutputVariable string               `json:"output_variable,omitempty"`
	Params         json.RawMessage      `json:"params,omitempty"`
	Final          bool                 `json:"final,omitempty"`
}

// KnowledgeBase is the capability interface the resolver queries. Lookups
// for unknown ids fail with a NOT_FOUND error; the resolver decides what
// that means for the plan. Implementations must be safe for concurrent
// reads: the process treats a loaded knowledge base as immutable and swaps
// in a replacement to update it.
type KnowledgeBase interface {
	Goal(ctx context.Context, name string) (*GoalEntry, error)
	Cell(ctx context.Context, id string) (*ListCell, error)
	Action(ctx context.Context, id string) (*ActionEntry, error)
	Goals(ctx context.Context) ([]GoalEntry, error)
}
