package ontology

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/fabriqa/takt/pkg/schema"
)

// Document is the JSON seed shape for a knowledge base.
type Document struct {
	Goals   []GoalEntry   `json:"goals"`
	Cells   []ListCell    `json:"cells"`
	Actions []ActionEntry `json:"actions"`
}

// LoadDocument decodes a knowledge base document, rejecting unknown fields
// so typos in hand-authored files surface instead of vanishing.
func LoadDocument(r io.Reader) (*Document, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"decode knowledge base document: %s", err.Error()).WithCause(err)
	}
	return &doc, nil
}

// LoadFile reads a knowledge base document from disk.
func LoadFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore,
			"open knowledge base file: %s", err.Error()).WithCause(err)
	}
	defer f.Close()
	return LoadDocument(f)
}

// MemoryKB is an in-memory KnowledgeBase backed by plain maps. Instances are
// immutable after construction, so concurrent reads need no locking; reloads
// build a fresh instance and swap the reference.
type MemoryKB struct {
	goals   map[string]GoalEntry
	cells   map[string]ListCell
	actions map[string]ActionEntry
}

// NewMemoryKB indexes a document. Duplicate ids within a section are a
// CONFLICT: the store cannot guess which entry the author meant.
func NewMemoryKB(doc *Document) (*MemoryKB, error) {
	kb := &MemoryKB{
		goals:   make(map[string]GoalEntry, len(doc.Goals)),
		cells:   make(map[string]ListCell, len(doc.Cells)),
		actions: make(map[string]ActionEntry, len(doc.Actions)),
	}

	for _, g := range doc.Goals {
		if g.Name == "" {
			return nil, schema.NewError(schema.ErrCodeValidation, "goal with empty name")
		}
		if _, dup := kb.goals[g.Name]; dup {
			return nil, schema.NewErrorf(schema.ErrCodeConflict, "duplicate goal %q", g.Name)
		}
		kb.goals[g.Name] = g
	}
	for _, c := range doc.Cells {
		if c.ID == "" {
			return nil, schema.NewError(schema.ErrCodeValidation, "cell with empty id")
		}
		if _, dup := kb.cells[c.ID]; dup {
			return nil, schema.NewErrorf(schema.ErrCodeConflict, "duplicate cell %q", c.ID)
		}
		kb.cells[c.ID] = c
	}
	for _, a := range doc.Actions {
		if a.ID == "" {
			return nil, schema.NewError(schema.ErrCodeValidation, "action with empty id")
		}
		if _, dup := kb.actions[a.ID]; dup {
			return nil, schema.NewErrorf(schema.ErrCodeConflict, "duplicate action %q", a.ID)
		}
		kb.actions[a.ID] = a
	}

	return kb, nil
}

// Goal returns the entry for a goal name.
func (kb *MemoryKB) Goal(_ context.Context, name string) (*GoalEntry, error) {
	g, ok := kb.goals[name]
	if !ok {
		return nil, notFound("goal", name)
	}
	return &g, nil
}

// Cell returns one list cell by id.
func (kb *MemoryKB) Cell(_ context.Context, id string) (*ListCell, error) {
	c, ok := kb.cells[id]
	if !ok {
		return nil, notFound("cell", id)
	}
	return &c, nil
}

// Action returns one action entry by id.
func (kb *MemoryKB) Action(_ context.Context, id string) (*ActionEntry, error) {
	a, ok := kb.actions[id]
	if !ok {
		return nil, notFound("action", id)
	}
	return &a, nil
}

// Goals lists all declared goals sorted by name.
func (kb *MemoryKB) Goals(_ context.Context) ([]GoalEntry, error) {
	out := make([]GoalEntry, 0, len(kb.goals))
	for _, g := range kb.goals {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func notFound(resource, id string) *schema.TaktError {
	return schema.NewError(schema.ErrCodeNotFound, fmt.Sprintf("%s %q not found", resource, id))
}
