// Package snapshot provides access to factory-floor snapshot documents: the
// point-in-time capture of machines and jobs that query actions evaluate
// expressions against. Documents are schemaless JSON objects keyed by capture
// date (YYYY-MM-DD); by convention they carry `captured_at`, `machines` and
// `jobs` top-level fields, but the query engines impose no fixed shape.
package snapshot

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/fabriqa/takt/pkg/schema"
)

// Source serves snapshot documents by capture date.
//
// Returned documents are shared and must be treated as read-only; the query
// action normalizes them into fresh structures before evaluation.
type Source interface {
	// Snapshot returns the document captured on the given date (YYYY-MM-DD).
	// An empty date selects the most recent capture. A missing date yields a
	// NOT_FOUND error.
	Snapshot(ctx context.Context, date string) (map[string]any, error)

	// Dates lists available capture dates in ascending order.
	Dates(ctx context.Context) ([]string, error)
}

// DecodeDocument decodes one snapshot document. The top level must be a JSON
// object.
func DecodeDocument(r io.Reader) (map[string]any, error) {
	var doc map[string]any
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"decode snapshot document: %s", err.Error()).WithCause(err)
	}
	return doc, nil
}

// DecodeFile reads a snapshot document from disk.
func DecodeFile(path string) (map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore,
			"open snapshot file: %s", err.Error()).WithCause(err)
	}
	defer f.Close()
	return DecodeDocument(f)
}
