package snapshot

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fabriqa/takt/pkg/schema"
)

// DirSource serves snapshots from a directory of `<date>.json` files, e.g.
// `2025-07-17.json`. Files are read on demand, so documents dropped into the
// directory become visible without a reload step. ISO dates sort
// lexicographically, which is what makes "latest" a plain string comparison.
type DirSource struct {
	dir string
}

// NewDirSource creates a directory-backed snapshot source.
func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: dir}
}

// Snapshot reads the document for a date, or the lexicographically latest
// file when date is empty.
func (s *DirSource) Snapshot(ctx context.Context, date string) (map[string]any, error) {
	if date == "" {
		dates, err := s.Dates(ctx)
		if err != nil {
			return nil, err
		}
		if len(dates) == 0 {
			return nil, schema.NewErrorf(schema.ErrCodeNotFound, "no snapshots in %s", s.dir)
		}
		date = dates[len(dates)-1]
	}

	doc, err := DecodeFile(filepath.Join(s.dir, date+".json"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "no snapshot captured on %q", date)
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Dates lists the capture dates present in the directory, ascending.
func (s *DirSource) Dates(_ context.Context) ([]string, error) {
	entries, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore,
			"list snapshot directory: %s", err.Error()).WithCause(err)
	}

	dates := make([]string, 0, len(entries))
	for _, e := range entries {
		dates = append(dates, strings.TrimSuffix(filepath.Base(e), ".json"))
	}
	sort.Strings(dates)
	return dates, nil
}
