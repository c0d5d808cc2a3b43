package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabriqa/takt/pkg/schema"
)

const floorDoc = `{
	"captured_at": "2025-07-17T06:00:00Z",
	"machines": [
		{"id": "M1", "name": "saw", "cooling_required": false, "heating_required": false},
		{"id": "M2", "name": "mill", "cooling_required": true, "heating_required": false}
	],
	"jobs": [
		{"id": "J1", "part": "P1-0001", "product": "Product-A1", "status": "DONE", "machine": "M1"},
		{"id": "J2", "part": "P2-0001", "product": "Product-B1", "status": "FAILED", "machine": "M2"}
	]
}`

// --- decoding ---

func TestDecodeDocument(t *testing.T) {
	doc, err := DecodeDocument(strings.NewReader(floorDoc))
	require.NoError(t, err)

	assert.Equal(t, "2025-07-17T06:00:00Z", doc["captured_at"])

	jobs, ok := doc["jobs"].([]any)
	require.True(t, ok)
	assert.Len(t, jobs, 2)
}

func TestDecodeDocumentRejectsNonObject(t *testing.T) {
	_, err := DecodeDocument(strings.NewReader(`["not", "an", "object"]`))
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestDecodeDocumentRejectsGarbage(t *testing.T) {
	_, err := DecodeDocument(strings.NewReader(`{broken`))
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

// --- memory source ---

func TestMemorySourceByDate(t *testing.T) {
	src := NewMemorySource()
	require.NoError(t, src.Put("2025-07-17", map[string]any{"captured_at": "2025-07-17T06:00:00Z"}))
	require.NoError(t, src.Put("2025-07-18", map[string]any{"captured_at": "2025-07-18T06:00:00Z"}))

	doc, err := src.Snapshot(context.Background(), "2025-07-17")
	require.NoError(t, err)
	assert.Equal(t, "2025-07-17T06:00:00Z", doc["captured_at"])
}

func TestMemorySourceLatest(t *testing.T) {
	src := NewMemorySource()
	require.NoError(t, src.Put("2025-07-16", map[string]any{"d": "old"}))
	require.NoError(t, src.Put("2025-07-18", map[string]any{"d": "new"}))
	require.NoError(t, src.Put("2025-07-17", map[string]any{"d": "middle"}))

	doc, err := src.Snapshot(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "new", doc["d"])
}

func TestMemorySourceMissingDate(t *testing.T) {
	src := NewMemorySource()
	require.NoError(t, src.Put("2025-07-17", map[string]any{}))

	_, err := src.Snapshot(context.Background(), "2025-01-01")
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
	assert.Contains(t, err.Error(), "2025-01-01")
}

func TestMemorySourceEmpty(t *testing.T) {
	src := NewMemorySource()

	_, err := src.Snapshot(context.Background(), "")
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}

func TestMemorySourceRejectsEmptyDate(t *testing.T) {
	src := NewMemorySource()
	err := src.Put("", map[string]any{})
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestMemorySourceDates(t *testing.T) {
	src := NewMemorySource()
	require.NoError(t, src.Put("2025-07-18", map[string]any{}))
	require.NoError(t, src.Put("2025-07-16", map[string]any{}))
	require.NoError(t, src.Put("2025-07-17", map[string]any{}))

	dates, err := src.Dates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-07-16", "2025-07-17", "2025-07-18"}, dates)
}

// --- dir source ---

func writeSnapshotFile(t *testing.T, dir, date, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, date+".json"), []byte(content), 0o644))
}

func TestDirSourceByDate(t *testing.T) {
	dir := t.TempDir()
	writeSnapshotFile(t, dir, "2025-07-17", floorDoc)

	src := NewDirSource(dir)
	doc, err := src.Snapshot(context.Background(), "2025-07-17")
	require.NoError(t, err)
	assert.Equal(t, "2025-07-17T06:00:00Z", doc["captured_at"])
}

func TestDirSourceLatest(t *testing.T) {
	dir := t.TempDir()
	writeSnapshotFile(t, dir, "2025-07-16", `{"d": "old"}`)
	writeSnapshotFile(t, dir, "2025-07-18", `{"d": "new"}`)

	src := NewDirSource(dir)
	doc, err := src.Snapshot(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "new", doc["d"])
}

func TestDirSourceMissingDate(t *testing.T) {
	dir := t.TempDir()
	writeSnapshotFile(t, dir, "2025-07-17", floorDoc)

	src := NewDirSource(dir)
	_, err := src.Snapshot(context.Background(), "2025-01-01")
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}

func TestDirSourceEmptyDir(t *testing.T) {
	src := NewDirSource(t.TempDir())

	_, err := src.Snapshot(context.Background(), "")
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}

func TestDirSourceDates(t *testing.T) {
	dir := t.TempDir()
	writeSnapshotFile(t, dir, "2025-07-18", `{}`)
	writeSnapshotFile(t, dir, "2025-07-16", `{}`)

	src := NewDirSource(dir)
	dates, err := src.Dates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-07-16", "2025-07-18"}, dates)
}

func TestDirSourceMalformedFile(t *testing.T) {
	dir := t.TempDir()
	writeSnapshotFile(t, dir, "2025-07-17", `{broken`)

	src := NewDirSource(dir)
	_, err := src.Snapshot(context.Background(), "2025-07-17")
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

// Interface compliance for both implementations.
var (
	_ Source = (*MemorySource)(nil)
	_ Source = (*DirSource)(nil)
)
