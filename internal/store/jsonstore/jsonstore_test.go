package jsonstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idilsaglam/tada/internal/model"
)

func TestLoadMissingFile(t *testing.T) {
	entries, err := Load(filepath.Join(t.TempDir(), "todos.json"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLoadLegacyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "todos.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
  {"title": "Buy milk", "done": false},
  {"title": "Call mom", "done": true}
]`), 0o644))

	entries, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []Entry{{Title: "Buy milk"}, {Title: "Call mom", Done: true}}, entries)
}

func TestLoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "todos.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"title":`), 0o644))

	_, err := Load(path)
	assert.ErrorContains(t, err, "json unmarshal")
}

func TestSaveExport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	items := []model.TodoItem{
		{ID: "a", Title: "first", OwnerID: "u1"},
		{ID: "b", Title: "second", Completed: true, OwnerID: "u1"},
	}
	require.NoError(t, Save(path, FromItems(items)))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []Entry{{Title: "first"}, {Title: "second", Done: true}}, got)

	require.NoError(t, Save(path, nil))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(b))
}
