package cli

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idilsaglam/tada/internal/model"
	"github.com/idilsaglam/tada/internal/store/jsonstore"
	"github.com/idilsaglam/tada/internal/ui"
)

func sandbox(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("TADA_CONFIG", "")
	t.Setenv("TADA_TOKEN", "")
	t.Setenv("TADA_AUTH_BCRYPT_COST", "4")
	t.Setenv("TADA_UI_THEME", "mono")
	return home
}

func run(t *testing.T, stdin string, args ...string) int {
	t.Helper()
	return Run(context.Background(), append([]string{"--no-color"}, args...), strings.NewReader(stdin))
}

func TestUsageExitCodes(t *testing.T) {
	sandbox(t)

	tests := []struct {
		name string
		args []string
	}{
		{"no subcommand", nil},
		{"unknown subcommand", []string{"bogus"}},
		{"add without title", []string{"add"}},
		{"add blank title", []string{"add", "   "}},
		{"done without index", []string{"done"}},
		{"edit without title", []string{"edit", "1"}},
		{"auth without action", []string{"auth"}},
		{"unknown flag", []string{"ls", "--nope"}},
		{"signed out list", []string{"ls", "--plain"}},
		{"whoami signed out", []string{"auth", "whoami"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, ExitUsage, run(t, "", tt.args...))
		})
	}
}

func TestCommandFlow(t *testing.T) {
	home := sandbox(t)
	out := filepath.Join(home, "out.json")

	require.Equal(t, ExitOK, run(t, "", "signup", "--email", "ada@example.com", "--password", "secret1"))
	assert.Equal(t, ExitUsage, run(t, "", "login", "-e", "ada@example.com", "-p", "secret1"), "already signed in")

	require.Equal(t, ExitOK, run(t, "", "add", "Buy", "milk"))
	require.Equal(t, ExitOK, run(t, "", "add", "Walk dog"))
	require.Equal(t, ExitOK, run(t, "", "done", "1"))
	require.Equal(t, ExitOK, run(t, "", "edit", "2", "Walk", "the", "dog"))
	assert.Equal(t, ExitUsage, run(t, "", "rm", "5"))
	assert.Equal(t, ExitUsage, run(t, "", "rm", "two"))
	require.Equal(t, ExitOK, run(t, "", "ls", "--plain", "--group"))
	require.Equal(t, ExitOK, run(t, "", "auth", "status"))
	require.Equal(t, ExitOK, run(t, "", "auth", "whoami"))

	require.Equal(t, ExitOK, run(t, "", "export", out))
	entries, err := jsonstore.Load(out)
	require.NoError(t, err)
	assert.Equal(t, []jsonstore.Entry{
		{Title: "Buy milk", Done: true},
		{Title: "Walk the dog"},
	}, entries)

	require.Equal(t, ExitOK, run(t, "", "undone", "1"))
	require.Equal(t, ExitOK, run(t, "", "rm", "2"))
	require.Equal(t, ExitOK, run(t, "", "export", out))
	entries, err = jsonstore.Load(out)
	require.NoError(t, err)
	assert.Equal(t, []jsonstore.Entry{{Title: "Buy milk"}}, entries)

	require.Equal(t, ExitOK, run(t, "", "logout"))
	require.Equal(t, ExitOK, run(t, "", "logout"), "logout is idempotent")
	assert.Equal(t, ExitUsage, run(t, "", "add", "nope"))

	// a second account starts empty and never sees the first one's items
	require.Equal(t, ExitOK, run(t, "bob@example.com\nsecret2\n", "signup"))
	require.Equal(t, ExitOK, run(t, "", "export", out))
	entries, err = jsonstore.Load(out)
	require.NoError(t, err)
	assert.Empty(t, entries)
	require.Equal(t, ExitOK, run(t, "", "logout"))

	assert.Equal(t, ExitError, run(t, "ada@example.com\nwrong-pass\n", "login"))
	require.Equal(t, ExitOK, run(t, "ada@example.com\nsecret1\n", "login"))
}

func TestImportLegacyFile(t *testing.T) {
	home := sandbox(t)
	legacy := filepath.Join(home, "todos.json")
	require.NoError(t, os.WriteFile(legacy, []byte(`[
  {"title": "Buy milk", "done": false},
  {"title": "   ", "done": false},
  {"title": "Call mom", "done": true}
]`), 0o644))
	out := filepath.Join(home, "out.json")

	require.Equal(t, ExitOK, run(t, "", "signup", "-e", "ada@example.com", "-p", "secret1"))
	require.Equal(t, ExitOK, run(t, "", "import", legacy))
	require.Equal(t, ExitOK, run(t, "", "export", out))

	entries, err := jsonstore.Load(out)
	require.NoError(t, err)
	assert.Equal(t, []jsonstore.Entry{
		{Title: "Buy milk"},
		{Title: "Call mom", Done: true},
	}, entries)
}

func TestListLinesKeepListIndexes(t *testing.T) {
	ui.SetTheme("mono")
	items := []model.TodoItem{
		{ID: "a", Title: "first", Completed: true},
		{ID: "b", Title: "second"},
	}

	flat := strings.Join(listLines(items, false), "\n")
	assert.Contains(t, flat, " 1. [x] first")
	assert.Contains(t, flat, " 2. [ ] second")

	grouped := listLines(items, true)
	joined := strings.Join(grouped, "\n")
	assert.Less(t, strings.Index(joined, "Pending"), strings.Index(joined, " 2. [ ] second"))
	assert.Less(t, strings.Index(joined, "Done"), strings.Index(joined, " 1. [x] first"))

	assert.Contains(t, strings.Join(listLines(nil, false), "\n"), "no items")
}

func TestListLinesTruncateMultiByteTitles(t *testing.T) {
	ui.SetTheme("mono")
	long := strings.Repeat("ü", 120)

	lines := listLines([]model.TodoItem{{ID: "a", Title: long}}, false)
	var row string
	for _, ln := range lines {
		if strings.Contains(ln, " 1. ") {
			row = ln
		}
	}
	require.NotEmpty(t, row)
	assert.True(t, utf8.ValidString(row))
	assert.Contains(t, row, strings.Repeat("ü", 77)+"...")
	assert.NotContains(t, row, strings.Repeat("ü", 78))
}
