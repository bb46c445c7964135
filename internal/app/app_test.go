package app_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idilsaglam/tada/internal/app"
	"github.com/idilsaglam/tada/internal/config"
	"github.com/idilsaglam/tada/internal/model"
	"github.com/idilsaglam/tada/internal/todo"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		Database: config.DatabaseConfig{Path: filepath.Join(dir, "tada.db")},
		Auth: config.AuthConfig{
			CredentialsDir: filepath.Join(dir, "config"),
			TokenTTL:       time.Hour,
			BcryptCost:     4,
		},
	}
}

func open(t *testing.T, cfg config.Config) *app.App {
	t.Helper()
	a, err := app.Open(context.Background(), cfg)
	require.NoError(t, err)
	return a
}

func waitItems(t *testing.T, s *todo.Store, cond func([]model.TodoItem) bool) []model.TodoItem {
	t.Helper()
	var got []model.TodoItem
	require.Eventually(t, func() bool {
		got = s.List()
		return cond(got)
	}, 3*time.Second, 10*time.Millisecond)
	return got
}

func TestSignedOutByDefault(t *testing.T) {
	a := open(t, testConfig(t))
	defer func() { require.NoError(t, a.Close(context.Background())) }()

	assert.False(t, a.Auth.Current().IsSignedIn())
	assert.ErrorIs(t, a.Synced(context.Background()), todo.ErrNotBound)
	assert.Empty(t, a.Todos.List())
}

func TestEndToEndSync(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	cfg := testConfig(t)

	a := open(t, cfg)
	require.NoError(t, a.Auth.SignUp(ctx, "ada@example.com", "secret1").Wait(ctx))
	require.NoError(t, a.Synced(ctx))
	ada := a.Auth.Current().UserID

	require.NoError(t, a.Todos.Add("buy milk").Wait(ctx))
	require.NoError(t, a.Todos.Add("walk dog").Wait(ctx))
	items := waitItems(t, a.Todos, func(items []model.TodoItem) bool { return len(items) == 2 })
	assert.Equal(t, "buy milk", items[0].Title)
	assert.Equal(t, ada, items[0].OwnerID)

	require.NoError(t, a.Todos.ToggleComplete(items[0].ID, true).Wait(ctx))
	waitItems(t, a.Todos, func(items []model.TodoItem) bool { return len(items) == 2 && items[0].Completed })

	// switching users never shows the previous list
	require.NoError(t, a.Auth.SignOut(ctx).Wait(ctx))
	waitItems(t, a.Todos, func(items []model.TodoItem) bool { return len(items) == 0 })

	require.NoError(t, a.Auth.SignUp(ctx, "bob@example.com", "secret2").Wait(ctx))
	require.NoError(t, a.Synced(ctx))
	assert.Empty(t, a.Todos.List())
	require.NoError(t, a.Todos.Add("bob's task").Wait(ctx))
	waitItems(t, a.Todos, func(items []model.TodoItem) bool { return len(items) == 1 && items[0].Title == "bob's task" })

	assert.Positive(t, testutil.ToFloat64(a.Todos.Metrics().SnapshotsApplied))
	require.NoError(t, a.Close(ctx))

	// a restart restores bob's session and list
	b := open(t, cfg)
	defer func() { require.NoError(t, b.Close(context.Background())) }()
	require.NoError(t, b.Synced(ctx))
	got := b.Todos.List()
	require.Len(t, got, 1)
	assert.Equal(t, "bob's task", got[0].Title)

	require.NoError(t, b.Auth.SignOut(ctx).Wait(ctx))
	require.NoError(t, b.Auth.LogIn(ctx, "ada@example.com", "secret1").Wait(ctx))
	require.NoError(t, b.Synced(ctx))
	got = b.Todos.List()
	require.Len(t, got, 2)
	assert.True(t, got[0].Completed)
	assert.False(t, got[1].Completed)
}
