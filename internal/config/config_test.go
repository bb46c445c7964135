package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("TADA_CONFIG", "")
	for _, key := range []string{
		"TADA_DATABASE_PATH", "TADA_AUTH_CREDENTIALS_DIR", "TADA_AUTH_SIGNING_KEY",
		"TADA_AUTH_TOKEN_TTL", "TADA_AUTH_BCRYPT_COST", "TADA_UI_THEME", "TADA_LOG_LEVEL",
	} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
	return home
}

func TestLoadDefaults(t *testing.T) {
	home := isolate(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".local", "share", "tada", "tada.db"), cfg.Database.Path)
	assert.Equal(t, filepath.Join(home, ".config", "tada"), cfg.Auth.CredentialsDir)
	assert.Equal(t, 720*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 10, cfg.Auth.BcryptCost)
	assert.Equal(t, "classic", cfg.UI.Theme)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadFileAndEnv(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(home, "custom.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[database]
path = "/tmp/todos.db"

[auth]
token_ttl = "2h"
bcrypt_cost = 4

[ui]
theme = "neon"
`), 0o600))
	t.Setenv("TADA_CONFIG", path)
	t.Setenv("TADA_UI_THEME", "mono")
	t.Setenv("TADA_AUTH_SIGNING_KEY", "k3y")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/todos.db", cfg.Database.Path)
	assert.Equal(t, 2*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 4, cfg.Auth.BcryptCost)
	assert.Equal(t, "mono", cfg.UI.Theme)
	assert.Equal(t, "k3y", cfg.Auth.SigningKey)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	home := isolate(t)
	t.Setenv("TADA_CONFIG", filepath.Join(home, "nope.toml"))

	_, err := Load()
	assert.ErrorContains(t, err, "read config")
}

func TestValidate(t *testing.T) {
	valid := Config{
		Database: DatabaseConfig{Path: "tada.db"},
		Auth:     AuthConfig{CredentialsDir: "creds", TokenTTL: time.Hour, BcryptCost: 10},
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty db path", func(c *Config) { c.Database.Path = " " }, "database.path"},
		{"empty credentials dir", func(c *Config) { c.Auth.CredentialsDir = "" }, "auth.credentials_dir"},
		{"zero ttl", func(c *Config) { c.Auth.TokenTTL = 0 }, "auth.token_ttl"},
		{"cost too high", func(c *Config) { c.Auth.BcryptCost = 99 }, "auth.bcrypt_cost"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}
