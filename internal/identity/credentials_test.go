package identity

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCredentials(t *testing.T, env map[string]string) *Credentials {
	t.Helper()
	c := NewCredentials(filepath.Join(t.TempDir(), "tada"))
	c.getenv = func(key string) string { return env[key] }
	return c
}

func TestCredentialsMissingFile(t *testing.T) {
	c := newCredentials(t, nil)

	ti, err := c.Get()
	require.NoError(t, err)
	assert.Nil(t, ti)
	assert.NoError(t, c.Delete())
}

func TestCredentialsSetGetDelete(t *testing.T) {
	c := newCredentials(t, nil)
	expires := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, c.Set("Bearer abc.def.ghi", &expires))

	info, err := os.Stat(c.path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	ti, err := c.Get()
	require.NoError(t, err)
	require.NotNil(t, ti)
	assert.Equal(t, "abc.def.ghi", ti.Token)
	assert.Equal(t, "file", ti.Source)
	require.NotNil(t, ti.ExpiresAt)
	assert.True(t, expires.Equal(*ti.ExpiresAt))

	require.NoError(t, c.Delete())
	ti, err = c.Get()
	require.NoError(t, err)
	assert.Nil(t, ti)
}

func TestCredentialsEnvOverride(t *testing.T) {
	c := newCredentials(t, map[string]string{TokenEnv: "  bearer from-env "})
	require.NoError(t, c.Set("from-file", nil))

	ti, err := c.Get()
	require.NoError(t, err)
	require.NotNil(t, ti)
	assert.Equal(t, "from-env", ti.Token)
	assert.Equal(t, "env", ti.Source)
}

func TestCredentialsRejectEmptyToken(t *testing.T) {
	c := newCredentials(t, nil)
	assert.Error(t, c.Set("   ", nil))
}

func TestCredentialsCorruptFile(t *testing.T) {
	c := newCredentials(t, nil)
	require.NoError(t, os.MkdirAll(c.dir, 0o700))
	require.NoError(t, os.WriteFile(c.path(), []byte("{not json"), 0o600))

	_, err := c.Get()
	assert.ErrorContains(t, err, "parse credentials")
}

func TestSigningKeyIsStable(t *testing.T) {
	c := newCredentials(t, nil)

	first, err := c.SigningKey()
	require.NoError(t, err)
	assert.Len(t, first, 64)

	second, err := c.SigningKey()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
