package identity

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"golang.org/x/crypto/bcrypt"

	"github.com/idilsaglam/tada/internal/session"
	"github.com/idilsaglam/tada/internal/store/sqlite"
)

const testKey = "test-signing-key"

type fixture struct {
	db    *bun.DB
	creds *Credentials
	env   map[string]string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	db, err := sqlite.Open(context.Background(), filepath.Join(dir, "tada.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	f := &fixture{db: db, env: map[string]string{}}
	f.creds = NewCredentials(filepath.Join(dir, "config"))
	f.creds.getenv = func(key string) string { return f.env[key] }
	return f
}

func (f *fixture) provider(t *testing.T, opts ...Option) *Provider {
	t.Helper()
	opts = append([]Option{WithBcryptCost(bcrypt.MinCost)}, opts...)
	p, err := New(context.Background(), f.db, f.creds, testKey, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestNewRequiresSigningKey(t *testing.T) {
	f := newFixture(t)
	_, err := New(context.Background(), f.db, f.creds, " ")
	assert.Error(t, err)
}

func TestSignUpSignsIn(t *testing.T) {
	f := newFixture(t)
	p := f.provider(t)
	ctx := context.Background()

	uid, err := p.SignUp(ctx, " Ada@Example.com ", "secret1")
	require.NoError(t, err)
	assert.NotEmpty(t, uid)
	assert.Equal(t, uid, p.CurrentUserID())

	claims, ok := p.Claims()
	require.True(t, ok)
	assert.Equal(t, "ada@example.com", claims.Email)

	ti, err := f.creds.Get()
	require.NoError(t, err)
	require.NotNil(t, ti)
	assert.Equal(t, "file", ti.Source)

	count, err := f.db.NewSelect().Model((*User)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSignUpValidation(t *testing.T) {
	f := newFixture(t)
	p := f.provider(t)
	ctx := context.Background()

	_, err := p.SignUp(ctx, "ada@example.com", "secret1")
	require.NoError(t, err)
	require.NoError(t, p.SignOut(ctx))

	tests := []struct {
		name     string
		email    string
		password string
		kind     session.AuthErrorKind
	}{
		{"malformed email", "not-an-email", "secret1", session.MalformedEmail},
		{"short password", "bob@example.com", "abc", session.WeakPassword},
		{"duplicate email", "ADA@example.com", "secret1", session.EmailInUse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.SignUp(ctx, tt.email, tt.password)
			require.Error(t, err)
			assert.True(t, session.IsKind(err, tt.kind), "got %v", err)
			assert.Empty(t, p.CurrentUserID())
		})
	}
}

func TestLogIn(t *testing.T) {
	f := newFixture(t)
	p := f.provider(t)
	ctx := context.Background()

	uid, err := p.SignUp(ctx, "ada@example.com", "secret1")
	require.NoError(t, err)
	require.NoError(t, p.SignOut(ctx))
	assert.Empty(t, p.CurrentUserID())

	_, err = p.LogIn(ctx, "ada@example.com", "wrong-password")
	assert.True(t, session.IsKind(err, session.InvalidCredentials))

	_, err = p.LogIn(ctx, "nobody@example.com", "secret1")
	assert.True(t, session.IsKind(err, session.InvalidCredentials))

	_, err = p.LogIn(ctx, "nope", "secret1")
	assert.True(t, session.IsKind(err, session.MalformedEmail))

	got, err := p.LogIn(ctx, "ada@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, uid, got)
	assert.Equal(t, uid, p.CurrentUserID())

	user := new(User)
	require.NoError(t, f.db.NewSelect().Model(user).Where("id = ?", uid).Scan(ctx))
	assert.NotNil(t, user.LoggedInAt)
}

func TestSessionRestoredAcrossRestarts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.provider(t)
	uid, err := first.SignUp(ctx, "ada@example.com", "secret1")
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second := f.provider(t)
	assert.Equal(t, uid, second.CurrentUserID())

	require.NoError(t, second.SignOut(ctx))
	third := f.provider(t)
	assert.Empty(t, third.CurrentUserID())
}

func TestExpiredStoredTokenIsDiscarded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start := time.Now()

	first := f.provider(t, WithTokenTTL(time.Hour))
	_, err := first.SignUp(ctx, "ada@example.com", "secret1")
	require.NoError(t, err)
	require.NoError(t, first.Close())

	later := f.provider(t, WithClock(func() time.Time { return start.Add(2 * time.Hour) }))
	assert.Empty(t, later.CurrentUserID())

	ti, err := f.creds.Get()
	require.NoError(t, err)
	assert.Nil(t, ti)
}

func TestEnvTokenRestoresSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.provider(t)
	uid, err := p.SignUp(ctx, "ada@example.com", "secret1")
	require.NoError(t, err)
	ti, err := f.creds.Get()
	require.NoError(t, err)
	require.NoError(t, p.SignOut(ctx))

	f.env[TokenEnv] = "Bearer " + ti.Token
	restored := f.provider(t)
	assert.Equal(t, uid, restored.CurrentUserID())

	require.NoError(t, restored.SignOut(ctx))
	assert.Empty(t, restored.CurrentUserID())
}

func TestTokenExpiryDropsSession(t *testing.T) {
	f := newFixture(t)
	// token expiry has second precision
	p := f.provider(t, WithTokenTTL(2*time.Second))

	uid, err := p.SignUp(context.Background(), "ada@example.com", "secret1")
	require.NoError(t, err)
	require.Equal(t, uid, p.CurrentUserID())

	assert.Eventually(t, func() bool { return p.CurrentUserID() == "" }, 5*time.Second, 20*time.Millisecond)
	_, ok := p.Claims()
	assert.False(t, ok)
}

func TestProviderDrivesAuthSession(t *testing.T) {
	f := newFixture(t)
	p := f.provider(t)
	ctx := context.Background()

	auth := session.New(p)
	defer func() { _ = auth.Close(ctx) }()
	assert.Equal(t, session.SignedOut(), auth.Current())

	require.NoError(t, auth.SignUp(ctx, "ada@example.com", "secret1").Wait(ctx))
	cur := auth.Current()
	assert.True(t, cur.IsSignedIn())
	assert.Equal(t, p.CurrentUserID(), cur.UserID)

	require.NoError(t, auth.SignOut(ctx).Wait(ctx))
	assert.Equal(t, session.SignedOut(), auth.Current())

	require.Error(t, auth.LogIn(ctx, "ada@example.com", "nope-nope").Wait(ctx))
	assert.Equal(t, session.KindError, auth.Current().Kind)
	assert.Equal(t, "invalid email or password", auth.Current().Message)
}
