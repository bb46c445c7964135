// Package identity is a local credential-based identity provider: accounts
// in a users table, bcrypt password hashes and a signed session token kept
// in a credentials file so a signed-in user survives restarts.
package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"golang.org/x/crypto/bcrypt"

	"github.com/idilsaglam/tada/internal/session"
	"github.com/idilsaglam/tada/internal/stream"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 6

const usersSchema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	loggedin_at   TIMESTAMP NULL
);
`

// User is the account model.
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`

	ID           string     `bun:"id,pk"`
	Email        string     `bun:"email,notnull"`
	PasswordHash string     `bun:"password_hash,notnull"`
	CreatedAt    time.Time  `bun:"created_at,notnull"`
	LoggedInAt   *time.Time `bun:"loggedin_at"`
}

var _ session.IdentityProvider = (*Provider)(nil)

// Option customizes a Provider.
type Option func(*Provider)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithClock injects a custom clock (useful for tests).
func WithClock(now func() time.Time) Option {
	return func(p *Provider) {
		if now != nil {
			p.now = now
			p.minter.now = now
		}
	}
}

// WithBcryptCost sets the password hashing cost.
func WithBcryptCost(cost int) Option {
	return func(p *Provider) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			p.cost = cost
		}
	}
}

// WithTokenTTL sets how long a session token stays valid.
func WithTokenTTL(ttl time.Duration) Option {
	return func(p *Provider) {
		if ttl > 0 {
			p.minter.ttl = ttl
		}
	}
}

// Provider implements session.IdentityProvider on a bun database.
type Provider struct {
	db     *bun.DB
	creds  *Credentials
	minter tokenMinter
	cost   int
	now    func() time.Time
	logger *slog.Logger

	users *stream.Value[string]

	mu     sync.Mutex
	expiry *time.Timer
	claims *Claims
}

// New prepares the users table and restores the stored session, if any.
func New(ctx context.Context, db *bun.DB, creds *Credentials, signingKey string, opts ...Option) (*Provider, error) {
	if strings.TrimSpace(signingKey) == "" {
		return nil, fmt.Errorf("signing key is empty")
	}
	p := &Provider{
		db:     db,
		creds:  creds,
		cost:   bcrypt.DefaultCost,
		now:    time.Now,
		logger: slog.Default(),
		minter: tokenMinter{key: []byte(signingKey), ttl: 30 * 24 * time.Hour, now: time.Now},
		users:  stream.New(""),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if _, err := db.ExecContext(ctx, usersSchema); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	if err := p.restore(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// SignUp creates an account and signs it in.
func (p *Provider) SignUp(ctx context.Context, email, password string) (string, error) {
	email = normalizeEmail(email)
	if err := validateCredentials(email, password); err != nil {
		return "", err
	}

	exists, err := p.db.NewSelect().Model((*User)(nil)).Where("email = ?", email).Exists(ctx)
	if err != nil {
		return "", unavailable(err)
	}
	if exists {
		return "", session.NewAuthError(session.EmailInUse, "the email address is already in use by another account", nil)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	now := p.now().UTC()
	user := &User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    now,
		LoggedInAt:   &now,
	}
	if _, err := p.db.NewInsert().Model(user).Exec(ctx); err != nil {
		return "", unavailable(err)
	}
	p.logger.Info("user registered", "user_id", user.ID)

	if err := p.startSession(user); err != nil {
		return "", err
	}
	return user.ID, nil
}

// LogIn verifies the password and signs the account in.
func (p *Provider) LogIn(ctx context.Context, email, password string) (string, error) {
	email = normalizeEmail(email)
	if err := validation.Validate(email, validation.Required, is.Email); err != nil {
		return "", session.NewAuthError(session.MalformedEmail, "the email address is badly formatted", err)
	}

	user := new(User)
	err := p.db.NewSelect().Model(user).Where("email = ?", email).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return "", invalidCredentials()
	}
	if err != nil {
		return "", unavailable(err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return "", invalidCredentials()
		}
		return "", fmt.Errorf("compare password: %w", err)
	}

	now := p.now().UTC()
	user.LoggedInAt = &now
	if _, err := p.db.NewUpdate().Model(user).Column("loggedin_at").WherePK().Exec(ctx); err != nil {
		p.logger.Warn("track login failed", "user_id", user.ID, "error", err)
	}

	if err := p.startSession(user); err != nil {
		return "", err
	}
	return user.ID, nil
}

// SignOut forgets the session token. A token given through the environment
// cannot be deleted; the provider still reports nobody signed in.
func (p *Provider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	p.stopExpiryLocked()
	p.claims = nil
	p.mu.Unlock()

	defer p.users.Set("")

	ti, _ := p.creds.Get()
	if ti != nil && ti.Source == "env" {
		p.logger.Info("session token comes from the environment, nothing to delete", "env", TokenEnv)
		return nil
	}
	if err := p.creds.Delete(); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

// CurrentUserID returns the signed-in user or "".
func (p *Provider) CurrentUserID() string {
	return p.users.Get()
}

// Changes streams the signed-in user id.
func (p *Provider) Changes() (<-chan string, func()) {
	return p.users.Subscribe()
}

// Claims returns the claims of the active session token.
func (p *Provider) Claims() (*Claims, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.claims == nil {
		return nil, false
	}
	c := *p.claims
	return &c, true
}

// Close stops the expiry timer and ends change subscriptions.
func (p *Provider) Close() error {
	p.mu.Lock()
	p.stopExpiryLocked()
	p.mu.Unlock()
	p.users.Close()
	return nil
}

func (p *Provider) restore(ctx context.Context) error {
	ti, err := p.creds.Get()
	if err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	if ti == nil {
		return nil
	}
	claims, err := p.minter.parse(ti.Token)
	if err != nil {
		p.logger.Info("stored session rejected", "source", ti.Source, "error", err)
		if ti.Source == "file" {
			_ = p.creds.Delete()
		}
		return nil
	}
	exists, err := p.db.NewSelect().Model((*User)(nil)).Where("id = ?", claims.Subject).Exists(ctx)
	if err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	if !exists {
		p.logger.Info("stored session for unknown user", "user_id", claims.Subject)
		return nil
	}
	p.activate(claims)
	return nil
}

func (p *Provider) startSession(user *User) error {
	token, expires, err := p.minter.mint(user.ID, user.Email)
	if err != nil {
		return err
	}
	if err := p.creds.Set(token, &expires); err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	claims, err := p.minter.parse(token)
	if err != nil {
		return err
	}
	p.activate(claims)
	return nil
}

// activate publishes the user and arms a timer that drops the session when
// the token expires.
func (p *Provider) activate(claims *Claims) {
	p.mu.Lock()
	p.stopExpiryLocked()
	p.claims = claims
	if claims.ExpiresAt != nil {
		ttl := claims.ExpiresAt.Time.Sub(p.now())
		p.expiry = time.AfterFunc(ttl, func() { p.expire(claims) })
	}
	p.mu.Unlock()
	p.users.Set(claims.Subject)
}

func (p *Provider) expire(claims *Claims) {
	p.mu.Lock()
	if p.claims != claims {
		p.mu.Unlock()
		return
	}
	p.claims = nil
	p.expiry = nil
	p.mu.Unlock()

	p.logger.Info("session token expired", "user_id", claims.Subject)
	p.users.Set("")
}

func (p *Provider) stopExpiryLocked() {
	if p.expiry != nil {
		p.expiry.Stop()
		p.expiry = nil
	}
}

func validateCredentials(email, password string) error {
	if err := validation.Validate(email, validation.Required, is.Email); err != nil {
		return session.NewAuthError(session.MalformedEmail, "the email address is badly formatted", err)
	}
	if err := validation.Validate(password, validation.Required, validation.Length(MinPasswordLength, 0)); err != nil {
		return session.NewAuthError(session.WeakPassword,
			fmt.Sprintf("password should be at least %d characters", MinPasswordLength), err)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func invalidCredentials() error {
	return session.NewAuthError(session.InvalidCredentials, "invalid email or password", nil)
}

func unavailable(err error) error {
	return session.NewAuthError(session.Unavailable, "identity service unavailable", err)
}
