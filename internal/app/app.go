// Package app wires the todo sync core together: database, document store,
// identity provider, auth session and todo store, plus the loop that keeps the
// todo store bound to whoever is signed in.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/uptrace/bun"

	"github.com/idilsaglam/tada/internal/config"
	"github.com/idilsaglam/tada/internal/docstore"
	"github.com/idilsaglam/tada/internal/identity"
	"github.com/idilsaglam/tada/internal/session"
	"github.com/idilsaglam/tada/internal/store/sqlite"
	"github.com/idilsaglam/tada/internal/todo"
)

const syncPoll = 10 * time.Millisecond

// Option customizes Open.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	registry *prometheus.Registry
}

// WithLogger sets the logger handed to every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRegistry registers the store metrics with reg.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) {
		if reg != nil {
			o.registry = reg
		}
	}
}

// App is one running instance.
type App struct {
	Config   config.Config
	Logger   *slog.Logger
	Registry *prometheus.Registry

	DB          *bun.DB
	Docs        *docstore.Store
	Credentials *identity.Credentials
	Identity    *identity.Provider
	Auth        *session.AuthSession
	Todos       *todo.Store

	stopSync func()
	syncDone chan struct{}
}

// Open builds the components from cfg. On return the todo store already
// reflects the restored session, so callers can wait on Todos.Ready.
func Open(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	o := options{logger: slog.Default(), registry: prometheus.NewRegistry()}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	logger := o.logger

	db, err := sqlite.Open(ctx, cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	docs, err := docstore.New(ctx, db, docstore.WithLogger(logger.With("component", "docstore")))
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	creds := identity.NewCredentials(cfg.Auth.CredentialsDir)
	key := cfg.Auth.SigningKey
	if key == "" {
		if key, err = creds.SigningKey(); err != nil {
			_ = docs.Close()
			_ = db.Close()
			return nil, err
		}
	}
	provider, err := identity.New(ctx, db, creds, key,
		identity.WithLogger(logger.With("component", "identity")),
		identity.WithTokenTTL(cfg.Auth.TokenTTL),
		identity.WithBcryptCost(cfg.Auth.BcryptCost),
	)
	if err != nil {
		_ = docs.Close()
		_ = db.Close()
		return nil, err
	}

	a := &App{
		Config:      cfg,
		Logger:      logger,
		Registry:    o.registry,
		DB:          db,
		Docs:        docs,
		Credentials: creds,
		Identity:    provider,
		Auth:        session.New(provider, session.WithLogger(logger.With("component", "auth"))),
		Todos: todo.New(todo.FromDocstore(docs),
			todo.WithLogger(logger.With("component", "todo")),
			todo.WithMetrics(todo.NewMetrics(o.registry)),
		),
		syncDone: make(chan struct{}),
	}

	a.follow(a.Auth.Current())
	sessions, stop := a.Auth.Sessions()
	a.stopSync = stop
	go a.sync(sessions)
	return a, nil
}

// sync keeps the todo store bound to the signed-in user. Binding the same
// user again is a no-op, so the replayed current session costs nothing.
func (a *App) sync(sessions <-chan session.Session) {
	defer close(a.syncDone)
	for s := range sessions {
		a.follow(s)
	}
}

func (a *App) follow(s session.Session) {
	if s.IsSignedIn() {
		a.Todos.Bind(s.UserID)
		return
	}
	a.Todos.Clear()
}

// Synced waits until the todo store follows the current session and its
// first snapshot has been applied. It returns todo.ErrNotBound while signed
// out.
func (a *App) Synced(ctx context.Context) error {
	for {
		cur := a.Auth.Current()
		if !cur.IsSignedIn() {
			return todo.ErrNotBound
		}
		if a.Todos.UserID() == cur.UserID {
			// ErrNotBound here means the binding was replaced meanwhile
			if err := a.Todos.Ready(ctx); !errors.Is(err, todo.ErrNotBound) {
				return err
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(syncPoll):
		}
	}
}

// Close shuts the components down in reverse order.
func (a *App) Close(ctx context.Context) error {
	a.stopSync()
	<-a.syncDone

	var errs []error
	if err := a.Todos.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close todo store: %w", err))
	}
	if err := a.Auth.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close auth session: %w", err))
	}
	if err := a.Identity.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close identity: %w", err))
	}
	if err := a.Docs.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close docstore: %w", err))
	}
	if err := a.DB.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close db: %w", err))
	}
	return errors.Join(errs...)
}
