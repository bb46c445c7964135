package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/idilsaglam/tada/internal/dispatch"
	"github.com/idilsaglam/tada/internal/stream"
)

// IdentityProvider performs the credential operations. Changes streams the
// signed-in user id ("" when nobody is signed in), replaying the current one
// to new subscribers.
type IdentityProvider interface {
	SignUp(ctx context.Context, email, password string) (string, error)
	LogIn(ctx context.Context, email, password string) (string, error)
	SignOut(ctx context.Context) error
	CurrentUserID() string
	Changes() (<-chan string, func())
}

// Option customizes an AuthSession.
type Option func(*AuthSession)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *AuthSession) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// AuthSession owns the identity state machine:
//
//	SignedOut <-> Authenticating -> {SignedIn, Error}
//	SignedIn -> SignedOut
//	Error -> SignedOut | Authenticating
type AuthSession struct {
	provider IdentityProvider
	logger   *slog.Logger
	state    *stream.Value[Session]
	queue    *dispatch.Queue

	mu         sync.Mutex
	signingOut int // queued provider sign outs
	stopWatch  func()
	watchDone  chan struct{}
	closeOnce  sync.Once
	shutdownFn context.CancelFunc
}

// New builds an AuthSession whose initial state reflects the provider's
// current user.
func New(provider IdentityProvider, opts ...Option) *AuthSession {
	ctx, cancel := context.WithCancel(context.Background())
	a := &AuthSession{
		provider:   provider,
		logger:     slog.Default(),
		queue:      dispatch.NewQueue(ctx),
		watchDone:  make(chan struct{}),
		shutdownFn: cancel,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}

	changes, stop := provider.Changes()
	a.stopWatch = stop

	initial := SignedOut()
	if uid, ok := <-changes; ok && uid != "" {
		initial = SignedIn(uid)
	}
	a.state = stream.New(initial)

	go a.watch(changes)
	return a
}

// Sessions streams the session, replaying the current one first.
func (a *AuthSession) Sessions() (<-chan Session, func()) {
	return a.state.Subscribe()
}

// Current returns the session right now.
func (a *AuthSession) Current() Session {
	return a.state.Get()
}

// Version counts published transitions.
func (a *AuthSession) Version() uint64 {
	return a.state.Version()
}

// SignUp registers a new account and signs it in.
func (a *AuthSession) SignUp(ctx context.Context, email, password string) *dispatch.Op {
	return a.authenticate(ctx, "sign up", email, password, a.provider.SignUp)
}

// LogIn signs an existing account in.
func (a *AuthSession) LogIn(ctx context.Context, email, password string) *dispatch.Op {
	return a.authenticate(ctx, "log in", email, password, a.provider.LogIn)
}

func (a *AuthSession) authenticate(
	ctx context.Context,
	action, email, password string,
	call func(ctx context.Context, email, password string) (string, error),
) *dispatch.Op {
	a.mu.Lock()
	switch a.state.Get().Kind {
	case KindSignedIn:
		a.mu.Unlock()
		return dispatch.Resolved(ErrAlreadySignedIn)
	case KindAuthenticating:
		a.mu.Unlock()
		return dispatch.Resolved(ErrAuthInProgress)
	}
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		a.setLocked(Failed(ErrEmptyCredentials.Error()))
		a.mu.Unlock()
		return dispatch.Resolved(ErrEmptyCredentials)
	}
	a.setLocked(Authenticating())
	a.mu.Unlock()

	return a.queue.Do(func(qctx context.Context) error {
		ctx := withQueue(ctx, qctx)
		uid, err := call(ctx, email, password)
		if err != nil {
			a.logger.Info("auth failed", "action", action, "error", err)
			a.transition(Failed(Message(err)))
			return err
		}
		a.logger.Debug("auth succeeded", "action", action, "user_id", uid)
		a.transition(SignedIn(uid))
		return nil
	})
}

// SignOut ends the session. While already signed out it does nothing.
func (a *AuthSession) SignOut(ctx context.Context) *dispatch.Op {
	a.mu.Lock()
	cur := a.state.Get()
	switch cur.Kind {
	case KindSignedOut:
		a.mu.Unlock()
		return dispatch.Resolved(nil)
	case KindSignedIn, KindError:
		a.setLocked(SignedOut())
		a.signingOut++
		a.mu.Unlock()
		return a.queue.Do(func(qctx context.Context) error {
			defer a.signedOut()
			return a.providerSignOut(withQueue(ctx, qctx))
		})
	default:
		// Authenticating: sign out after the pending attempt settles.
		a.signingOut++
		a.mu.Unlock()
		return a.queue.Do(func(qctx context.Context) error {
			defer a.signedOut()
			err := a.providerSignOut(withQueue(ctx, qctx))
			a.transition(SignedOut())
			return err
		})
	}
}

func (a *AuthSession) signedOut() {
	a.mu.Lock()
	a.signingOut--
	a.mu.Unlock()
}

// Dismiss acknowledges an Error session and returns to SignedOut.
func (a *AuthSession) Dismiss() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state.Get().Kind == KindError {
		a.setLocked(SignedOut())
	}
}

// Close stops observing the provider and drains pending operations.
func (a *AuthSession) Close(ctx context.Context) error {
	var err error
	a.closeOnce.Do(func() {
		a.stopWatch()
		<-a.watchDone
		err = a.queue.Close(ctx)
		a.shutdownFn()
		a.state.Close()
	})
	return err
}

func (a *AuthSession) providerSignOut(ctx context.Context) error {
	if err := a.provider.SignOut(ctx); err != nil {
		a.logger.Error("provider sign out failed", "error", err)
		return err
	}
	return nil
}

// watch maps provider events onto the state machine. A lost identity signs
// the session out; a reported identity signs a signed-out session in. Events
// that arrive while an attempt is pending or an error is shown keep the
// current state, and so do events the provider no longer agrees with.
func (a *AuthSession) watch(changes <-chan string) {
	defer close(a.watchDone)
	for uid := range changes {
		a.mu.Lock()
		cur := a.state.Get()
		switch {
		case uid != a.provider.CurrentUserID():
			a.logger.Debug("stale provider event", "user_id", uid)
		case uid == "" && cur.Kind == KindSignedIn:
			a.logger.Info("session lost", "user_id", cur.UserID)
			a.setLocked(SignedOut())
		case uid != "" && a.signingOut > 0:
			// a sign out is queued; the provider still reports the old user
		case uid != "" && (cur.Kind == KindSignedOut || cur.Kind == KindSignedIn):
			a.setLocked(SignedIn(uid))
		}
		a.mu.Unlock()
	}
}

func (a *AuthSession) transition(next Session) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.setLocked(next)
}

// setLocked publishes next unless it equals the current session.
func (a *AuthSession) setLocked(next Session) {
	cur := a.state.Get()
	if cur == next {
		return
	}
	a.logger.Debug("session transition", "from", cur.String(), "to", next.String())
	a.state.Set(next)
}

// withQueue prefers the caller's context so its values and deadline reach
// the provider.
func withQueue(ctx, qctx context.Context) context.Context {
	if ctx == nil {
		return qctx
	}
	return ctx
}
